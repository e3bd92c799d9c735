package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "wordpress", cfg.Stack)
	assert.Equal(t, "aws", cfg.Provider)
	assert.Equal(t, "us-west-2", cfg.Region)
	assert.Equal(t, "10.0.0.0/16", cfg.Network.CidrBlock)
	assert.Equal(t, "10.0.1.0/24", cfg.Network.SubnetCidrBlock)
	assert.Equal(t, "us-west-2a", cfg.Network.AvailabilityZone)
	assert.Equal(t, "dockerVPC", cfg.Network.NetworkName)
	assert.Equal(t, "ami-0747e613a2a1ff483", cfg.Instance.ImageID)
	assert.Equal(t, "t2.micro", cfg.Instance.InstanceType)
	assert.Equal(t, "vockey", cfg.Instance.KeyName)
	assert.Equal(t, "dockerWPuserdata.sh", cfg.Instance.BootScript)
	assert.True(t, cfg.Instance.PublicIPOnLaunch())
	assert.Equal(t, 5*time.Second, cfg.Readiness.PollInterval())
	assert.Equal(t, 60, cfg.Termination.MaxAttempts)
	assert.Equal(t, 3, cfg.Rollback.Retries)
	assert.Equal(t, 2*time.Second, cfg.Rollback.Delay())
	assert.Equal(t, ".stackup", cfg.Lock.Dir)

	require.NoError(t, cfg.Validate())
}

func TestConfig_ApplyDefaults_KeepsValues(t *testing.T) {
	public := false
	cfg := &Config{
		Region: "eu-central-1",
		Instance: &InstanceConfig{
			ImageParameter: "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64",
			PublicIP:       &public,
		},
		Readiness: &PollConfig{Interval: "1s", MaxAttempts: 5},
		Lock:      &LockConfig{Table: "stackup-locks"},
	}
	cfg.ApplyDefaults()

	assert.Empty(t, cfg.Lock.Dir, "a lock table replaces the lock directory")

	assert.Equal(t, "eu-central-1a", cfg.Network.AvailabilityZone)
	assert.Empty(t, cfg.Instance.ImageID, "image parameter replaces the default image")
	assert.False(t, cfg.Instance.PublicIPOnLaunch())
	assert.Equal(t, time.Second, cfg.Readiness.PollInterval())
	assert.Equal(t, 5, cfg.Readiness.MaxAttempts)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad vpc cidr",
			mutate:  func(c *Config) { c.Network.CidrBlock = "10.0.0.0" },
			wantErr: "network.cidrBlock",
		},
		{
			name:    "subnet outside vpc",
			mutate:  func(c *Config) { c.Network.SubnetCidrBlock = "192.168.1.0/24" },
			wantErr: "is not inside",
		},
		{
			name:    "subnet larger than vpc",
			mutate:  func(c *Config) { c.Network.SubnetCidrBlock = "10.0.0.0/8" },
			wantErr: "is not inside",
		},
		{
			name:    "bad poll interval",
			mutate:  func(c *Config) { c.Readiness.Interval = "soon" },
			wantErr: "readiness.interval",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Termination.MaxAttempts = -1 },
			wantErr: "termination.maxAttempts",
		},
		{
			name:    "no image",
			mutate:  func(c *Config) { c.Instance.ImageID = "" },
			wantErr: "instance.imageId",
		},
		{
			name:    "stack with spaces",
			mutate:  func(c *Config) { c.Stack = "my stack" },
			wantErr: "whitespace",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Rollback.Retries = -1 },
			wantErr: "rollback.retries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
