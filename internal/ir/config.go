package ir

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config represents the top-level deployment configuration.
type Config struct {
	Stack       string            `pkl:"stack"`
	Provider    string            `pkl:"provider"` // "aws" or "null"
	Region      string            `pkl:"region"`
	Profile     string            `pkl:"profile"`
	Network     *NetworkConfig    `pkl:"network"`
	Instance    *InstanceConfig   `pkl:"instance"`
	Readiness   *PollConfig       `pkl:"readiness"`
	Termination *PollConfig       `pkl:"termination"`
	Rollback    *RollbackConfig   `pkl:"rollback"`
	Lock        *LockConfig       `pkl:"lock"`
	Tags        map[string]string `pkl:"tags"` // applied to every resource
}

type NetworkConfig struct {
	CidrBlock        string `pkl:"cidrBlock"`
	SubnetCidrBlock  string `pkl:"subnetCidrBlock"`
	AvailabilityZone string `pkl:"availabilityZone"`
	SSHCidr          string `pkl:"sshCidr"`
	HTTPCidr         string `pkl:"httpCidr"`

	// Name tags per resource.
	NetworkName    string `pkl:"networkName"`
	SubnetName     string `pkl:"subnetName"`
	GatewayName    string `pkl:"gatewayName"`
	RouteTableName string `pkl:"routeTableName"`
	SSHGroupName   string `pkl:"sshGroupName"`
	HTTPGroupName  string `pkl:"httpGroupName"`
}

type InstanceConfig struct {
	ImageID        string `pkl:"imageId"`
	ImageParameter string `pkl:"imageParameter"` // SSM parameter resolving to an AMI
	InstanceType   string `pkl:"instanceType"`
	KeyName        string `pkl:"keyName"`
	BootScript     string `pkl:"bootScript"` // local path or s3://bucket/key
	PublicIP       *bool  `pkl:"publicIp"`
	Name           string `pkl:"name"`
}

// PollConfig bounds a polling loop.
type PollConfig struct {
	Interval    string `pkl:"interval"` // Go duration, e.g. "5s"
	MaxAttempts int    `pkl:"maxAttempts"`
}

// RollbackConfig controls retries of transient provider errors during rollback.
type RollbackConfig struct {
	Retries   int    `pkl:"retries"`
	BaseDelay string `pkl:"baseDelay"`
}

// LockConfig selects where the per-stack run lock lives. A non-empty Table
// uses DynamoDB; otherwise a lock file is written under Dir.
type LockConfig struct {
	Table string `pkl:"table"`
	Dir   string `pkl:"dir"`
}

// Defaults mirror the reference WordPress deployment.
const (
	DefaultStack            = "wordpress"
	DefaultProvider         = "aws"
	DefaultRegion           = "us-west-2"
	DefaultNetworkCidr      = "10.0.0.0/16"
	DefaultSubnetCidr       = "10.0.1.0/24"
	DefaultOpenCidr         = "0.0.0.0/0"
	DefaultImageID          = "ami-0747e613a2a1ff483"
	DefaultInstanceType     = "t2.micro"
	DefaultKeyName          = "vockey"
	DefaultBootScript       = "dockerWPuserdata.sh"
	DefaultPollInterval     = "5s"
	DefaultPollAttempts     = 60
	DefaultRollbackRetries  = 3
	DefaultRollbackDelay    = "2s"
	DefaultLockDir          = ".stackup"
	defaultNetworkName      = "dockerVPC"
	defaultSubnetName       = "dockersubnet"
	defaultGatewayName      = "dockerIGW"
	defaultRouteTableName   = "dockerRT"
	defaultSSHGroupName     = "ssh_inbound"
	defaultHTTPGroupName    = "allow_http_traffic"
	defaultInstanceName     = "wp-instance"
)

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Stack == "" {
		c.Stack = DefaultStack
	}
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}

	if c.Network == nil {
		c.Network = &NetworkConfig{}
	}
	n := c.Network
	setDefault(&n.CidrBlock, DefaultNetworkCidr)
	setDefault(&n.SubnetCidrBlock, DefaultSubnetCidr)
	setDefault(&n.AvailabilityZone, c.Region+"a")
	setDefault(&n.SSHCidr, DefaultOpenCidr)
	setDefault(&n.HTTPCidr, DefaultOpenCidr)
	setDefault(&n.NetworkName, defaultNetworkName)
	setDefault(&n.SubnetName, defaultSubnetName)
	setDefault(&n.GatewayName, defaultGatewayName)
	setDefault(&n.RouteTableName, defaultRouteTableName)
	setDefault(&n.SSHGroupName, defaultSSHGroupName)
	setDefault(&n.HTTPGroupName, defaultHTTPGroupName)

	if c.Instance == nil {
		c.Instance = &InstanceConfig{}
	}
	i := c.Instance
	if i.ImageParameter == "" {
		setDefault(&i.ImageID, DefaultImageID)
	}
	setDefault(&i.InstanceType, DefaultInstanceType)
	setDefault(&i.KeyName, DefaultKeyName)
	setDefault(&i.BootScript, DefaultBootScript)
	setDefault(&i.Name, defaultInstanceName)
	if i.PublicIP == nil {
		public := true
		i.PublicIP = &public
	}

	c.Readiness = defaultPoll(c.Readiness)
	c.Termination = defaultPoll(c.Termination)

	if c.Rollback == nil {
		c.Rollback = &RollbackConfig{Retries: DefaultRollbackRetries}
	}
	setDefault(&c.Rollback.BaseDelay, DefaultRollbackDelay)

	if c.Lock == nil {
		c.Lock = &LockConfig{}
	}
	if c.Lock.Table == "" {
		setDefault(&c.Lock.Dir, DefaultLockDir)
	}
}

func defaultPoll(p *PollConfig) *PollConfig {
	if p == nil {
		p = &PollConfig{}
	}
	setDefault(&p.Interval, DefaultPollInterval)
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultPollAttempts
	}
	return p
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate checks a defaulted config. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.ContainsAny(c.Stack, " \t\n") {
		errs = append(errs, fmt.Errorf("stack %q must not contain whitespace", c.Stack))
	}

	if c.Network != nil {
		vpc, err := netip.ParsePrefix(c.Network.CidrBlock)
		if err != nil {
			errs = append(errs, fmt.Errorf("network.cidrBlock: %w", err))
		}
		subnet, err := netip.ParsePrefix(c.Network.SubnetCidrBlock)
		if err != nil {
			errs = append(errs, fmt.Errorf("network.subnetCidrBlock: %w", err))
		}
		if vpc.IsValid() && subnet.IsValid() && (!vpc.Contains(subnet.Addr()) || subnet.Bits() < vpc.Bits()) {
			errs = append(errs, fmt.Errorf("network.subnetCidrBlock %s is not inside %s", subnet, vpc))
		}
		for name, cidr := range map[string]string{"sshCidr": c.Network.SSHCidr, "httpCidr": c.Network.HTTPCidr} {
			if _, err := netip.ParsePrefix(cidr); err != nil {
				errs = append(errs, fmt.Errorf("network.%s: %w", name, err))
			}
		}
	}

	if c.Instance != nil {
		if c.Instance.ImageID == "" && c.Instance.ImageParameter == "" {
			errs = append(errs, errors.New("instance.imageId or instance.imageParameter is required"))
		}
		if c.Instance.InstanceType == "" {
			errs = append(errs, errors.New("instance.instanceType is required"))
		}
	}

	for name, p := range map[string]*PollConfig{"readiness": c.Readiness, "termination": c.Termination} {
		if p == nil {
			continue
		}
		if d, err := time.ParseDuration(p.Interval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s.interval %q must be a positive duration", name, p.Interval))
		}
		if p.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("%s.maxAttempts must be at least 1", name))
		}
	}

	if c.Rollback != nil {
		if c.Rollback.Retries < 0 {
			errs = append(errs, errors.New("rollback.retries must not be negative"))
		}
		if _, err := time.ParseDuration(c.Rollback.BaseDelay); err != nil {
			errs = append(errs, fmt.Errorf("rollback.baseDelay: %w", err))
		}
	}

	return errors.Join(errs...)
}

// PollInterval returns the parsed interval; Validate guarantees it parses.
func (p *PollConfig) PollInterval() time.Duration {
	d, _ := time.ParseDuration(p.Interval)
	return d
}

// Delay returns the parsed base delay.
func (r *RollbackConfig) Delay() time.Duration {
	d, _ := time.ParseDuration(r.BaseDelay)
	return d
}

// PublicIPOnLaunch reports whether the instance gets a public address.
func (i *InstanceConfig) PublicIPOnLaunch() bool {
	return i.PublicIP == nil || *i.PublicIP
}
