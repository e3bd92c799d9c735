// Package provider builds and caches cloud providers for a configuration.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/picklr-io/stackup/internal/ir"
	"github.com/picklr-io/stackup/pkg/cloud"
	awsprovider "github.com/picklr-io/stackup/providers/aws"
	"github.com/picklr-io/stackup/providers/null"
)

// ImageResolver is implemented by providers that can resolve an image
// parameter to a concrete image ID.
type ImageResolver interface {
	ResolveImage(ctx context.Context, parameter string) (string, error)
}

// Registry manages the lifecycle of providers.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]cloud.Provider
	awsConfigs map[string]aws.Config

	// LoadAWSConfig resolves SDK configuration. Replaced in tests.
	LoadAWSConfig func(ctx context.Context, region, profile string) (aws.Config, error)
}

func NewRegistry() *Registry {
	return &Registry{
		providers:     make(map[string]cloud.Provider),
		awsConfigs:    make(map[string]aws.Config),
		LoadAWSConfig: awsprovider.LoadConfig,
	}
}

// Register installs a provider under name, replacing any cached one.
func (r *Registry) Register(name string, p cloud.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Load returns the provider named by cfg, building it on first use.
func (r *Registry) Load(ctx context.Context, cfg *ir.Config) (cloud.Provider, error) {
	key := providerKey(cfg)

	r.mu.RLock()
	p, ok := r.providers[key]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	switch cfg.Provider {
	case "null":
		p = null.New()
	case "aws":
		awsCfg, err := r.AWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p = awsprovider.New(awsCfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.providers[key]; ok {
		return existing, nil
	}
	r.providers[key] = p
	return p, nil
}

// AWSConfig returns the SDK configuration for cfg's region and profile.
// It is shared by the EC2, SSM, S3 and DynamoDB clients.
func (r *Registry) AWSConfig(ctx context.Context, cfg *ir.Config) (aws.Config, error) {
	key := cfg.Region + "/" + cfg.Profile

	r.mu.RLock()
	awsCfg, ok := r.awsConfigs[key]
	r.mu.RUnlock()
	if ok {
		return awsCfg, nil
	}

	awsCfg, err := r.LoadAWSConfig(ctx, cfg.Region, cfg.Profile)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config for region %s: %w", cfg.Region, err)
	}

	r.mu.Lock()
	r.awsConfigs[key] = awsCfg
	r.mu.Unlock()
	return awsCfg, nil
}

func providerKey(cfg *ir.Config) string {
	if cfg.Provider == "aws" {
		return "aws/" + cfg.Region + "/" + cfg.Profile
	}
	return cfg.Provider
}
