// Package eval evaluates Pkl deployment files into ir.Config.
package eval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"

	"github.com/picklr-io/stackup/internal/ir"
)

// DefaultEntryPoint is the deployment file read when none is given.
const DefaultEntryPoint = "main.pkl"

// Evaluator handles Pkl evaluation into IR types.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// ProjectDir returns the directory relative paths are resolved against.
func (e *Evaluator) ProjectDir() string {
	return e.projectDir
}

// LoadConfig evaluates entryPoint, applies defaults and validates the result.
// properties are exposed to Pkl as read("prop:<name>").
func (e *Evaluator) LoadConfig(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Config, error) {
	cfg, err := e.Evaluate(ctx, entryPoint, properties)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Evaluate returns the raw configuration without defaults.
func (e *Evaluator) Evaluate(ctx context.Context, entryPoint string, properties map[string]string) (*ir.Config, error) {
	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := e.newEvaluator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	path := entryPoint
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.projectDir, path)
	}

	var cfg ir.Config
	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(path), &cfg); err != nil {
		return nil, fmt.Errorf("failed to evaluate config: %w", err)
	}

	return &cfg, nil
}

// newEvaluator uses the project evaluator when the directory is a Pkl
// project, so declared package dependencies resolve.
func (e *Evaluator) newEvaluator(ctx context.Context, opts ...func(*pkl.EvaluatorOptions)) (pkl.Evaluator, error) {
	if _, err := os.Stat(filepath.Join(e.projectDir, "PklProject")); errors.Is(err, os.ErrNotExist) {
		return pkl.NewEvaluator(ctx, opts...)
	}

	u, err := url.Parse("file://" + e.projectDir + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse project directory URL: %w", err)
	}
	return pkl.NewProjectEvaluator(ctx, u, opts...)
}
