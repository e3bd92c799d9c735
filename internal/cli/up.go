package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/picklr-io/stackup/internal/engine"
	"github.com/picklr-io/stackup/internal/logging"
	"github.com/picklr-io/stackup/internal/provider"
)

var (
	upProperties map[string]string
	upProvider   string
	upJSON       bool
)

var upCmd = &cobra.Command{
	Use:   "up [path]",
	Short: "Provision the stack",
	Long: `Creates the network, security groups and instance described by the
deployment file, then waits for the instance to run.

If any step fails, or the instance never reaches "running", every resource
created so far is removed in reverse order. The command exits non-zero when
the stack is not up.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringToStringVarP(&upProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	upCmd.Flags().StringVar(&upProvider, "provider", "", `Override the configured provider ("aws" or "null")`)
	upCmd.Flags().BoolVar(&upJSON, "json", false, "Print the run summary as JSON")
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	progress := cmd.ErrOrStderr()

	// 1. Load config
	fmt.Fprint(progress, "Loading configuration... ")
	d, err := loadDeployment(ctx, args, upProperties, upProvider)
	if err != nil {
		fmt.Fprintln(progress, "FAILED")
		return err
	}
	fmt.Fprintln(progress, "OK")
	cfg := d.cfg

	p, err := registry.Load(ctx, cfg)
	if err != nil {
		return err
	}

	// 2. Inputs the engine treats as opaque
	userData, err := newBootLoader(d).Load(ctx, cfg.Instance.BootScript)
	if err != nil {
		return err
	}
	if cfg.Instance.ImageParameter != "" {
		resolver, ok := p.(provider.ImageResolver)
		if !ok {
			return fmt.Errorf("provider %s cannot resolve image parameters", cfg.Provider)
		}
		imageID, err := resolver.ResolveImage(ctx, cfg.Instance.ImageParameter)
		if err != nil {
			return err
		}
		logging.Info("resolved image", "parameter", cfg.Instance.ImageParameter, "image", imageID)
		cfg.Instance.ImageID = imageID
	}

	// 3. Lock the stack
	locker, err := newLocker(ctx, d)
	if err != nil {
		return err
	}
	owner := uuid.NewString()
	if err := locker.Lock(ctx, cfg.Stack, owner); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(context.WithoutCancel(ctx), cfg.Stack, owner); err != nil {
			logging.Warn("failed to release stack lock", "stack", cfg.Stack, "error", err)
		}
	}()

	// 4. Provision
	plan := engine.BuildPlan(cfg, userData)
	fmt.Fprintf(progress, "\nProvisioning stack %s in %s (%s)...\n", cfg.Stack, cfg.Region, cfg.Provider)

	eng := newEngine(d, p, progress)
	run := eng.Provision(ctx, plan)
	fmt.Fprintln(progress)

	// 5. Report
	if err := renderRun(cmd.OutOrStdout(), run, upJSON); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if !run.Succeeded() {
		manual := len(run.Unrecorded)
		if run.Rollback != nil {
			manual += len(run.Rollback.Unresolved)
		}
		if manual > 0 {
			return fmt.Errorf("run %s failed; %d resource(s) require manual cleanup", run.ID, manual)
		}
		return fmt.Errorf("run %s failed", run.ID)
	}
	return nil
}
