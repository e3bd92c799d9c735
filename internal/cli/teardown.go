package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/picklr-io/stackup/internal/logging"
	"github.com/picklr-io/stackup/pkg/cloud"
)

var (
	teardownProperties  map[string]string
	teardownProvider    string
	teardownJSON        bool
	teardownAutoApprove bool
)

var teardownCmd = &cobra.Command{
	Use:   "teardown [path]",
	Short: "Remove every resource tagged with the stack",
	Long: `Finds resources tagged with the stack name and removes them newest
first, the same way a failed 'stackup up' rolls back.

Use it to finish a rollback that left resources behind, or to take down a
stack that is up. Resources that are already gone are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTeardown,
}

func init() {
	teardownCmd.Flags().StringToStringVarP(&teardownProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	teardownCmd.Flags().StringVar(&teardownProvider, "provider", "", `Override the configured provider ("aws" or "null")`)
	teardownCmd.Flags().BoolVar(&teardownJSON, "json", false, "Print the run summary as JSON")
	teardownCmd.Flags().BoolVar(&teardownAutoApprove, "auto-approve", false, "Skip interactive approval before removing resources")
}

func runTeardown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	progress := cmd.ErrOrStderr()

	d, err := loadDeployment(ctx, args, teardownProperties, teardownProvider)
	if err != nil {
		return err
	}
	cfg := d.cfg

	p, err := registry.Load(ctx, cfg)
	if err != nil {
		return err
	}
	discoverer, ok := p.(cloud.Discoverer)
	if !ok {
		return fmt.Errorf("provider %s cannot discover stack resources", cfg.Provider)
	}

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

	fmt.Fprintf(progress, "Discovering resources of stack %s... ", cfg.Stack)
	resources, err := discoverer.Discover(ctx, cfg.Stack)
	if err != nil {
		fmt.Fprintln(progress, "FAILED")
		return fmt.Errorf("failed to discover resources: %w", err)
	}
	fmt.Fprintf(progress, "%d found\n", len(resources))

	if len(resources) > 0 && !teardownAutoApprove {
		fmt.Fprintln(progress, "\nThe following resources will be removed:")
		tw := tabwriter.NewWriter(progress, 0, 4, 2, ' ', 0)
		for _, res := range resources {
			fmt.Fprintf(tw, "%s  - %s\t%s\t%s%s\n", colorize(colorRed), res.Kind, res.ID, res.Name, colorize(colorReset))
		}
		tw.Flush()

		fmt.Fprint(progress, "\nDo you want to remove these resources? (y/n): ")
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "yes" {
			fmt.Fprintln(progress, "Teardown cancelled.")
			return nil
		}
	}

	fmt.Fprintln(progress)
	run := newEngine(d, p, progress).Teardown(ctx, cfg.Stack, resources)
	fmt.Fprintln(progress)

	if err := renderRun(cmd.OutOrStdout(), run, teardownJSON); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if !run.Succeeded() {
		return fmt.Errorf("teardown %s failed: %w", run.ID, run.Err)
	}
	return nil
}
