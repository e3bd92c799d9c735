package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picklr-io/stackup/internal/engine"
	"github.com/picklr-io/stackup/internal/ir"
)

var (
	planProperties map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show the provisioning steps",
	Long: `Prints the steps 'stackup up' will run, in order, with the steps
each one depends on. Nothing is created.

A failed run rolls back the resources in the opposite order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	d, err := loadDeployment(cmd.Context(), args, planProperties, "")
	if err != nil {
		return err
	}

	plan := engine.BuildPlan(d.cfg, nil)
	dag, err := engine.BuildDAG(plan.Steps)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	renderPlan(cmd.OutOrStdout(), d.cfg, dag)
	return nil
}

// renderPlan prints the creation order of dag.
func renderPlan(w io.Writer, cfg *ir.Config, dag *engine.DAG) {
	fmt.Fprintf(w, "Stack %s (%s, %s)\n\n", cfg.Stack, cfg.Provider, cfg.Region)

	created := 0
	for i, name := range dag.CreationOrder() {
		step := dag.Step(name)
		what := "configure"
		if step.Kind != "" {
			what = "create " + string(step.Kind)
			created++
		}
		line := fmt.Sprintf("%2d. %s+ %-24s%s %s", i+1, colorize(colorGreen), name, colorize(colorReset), what)
		if deps := dag.Dependencies(name); len(deps) > 0 {
			line += " (after " + strings.Join(deps, ", ") + ")"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nPlan: %d resource(s) to create in %d step(s).\n", created, len(dag.CreationOrder()))
	fmt.Fprintf(w, "Instance: %s from %s, key %s, boot script %s\n",
		cfg.Instance.InstanceType, imageDescription(cfg.Instance), cfg.Instance.KeyName, cfg.Instance.BootScript)
}

func imageDescription(i *ir.InstanceConfig) string {
	if i.ImageParameter != "" {
		return i.ImageParameter
	}
	return i.ImageID
}
