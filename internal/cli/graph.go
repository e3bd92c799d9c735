package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/picklr-io/stackup/internal/engine"
)

var graphProperties map[string]string

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the step dependency graph in DOT format",
	Long: `Generates a visual representation of the provisioning step graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  stackup graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringToStringVarP(&graphProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	d, err := loadDeployment(cmd.Context(), args, graphProperties, "")
	if err != nil {
		return err
	}

	dag, err := engine.BuildDAG(engine.BuildPlan(d.cfg, nil).Steps)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	writeDOT(cmd.OutOrStdout(), dag)
	return nil
}

// writeDOT prints dag with edges pointing from a step to its dependencies.
func writeDOT(w io.Writer, dag *engine.DAG) {
	fmt.Fprintln(w, "digraph stackup {")
	fmt.Fprintln(w, "  rankdir = \"BT\";")
	fmt.Fprintln(w, "  node [shape = rect];")
	fmt.Fprintln(w)

	for _, name := range dag.CreationOrder() {
		if kind := dag.Step(name).Kind; kind != "" {
			fmt.Fprintf(w, "  %q [label = %q];\n", name, name+"\n"+string(kind))
		} else {
			fmt.Fprintf(w, "  %q [style = dashed];\n", name)
		}
	}
	fmt.Fprintln(w)

	for _, name := range dag.CreationOrder() {
		for _, dep := range dag.Dependencies(name) {
			fmt.Fprintf(w, "  %q -> %q;\n", name, dep)
		}
	}

	fmt.Fprintln(w, "}")
}
