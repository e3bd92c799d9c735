package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateProperties map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the deployment file",
	Long: `Evaluates the Pkl deployment file and checks the result: CIDR blocks,
the subnet fitting inside the network, poll budgets and retry settings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVarP(&validateProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	d, err := loadDeployment(cmd.Context(), args, validateProperties, "")
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(out, "\nConfiguration for stack %s is valid!\n", d.cfg.Stack)
	return nil
}
