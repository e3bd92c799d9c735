package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/picklr-io/stackup/internal/logging"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

var (
	logLevel  string
	logFormat string
	noColor   bool
)

var rootCmd = &cobra.Command{
	Use:   "stackup",
	Short: "Provision a single-instance web stack with automatic rollback",
	Long: `Stackup provisions a network, security groups and one instance for a
web application, described in a Pkl deployment file.

Resources are created one at a time. If any step fails, everything created
so far is removed again, newest first, and the report lists anything that
could not be removed.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, logFormat)
		if _, ok := os.LookupEnv("NO_COLOR"); ok {
			noColor = true
		}
	},
}

// ExecuteContext runs the root command with ctx, which commands observe for
// cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(versionCmd)
}

// colorize returns code unless color output is disabled.
func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}
