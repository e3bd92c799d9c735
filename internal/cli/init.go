package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/picklr-io/stackup/internal/eval"
	"github.com/picklr-io/stackup/internal/ir"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a new deployment",
	Long:  `Writes a starter main.pkl with the default WordPress stack and ignores the lock directory.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	mainPkl := filepath.Join(dir, eval.DefaultEntryPoint)
	if _, err := os.Stat(mainPkl); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(mainPkl, []byte(eval.Template), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", mainPkl, err)
		}
		fmt.Fprintf(out, "Created %s\n", mainPkl)
	} else {
		fmt.Fprintf(out, "%s already exists, leaving it unchanged\n", mainPkl)
	}

	gitignore := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignore); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(gitignore, []byte(ir.DefaultLockDir+"/\n"), 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", gitignore, err)
		}
		fmt.Fprintf(out, "Created %s\n", gitignore)
	}

	fmt.Fprintln(out, "\nStackup initialized successfully!")
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintf(out, "  1. Put your boot script next to main.pkl (default %s)\n", ir.DefaultBootScript)
	fmt.Fprintln(out, "  2. Run 'stackup plan' to see what will be created")
	fmt.Fprintln(out, "  3. Run 'stackup up' to create the stack")

	return nil
}
