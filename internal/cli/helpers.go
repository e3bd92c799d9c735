package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/picklr-io/stackup/internal/bootscript"
	"github.com/picklr-io/stackup/internal/engine"
	"github.com/picklr-io/stackup/internal/eval"
	"github.com/picklr-io/stackup/internal/ir"
	"github.com/picklr-io/stackup/internal/lock"
	"github.com/picklr-io/stackup/internal/provider"
	"github.com/picklr-io/stackup/internal/report"
	"github.com/picklr-io/stackup/pkg/cloud"
)

// registry is shared by every command in the process, so an in-memory
// cloud survives from one command to the next.
var registry = provider.NewRegistry()

// deployment is an evaluated configuration and the directory it came from.
type deployment struct {
	dir string
	cfg *ir.Config
}

// resolveEntryPoint maps an optional path argument to a project directory
// and entry file.
func resolveEntryPoint(args []string) (string, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint := eval.DefaultEntryPoint

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}

		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// loadDeployment evaluates the configuration named by args. A non-empty
// providerName replaces the configured provider.
func loadDeployment(ctx context.Context, args []string, properties map[string]string, providerName string) (*deployment, error) {
	wd, entryPoint, err := resolveEntryPoint(args)
	if err != nil {
		return nil, err
	}

	cfg, err := eval.NewEvaluator(wd).LoadConfig(ctx, entryPoint, properties)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if providerName != "" {
		cfg.Provider = providerName
	}
	return &deployment{dir: wd, cfg: cfg}, nil
}

// newEngine builds an engine with the configured budgets. Progress is
// written to progress when it is non-nil.
func newEngine(d *deployment, p cloud.Provider, progress io.Writer) *engine.Engine {
	cfg := d.cfg
	eng := engine.NewEngine(p)
	eng.Readiness = engine.PollBudget{Interval: cfg.Readiness.PollInterval(), MaxAttempts: cfg.Readiness.MaxAttempts}
	eng.Termination = engine.PollBudget{Interval: cfg.Termination.PollInterval(), MaxAttempts: cfg.Termination.MaxAttempts}
	eng.Retry = &engine.RetryPolicy{
		MaxRetries: cfg.Rollback.Retries,
		BaseDelay:  cfg.Rollback.Delay(),
		MaxDelay:   engine.DefaultRetryPolicy().MaxDelay,
	}
	if progress != nil {
		eng.OnEvent = progressPrinter(progress)
	}
	return eng
}

// progressPrinter renders engine events as one line each.
func progressPrinter(w io.Writer) engine.EventCallback {
	return func(ev engine.Event) {
		switch {
		case ev.Phase == engine.PhaseTransition:
			return
		case ev.Phase == engine.PhaseWait && ev.Status == engine.StatusStarted:
			fmt.Fprintf(w, "  ... waiting for %s to run\n", ev.ResourceID)
			return
		case ev.Status == engine.StatusStarted:
			return
		}

		symbol, color := "+", colorGreen
		if ev.Phase == engine.PhaseRollback {
			symbol, color = "-", colorYellow
		}
		if ev.Phase == engine.PhaseWait {
			symbol = "="
		}
		if ev.Status == engine.StatusFailed {
			symbol, color = "!", colorRed
		}

		line := fmt.Sprintf("  %s %-24s %-22s (%s)", symbol, ev.Step, ev.ResourceID, ev.Duration.Round(time.Millisecond))
		if ev.Err != nil {
			line += ": " + ev.Err.Error()
		}
		fmt.Fprintf(w, "%s%s%s\n", colorize(color), line, colorize(colorReset))
	}
}

// newLocker picks the stack lock for d. In-memory runs are not locked.
func newLocker(ctx context.Context, d *deployment) (lock.Locker, error) {
	cfg := d.cfg
	if cfg.Provider == "null" {
		return lock.Noop{}, nil
	}
	if cfg.Lock.Table != "" {
		awsCfg, err := registry.AWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return lock.NewDynamoDB(awsCfg, cfg.Lock.Table), nil
	}
	dir := cfg.Lock.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(d.dir, dir)
	}
	l := lock.NewFile(dir)
	l.StaleAfter = lockStaleAfter(cfg)
	return l, nil
}

// lockStaleAfter returns how old a lock file must be before another run may
// take it over: twice the longest a run can spend polling, and never less
// than lock.DefaultStaleAfter.
func lockStaleAfter(cfg *ir.Config) time.Duration {
	polling := cfg.Readiness.PollInterval()*time.Duration(cfg.Readiness.MaxAttempts) +
		cfg.Termination.PollInterval()*time.Duration(cfg.Termination.MaxAttempts)
	return max(lock.DefaultStaleAfter, 2*polling)
}

// newBootLoader resolves boot scripts relative to the deployment, with S3
// access through the deployment's AWS credentials.
func newBootLoader(d *deployment) *bootscript.Loader {
	return &bootscript.Loader{
		Dir: d.dir,
		S3: func(ctx context.Context) (bootscript.ObjectGetter, error) {
			awsCfg, err := registry.AWSConfig(ctx, d.cfg)
			if err != nil {
				return nil, err
			}
			return s3.NewFromConfig(awsCfg), nil
		},
	}
}

// renderRun writes the run summary as text or JSON.
func renderRun(w io.Writer, run *engine.Run, asJSON bool) error {
	if asJSON {
		return report.JSON(w, run)
	}
	return report.Render(w, run, report.Options{Color: !noColor})
}
