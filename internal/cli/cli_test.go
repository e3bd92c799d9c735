package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/stackup/internal/engine"
	"github.com/picklr-io/stackup/internal/ir"
	"github.com/picklr-io/stackup/internal/lock"
	"github.com/picklr-io/stackup/internal/report"
	"github.com/picklr-io/stackup/pkg/cloud"
)

func TestColorize(t *testing.T) {
	// When noColor is false, colorize should return the code
	noColor = false
	assert.Equal(t, "\033[31m", colorize("\033[31m"))

	// When noColor is true, colorize should return empty string
	noColor = true
	assert.Equal(t, "", colorize("\033[31m"))

	// Reset
	noColor = false
}

func TestResolveEntryPoint(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prod.pkl")
	require.NoError(t, os.WriteFile(file, []byte("stack = \"prod\"\n"), 0644))

	wd, entry, err := resolveEntryPoint([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, wd)
	assert.Equal(t, "main.pkl", entry)

	wd, entry, err = resolveEntryPoint([]string{file})
	require.NoError(t, err)
	assert.Equal(t, dir, wd)
	assert.Equal(t, "prod.pkl", entry)

	_, _, err = resolveEntryPoint([]string{filepath.Join(dir, "missing.pkl")})
	assert.ErrorContains(t, err, "failed to stat path")
}

func defaultDeployment(t *testing.T, provider string) *deployment {
	t.Helper()
	cfg := &ir.Config{Provider: provider}
	cfg.ApplyDefaults()
	return &deployment{dir: t.TempDir(), cfg: cfg}
}

func TestRenderPlan(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	d := defaultDeployment(t, "aws")
	dag, err := engine.BuildDAG(engine.BuildPlan(d.cfg, nil).Steps)
	require.NoError(t, err)

	var buf bytes.Buffer
	renderPlan(&buf, d.cfg, dag)
	out := buf.String()

	assert.Contains(t, out, "Stack wordpress (aws, us-west-2)")
	assert.Contains(t, out, " 1. + network")
	assert.Contains(t, out, "create Network")
	assert.Contains(t, out, "create SecurityGroup")
	assert.Contains(t, out, "(after network)")
	assert.Contains(t, out, "12. + instance")
	assert.Contains(t, out, "Plan: 7 resource(s) to create in 12 step(s).")
	assert.Contains(t, out, "t2.micro from ami-0747e613a2a1ff483")
}

func TestWriteDOT(t *testing.T) {
	d := defaultDeployment(t, "aws")
	dag, err := engine.BuildDAG(engine.BuildPlan(d.cfg, nil).Steps)
	require.NoError(t, err)

	var buf bytes.Buffer
	writeDOT(&buf, dag)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "digraph stackup {\n"))
	assert.True(t, strings.HasSuffix(out, "}\n"))
	assert.Contains(t, out, `"subnet" -> "network";`)
	assert.Contains(t, out, `"default-route" [style = dashed];`)
}

func TestProgressPrinter(t *testing.T) {
	noColor = true
	defer func() { noColor = false }()

	var buf bytes.Buffer
	emit := progressPrinter(&buf)

	emit(engine.Event{Phase: engine.PhaseTransition, State: engine.StateCreating, Status: engine.StatusCompleted})
	emit(engine.Event{Step: "network", Phase: engine.PhaseCreate, Status: engine.StatusStarted})
	emit(engine.Event{Step: "network", ResourceID: "vpc-1", Phase: engine.PhaseCreate, Status: engine.StatusCompleted, Duration: time.Second})
	emit(engine.Event{Step: "instance", ResourceID: "i-1", Phase: engine.PhaseWait, Status: engine.StatusStarted})
	emit(engine.Event{Step: "subnet", ResourceID: "subnet-1", Phase: engine.PhaseRollback, Status: engine.StatusFailed, Err: errors.New("DependencyViolation")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "+ network")
	assert.Contains(t, lines[0], "vpc-1")
	assert.Contains(t, lines[0], "(1s)")
	assert.Contains(t, lines[1], "waiting for i-1")
	assert.Contains(t, lines[2], "! subnet")
	assert.Contains(t, lines[2], ": DependencyViolation")
}

func TestNewLocker(t *testing.T) {
	ctx := context.Background()

	l, err := newLocker(ctx, defaultDeployment(t, "null"))
	require.NoError(t, err)
	assert.IsType(t, lock.Noop{}, l)

	d := defaultDeployment(t, "aws")
	l, err = newLocker(ctx, d)
	require.NoError(t, err)
	require.IsType(t, &lock.File{}, l)
	assert.Equal(t, filepath.Join(d.dir, ".stackup"), l.(*lock.File).Dir)
	assert.Equal(t, lock.DefaultStaleAfter, l.(*lock.File).StaleAfter)

	// A long readiness budget keeps the lock from being taken over mid-run.
	d.cfg.Readiness = &ir.PollConfig{Interval: "1m", MaxAttempts: 60}
	l, err = newLocker(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 130*time.Minute, l.(*lock.File).StaleAfter)

	saved := registry.LoadAWSConfig
	defer func() { registry.LoadAWSConfig = saved }()
	registry.LoadAWSConfig = func(ctx context.Context, region, profile string) (aws.Config, error) {
		return aws.Config{Region: region}, nil
	}
	d.cfg.Region = "ap-southeast-2"
	d.cfg.Lock = &ir.LockConfig{Table: "stackup-locks"}
	l, err = newLocker(ctx, d)
	require.NoError(t, err)
	assert.IsType(t, &lock.DynamoDB{}, l)
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	}()
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")

	out, err := execute(t, "", "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Stackup initialized successfully!")

	data, err := os.ReadFile(filepath.Join(dir, "main.pkl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `stack = "wordpress"`)

	ignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".stackup/\n", string(ignore))

	out, err = execute(t, "", "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stackup version dev")
}

// writeNullDeployment writes a deployment that runs against the in-memory cloud.
func writeNullDeployment(t *testing.T, stack string) string {
	t.Helper()
	if _, err := exec.LookPath("pkl"); err != nil {
		t.Skip("pkl CLI not installed")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.pkl"), []byte(`
stack = "`+stack+`"
provider = "null"
readiness = new Dynamic {
  interval = "1ms"
  maxAttempts = 5
}
termination = new Dynamic {
  interval = "1ms"
  maxAttempts = 5
}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dockerWPuserdata.sh"), []byte("#!/bin/bash\n"), 0644))
	return dir
}

func TestUpAndTeardown_Null(t *testing.T) {
	dir := writeNullDeployment(t, "cli-e2e")
	defer func() { upJSON, teardownJSON, teardownAutoApprove = false, false, false }()

	out, err := execute(t, "", "up", dir, "--json")
	require.NoError(t, err)

	var up report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &up))
	assert.Equal(t, engine.StateSucceeded, up.State)
	assert.Len(t, up.Resources, 7)
	assert.NotEmpty(t, up.PublicIP)

	// Declining the prompt leaves everything in place.
	_, err = execute(t, "n\n", "teardown", dir)
	require.NoError(t, err)

	out, err = execute(t, "", "teardown", dir, "--json", "--auto-approve")
	require.NoError(t, err)

	var down report.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &down))
	assert.Equal(t, engine.StateSucceeded, down.State)
	require.NotNil(t, down.Rollback)
	assert.Len(t, down.Rollback.RolledBack, 7)
	assert.Equal(t, cloud.KindInstance, down.Rollback.RolledBack[0].Kind)
	assert.Equal(t, cloud.KindNetwork, down.Rollback.RolledBack[6].Kind)
}
