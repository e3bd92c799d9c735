// Package report renders the outcome of a run for operators.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/picklr-io/stackup/internal/engine"
	"github.com/picklr-io/stackup/pkg/cloud"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// Options controls text rendering.
type Options struct {
	Color bool
}

func (o Options) paint(color, s string) string {
	if !o.Color {
		return s
	}
	return color + s + colorReset
}

// Render writes a human-readable summary of run to w.
func Render(w io.Writer, run *engine.Run, opts Options) error {
	pw := &printer{w: w}

	if run.Succeeded() {
		renderSuccess(pw, run, opts)
	} else {
		renderFailure(pw, run, opts)
	}
	pw.printf("\nRun %s finished in %s\n", run.ID, run.Duration().Round(time.Millisecond))
	return pw.err
}

func renderSuccess(pw *printer, run *engine.Run, opts Options) {
	switch run.Operation {
	case engine.OperationTeardown:
		pw.printf("%s\n", opts.paint(colorGreen, fmt.Sprintf("Stack %s torn down.", run.Stack)))
		if run.Rollback != nil && len(run.Rollback.RolledBack) > 0 {
			pw.printf("\nRemoved:\n")
			renderTable(pw, run.Rollback.RolledBack)
		} else {
			pw.printf("\nNothing to remove.\n")
		}
		return
	}

	pw.printf("%s\n", opts.paint(colorGreen, fmt.Sprintf("Stack %s is up.", run.Stack)))
	if run.Instance != nil {
		if run.Instance.PublicIP != "" {
			pw.printf("\n  Public address:  %s\n", run.Instance.PublicIP)
		}
		if run.Instance.PrivateIP != "" {
			pw.printf("  Private address: %s\n", run.Instance.PrivateIP)
		}
	}
	pw.printf("\nResources:\n")
	renderTable(pw, run.Created)
}

func renderFailure(pw *printer, run *engine.Run, opts Options) {
	pw.printf("%s\n", opts.paint(colorRed, fmt.Sprintf("Stack %s %s failed.", run.Stack, run.Operation)))
	if run.FailedStep != "" {
		pw.printf("\n  Failed step: %s\n", run.FailedStep)
	}
	if run.Err != nil {
		pw.printf("  Error:       %v\n", run.Err)
	}
	if len(run.Unrecorded) > 0 {
		pw.printf("\n%s\n", opts.paint(colorYellow, fmt.Sprintf("%d resource(s) were created but not tracked and require manual cleanup:", len(run.Unrecorded))))
		renderTable(pw, run.Unrecorded)
	}

	if run.Rollback == nil {
		if run.Ledger.Len() > 0 {
			pw.printf("\n%s\n", opts.paint(colorYellow, "Rollback was not performed. These resources still exist:"))
			renderTable(pw, run.Ledger.Entries())
		}
		return
	}

	if len(run.Rollback.RolledBack) > 0 {
		pw.printf("\nRolled back:\n")
		renderTable(pw, run.Rollback.RolledBack)
	}
	if len(run.Rollback.Unresolved) > 0 {
		pw.printf("\n%s\n", opts.paint(colorYellow, fmt.Sprintf("%d resource(s) require manual cleanup:", len(run.Rollback.Unresolved))))
		tw := tabwriter.NewWriter(pw, 0, 4, 2, ' ', 0)
		for _, u := range run.Rollback.Unresolved {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%v\n", u.Resource.Kind, u.Resource.ID, u.Resource.Name, u.Err)
		}
		tw.Flush()
	} else if run.CleanedUp() {
		pw.printf("\n%s\n", opts.paint(colorGreen, "All created resources were removed."))
	}
}

func renderTable(pw *printer, resources []cloud.Resource) {
	tw := tabwriter.NewWriter(pw, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  KIND\tID\tNAME")
	for _, res := range resources {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", res.Kind, res.ID, res.Name)
	}
	tw.Flush()
}

// printer remembers the first write error so rendering code stays linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	n, err := p.w.Write(b)
	p.err = err
	return n, err
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p, format, args...)
}

// Summary is the JSON form of a run.
type Summary struct {
	RunID      string            `json:"run_id"`
	Stack      string            `json:"stack"`
	Operation  string            `json:"operation"`
	State      engine.RunState   `json:"state"`
	History    []engine.RunState `json:"history"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	DurationMS int64             `json:"duration_ms"`
	PublicIP   string            `json:"public_ip,omitempty"`
	PrivateIP  string            `json:"private_ip,omitempty"`
	Resources  []ResourceJSON    `json:"resources"`
	FailedStep string            `json:"failed_step,omitempty"`
	Error      string            `json:"error,omitempty"`
	Rollback   *RollbackJSON     `json:"rollback,omitempty"`
	Remaining  []ResourceJSON    `json:"remaining,omitempty"`
	Unrecorded []ResourceJSON    `json:"unrecorded,omitempty"`
}

type ResourceJSON struct {
	Kind  cloud.Kind `json:"kind"`
	ID    string     `json:"id"`
	Name  string     `json:"name,omitempty"`
	Error string     `json:"error,omitempty"`
}

type RollbackJSON struct {
	RolledBack []ResourceJSON `json:"rolled_back"`
	Unresolved []ResourceJSON `json:"unresolved"`
}

// NewSummary converts run to its JSON form.
func NewSummary(run *engine.Run) *Summary {
	s := &Summary{
		RunID:      run.ID,
		Stack:      run.Stack,
		Operation:  run.Operation,
		State:      run.State,
		History:    run.History,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		DurationMS: run.Duration().Milliseconds(),
		Resources:  resourcesJSON(run.Created),
		FailedStep: run.FailedStep,
	}
	if run.Instance != nil {
		s.PublicIP = run.Instance.PublicIP
		s.PrivateIP = run.Instance.PrivateIP
	}
	if run.Err != nil {
		s.Error = run.Err.Error()
	}
	if run.Rollback != nil {
		rb := &RollbackJSON{
			RolledBack: resourcesJSON(run.Rollback.RolledBack),
			Unresolved: make([]ResourceJSON, 0, len(run.Rollback.Unresolved)),
		}
		for _, u := range run.Rollback.Unresolved {
			r := resourceJSON(u.Resource)
			r.Error = unwrapStep(u).Error()
			rb.Unresolved = append(rb.Unresolved, r)
		}
		s.Rollback = rb
	}
	if run.Ledger != nil && run.Ledger.Len() > 0 {
		s.Remaining = resourcesJSON(run.Ledger.Entries())
	}
	if len(run.Unrecorded) > 0 {
		s.Unrecorded = resourcesJSON(run.Unrecorded)
	}
	return s
}

// JSON writes run as indented JSON to w.
func JSON(w io.Writer, run *engine.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewSummary(run))
}

func resourcesJSON(resources []cloud.Resource) []ResourceJSON {
	out := make([]ResourceJSON, 0, len(resources))
	for _, res := range resources {
		out = append(out, resourceJSON(res))
	}
	return out
}

func resourceJSON(res cloud.Resource) ResourceJSON {
	return ResourceJSON{Kind: res.Kind, ID: res.ID, Name: res.Name}
}

// unwrapStep drops the RollbackStepError prefix, which repeats the resource.
func unwrapStep(err *engine.RollbackStepError) error {
	if inner := errors.Unwrap(err); inner != nil {
		return inner
	}
	return err
}
