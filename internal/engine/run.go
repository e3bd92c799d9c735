package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// RunState is the lifecycle state of a run.
type RunState string

// A provisioning run moves PENDING -> CREATING -> WAITING_READY -> SUCCEEDED.
// Any non-terminal state may move to FAILED. There is no way back to CREATING.
const (
	StatePending      RunState = "PENDING"
	StateCreating     RunState = "CREATING"
	StateWaitingReady RunState = "WAITING_READY"
	StateSucceeded    RunState = "SUCCEEDED"
	StateFailed       RunState = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Operation names.
const (
	OperationUp       = "up"
	OperationTeardown = "teardown"
)

// Run is the in-memory record of one provisioning or teardown attempt.
// It is never persisted.
type Run struct {
	ID        string
	Stack     string
	Operation string
	State     RunState
	History   []RunState

	// Ledger holds what still exists. Rollback drains it.
	Ledger *Ledger
	// Created lists every resource recorded during the forward pass.
	Created []cloud.Resource
	// Unrecorded holds resources the provider created but the ledger
	// rejected. Rollback never touches them.
	Unrecorded []cloud.Resource

	// Instance is the refreshed description once the instance is running.
	Instance *cloud.Instance

	FailedStep string
	Err        error
	Rollback   *RollbackResult

	StartedAt  time.Time
	FinishedAt time.Time
}

func newRun(stack, operation string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Stack:     stack,
		Operation: operation,
		State:     StatePending,
		History:   []RunState{StatePending},
		Ledger:    NewLedger(),
		StartedAt: time.Now(),
	}
}

// Succeeded reports whether the run ended in SUCCEEDED.
func (r *Run) Succeeded() bool {
	return r.State == StateSucceeded
}

// Duration returns the wall time of the run so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CleanedUp reports whether a failed run left nothing behind.
func (r *Run) CleanedUp() bool {
	if r.Ledger.Len() > 0 || len(r.Unrecorded) > 0 {
		return false
	}
	return r.Rollback == nil || r.Rollback.Succeeded()
}

func (r *Run) transition(to RunState) bool {
	if r.State.Terminal() || r.State == to {
		return false
	}
	r.State = to
	r.History = append(r.History, to)
	return true
}
