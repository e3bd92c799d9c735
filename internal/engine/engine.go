package engine

import (
	"time"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// Default polling budgets.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 60
)

// Phase identifies which part of a run an event belongs to.
type Phase string

const (
	PhaseTransition Phase = "transition"
	PhaseCreate     Phase = "create"
	PhaseWait       Phase = "wait"
	PhaseRollback   Phase = "rollback"
)

// Event status values.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Event represents a progress event during a run.
type Event struct {
	RunID      string
	Step       string
	Kind       cloud.Kind
	ResourceID string
	Phase      Phase
	State      RunState // set for PhaseTransition
	Status     string   // "started", "completed", "failed"
	Duration   time.Duration
	Err        error
}

// EventCallback is called for each event if set.
type EventCallback func(event Event)

// PollBudget bounds a polling loop.
type PollBudget struct {
	Interval    time.Duration
	MaxAttempts int
}

// Engine drives provisioning runs against a single provider.
type Engine struct {
	cloud cloud.Provider

	Readiness   PollBudget   // waiting for the instance to run
	Termination PollBudget   // waiting for a terminated instance during rollback
	Retry       *RetryPolicy // retries of transient errors during rollback
	OnEvent     EventCallback
}

// NewEngine returns an engine with default budgets.
func NewEngine(p cloud.Provider) *Engine {
	return &Engine{
		cloud:       p,
		Readiness:   PollBudget{Interval: DefaultPollInterval, MaxAttempts: DefaultMaxAttempts},
		Termination: PollBudget{Interval: DefaultPollInterval, MaxAttempts: DefaultMaxAttempts},
		Retry:       DefaultRetryPolicy(),
	}
}

func (e *Engine) emit(event Event) {
	if e.OnEvent != nil {
		e.OnEvent(event)
	}
}
