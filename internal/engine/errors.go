package engine

import (
	"errors"
	"fmt"

	"github.com/picklr-io/stackup/pkg/cloud"
)

var (
	// ErrNotReadyTimeout means the instance never reached "running" within
	// the readiness budget.
	ErrNotReadyTimeout = errors.New("instance not ready")

	// ErrInstanceFailed means the provider reported a failure state
	// (shutting-down, terminated, stopping, stopped) while waiting for "running".
	ErrInstanceFailed = errors.New("instance entered a failure state")

	// ErrTerminationTimeout means a terminated instance never reached the
	// "terminated" state within the termination budget.
	ErrTerminationTimeout = errors.New("instance not terminated")

	// ErrDuplicateResource is returned when a resource ID is recorded twice.
	ErrDuplicateResource = errors.New("resource already recorded")
)

// CreationError is returned when a step's creation action fails.
type CreationError struct {
	Step string
	Kind cloud.Kind
	Err  error
}

func (e *CreationError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("step %s (%s) failed: %v", e.Step, e.Kind, e.Err)
	}
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// RollbackStepError records a compensating action that failed for one
// ledger entry. The resource is left for manual cleanup.
type RollbackStepError struct {
	Resource cloud.Resource
	Err      error
}

func (e *RollbackStepError) Error() string {
	return fmt.Sprintf("rollback of %s failed: %v", e.Resource, e.Err)
}

func (e *RollbackStepError) Unwrap() error {
	return e.Err
}
