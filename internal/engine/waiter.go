package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/stackup/internal/logging"
	"github.com/picklr-io/stackup/pkg/cloud"
)

// Waiter polls an instance until it reaches a target state. Consecutive
// queries are at least Interval apart.
type Waiter struct {
	compute cloud.ComputeManager
	budget  PollBudget
}

// NewWaiter returns a waiter bounded by budget. Non-positive values fall back
// to the defaults.
func NewWaiter(compute cloud.ComputeManager, budget PollBudget) *Waiter {
	if budget.Interval <= 0 {
		budget.Interval = DefaultPollInterval
	}
	if budget.MaxAttempts <= 0 {
		budget.MaxAttempts = DefaultMaxAttempts
	}
	return &Waiter{compute: compute, budget: budget}
}

// WaitUntilRunning polls until the instance reports running and returns that
// description. It fails fast with ErrInstanceFailed on a failure state and
// returns ErrNotReadyTimeout once the attempt budget is spent. A not-found
// answer right after launch is treated as pending.
func (w *Waiter) WaitUntilRunning(ctx context.Context, instanceID string) (*cloud.Instance, error) {
	var last cloud.InstanceState
	for attempt := 1; attempt <= w.budget.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, w.budget.Interval); err != nil {
				return nil, fmt.Errorf("waiting for %s: %w", instanceID, err)
			}
		}

		inst, err := w.compute.DescribeInstance(ctx, instanceID)
		switch {
		case errors.Is(err, cloud.ErrNotFound):
			logging.Debug("instance not visible yet", "instance", instanceID, "attempt", attempt)
			continue
		case err != nil && IsTransientError(err):
			logging.Debug("transient describe error", "instance", instanceID, "attempt", attempt, "error", err)
			continue
		case err != nil:
			return nil, fmt.Errorf("describe instance %s: %w", instanceID, err)
		}

		last = inst.State
		logging.Debug("polled instance", "instance", instanceID, "state", inst.State, "attempt", attempt)

		switch inst.State {
		case cloud.InstanceRunning:
			return inst, nil
		case cloud.InstanceShuttingDown, cloud.InstanceTerminated, cloud.InstanceStopping, cloud.InstanceStopped:
			return nil, fmt.Errorf("%w: %s is %s", ErrInstanceFailed, instanceID, inst.State)
		}
	}

	if last == "" {
		last = "unknown"
	}
	return nil, fmt.Errorf("%w: %s still %s after %d attempts", ErrNotReadyTimeout, instanceID, last, w.budget.MaxAttempts)
}

// WaitUntilTerminated polls until the instance reports terminated or is no
// longer known to the provider.
func (w *Waiter) WaitUntilTerminated(ctx context.Context, instanceID string) error {
	for attempt := 1; attempt <= w.budget.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, w.budget.Interval); err != nil {
				return fmt.Errorf("waiting for %s: %w", instanceID, err)
			}
		}

		inst, err := w.compute.DescribeInstance(ctx, instanceID)
		switch {
		case errors.Is(err, cloud.ErrNotFound):
			return nil
		case err != nil && IsTransientError(err):
			continue
		case err != nil:
			return fmt.Errorf("describe instance %s: %w", instanceID, err)
		}

		logging.Debug("polled instance", "instance", instanceID, "state", inst.State, "attempt", attempt)
		if inst.State == cloud.InstanceTerminated {
			return nil
		}
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrTerminationTimeout, instanceID, w.budget.MaxAttempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
