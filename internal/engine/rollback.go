package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/stackup/internal/logging"
	"github.com/picklr-io/stackup/pkg/cloud"
)

// RollbackResult is the outcome of one rollback pass.
type RollbackResult struct {
	RolledBack []cloud.Resource
	Unresolved []*RollbackStepError
}

// Succeeded reports whether every entry was removed from the cloud.
func (r *RollbackResult) Succeeded() bool {
	return len(r.Unresolved) == 0
}

// Err joins the unresolved step errors, or returns nil.
func (r *RollbackResult) Err() error {
	if len(r.Unresolved) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Unresolved))
	for _, u := range r.Unresolved {
		errs = append(errs, u)
	}
	return fmt.Errorf("%d resource(s) require manual cleanup: %w", len(r.Unresolved), errors.Join(errs...))
}

// Rollback unwinds the ledger newest first. Every entry is attempted once
// (with transient retries) and removed from the ledger whatever the outcome.
// A failed entry never stops the pass.
func (e *Engine) Rollback(ctx context.Context, ledger *Ledger) *RollbackResult {
	return e.rollback(ctx, "", ledger)
}

func (e *Engine) rollback(ctx context.Context, runID string, ledger *Ledger) *RollbackResult {
	result := &RollbackResult{}

	for res := range ledger.Reverse() {
		start := time.Now()
		logging.Info("rolling back", "run", runID, "kind", res.Kind, "id", res.ID)
		e.emit(Event{RunID: runID, Step: res.Name, Kind: res.Kind, ResourceID: res.ID, Phase: PhaseRollback, Status: StatusStarted})

		err := e.compensate(ctx, res)
		ledger.Remove(res.ID)

		if err != nil {
			stepErr := &RollbackStepError{Resource: res, Err: err}
			result.Unresolved = append(result.Unresolved, stepErr)
			logging.Error("rollback failed", "run", runID, "kind", res.Kind, "id", res.ID, "error", err)
			e.emit(Event{RunID: runID, Step: res.Name, Kind: res.Kind, ResourceID: res.ID, Phase: PhaseRollback, Status: StatusFailed, Duration: time.Since(start), Err: stepErr})
			continue
		}

		result.RolledBack = append(result.RolledBack, res)
		e.emit(Event{RunID: runID, Step: res.Name, Kind: res.Kind, ResourceID: res.ID, Phase: PhaseRollback, Status: StatusCompleted, Duration: time.Since(start)})
	}

	return result
}

// compensate undoes the creation of one resource.
func (e *Engine) compensate(ctx context.Context, res cloud.Resource) error {
	switch res.Kind {
	case cloud.KindInstance:
		if err := e.call(ctx, func() error { return e.cloud.TerminateInstance(ctx, res.ID) }); err != nil {
			return fmt.Errorf("terminate: %w", err)
		}
		return NewWaiter(e.cloud, e.Termination).WaitUntilTerminated(ctx, res.ID)

	case cloud.KindSecurityGroup:
		return e.call(ctx, func() error { return e.cloud.DeleteSecurityGroup(ctx, res.ID) })

	case cloud.KindRouteTable:
		return e.call(ctx, func() error { return e.cloud.DeleteRouteTable(ctx, res.ID) })

	case cloud.KindGateway:
		if networkID := res.Attr(cloud.AttrNetworkID); networkID != "" {
			if err := e.call(ctx, func() error { return e.cloud.DetachGateway(ctx, res.ID, networkID) }); err != nil {
				return fmt.Errorf("detach from %s: %w", networkID, err)
			}
		}
		return e.call(ctx, func() error { return e.cloud.DeleteGateway(ctx, res.ID) })

	case cloud.KindSubnet:
		return e.call(ctx, func() error { return e.cloud.DeleteSubnet(ctx, res.ID) })

	case cloud.KindNetwork:
		return e.call(ctx, func() error { return e.cloud.DeleteNetwork(ctx, res.ID) })

	default:
		return fmt.Errorf("no compensating action for kind %q", res.Kind)
	}
}

// call runs a compensating request under the retry policy. Not-found means
// the resource is already gone.
func (e *Engine) call(ctx context.Context, fn func() error) error {
	policy := e.Retry
	if policy == nil {
		policy = NoRetry()
	}
	err := RetryWithBackoff(ctx, policy, fn, IsTransientError)
	if errors.Is(err, cloud.ErrNotFound) {
		return nil
	}
	return err
}
