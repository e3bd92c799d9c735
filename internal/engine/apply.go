package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/picklr-io/stackup/internal/logging"
	"github.com/picklr-io/stackup/pkg/cloud"
)

// Provision executes the plan and, when the run fails with resources on the
// ledger, rolls them back. Rollback runs to completion even if ctx is
// cancelled.
func (e *Engine) Provision(ctx context.Context, plan *Plan) *Run {
	run := e.Execute(ctx, plan)
	if run.State == StateFailed && run.Ledger.Len() > 0 {
		logging.Warn("provisioning failed, rolling back", "run", run.ID, "step", run.FailedStep, "resources", run.Ledger.Len())
		run.Rollback = e.rollback(context.WithoutCancel(ctx), run.ID, run.Ledger)
		run.FinishedAt = time.Now()
	}
	return run
}

// Execute runs the plan's steps in dependency order, recording each created
// resource on the run's ledger, then waits for the instance to be running.
// It stops at the first failure and does not roll back.
func (e *Engine) Execute(ctx context.Context, plan *Plan) *Run {
	run := newRun(plan.Stack, OperationUp)
	defer func() { run.FinishedAt = time.Now() }()

	log := logging.With("run", run.ID, "stack", plan.Stack)

	dag, err := BuildDAG(plan.Steps)
	if err != nil {
		e.fail(run, "", fmt.Errorf("invalid plan: %w", err))
		return run
	}

	e.transition(run, StateCreating)

	tags := cloud.MergeTags(plan.Tags, map[string]string{cloud.TagRun: run.ID})
	produced := make(map[string]string)
	var instanceStep, instanceID string

	for _, name := range dag.CreationOrder() {
		if err := ctx.Err(); err != nil {
			e.fail(run, name, fmt.Errorf("provisioning cancelled before step %s: %w", name, err))
			return run
		}

		step := dag.Step(name)
		refs := make(map[string]string)
		for _, dep := range dag.Dependencies(name) {
			if id, ok := produced[dep]; ok {
				refs[dep] = id
			}
		}
		sc := &StepContext{Cloud: e.cloud, step: name, refs: refs, tags: tags}

		start := time.Now()
		log.Info("creating", "step", name)
		e.emit(Event{RunID: run.ID, Step: name, Kind: step.Kind, Phase: PhaseCreate, Status: StatusStarted})

		res, err := step.Create(ctx, sc)
		if err == nil && res != nil {
			if err = run.Ledger.Record(*res); err != nil {
				// The resource exists but rollback cannot see it.
				run.Unrecorded = append(run.Unrecorded, *res)
				log.Error("created resource not recorded", "step", name, "kind", res.Kind, "id", res.ID, "error", err)
			}
		}
		if err != nil {
			cerr := &CreationError{Step: name, Kind: step.Kind, Err: err}
			log.Error("step failed", "step", name, "error", err)
			e.emit(Event{RunID: run.ID, Step: name, Kind: step.Kind, Phase: PhaseCreate, Status: StatusFailed, Duration: time.Since(start), Err: cerr})
			e.fail(run, name, cerr)
			return run
		}

		var resourceID string
		if res != nil {
			resourceID = res.ID
			produced[name] = res.ID
			run.Created = append(run.Created, *res)
			if res.Kind == cloud.KindInstance {
				instanceStep, instanceID = name, res.ID
			}
		}
		log.Info("created", "step", name, "id", resourceID, "duration", time.Since(start))
		e.emit(Event{RunID: run.ID, Step: name, Kind: step.Kind, ResourceID: resourceID, Phase: PhaseCreate, Status: StatusCompleted, Duration: time.Since(start)})
	}

	if instanceID != "" {
		e.transition(run, StateWaitingReady)

		start := time.Now()
		log.Info("waiting for instance", "instance", instanceID)
		e.emit(Event{RunID: run.ID, Step: instanceStep, Kind: cloud.KindInstance, ResourceID: instanceID, Phase: PhaseWait, Status: StatusStarted})

		inst, err := NewWaiter(e.cloud, e.Readiness).WaitUntilRunning(ctx, instanceID)
		if err != nil {
			log.Error("instance not ready", "instance", instanceID, "error", err)
			e.emit(Event{RunID: run.ID, Step: instanceStep, Kind: cloud.KindInstance, ResourceID: instanceID, Phase: PhaseWait, Status: StatusFailed, Duration: time.Since(start), Err: err})
			e.fail(run, instanceStep, err)
			return run
		}
		run.Instance = inst
		e.emit(Event{RunID: run.ID, Step: instanceStep, Kind: cloud.KindInstance, ResourceID: instanceID, Phase: PhaseWait, Status: StatusCompleted, Duration: time.Since(start)})
	}

	e.transition(run, StateSucceeded)
	log.Info("provisioning complete", "resources", run.Ledger.Len(), "duration", run.Duration())
	return run
}

// Teardown rolls back resources that already exist, typically discovered
// from stack tags. Resources are ordered by kind before unwinding.
func (e *Engine) Teardown(ctx context.Context, stack string, resources []cloud.Resource) *Run {
	run := newRun(stack, OperationTeardown)
	defer func() { run.FinishedAt = time.Now() }()

	ordered := slices.Clone(resources)
	cloud.SortByCreationOrder(ordered)

	ledger, err := LedgerFrom(ordered)
	if err != nil {
		e.fail(run, "", err)
		return run
	}
	run.Ledger = ledger
	run.Created = ordered

	logging.Info("tearing down", "run", run.ID, "stack", stack, "resources", ledger.Len())
	run.Rollback = e.rollback(ctx, run.ID, ledger)
	if err := run.Rollback.Err(); err != nil {
		e.fail(run, "", err)
		return run
	}
	e.transition(run, StateSucceeded)
	return run
}

func (e *Engine) transition(run *Run, to RunState) {
	from := run.State
	if !run.transition(to) {
		return
	}
	logging.Debug("run state", "run", run.ID, "from", from, "to", to)
	e.emit(Event{RunID: run.ID, Phase: PhaseTransition, State: to, Status: StatusCompleted})
}

func (e *Engine) fail(run *Run, step string, err error) {
	run.FailedStep = step
	run.Err = err
	e.transition(run, StateFailed)
}
