// Package runner drives the step state machine: claim one pending
// step, execute it, advance its status, and finalize its operation.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/loom/internal/executor"
	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

// DefaultMaxSteps caps a single RunAll invocation. It prevents a
// runaway loop from starving other work when steps keep being added.
const DefaultMaxSteps = 1000

// OutcomeKind classifies the result of one RunOne invocation.
type OutcomeKind string

const (
	// OutcomeApplied: a step was claimed and applied.
	OutcomeApplied OutcomeKind = "applied"
	// OutcomeDone: no pending steps remain for the app.
	OutcomeDone OutcomeKind = "done"
	// OutcomeFailed: a step was claimed and failed.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome reports what one RunOne invocation did.
type Outcome struct {
	Kind  OutcomeKind `json:"kind"`
	Step  *spec.Step  `json:"step,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Runner executes claimed steps one at a time.
//
// Steps for one operation execute strictly in ascending index order
// even across separate invocations, because each invocation claims
// the lowest-index pending step. Steps for different apps are fully
// independent.
type Runner struct {
	store    *store.Store
	exec     *executor.Executor
	maxSteps int
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxSteps caps the number of steps one RunAll invocation may
// execute. Default: DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(r *Runner) {
		r.maxSteps = n
	}
}

// New creates a Runner over the given store and executor.
func New(s *store.Store, exec *executor.Executor, opts ...Option) *Runner {
	r := &Runner{
		store:    s,
		exec:     exec,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOne claims and executes exactly one pending step for the app.
//
// The claim is a conditional pending → processing transition; losing a
// race re-selects inside the store. Once a step is processing there is
// no cancellation primitive - a caller wanting a timeout must layer it
// around this invocation.
func (r *Runner) RunOne(ctx context.Context, appID string) (Outcome, error) {
	step, err := r.store.ClaimNextStep(ctx, appID)
	if errors.Is(err, store.ErrNoPendingSteps) {
		return Outcome{Kind: OutcomeDone}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("run one: %w", err)
	}

	slog.Debug("step claimed",
		"step_id", step.ID,
		"operation_id", step.OperationID,
		"app_id", step.AppID,
		"index", step.Index,
		"kind", step.Kind,
	)

	// Claiming an operation's first step flips it to processing.
	// Idempotent: later steps of the same operation are a no-op.
	if err := r.store.MarkOperationProcessing(ctx, step.OperationID); err != nil {
		return Outcome{}, fmt.Errorf("run one: %w", err)
	}

	payload, err := r.resolvePayload(ctx, step)
	if err != nil {
		return r.failStep(ctx, step, err.Error())
	}

	result, err := r.exec.Execute(ctx, appID, payload)
	if err != nil {
		// Internal/unexpected: message forwarded verbatim.
		return r.failStep(ctx, step, err.Error())
	}
	if !result.Success {
		return r.failStep(ctx, step, result.Error)
	}

	if err := r.store.MarkStepApplied(ctx, step.ID); err != nil {
		return Outcome{}, fmt.Errorf("run one: %w", err)
	}
	step.Status = spec.StatusApplied
	step.ErrorMessage = ""

	slog.Info("step applied",
		"step_id", step.ID,
		"operation_id", step.OperationID,
		"app_id", step.AppID,
		"index", step.Index,
		"kind", step.Kind,
		"target", step.Target,
	)

	if err := r.finalizeOperation(ctx, step); err != nil {
		return Outcome{}, fmt.Errorf("run one: %w", err)
	}

	return Outcome{Kind: OutcomeApplied, Step: &step}, nil
}

// RunAll invokes RunOne until no pending steps remain for the app.
// Failed steps do not stop the loop: unrelated pending work keeps
// getting claimed.
func (r *Runner) RunAll(ctx context.Context, appID string) ([]Outcome, error) {
	outcomes := []Outcome{}
	for i := 0; i < r.maxSteps; i++ {
		outcome, err := r.RunOne(ctx, appID)
		if err != nil {
			return outcomes, err
		}
		if outcome.Kind == OutcomeDone {
			return outcomes, nil
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, fmt.Errorf("run all: exceeded %d steps for app %s", r.maxSteps, appID)
}

// resolvePayload re-fetches the owning operation's raw descriptor at
// the step's index and decodes it. The step row stores only kind and
// target, not the full payload.
func (r *Runner) resolvePayload(ctx context.Context, step spec.Step) (spec.Payload, error) {
	op, err := r.store.GetOperation(ctx, step.OperationID)
	if err != nil {
		return spec.Payload{}, err
	}
	if step.Index < 0 || step.Index >= len(op.RawSteps) {
		return spec.Payload{}, fmt.Errorf("operation %s has no descriptor at index %d", op.ID, step.Index)
	}
	return spec.DecodeStep(op.RawSteps[step.Index], step.Index)
}

// failStep records a step failure and propagates it to the owning
// operation and its not-yet-run siblings. The failure is local: steps
// of other operations stay claimable.
func (r *Runner) failStep(ctx context.Context, step spec.Step, message string) (Outcome, error) {
	if err := r.store.MarkStepFailed(ctx, step.ID, message); err != nil {
		return Outcome{}, fmt.Errorf("fail step %s: %w", step.ID, err)
	}
	// A concurrent runner may have moved the operation to a terminal
	// state already. That is not our error: the fence below still has
	// to run so no sibling stays claimable.
	if err := r.store.MarkOperationFailed(ctx, step.OperationID, message); err != nil &&
		!errors.Is(err, store.ErrInvalidTransition) {
		return Outcome{}, fmt.Errorf("fail operation %s: %w", step.OperationID, err)
	}

	// Later pending siblings would otherwise be claimed for a dead
	// operation. Fail them explicitly so the loop terminates and the
	// reset path stays visible.
	if err := r.failPendingSiblings(ctx, step); err != nil {
		return Outcome{}, err
	}

	slog.Warn("step failed",
		"step_id", step.ID,
		"operation_id", step.OperationID,
		"app_id", step.AppID,
		"index", step.Index,
		"error", message,
	)

	step.Status = spec.StatusFailed
	step.ErrorMessage = message
	return Outcome{Kind: OutcomeFailed, Step: &step, Error: message}, nil
}

func (r *Runner) failPendingSiblings(ctx context.Context, failed spec.Step) error {
	siblings, err := r.store.StepsForOperation(ctx, failed.OperationID)
	if err != nil {
		return fmt.Errorf("fail siblings of step %s: %w", failed.ID, err)
	}
	for _, sib := range siblings {
		if sib.Status != spec.StatusPending {
			continue
		}
		// Claim-then-fail so a concurrent runner cannot execute it.
		if _, err := r.store.ClaimStep(ctx, sib.ID); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				continue
			}
			return fmt.Errorf("fail siblings of step %s: %w", failed.ID, err)
		}
		msg := fmt.Sprintf("not run: step %d failed", failed.Index)
		if err := r.store.MarkStepFailed(ctx, sib.ID, msg); err != nil {
			return fmt.Errorf("fail siblings of step %s: %w", failed.ID, err)
		}
	}
	return nil
}

// finalizeOperation marks the operation applied and captures a version
// snapshot once every step has applied. Snapshot failures are logged
// and swallowed - history durability never fails the primary path.
func (r *Runner) finalizeOperation(ctx context.Context, step spec.Step) error {
	remaining, err := r.store.UnappliedStepCount(ctx, step.OperationID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	if err := r.store.MarkOperationApplied(ctx, step.OperationID, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			// Another runner finalized (or failed) the operation
			// first; the terminal transition and its snapshot belong
			// to that runner.
			return nil
		}
		return err
	}

	slog.Info("operation applied",
		"operation_id", step.OperationID,
		"app_id", step.AppID,
	)

	snap, err := r.store.CaptureSnapshot(ctx, step.AppID, step.OperationID)
	if err != nil {
		slog.Error("snapshot capture failed",
			"operation_id", step.OperationID,
			"app_id", step.AppID,
			"error", err,
		)
		return nil
	}

	slog.Info("version snapshot recorded",
		"app_id", step.AppID,
		"version", snap.VersionNumber,
		"operation_id", step.OperationID,
	)
	return nil
}
