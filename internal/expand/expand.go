// Package expand materializes pending operations into atomic,
// independently-tracked steps.
package expand

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

// Expander decomposes raw operations into ordered steps.
//
// Expansion is idempotent per operation: if any step already
// references the operation, the operation is skipped entirely. Steps
// always carry their owning operation id, so there is no orphan-step
// state to repair.
type Expander struct {
	store *store.Store
	idGen spec.IDGenerator
}

// New creates an Expander backed by the given store.
func New(s *store.Store, idGen spec.IDGenerator) *Expander {
	return &Expander{store: s, idGen: idGen}
}

// Result reports what an expansion run produced.
type Result struct {
	StepsCreated int      `json:"steps_created"`
	OperationIDs []string `json:"operation_ids"`
}

// ExpandOperation materializes one operation's raw descriptors into
// steps at status pending, preserving array order as the step index.
// The operation's own status is never altered here.
//
// Returns a zero-count Result when the operation already has steps.
func (e *Expander) ExpandOperation(ctx context.Context, operationID string) (Result, error) {
	op, err := e.store.GetOperation(ctx, operationID)
	if err != nil {
		return Result{}, fmt.Errorf("expand operation: %w", err)
	}
	return e.expand(ctx, op)
}

// ExpandPending expands every pending operation for an app, oldest
// first. Already-expanded operations contribute zero steps.
func (e *Expander) ExpandPending(ctx context.Context, appID string) (Result, error) {
	ops, err := e.store.PendingOperations(ctx, appID)
	if err != nil {
		return Result{}, fmt.Errorf("expand pending: %w", err)
	}

	total := Result{OperationIDs: []string{}}
	for _, op := range ops {
		res, err := e.expand(ctx, op)
		if err != nil {
			return total, err
		}
		total.StepsCreated += res.StepsCreated
		total.OperationIDs = append(total.OperationIDs, res.OperationIDs...)
	}
	return total, nil
}

func (e *Expander) expand(ctx context.Context, op spec.Operation) (Result, error) {
	exists, err := e.store.HasSteps(ctx, op.ID)
	if err != nil {
		return Result{}, fmt.Errorf("expand operation %s: %w", op.ID, err)
	}
	if exists {
		slog.Debug("operation already expanded, skipping",
			"operation_id", op.ID,
			"app_id", op.AppID,
		)
		return Result{OperationIDs: []string{}}, nil
	}

	steps := make([]spec.Step, 0, len(op.RawSteps))
	for i, raw := range op.RawSteps {
		steps = append(steps, spec.Step{
			ID:          e.idGen.NewID(),
			OperationID: op.ID,
			AppID:       op.AppID,
			Index:       i,
			Kind:        spec.KindOf(raw),
			Target:      spec.TargetOf(raw, i),
			Status:      spec.StatusPending,
		})
	}

	if err := e.store.InsertSteps(ctx, steps); err != nil {
		return Result{}, fmt.Errorf("expand operation %s: %w", op.ID, err)
	}

	slog.Info("operation expanded",
		"operation_id", op.ID,
		"app_id", op.AppID,
		"steps", len(steps),
	)

	return Result{StepsCreated: len(steps), OperationIDs: []string{op.ID}}, nil
}
