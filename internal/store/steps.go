package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/loom/internal/spec"
)

// InsertSteps writes a batch of steps at status pending in one
// transaction. Used by the expander; UNIQUE(operation_id, idx) rejects
// duplicate expansion at the schema level.
func (s *Store) InsertSteps(ctx context.Context, steps []spec.Step) error {
	if len(steps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert steps: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, step := range steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO steps (id, operation_id, app_id, idx, kind, target, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, step.ID, step.OperationID, step.AppID, step.Index,
			string(step.Kind), step.Target, string(spec.StatusPending))
		if err != nil {
			return fmt.Errorf("insert step %d of operation %s: %w", step.Index, step.OperationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert steps: commit: %w", err)
	}
	return nil
}

// HasSteps reports whether any step references the operation.
// The expander uses this for its idempotency check.
func (s *Store) HasSteps(ctx context.Context, operationID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM steps WHERE operation_id = ?
	`, operationID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count steps for operation %s: %w", operationID, err)
	}
	return count > 0, nil
}

// StepsForOperation returns the operation's steps in execution order.
func (s *Store) StepsForOperation(ctx context.Context, operationID string) ([]spec.Step, error) {
	return s.querySteps(ctx, `
		SELECT id, operation_id, app_id, idx, kind, target, status, error_message, created_at
		FROM steps
		WHERE operation_id = ?
		ORDER BY idx ASC
	`, operationID)
}

// StepsForApp returns all steps for an app in execution order.
func (s *Store) StepsForApp(ctx context.Context, appID string) ([]spec.Step, error) {
	return s.querySteps(ctx, `
		SELECT id, operation_id, app_id, idx, kind, target, status, error_message, created_at
		FROM steps
		WHERE app_id = ?
		ORDER BY created_at ASC, idx ASC, id ASC
	`, appID)
}

// GetStep retrieves a single step by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) GetStep(ctx context.Context, id string) (spec.Step, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operation_id, app_id, idx, kind, target, status, error_message, created_at
		FROM steps
		WHERE id = ?
	`, id)

	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return spec.Step{}, fmt.Errorf("step %s: %w", id, ErrNotFound)
	}
	return step, err
}

// ClaimNextStep atomically claims the app's pending step with the
// lowest index (tie-break by creation time, then id) by a conditional
// pending → processing transition.
//
// Zero rows affected means another caller claimed the candidate first;
// the loop re-selects until a claim succeeds or no pending step
// remains, in which case ErrNoPendingSteps is returned.
func (s *Store) ClaimNextStep(ctx context.Context, appID string) (spec.Step, error) {
	for {
		if err := ctx.Err(); err != nil {
			return spec.Step{}, fmt.Errorf("claim step: %w", err)
		}

		row := s.db.QueryRowContext(ctx, `
			SELECT id, operation_id, app_id, idx, kind, target, status, error_message, created_at
			FROM steps
			WHERE app_id = ? AND status = ?
			ORDER BY idx ASC, created_at ASC, id ASC
			LIMIT 1
		`, appID, string(spec.StatusPending))

		step, err := scanStep(row)
		if errors.Is(err, sql.ErrNoRows) {
			return spec.Step{}, ErrNoPendingSteps
		}
		if err != nil {
			return spec.Step{}, err
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE steps SET status = ?
			WHERE id = ? AND status = ?
		`, string(spec.StatusProcessing), step.ID, string(spec.StatusPending))
		if err != nil {
			return spec.Step{}, fmt.Errorf("claim step %s: %w", step.ID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return spec.Step{}, fmt.Errorf("claim step %s: rows affected: %w", step.ID, err)
		}
		if affected == 0 {
			// Lost the race - another caller claimed it. Re-select.
			continue
		}

		step.Status = spec.StatusProcessing
		return step, nil
	}
}

// ClaimStep conditionally claims one specific step by id via the same
// pending → processing transition as ClaimNextStep. Returns
// ErrInvalidTransition if the step was not pending.
func (s *Store) ClaimStep(ctx context.Context, id string) (spec.Step, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET status = ?
		WHERE id = ? AND status = ?
	`, string(spec.StatusProcessing), id, string(spec.StatusPending))
	if err != nil {
		return spec.Step{}, fmt.Errorf("claim step %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return spec.Step{}, fmt.Errorf("claim step %s: rows affected: %w", id, err)
	}
	if affected == 0 {
		return spec.Step{}, fmt.Errorf("step %s not pending: %w", id, ErrInvalidTransition)
	}

	return s.GetStep(ctx, id)
}

// MarkStepApplied moves a step from processing to applied, clearing
// any prior error message.
func (s *Store) MarkStepApplied(ctx context.Context, id string) error {
	return s.transitionStep(ctx, id, spec.StatusProcessing, spec.StatusApplied, nil)
}

// MarkStepFailed moves a step from processing to failed, recording the
// error message verbatim.
func (s *Store) MarkStepFailed(ctx context.Context, id, errorMessage string) error {
	return s.transitionStep(ctx, id, spec.StatusProcessing, spec.StatusFailed, &errorMessage)
}

// ResetStep moves a failed step back to pending, clearing its error.
// This is the only exit from a terminal state and must be requested
// explicitly - there are no automatic retries.
func (s *Store) ResetStep(ctx context.Context, id string) error {
	return s.transitionStep(ctx, id, spec.StatusFailed, spec.StatusPending, nil)
}

// transitionStep performs a conditional status update. A nil
// errorMessage clears the column.
func (s *Store) transitionStep(ctx context.Context, id string, from, to spec.Status, errorMessage *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET status = ?, error_message = ?
		WHERE id = ? AND status = ?
	`, string(to), errorMessage, id, string(from))
	if err != nil {
		return fmt.Errorf("transition step %s to %s: %w", id, to, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition step %s: rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("step %s not %s: %w", id, from, ErrInvalidTransition)
	}
	return nil
}

// PendingStepCount returns the number of claimable steps for an app.
func (s *Store) PendingStepCount(ctx context.Context, appID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM steps WHERE app_id = ? AND status = ?
	`, appID, string(spec.StatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending steps: %w", err)
	}
	return count, nil
}

// UnappliedStepCount returns how many of an operation's steps are not
// yet applied. Zero means the operation is ready to finalize.
func (s *Store) UnappliedStepCount(ctx context.Context, operationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM steps WHERE operation_id = ? AND status != ?
	`, operationID, string(spec.StatusApplied)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unapplied steps: %w", err)
	}
	return count, nil
}

func (s *Store) querySteps(ctx context.Context, query string, args ...any) ([]spec.Step, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []spec.Step{}
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

func scanStep(row rowScanner) (spec.Step, error) {
	var (
		step         spec.Step
		kind         string
		status       string
		errorMessage sql.NullString
		createdAt    string
	)
	if err := row.Scan(&step.ID, &step.OperationID, &step.AppID, &step.Index,
		&kind, &step.Target, &status, &errorMessage, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spec.Step{}, err
		}
		return spec.Step{}, fmt.Errorf("scan step: %w", err)
	}

	step.Kind = spec.StepKind(kind)
	step.Status = spec.Status(status)
	step.ErrorMessage = errorMessage.String

	t, err := parseTimestamp(createdAt)
	if err != nil {
		return spec.Step{}, fmt.Errorf("parse created_at for step %s: %w", step.ID, err)
	}
	step.CreatedAt = t

	return step, nil
}
