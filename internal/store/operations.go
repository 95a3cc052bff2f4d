package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/loom/internal/spec"
)

// CreateOperation inserts a new operation at status pending.
// The intent and raw step descriptors are immutable after creation;
// only status, error message, and applied_at change later.
func (s *Store) CreateOperation(ctx context.Context, op spec.Operation) error {
	if op.ID == "" || op.AppID == "" {
		return fmt.Errorf("create operation: id and app_id are required")
	}
	if op.Intent == "" {
		return fmt.Errorf("create operation: intent must be non-empty")
	}
	if len(op.RawSteps) == 0 {
		return fmt.Errorf("create operation: operations list must be non-empty")
	}

	rawJSON, err := json.Marshal(op.RawSteps)
	if err != nil {
		return fmt.Errorf("create operation: marshal raw steps: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operations (id, app_id, intent, raw_steps, status)
		VALUES (?, ?, ?, ?, ?)
	`, op.ID, op.AppID, op.Intent, string(rawJSON), string(spec.StatusPending))
	if err != nil {
		return fmt.Errorf("create operation: %w", err)
	}

	return nil
}

// GetOperation retrieves a single operation by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) GetOperation(ctx context.Context, id string) (spec.Operation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app_id, intent, raw_steps, status, error_message, applied_at, created_at
		FROM operations
		WHERE id = ?
	`, id)

	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return spec.Operation{}, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return op, err
}

// ListOperations returns all operations for an app, oldest first.
func (s *Store) ListOperations(ctx context.Context, appID string) ([]spec.Operation, error) {
	return s.queryOperations(ctx, `
		SELECT id, app_id, intent, raw_steps, status, error_message, applied_at, created_at
		FROM operations
		WHERE app_id = ?
		ORDER BY created_at ASC, id ASC
	`, appID)
}

// PendingOperations returns the app's operations still at status
// pending, oldest first. Used by the expander.
func (s *Store) PendingOperations(ctx context.Context, appID string) ([]spec.Operation, error) {
	return s.queryOperations(ctx, `
		SELECT id, app_id, intent, raw_steps, status, error_message, applied_at, created_at
		FROM operations
		WHERE app_id = ? AND status = ?
		ORDER BY created_at ASC, id ASC
	`, appID, string(spec.StatusPending))
}

// MarkOperationProcessing conditionally moves an operation from
// pending to processing. Idempotent: an operation already at
// processing is left untouched without error.
func (s *Store) MarkOperationProcessing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE operations SET status = ?
		WHERE id = ? AND status = ?
	`, string(spec.StatusProcessing), id, string(spec.StatusPending))
	if err != nil {
		return fmt.Errorf("mark operation processing: %w", err)
	}
	return nil
}

// MarkOperationApplied moves an operation from processing to applied,
// clears any prior error, and stamps applied_at.
// Returns ErrInvalidTransition if the operation was not processing.
func (s *Store) MarkOperationApplied(ctx context.Context, id string, appliedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE operations SET status = ?, error_message = NULL, applied_at = ?
		WHERE id = ? AND status = ?
	`, string(spec.StatusApplied), appliedAt.UTC().Format(time.RFC3339Nano), id, string(spec.StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark operation applied: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark operation applied: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation %s not processing: %w", id, ErrInvalidTransition)
	}
	return nil
}

// MarkOperationFailed moves an operation to failed, recording the
// error message verbatim. Accepted from pending or processing.
func (s *Store) MarkOperationFailed(ctx context.Context, id, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE operations SET status = ?, error_message = ?
		WHERE id = ? AND status IN (?, ?)
	`, string(spec.StatusFailed), errorMessage, id,
		string(spec.StatusPending), string(spec.StatusProcessing))
	if err != nil {
		return fmt.Errorf("mark operation failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark operation failed: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation %s not pending or processing: %w", id, ErrInvalidTransition)
	}
	return nil
}

// ResetOperation moves a failed operation back to pending, clearing
// its error. Paired with ResetStep for the explicit retry path; like
// steps, operations never leave a terminal state automatically.
func (s *Store) ResetOperation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE operations SET status = ?, error_message = NULL
		WHERE id = ? AND status = ?
	`, string(spec.StatusPending), id, string(spec.StatusFailed))
	if err != nil {
		return fmt.Errorf("reset operation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset operation: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation %s not failed: %w", id, ErrInvalidTransition)
	}
	return nil
}

func (s *Store) queryOperations(ctx context.Context, query string, args ...any) ([]spec.Operation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	ops := []spec.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (spec.Operation, error) {
	var (
		op           spec.Operation
		rawJSON      string
		status       string
		errorMessage sql.NullString
		appliedAt    sql.NullString
		createdAt    string
	)
	if err := row.Scan(&op.ID, &op.AppID, &op.Intent, &rawJSON, &status, &errorMessage, &appliedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spec.Operation{}, err
		}
		return spec.Operation{}, fmt.Errorf("scan operation: %w", err)
	}

	if err := json.Unmarshal([]byte(rawJSON), &op.RawSteps); err != nil {
		return spec.Operation{}, fmt.Errorf("unmarshal raw steps for operation %s: %w", op.ID, err)
	}

	op.Status = spec.Status(status)
	op.ErrorMessage = errorMessage.String

	if appliedAt.Valid {
		t, err := parseTimestamp(appliedAt.String)
		if err != nil {
			return spec.Operation{}, fmt.Errorf("parse applied_at for operation %s: %w", op.ID, err)
		}
		op.AppliedAt = &t
	}

	t, err := parseTimestamp(createdAt)
	if err != nil {
		return spec.Operation{}, fmt.Errorf("parse created_at for operation %s: %w", op.ID, err)
	}
	op.CreatedAt = t

	return op, nil
}

// parseTimestamp parses the RFC 3339 text timestamps written by both
// SQLite defaults (millisecond precision) and Go (nanosecond).
func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
