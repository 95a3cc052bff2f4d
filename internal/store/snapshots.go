package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/loom/internal/spec"
)

// CaptureSnapshot materializes the app's full specification store into
// one canonical JSON document partitioned by entry type and appends it
// as the next version.
//
// The version number is assigned as max+1 inside the same transaction
// that reads the entries and inserts the snapshot, and the
// UNIQUE(app_id, version_number) constraint rejects any duplicate a
// concurrent writer could produce. Version numbers per app are
// therefore strictly increasing with no gaps.
func (s *Store) CaptureSnapshot(ctx context.Context, appID, operationID string) (spec.VersionSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	rows, err := tx.QueryContext(ctx, `
		SELECT entry_type, key, value
		FROM spec_entries
		WHERE app_id = ?
		ORDER BY entry_type ASC, key ASC
	`, appID)
	if err != nil {
		return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: query entries: %w", err)
	}

	doc := map[string]any{}
	for rows.Next() {
		var entryType, key, valueJSON string
		if err := rows.Scan(&entryType, &key, &valueJSON); err != nil {
			rows.Close()
			return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: scan entry: %w", err)
		}

		var value map[string]any
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			rows.Close()
			return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: unmarshal %s %q: %w", entryType, key, err)
		}

		partition, ok := doc[entryType].(map[string]any)
		if !ok {
			partition = map[string]any{}
			doc[entryType] = partition
		}
		partition[key] = value
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: iterate entries: %w", err)
	}
	rows.Close()

	snapshotJSON, err := spec.MarshalCanonical(doc)
	if err != nil {
		return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: marshal: %w", err)
	}

	var next int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM version_snapshots
		WHERE app_id = ?
	`, appID).Scan(&next)
	if err != nil {
		return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: next version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO version_snapshots (app_id, version_number, operation_id, snapshot)
		VALUES (?, ?, ?, ?)
	`, appID, next, operationID, string(snapshotJSON))
	if err != nil {
		return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: insert version %d: %w", next, err)
	}

	if err := tx.Commit(); err != nil {
		return spec.VersionSnapshot{}, fmt.Errorf("capture snapshot: commit: %w", err)
	}

	return spec.VersionSnapshot{
		AppID:         appID,
		VersionNumber: next,
		OperationID:   operationID,
		Snapshot:      string(snapshotJSON),
	}, nil
}

// GetSnapshot retrieves one snapshot by app and version number.
// Returns ErrNotFound if the version does not exist.
func (s *Store) GetSnapshot(ctx context.Context, appID string, version int) (spec.VersionSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT app_id, version_number, operation_id, snapshot, created_at
		FROM version_snapshots
		WHERE app_id = ? AND version_number = ?
	`, appID, version)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return spec.VersionSnapshot{}, fmt.Errorf("snapshot version %d for app %s: %w", version, appID, ErrNotFound)
	}
	return snap, err
}

// ListSnapshots returns the app's snapshots in version order.
func (s *Store) ListSnapshots(ctx context.Context, appID string) ([]spec.VersionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, version_number, operation_id, snapshot, created_at
		FROM version_snapshots
		WHERE app_id = ?
		ORDER BY version_number ASC
	`, appID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []spec.VersionSnapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// RollbackToVersion replaces the app's current specification store
// wholesale with the contents of the given snapshot: every current
// entry is deleted and every entry embedded in the snapshot is
// reinserted, all in a single transaction.
func (s *Store) RollbackToVersion(ctx context.Context, appID string, version int) error {
	snap, err := s.GetSnapshot(ctx, appID, version)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	var doc map[string]map[string]map[string]any
	if err := json.Unmarshal([]byte(snap.Snapshot), &doc); err != nil {
		return fmt.Errorf("rollback: unmarshal snapshot version %d: %w", version, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rollback: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM spec_entries WHERE app_id = ?`, appID); err != nil {
		return fmt.Errorf("rollback: delete current entries: %w", err)
	}

	for entryType, partition := range doc {
		for key, value := range partition {
			valueJSON, err := spec.MarshalCanonical(value)
			if err != nil {
				return fmt.Errorf("rollback: marshal %s %q: %w", entryType, key, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO spec_entries (app_id, entry_type, key, value)
				VALUES (?, ?, ?, ?)
			`, appID, entryType, key, string(valueJSON))
			if err != nil {
				return fmt.Errorf("rollback: reinsert %s %q: %w", entryType, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rollback: commit: %w", err)
	}
	return nil
}

func scanSnapshot(row rowScanner) (spec.VersionSnapshot, error) {
	var (
		snap      spec.VersionSnapshot
		createdAt string
	)
	if err := row.Scan(&snap.AppID, &snap.VersionNumber, &snap.OperationID, &snap.Snapshot, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spec.VersionSnapshot{}, err
		}
		return spec.VersionSnapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	t, err := parseTimestamp(createdAt)
	if err != nil {
		return spec.VersionSnapshot{}, fmt.Errorf("parse created_at for snapshot %d: %w", snap.VersionNumber, err)
	}
	snap.CreatedAt = t

	return snap, nil
}
