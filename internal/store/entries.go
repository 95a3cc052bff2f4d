package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/loom/internal/spec"
)

// GetEntry retrieves one spec entry by its (app, type, key) identity.
// Returns ErrEntryNotFound if it does not exist.
func (s *Store) GetEntry(ctx context.Context, appID string, entryType spec.EntryType, key string) (spec.SpecEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT app_id, entry_type, key, value, updated_at
		FROM spec_entries
		WHERE app_id = ? AND entry_type = ? AND key = ?
	`, appID, string(entryType), key)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return spec.SpecEntry{}, fmt.Errorf("%s %q: %w", entryType, key, ErrEntryNotFound)
	}
	return entry, err
}

// EntryExists reports whether an entry with the given identity exists.
func (s *Store) EntryExists(ctx context.Context, appID string, entryType spec.EntryType, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM spec_entries
		WHERE app_id = ? AND entry_type = ? AND key = ?
	`, appID, string(entryType), key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check entry %s %q: %w", entryType, key, err)
	}
	return count > 0, nil
}

// InsertEntry writes a new spec entry, rejecting an existing identity.
// Uses ON CONFLICT DO NOTHING + RowsAffected so the conflict check and
// the insert are one atomic statement; zero rows affected means the
// identity already exists and ErrEntryExists is returned. This is the
// create-type handler semantics - see UpsertEntry for the
// replace-on-conflict variant.
func (s *Store) InsertEntry(ctx context.Context, entry spec.SpecEntry) error {
	valueJSON, err := marshalValue(entry.Value)
	if err != nil {
		return fmt.Errorf("insert entry %s %q: %w", entry.EntryType, entry.Key, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO spec_entries (app_id, entry_type, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_id, entry_type, key) DO NOTHING
	`, entry.AppID, string(entry.EntryType), entry.Key, valueJSON)
	if err != nil {
		return fmt.Errorf("insert entry %s %q: %w", entry.EntryType, entry.Key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert entry %s %q: rows affected: %w", entry.EntryType, entry.Key, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %q: %w", entry.EntryType, entry.Key, ErrEntryExists)
	}
	return nil
}

// UpsertEntry writes a spec entry, replacing any existing identity.
// The replace-on-conflict semantics are intentional for the component
// library; all other create-type handlers use InsertEntry.
func (s *Store) UpsertEntry(ctx context.Context, entry spec.SpecEntry) error {
	valueJSON, err := marshalValue(entry.Value)
	if err != nil {
		return fmt.Errorf("upsert entry %s %q: %w", entry.EntryType, entry.Key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO spec_entries (app_id, entry_type, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(app_id, entry_type, key) DO UPDATE SET
			value = excluded.value,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, entry.AppID, string(entry.EntryType), entry.Key, valueJSON)
	if err != nil {
		return fmt.Errorf("upsert entry %s %q: %w", entry.EntryType, entry.Key, err)
	}
	return nil
}

// UpdateEntry replaces the value of an existing entry, rejecting a
// missing identity with ErrEntryNotFound.
func (s *Store) UpdateEntry(ctx context.Context, entry spec.SpecEntry) error {
	valueJSON, err := marshalValue(entry.Value)
	if err != nil {
		return fmt.Errorf("update entry %s %q: %w", entry.EntryType, entry.Key, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE spec_entries
		SET value = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE app_id = ? AND entry_type = ? AND key = ?
	`, valueJSON, entry.AppID, string(entry.EntryType), entry.Key)
	if err != nil {
		return fmt.Errorf("update entry %s %q: %w", entry.EntryType, entry.Key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry %s %q: rows affected: %w", entry.EntryType, entry.Key, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %q: %w", entry.EntryType, entry.Key, ErrEntryNotFound)
	}
	return nil
}

// ListEntries returns all spec entries for an app in deterministic
// (entry_type, key) order.
func (s *Store) ListEntries(ctx context.Context, appID string) ([]spec.SpecEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, entry_type, key, value, updated_at
		FROM spec_entries
		WHERE app_id = ?
		ORDER BY entry_type ASC, key ASC
	`, appID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []spec.SpecEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanEntry(row rowScanner) (spec.SpecEntry, error) {
	var (
		entry     spec.SpecEntry
		entryType string
		valueJSON string
		updatedAt string
	)
	if err := row.Scan(&entry.AppID, &entryType, &entry.Key, &valueJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return spec.SpecEntry{}, err
		}
		return spec.SpecEntry{}, fmt.Errorf("scan entry: %w", err)
	}

	entry.EntryType = spec.EntryType(entryType)
	if err := json.Unmarshal([]byte(valueJSON), &entry.Value); err != nil {
		return spec.SpecEntry{}, fmt.Errorf("unmarshal value for %s %q: %w", entry.EntryType, entry.Key, err)
	}

	t, err := parseTimestamp(updatedAt)
	if err != nil {
		return spec.SpecEntry{}, fmt.Errorf("parse updated_at for %s %q: %w", entry.EntryType, entry.Key, err)
	}
	entry.UpdatedAt = t

	return entry, nil
}

// marshalValue serializes an entry value as canonical JSON so stored
// documents and snapshot captures compare byte-for-byte.
func marshalValue(value map[string]any) (string, error) {
	data, err := spec.MarshalCanonical(value)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}
