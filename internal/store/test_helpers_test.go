package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/loom/internal/spec"
)

// createTestStore creates a file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestOperation builds an operation with minimal required fields.
func createTestOperation(id, appID string, stepCount int) spec.Operation {
	raw := make([]spec.RawStep, stepCount)
	for i := range raw {
		raw[i] = spec.RawStep{
			"type": "create_model",
			"name": fmt.Sprintf("model-%d", i),
		}
	}
	return spec.Operation{
		ID:       id,
		AppID:    appID,
		Intent:   "test intent",
		RawSteps: raw,
	}
}

// createTestSteps builds pending steps for an operation, one per raw
// descriptor index.
func createTestSteps(operationID, appID string, count int) []spec.Step {
	steps := make([]spec.Step, count)
	for i := range steps {
		steps[i] = spec.Step{
			ID:          fmt.Sprintf("%s-step-%d", operationID, i),
			OperationID: operationID,
			AppID:       appID,
			Index:       i,
			Kind:        spec.KindCreateModel,
			Target:      fmt.Sprintf("model-%d", i),
		}
	}
	return steps
}

// seedOperation inserts an operation and its expanded steps.
func seedOperation(t *testing.T, s *Store, id, appID string, stepCount int) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateOperation(ctx, createTestOperation(id, appID, stepCount)); err != nil {
		t.Fatalf("CreateOperation() failed: %v", err)
	}
	if err := s.InsertSteps(ctx, createTestSteps(id, appID, stepCount)); err != nil {
		t.Fatalf("InsertSteps() failed: %v", err)
	}
}

// createTestEntry builds a spec entry with a small value document.
func createTestEntry(appID string, entryType spec.EntryType, key string) spec.SpecEntry {
	return spec.SpecEntry{
		AppID:     appID,
		EntryType: entryType,
		Key:       key,
		Value:     map[string]any{"name": key},
	}
}
