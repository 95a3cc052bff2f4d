// Package render aggregates specification entries into the bundle the
// page-rendering layer consumes. It only reads; all mutation goes
// through the executor.
package render

import (
	"context"
	"fmt"

	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

// Bundle is the aggregated desired state of one app, keyed the way
// the rendering layer expects it.
type Bundle struct {
	AppID       string                    `json:"app_id"`
	Pages       map[string]map[string]any `json:"pages"`
	DataModels  map[string]map[string]any `json:"data_models"`
	Components  map[string]map[string]any `json:"components"`
	Permissions map[string]map[string]any `json:"permissions"`
	Theme       map[string]any            `json:"theme,omitempty"`
}

// Reader builds bundles from the specification store.
type Reader struct {
	store *store.Store
}

// NewReader creates a Reader over the given store.
func NewReader(s *store.Store) *Reader {
	return &Reader{store: s}
}

// Bundle reads all entries for an app and aggregates them by entry
// type. Unrecognized entry types are ignored, not errors - newer
// writers may add partitions older readers don't know.
func (r *Reader) Bundle(ctx context.Context, appID string) (Bundle, error) {
	entries, err := r.store.ListEntries(ctx, appID)
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle for app %s: %w", appID, err)
	}

	b := Bundle{
		AppID:       appID,
		Pages:       map[string]map[string]any{},
		DataModels:  map[string]map[string]any{},
		Components:  map[string]map[string]any{},
		Permissions: map[string]map[string]any{},
	}

	for _, entry := range entries {
		switch entry.EntryType {
		case spec.EntryPage:
			b.Pages[entry.Key] = entry.Value
		case spec.EntryDataModel:
			b.DataModels[entry.Key] = entry.Value
		case spec.EntryComponent:
			b.Components[entry.Key] = entry.Value
		case spec.EntryPermission:
			b.Permissions[entry.Key] = entry.Value
		case spec.EntrySchema:
			if entry.Key == "theme" {
				b.Theme = entry.Value
			}
		default:
			// Unknown entry type: skip.
		}
	}

	return b, nil
}
