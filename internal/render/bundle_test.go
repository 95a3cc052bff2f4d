package render

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertEntry(t *testing.T, s *store.Store, entryType spec.EntryType, key string, value map[string]any) {
	t.Helper()
	err := s.InsertEntry(context.Background(), spec.SpecEntry{
		AppID:     "shop",
		EntryType: entryType,
		Key:       key,
		Value:     value,
	})
	require.NoError(t, err)
}

func TestBundleAggregatesByEntryType(t *testing.T) {
	s := newTestStore(t)

	insertEntry(t, s, spec.EntryPage, "home", map[string]any{"slug": "home"})
	insertEntry(t, s, spec.EntryPage, "orders", map[string]any{"slug": "orders"})
	insertEntry(t, s, spec.EntryDataModel, "orders", map[string]any{"name": "orders"})
	insertEntry(t, s, spec.EntryComponent, "nav-bar", map[string]any{"name": "nav-bar"})
	insertEntry(t, s, spec.EntryPermission, "default", map[string]any{"rules": []any{}})
	insertEntry(t, s, spec.EntrySchema, "theme", map[string]any{"mode": "dark"})

	bundle, err := NewReader(s).Bundle(context.Background(), "shop")
	require.NoError(t, err)

	assert.Equal(t, "shop", bundle.AppID)
	assert.Len(t, bundle.Pages, 2)
	assert.Len(t, bundle.DataModels, 1)
	assert.Len(t, bundle.Components, 1)
	assert.Len(t, bundle.Permissions, 1)
	assert.Equal(t, map[string]any{"mode": "dark"}, bundle.Theme)
}

func TestBundleEmptyApp(t *testing.T) {
	s := newTestStore(t)

	bundle, err := NewReader(s).Bundle(context.Background(), "empty")
	require.NoError(t, err)

	assert.Equal(t, "empty", bundle.AppID)
	assert.Empty(t, bundle.Pages)
	assert.Empty(t, bundle.DataModels)
	assert.Nil(t, bundle.Theme)
}

func TestBundleSkipsUnknownEntryTypes(t *testing.T) {
	s := newTestStore(t)

	insertEntry(t, s, spec.EntryPage, "home", map[string]any{"slug": "home"})
	insertEntry(t, s, spec.EntryType("experiment"), "x", map[string]any{"value": 1})

	bundle, err := NewReader(s).Bundle(context.Background(), "shop")
	require.NoError(t, err)
	assert.Len(t, bundle.Pages, 1)
}

func TestBundleSkipsNonThemeSchemaKeys(t *testing.T) {
	s := newTestStore(t)

	insertEntry(t, s, spec.EntrySchema, "feature-flags", map[string]any{"beta": true})

	bundle, err := NewReader(s).Bundle(context.Background(), "shop")
	require.NoError(t, err)
	assert.Nil(t, bundle.Theme)
}

func TestBundleGolden(t *testing.T) {
	s := newTestStore(t)

	insertEntry(t, s, spec.EntryDataModel, "orders", map[string]any{
		"name":   "orders",
		"fields": []any{map[string]any{"name": "id", "type": "uuid"}},
	})
	insertEntry(t, s, spec.EntryPage, "home", map[string]any{
		"slug":       "home",
		"components": []any{map[string]any{"id": "inst-1", "component": "nav-bar"}},
	})
	insertEntry(t, s, spec.EntryComponent, "nav-bar", map[string]any{
		"name":          "nav-bar",
		"componentType": "navigation",
	})
	insertEntry(t, s, spec.EntryPermission, "default", map[string]any{
		"rules": []any{map[string]any{"resource": "orders", "action": "read", "role": "user"}},
	})
	insertEntry(t, s, spec.EntrySchema, "theme", map[string]any{"mode": "dark"})

	bundle, err := NewReader(s).Bundle(context.Background(), "shop")
	require.NoError(t, err)

	bundleJSON, err := spec.MarshalCanonical(bundle)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "shop_bundle", bundleJSON)
}
