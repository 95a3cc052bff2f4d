package executor

import (
	"context"
	"path/filepath"
	"testing"

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

func newTestExecutor(t *testing.T, ids ...string) (*Executor, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	if len(ids) == 0 {
		ids = []string{"id-1", "id-2", "id-3", "id-4"}
	}
	return New(s, spec.NewFixedGenerator(ids...)), s
}

func TestExecuteCreateModel(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, "shop", spec.Payload{
		Kind: spec.KindCreateModel,
		CreateModel: &spec.CreateModel{
			Name: "orders",
			Fields: []spec.FieldDef{
				{Name: "id", Type: "uuid"},
				{Name: "total", Type: "number"},
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	entry, err := s.GetEntry(ctx, "shop", spec.EntryDataModel, "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", entry.Value["name"])

	fields, ok := entry.Value["fields"].([]any)
	require.True(t, ok)
	require.Len(t, fields, 2)
	assert.Equal(t, map[string]any{"name": "id", "type": "uuid"}, fields[0])
}

func TestExecuteCreateModelDuplicateLeavesStoreUnchanged(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	payload := spec.Payload{
		Kind: spec.KindCreateModel,
		CreateModel: &spec.CreateModel{
			Name:   "orders",
			Fields: []spec.FieldDef{{Name: "id", Type: "uuid"}},
		},
	}

	res, err := e.Execute(ctx, "shop", payload)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Second attempt with a different shape must fail and not touch
	// the stored entry.
	payload.CreateModel.Fields = []spec.FieldDef{{Name: "total", Type: "number"}}
	res, err = e.Execute(ctx, "shop", payload)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `data model "orders" already exists`)

	entry, err := s.GetEntry(ctx, "shop", spec.EntryDataModel, "orders")
	require.NoError(t, err)
	fields := entry.Value["fields"].([]any)
	require.Len(t, fields, 1)
	assert.Equal(t, "id", fields[0].(map[string]any)["name"])
}

func TestExecuteCreatePage(t *testing.T) {
	e, s := newTestExecutor(t, "inst-1", "inst-2")
	ctx := context.Background()

	// Components referenced on the page.
	for _, name := range []string{"order-table", "summary-card"} {
		require.NoError(t, s.InsertEntry(ctx, spec.SpecEntry{
			AppID: "shop", EntryType: spec.EntryComponent, Key: name,
			Value: map[string]any{"name": name},
		}))
	}

	res, err := e.Execute(ctx, "shop", spec.Payload{
		Kind: spec.KindCreatePage,
		CreatePage: &spec.CreatePage{
			Slug:       "orders",
			Title:      "Orders",
			Theme:      "dark",
			Components: []string{"order-table", "summary-card"},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	entry, err := s.GetEntry(ctx, "shop", spec.EntryPage, "orders")
	require.NoError(t, err)
	assert.Equal(t, "Orders", entry.Value["title"])
	assert.Equal(t, "dark", entry.Value["theme"])

	components := entry.Value["components"].([]any)
	require.Len(t, components, 2)
	first := components[0].(map[string]any)
	assert.Equal(t, "inst-1", first["id"])
	assert.Equal(t, "order-table", first["component"])
}

func TestExecuteCreatePageMissingLayout(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, "shop", spec.Payload{
		Kind:       spec.KindCreatePage,
		CreatePage: &spec.CreatePage{Slug: "orders", Layout: "two-column"},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `layout "two-column" does not exist`)

	exists, err := s.EntryExists(ctx, "shop", spec.EntryPage, "orders")
	require.NoError(t, err)
	assert.False(t, exists, "failed page creation must not leave a partial entry")
}

func TestExecuteCreatePageDuplicate(t *testing.T) {
	e, _ := newTestExecutor(t)
	ctx := context.Background()

	payload := spec.Payload{
		Kind:       spec.KindCreatePage,
		CreatePage: &spec.CreatePage{Slug: "orders"},
	}

	res, err := e.Execute(ctx, "shop", payload)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = e.Execute(ctx, "shop", payload)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `page "orders" already exists`)
}

func TestExecuteCreateComponentUpserts(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, "shop", spec.Payload{
		Kind: spec.KindCreateComponent,
		CreateComponent: &spec.CreateComponent{
			Name:          "nav-bar",
			ComponentType: "navigation",
			Props:         map[string]any{"sticky": true},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Re-creating the same component replaces the library entry.
	res, err = e.Execute(ctx, "shop", spec.Payload{
		Kind: spec.KindCreateComponent,
		CreateComponent: &spec.CreateComponent{
			Name:          "nav-bar",
			ComponentType: "navigation",
			Props:         map[string]any{"sticky": false},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	entry, err := s.GetEntry(ctx, "shop", spec.EntryComponent, "nav-bar")
	require.NoError(t, err)
	props := entry.Value["props"].(map[string]any)
	assert.Equal(t, false, props["sticky"])
}

func TestExecuteCreateComponentAttachesToPage(t *testing.T) {
	e, s := newTestExecutor(t, "inst-1", "inst-2")
	ctx := context.Background()

	require.NoError(t, s.InsertEntry(ctx, spec.SpecEntry{
		AppID: "shop", EntryType: spec.EntryPage, Key: "home",
		Value: map[string]any{"slug": "home", "components": []any{}},
	}))

	payload := spec.Payload{
		Kind: spec.KindCreateComponent,
		CreateComponent: &spec.CreateComponent{
			Name:          "nav-bar",
			ComponentType: "navigation",
			PageSlug:      "home",
		},
	}

	res, err := e.Execute(ctx, "shop", payload)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "inst-1", res.Data["instance_id"])

	// A second attach appends another instance with a fresh id.
	res, err = e.Execute(ctx, "shop", payload)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "inst-2", res.Data["instance_id"])

	page, err := s.GetEntry(ctx, "shop", spec.EntryPage, "home")
	require.NoError(t, err)
	components := page.Value["components"].([]any)
	require.Len(t, components, 2)
	assert.Equal(t, "inst-1", components[0].(map[string]any)["id"])
	assert.Equal(t, "inst-2", components[1].(map[string]any)["id"])
}

func TestExecuteCreateComponentMissingPage(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, "shop", spec.Payload{
		Kind: spec.KindCreateComponent,
		CreateComponent: &spec.CreateComponent{
			Name:          "nav-bar",
			ComponentType: "navigation",
			PageSlug:      "missing",
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, `page "missing" does not exist`)

	exists, err := s.EntryExists(ctx, "shop", spec.EntryComponent, "nav-bar")
	require.NoError(t, err)
	assert.False(t, exists, "failed attach must not leave a library entry")
}

func TestExecuteSetPermissionsMerges(t *testing.T) {
	e, s := newTestExecutor(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, "shop", spec.Payload{
		Kind: spec.KindSetPermissions,
		SetPermissions: &spec.SetPermissions{Rules: []spec.PermissionRule{
			{Resource: "orders", Action: "read", Role: "user"},
		}},
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	// Same triple again plus one new rule: replace + append.
	res, err = e.Execute(ctx, "shop", spec.Payload{
		Kind: spec.KindSetPermissions,
		SetPermissions: &spec.SetPermissions{Rules: []spec.PermissionRule{
			{Resource: "orders", Action: "read", Role: "user"},
			{Resource: "orders", Action: "write", Role: "admin"},
		}},
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	entry, err := s.GetEntry(ctx, "shop", spec.EntryPermission, spec.PermissionRulesetKey)
	require.NoError(t, err)
	rules := entry.Value["rules"].([]any)
	assert.Len(t, rules, 2, "submitting the same triple twice must keep one rule")
}

func TestExecuteSetPermissionsEmptyRules(t *testing.T) {
	e, _ := newTestExecutor(t)

	res, err := e.Execute(context.Background(), "shop", spec.Payload{
		Kind:           spec.KindSetPermissions,
		SetPermissions: &spec.SetPermissions{},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestExecuteUnsupportedKind(t *testing.T) {
	e, _ := newTestExecutor(t)

	res, err := e.Execute(context.Background(), "shop", spec.Payload{Kind: spec.KindGeneric})
	require.NoError(t, err, "unsupported kinds fail the step, not the run loop")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unsupported step type")
}
