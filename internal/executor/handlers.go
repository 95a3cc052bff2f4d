package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

// createModel inserts one data_model entry. Fails if a model with the
// same name already exists for the app; field types arrive already
// normalized to the canonical set by DecodeStep.
func (e *Executor) createModel(ctx context.Context, appID string, p *spec.CreateModel) (Result, error) {
	fields := make([]any, 0, len(p.Fields))
	for _, f := range p.Fields {
		fields = append(fields, map[string]any{"name": f.Name, "type": f.Type})
	}

	entry := spec.SpecEntry{
		AppID:     appID,
		EntryType: spec.EntryDataModel,
		Key:       p.Name,
		Value: map[string]any{
			"name":   p.Name,
			"fields": fields,
		},
	}

	err := e.store.InsertEntry(ctx, entry)
	if errors.Is(err, store.ErrEntryExists) {
		return failure("data model %q already exists", p.Name), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("create_model %q: %w", p.Name, err)
	}

	return Result{Success: true, Data: map[string]any{"model": p.Name}}, nil
}

// createPage inserts one page entry with an ordered components array
// (empty by default). A given layout must already exist as a
// component-library entry.
func (e *Executor) createPage(ctx context.Context, appID string, p *spec.CreatePage) (Result, error) {
	if p.Layout != "" {
		exists, err := e.store.EntryExists(ctx, appID, spec.EntryComponent, p.Layout)
		if err != nil {
			return Result{}, fmt.Errorf("create_page %q: check layout: %w", p.Slug, err)
		}
		if !exists {
			return failure("layout %q does not exist", p.Layout), nil
		}
	}

	components := make([]any, 0, len(p.Components))
	for _, name := range p.Components {
		components = append(components, map[string]any{
			"id":        e.idGen.NewID(),
			"component": name,
		})
	}

	value := map[string]any{
		"slug":       p.Slug,
		"components": components,
	}
	if p.Title != "" {
		value["title"] = p.Title
	}
	if p.Layout != "" {
		value["layout"] = p.Layout
	}
	if p.Theme != "" {
		value["theme"] = p.Theme
	}

	err := e.store.InsertEntry(ctx, spec.SpecEntry{
		AppID:     appID,
		EntryType: spec.EntryPage,
		Key:       p.Slug,
		Value:     value,
	})
	if errors.Is(err, store.ErrEntryExists) {
		return failure("page %q already exists", p.Slug), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("create_page %q: %w", p.Slug, err)
	}

	return Result{Success: true, Data: map[string]any{"page": p.Slug}}, nil
}

// createComponent upserts a component-library entry keyed by name -
// the only handler with update-in-place semantics. When a page slug is
// given, a second dependent mutation appends a fresh instance into
// that page's components array within the same step. The page is
// resolved before the upsert so a missing page leaves the library
// untouched.
func (e *Executor) createComponent(ctx context.Context, appID string, p *spec.CreateComponent) (Result, error) {
	var page spec.SpecEntry
	if p.PageSlug != "" {
		var err error
		page, err = e.store.GetEntry(ctx, appID, spec.EntryPage, p.PageSlug)
		if errors.Is(err, store.ErrEntryNotFound) {
			return failure("page %q does not exist", p.PageSlug), nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("create_component %q: load page: %w", p.Name, err)
		}
	}

	value := map[string]any{
		"name":          p.Name,
		"componentType": p.ComponentType,
	}
	if p.Props != nil {
		value["props"] = p.Props
	}

	err := e.store.UpsertEntry(ctx, spec.SpecEntry{
		AppID:     appID,
		EntryType: spec.EntryComponent,
		Key:       p.Name,
		Value:     value,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create_component %q: %w", p.Name, err)
	}

	data := map[string]any{"component": p.Name}

	if p.PageSlug != "" {
		instanceID, err := e.attachToPage(ctx, page, p)
		if err != nil {
			return Result{}, err
		}
		data["page"] = p.PageSlug
		data["instance_id"] = instanceID
	}

	return Result{Success: true, Data: data}, nil
}

// attachToPage appends a new component instance into an already
// loaded page's components array.
func (e *Executor) attachToPage(ctx context.Context, page spec.SpecEntry, p *spec.CreateComponent) (string, error) {
	components, _ := page.Value["components"].([]any)
	instance := map[string]any{
		"id":        e.idGen.NewID(),
		"component": p.Name,
	}
	if p.Props != nil {
		instance["props"] = p.Props
	}
	page.Value["components"] = append(components, instance)

	if err := e.store.UpdateEntry(ctx, page); err != nil {
		return "", fmt.Errorf("create_component %q: update page %q: %w", p.Name, p.PageSlug, err)
	}

	return instance["id"].(string), nil
}

// setPermissions merges canonical rules into the app's ruleset entry,
// keyed by exact (resource, action, role) match: replace on match,
// else append. Submitting the same triple twice leaves one rule.
func (e *Executor) setPermissions(ctx context.Context, appID string, p *spec.SetPermissions) (Result, error) {
	if len(p.Rules) == 0 {
		return failure("set_permissions: no rules provided"), nil
	}

	existing := []spec.PermissionRule{}
	entry, err := e.store.GetEntry(ctx, appID, spec.EntryPermission, spec.PermissionRulesetKey)
	switch {
	case errors.Is(err, store.ErrEntryNotFound):
		// First ruleset for the app.
	case err != nil:
		return Result{}, fmt.Errorf("set_permissions: load ruleset: %w", err)
	default:
		existing, err = spec.RulesFromEntry(entry.Value)
		if err != nil {
			return Result{}, fmt.Errorf("set_permissions: decode ruleset: %w", err)
		}
	}

	merged := spec.MergePermissionRules(existing, p.Rules)

	rules := make([]any, 0, len(merged))
	for _, r := range merged {
		rules = append(rules, map[string]any{
			"resource": r.Resource,
			"action":   r.Action,
			"role":     r.Role,
		})
	}

	err = e.store.UpsertEntry(ctx, spec.SpecEntry{
		AppID:     appID,
		EntryType: spec.EntryPermission,
		Key:       spec.PermissionRulesetKey,
		Value:     map[string]any{"rules": rules},
	})
	if err != nil {
		return Result{}, fmt.Errorf("set_permissions: write ruleset: %w", err)
	}

	return Result{Success: true, Data: map[string]any{"rules": len(merged)}}, nil
}
