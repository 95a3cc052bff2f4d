// Package validate performs structural and referential checks on
// operation batches before execution.
//
// Validation is advisory: the caller decides whether to proceed, and
// the executor re-validates independently because the two are not
// transactionally linked and may observe different store states.
package validate

import (
	"context"
	"fmt"

	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

// Validator checks operation batches against the current store.
type Validator struct {
	store *store.Store
}

// New creates a Validator reading from the given store.
func New(s *store.Store) *Validator {
	return &Validator{store: s}
}

// Result is the outcome of a batch validation.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateBatch checks a list of raw operations for an app. Each error
// is prefixed with the operation's 1-based index and type so batch
// failures point at the offending descriptor.
func (v *Validator) ValidateBatch(ctx context.Context, appID string, ops []spec.RawStep) (Result, error) {
	result := Result{Valid: true, Errors: []string{}}

	for i, raw := range ops {
		kind := spec.KindOf(raw)
		errs, err := v.validateOne(ctx, appID, raw, i)
		if err != nil {
			return Result{}, err
		}
		for _, msg := range errs {
			result.Errors = append(result.Errors, fmt.Sprintf("operation %d (%s): %s", i+1, kind, msg))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

func (v *Validator) validateOne(ctx context.Context, appID string, raw spec.RawStep, index int) ([]string, error) {
	payload, err := spec.DecodeStep(raw, index)
	if err != nil {
		// Structural problems surface as validation errors, not
		// validator failures.
		return []string{err.Error()}, nil
	}

	switch payload.Kind {
	case spec.KindCreateModel:
		return v.validateCreateModel(ctx, appID, payload.CreateModel)
	case spec.KindCreatePage:
		return v.validateCreatePage(ctx, appID, payload.CreatePage)
	case spec.KindCreateComponent:
		return v.validateCreateComponent(ctx, appID, payload.CreateComponent)
	case spec.KindSetPermissions:
		// DecodeStep already enforced the action/role closed sets.
		return nil, nil
	default:
		return []string{fmt.Sprintf("unsupported step type %q", payload.Kind)}, nil
	}
}

func (v *Validator) validateCreateModel(ctx context.Context, appID string, p *spec.CreateModel) ([]string, error) {
	exists, err := v.store.EntryExists(ctx, appID, spec.EntryDataModel, p.Name)
	if err != nil {
		return nil, fmt.Errorf("validate create_model %q: %w", p.Name, err)
	}
	if exists {
		return []string{fmt.Sprintf("data model %q already exists", p.Name)}, nil
	}
	return nil, nil
}

func (v *Validator) validateCreatePage(ctx context.Context, appID string, p *spec.CreatePage) ([]string, error) {
	var errs []string

	exists, err := v.store.EntryExists(ctx, appID, spec.EntryPage, p.Slug)
	if err != nil {
		return nil, fmt.Errorf("validate create_page %q: %w", p.Slug, err)
	}
	if exists {
		errs = append(errs, fmt.Sprintf("page %q already exists", p.Slug))
	}

	if p.Layout != "" {
		// Layouts ship as component-library entries.
		exists, err := v.store.EntryExists(ctx, appID, spec.EntryComponent, p.Layout)
		if err != nil {
			return nil, fmt.Errorf("validate create_page %q layout: %w", p.Slug, err)
		}
		if !exists {
			errs = append(errs, fmt.Sprintf("layout %q does not exist", p.Layout))
		}
	}

	for _, component := range p.Components {
		exists, err := v.store.EntryExists(ctx, appID, spec.EntryComponent, component)
		if err != nil {
			return nil, fmt.Errorf("validate create_page %q components: %w", p.Slug, err)
		}
		if !exists {
			errs = append(errs, fmt.Sprintf("component %q does not exist", component))
		}
	}

	return errs, nil
}

func (v *Validator) validateCreateComponent(ctx context.Context, appID string, p *spec.CreateComponent) ([]string, error) {
	if p.PageSlug == "" {
		return nil, nil
	}

	exists, err := v.store.EntryExists(ctx, appID, spec.EntryPage, p.PageSlug)
	if err != nil {
		return nil, fmt.Errorf("validate create_component %q: %w", p.Name, err)
	}
	if !exists {
		return []string{fmt.Sprintf("page %q does not exist", p.PageSlug)}, nil
	}
	return nil, nil
}
