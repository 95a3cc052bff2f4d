package spec

import (
	"fmt"
	"strings"
)

// targetAliases are the descriptor fields consulted, in order, when
// resolving a step's target name.
var targetAliases = []string{"name", "slug", "componentName", "target"}

// KindOf reads the step kind from a raw descriptor's type field,
// falling back to KindGeneric when absent or not a string.
func KindOf(raw RawStep) StepKind {
	if t := stringField(raw, "type"); t != "" {
		return StepKind(strings.ToLower(t))
	}
	return KindGeneric
}

// TargetOf resolves a step's target from the first present of name,
// slug, componentName, target. When none is present the target is
// synthesized as "step-<index>".
func TargetOf(raw RawStep, index int) string {
	for _, alias := range targetAliases {
		if v := stringField(raw, alias); v != "" {
			return v
		}
	}
	return fmt.Sprintf("step-%d", index)
}

// FieldDef is one field of a data model, with its type already
// normalized to the canonical set.
type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CreateModel creates one data_model entry.
type CreateModel struct {
	Name   string     `json:"name"`
	Fields []FieldDef `json:"fields"`
}

// CreatePage creates one page entry with an ordered components array.
type CreatePage struct {
	Slug       string   `json:"slug"`
	Title      string   `json:"title,omitempty"`
	Layout     string   `json:"layout,omitempty"`
	Theme      string   `json:"theme,omitempty"`
	Components []string `json:"components,omitempty"`
}

// CreateComponent upserts one component-library entry, optionally
// appending an instance onto a page.
type CreateComponent struct {
	Name          string         `json:"name"`
	ComponentType string         `json:"componentType"`
	Props         map[string]any `json:"props,omitempty"`
	PageSlug      string         `json:"pageSlug,omitempty"`
}

// SetPermissions merges canonical rules into the app's ruleset.
type SetPermissions struct {
	Rules []PermissionRule `json:"rules"`
}

// Payload is the discriminated union of step payloads. Exactly one
// variant is non-nil, matching Kind.
type Payload struct {
	Kind            StepKind         `json:"kind"`
	CreateModel     *CreateModel     `json:"create_model,omitempty"`
	CreatePage      *CreatePage      `json:"create_page,omitempty"`
	CreateComponent *CreateComponent `json:"create_component,omitempty"`
	SetPermissions  *SetPermissions  `json:"set_permissions,omitempty"`
}

// DecodeStep normalizes a raw descriptor into a typed payload. Every
// legacy alias field is folded into the canonical variant here, once;
// downstream handlers see only canonical shapes.
func DecodeStep(raw RawStep, index int) (Payload, error) {
	kind := KindOf(raw)
	switch kind {
	case KindCreateModel:
		p, err := decodeCreateModel(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: kind, CreateModel: p}, nil
	case KindCreatePage:
		p, err := decodeCreatePage(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: kind, CreatePage: p}, nil
	case KindCreateComponent:
		p, err := decodeCreateComponent(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Kind: kind, CreateComponent: p}, nil
	case KindSetPermissions:
		rules, err := NormalizePermissions(raw)
		if err != nil {
			return Payload{}, fmt.Errorf("set_permissions: %w", err)
		}
		return Payload{Kind: kind, SetPermissions: &SetPermissions{Rules: rules}}, nil
	default:
		return Payload{}, fmt.Errorf("unsupported step type %q (step %d)", kind, index)
	}
}

func decodeCreateModel(raw RawStep) (*CreateModel, error) {
	name := stringField(raw, "name")
	if name == "" {
		name = stringField(raw, "target")
	}
	if name == "" {
		return nil, fmt.Errorf("create_model: missing name")
	}

	rawFields, ok := raw["fields"].([]any)
	if !ok || len(rawFields) == 0 {
		return nil, fmt.Errorf("create_model %q: missing fields", name)
	}

	fields := make([]FieldDef, 0, len(rawFields))
	for i, rf := range rawFields {
		fm, ok := rf.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("create_model %q: field %d is not an object", name, i)
		}
		fname := stringField(fm, "name")
		if fname == "" {
			return nil, fmt.Errorf("create_model %q: field %d missing name", name, i)
		}
		ftype, err := NormalizeFieldType(stringField(fm, "type"))
		if err != nil {
			return nil, fmt.Errorf("create_model %q: field %q: %w", name, fname, err)
		}
		fields = append(fields, FieldDef{Name: fname, Type: ftype})
	}

	return &CreateModel{Name: name, Fields: fields}, nil
}

func decodeCreatePage(raw RawStep) (*CreatePage, error) {
	slug := stringField(raw, "slug")
	if slug == "" {
		slug = stringField(raw, "name")
	}
	if slug == "" {
		return nil, fmt.Errorf("create_page: missing slug")
	}

	p := &CreatePage{
		Slug:   slug,
		Title:  stringField(raw, "title"),
		Layout: stringField(raw, "layout"),
		Theme:  strings.ToLower(stringField(raw, "theme")),
	}
	if p.Theme != "" && !ValidThemes[p.Theme] {
		return nil, fmt.Errorf("create_page %q: invalid theme %q", slug, p.Theme)
	}

	if rawComponents, ok := raw["components"].([]any); ok {
		for i, rc := range rawComponents {
			name, ok := rc.(string)
			if !ok {
				return nil, fmt.Errorf("create_page %q: component %d is not a string", slug, i)
			}
			p.Components = append(p.Components, name)
		}
	}

	return p, nil
}

func decodeCreateComponent(raw RawStep) (*CreateComponent, error) {
	name := stringField(raw, "name")
	if name == "" {
		name = stringField(raw, "componentName")
	}
	if name == "" {
		return nil, fmt.Errorf("create_component: missing name")
	}

	ctype := stringField(raw, "componentType")
	if ctype == "" {
		ctype = stringField(raw, "component_type")
	}
	if ctype == "" {
		return nil, fmt.Errorf("create_component %q: missing componentType", name)
	}

	p := &CreateComponent{
		Name:          name,
		ComponentType: ctype,
		PageSlug:      stringField(raw, "pageSlug"),
	}
	if p.PageSlug == "" {
		p.PageSlug = stringField(raw, "page_slug")
	}
	if props, ok := raw["props"].(map[string]any); ok {
		p.Props = props
	}

	return p, nil
}
