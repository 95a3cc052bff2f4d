package spec

import (
	"fmt"
	"strings"
)

// fieldTypeAliases maps legacy field type names onto canonical ones.
// Lookup is case-insensitive. Canonical names map to themselves via
// canonicalFieldTypes, so normalization is idempotent.
var fieldTypeAliases = map[string]string{
	"string":         "text",
	"integer":        "number",
	"datetime":       "timestamptz",
	"reference":      "uuid",
	"authentication": "jsonb",
}

// canonicalFieldTypes is the closed set of data model field types.
var canonicalFieldTypes = map[string]bool{
	"text":        true,
	"number":      true,
	"boolean":     true,
	"date":        true,
	"timestamptz": true,
	"uuid":        true,
	"jsonb":       true,
	"array":       true,
	"object":      true,
}

// NormalizeFieldType resolves a field type through the alias table and
// checks it against the canonical set. Case-insensitive and idempotent:
// "INTEGER", "integer", and "Integer" all normalize to "number", and
// re-normalizing "number" yields "number".
func NormalizeFieldType(t string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(t))
	if canonical, ok := fieldTypeAliases[lower]; ok {
		return canonical, nil
	}
	if canonicalFieldTypes[lower] {
		return lower, nil
	}
	return "", fmt.Errorf("unknown field type %q", t)
}

// Permission enums. Closed sets; anything else is a structural error.
var (
	ValidPermissionActions = map[string]bool{
		"read":   true,
		"write":  true,
		"delete": true,
		"admin":  true,
		"create": true,
		"update": true,
	}

	ValidPermissionRoles = map[string]bool{
		"user":          true,
		"admin":         true,
		"public":        true,
		"authenticated": true,
	}
)

// ValidThemes is the closed set of theme values accepted on pages and
// schema entries.
var ValidThemes = map[string]bool{
	"light":  true,
	"dark":   true,
	"system": true,
}

// PermissionRulesetKey is the key of the app's single ruleset entry.
const PermissionRulesetKey = "default"

// PermissionRule is one canonical (resource, action, role) triple.
type PermissionRule struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Role     string `json:"role"`
}

// Validate checks the rule against the closed action and role sets.
func (r PermissionRule) Validate() error {
	if r.Resource == "" {
		return fmt.Errorf("permission rule missing resource")
	}
	if !ValidPermissionActions[r.Action] {
		return fmt.Errorf("invalid permission action %q", r.Action)
	}
	if !ValidPermissionRoles[r.Role] {
		return fmt.Errorf("invalid permission role %q", r.Role)
	}
	return nil
}

// Same reports whether two rules address the same (resource, action,
// role) triple. Merging replaces on Same, appends otherwise.
func (r PermissionRule) Same(other PermissionRule) bool {
	return r.Resource == other.Resource && r.Action == other.Action && r.Role == other.Role
}

// NormalizePermissions folds the historical permission input shapes
// into a canonical triple list:
//
//   - explicit list of {resource, action, role} objects
//   - bare action strings under access_rules (role defaults to "user",
//     resource defaults to "app")
//   - nested containers named "permissions" or "rules"
//
// Rules are validated against the closed action/role sets. Order is
// preserved.
func NormalizePermissions(raw map[string]any) ([]PermissionRule, error) {
	list, err := findPermissionList(raw)
	if err != nil {
		return nil, err
	}

	rules := make([]PermissionRule, 0, len(list))
	for i, item := range list {
		rule, err := decodePermissionItem(item)
		if err != nil {
			return nil, fmt.Errorf("permission %d: %w", i, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("permission %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// findPermissionList locates the rule list inside a raw payload,
// descending into nested containers named "permissions" or "rules".
func findPermissionList(raw map[string]any) ([]any, error) {
	for _, key := range []string{"permissions", "rules", "access_rules"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch inner := v.(type) {
		case []any:
			return inner, nil
		case map[string]any:
			// Nested container: {"permissions": {"rules": [...]}}
			return findPermissionList(inner)
		default:
			return nil, fmt.Errorf("field %q: expected list or container, got %T", key, v)
		}
	}
	return nil, fmt.Errorf("no permissions, rules, or access_rules field present")
}

func decodePermissionItem(item any) (PermissionRule, error) {
	switch v := item.(type) {
	case string:
		// Bare action string: resource and role take defaults.
		return PermissionRule{Resource: "app", Action: strings.ToLower(v), Role: "user"}, nil
	case map[string]any:
		rule := PermissionRule{
			Resource: stringField(v, "resource"),
			Action:   strings.ToLower(stringField(v, "action")),
			Role:     strings.ToLower(stringField(v, "role")),
		}
		if rule.Resource == "" {
			rule.Resource = "app"
		}
		if rule.Role == "" {
			rule.Role = "user"
		}
		return rule, nil
	default:
		return PermissionRule{}, fmt.Errorf("expected string or object, got %T", item)
	}
}

// MergePermissionRules merges incoming rules into existing ones keyed
// by exact (resource, action, role) match: replace on match, else
// append. Submitting the same triple twice therefore yields exactly
// one stored rule.
func MergePermissionRules(existing, incoming []PermissionRule) []PermissionRule {
	merged := make([]PermissionRule, len(existing))
	copy(merged, existing)

	for _, in := range incoming {
		replaced := false
		for i, have := range merged {
			if have.Same(in) {
				merged[i] = in
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, in)
		}
	}
	return merged
}

// RulesFromEntry decodes a stored ruleset document back into canonical
// rules. Stored documents always use the {"rules": [...]} shape.
func RulesFromEntry(value map[string]any) ([]PermissionRule, error) {
	raw, ok := value["rules"].([]any)
	if !ok {
		return nil, fmt.Errorf("ruleset document missing rules list")
	}

	rules := make([]PermissionRule, 0, len(raw))
	for i, item := range raw {
		rm, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("rule %d is not an object", i)
		}
		rules = append(rules, PermissionRule{
			Resource: stringField(rm, "resource"),
			Action:   stringField(rm, "action"),
			Role:     stringField(rm, "role"),
		})
	}
	return rules, nil
}

// stringField reads a string-valued field from a raw map, returning ""
// for missing or non-string values.
func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
