package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFieldType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string alias", "string", "text"},
		{"integer alias", "integer", "number"},
		{"datetime alias", "datetime", "timestamptz"},
		{"reference alias", "reference", "uuid"},
		{"authentication alias", "authentication", "jsonb"},
		{"uppercase alias", "INTEGER", "number"},
		{"mixed case alias", "Integer", "number"},
		{"canonical passes through", "text", "text"},
		{"canonical uppercase", "BOOLEAN", "boolean"},
		{"surrounding whitespace", "  date ", "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NormalizeFieldType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNormalizeFieldTypeIdempotent(t *testing.T) {
	for alias := range fieldTypeAliases {
		once, err := NormalizeFieldType(alias)
		require.NoError(t, err)

		twice, err := NormalizeFieldType(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "normalizing %q twice changed the result", alias)
	}
}

func TestNormalizeFieldTypeUnknown(t *testing.T) {
	_, err := NormalizeFieldType("varchar")
	assert.Error(t, err)

	_, err = NormalizeFieldType("")
	assert.Error(t, err)
}

func TestNormalizePermissionsShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected []PermissionRule
	}{
		{
			"explicit triples",
			map[string]any{"permissions": []any{
				map[string]any{"resource": "orders", "action": "read", "role": "user"},
				map[string]any{"resource": "orders", "action": "write", "role": "admin"},
			}},
			[]PermissionRule{
				{Resource: "orders", Action: "read", Role: "user"},
				{Resource: "orders", Action: "write", Role: "admin"},
			},
		},
		{
			"rules key",
			map[string]any{"rules": []any{
				map[string]any{"resource": "pages", "action": "update", "role": "authenticated"},
			}},
			[]PermissionRule{
				{Resource: "pages", Action: "update", Role: "authenticated"},
			},
		},
		{
			"bare action strings default resource and role",
			map[string]any{"access_rules": []any{"read", "write"}},
			[]PermissionRule{
				{Resource: "app", Action: "read", Role: "user"},
				{Resource: "app", Action: "write", Role: "user"},
			},
		},
		{
			"nested container",
			map[string]any{"permissions": map[string]any{"rules": []any{
				map[string]any{"resource": "orders", "action": "delete", "role": "admin"},
			}}},
			[]PermissionRule{
				{Resource: "orders", Action: "delete", Role: "admin"},
			},
		},
		{
			"missing resource defaults to app",
			map[string]any{"rules": []any{
				map[string]any{"action": "read", "role": "public"},
			}},
			[]PermissionRule{
				{Resource: "app", Action: "read", Role: "public"},
			},
		},
		{
			"mixed case action and role",
			map[string]any{"rules": []any{
				map[string]any{"resource": "orders", "action": "READ", "role": "Admin"},
			}},
			[]PermissionRule{
				{Resource: "orders", Action: "read", Role: "admin"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := NormalizePermissions(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, rules)
		})
	}
}

func TestNormalizePermissionsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
	}{
		{"no permission field at all", map[string]any{"type": "set_permissions"}},
		{"unknown action", map[string]any{"rules": []any{
			map[string]any{"resource": "orders", "action": "fly", "role": "user"},
		}}},
		{"unknown role", map[string]any{"rules": []any{
			map[string]any{"resource": "orders", "action": "read", "role": "wizard"},
		}}},
		{"non-list non-container value", map[string]any{"permissions": "read"}},
		{"rule is a number", map[string]any{"rules": []any{float64(7)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizePermissions(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestMergePermissionRules(t *testing.T) {
	existing := []PermissionRule{
		{Resource: "orders", Action: "read", Role: "user"},
		{Resource: "orders", Action: "write", Role: "admin"},
	}

	merged := MergePermissionRules(existing, []PermissionRule{
		{Resource: "orders", Action: "read", Role: "user"},   // exact match, replaces
		{Resource: "pages", Action: "read", Role: "public"},  // new triple, appends
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "orders", merged[0].Resource)
	assert.Equal(t, "pages", merged[2].Resource)
}

func TestMergePermissionRulesIdempotent(t *testing.T) {
	incoming := []PermissionRule{{Resource: "orders", Action: "read", Role: "user"}}

	once := MergePermissionRules(nil, incoming)
	twice := MergePermissionRules(once, incoming)

	assert.Equal(t, once, twice, "merging the same triple twice must not duplicate it")
	assert.Len(t, twice, 1)
}

func TestMergePermissionRulesDoesNotMutateExisting(t *testing.T) {
	existing := []PermissionRule{{Resource: "orders", Action: "read", Role: "user"}}

	MergePermissionRules(existing, []PermissionRule{
		{Resource: "pages", Action: "read", Role: "user"},
	})

	assert.Len(t, existing, 1)
}

func TestRulesFromEntry(t *testing.T) {
	value := map[string]any{"rules": []any{
		map[string]any{"resource": "orders", "action": "read", "role": "user"},
	}}

	rules, err := RulesFromEntry(value)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, PermissionRule{Resource: "orders", Action: "read", Role: "user"}, rules[0])

	_, err = RulesFromEntry(map[string]any{"not-rules": []any{}})
	assert.Error(t, err)
}
