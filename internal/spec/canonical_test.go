package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int", -100, "-100"},
		{"bool true", true, "true"},
		{"bool false", false, "false"},
		{"null", nil, "null"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"whole float as int", float64(3), "3"},
		{"fractional float", 3.5, "3.5"},
		{"array", []any{float64(1), "a", true}, `[1,"a",true]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"beta":  3,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalNestedSorting(t *testing.T) {
	obj := map[string]any{
		"b": map[string]any{"y": 1, "x": 2},
		"a": []any{map[string]any{"k2": 1, "k1": 2}},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[{"k1":2,"k2":1}],"b":{"x":2,"y":1}}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	result, err := MarshalCanonical("<a> & </a>")
	require.NoError(t, err)
	assert.Equal(t, `"<a> & </a>"`, string(result))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "é" as combining sequence (e + U+0301) vs precomposed U+00E9.
	combining := "é"
	precomposed := "é"

	a, err := MarshalCanonical(combining)
	require.NoError(t, err)
	b, err := MarshalCanonical(precomposed)
	require.NoError(t, err)

	assert.Equal(t, string(b), string(a), "NFC-equivalent strings must marshal identically")
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	obj := map[string]any{
		"pages":  map[string]any{"home": map[string]any{"title": "Home"}},
		"models": map[string]any{"orders": map[string]any{"fields": []any{"id", "total"}}},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshalCanonicalNamedTypes(t *testing.T) {
	raw := RawStep{"type": "create_model", "name": "orders"}

	result, err := MarshalCanonical(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"orders","type":"create_model"}`, string(result))
}
