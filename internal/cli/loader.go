package cli

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/loom/internal/spec"
)

//go:embed intent.cue
var intentSchemaCUE string

// IntentFile is a parsed intent batch: one producer intent and a
// non-empty list of raw operation descriptors.
type IntentFile struct {
	Intent     string         `json:"intent"`
	Operations []spec.RawStep `json:"operations"`
}

// LoadIntentFile reads an intent batch from a YAML or JSON file,
// checks it against the embedded CUE schema, and returns the parsed
// batch. The schema enforces the envelope (non-empty intent, non-empty
// operations list); descriptor fields stay duck-typed and are
// normalized downstream.
func LoadIntentFile(path string) (IntentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return IntentFile{}, fmt.Errorf("read intent file: %w", err)
	}

	raw, err := decodeIntentData(path, data)
	if err != nil {
		return IntentFile{}, err
	}

	if err := validateIntentSchema(raw); err != nil {
		return IntentFile{}, fmt.Errorf("intent file %s: %w", path, err)
	}

	var file IntentFile
	// Round-trip through JSON so YAML and JSON inputs produce
	// identical map shapes for the raw descriptors.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return IntentFile{}, fmt.Errorf("intent file %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonData, &file); err != nil {
		return IntentFile{}, fmt.Errorf("intent file %s: %w", path, err)
	}

	return file, nil
}

// decodeIntentData parses file bytes by extension: .yaml/.yml via
// yaml.v3, anything else as JSON.
func decodeIntentData(path string, data []byte) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML intent file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON intent file %s: %w", path, err)
		}
	}
	return raw, nil
}

// validateIntentSchema unifies the parsed document with the embedded
// CUE schema and reports any violation.
func validateIntentSchema(raw map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(intentSchemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile intent schema: %w", err)
	}

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode intent document: %w", err)
	}

	unified := schema.Unify(value)
	// Final() makes required fields (intent!, operations!) bite.
	if err := unified.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}

	return nil
}
