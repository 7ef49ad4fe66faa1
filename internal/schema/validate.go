package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildJSONSchema returns the JSON-Schema (draft 2020-12 subset) for the full
// metadata record as a generic map. Every category and field is required and
// every field carries the enhanced {extracted_value, match_flag, validation}
// structure.
func BuildJSONSchema(maxFieldLength int) map[string]any {
	if maxFieldLength <= 0 {
		maxFieldLength = DefaultMaxFieldLength
	}

	matchEnum := make([]any, len(MatchFlagValues))
	for i, v := range MatchFlagValues {
		matchEnum[i] = string(v)
	}
	statusEnum := make([]any, len(ValidationStatusValues))
	for i, v := range ValidationStatusValues {
		statusEnum[i] = string(v)
	}

	fieldSchema := func() map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"extracted_value": map[string]any{"type": "string", "maxLength": maxFieldLength},
				"match_flag":      map[string]any{"type": "string", "enum": matchEnum},
				"validation": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"score":  map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
						"status": map[string]any{"type": "string", "enum": statusEnum},
						"notes":  map[string]any{"type": "string", "maxLength": MaxNotesLength},
					},
					"required": []any{"score", "status"},
				},
			},
			"required": []any{"extracted_value", "match_flag", "validation"},
		}
	}

	props := map[string]any{}
	required := []any{}
	for _, cat := range Catalog {
		catProps := map[string]any{}
		catRequired := []any{}
		for _, f := range cat.Fields {
			catProps[f.Name] = fieldSchema()
			catRequired = append(catRequired, f.Name)
		}
		props[cat.Name] = map[string]any{
			"type":       "object",
			"properties": catProps,
			"required":   catRequired,
		}
		required = append(required, cat.Name)
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Validator validates raw model output against the canonical schema.
// Construct once per process and pass by reference.
type Validator struct {
	compiled *jsonschema.Schema
}

// NewValidator compiles the canonical schema. maxFieldLength <= 0 uses the
// default.
func NewValidator(maxFieldLength int) (*Validator, error) {
	b, err := json.Marshal(BuildJSONSchema(maxFieldLength))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("metadata.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// Validate checks raw model output against the schema. It must run on the
// raw output BEFORE Normalize fills sentinel defaults: a normalized record
// always passes, so validating afterwards would hide an under-delivering
// model. Returns (true, nil) on success and (false, error) describing the
// first mismatch otherwise.
func (v *Validator) Validate(raw map[string]any) (bool, error) {
	// jsonschema validates decoded JSON values; round-trip through encoding
	// so typed values (ints, nested maps) take their canonical JSON form.
	b, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("encode raw output: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return false, fmt.Errorf("decode raw output: %w", err)
	}
	if err := v.compiled.Validate(decoded); err != nil {
		return false, fmt.Errorf("metadata does not match schema: %w", err)
	}
	return true, nil
}

// ValidateRecord checks a typed Record. Used to enforce the coordinator's
// guarantee that only schema-valid records cross the subsystem boundary.
func (v *Validator) ValidateRecord(rec Record) (bool, error) {
	m := make(map[string]any, len(rec))
	for cat, fields := range rec {
		fm := make(map[string]any, len(fields))
		for name, fr := range fields {
			fm[name] = fr
		}
		m[cat] = fm
	}
	return v.Validate(m)
}
