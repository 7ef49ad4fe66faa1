package schema

import (
	"fmt"
	"log/slog"
)

// Normalizer fills raw model output into a schema-complete Record.
type Normalizer struct {
	maxFieldLength int
	logger         *slog.Logger
}

// NewNormalizer returns a Normalizer. maxFieldLength <= 0 uses the default.
func NewNormalizer(maxFieldLength int, logger *slog.Logger) *Normalizer {
	if maxFieldLength <= 0 {
		maxFieldLength = DefaultMaxFieldLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{maxFieldLength: maxFieldLength, logger: logger}
}

// Normalize maps raw model output onto the canonical schema. Every schema
// field is present in the result; fields the model omitted (or returned in a
// broken shape) become the sentinel triple. Out-of-range scores are clamped,
// unknown enum values fall back to not_found, and overlong values are
// truncated with a logged warning rather than dropped silently.
func (n *Normalizer) Normalize(raw map[string]any) Record {
	out := make(Record, len(Catalog))
	for _, cat := range Catalog {
		fields := make(map[string]FieldResult, len(cat.Fields))
		var rawCat map[string]any
		if raw != nil {
			rawCat, _ = raw[cat.Name].(map[string]any)
		}
		for _, f := range cat.Fields {
			fields[f.Name] = n.normalizeField(cat.Name, f.Name, rawCat[f.Name])
		}
		out[cat.Name] = fields
	}
	return out
}

// Empty returns the all-sentinel record.
func (n *Normalizer) Empty() Record {
	return n.Normalize(nil)
}

func (n *Normalizer) normalizeField(category, name string, raw any) FieldResult {
	fm, ok := raw.(map[string]any)
	if !ok {
		// Legacy shape: a bare string value.
		if s, isStr := raw.(string); isStr && s != "" && s != NotFound {
			return FieldResult{
				ExtractedValue: n.truncateValue(category, name, s),
				MatchFlag:      MatchReview,
				Validation:     Assessment{Score: 0, Status: StatusWarning},
			}
		}
		return NotFoundField()
	}

	value := NotFound
	switch v := fm["extracted_value"].(type) {
	case string:
		if v != "" {
			value = v
		}
	case nil:
		// keep sentinel
	default:
		value = fmt.Sprintf("%v", v)
	}
	if value != NotFound {
		value = n.truncateValue(category, name, value)
	}

	flag := MatchNotFound
	if s, isStr := fm["match_flag"].(string); isStr && validMatchFlag(MatchFlag(s)) {
		flag = MatchFlag(s)
	}

	assessment := Assessment{Score: 0, Status: StatusNotFound}
	if vm, isMap := fm["validation"].(map[string]any); isMap {
		switch s := vm["score"].(type) {
		case float64:
			assessment.Score = clampScore(int(s))
		case int:
			assessment.Score = clampScore(s)
		}
		if s, isStr := vm["status"].(string); isStr && validStatus(ValidationStatus(s)) {
			assessment.Status = ValidationStatus(s)
		}
		if notes, isStr := vm["notes"].(string); isStr {
			if len(notes) > MaxNotesLength {
				notes = notes[:MaxNotesLength]
			}
			assessment.Notes = notes
		}
	}

	return FieldResult{ExtractedValue: value, MatchFlag: flag, Validation: assessment}
}

func (n *Normalizer) truncateValue(category, name, value string) string {
	if len(value) <= n.maxFieldLength {
		return value
	}
	n.logger.Warn("schema.normalize.value_truncated",
		"category", category,
		"field", name,
		"original_length", len(value),
		"max_length", n.maxFieldLength,
	)
	return value[:n.maxFieldLength]
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
