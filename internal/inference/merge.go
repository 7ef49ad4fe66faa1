package inference

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/contractlens/extractor/internal/schema"
)

// MergePolicy decides which channel wins a dual-extraction conflict. Fields
// listed as vision-preferred (signatures, handwritten dates) trust the vision
// channel; everything else trusts the text channel.
type MergePolicy struct {
	visionPreferred map[string]bool // "Category\x00Field"
}

type mergePolicyFile struct {
	VisionPreferred []struct {
		Category string `yaml:"category"`
		Field    string `yaml:"field"`
	} `yaml:"vision_preferred"`
}

// DefaultMergePolicy prefers the vision channel for fields read off the
// signature page.
func DefaultMergePolicy() *MergePolicy {
	p := &MergePolicy{visionPreferred: map[string]bool{}}
	p.add("Contract Lifecycle", "Authorized Signatory - Party A")
	p.add("Contract Lifecycle", "Authorized Signatory - Party B")
	p.add("Contract Lifecycle", "Execution Date")
	return p
}

// LoadMergePolicy reads a YAML vision-preferred table. An empty path returns
// the default policy.
func LoadMergePolicy(path string) (*MergePolicy, error) {
	if path == "" {
		return DefaultMergePolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read merge policy: %w", err)
	}
	var file mergePolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse merge policy: %w", err)
	}
	p := &MergePolicy{visionPreferred: map[string]bool{}}
	for _, e := range file.VisionPreferred {
		p.add(e.Category, e.Field)
	}
	return p, nil
}

func (p *MergePolicy) add(category, field string) {
	p.visionPreferred[category+"\x00"+field] = true
}

// VisionPreferred reports whether the vision channel wins conflicts for the
// given field.
func (p *MergePolicy) VisionPreferred(category, field string) bool {
	return p.visionPreferred[category+"\x00"+field]
}

// mergeRecords combines the text and vision channel records field by field:
// a found value beats the sentinel, identical values keep the higher
// confidence, and conflicting values follow the policy with the losing value
// recorded in the notes.
func mergeRecords(text, vision schema.Record, policy *MergePolicy) schema.Record {
	out := make(schema.Record, len(schema.Catalog))
	for _, cat := range schema.Catalog {
		fields := make(map[string]schema.FieldResult, len(cat.Fields))
		for _, f := range cat.Fields {
			fields[f.Name] = mergeField(cat.Name, f.Name, text[cat.Name][f.Name], vision[cat.Name][f.Name], policy)
		}
		out[cat.Name] = fields
	}
	return out
}

func mergeField(category, field string, t, v schema.FieldResult, policy *MergePolicy) schema.FieldResult {
	tFound := t.ExtractedValue != schema.NotFound
	vFound := v.ExtractedValue != schema.NotFound

	switch {
	case !tFound && !vFound:
		return schema.NotFoundField()
	case tFound && !vFound:
		return t
	case !tFound && vFound:
		return v
	}

	if t.ExtractedValue == v.ExtractedValue {
		merged := t
		merged.Validation.Status = schema.HigherConfidence(t.Validation.Status, v.Validation.Status)
		if v.Validation.Score > merged.Validation.Score {
			merged.Validation.Score = v.Validation.Score
		}
		return merged
	}

	winner, loser, loserName := t, v, "vision"
	if policy.VisionPreferred(category, field) {
		winner, loser, loserName = v, t, "text"
	}
	note := fmt.Sprintf("dual channel conflict: %s channel extracted %q", loserName, loser.ExtractedValue)
	if winner.Validation.Notes != "" {
		note = winner.Validation.Notes + "; " + note
	}
	if len(note) > schema.MaxNotesLength {
		note = note[:schema.MaxNotesLength]
	}
	winner.Validation.Notes = note
	return winner
}
