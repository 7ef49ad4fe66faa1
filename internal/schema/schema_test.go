package schema

import (
	"strings"
	"testing"
)

func TestCatalogShape(t *testing.T) {
	if len(Catalog) != 7 {
		t.Fatalf("categories = %d, want 7", len(Catalog))
	}
	seen := map[string]bool{}
	for _, cat := range Catalog {
		if cat.Name == "" || len(cat.Fields) == 0 {
			t.Fatalf("malformed category %+v", cat)
		}
		for _, f := range cat.Fields {
			key := cat.Name + "/" + f.Name
			if seen[key] {
				t.Fatalf("duplicate field %s", key)
			}
			seen[key] = true
			if f.Definition == "" {
				t.Fatalf("field %s has no definition", key)
			}
		}
	}
	if FieldCount() != len(seen) {
		t.Fatalf("FieldCount = %d, want %d", FieldCount(), len(seen))
	}
}

func TestHigherConfidence(t *testing.T) {
	cases := []struct {
		a, b, want ValidationStatus
	}{
		{StatusValid, StatusWarning, StatusValid},
		{StatusWarning, StatusValid, StatusValid},
		{StatusInvalid, StatusNotFound, StatusInvalid},
		{StatusNotFound, StatusNotFound, StatusNotFound},
		{StatusValid, StatusValid, StatusValid},
	}
	for _, tc := range cases {
		if got := HigherConfidence(tc.a, tc.b); got != tc.want {
			t.Fatalf("HigherConfidence(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestNotFoundField(t *testing.T) {
	f := NotFoundField()
	if f.ExtractedValue != NotFound || f.MatchFlag != MatchNotFound {
		t.Fatalf("sentinel = %+v", f)
	}
	if f.Validation.Score != 0 || f.Validation.Status != StatusNotFound {
		t.Fatalf("sentinel assessment = %+v", f.Validation)
	}
}

func validFieldMap(value string) map[string]any {
	return map[string]any{
		"extracted_value": value,
		"match_flag":      string(MatchSame),
		"validation":      map[string]any{"score": 90, "status": string(StatusValid), "notes": ""},
	}
}

func completeRaw() map[string]any {
	out := map[string]any{}
	for _, cat := range Catalog {
		fields := map[string]any{}
		for _, f := range cat.Fields {
			fields[f.Name] = validFieldMap(NotFound)
		}
		out[cat.Name] = fields
	}
	return out
}

func TestValidateAcceptsCompleteOutput(t *testing.T) {
	v, err := NewValidator(0)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := v.Validate(completeRaw()); !ok {
		t.Fatalf("complete output rejected: %v", err)
	}
}

func TestValidateRejectsMissingField(t *testing.T) {
	v, err := NewValidator(0)
	if err != nil {
		t.Fatal(err)
	}
	raw := completeRaw()
	delete(raw["Legal Terms"].(map[string]any), "Governing Law")
	if ok, _ := v.Validate(raw); ok {
		t.Fatal("output missing a field passed validation")
	}
}

func TestValidateRejectsBadEnum(t *testing.T) {
	v, err := NewValidator(0)
	if err != nil {
		t.Fatal(err)
	}
	raw := completeRaw()
	raw["Org Details"].(map[string]any)["Organization Name"] = map[string]any{
		"extracted_value": "Acme",
		"match_flag":      "perfect_match",
		"validation":      map[string]any{"score": 90, "status": string(StatusValid)},
	}
	if ok, _ := v.Validate(raw); ok {
		t.Fatal("unknown match_flag passed validation")
	}
}

func TestValidateRejectsScoreOutOfRange(t *testing.T) {
	v, err := NewValidator(0)
	if err != nil {
		t.Fatal(err)
	}
	raw := completeRaw()
	raw["Org Details"].(map[string]any)["Organization Name"] = map[string]any{
		"extracted_value": "Acme",
		"match_flag":      string(MatchSame),
		"validation":      map[string]any{"score": 150, "status": string(StatusValid)},
	}
	if ok, _ := v.Validate(raw); ok {
		t.Fatal("score 150 passed validation")
	}
}

func TestValidateRecordRoundTrip(t *testing.T) {
	v, err := NewValidator(0)
	if err != nil {
		t.Fatal(err)
	}
	rec := NewNormalizer(0, nil).Empty()
	if ok, err := v.ValidateRecord(rec); !ok {
		t.Fatalf("normalized empty record rejected: %v", err)
	}
}

func TestNormalizeFillsEveryField(t *testing.T) {
	rec := NewNormalizer(0, nil).Normalize(map[string]any{})
	total := 0
	for _, cat := range Catalog {
		fields, ok := rec[cat.Name]
		if !ok {
			t.Fatalf("category %q missing", cat.Name)
		}
		for _, f := range cat.Fields {
			fr, ok := fields[f.Name]
			if !ok {
				t.Fatalf("field %s/%s missing", cat.Name, f.Name)
			}
			if fr.ExtractedValue != NotFound {
				t.Fatalf("field %s/%s = %q, want sentinel", cat.Name, f.Name, fr.ExtractedValue)
			}
			total++
		}
	}
	if total != FieldCount() {
		t.Fatalf("fields = %d, want %d", total, FieldCount())
	}
}

func TestNormalizePreservesDeliveredValues(t *testing.T) {
	raw := map[string]any{
		"Org Details": map[string]any{
			"Organization Name": validFieldMap("Acme Corp"),
		},
	}
	rec := NewNormalizer(0, nil).Normalize(raw)
	fr := rec["Org Details"]["Organization Name"]
	if fr.ExtractedValue != "Acme Corp" || fr.MatchFlag != MatchSame || fr.Validation.Score != 90 {
		t.Fatalf("field = %+v", fr)
	}
}

func TestNormalizeLegacyBareString(t *testing.T) {
	raw := map[string]any{
		"Org Details": map[string]any{"Organization Name": "Acme Corp"},
	}
	fr := NewNormalizer(0, nil).Normalize(raw)["Org Details"]["Organization Name"]
	if fr.ExtractedValue != "Acme Corp" {
		t.Fatalf("value = %q", fr.ExtractedValue)
	}
	if fr.MatchFlag != MatchReview || fr.Validation.Status != StatusWarning {
		t.Fatalf("legacy shape not flagged for review: %+v", fr)
	}
}

func TestNormalizeClampsAndTruncates(t *testing.T) {
	long := strings.Repeat("x", 2000)
	raw := map[string]any{
		"Org Details": map[string]any{
			"Organization Name": map[string]any{
				"extracted_value": long,
				"match_flag":      string(MatchSame),
				"validation":      map[string]any{"score": float64(-5), "status": string(StatusValid), "notes": strings.Repeat("n", 600)},
			},
		},
	}
	fr := NewNormalizer(100, nil).Normalize(raw)["Org Details"]["Organization Name"]
	if len(fr.ExtractedValue) != 100 {
		t.Fatalf("value length = %d, want 100", len(fr.ExtractedValue))
	}
	if fr.Validation.Score != 0 {
		t.Fatalf("score = %d, want clamped to 0", fr.Validation.Score)
	}
	if len(fr.Validation.Notes) != MaxNotesLength {
		t.Fatalf("notes length = %d, want %d", len(fr.Validation.Notes), MaxNotesLength)
	}
}

func TestNormalizeUnknownEnumFallsBack(t *testing.T) {
	raw := map[string]any{
		"Org Details": map[string]any{
			"Organization Name": map[string]any{
				"extracted_value": "Acme",
				"match_flag":      "definitely_matches",
				"validation":      map[string]any{"score": 50, "status": "excellent"},
			},
		},
	}
	fr := NewNormalizer(0, nil).Normalize(raw)["Org Details"]["Organization Name"]
	if fr.MatchFlag != MatchNotFound {
		t.Fatalf("match_flag = %s, want fallback", fr.MatchFlag)
	}
	if fr.Validation.Status != StatusNotFound {
		t.Fatalf("status = %s, want fallback", fr.Validation.Status)
	}
}

func TestNormalizedRecordAlwaysValidates(t *testing.T) {
	// The ordering invariant depends on this: a normalized record passes the
	// schema no matter how broken the raw output was.
	v, err := NewValidator(0)
	if err != nil {
		t.Fatal(err)
	}
	inputs := []map[string]any{
		nil,
		{},
		{"Garbage": "category"},
		{"Org Details": map[string]any{"Organization Name": 42}},
	}
	n := NewNormalizer(0, nil)
	for _, raw := range inputs {
		if ok, err := v.ValidateRecord(n.Normalize(raw)); !ok {
			t.Fatalf("normalized %v rejected: %v", raw, err)
		}
	}
}
