package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/document"
	"github.com/contractlens/extractor/internal/extractor"
	"github.com/contractlens/extractor/internal/ocr"
	"github.com/contractlens/extractor/internal/schema"
)

// fullRaw builds schema-valid raw model output: every field sentinel except
// the overrides, which become confident findings.
func fullRaw(overrides map[string]map[string]string) map[string]any {
	out := map[string]any{}
	for _, cat := range schema.Catalog {
		fields := map[string]any{}
		for _, f := range cat.Fields {
			value, found := "", false
			if overrides[cat.Name] != nil {
				value, found = overrides[cat.Name][f.Name]
			}
			if found {
				fields[f.Name] = map[string]any{
					"extracted_value": value,
					"match_flag":      string(schema.MatchSame),
					"validation":      map[string]any{"score": 90, "status": string(schema.StatusValid), "notes": ""},
				}
			} else {
				fields[f.Name] = map[string]any{
					"extracted_value": schema.NotFound,
					"match_flag":      string(schema.MatchNotFound),
					"validation":      map[string]any{"score": 0, "status": string(schema.StatusNotFound), "notes": ""},
				}
			}
		}
		out[cat.Name] = fields
	}
	return out
}

type fakeClient struct {
	textRaw    map[string]any
	visionRaw  map[string]any
	textErr    error
	visionErr  error
	textCalls  int32
	visionCall int32
	multiCalls int32
	lastImages int
	lastText   string
}

func (f *fakeClient) ExtractFromText(ctx context.Context, text string) (map[string]any, error) {
	atomic.AddInt32(&f.textCalls, 1)
	return f.textRaw, f.textErr
}

func (f *fakeClient) ExtractFromImages(ctx context.Context, images [][]byte) (map[string]any, error) {
	atomic.AddInt32(&f.visionCall, 1)
	f.lastImages = len(images)
	return f.visionRaw, f.visionErr
}

func (f *fakeClient) ExtractMultimodal(ctx context.Context, text string, images [][]byte) (map[string]any, error) {
	atomic.AddInt32(&f.multiCalls, 1)
	f.lastImages = len(images)
	f.lastText = text
	return f.textRaw, f.textErr
}

func newDispatcher(t *testing.T, client ModelClient) *Dispatcher {
	t.Helper()
	validator, err := schema.NewValidator(0)
	if err != nil {
		t.Fatal(err)
	}
	return NewDispatcher(client, validator, schema.NewNormalizer(0, nil), nil, time.Second, nil)
}

func textImageBundle() *extractor.ContentBundle {
	return &extractor.ContentBundle{
		RawText:       "AGREEMENT between Acme Corp and Globex",
		ImagePayloads: [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")},
	}
}

func TestMultimodalSingleCall(t *testing.T) {
	client := &fakeClient{textRaw: fullRaw(nil)}
	d := newDispatcher(t, client)
	out, err := d.Process(context.Background(), textImageBundle(), constants.ModeMultimodal)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if client.multiCalls != 1 || client.textCalls != 0 || client.visionCall != 0 {
		t.Fatalf("calls multi=%d text=%d vision=%d, want exactly one multimodal call",
			client.multiCalls, client.textCalls, client.visionCall)
	}
	if !out.SchemaValid {
		t.Fatal("SchemaValid = false for valid raw output")
	}
}

func TestVisionLLMUsesFirstImageOnly(t *testing.T) {
	client := &fakeClient{visionRaw: fullRaw(nil)}
	d := newDispatcher(t, client)
	if _, err := d.Process(context.Background(), textImageBundle(), constants.ModeVisionLLM); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if client.lastImages != 1 {
		t.Fatalf("vision_llm sent %d images, want 1", client.lastImages)
	}
}

func TestTextLLMRequiresText(t *testing.T) {
	d := newDispatcher(t, &fakeClient{})
	bundle := &extractor.ContentBundle{ImagePayloads: [][]byte{[]byte("p1")}}
	if _, err := d.Process(context.Background(), bundle, constants.ModeTextLLM); err == nil {
		t.Fatal("expected error for text_llm without text")
	}
}

func TestValidationRunsOnRawBeforeNormalize(t *testing.T) {
	// Output with most fields missing: the normalizer fills sentinels, so a
	// post-normalization check would pass. SchemaValid must still be false.
	partial := map[string]any{
		"Org Details": map[string]any{
			"Organization Name": map[string]any{
				"extracted_value": "Acme Corp",
				"match_flag":      string(schema.MatchSame),
				"validation":      map[string]any{"score": 95, "status": string(schema.StatusValid)},
			},
		},
	}
	d := newDispatcher(t, &fakeClient{textRaw: partial})
	out, err := d.Process(context.Background(), textImageBundle(), constants.ModeTextLLM)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.SchemaValid {
		t.Fatal("SchemaValid = true for under-delivering raw output")
	}
	// The record is still schema-complete.
	if got := out.Record["Legal Terms"]["Governing Law"]; got.ExtractedValue != schema.NotFound {
		t.Fatalf("missing field = %+v, want sentinel", got)
	}
	if got := out.Record["Org Details"]["Organization Name"]; got.ExtractedValue != "Acme Corp" {
		t.Fatalf("delivered field lost: %+v", got)
	}
}

// renderStub emulates pdftoppm, writing a payload that names the page.
type renderStub struct{ renders []string }

func (r *renderStub) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	page := ""
	for i, a := range args {
		if a == "-f" && i+1 < len(args) {
			page = args[i+1]
		}
	}
	r.renders = append(r.renders, page)
	prefix := args[len(args)-1]
	return nil, nil, os.WriteFile(prefix+".png", []byte("img-page-"+page), 0o644)
}

type countingBackend struct{ calls int32 }

func (c *countingBackend) Name() string { return "counting" }

func (c *countingBackend) Recognize(ctx context.Context, png []byte) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	return "", nil
}

// Four text pages plus a scanned signature page, extracted with the default
// method and processed multimodally: the model gets the page text and the
// rendered signature page in one combined call, no OCR anywhere.
func TestHybridMultimodalCombinedCall(t *testing.T) {
	runner := &renderStub{}
	backend := &countingBackend{}
	renderer := document.NewRenderer(runner, "pdftoppm", 150)
	ext := extractor.NewExtractor(renderer, ocr.NewService(backend, nil, 1, nil), 0, nil)

	long := func(tag string) string { return tag + " " + strings.Repeat("contract terms ", 10) }
	doc := &document.Document{
		Path: "/tmp/msa.pdf",
		Kind: document.KindPDF,
		Pages: []document.Page{
			{Number: 1, Text: long("preamble")},
			{Number: 2, Text: long("scope")},
			{Number: 3, Text: long("payment")},
			{Number: 4, Text: long("governing law")},
			{Number: 5, HasImages: true},
		},
	}
	bundle, err := ext.Extract(context.Background(), doc, constants.MethodHybrid)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(bundle.ImagePayloads) != 1 || string(bundle.ImagePayloads[0]) != "img-page-5" {
		t.Fatalf("payloads = %q, want exactly the rendered signature page", bundle.ImagePayloads)
	}
	if backend.calls != 0 {
		t.Fatalf("ocr calls = %d, want none", backend.calls)
	}

	client := &fakeClient{textRaw: fullRaw(map[string]map[string]string{
		"Contract Lifecycle": {"Authorized Signatory - Party A": "Jane Doe, VP of Operations"},
	})}
	d := newDispatcher(t, client)
	out, err := d.Process(context.Background(), bundle, constants.ModeMultimodal)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if client.multiCalls != 1 || client.textCalls != 0 || client.visionCall != 0 {
		t.Fatalf("calls multi=%d text=%d vision=%d, want exactly one combined call",
			client.multiCalls, client.textCalls, client.visionCall)
	}
	if client.lastImages != 1 {
		t.Fatalf("combined call carried %d images, want 1", client.lastImages)
	}
	for _, want := range []string{"preamble", "scope", "payment", "governing law"} {
		if !strings.Contains(client.lastText, want) {
			t.Fatalf("combined call text missing %q", want)
		}
	}
	if got := out.Record["Contract Lifecycle"]["Authorized Signatory - Party A"].ExtractedValue; got != "Jane Doe, VP of Operations" {
		t.Fatalf("signatory = %q", got)
	}
	total := 0
	for _, fields := range out.Record {
		total += len(fields)
	}
	if total != schema.FieldCount() {
		t.Fatalf("record has %d fields, want %d", total, schema.FieldCount())
	}
}

func TestDualLLMMergesChannels(t *testing.T) {
	client := &fakeClient{
		textRaw:   fullRaw(map[string]map[string]string{"Legal Terms": {"Governing Law": "State of Delaware"}}),
		visionRaw: fullRaw(map[string]map[string]string{"Contract Lifecycle": {"Execution Date": "2024-03-15"}}),
	}
	d := newDispatcher(t, client)
	out, err := d.Process(context.Background(), textImageBundle(), constants.ModeDualLLM)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if client.textCalls != 1 || client.visionCall != 1 {
		t.Fatalf("calls text=%d vision=%d, want one each", client.textCalls, client.visionCall)
	}
	if got := out.Record["Legal Terms"]["Governing Law"].ExtractedValue; got != "State of Delaware" {
		t.Fatalf("text-channel finding lost: %q", got)
	}
	if got := out.Record["Contract Lifecycle"]["Execution Date"].ExtractedValue; got != "2024-03-15" {
		t.Fatalf("vision-channel finding lost: %q", got)
	}
}

func TestDualLLMConflictTextWinsByDefault(t *testing.T) {
	client := &fakeClient{
		textRaw:   fullRaw(map[string]map[string]string{"Legal Terms": {"Governing Law": "Delaware"}}),
		visionRaw: fullRaw(map[string]map[string]string{"Legal Terms": {"Governing Law": "New York"}}),
	}
	d := newDispatcher(t, client)
	out, err := d.Process(context.Background(), textImageBundle(), constants.ModeDualLLM)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := out.Record["Legal Terms"]["Governing Law"]
	if got.ExtractedValue != "Delaware" {
		t.Fatalf("value = %q, want text channel winner", got.ExtractedValue)
	}
	if !strings.Contains(got.Validation.Notes, "New York") {
		t.Fatalf("notes = %q, want losing value recorded", got.Validation.Notes)
	}
}

func TestDualLLMConflictVisionWinsForVisualField(t *testing.T) {
	client := &fakeClient{
		textRaw:   fullRaw(map[string]map[string]string{"Contract Lifecycle": {"Execution Date": "2024-01-01"}}),
		visionRaw: fullRaw(map[string]map[string]string{"Contract Lifecycle": {"Execution Date": "2024-03-15"}}),
	}
	d := newDispatcher(t, client)
	out, err := d.Process(context.Background(), textImageBundle(), constants.ModeDualLLM)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := out.Record["Contract Lifecycle"]["Execution Date"]
	if got.ExtractedValue != "2024-03-15" {
		t.Fatalf("value = %q, want vision channel winner for signature-page field", got.ExtractedValue)
	}
	if !strings.Contains(got.Validation.Notes, "2024-01-01") {
		t.Fatalf("notes = %q, want losing value recorded", got.Validation.Notes)
	}
}

func TestDualLLMOneChannelFailureDegrades(t *testing.T) {
	client := &fakeClient{
		textRaw:   fullRaw(map[string]map[string]string{"Org Details": {"Organization Name": "Acme Corp"}}),
		visionErr: errors.New("vision backend down"),
	}
	d := newDispatcher(t, client)
	out, err := d.Process(context.Background(), textImageBundle(), constants.ModeDualLLM)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := out.Record["Org Details"]["Organization Name"].ExtractedValue; got != "Acme Corp" {
		t.Fatalf("surviving channel result lost: %q", got)
	}
}

func TestDualLLMBothChannelsFailing(t *testing.T) {
	client := &fakeClient{textErr: errors.New("down"), visionErr: errors.New("down")}
	d := newDispatcher(t, client)
	if _, err := d.Process(context.Background(), textImageBundle(), constants.ModeDualLLM); err == nil {
		t.Fatal("expected error when both channels fail")
	}
}

func TestMergeIdempotent(t *testing.T) {
	normalizer := schema.NewNormalizer(0, nil)
	rec := normalizer.Normalize(fullRaw(map[string]map[string]string{
		"Org Details": {"Organization Name": "Acme Corp"},
		"Legal Terms": {"Governing Law": "Delaware"},
	}))
	merged := mergeRecords(rec, rec, DefaultMergePolicy())
	for cat, fields := range rec {
		for name, want := range fields {
			got := merged[cat][name]
			if got.ExtractedValue != want.ExtractedValue || got.Validation.Status != want.Validation.Status {
				t.Fatalf("merge(r, r) changed %s/%s: %+v -> %+v", cat, name, want, got)
			}
			if got.Validation.Notes != want.Validation.Notes {
				t.Fatalf("merge(r, r) added notes to %s/%s: %q", cat, name, got.Validation.Notes)
			}
		}
	}
}

func TestMergeIdenticalValuesKeepHigherConfidence(t *testing.T) {
	a := schema.FieldResult{
		ExtractedValue: "Acme Corp",
		MatchFlag:      schema.MatchSame,
		Validation:     schema.Assessment{Score: 60, Status: schema.StatusWarning},
	}
	b := schema.FieldResult{
		ExtractedValue: "Acme Corp",
		MatchFlag:      schema.MatchSame,
		Validation:     schema.Assessment{Score: 95, Status: schema.StatusValid},
	}
	got := mergeField("Org Details", "Organization Name", a, b, DefaultMergePolicy())
	if got.Validation.Status != schema.StatusValid || got.Validation.Score != 95 {
		t.Fatalf("merged assessment = %+v, want valid/95", got.Validation)
	}
}

func TestLoadMergePolicyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "vision_preferred:\n  - category: Finance Terms\n    field: Currency\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadMergePolicy(path)
	if err != nil {
		t.Fatalf("LoadMergePolicy: %v", err)
	}
	if !p.VisionPreferred("Finance Terms", "Currency") {
		t.Fatal("configured field not vision-preferred")
	}
	if p.VisionPreferred("Contract Lifecycle", "Execution Date") {
		t.Fatal("custom policy must replace the default table, not extend it")
	}
}

func TestLoadMergePolicyEmptyPathUsesDefault(t *testing.T) {
	p, err := LoadMergePolicy("")
	if err != nil {
		t.Fatal(err)
	}
	if !p.VisionPreferred("Contract Lifecycle", "Authorized Signatory - Party A") {
		t.Fatal("default policy missing signature fields")
	}
}
