package extractor

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/classify"
	"github.com/contractlens/extractor/internal/document"
	"github.com/contractlens/extractor/internal/ocr"
)

// pageRunner emulates pdftoppm, writing a payload that names the rendered page.
type pageRunner struct {
	renders []string
}

func (p *pageRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	page := ""
	for i, a := range args {
		if a == "-f" && i+1 < len(args) {
			page = args[i+1]
		}
	}
	p.renders = append(p.renders, page)
	prefix := args[len(args)-1]
	return nil, nil, os.WriteFile(prefix+".png", []byte("img-page-"+page), 0o644)
}

// echoBackend "recognizes" by echoing the payload.
type echoBackend struct{ calls int }

func (e *echoBackend) Name() string { return "echo" }

func (e *echoBackend) Recognize(ctx context.Context, png []byte) (string, error) {
	e.calls++
	return "ocr(" + string(png) + ")", nil
}

func testDoc(pages ...document.Page) *document.Document {
	return &document.Document{Path: "/tmp/contract.pdf", Kind: document.KindPDF, Pages: pages}
}

func longText(tag string) string {
	return tag + " " + strings.Repeat("contract terms ", 10)
}

func newTestExtractor() (*Extractor, *pageRunner, *echoBackend) {
	runner := &pageRunner{}
	backend := &echoBackend{}
	renderer := document.NewRenderer(runner, "pdftoppm", 150)
	svc := ocr.NewService(backend, nil, 1, nil)
	return NewExtractor(renderer, svc, 0, nil), runner, backend
}

func TestTextDirect(t *testing.T) {
	e, runner, _ := newTestExtractor()
	doc := testDoc(
		document.Page{Number: 1, Text: longText("first")},
		document.Page{Number: 2, Text: longText("second")},
	)
	b, err := e.Extract(context.Background(), doc, constants.MethodTextDirect)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(b.RawText, "first") || !strings.Contains(b.RawText, "second") {
		t.Fatalf("RawText = %q", b.RawText)
	}
	if b.HasImages() {
		t.Fatal("text_direct must not carry image payloads")
	}
	if len(runner.renders) != 0 {
		t.Fatal("text_direct must not render pages")
	}
	if b.Metadata.ExtractionMethod != constants.MethodTextDirect || b.Metadata.PagesProcessed != 2 {
		t.Fatalf("metadata = %+v", b.Metadata)
	}
}

func TestOCRAllRecognizesEveryPage(t *testing.T) {
	e, runner, backend := newTestExtractor()
	doc := testDoc(
		document.Page{Number: 1, Text: longText("ignored text layer")},
		document.Page{Number: 2},
	)
	b, err := e.Extract(context.Background(), doc, constants.MethodOCRAll)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(runner.renders) != 2 || backend.calls != 2 {
		t.Fatalf("renders = %v, ocr calls = %d; want both pages", runner.renders, backend.calls)
	}
	if !strings.Contains(b.RawText, "ocr(img-page-1)") || !strings.Contains(b.RawText, "ocr(img-page-2)") {
		t.Fatalf("RawText = %q", b.RawText)
	}
	if strings.Contains(b.RawText, "ignored text layer") {
		t.Fatal("ocr_all must ignore the text layer")
	}
}

func TestOCRImagesOnlyMixesLayers(t *testing.T) {
	e, runner, _ := newTestExtractor()
	doc := testDoc(
		document.Page{Number: 1, Text: longText("native")},
		document.Page{Number: 2, HasImages: true},
		document.Page{Number: 3, Text: longText("also native")},
	)
	b, err := e.Extract(context.Background(), doc, constants.MethodOCRImagesOnly)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(runner.renders) != 1 || runner.renders[0] != "2" {
		t.Fatalf("renders = %v, want only page 2", runner.renders)
	}
	for _, want := range []string{"native", "ocr(img-page-2)", "also native"} {
		if !strings.Contains(b.RawText, want) {
			t.Fatalf("RawText = %q, missing %q", b.RawText, want)
		}
	}
}

func TestVisionAllCarriesImagesNoOCR(t *testing.T) {
	e, _, backend := newTestExtractor()
	doc := testDoc(document.Page{Number: 1}, document.Page{Number: 2})
	b, err := e.Extract(context.Background(), doc, constants.MethodVisionAll)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(b.ImagePayloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(b.ImagePayloads))
	}
	if string(b.ImagePayloads[0]) != "img-page-1" {
		t.Fatalf("payload 0 = %q", b.ImagePayloads[0])
	}
	if backend.calls != 0 {
		t.Fatal("vision_all must not run OCR")
	}
	if b.HasText() {
		t.Fatal("vision_all must not carry text")
	}
}

func TestHybridTextDocumentSkipsRendering(t *testing.T) {
	e, runner, _ := newTestExtractor()
	doc := testDoc(
		document.Page{Number: 1, Text: longText("a")},
		document.Page{Number: 2, Text: longText("b")},
	)
	b, err := e.Extract(context.Background(), doc, constants.MethodHybrid)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(runner.renders) != 0 {
		t.Fatal("hybrid on a text document must not render")
	}
	if b.Metadata.PDFType != classify.TypeText {
		t.Fatalf("PDFType = %s, want text", b.Metadata.PDFType)
	}
}

func TestHybridImageDocumentRendersAllPagesNoOCR(t *testing.T) {
	e, runner, backend := newTestExtractor()
	doc := testDoc(document.Page{Number: 1, HasImages: true}, document.Page{Number: 2, HasImages: true})
	b, err := e.Extract(context.Background(), doc, constants.MethodHybrid)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(runner.renders) != 2 {
		t.Fatalf("renders = %v, want both pages", runner.renders)
	}
	if backend.calls != 0 {
		t.Fatalf("ocr calls = %d, hybrid must not OCR", backend.calls)
	}
	if len(b.ImagePayloads) != 2 {
		t.Fatalf("payloads = %d, want both pages as images", len(b.ImagePayloads))
	}
	if b.HasText() {
		t.Fatalf("RawText = %q, want empty for a pure image document", b.RawText)
	}
	if b.Metadata.PDFType != classify.TypeImage || !b.Metadata.HasImagePages {
		t.Fatalf("metadata = %+v", b.Metadata)
	}
}

func TestHybridMixedDocumentCombinesTextAndImages(t *testing.T) {
	e, runner, backend := newTestExtractor()
	// Five pages: 3 text, 2 scanned. Ratio 0.6 lands in the mixed band.
	doc := testDoc(
		document.Page{Number: 1, Text: longText("one")},
		document.Page{Number: 2, HasImages: true},
		document.Page{Number: 3, Text: longText("three")},
		document.Page{Number: 4, HasImages: true},
		document.Page{Number: 5, Text: longText("five")},
	)
	b, err := e.Extract(context.Background(), doc, constants.MethodHybrid)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(runner.renders) != 2 || runner.renders[0] != "2" || runner.renders[1] != "4" {
		t.Fatalf("renders = %v, want pages 2 and 4 only", runner.renders)
	}
	if backend.calls != 0 {
		t.Fatalf("ocr calls = %d, hybrid must defer image pages to the processing mode", backend.calls)
	}
	for _, want := range []string{"one", "three", "five"} {
		if !strings.Contains(b.RawText, want) {
			t.Fatalf("RawText missing %q", want)
		}
	}
	if len(b.ImagePayloads) != 2 || string(b.ImagePayloads[0]) != "img-page-2" || string(b.ImagePayloads[1]) != "img-page-4" {
		t.Fatalf("payloads = %q, want rendered pages 2 and 4", b.ImagePayloads)
	}
	if b.Metadata.PDFType != classify.TypeMixed {
		t.Fatalf("PDFType = %s, want mixed", b.Metadata.PDFType)
	}
}

func TestHybridSingleImagePage(t *testing.T) {
	e, runner, _ := newTestExtractor()
	// Four text pages plus one scanned signature page.
	doc := testDoc(
		document.Page{Number: 1, Text: longText("preamble")},
		document.Page{Number: 2, Text: longText("terms")},
		document.Page{Number: 3, Text: longText("payment")},
		document.Page{Number: 4, Text: longText("law")},
		document.Page{Number: 5, HasImages: true},
	)
	b, err := e.Extract(context.Background(), doc, constants.MethodHybrid)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(b.ImagePayloads) != 1 || string(b.ImagePayloads[0]) != "img-page-5" {
		t.Fatalf("payloads = %q, want exactly the rendered page 5", b.ImagePayloads)
	}
	if len(runner.renders) != 1 || runner.renders[0] != "5" {
		t.Fatalf("renders = %v, want page 5 only", runner.renders)
	}
	for _, want := range []string{"preamble", "terms", "payment", "law"} {
		if !strings.Contains(b.RawText, want) {
			t.Fatalf("RawText missing %q", want)
		}
	}
	if strings.Contains(b.RawText, "img-page-5") || strings.Contains(b.RawText, "ocr(") {
		t.Fatalf("RawText = %q, image page leaked into text", b.RawText)
	}
}

func TestHybridThresholdIsStrict(t *testing.T) {
	runner := &pageRunner{}
	renderer := document.NewRenderer(runner, "pdftoppm", 150)
	svc := ocr.NewService(&echoBackend{}, nil, 1, nil)
	e := NewExtractor(renderer, svc, 10, nil)

	// Exactly 10 chars is not "more than 10": the page counts as an image page.
	doc := testDoc(
		document.Page{Number: 1, Text: strings.Repeat("x", 10)},
		document.Page{Number: 2, Text: strings.Repeat("y", 11)},
	)
	b, err := e.Extract(context.Background(), doc, constants.MethodHybrid)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(runner.renders) != 1 || runner.renders[0] != "1" {
		t.Fatalf("renders = %v, want page 1 only", runner.renders)
	}
	if !strings.Contains(b.RawText, "yyy") || strings.Contains(b.RawText, "xxx") {
		t.Fatalf("RawText = %q", b.RawText)
	}
}

func TestVisionAllOnDOCXDegradesToText(t *testing.T) {
	e, runner, _ := newTestExtractor()
	doc := &document.Document{
		Path: "/tmp/contract.docx",
		Kind: document.KindDOCX,
		Pages: []document.Page{
			{Number: 1, Text: longText("docx body")},
		},
	}
	b, err := e.Extract(context.Background(), doc, constants.MethodVisionAll)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(runner.renders) != 0 {
		t.Fatal("docx must not be rendered")
	}
	if !strings.Contains(b.RawText, "docx body") {
		t.Fatalf("RawText = %q", b.RawText)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	e, _, _ := newTestExtractor()
	doc := testDoc(document.Page{Number: 1, Text: longText("x")})
	if _, err := e.Extract(context.Background(), doc, constants.ExtractionMethod("bogus")); err == nil {
		t.Fatal("expected error for unknown method")
	}
}
