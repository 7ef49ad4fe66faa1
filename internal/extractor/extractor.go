// Package extractor turns an opened document into a ContentBundle: the raw
// text and page-image payloads a processing mode needs, produced by one of
// five content extraction methods.
package extractor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/classify"
	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/document"
	"github.com/contractlens/extractor/internal/ocr"
)

// Metadata describes how a bundle was produced.
type Metadata struct {
	ExtractionMethod constants.ExtractionMethod `json:"extraction_method"`
	PagesProcessed   int                        `json:"pages_processed"`
	HasImagePages    bool                       `json:"has_image_pages"`
	PDFType          classify.DocumentType      `json:"pdf_type"`
}

// ContentBundle is the extracted content handed to LLM processing.
type ContentBundle struct {
	RawText       string
	ImagePayloads [][]byte
	Metadata      Metadata
}

// HasText reports whether the bundle carries usable text.
func (b *ContentBundle) HasText() bool { return strings.TrimSpace(b.RawText) != "" }

// HasImages reports whether the bundle carries page images.
func (b *ContentBundle) HasImages() bool { return len(b.ImagePayloads) > 0 }

// Extractor runs content extraction methods over opened documents.
type Extractor struct {
	renderer      *document.Renderer
	ocr           *ocr.Service
	minTextLength int
	logger        *slog.Logger
}

// NewExtractor returns an Extractor. minTextLength <= 0 uses the classifier
// default.
func NewExtractor(renderer *document.Renderer, ocrSvc *ocr.Service, minTextLength int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{renderer: renderer, ocr: ocrSvc, minTextLength: minTextLength, logger: logger}
}

// Extract produces the content bundle for doc using the given method. The
// document is classified first so a pure-text document does zero image work
// under every method except vision_all; render-dependent methods on
// non-renderable documents degrade to the text layer with a logged warning.
func (e *Extractor) Extract(ctx context.Context, doc *document.Document, method constants.ExtractionMethod) (*ContentBundle, error) {
	cls := classify.Classify(pageStats(doc), e.minTextLength)
	e.logger.Info("extract.classified",
		"file", doc.Path,
		"type", cls.Type,
		"pages", cls.TotalPages,
		"text_ratio", cls.TextRatio,
	)

	var (
		bundle *ContentBundle
		err    error
	)
	switch method {
	case constants.MethodTextDirect:
		bundle, err = e.textDirect(doc, cls)
	case constants.MethodOCRAll:
		bundle, err = e.ocrAll(ctx, doc, cls)
	case constants.MethodOCRImagesOnly:
		bundle, err = e.ocrImagesOnly(ctx, doc, cls)
	case constants.MethodVisionAll:
		bundle, err = e.visionAll(ctx, doc, cls)
	case constants.MethodHybrid:
		bundle, err = e.hybrid(ctx, doc, cls)
	default:
		return nil, common.NewExtractionError(doc.Path, "unknown extraction method", nil)
	}
	if err != nil {
		return nil, err
	}

	bundle.Metadata.ExtractionMethod = method
	bundle.Metadata.HasImagePages = cls.HasImagePages
	bundle.Metadata.PDFType = cls.Type
	return bundle, nil
}

func pageStats(doc *document.Document) []classify.PageStats {
	stats := make([]classify.PageStats, len(doc.Pages))
	for i, p := range doc.Pages {
		stats[i] = classify.PageStats{TextLength: len(p.Text), HasImages: p.HasImages}
	}
	return stats
}

// textDirect joins page text layers without touching rasterization.
func (e *Extractor) textDirect(doc *document.Document, cls classify.Classification) (*ContentBundle, error) {
	return &ContentBundle{
		RawText:  joinPages(doc.Pages),
		Metadata: Metadata{PagesProcessed: len(doc.Pages)},
	}, nil
}

// ocrAll renders and recognizes every page, ignoring any text layer.
func (e *Extractor) ocrAll(ctx context.Context, doc *document.Document, cls classify.Classification) (*ContentBundle, error) {
	if !doc.Renderable() {
		return e.degradeToText(doc, constants.MethodOCRAll, cls)
	}
	images, err := e.renderer.RenderPages(ctx, doc, allPageNumbers(doc))
	if err != nil {
		return nil, err
	}
	texts, err := e.ocr.RecognizePages(ctx, images)
	if err != nil {
		return nil, err
	}
	return &ContentBundle{
		RawText:  joinTexts(texts),
		Metadata: Metadata{PagesProcessed: len(doc.Pages)},
	}, nil
}

// ocrImagesOnly keeps the text layer of text-bearing pages and OCRs only the
// pages the classifier marked as image pages.
func (e *Extractor) ocrImagesOnly(ctx context.Context, doc *document.Document, cls classify.Classification) (*ContentBundle, error) {
	var imagePages []int
	for _, p := range doc.Pages {
		if len(p.Text) <= e.threshold() {
			imagePages = append(imagePages, p.Number)
		}
	}

	recognized := map[int]string{}
	if len(imagePages) > 0 && doc.Renderable() {
		images, err := e.renderer.RenderPages(ctx, doc, imagePages)
		if err != nil {
			return nil, err
		}
		texts, err := e.ocr.RecognizePages(ctx, images)
		if err != nil {
			return nil, err
		}
		for i, nr := range imagePages {
			recognized[nr] = texts[i]
		}
	}

	var parts []string
	for _, p := range doc.Pages {
		if text, ok := recognized[p.Number]; ok {
			parts = append(parts, text)
		} else {
			parts = append(parts, p.Text)
		}
	}
	return &ContentBundle{
		RawText:  joinTexts(parts),
		Metadata: Metadata{PagesProcessed: len(doc.Pages)},
	}, nil
}

// visionAll renders every page and ships the images themselves; no OCR.
func (e *Extractor) visionAll(ctx context.Context, doc *document.Document, cls classify.Classification) (*ContentBundle, error) {
	if !doc.Renderable() {
		return e.degradeToText(doc, constants.MethodVisionAll, cls)
	}
	images, err := e.renderer.RenderPages(ctx, doc, allPageNumbers(doc))
	if err != nil {
		return nil, err
	}
	return &ContentBundle{
		ImagePayloads: images,
		Metadata:      Metadata{PagesProcessed: len(doc.Pages)},
	}, nil
}

// hybrid keeps the text layer of text-bearing pages and renders the remaining
// pages to image payloads without OCR. The only method producing both text and
// raw images: the processing mode downstream decides whether image pages get
// OCRed, sent to a vision model, or both.
func (e *Extractor) hybrid(ctx context.Context, doc *document.Document, cls classify.Classification) (*ContentBundle, error) {
	var texts []string
	var imagePages []int
	for _, p := range doc.Pages {
		if len(p.Text) > e.threshold() {
			texts = append(texts, p.Text)
		} else {
			imagePages = append(imagePages, p.Number)
		}
	}

	var images [][]byte
	if len(imagePages) > 0 {
		if !doc.Renderable() {
			return e.degradeToText(doc, constants.MethodHybrid, cls)
		}
		var err error
		images, err = e.renderer.RenderPages(ctx, doc, imagePages)
		if err != nil {
			return nil, err
		}
	}

	return &ContentBundle{
		RawText:       joinTexts(texts),
		ImagePayloads: images,
		Metadata:      Metadata{PagesProcessed: len(doc.Pages)},
	}, nil
}

// threshold is the per-page character count a text layer must exceed to be
// trusted over rasterization. Mirrors the classifier's text-bearing rule.
func (e *Extractor) threshold() int {
	if e.minTextLength > 0 {
		return e.minTextLength
	}
	return classify.DefaultMinTextLength
}

// degradeToText is the fallback for render-dependent methods on documents
// without page geometry.
func (e *Extractor) degradeToText(doc *document.Document, method constants.ExtractionMethod, cls classify.Classification) (*ContentBundle, error) {
	e.logger.Warn("extract.render_unavailable",
		"file", doc.Path,
		"method", method,
		"fallback", constants.MethodTextDirect,
	)
	return e.textDirect(doc, cls)
}

func allPageNumbers(doc *document.Document) []int {
	nrs := make([]int, len(doc.Pages))
	for i, p := range doc.Pages {
		nrs[i] = p.Number
	}
	return nrs
}

func joinPages(pages []document.Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return joinTexts(parts)
}

func joinTexts(texts []string) string {
	var nonEmpty []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.Join(nonEmpty, "\n")
}
