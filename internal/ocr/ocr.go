// Package ocr recognizes text on rendered page images. Backends are pluggable
// (local tesseract, cloud endpoint, LLM vision); the Service adds image
// preparation, per-page failure degradation, and optional parallelism.
package ocr

import (
	"context"
	"log/slog"
	"sync"

	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/imaging"
)

// Backend turns one PNG page image into text.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (string, error)
}

// Service runs OCR over page images with preparation and bounded parallelism.
type Service struct {
	backend  Backend
	preparer *imaging.Preparer
	workers  int
	logger   *slog.Logger
}

// NewService returns a Service. workers <= 1 processes pages sequentially.
// preparer may be nil to skip image preparation entirely.
func NewService(backend Backend, preparer *imaging.Preparer, workers int, logger *slog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, preparer: preparer, workers: workers, logger: logger}
}

// RecognizePages OCRs every page and returns texts in page order. A failed
// page degrades to empty text with a logged warning; the document-level error
// is reserved for context cancellation. Preparation failures fall back to the
// raw image.
func (s *Service) RecognizePages(ctx context.Context, pages [][]byte) ([]string, error) {
	texts := make([]string, len(pages))
	if len(pages) == 0 {
		return texts, nil
	}

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, img []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			texts[idx] = s.recognizeOne(ctx, idx+1, img)
		}(i, page)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return texts, nil
}

func (s *Service) recognizeOne(ctx context.Context, pageNr int, img []byte) string {
	if s.preparer != nil {
		if prepared, err := s.preparer.PreparePNG(img); err == nil {
			img = prepared
		} else {
			s.logger.Warn("ocr.prepare.failed", "page", pageNr, "error", err)
		}
	}

	text, err := s.backend.Recognize(ctx, img)
	if err != nil {
		recErr := common.NewRecognitionError(pageNr, err)
		s.logger.Warn("ocr.page.failed",
			"page", pageNr,
			"backend", s.backend.Name(),
			"error", recErr,
		)
		return ""
	}
	return text
}
