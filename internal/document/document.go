// Package document opens contract files and exposes a uniform page model:
// per-page text layers, embedded-image detection, and page rendering for the
// OCR and vision paths.
package document

import (
	"sync"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/common"
)

// Kind is the source file format.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDOCX Kind = "docx"
)

// Page is one page of an opened document.
type Page struct {
	Number    int // 1-based
	Text      string
	HasImages bool
}

// Document is an opened contract file. Not safe for concurrent use.
type Document struct {
	Path  string
	Kind  Kind
	Pages []Page

	closeOnce sync.Once
	cleanup   func()
}

// Open reads the file at path and builds the page model. The file extension
// decides the parser; anything outside the allowed set is a file error.
func Open(path string) (*Document, error) {
	switch constants.NormalizeExt(path) {
	case "pdf":
		return openPDF(path)
	case "docx":
		return openDOCX(path)
	default:
		return nil, common.NewFileError(path, "unsupported file type", nil)
	}
}

// Close releases any temporary resources. Safe to call more than once.
func (d *Document) Close() error {
	d.closeOnce.Do(func() {
		if d.cleanup != nil {
			d.cleanup()
		}
	})
	return nil
}

// TextLength returns the total characters across all page text layers.
func (d *Document) TextLength() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Text)
	}
	return n
}

// Renderable reports whether pages can be rasterized for OCR or vision.
// Only PDF pages render; DOCX has no fixed page geometry.
func (d *Document) Renderable() bool {
	return d.Kind == KindPDF
}
