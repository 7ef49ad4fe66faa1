package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/contractlens/extractor/internal/common"
)

// Renderer rasterizes PDF pages to PNG via pdftoppm.
type Renderer struct {
	runner  Runner
	binary  string
	dpi     int
	workDir string
}

// NewRenderer returns a Renderer. An empty binary falls back to "pdftoppm" on
// PATH; dpi <= 0 falls back to 300.
func NewRenderer(runner Runner, binary string, dpi int) *Renderer {
	if runner == nil {
		runner = ExecRunner{}
	}
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &Renderer{runner: runner, binary: binary, dpi: dpi}
}

// RenderPage rasterizes one page (1-based) of the document to PNG bytes.
func (r *Renderer) RenderPage(ctx context.Context, doc *Document, pageNr int) ([]byte, error) {
	if !doc.Renderable() {
		return nil, common.NewExtractionError(doc.Path, "document kind cannot be rendered", nil)
	}
	if pageNr < 1 || pageNr > len(doc.Pages) {
		return nil, common.NewExtractionError(doc.Path, fmt.Sprintf("page %d out of range", pageNr), nil)
	}

	tmpDir, err := os.MkdirTemp("", "pagerender-*")
	if err != nil {
		return nil, common.NewExtractionError(doc.Path, "cannot create render dir", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	page := strconv.Itoa(pageNr)
	_, stderr, err := r.runner.Run(ctx, r.binary,
		"-png",
		"-r", strconv.Itoa(r.dpi),
		"-f", page,
		"-l", page,
		"-singlefile",
		doc.Path,
		prefix,
	)
	if err != nil {
		return nil, common.NewExtractionError(doc.Path,
			fmt.Sprintf("page render failed: %s", truncate(string(stderr), 512)), err)
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, common.NewExtractionError(doc.Path, "rendered page missing", err)
	}
	return data, nil
}

// RenderPages rasterizes the given pages in order. A failed page aborts the
// whole render since vision callers need a consistent page set.
func (r *Renderer) RenderPages(ctx context.Context, doc *Document, pageNrs []int) ([][]byte, error) {
	out := make([][]byte, 0, len(pageNrs))
	for _, nr := range pageNrs {
		data, err := r.RenderPage(ctx, doc, nr)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
