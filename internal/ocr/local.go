package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// LocalBackend recognizes pages with the tesseract library in-process.
type LocalBackend struct {
	lang string
}

// NewLocalBackend returns a tesseract backend. An empty lang defaults to
// English.
func NewLocalBackend(lang string) *LocalBackend {
	if lang == "" {
		lang = "eng"
	}
	return &LocalBackend{lang: lang}
}

func (b *LocalBackend) Name() string { return "tesseract" }

// Recognize runs tesseract on one PNG page. A fresh client per call keeps the
// backend safe for concurrent pages.
func (b *LocalBackend) Recognize(ctx context.Context, png []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(b.lang); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
