// Package classify decides how a document should be treated downstream by
// inspecting per-page text yield and embedded images. Pure computation, no IO.
package classify

// DocumentType is the routing verdict for a document.
type DocumentType string

const (
	// TypeText means most pages carry an extractable text layer.
	TypeText DocumentType = "text"
	// TypeImage means the document is effectively scanned.
	TypeImage DocumentType = "image"
	// TypeMixed means a meaningful share of both kinds.
	TypeMixed DocumentType = "mixed"
)

// DefaultMinTextLength is the per-page character threshold a page must exceed
// to count as text-bearing.
const DefaultMinTextLength = 50

// Classification thresholds on the text-page ratio.
const (
	textThreshold  = 0.8
	imageThreshold = 0.2
)

// PageStats summarizes one page for classification.
type PageStats struct {
	TextLength int
	HasImages  bool
}

// Classification is the full verdict for a document.
type Classification struct {
	Type          DocumentType
	TotalPages    int
	TextPages     int
	ImagePages    int
	TextRatio     float64
	HasImagePages bool
}

// Classify inspects every page and returns the document verdict. A page counts
// as text-bearing when its text layer yields more than minTextLength characters
// (<= 0 uses the default); a page landing exactly on the threshold does not
// count. An empty document classifies as image so it is routed through OCR
// rather than yielding nothing.
func Classify(pages []PageStats, minTextLength int) Classification {
	if minTextLength <= 0 {
		minTextLength = DefaultMinTextLength
	}

	c := Classification{TotalPages: len(pages)}
	if len(pages) == 0 {
		c.Type = TypeImage
		return c
	}

	for _, p := range pages {
		if p.TextLength > minTextLength {
			c.TextPages++
		} else {
			c.ImagePages++
		}
		if p.HasImages {
			c.HasImagePages = true
		}
	}

	c.TextRatio = float64(c.TextPages) / float64(c.TotalPages)
	switch {
	case c.TextRatio > textThreshold:
		c.Type = TypeText
	case c.TextRatio < imageThreshold:
		c.Type = TypeImage
	default:
		c.Type = TypeMixed
	}
	return c
}
