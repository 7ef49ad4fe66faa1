package llm

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/contractlens/extractor/internal/schema"
)

// promptHeader states the task and the output contract. The field catalog and
// its definitions are appended below it.
const promptHeader = `You are a contract analysis specialist. Extract metadata from the legal agreement provided and compare each value against standard template expectations.

Return ONLY a JSON object, no prose. The JSON must contain every category and every field listed below. Each field is an object:
  "extracted_value": the value found in the document, or exactly "Not Found"
  "match_flag": one of "same_as_template", "similar_not_exact", "different_from_template", "flag_for_review", "not_found"
  "validation": {"score": 0-100 integer confidence, "status": one of "valid", "warning", "invalid", "not_found", "notes": short reasoning, max 500 chars}

Never omit a field, never return null or empty strings. Use "Not Found" when the information is absent.`

const transcribePrompt = `Transcribe ALL text visible in this document page image. Preserve reading order. Return only the transcribed text with no commentary.`

// BuildExtractionPrompt assembles the full extraction prompt: task header,
// field catalog with definitions, then the document text (when present).
func BuildExtractionPrompt(documentText string) string {
	var sb strings.Builder
	sb.WriteString(promptHeader)
	sb.WriteString("\n\nFields to extract:\n")
	for _, cat := range schema.Catalog {
		fmt.Fprintf(&sb, "\nCategory %q:\n", cat.Name)
		for _, f := range cat.Fields {
			fmt.Fprintf(&sb, "  - %q: %s\n", f.Name, f.Definition)
		}
	}
	if documentText != "" {
		sb.WriteString("\n--- DOCUMENT TEXT ---\n")
		sb.WriteString(documentText)
		sb.WriteString("\n--- END DOCUMENT TEXT ---\n")
	} else {
		sb.WriteString("\nThe document is provided as page images.\n")
	}
	return sb.String()
}

// TruncateText caps document text fed to the model, cutting at a rune
// boundary and logging when content is dropped.
func TruncateText(text string, maxLen int, logger *slog.Logger) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("llm.text_truncated",
		"original_length", len(text),
		"max_length", maxLen,
	)
	return text[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
