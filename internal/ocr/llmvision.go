package ocr

import "context"

// VisionRecognizer is implemented by the LLM client's transcription call.
type VisionRecognizer interface {
	TranscribeImage(ctx context.Context, png []byte) (string, error)
}

// LLMVisionBackend recognizes pages by asking a vision model to transcribe
// them. Retry policy lives in the underlying client.
type LLMVisionBackend struct {
	recognizer VisionRecognizer
}

// NewLLMVisionBackend wraps a vision-capable LLM client as an OCR backend.
func NewLLMVisionBackend(recognizer VisionRecognizer) *LLMVisionBackend {
	return &LLMVisionBackend{recognizer: recognizer}
}

func (b *LLMVisionBackend) Name() string { return "llm_vision" }

func (b *LLMVisionBackend) Recognize(ctx context.Context, png []byte) (string, error) {
	return b.recognizer.TranscribeImage(ctx, png)
}
