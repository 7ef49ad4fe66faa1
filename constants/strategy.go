package constants

import "fmt"

// ExtractionMethod selects how page content is pulled out of a document.
// Closed set; Parse fails on anything else rather than falling through to a
// default.
type ExtractionMethod string

const (
	MethodTextDirect    ExtractionMethod = "text_direct"
	MethodOCRAll        ExtractionMethod = "ocr_all"
	MethodOCRImagesOnly ExtractionMethod = "ocr_images_only"
	MethodVisionAll     ExtractionMethod = "vision_all"
	MethodHybrid        ExtractionMethod = "hybrid"
)

// ParseExtractionMethod validates a configuration string against the closed set.
func ParseExtractionMethod(s string) (ExtractionMethod, error) {
	switch ExtractionMethod(s) {
	case MethodTextDirect, MethodOCRAll, MethodOCRImagesOnly, MethodVisionAll, MethodHybrid:
		return ExtractionMethod(s), nil
	}
	return "", fmt.Errorf("unknown extraction method: %q", s)
}

// ProcessingMode selects how extracted content is sent to the LLM.
type ProcessingMode string

const (
	ModeTextLLM    ProcessingMode = "text_llm"
	ModeVisionLLM  ProcessingMode = "vision_llm"
	ModeMultimodal ProcessingMode = "multimodal"
	ModeDualLLM    ProcessingMode = "dual_llm"
)

// ParseProcessingMode validates a configuration string against the closed set.
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch ProcessingMode(s) {
	case ModeTextLLM, ModeVisionLLM, ModeMultimodal, ModeDualLLM:
		return ProcessingMode(s), nil
	}
	return "", fmt.Errorf("unknown llm processing mode: %q", s)
}

// OCREngine selects the OCR backend.
type OCREngine string

const (
	OCRLocal     OCREngine = "local"
	OCRCloud     OCREngine = "cloud"
	OCRLLMVision OCREngine = "llm_vision"
)

// ParseOCREngine validates a configuration string against the closed set.
func ParseOCREngine(s string) (OCREngine, error) {
	switch OCREngine(s) {
	case OCRLocal, OCRCloud, OCRLLMVision:
		return OCREngine(s), nil
	}
	return "", fmt.Errorf("unknown ocr engine: %q", s)
}
