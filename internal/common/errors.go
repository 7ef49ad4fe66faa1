package common

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline stage where an error originated.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageExtract   Stage = "extract"
	StageOCR       Stage = "ocr"
	StageInference Stage = "inference"
	StageValidate  Stage = "validate"
	StageConfig    Stage = "config"
	StageFile      Stage = "file"
)

// Sentinel causes for configuration problems.
var (
	ErrMissingValue = errors.New("required value missing")
	ErrInvalidValue = errors.New("invalid value")
)

// AppError is the typed error carried across the pipeline boundary. It keeps
// the originating stage and enough context (file identity, details) for a
// caller to diagnose a document-level failure.
type AppError struct {
	Stage   Stage
	Message string
	Path    string // file identity, when known
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	s := fmt.Sprintf("%s: %s", e.Stage, e.Message)
	if e.Path != "" {
		s += fmt.Sprintf(" (file=%s)", e.Path)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *AppError) Unwrap() error { return e.Cause }

// NewClassificationError reports an unrecoverable document classification failure.
func NewClassificationError(path string, cause error) *AppError {
	return &AppError{Stage: StageClassify, Message: "document classification failed", Path: path, Cause: cause}
}

// NewExtractionError reports a content-extraction stage failure for a document.
func NewExtractionError(path, message string, cause error) *AppError {
	return &AppError{Stage: StageExtract, Message: message, Path: path, Cause: cause}
}

// NewRecognitionError reports a single-page OCR failure. Recoverable: callers
// degrade the page to empty text and continue.
func NewRecognitionError(page int, cause error) *AppError {
	return &AppError{
		Stage:   StageOCR,
		Message: "page recognition failed",
		Details: map[string]any{"page": page},
		Cause:   cause,
	}
}

// NewInferenceError reports an LLM call failure after retries were exhausted.
func NewInferenceError(message string, cause error) *AppError {
	return &AppError{Stage: StageInference, Message: message, Cause: cause}
}

// NewValidationError reports a schema mismatch in raw model output.
func NewValidationError(message string, cause error) *AppError {
	return &AppError{Stage: StageValidate, Message: message, Cause: cause}
}

// NewConfigurationError reports an invalid or missing configuration value.
func NewConfigurationError(key string, cause error) *AppError {
	return &AppError{
		Stage:   StageConfig,
		Message: "configuration error",
		Details: map[string]any{"key": key},
		Cause:   cause,
	}
}

// NewFileError reports a file-level problem (unsupported type, unreadable, encrypted).
func NewFileError(path, message string, cause error) *AppError {
	return &AppError{Stage: StageFile, Message: message, Path: path, Cause: cause}
}

// IsStage reports whether err (or anything it wraps) is an AppError from the
// given stage.
func IsStage(err error, stage Stage) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Stage == stage
	}
	return false
}
