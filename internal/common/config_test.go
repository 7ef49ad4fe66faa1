package common

import (
	"errors"
	"testing"
	"time"

	"github.com/contractlens/extractor/constants"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Extraction.Method != constants.MethodHybrid {
		t.Fatalf("method = %s, want hybrid default", cfg.Extraction.Method)
	}
	if cfg.Extraction.Mode != constants.ModeMultimodal {
		t.Fatalf("mode = %s, want multimodal default", cfg.Extraction.Mode)
	}
	if cfg.Extraction.Engine != constants.OCRLocal {
		t.Fatalf("engine = %s, want local default", cfg.Extraction.Engine)
	}
	if cfg.Extraction.RenderDPI != 300 || cfg.Extraction.MinTextLength != 50 {
		t.Fatalf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Extraction.MaxTextLength != 50000 || cfg.Extraction.MaxFieldLength != 1000 {
		t.Fatalf("limits = %+v", cfg.Extraction)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay != time.Second || cfg.Retry.MaxDelay != 30*time.Second {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("EXTRACTION_METHOD", "ocr_all")
	t.Setenv("LLM_PROCESSING_MODE", "dual_llm")
	t.Setenv("RENDER_DPI", "150")
	t.Setenv("API_RETRY_INITIAL_DELAY", "500ms")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Extraction.Method != constants.MethodOCRAll || cfg.Extraction.Mode != constants.ModeDualLLM {
		t.Fatalf("strategy = %+v", cfg.Extraction)
	}
	if cfg.Extraction.RenderDPI != 150 {
		t.Fatalf("dpi = %d", cfg.Extraction.RenderDPI)
	}
	if cfg.Retry.InitialDelay != 500*time.Millisecond {
		t.Fatalf("delay = %v", cfg.Retry.InitialDelay)
	}
}

func TestLoadConfigRejectsUnknownEnum(t *testing.T) {
	t.Setenv("EXTRACTION_METHOD", "clairvoyance")
	if _, err := LoadConfig(); !IsStage(err, StageConfig) {
		t.Fatalf("error = %v, want config-stage error", err)
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.LLM.APIKey = ""
	err = cfg.Validate()
	if !errors.Is(err, ErrMissingValue) {
		t.Fatalf("error = %v, want ErrMissingValue", err)
	}
}

func TestValidateCloudEngineNeedsURL(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("OCR_ENGINE", "cloud")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingValue) {
		t.Fatalf("error = %v, want ErrMissingValue for CLOUD_VISION_URL", err)
	}
	t.Setenv("CLOUD_VISION_URL", "https://vision.example.com/ocr")
	cfg, _ = LoadConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with URL: %v", err)
	}
}
