package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/contractlens/extractor/constants"
)

// Config holds all application configuration. Loaded once at startup and
// passed by reference; read-only afterwards.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Extraction ExtractionConfig
	Preprocess PreprocessConfig
	OCR        OCRConfig
	LLM        LLMConfig
	Retry      RetryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr                 string
	MaxUploadBytes       int64
	MaxConcurrentExtract int
	UploadDir            string
}

// DatabaseConfig holds job-store configuration.
type DatabaseConfig struct {
	Path          string
	RetentionDays int
}

// ExtractionConfig holds pipeline strategy configuration.
type ExtractionConfig struct {
	Method         constants.ExtractionMethod
	Mode           constants.ProcessingMode
	Engine         constants.OCREngine
	RenderDPI      int
	MinTextLength  int // chars for a page to count as text-bearing
	MaxTextLength  int // truncation limit for LLM input text
	MaxFieldLength int
	OCRWorkers     int // 1 = sequential reference behavior
}

// PreprocessConfig holds the image preparation toggles.
type PreprocessConfig struct {
	Enabled  bool
	Deskew   bool
	Denoise  bool
	Enhance  bool
	Binarize bool
}

// OCRConfig holds OCR backend configuration.
type OCRConfig struct {
	Pdftoppm      string // binary name or absolute path; if empty -> "pdftoppm"
	TesseractLang string // default "eng"
	CloudURL      string // cloud vision endpoint
	CloudAPIKey   string
	Timeout       time.Duration
}

// LLMConfig holds LLM backend configuration.
type LLMConfig struct {
	APIKey          string
	BaseURL         string
	TextModel       string
	VisionModel     string
	Timeout         time.Duration
	MergePolicyPath string // optional YAML visual-field table for dual_llm merge
}

// RetryConfig holds the resilient-call policy for external calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is honored when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	method, err := constants.ParseExtractionMethod(getEnv("EXTRACTION_METHOD", string(constants.MethodHybrid)))
	if err != nil {
		return nil, NewConfigurationError("EXTRACTION_METHOD", err)
	}
	mode, err := constants.ParseProcessingMode(getEnv("LLM_PROCESSING_MODE", string(constants.ModeMultimodal)))
	if err != nil {
		return nil, NewConfigurationError("LLM_PROCESSING_MODE", err)
	}
	engine, err := constants.ParseOCREngine(getEnv("OCR_ENGINE", string(constants.OCRLocal)))
	if err != nil {
		return nil, NewConfigurationError("OCR_ENGINE", err)
	}

	return &Config{
		Server: ServerConfig{
			Addr:                 getEnv("HTTP_ADDR", ":8000"),
			MaxUploadBytes:       int64(getEnvAsInt("MAX_UPLOAD_SIZE_MB", 25)) << 20,
			MaxConcurrentExtract: getEnvAsInt("MAX_CONCURRENT_EXTRACTIONS", 5),
			UploadDir:            getEnv("UPLOAD_DIR", "./uploads"),
		},
		Database: DatabaseConfig{
			Path:          getEnv("DB_PATH", "./data/extractions.db"),
			RetentionDays: getEnvAsInt("JOB_RETENTION_DAYS", 30),
		},
		Extraction: ExtractionConfig{
			Method:         method,
			Mode:           mode,
			Engine:         engine,
			RenderDPI:      getEnvAsInt("RENDER_DPI", 300),
			MinTextLength:  getEnvAsInt("MIN_TEXT_LENGTH", 50),
			MaxTextLength:  getEnvAsInt("MAX_TEXT_LENGTH", 50000),
			MaxFieldLength: getEnvAsInt("MAX_FIELD_LENGTH", 1000),
			OCRWorkers:     getEnvAsInt("OCR_WORKERS", 1),
		},
		Preprocess: PreprocessConfig{
			Enabled:  getEnvAsBool("ENABLE_IMAGE_PREPROCESSING", true),
			Deskew:   getEnvAsBool("ENABLE_DESKEW", true),
			Denoise:  getEnvAsBool("ENABLE_DENOISE", true),
			Enhance:  getEnvAsBool("ENABLE_ENHANCE", true),
			Binarize: getEnvAsBool("ENABLE_BINARIZE", true),
		},
		OCR: OCRConfig{
			Pdftoppm:      getEnv("PDFTOPPM_CMD", "pdftoppm"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			CloudURL:      getEnv("CLOUD_VISION_URL", ""),
			CloudAPIKey:   getEnv("CLOUD_VISION_API_KEY", ""),
			Timeout:       getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
		},
		LLM: LLMConfig{
			APIKey:          getEnv("LLM_API_KEY", ""),
			BaseURL:         getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			TextModel:       getEnv("LLM_TEXT_MODEL", "gemini-2.0-flash"),
			VisionModel:     getEnv("LLM_VISION_MODEL", "gemini-2.0-flash"),
			Timeout:         getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
			MergePolicyPath: getEnv("MERGE_POLICY_PATH", ""),
		},
		Retry: RetryConfig{
			MaxAttempts:  getEnvAsInt("API_MAX_RETRIES", 3),
			InitialDelay: getEnvAsDuration("API_RETRY_INITIAL_DELAY", time.Second),
			MaxDelay:     getEnvAsDuration("API_RETRY_MAX_DELAY", 30*time.Second),
			Jitter:       getEnvAsBool("API_RETRY_JITTER", false),
		},
	}, nil
}

// Validate checks the loaded configuration for required values.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewConfigurationError("LLM_API_KEY", ErrMissingValue)
	}
	if c.Extraction.RenderDPI <= 0 {
		return NewConfigurationError("RENDER_DPI", ErrInvalidValue)
	}
	if c.Retry.MaxAttempts < 1 {
		return NewConfigurationError("API_MAX_RETRIES", ErrInvalidValue)
	}
	if c.Extraction.Engine == constants.OCRCloud && c.OCR.CloudURL == "" {
		return NewConfigurationError("CLOUD_VISION_URL", ErrMissingValue)
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
