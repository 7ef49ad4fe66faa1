// Package coordinator is the single entry point of the extraction subsystem:
// open a contract file, extract content, run LLM processing, and return a
// schema-complete metadata record or a typed stage error. Callers never see
// an all-sentinel record standing in for a failure.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/document"
	"github.com/contractlens/extractor/internal/extractor"
	"github.com/contractlens/extractor/internal/imaging"
	"github.com/contractlens/extractor/internal/inference"
	"github.com/contractlens/extractor/internal/llm"
	"github.com/contractlens/extractor/internal/ocr"
	"github.com/contractlens/extractor/internal/schema"
)

// Options override the configured defaults for one extraction. Zero values
// keep the defaults.
type Options struct {
	Method constants.ExtractionMethod
	Mode   constants.ProcessingMode
	Engine constants.OCREngine
}

// Result is one completed extraction.
type Result struct {
	Record      schema.Record            `json:"metadata"`
	Metadata    extractor.Metadata       `json:"extraction_metadata"`
	Mode        constants.ProcessingMode `json:"processing_mode"`
	SchemaValid bool                     `json:"schema_valid"`
	DurationMS  int64                    `json:"duration_ms"`
}

// Coordinator wires the pipeline stages together.
type Coordinator struct {
	extractor  *extractor.Extractor
	engines    func(constants.OCREngine) (*extractor.Extractor, error)
	dispatcher *inference.Dispatcher
	defaults   Options
	logger     *slog.Logger
}

// New builds a fully wired Coordinator from configuration.
func New(cfg *common.Config, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := llm.NewClient(cfg.LLM, cfg.Retry, cfg.Extraction.MaxTextLength, logger)

	var preparer *imaging.Preparer
	if cfg.Preprocess.Enabled {
		preparer = imaging.NewPreparer(cfg.Preprocess, logger)
	}
	renderer := document.NewRenderer(document.ExecRunner{}, cfg.OCR.Pdftoppm, cfg.Extraction.RenderDPI)

	makeExtractor := func(engine constants.OCREngine) (*extractor.Extractor, error) {
		backend, err := buildOCRBackend(engine, cfg, client, logger)
		if err != nil {
			return nil, err
		}
		ocrSvc := ocr.NewService(backend, preparer, cfg.Extraction.OCRWorkers, logger)
		return extractor.NewExtractor(renderer, ocrSvc, cfg.Extraction.MinTextLength, logger), nil
	}

	ext, err := makeExtractor(cfg.Extraction.Engine)
	if err != nil {
		return nil, err
	}

	validator, err := schema.NewValidator(cfg.Extraction.MaxFieldLength)
	if err != nil {
		return nil, common.NewConfigurationError("schema", err)
	}
	normalizer := schema.NewNormalizer(cfg.Extraction.MaxFieldLength, logger)

	policy, err := inference.LoadMergePolicy(cfg.LLM.MergePolicyPath)
	if err != nil {
		return nil, common.NewConfigurationError("MERGE_POLICY_PATH", err)
	}
	dispatcher := inference.NewDispatcher(client, validator, normalizer, policy, cfg.LLM.Timeout, logger)

	c := NewFromParts(ext, dispatcher, Options{
		Method: cfg.Extraction.Method,
		Mode:   cfg.Extraction.Mode,
		Engine: cfg.Extraction.Engine,
	}, logger)
	c.engines = makeExtractor
	return c, nil
}

// NewFromParts assembles a Coordinator from prebuilt stages. Per-request OCR
// engine overrides need the config-driven constructor; here only the default
// engine is available.
func NewFromParts(ext *extractor.Extractor, dispatcher *inference.Dispatcher, defaults Options, logger *slog.Logger) *Coordinator {
	if defaults.Method == "" {
		defaults.Method = constants.MethodHybrid
	}
	if defaults.Mode == "" {
		defaults.Mode = constants.ModeMultimodal
	}
	if defaults.Engine == "" {
		defaults.Engine = constants.OCRLocal
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{extractor: ext, dispatcher: dispatcher, defaults: defaults, logger: logger}
}

func buildOCRBackend(engine constants.OCREngine, cfg *common.Config, client *llm.Client, logger *slog.Logger) (ocr.Backend, error) {
	switch engine {
	case constants.OCRLocal:
		return ocr.NewLocalBackend(cfg.OCR.TesseractLang), nil
	case constants.OCRCloud:
		if cfg.OCR.CloudURL == "" {
			return nil, common.NewConfigurationError("CLOUD_VISION_URL", common.ErrMissingValue)
		}
		return ocr.NewCloudBackend(cfg.OCR.CloudURL, cfg.OCR.CloudAPIKey, cfg.OCR.Timeout, cfg.Retry, logger), nil
	case constants.OCRLLMVision:
		return ocr.NewLLMVisionBackend(client), nil
	default:
		return nil, common.NewConfigurationError("OCR_ENGINE", common.ErrInvalidValue)
	}
}

// Extract runs the full pipeline on the file at path.
func (c *Coordinator) Extract(ctx context.Context, path string, opts Options) (*Result, error) {
	method := opts.Method
	if method == "" {
		method = c.defaults.Method
	}
	mode := opts.Mode
	if mode == "" {
		mode = c.defaults.Mode
	}
	engine := opts.Engine
	if engine == "" {
		engine = c.defaults.Engine
	}

	ext := c.extractor
	if engine != c.defaults.Engine {
		if c.engines == nil {
			return nil, common.NewConfigurationError("ocr_engine", common.ErrInvalidValue)
		}
		var err error
		ext, err = c.engines(engine)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	c.logger.Info("pipeline.start", "file", path, "method", method, "mode", mode, "engine", engine)

	doc, err := document.Open(path)
	if err != nil {
		c.logger.Error("pipeline.open_failed", "file", path, "error", err)
		return nil, err
	}
	defer doc.Close()

	bundle, err := ext.Extract(ctx, doc, method)
	if err != nil {
		c.logger.Error("pipeline.extract_failed", "file", path, "error", err)
		return nil, err
	}

	out, err := c.dispatcher.Process(ctx, bundle, mode)
	if err != nil {
		c.logger.Error("pipeline.inference_failed", "file", path, "error", err)
		return nil, err
	}

	duration := time.Since(start)
	c.logger.Info("pipeline.ok",
		"file", path,
		"method", method,
		"mode", out.Mode,
		"schema_valid", out.SchemaValid,
		"duration_ms", duration.Milliseconds(),
	)
	return &Result{
		Record:      out.Record,
		Metadata:    bundle.Metadata,
		Mode:        out.Mode,
		SchemaValid: out.SchemaValid,
		DurationMS:  duration.Milliseconds(),
	}, nil
}
