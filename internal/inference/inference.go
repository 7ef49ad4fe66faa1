// Package inference routes a content bundle through one of four LLM
// processing modes and turns raw model output into a schema-complete record.
// Raw output is always validated BEFORE normalization: the normalizer fills
// sentinel defaults, so the reverse order would hide an under-delivering
// model.
package inference

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/contractlens/extractor/constants"
	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/extractor"
	"github.com/contractlens/extractor/internal/schema"
)

// ModelClient is the LLM surface the dispatcher needs.
type ModelClient interface {
	ExtractFromText(ctx context.Context, text string) (map[string]any, error)
	ExtractFromImages(ctx context.Context, images [][]byte) (map[string]any, error)
	ExtractMultimodal(ctx context.Context, text string, images [][]byte) (map[string]any, error)
}

// Output is the result of one inference run.
type Output struct {
	Record      schema.Record
	SchemaValid bool // raw model output matched the schema before normalization
	Mode        constants.ProcessingMode
}

// Dispatcher runs processing modes against a ModelClient.
type Dispatcher struct {
	client         ModelClient
	validator      *schema.Validator
	normalizer     *schema.Normalizer
	policy         *MergePolicy
	channelTimeout time.Duration
	logger         *slog.Logger
}

// NewDispatcher returns a Dispatcher. channelTimeout bounds each dual_llm
// channel independently; <= 0 means no per-channel bound beyond ctx.
func NewDispatcher(client ModelClient, validator *schema.Validator, normalizer *schema.Normalizer, policy *MergePolicy, channelTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if policy == nil {
		policy = DefaultMergePolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:         client,
		validator:      validator,
		normalizer:     normalizer,
		policy:         policy,
		channelTimeout: channelTimeout,
		logger:         logger,
	}
}

// Process runs the bundle through the given mode. Returns an inference-stage
// error when the model cannot be reached or returns garbage; a schema
// mismatch in otherwise-parseable output degrades to SchemaValid=false with
// the normalizer filling the gaps.
func (d *Dispatcher) Process(ctx context.Context, bundle *extractor.ContentBundle, mode constants.ProcessingMode) (*Output, error) {
	switch mode {
	case constants.ModeTextLLM:
		return d.single(ctx, mode, func(ctx context.Context) (map[string]any, error) {
			if !bundle.HasText() {
				return nil, common.NewInferenceError("no text content for text_llm mode", nil)
			}
			return d.client.ExtractFromText(ctx, bundle.RawText)
		})

	case constants.ModeVisionLLM:
		return d.single(ctx, mode, func(ctx context.Context) (map[string]any, error) {
			if !bundle.HasImages() {
				return nil, common.NewInferenceError("no page images for vision_llm mode", nil)
			}
			// First page only: contracts front-load the identifying metadata.
			return d.client.ExtractFromImages(ctx, bundle.ImagePayloads[:1])
		})

	case constants.ModeMultimodal:
		return d.single(ctx, mode, func(ctx context.Context) (map[string]any, error) {
			if !bundle.HasText() && !bundle.HasImages() {
				return nil, common.NewInferenceError("empty bundle for multimodal mode", nil)
			}
			if !bundle.HasImages() {
				return d.client.ExtractFromText(ctx, bundle.RawText)
			}
			return d.client.ExtractMultimodal(ctx, bundle.RawText, bundle.ImagePayloads)
		})

	case constants.ModeDualLLM:
		return d.dual(ctx, bundle)

	default:
		return nil, common.NewInferenceError("unknown processing mode", nil)
	}
}

// single runs one model call and finishes the raw output.
func (d *Dispatcher) single(ctx context.Context, mode constants.ProcessingMode, call func(context.Context) (map[string]any, error)) (*Output, error) {
	raw, err := call(ctx)
	if err != nil {
		return nil, err
	}
	valid := d.checkRaw(mode, raw)
	return &Output{
		Record:      d.normalizer.Normalize(raw),
		SchemaValid: valid,
		Mode:        mode,
	}, nil
}

type channelResult struct {
	raw map[string]any
	err error
}

// dual runs the text and vision channels concurrently, joins both, and merges
// field by field. One failed channel degrades to the survivor; both failing
// is an inference error.
func (d *Dispatcher) dual(ctx context.Context, bundle *extractor.ContentBundle) (*Output, error) {
	if !bundle.HasText() && !bundle.HasImages() {
		return nil, common.NewInferenceError("empty bundle for dual_llm mode", nil)
	}

	var textRes, visionRes channelResult
	var wg sync.WaitGroup

	if bundle.HasText() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := d.channelContext(ctx)
			defer cancel()
			textRes.raw, textRes.err = d.client.ExtractFromText(cctx, bundle.RawText)
		}()
	} else {
		textRes.err = common.NewInferenceError("text channel skipped: no text content", nil)
	}

	if bundle.HasImages() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := d.channelContext(ctx)
			defer cancel()
			visionRes.raw, visionRes.err = d.client.ExtractFromImages(cctx, bundle.ImagePayloads)
		}()
	} else {
		visionRes.err = common.NewInferenceError("vision channel skipped: no page images", nil)
	}

	wg.Wait()

	if textRes.err != nil && visionRes.err != nil {
		return nil, common.NewInferenceError("both dual_llm channels failed", textRes.err)
	}
	if textRes.err != nil {
		d.logger.Warn("inference.dual.channel_failed", "channel", "text", "error", textRes.err)
		return d.finishSingleChannel(visionRes.raw)
	}
	if visionRes.err != nil {
		d.logger.Warn("inference.dual.channel_failed", "channel", "vision", "error", visionRes.err)
		return d.finishSingleChannel(textRes.raw)
	}

	textValid := d.checkRaw(constants.ModeDualLLM, textRes.raw)
	visionValid := d.checkRaw(constants.ModeDualLLM, visionRes.raw)

	merged := mergeRecords(
		d.normalizer.Normalize(textRes.raw),
		d.normalizer.Normalize(visionRes.raw),
		d.policy,
	)
	return &Output{
		Record:      merged,
		SchemaValid: textValid && visionValid,
		Mode:        constants.ModeDualLLM,
	}, nil
}

func (d *Dispatcher) finishSingleChannel(raw map[string]any) (*Output, error) {
	valid := d.checkRaw(constants.ModeDualLLM, raw)
	return &Output{
		Record:      d.normalizer.Normalize(raw),
		SchemaValid: valid,
		Mode:        constants.ModeDualLLM,
	}, nil
}

func (d *Dispatcher) channelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.channelTimeout > 0 {
		return context.WithTimeout(ctx, d.channelTimeout)
	}
	return context.WithCancel(ctx)
}

// checkRaw validates raw model output against the schema and logs mismatches.
// Runs on the raw map, never on normalized records.
func (d *Dispatcher) checkRaw(mode constants.ProcessingMode, raw map[string]any) bool {
	ok, err := d.validator.Validate(raw)
	if !ok {
		d.logger.Warn("inference.validate.failed", "mode", mode, "error", err)
	}
	return ok
}
