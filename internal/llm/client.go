// Package llm calls a Gemini-style generateContent API to extract contract
// metadata from text, page images, or both. All network calls run through the
// resilient retry wrapper.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/retry"
)

// Client talks to the LLM backend. Safe for concurrent use.
type Client struct {
	cfg           common.LLMConfig
	retryCfg      common.RetryConfig
	maxTextLength int
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient returns a Client. maxTextLength <= 0 disables text truncation.
func NewClient(cfg common.LLMConfig, retryCfg common.RetryConfig, maxTextLength int, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:           cfg,
		retryCfg:      retryCfg,
		maxTextLength: maxTextLength,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Wire types for the generateContent API.

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// ExtractFromText runs text-only metadata extraction.
func (c *Client) ExtractFromText(ctx context.Context, text string) (map[string]any, error) {
	text = TruncateText(text, c.maxTextLength, c.logger)
	parts := []part{{Text: BuildExtractionPrompt(text)}}
	return c.extract(ctx, "text", c.cfg.TextModel, parts)
}

// ExtractFromImages runs vision-only metadata extraction over page images.
func (c *Client) ExtractFromImages(ctx context.Context, images [][]byte) (map[string]any, error) {
	if len(images) == 0 {
		return nil, common.NewInferenceError("no page images for vision extraction", nil)
	}
	parts := []part{{Text: BuildExtractionPrompt("")}}
	parts = append(parts, imageParts(images)...)
	return c.extract(ctx, "vision", c.cfg.VisionModel, parts)
}

// ExtractMultimodal runs extraction over text and page images in one call.
func (c *Client) ExtractMultimodal(ctx context.Context, text string, images [][]byte) (map[string]any, error) {
	text = TruncateText(text, c.maxTextLength, c.logger)
	parts := []part{{Text: BuildExtractionPrompt(text)}}
	parts = append(parts, imageParts(images)...)
	return c.extract(ctx, "multimodal", c.cfg.VisionModel, parts)
}

// TranscribeImage asks the vision model for a plain transcription of one page.
// Used by the llm_vision OCR backend.
func (c *Client) TranscribeImage(ctx context.Context, png []byte) (string, error) {
	parts := []part{
		{Text: transcribePrompt},
		{InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(png)}},
	}
	return retry.Do(ctx, c.retryCfg, c.logger, "llm.transcribe", func(ctx context.Context) (string, error) {
		return c.call(ctx, c.cfg.VisionModel, parts)
	})
}

func imageParts(images [][]byte) []part {
	parts := make([]part, 0, len(images))
	for _, img := range images {
		parts = append(parts, part{
			InlineData: &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(img)},
		})
	}
	return parts
}

// extract performs one retried generateContent call and parses the JSON
// metadata object out of the response.
func (c *Client) extract(ctx context.Context, mode, model string, parts []part) (map[string]any, error) {
	requestID := uuid.NewString()
	start := time.Now()
	c.logger.Info("llm.extract.start",
		"request_id", requestID,
		"mode", mode,
		"model", model,
		"parts", len(parts),
	)

	text, err := retry.Do(ctx, c.retryCfg, c.logger, "llm."+mode, func(ctx context.Context) (string, error) {
		return c.call(ctx, model, parts)
	})
	if err != nil {
		c.logger.Error("llm.extract.failed",
			"request_id", requestID,
			"mode", mode,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, common.NewInferenceError(fmt.Sprintf("%s extraction failed", mode), err)
	}

	raw, err := ParseJSONResponse(text)
	if err != nil {
		c.logger.Error("llm.extract.bad_json",
			"request_id", requestID,
			"mode", mode,
			"response_length", len(text),
		)
		return nil, common.NewInferenceError(fmt.Sprintf("%s extraction returned malformed JSON", mode), err)
	}

	c.logger.Info("llm.extract.ok",
		"request_id", requestID,
		"mode", mode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}

// call performs one HTTP round trip and returns the first candidate's text.
func (c *Client) call(ctx context.Context, model string, parts []part) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, model, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &retry.StatusError{Code: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
