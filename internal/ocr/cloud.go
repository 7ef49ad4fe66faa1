package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/contractlens/extractor/internal/common"
	"github.com/contractlens/extractor/internal/retry"
)

// CloudBackend recognizes pages through an HTTP vision endpoint. Calls go
// through the resilient retry wrapper since the network is the failure mode.
type CloudBackend struct {
	url      string
	apiKey   string
	client   *http.Client
	retryCfg common.RetryConfig
	logger   *slog.Logger
}

// NewCloudBackend returns a cloud OCR backend.
func NewCloudBackend(url, apiKey string, timeout time.Duration, retryCfg common.RetryConfig, logger *slog.Logger) *CloudBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudBackend{
		url:      url,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		retryCfg: retryCfg,
		logger:   logger,
	}
}

func (b *CloudBackend) Name() string { return "cloud" }

type cloudRequest struct {
	Image    string `json:"image"` // base64 PNG
	MimeType string `json:"mime_type"`
}

type cloudResponse struct {
	Text string `json:"text"`
}

func (b *CloudBackend) Recognize(ctx context.Context, png []byte) (string, error) {
	return retry.Do(ctx, b.retryCfg, b.logger, "ocr.cloud", func(ctx context.Context) (string, error) {
		return b.call(ctx, png)
	})
}

func (b *CloudBackend) call(ctx context.Context, png []byte) (string, error) {
	body, err := json.Marshal(cloudRequest{
		Image:    base64.StdEncoding.EncodeToString(png),
		MimeType: "image/png",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &retry.StatusError{Code: resp.StatusCode, Body: truncateBody(data)}
	}

	var out cloudResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
