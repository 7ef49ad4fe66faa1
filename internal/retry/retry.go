// Package retry is the single resilient-call wrapper for every network-bound
// operation (OCR backends, LLM backends). Policy lives here so changes to the
// attempt budget or delay curve are made once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/contractlens/extractor/internal/common"
)

// StatusError is a non-2xx response from an HTTP backend. Classified as
// transient for 429 and 5xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// transientError marks an error as retryable regardless of type.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient wraps err so Transient reports true for it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// ExhaustedError is raised after the attempt budget is spent. It carries the
// last underlying failure for diagnostics.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts exhausted: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Transient reports whether err belongs to a retryable failure class:
// timeouts, rate-limit signals, 5xx-equivalents, or errors explicitly marked
// transient. Auth failures and malformed requests are not retryable.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || (se.Code >= 500 && se.Code <= 599)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Do invokes fn with bounded retry and exponential backoff. Only transient
// failures consume the retry budget; anything else propagates immediately.
// After cfg.MaxAttempts transient failures it returns an *ExhaustedError.
// Context cancellation during a backoff wait aborts the sequence.
func Do[T any](ctx context.Context, cfg common.RetryConfig, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := delay
			if cfg.Jitter {
				wait += time.Duration(rand.Int63n(int64(delay)/2 + 1))
			}
			logger.Warn("retry.backoff",
				"op", op,
				"attempt", attempt,
				"delay_ms", wait.Milliseconds(),
				"error", last,
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return zero, err
			}
			delay *= 2
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !Transient(err) {
			return zero, err
		}
		last = err
	}

	return zero, &ExhaustedError{Op: op, Attempts: attempts, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
