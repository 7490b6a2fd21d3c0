package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Retry is the backoff policy applied to transient failures.
type Retry struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetry retries twice, waiting 1.5s and then 3s.
func DefaultRetry() Retry {
	return Retry{MaxRetries: 2, Delay: 1500 * time.Millisecond}
}

// do runs fn until it succeeds, fails permanently or runs out of retries.
// The returned error always matches ErrFailed.
func (r Retry) do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	delay := r.Delay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransient) {
			if errors.Is(err, ErrFailed) {
				return err
			}
			return fmt.Errorf("%w: %s: %w", ErrFailed, op, err)
		}
		if attempt >= r.MaxRetries {
			return fmt.Errorf("%w: %s: retries exhausted: %w", ErrFailed, op, err)
		}

		logger.Warn("Oracle quota exceeded, retrying",
			"op", op,
			"attempt", attempt+1,
			"delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %w", ErrFailed, op, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
}

// classify marks rate limiting and quota errors as transient.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "quota") {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
