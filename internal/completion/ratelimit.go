package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/fyrsmithlabs/journalgpt/internal/completion"

// Rate limiter defaults.
const (
	defaultRate       = 1.0
	defaultBurst      = 2
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// RateLimitConfig configures RateLimited.
type RateLimitConfig struct {
	// Rate is the sustained requests per second. Defaults to 1.
	Rate float64
	// Burst is the limiter bucket size. Defaults to 2.
	Burst int
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries of transient faults. Defaults to 3.
	MaxRetries int
	// Backoff is the initial retry delay, doubled per attempt. Defaults to 1s.
	Backoff time.Duration
}

// RateLimited throttles a Provider and retries transient faults (429, 5xx,
// network timeouts) with exponential backoff.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
	config  RateLimitConfig
	logger  *logging.Logger

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRateLimited wraps next.
func NewRateLimited(next Provider, cfg RateLimitConfig, logger *logging.Logger) *RateLimited {
	if cfg.Rate <= 0 {
		cfg.Rate = defaultRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	meter := otel.Meter(instrumentationName)
	requests, _ := meter.Int64Counter("journalgpt.completion.requests",
		metric.WithDescription("Completion requests by result"))
	duration, _ := meter.Float64Histogram("journalgpt.completion.duration",
		metric.WithDescription("Completion latency including retries"),
		metric.WithUnit("s"))

	return &RateLimited{
		next:     next,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		config:   cfg,
		logger:   logger.Named("completion"),
		requests: requests,
		duration: duration,
	}
}

// Complete waits for the limiter, then calls the wrapped provider, retrying
// transient faults. Cancellation stops waiting and retrying immediately.
func (r *RateLimited) Complete(ctx context.Context, req Request) (text string, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "completion.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.Int("max_tokens", req.MaxTokens),
		attribute.Float64("temperature", req.Temperature),
		attribute.Int("prompt_chars", len(req.System)+len(req.User)),
	)

	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if r.requests != nil {
			r.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
		}
		if r.duration != nil {
			r.duration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	backoff := r.config.Backoff
	for attempt := 0; ; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %w", ErrGeneration, err)
		}

		text, err = r.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil || !IsRetryable(err) || attempt >= r.config.MaxRetries {
			return "", ensureGenerationErr(err)
		}

		r.logger.Warn(ctx, "retrying completion",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", ErrGeneration, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func (r *RateLimited) attempt(ctx context.Context, req Request) (string, error) {
	if r.config.Timeout <= 0 {
		return r.next.Complete(ctx, req)
	}
	actx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()
	return r.next.Complete(actx, req)
}

func ensureGenerationErr(err error) error {
	if errors.Is(err, ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGeneration, err)
}

// statusPattern matches the status code in langchaingo's OpenAI client errors.
var statusPattern = regexp.MustCompile(`status code:? (\d{3})`)

// IsRetryable reports whether err is a transient provider fault.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A per-attempt timeout; the caller's deadline is checked separately.
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return retryableStatus(code)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
