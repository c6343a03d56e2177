package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const instrumentationName = "github.com/fyrsmithlabs/careerd/internal/llm"

const (
	defaultBaseBackoff = 500 * time.Millisecond
	defaultBurst       = 1
)

// LimitConfig configures the rate-limited wrapper.
//
// MaxRetries is the number of retries after a transient failure; zero, the
// default, makes a single attempt. Timeout bounds each attempt, and zero
// means no per-attempt timeout.
type LimitConfig struct {
	Provider          string
	Model             string
	RequestsPerMinute int
	MaxRetries        int
	BaseBackoff       time.Duration
	Timeout           time.Duration
}

// limited wraps a backend with a token-bucket limiter, optional bounded
// retries with exponential backoff, a tracing span and request metrics.
type limited struct {
	next    Client
	cfg     LimitConfig
	limiter *rate.Limiter
	logger  *zap.Logger

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// Limit wraps next with rate limiting and, when cfg.MaxRetries is set,
// retries of transient failures.
func Limit(next Client, cfg LimitConfig, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}

	l := &limited{
		next:    next,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), defaultBurst),
		logger:  logger,
	}

	meter := otel.Meter(instrumentationName)
	var err error
	l.requests, err = meter.Int64Counter("careerd.llm.requests_total",
		metric.WithDescription("Completion requests by provider, model and result"),
		metric.WithUnit("{request}"))
	if err != nil {
		logger.Warn("failed to create llm request counter", zap.Error(err))
	}
	l.duration, err = meter.Float64Histogram("careerd.llm.duration_seconds",
		metric.WithDescription("Completion latency including retries"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create llm duration histogram", zap.Error(err))
	}
	return l
}

// Complete waits for the limiter, then calls the backend. Rate-limit and
// server errors are retried up to MaxRetries times.
func (l *limited) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", l.cfg.Provider),
		attribute.String("llm.model", l.cfg.Model),
		attribute.Bool("llm.json", req.JSON),
	)

	start := time.Now()
	out, attempts, err := l.complete(ctx, req)
	span.SetAttributes(attribute.Int("llm.attempts", attempts))

	result := "success"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", l.cfg.Provider),
		attribute.String("model", l.cfg.Model),
		attribute.String("result", result),
	)
	if l.requests != nil {
		l.requests.Add(ctx, 1, attrs)
	}
	if l.duration != nil {
		l.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	return out, err
}

func (l *limited) complete(ctx context.Context, req Request) (string, int, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", 0, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := l.cfg.BaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", attempt, ctx.Err()
			}
		}

		out, err := l.attempt(ctx, req)
		if err == nil {
			return out, attempt + 1, nil
		}
		lastErr = err
		if l.cfg.MaxRetries == 0 || !IsRetryable(err) {
			return "", attempt + 1, err
		}
		l.logger.Debug("retrying completion",
			zap.String("provider", l.cfg.Provider),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return "", l.cfg.MaxRetries + 1, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (l *limited) attempt(ctx context.Context, req Request) (string, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}
	return l.next.Complete(ctx, req)
}

// IsRetryable reports whether err is a rate limit, a server error or a
// network failure from any backend.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var oaiAPI *openai.APIError
	if errors.As(err, &oaiAPI) {
		return retryableStatus(oaiAPI.HTTPStatusCode)
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return retryableStatus(oaiReq.HTTPStatusCode)
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return retryableStatus(antErr.StatusCode)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.Code)
	}
	if s, ok := status.FromError(err); ok && s.Code() != grpccodes.OK && s.Code() != grpccodes.Unknown {
		switch s.Code() {
		case grpccodes.ResourceExhausted, grpccodes.Unavailable, grpccodes.Internal, grpccodes.DeadlineExceeded:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// StatusError carries an HTTP status from a backend without a typed error.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }
