package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/okian/evalboard/pkg/metrics"
)

// wrapped forwards identity to the next layer so middlewares only override DoRequest.
type wrapped struct {
	next CoreLLM
}

func (w wrapped) Provider() string { return w.next.Provider() }
func (w wrapped) Model() string    { return w.next.Model() }

type timeoutLLM struct {
	wrapped
	timeout time.Duration
}

// TimeoutMiddleware bounds every request. A non-positive timeout disables it.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		if timeout <= 0 {
			return next
		}
		return &timeoutLLM{wrapped: wrapped{next}, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt)
}

type rateLimitedLLM struct {
	wrapped
	limiter *rate.Limiter
}

// RateLimitMiddleware waits on limiter before each request. A nil limiter disables it.
// Share one limiter between every chain that spends the same quota.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next CoreLLM) CoreLLM {
		if limiter == nil {
			return next
		}
		return &rateLimitedLLM{wrapped: wrapped{next}, limiter: limiter}
	}
}

func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string) (Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.DoRequest(ctx, prompt)
}

type meteredLLM struct {
	wrapped
}

// MetricsMiddleware records latency and outcome per provider.
func MetricsMiddleware() Middleware {
	return func(next CoreLLM) CoreLLM {
		return &meteredLLM{wrapped{next}}
	}
}

func (m *meteredLLM) DoRequest(ctx context.Context, prompt string) (Response, error) {
	start := time.Now()
	resp, err := m.next.DoRequest(ctx, prompt)
	metrics.RecordLLMRequest(m.Provider(), outcome(err), float64(time.Since(start).Milliseconds()))
	return resp, err
}

func outcome(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.As(err, &statusErr):
		if statusErr.Status == 429 {
			return "rate_limited"
		}
		return "status_error"
	default:
		return "error"
	}
}

type tracedLLM struct {
	wrapped
	tracer trace.Tracer
}

// TracingMiddleware opens a span per request on the global tracer provider.
func TracingMiddleware(name string) Middleware {
	tracer := otel.Tracer(name)
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{wrapped: wrapped{next}, tracer: tracer}
	}
}

func (t *tracedLLM) DoRequest(ctx context.Context, prompt string) (Response, error) {
	ctx, span := t.tracer.Start(ctx, "llm.request", trace.WithAttributes(
		attribute.String("llm.provider", t.Provider()),
		attribute.String("llm.model", t.Model()),
		attribute.Int("llm.prompt.length", len(prompt)),
	))
	defer span.End()

	resp, err := t.next.DoRequest(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.TokensIn),
		attribute.Int("llm.tokens.output", resp.TokensOut),
	)
	return resp, nil
}
