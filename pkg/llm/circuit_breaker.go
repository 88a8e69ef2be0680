package llm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sproutbotics/robin/pkg/metrics"
	"github.com/sproutbotics/robin/pkg/resilience"
)

// CircuitBreakerResponder shields a Responder behind a rate-limit
// circuit breaker. While the breaker is open, calls fail fast with a
// RateLimitError instead of queueing against a throttled provider, and
// the open/close edges show up in the metrics stream.
type CircuitBreakerResponder struct {
	inner   Responder
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
	open    atomic.Bool
}

func NewCircuitBreakerResponder(inner Responder, breaker *resilience.CircuitBreaker) *CircuitBreakerResponder {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerResponder{inner: inner, breaker: breaker}
}

func (r *CircuitBreakerResponder) Name() string { return r.inner.Name() }

// SetObserver wires breaker events into the metrics stream. Set it
// before the first Respond.
func (r *CircuitBreakerResponder) SetObserver(obs metrics.Observer) { r.obs = obs }

func (r *CircuitBreakerResponder) Respond(ctx context.Context, messages []Message) (Response, error) {
	if !r.breaker.Allow() {
		if r.open.CompareAndSwap(false, true) {
			r.emit(metrics.EventBreakerOpen)
		}
		r.emit(metrics.EventBreakerDenied)
		return Response{}, resilience.RateLimitError{Provider: r.Name(), Message: "degraded"}
	}
	if r.open.CompareAndSwap(true, false) {
		r.emit(metrics.EventBreakerClose)
	}

	resp, err := r.inner.Respond(ctx, messages)
	if err != nil {
		if resilience.IsRateLimit(err) {
			r.emit(metrics.EventRateLimit)
		}
		r.breaker.OnError(err)
		return Response{}, err
	}
	r.breaker.OnSuccess()
	return resp, nil
}

func (r *CircuitBreakerResponder) emit(name string) {
	if r.obs == nil {
		return
	}
	r.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{
			"provider":  r.inner.Name(),
			"component": "llm",
		},
	})
}
