package observability

import (
	"context"

	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// InstrumentedExecutor wraps a webhooks.Executor and records attempt metrics.
type InstrumentedExecutor struct {
	inner   webhooks.Executor
	metrics *Metrics
}

// InstrumentExecutor decorates an executor with attempt metrics.
func InstrumentExecutor(inner webhooks.Executor, metrics *Metrics) *InstrumentedExecutor {
	return &InstrumentedExecutor{inner: inner, metrics: metrics}
}

// Attempt runs the wrapped executor and records the outcome.
func (e *InstrumentedExecutor) Attempt(ctx context.Context, sub model.Subscription, event model.Event, attemptNumber int) webhooks.Outcome {
	outcome := e.inner.Attempt(ctx, sub, event, attemptNumber)
	e.metrics.RecordAttempt(ctx, event.EventType, outcome.Success, outcome.ResponseTime.Seconds())
	return outcome
}
