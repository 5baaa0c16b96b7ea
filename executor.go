package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coregx/webhooks/model"
	"github.com/coregx/webhooks/signature"
)

// Signature and metadata headers attached to every delivery attempt.
const (
	HeaderSignature       = "X-Webhook-Signature"
	HeaderDeliveryAttempt = "X-Webhook-Delivery-Attempt"
	HeaderEventID         = "X-Webhook-Event-Id"
)

// DefaultAttemptTimeout bounds a single delivery attempt end to end.
const DefaultAttemptTimeout = 10 * time.Second

// maxResponseBody caps how much of the subscriber's response is read before
// the connection is released.
const maxResponseBody = 4 * 1024

// Outcome is the classified result of one delivery attempt.
type Outcome struct {
	Success      bool
	StatusCode   int           // HTTP status, 0 when no response arrived
	ErrorMessage string        // Diagnostic for failures, empty on success
	ResponseTime time.Duration // Wall-clock duration of the attempt
}

// Executor performs a single delivery attempt against a subscriber endpoint.
// Implementations never retry internally; scheduling is the dispatcher's job.
//
// This interface decouples the dispatcher from the HTTP transport so tests
// and alternative transports can stand in.
type Executor interface {
	// Attempt sends the event to the subscription's endpoint exactly once
	// and classifies the result. The outcome is always usable, even when the
	// attempt failed before a request was sent.
	Attempt(ctx context.Context, sub model.Subscription, event model.Event, attemptNumber int) Outcome
}

// HTTPExecutor delivers events with signed HTTP POST requests.
//
// Request format:
//   - POST to the subscription's target URL
//   - Content-Type: application/json
//   - X-Webhook-Signature: sha256=<hex HMAC of the exact body bytes>
//   - X-Webhook-Delivery-Attempt: attempt number
//   - X-Webhook-Event-Id: public event ID
//
// Any 2xx response is success. Non-2xx responses, timeouts, and connection
// errors are failures with diagnostics in the outcome.
type HTTPExecutor struct {
	client *http.Client
	logger Logger
}

// NewHTTPExecutor creates an HTTP executor with the provided options.
//
// Optional options:
//   - WithAttemptTimeout: per-attempt timeout (default: 10s)
//   - WithHTTPClient: custom http.Client (timeout option then has no effect)
//   - WithExecutorLogger: logger instance (default: NoopLogger)
func NewHTTPExecutor(opts ...ExecutorOption) (*HTTPExecutor, error) {
	e := &HTTPExecutor{
		client: &http.Client{Timeout: DefaultAttemptTimeout},
		logger: &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply executor option", err)
		}
	}

	return e, nil
}

// attemptPayload is the JSON body sent to subscriber endpoints.
type attemptPayload struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     string          `json:"timestamp"`
	AttemptNumber int             `json:"attemptNumber"`
	Data          json.RawMessage `json:"data"`
}

// Attempt implements Executor.
func (e *HTTPExecutor) Attempt(ctx context.Context, sub model.Subscription, event model.Event, attemptNumber int) Outcome {
	start := time.Now()

	body, err := json.Marshal(attemptPayload{
		EventID:       event.EventID,
		EventType:     event.EventType,
		Timestamp:     event.CreatedAt.UTC().Format(time.RFC3339),
		AttemptNumber: attemptNumber,
		Data:          json.RawMessage(event.Payload),
	})
	if err != nil {
		return Outcome{
			ErrorMessage: fmt.Sprintf("failed to encode payload: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{
			ErrorMessage: fmt.Sprintf("failed to build request: %v", err),
			ResponseTime: time.Since(start),
		}
	}

	// The signature covers the exact bytes on the wire.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature.Sign(sub.Secret, body))
	req.Header.Set(HeaderDeliveryAttempt, fmt.Sprintf("%d", attemptNumber))
	req.Header.Set(HeaderEventID, event.EventID)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Debugf("Delivery attempt %d for event %s failed: %v", attemptNumber, event.EventID, err)
		return Outcome{
			ErrorMessage: err.Error(),
			ResponseTime: time.Since(start),
		}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	outcome := Outcome{
		StatusCode:   resp.StatusCode,
		ResponseTime: time.Since(start),
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.Success = true
		return outcome
	}

	outcome.ErrorMessage = fmt.Sprintf("endpoint returned %s", resp.Status)
	return outcome
}
