package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/webhooks/model"
	"github.com/coregx/webhooks/signature"
)

func testEvent() model.Event {
	return model.NewEvent("evt-123", "order.created", `{"orderId":42}`)
}

func TestHTTPExecutor_Attempt_Success(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	executor, err := NewHTTPExecutor()
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", server.URL, "test-secret", []string{"order.created"})
	event := testEvent()

	outcome := executor.Attempt(context.Background(), sub, event, 3)

	assert.True(t, outcome.Success)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Empty(t, outcome.ErrorMessage)
	assert.Greater(t, outcome.ResponseTime, time.Duration(0))

	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "3", gotHeader.Get(HeaderDeliveryAttempt))
	assert.Equal(t, "evt-123", gotHeader.Get(HeaderEventID))

	// The signature must verify against the exact body bytes.
	assert.True(t, signature.Verify("test-secret", gotBody, gotHeader.Get(HeaderSignature)))

	var payload struct {
		EventID       string          `json:"eventId"`
		EventType     string          `json:"eventType"`
		Timestamp     string          `json:"timestamp"`
		AttemptNumber int             `json:"attemptNumber"`
		Data          json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "evt-123", payload.EventID)
	assert.Equal(t, "order.created", payload.EventType)
	assert.Equal(t, 3, payload.AttemptNumber)
	assert.JSONEq(t, `{"orderId":42}`, string(payload.Data))

	_, err = time.Parse(time.RFC3339, payload.Timestamp)
	assert.NoError(t, err)
}

func TestHTTPExecutor_Attempt_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		success bool
	}{
		{"200 OK", http.StatusOK, true},
		{"204 No Content", http.StatusNoContent, true},
		{"301 redirect is a failure", http.StatusMovedPermanently, false},
		{"400 Bad Request", http.StatusBadRequest, false},
		{"500 Internal Server Error", http.StatusInternalServerError, false},
		{"503 Service Unavailable", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			executor, err := NewHTTPExecutor()
			require.NoError(t, err)

			sub := model.NewSubscription("team-a", server.URL, "test-secret", []string{"order.created"})
			outcome := executor.Attempt(context.Background(), sub, testEvent(), 1)

			assert.Equal(t, tt.success, outcome.Success)
			assert.Equal(t, tt.status, outcome.StatusCode)
			if !tt.success {
				assert.NotEmpty(t, outcome.ErrorMessage)
			}
		})
	}
}

func TestHTTPExecutor_Attempt_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	executor, err := NewHTTPExecutor(WithAttemptTimeout(20 * time.Millisecond))
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", server.URL, "test-secret", []string{"order.created"})
	outcome := executor.Attempt(context.Background(), sub, testEvent(), 1)

	assert.False(t, outcome.Success)
	assert.Equal(t, 0, outcome.StatusCode)
	assert.NotEmpty(t, outcome.ErrorMessage)
}

func TestHTTPExecutor_Attempt_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	executor, err := NewHTTPExecutor()
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", url, "test-secret", []string{"order.created"})
	outcome := executor.Attempt(context.Background(), sub, testEvent(), 1)

	assert.False(t, outcome.Success)
	assert.Equal(t, 0, outcome.StatusCode)
	assert.NotEmpty(t, outcome.ErrorMessage)
}

func TestHTTPExecutor_Attempt_InvalidPayload(t *testing.T) {
	executor, err := NewHTTPExecutor()
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", "https://example.com/hook", "test-secret", []string{"order.created"})
	event := model.NewEvent("evt-1", "order.created", `{not json`)

	// The raw payload is embedded as-is; invalid JSON fails encoding before
	// any request goes out.
	outcome := executor.Attempt(context.Background(), sub, event, 1)

	assert.False(t, outcome.Success)
	assert.Equal(t, 0, outcome.StatusCode)
	assert.Contains(t, outcome.ErrorMessage, "failed to encode payload")
}
