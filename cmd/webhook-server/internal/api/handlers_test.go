package api

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coregx/webhooks"
)

func newTestHandler() *Handler {
	return NewHandler(nil, nil, nil, &webhooks.NoopLogger{})
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	handler.HandleHealth(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	handler.HandleHealth(rec, req)

	assert.Equal(t, 405, rec.Code)
}

func TestHandleDispatchEvent_InvalidJSON(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	handler.HandleDispatchEvent(rec, req)

	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")
}

func TestHandleDispatchEvent_MissingEventType(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(`{"data":{}}`))
	rec := httptest.NewRecorder()

	handler.HandleDispatchEvent(rec, req)

	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestHandleSubscriptionByID_InvalidID(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest("GET", "/api/v1/subscriptions/abc", nil)
	rec := httptest.NewRecorder()

	handler.HandleSubscriptionByID(rec, req)

	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ID")
}

func TestHandleRetryDelivery_UnknownAction(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest("POST", "/api/v1/deliveries/5/explode", nil)
	rec := httptest.NewRecorder()

	handler.HandleRetryDelivery(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path     string
		expected []string
	}{
		{"/api/v1/subscriptions/5", []string{"api", "v1", "subscriptions", "5"}},
		{"/api/v1/subscriptions/5/disable", []string{"api", "v1", "subscriptions", "5", "disable"}},
		{"/", []string{}},
		{"", []string{}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, splitPath(tt.path))
	}
}
