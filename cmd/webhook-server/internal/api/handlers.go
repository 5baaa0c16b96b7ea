// Package api provides HTTP handlers for the webhook server REST API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	dispatcher    *webhooks.Dispatcher
	subscriptions *webhooks.SubscriptionService
	deliveries    webhooks.DeliveryRepository
	logger        webhooks.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	dispatcher *webhooks.Dispatcher,
	subscriptions *webhooks.SubscriptionService,
	deliveries webhooks.DeliveryRepository,
	logger webhooks.Logger,
) *Handler {
	return &Handler{
		dispatcher:    dispatcher,
		subscriptions: subscriptions,
		deliveries:    deliveries,
		logger:        logger,
	}
}

// DispatchEventRequest represents an event dispatch request.
type DispatchEventRequest struct {
	EventType string                 `json:"eventType"`
	Data      map[string]interface{} `json:"data"`
}

// RegisterSubscriptionResponse carries the registered subscription together
// with its signing secret. The secret is returned only here and on rotation.
type RegisterSubscriptionResponse struct {
	Subscription model.Subscription `json:"subscription"`
	Secret       string             `json:"secret"`
}

// DeliveryPageResponse represents one page of the delivery ledger.
type DeliveryPageResponse struct {
	Deliveries []model.Delivery `json:"deliveries"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleDispatchEvent handles POST /api/v1/events
func (h *Handler) HandleDispatchEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req DispatchEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if req.EventType == "" {
		h.respondError(w, http.StatusBadRequest, "eventType is required", "VALIDATION_ERROR")
		return
	}

	payload, err := json.Marshal(req.Data)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to serialize data", "SERIALIZATION_ERROR")
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), webhooks.DispatchRequest{
		EventType: req.EventType,
		Payload:   string(payload),
	})

	if err != nil {
		if webhooks.IsValidation(err) {
			h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Errorf("Failed to dispatch event: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to dispatch event", "DISPATCH_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, result, "Event dispatched")
}

// HandleSubscriptions handles /api/v1/subscriptions
// POST creates a subscription, GET lists subscriptions.
func (h *Handler) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createSubscription(w, r)
	case http.MethodGet:
		h.listSubscriptions(w, r)
	default:
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	}
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req webhooks.RegisterSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	subscription, err := h.subscriptions.Register(r.Context(), req)
	if err != nil {
		if webhooks.IsValidation(err) {
			h.respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Errorf("Failed to register subscription: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to register subscription", "REGISTER_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusCreated, RegisterSubscriptionResponse{
		Subscription: *subscription,
		Secret:       subscription.Secret,
	}, "Subscription registered")
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	filter := webhooks.SubscriptionFilter{
		Owner:     r.URL.Query().Get("owner"),
		EventType: r.URL.Query().Get("eventType"),
	}

	subscriptions, err := h.subscriptions.List(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("Failed to list subscriptions: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list subscriptions", "LIST_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, subscriptions, "")
}

// HandleSubscriptionByID handles /api/v1/subscriptions/:id and its
// sub-resources:
//
//	GET  /api/v1/subscriptions/:id
//	POST /api/v1/subscriptions/:id/disable
//	POST /api/v1/subscriptions/:id/enable
//	POST /api/v1/subscriptions/:id/rotate-secret
//	GET  /api/v1/subscriptions/:id/deliveries
func (h *Handler) HandleSubscriptionByID(w http.ResponseWriter, r *http.Request) {
	pathParts := splitPath(r.URL.Path)
	if len(pathParts) < 4 {
		h.respondError(w, http.StatusBadRequest, "Invalid subscription ID", "INVALID_ID")
		return
	}

	subscriptionID, err := strconv.ParseInt(pathParts[3], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid subscription ID", "INVALID_ID")
		return
	}

	if len(pathParts) == 4 {
		if r.Method != http.MethodGet {
			h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
			return
		}
		h.getSubscription(w, r, subscriptionID)
		return
	}

	switch pathParts[4] {
	case "disable":
		h.subscriptionAction(w, r, subscriptionID, h.subscriptions.Disable, "Subscription disabled")
	case "enable":
		h.subscriptionAction(w, r, subscriptionID, h.subscriptions.Enable, "Subscription enabled")
	case "rotate-secret":
		h.rotateSecret(w, r, subscriptionID)
	case "deliveries":
		h.listDeliveries(w, r, subscriptionID)
	default:
		h.respondError(w, http.StatusNotFound, "Unknown subscription action", "NOT_FOUND")
	}
}

func (h *Handler) getSubscription(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	subscription, err := h.subscriptions.Get(r.Context(), subscriptionID)
	if err != nil {
		if webhooks.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Subscription not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to load subscription %d: %v", subscriptionID, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to load subscription", "LOAD_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, subscription, "")
}

type subscriptionActionFunc func(ctx context.Context, subscriptionID int64) (*model.Subscription, error)

func (h *Handler) subscriptionAction(
	w http.ResponseWriter,
	r *http.Request,
	subscriptionID int64,
	action subscriptionActionFunc,
	message string,
) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	subscription, err := action(r.Context(), subscriptionID)
	if err != nil {
		if webhooks.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Subscription not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Subscription action failed for %d: %v", subscriptionID, err)
		h.respondError(w, http.StatusInternalServerError, "Subscription action failed", "ACTION_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, subscription, message)
}

func (h *Handler) rotateSecret(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	subscription, err := h.subscriptions.RotateSecret(r.Context(), subscriptionID)
	if err != nil {
		if webhooks.IsNoData(err) {
			h.respondError(w, http.StatusNotFound, "Subscription not found", "NOT_FOUND")
			return
		}
		h.logger.Errorf("Failed to rotate secret for %d: %v", subscriptionID, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to rotate secret", "ROTATE_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, RegisterSubscriptionResponse{
		Subscription: *subscription,
		Secret:       subscription.Secret,
	}, "Secret rotated")
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request, subscriptionID int64) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	query := webhooks.DeliveryQuery{
		SubscriptionID: subscriptionID,
		Status:         model.DeliveryStatus(r.URL.Query().Get("status")),
		Cursor:         r.URL.Query().Get("cursor"),
		Limit:          limit,
	}

	page, err := h.deliveries.ListBySubscription(r.Context(), query)
	if err != nil {
		if webhooks.IsNoData(err) {
			h.respondSuccess(w, http.StatusOK, DeliveryPageResponse{Deliveries: []model.Delivery{}}, "")
			return
		}
		h.logger.Errorf("Failed to list deliveries for subscription %d: %v", subscriptionID, err)
		h.respondError(w, http.StatusInternalServerError, "Failed to list deliveries", "LIST_ERROR")
		return
	}

	h.respondSuccess(w, http.StatusOK, DeliveryPageResponse{
		Deliveries: page.Deliveries,
		NextCursor: page.NextCursor,
	}, "")
}

// HandleRetryDelivery handles POST /api/v1/deliveries/:id/retry
func (h *Handler) HandleRetryDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	pathParts := splitPath(r.URL.Path)
	if len(pathParts) < 5 || pathParts[4] != "retry" {
		h.respondError(w, http.StatusNotFound, "Unknown delivery action", "NOT_FOUND")
		return
	}

	deliveryID, err := strconv.ParseInt(pathParts[3], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid delivery ID", "INVALID_ID")
		return
	}

	receipt, err := h.dispatcher.ManualRetry(r.Context(), deliveryID)
	if err != nil {
		switch {
		case webhooks.IsNoData(err):
			h.respondError(w, http.StatusNotFound, "Delivery not found", "NOT_FOUND")
		case webhooks.IsInvalidState(err):
			h.respondError(w, http.StatusConflict, err.Error(), "INVALID_STATE")
		case webhooks.IsConflict(err):
			h.respondError(w, http.StatusConflict, "Delivery already claimed by a worker", "CONFLICT")
		case webhooks.IsRateLimited(err):
			h.respondError(w, http.StatusTooManyRequests, "Retry rate limit exceeded", "RATE_LIMITED")
		default:
			h.logger.Errorf("Failed to retry delivery %d: %v", deliveryID, err)
			h.respondError(w, http.StatusInternalServerError, "Failed to retry delivery", "RETRY_ERROR")
		}
		return
	}

	h.respondSuccess(w, http.StatusAccepted, receipt, "Retry queued")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// splitPath splits URL path by "/"
func splitPath(path string) []string {
	parts := []string{}
	for _, part := range splitString(path, '/') {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// splitString splits string by separator (simple implementation)
func splitString(s string, sep rune) []string {
	var parts []string
	var current string
	for _, c := range s {
		if c == sep {
			parts = append(parts, current)
			current = ""
		} else {
			current += string(c)
		}
	}
	parts = append(parts, current)
	return parts
}
