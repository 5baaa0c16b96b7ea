package model

import (
	"database/sql"
	"strings"
	"time"
)

// SubscriptionStatus represents the health state of a subscription.
type SubscriptionStatus string

const (
	// SubscriptionStatusActive indicates the subscription receives deliveries normally.
	SubscriptionStatusActive SubscriptionStatus = "active"

	// SubscriptionStatusFailing indicates the subscription accumulated too many
	// consecutive exhausted deliveries. Failing subscriptions still receive new
	// deliveries; the status is a health signal, not a stop.
	SubscriptionStatusFailing SubscriptionStatus = "failing"

	// SubscriptionStatusDisabled indicates delivery is frozen. Non-terminal
	// deliveries stay put and the retry scan skips them until re-enabled.
	// Only an operator (or policy) action disables a subscription.
	SubscriptionStatusDisabled SubscriptionStatus = "disabled"
)

// FailingThreshold is the consecutive-failure count at which a subscription
// flips to the failing status.
const FailingThreshold = 5

// Subscription represents a webhook registration: where to deliver, how to
// sign, and which event types to deliver.
//
// Lifecycle: created active; flipped between active and failing by delivery
// outcomes; disabled and re-enabled only by explicit operator action.
// Subscriptions are never deleted automatically.
type Subscription struct {
	ID           int64              `json:"id"`
	Owner        string             `json:"owner"`                             // Owning account or team
	TargetURL    string             `json:"targetURL" db:"target_url"`         // Webhook endpoint
	Secret       string             `json:"-" db:"secret"`                     // HMAC signing secret, never serialized
	EventTypes   string             `json:"eventTypes" db:"event_types"`       // Comma-joined event type set
	Status       SubscriptionStatus `json:"status" db:"status"`
	FailureCount int                `json:"failureCount" db:"failure_count"`   // Consecutive exhausted deliveries since last success
	CreatedAt    time.Time          `json:"createdAt" db:"created_at"`
	DisabledAt   sql.NullTime       `json:"disabledAt" db:"disabled_at"`
}

// TableName returns the database table name for Subscription.
func (s Subscription) TableName() string {
	return tablePrefix + "subscription"
}

// NewSubscription creates a new active subscription.
func NewSubscription(owner, targetURL, secret string, eventTypes []string) Subscription {
	return Subscription{
		ID:           0,
		Owner:        owner,
		TargetURL:    targetURL,
		Secret:       secret,
		EventTypes:   strings.Join(eventTypes, ","),
		Status:       SubscriptionStatusActive,
		FailureCount: 0,
		CreatedAt:    time.Now(),
		DisabledAt:   sql.NullTime{},
	}
}

// EventTypeList returns the subscribed event types as a slice.
func (s *Subscription) EventTypeList() []string {
	if s.EventTypes == "" {
		return nil
	}
	parts := strings.Split(s.EventTypes, ",")
	types := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// IsSubscribedTo reports whether the subscription is registered for the event type.
func (s *Subscription) IsSubscribedTo(eventType string) bool {
	for _, t := range s.EventTypeList() {
		if t == eventType {
			return true
		}
	}
	return false
}

// AcceptsNewDeliveries reports whether new deliveries may be created for this
// subscription. Failing subscriptions still accept deliveries; only disabled
// ones do not.
func (s *Subscription) AcceptsNewDeliveries() bool {
	return s.Status != SubscriptionStatusDisabled
}

// IsDisabled reports whether delivery is frozen for this subscription.
func (s *Subscription) IsDisabled() bool {
	return s.Status == SubscriptionStatusDisabled
}

// RecordSuccess applies a successful delivery: the consecutive-failure count
// resets to zero and a failing subscription recovers to active.
// A disabled subscription stays disabled (re-enabling is an operator action).
func (s *Subscription) RecordSuccess() {
	s.FailureCount = 0
	if s.Status == SubscriptionStatusFailing {
		s.Status = SubscriptionStatusActive
	}
}

// RecordExhausted applies a permanently failed delivery: the consecutive-failure
// count increments by one, and the subscription flips to failing exactly when
// the count reaches FailingThreshold. It never auto-disables.
func (s *Subscription) RecordExhausted() {
	s.FailureCount++
	if s.FailureCount >= FailingThreshold && s.Status == SubscriptionStatusActive {
		s.Status = SubscriptionStatusFailing
	}
}

// Disable freezes delivery for the subscription. Non-terminal deliveries are
// retained and resume when the subscription is re-enabled.
func (s *Subscription) Disable() {
	s.Status = SubscriptionStatusDisabled
	s.DisabledAt = sql.NullTime{Time: time.Now(), Valid: true}
}

// Enable lifts a freeze. The failure count is preserved, so a subscription
// disabled while failing comes back as failing.
func (s *Subscription) Enable() {
	if s.Status != SubscriptionStatusDisabled {
		return
	}
	if s.FailureCount >= FailingThreshold {
		s.Status = SubscriptionStatusFailing
	} else {
		s.Status = SubscriptionStatusActive
	}
	s.DisabledAt = sql.NullTime{}
}
