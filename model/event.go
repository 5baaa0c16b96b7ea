// Package model contains all domain models and data structures for the webhook delivery system.
package model

import "time"

const tablePrefix = "webhooks_"

// Event represents an immutable fact produced by an upstream system.
// Events are never mutated after creation and are retained for replay and debugging.
//
// Each dispatched event creates one Delivery per subscription registered for its type.
type Event struct {
	ID        int64     `json:"id"`                          // Database row ID
	EventID   string    `json:"eventId" db:"event_id"`       // Public unique event ID
	EventType string    `json:"eventType" db:"event_type"`   // Event type (e.g. "report.created")
	Payload   string    `json:"payload"`                     // Opaque JSON payload
	CreatedAt time.Time `json:"createdAt" db:"created_at"`   // Production timestamp
}

// TableName returns the database table name for Event.
func (e Event) TableName() string {
	return tablePrefix + "event"
}

// NewEvent creates a new immutable event.
//
// Parameters:
//   - eventID: Public unique identifier assigned by the dispatcher
//   - eventType: Routing key matched against subscription event-type sets
//   - payload: Opaque JSON payload delivered to subscribers
func NewEvent(eventID, eventType, payload string) Event {
	return Event{
		ID:        0,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}
