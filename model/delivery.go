package model

import (
	"database/sql"
	"time"
)

// DeliveryStatus represents the lifecycle state of a delivery.
type DeliveryStatus string

const (
	// DeliveryStatusPending indicates an attempt is imminent or in flight.
	DeliveryStatusPending DeliveryStatus = "pending"

	// DeliveryStatusSuccess indicates the endpoint acknowledged the delivery
	// with a 2xx response. Terminal.
	DeliveryStatusSuccess DeliveryStatus = "success"

	// DeliveryStatusPendingRetry indicates the last attempt failed and a
	// retry is scheduled at NextRetryAt.
	DeliveryStatusPendingRetry DeliveryStatus = "pending_retry"

	// DeliveryStatusExhausted indicates all scheduled attempts failed.
	// Terminal for automatic scheduling; a manual retry can still revive it.
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// Delivery is one ledger row: the attempt history of one event against one
// subscription. Created with attempt 1 at dispatch time; each retry claims the
// row, bumps AttemptNumber, and records a fresh outcome.
//
// Lifecycle:
//  1. Created with status=pending, AttemptNumber=1
//  2. Attempt runs → success (terminal) or pending_retry with NextRetryAt
//  3. Due retries are claimed back to pending with AttemptNumber+1
//  4. Failure on the final scheduled attempt → exhausted
//
// NextRetryAt is set exactly when status is pending_retry and cleared on
// every other transition.
type Delivery struct {
	ID             int64          `json:"id"`
	EventID        int64          `json:"eventID" db:"event_id"`
	SubscriptionID int64          `json:"subscriptionID" db:"subscription_id"`
	AttemptNumber  int            `json:"attemptNumber" db:"attempt_number"` // 1-based
	Status         DeliveryStatus `json:"status" db:"status"`
	StatusCode     sql.NullInt64  `json:"statusCode" db:"status_code"`           // HTTP status of the last attempt, if a response arrived
	ErrorMessage   sql.NullString `json:"errorMessage" db:"error_message"`       // Diagnostic for the last failure
	ResponseTimeMs sql.NullInt64  `json:"responseTimeMs" db:"response_time_ms"`  // Duration of the last attempt
	DeliveredAt    sql.NullTime   `json:"deliveredAt" db:"delivered_at"`         // Set once, on success
	NextRetryAt    sql.NullTime   `json:"nextRetryAt" db:"next_retry_at"`        // Set iff status=pending_retry
	LastAttemptAt  sql.NullTime   `json:"lastAttemptAt" db:"last_attempt_at"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Delivery.
func (d *Delivery) TableName() string {
	return tablePrefix + "delivery"
}

// NewDelivery creates a ledger row for the first attempt of an event against
// a subscription. Initial state: pending, AttemptNumber=1.
func NewDelivery(eventID, subscriptionID int64) Delivery {
	return Delivery{
		ID:             0,
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		AttemptNumber:  1,
		Status:         DeliveryStatusPending,
		StatusCode:     sql.NullInt64{},
		ErrorMessage:   sql.NullString{},
		ResponseTimeMs: sql.NullInt64{},
		DeliveredAt:    sql.NullTime{},
		NextRetryAt:    sql.NullTime{},
		LastAttemptAt:  sql.NullTime{},
		CreatedAt:      time.Now(),
	}
}

// IsTerminal reports whether automatic scheduling is done with this row.
// Exhausted rows are terminal for the scheduler but remain eligible for
// manual retry.
func (d *Delivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusExhausted
}

// DueForRetry reports whether the row is scheduled for retry and the
// scheduled time has passed.
func (d *Delivery) DueForRetry(now time.Time) bool {
	if d.Status != DeliveryStatusPendingRetry {
		return false
	}
	if !d.NextRetryAt.Valid {
		return false
	}
	return !now.Before(d.NextRetryAt.Time)
}

// MarkSucceeded records a successful attempt. Terminal.
//
// Parameters:
//   - statusCode: HTTP status returned by the endpoint (2xx)
//   - responseTime: Duration of the attempt, recorded in milliseconds
func (d *Delivery) MarkSucceeded(statusCode int, responseTime time.Duration) {
	now := time.Now()
	d.Status = DeliveryStatusSuccess
	d.StatusCode = sql.NullInt64{Int64: int64(statusCode), Valid: true}
	d.ErrorMessage = sql.NullString{}
	d.ResponseTimeMs = sql.NullInt64{Int64: responseTime.Milliseconds(), Valid: true}
	d.DeliveredAt = sql.NullTime{Time: now, Valid: true}
	d.NextRetryAt = sql.NullTime{}
	d.LastAttemptAt = sql.NullTime{Time: now, Valid: true}
}

// MarkRetryScheduled records a failed attempt with a retry scheduled after
// the given delay.
//
// Parameters:
//   - statusCode: HTTP status of the failed attempt, or 0 if no response arrived
//   - errorMessage: Diagnostic for the failure
//   - responseTime: Duration of the attempt
//   - retryAfter: Delay until the next attempt
func (d *Delivery) MarkRetryScheduled(statusCode int, errorMessage string, responseTime time.Duration, retryAfter time.Duration) {
	now := time.Now()
	d.Status = DeliveryStatusPendingRetry
	d.recordFailureDiagnostics(statusCode, errorMessage, responseTime, now)
	d.NextRetryAt = sql.NullTime{Time: now.Add(retryAfter), Valid: true}
}

// MarkExhausted records a failed attempt with no further retries scheduled.
func (d *Delivery) MarkExhausted(statusCode int, errorMessage string, responseTime time.Duration) {
	now := time.Now()
	d.Status = DeliveryStatusExhausted
	d.recordFailureDiagnostics(statusCode, errorMessage, responseTime, now)
	d.NextRetryAt = sql.NullTime{}
}

func (d *Delivery) recordFailureDiagnostics(statusCode int, errorMessage string, responseTime time.Duration, now time.Time) {
	if statusCode > 0 {
		d.StatusCode = sql.NullInt64{Int64: int64(statusCode), Valid: true}
	} else {
		d.StatusCode = sql.NullInt64{}
	}
	if errorMessage != "" {
		d.ErrorMessage = sql.NullString{String: errorMessage, Valid: true}
	} else {
		d.ErrorMessage = sql.NullString{}
	}
	d.ResponseTimeMs = sql.NullInt64{Int64: responseTime.Milliseconds(), Valid: true}
	d.LastAttemptAt = sql.NullTime{Time: now, Valid: true}
}

// BeginRetryAttempt moves a scheduled or exhausted row back to pending for a
// new attempt. The repository performs this transition with a compare-and-set
// so only one worker claims the row; this method mirrors the state change for
// in-memory use and tests.
func (d *Delivery) BeginRetryAttempt() {
	d.AttemptNumber++
	d.Status = DeliveryStatusPending
	d.NextRetryAt = sql.NullTime{}
}

// CanRetryManually validates whether an operator may force a new attempt.
//
// Returns error if a manual retry is not allowed:
//   - ErrDeliveryAlreadySucceeded: The delivery already succeeded
//   - ErrAttemptInFlight: An attempt is currently pending
func (d *Delivery) CanRetryManually() error {
	switch d.Status {
	case DeliveryStatusSuccess:
		return ErrDeliveryAlreadySucceeded
	case DeliveryStatusPending:
		return ErrAttemptInFlight
	default:
		return nil
	}
}

// TimeUntilRetry returns the duration until the scheduled retry.
// Returns 0 if the retry is already due, or an error if none is scheduled.
func (d *Delivery) TimeUntilRetry() (time.Duration, error) {
	if !d.NextRetryAt.Valid {
		return 0, ErrNoRetryScheduled
	}
	duration := time.Until(d.NextRetryAt.Time)
	if duration < 0 {
		return 0, nil
	}
	return duration, nil
}

// Domain errors returned by Delivery business logic methods.
var (
	// ErrDeliveryAlreadySucceeded indicates the delivery already completed successfully.
	ErrDeliveryAlreadySucceeded = DomainError{Code: "ALREADY_SUCCEEDED", Message: "Delivery already succeeded"}

	// ErrAttemptInFlight indicates an attempt is already pending for this delivery.
	ErrAttemptInFlight = DomainError{Code: "ATTEMPT_IN_FLIGHT", Message: "Delivery attempt already in flight"}

	// ErrNoRetryScheduled indicates no retry time has been set for this delivery.
	ErrNoRetryScheduled = DomainError{Code: "NO_RETRY", Message: "No retry scheduled"}
)

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}
