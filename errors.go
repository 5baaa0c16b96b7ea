package webhooks

import (
	"errors"
	"fmt"
)

// Error represents a webhooks library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for webhook operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates a database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeDelivery indicates a webhook delivery attempt failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeInvalidState indicates the operation is not allowed in the
	// entity's current state (e.g. retrying a succeeded delivery).
	ErrCodeInvalidState = "INVALID_STATE"

	// ErrCodeConflict indicates a concurrent actor claimed the entity first.
	ErrCodeConflict = "CONFLICT"

	// ErrCodeRateLimited indicates the caller exceeded an operation rate limit.
	ErrCodeRateLimited = "RATE_LIMITED"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrInvalidConfiguration is returned when component configuration is invalid.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid configuration",
	}

	// ErrClaimConflict is returned when a compare-and-set claim loses the race:
	// another worker already owns the delivery row.
	ErrClaimConflict = &Error{
		Code:    ErrCodeConflict,
		Message: "delivery already claimed",
	}

	// ErrRateLimited is returned when manual retries arrive faster than the
	// per-delivery limit allows.
	ErrRateLimited = &Error{
		Code:    ErrCodeRateLimited,
		Message: "retry rate limit exceeded",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

func hasCode(err error, code string) bool {
	var whErr *Error
	if errors.As(err, &whErr) {
		return whErr.Code == code
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return hasCode(err, ErrCodeNoData) || errors.Is(err, ErrNoData)
}

// IsValidation checks if an error carries the VALIDATION_ERROR code.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsInvalidState checks if an error carries the INVALID_STATE code.
func IsInvalidState(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

// IsConflict checks if an error carries the CONFLICT code.
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict) || errors.Is(err, ErrClaimConflict)
}

// IsRateLimited checks if an error carries the RATE_LIMITED code.
func IsRateLimited(err error) bool {
	return hasCode(err, ErrCodeRateLimited) || errors.Is(err, ErrRateLimited)
}
