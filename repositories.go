package webhooks

import (
	"context"
	"time"

	"github.com/coregx/webhooks/model"
)

// SubscriptionFilter represents query filtering options for subscriptions.
// Used by SubscriptionRepository.List to filter results.
type SubscriptionFilter struct {
	Owner     string // Filter by owner (empty = no filter)
	EventType string // Filter by subscribed event type (empty = no filter)
}

// DeliveryQuery represents the ledger listing parameters for one subscription.
// Cursor is the opaque value returned by a previous page; empty means the
// newest page.
type DeliveryQuery struct {
	SubscriptionID int64
	Status         model.DeliveryStatus // Empty = all statuses
	Cursor         string
	Limit          int
}

// DeliveryPage is one page of ledger rows, newest first. NextCursor is empty
// on the last page.
type DeliveryPage struct {
	Deliveries []model.Delivery
	NextCursor string
}

// EventRepository defines the persistence interface for dispatched events.
// Events are immutable once created.
type EventRepository interface {
	// Load retrieves an event by row ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Event, error)

	// FindByEventID retrieves an event by its public event ID.
	// Returns ErrNoData if not found.
	FindByEventID(ctx context.Context, eventID string) (model.Event, error)

	// Save creates a new event. Returns the saved event with populated ID.
	Save(ctx context.Context, m model.Event) (model.Event, error)
}

// SubscriptionRepository defines the persistence interface for subscriptions.
//
// Implementations must be safe for concurrent use.
type SubscriptionRepository interface {
	// Load retrieves a subscription by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Subscription, error)

	// Save creates a new subscription (if ID=0) or updates an existing one.
	// Returns the saved subscription with populated ID.
	Save(ctx context.Context, m model.Subscription) (model.Subscription, error)

	// List retrieves subscriptions matching the filter criteria.
	// Returns empty slice if none found.
	List(ctx context.Context, filter SubscriptionFilter) ([]model.Subscription, error)

	// FindForEventType retrieves the subscriptions that should receive a new
	// event of the given type: subscribed to the type and not disabled.
	FindForEventType(ctx context.Context, eventType string) ([]model.Subscription, error)

	// CompareAndSwapHealth updates status and failure_count only when the row
	// still carries the expected values. Returns false when a concurrent
	// update won; the caller reloads and retries.
	CompareAndSwapHealth(ctx context.Context, id int64, expectedCount int, expectedStatus model.SubscriptionStatus, newCount int, newStatus model.SubscriptionStatus) (bool, error)
}

// DeliveryRepository defines the persistence interface for the delivery ledger.
//
// The ledger is the single source of truth for attempt scheduling, so writes
// that race between workers go through compare-and-set claims rather than
// blind updates.
type DeliveryRepository interface {
	// Load retrieves a delivery by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Delivery, error)

	// Create inserts a new ledger row. Returns the row with populated ID.
	Create(ctx context.Context, m model.Delivery) (model.Delivery, error)

	// Update persists the outcome fields of an attempted delivery.
	Update(ctx context.Context, m *model.Delivery) error

	// ClaimRetry atomically moves a pending_retry or exhausted row to pending
	// with AttemptNumber+1 and a cleared schedule. Returns the claimed row, or
	// ErrClaimConflict if another worker got there first, or ErrNoData.
	ClaimRetry(ctx context.Context, id int64) (model.Delivery, error)

	// ClaimStalePending re-claims a pending row whose attempt never recorded
	// an outcome (worker crash). The attempt number is not bumped; the claim
	// refreshes last_attempt_at so the row is not re-claimed by the next scan.
	// Returns ErrClaimConflict if the row changed state in the meantime.
	ClaimStalePending(ctx context.Context, id int64) (model.Delivery, error)

	// FindDueRetries finds rows with status=pending_retry and
	// next_retry_at <= now whose subscription is not disabled.
	// Results are ordered by next_retry_at ASC (most overdue first).
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]model.Delivery, error)

	// FindStalePending finds pending rows whose last activity is older than
	// the threshold. Used for crash recovery.
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Delivery, error)

	// ListBySubscription retrieves one ledger page, newest first, with an
	// opaque continuation cursor.
	ListBySubscription(ctx context.Context, q DeliveryQuery) (DeliveryPage, error)
}
