package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// SubscriptionRepository implements webhooks.SubscriptionRepository using Relica.
type SubscriptionRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewSubscriptionRepository creates a new SubscriptionRepository with default table prefix.
func NewSubscriptionRepository(sqlDB *sql.DB, driverName string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "webhooks_"}
}

// NewSubscriptionRepositoryWithPrefix creates a new SubscriptionRepository with custom table prefix.
func NewSubscriptionRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *SubscriptionRepository {
	return &SubscriptionRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *SubscriptionRepository) tableName() string {
	return r.tablePrefix + "subscription"
}

// Load retrieves a subscription by ID.
func (r *SubscriptionRepository) Load(ctx context.Context, id int64) (model.Subscription, error) {
	var sub model.Subscription
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, webhooks.ErrNoData
	}
	if err != nil {
		return sub, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to load subscription", err)
	}
	return sub, nil
}

// Save creates or updates a subscription.
func (r *SubscriptionRepository) Save(ctx context.Context, m model.Subscription) (model.Subscription, error) {
	if m.ID == 0 {
		// Insert using Model() API - auto-populates m.ID
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to insert subscription", err)
		}
		return m, nil
	}
	// Update using Model() API - auto WHERE id = ?
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to update subscription", err)
	}
	return m, nil
}

// List retrieves subscriptions matching the filter criteria.
func (r *SubscriptionRepository) List(ctx context.Context, filter webhooks.SubscriptionFilter) ([]model.Subscription, error) {
	var subs []model.Subscription
	q := r.db.WithContext(ctx).Select("*").From(r.tableName())
	if filter.Owner != "" {
		q = q.Where("owner = ?", filter.Owner)
	}
	if filter.EventType != "" {
		q = q.Where(eventTypeCondition, eventTypeArgs(filter.EventType)...)
	}
	err := q.OrderBy("id ASC").WithContext(ctx).All(&subs)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to list subscriptions", err)
	}
	if len(subs) == 0 {
		return nil, webhooks.ErrNoData
	}
	return subs, nil
}

// FindForEventType retrieves the subscriptions that should receive a new
// event of the given type. Failing subscriptions are included; disabled
// ones are not.
func (r *SubscriptionRepository) FindForEventType(ctx context.Context, eventType string) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status != ?", model.SubscriptionStatusDisabled).
		Where(eventTypeCondition, eventTypeArgs(eventType)...).
		OrderBy("id ASC").
		WithContext(ctx).
		All(&subs)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find subscriptions for event type", err)
	}
	if len(subs) == 0 {
		return nil, webhooks.ErrNoData
	}
	return subs, nil
}

// CompareAndSwapHealth updates the health columns only when they still carry
// the expected values. Returns false on a lost race.
func (r *SubscriptionRepository) CompareAndSwapHealth(ctx context.Context, id int64, expectedCount int, expectedStatus model.SubscriptionStatus, newCount int, newStatus model.SubscriptionStatus) (bool, error) {
	res, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"failure_count": newCount,
			"status":        newStatus,
		}).
		Where("id = ? AND failure_count = ? AND status = ?", id, expectedCount, expectedStatus).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to update subscription health", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to read affected rows", err)
	}
	return rows > 0, nil
}

// eventTypeCondition matches the comma-joined event_types column. The four
// patterns cover an exact match and the type at the start, middle, or end of
// the list.
const eventTypeCondition = "(event_types = ? OR event_types LIKE ? OR event_types LIKE ? OR event_types LIKE ?)"

func eventTypeArgs(eventType string) []interface{} {
	return []interface{}{
		eventType,
		eventType + ",%",
		"%," + eventType,
		"%," + eventType + ",%",
	}
}
