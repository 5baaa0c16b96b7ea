package relica

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/coregx/relica"
	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// DeliveryRepository implements webhooks.DeliveryRepository using Relica.
//
// Claims are implemented as conditional UPDATEs guarded by the row's current
// (status, attempt_number) pair, so two workers racing for the same row
// resolve through RowsAffected: exactly one wins, the other gets
// ErrClaimConflict.
type DeliveryRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewDeliveryRepository creates a new DeliveryRepository with default table prefix.
func NewDeliveryRepository(sqlDB *sql.DB, driverName string) *DeliveryRepository {
	return &DeliveryRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "webhooks_"}
}

// NewDeliveryRepositoryWithPrefix creates a new DeliveryRepository with custom table prefix.
func NewDeliveryRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DeliveryRepository {
	return &DeliveryRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *DeliveryRepository) tableName() string {
	return r.tablePrefix + "delivery"
}

func (r *DeliveryRepository) subscriptionTableName() string {
	return r.tablePrefix + "subscription"
}

// Load retrieves a delivery by ID.
func (r *DeliveryRepository) Load(ctx context.Context, id int64) (model.Delivery, error) {
	var d model.Delivery
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return d, webhooks.ErrNoData
	}
	if err != nil {
		return d, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to load delivery", err)
	}
	return d, nil
}

// Create inserts a new ledger row.
func (r *DeliveryRepository) Create(ctx context.Context, m model.Delivery) (model.Delivery, error) {
	// Insert using Model() API - auto-populates m.ID
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
	if err != nil {
		return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to insert delivery", err)
	}
	return m, nil
}

// Update persists the outcome fields of an attempted delivery.
func (r *DeliveryRepository) Update(ctx context.Context, m *model.Delivery) error {
	// Update using Model() API - auto WHERE id = ?
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update()
	if err != nil {
		return webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to update delivery", err)
	}
	return nil
}

// ClaimRetry atomically moves a pending_retry or exhausted row back to
// pending with AttemptNumber+1. The guarded UPDATE loses to any concurrent
// claim of the same row.
func (r *DeliveryRepository) ClaimRetry(ctx context.Context, id int64) (model.Delivery, error) {
	current, err := r.Load(ctx, id)
	if err != nil {
		return current, err
	}
	if current.Status != model.DeliveryStatusPendingRetry && current.Status != model.DeliveryStatusExhausted {
		return current, webhooks.ErrClaimConflict
	}

	claimed := current
	claimed.BeginRetryAttempt()
	claimed.LastAttemptAt = sql.NullTime{Time: time.Now(), Valid: true}

	res, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"status":          claimed.Status,
			"attempt_number":  claimed.AttemptNumber,
			"next_retry_at":   nil,
			"last_attempt_at": claimed.LastAttemptAt.Time,
		}).
		Where("id = ? AND status = ? AND attempt_number = ?", id, current.Status, current.AttemptNumber).
		WithContext(ctx).
		Execute()
	if err != nil {
		return current, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to claim delivery", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return current, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to read affected rows", err)
	}
	if rows == 0 {
		return current, webhooks.ErrClaimConflict
	}
	return claimed, nil
}

// ClaimStalePending re-claims an abandoned pending row without bumping the
// attempt number. Refreshing last_attempt_at keeps the row out of the next
// stale scan while the re-run is in flight.
func (r *DeliveryRepository) ClaimStalePending(ctx context.Context, id int64) (model.Delivery, error) {
	current, err := r.Load(ctx, id)
	if err != nil {
		return current, err
	}
	if current.Status != model.DeliveryStatusPending {
		return current, webhooks.ErrClaimConflict
	}

	claimed := current
	claimed.LastAttemptAt = sql.NullTime{Time: time.Now(), Valid: true}

	res, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"last_attempt_at": claimed.LastAttemptAt.Time,
		}).
		Where("id = ? AND status = ? AND attempt_number = ?", id, current.Status, current.AttemptNumber).
		WithContext(ctx).
		Execute()
	if err != nil {
		return current, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to claim stale delivery", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return current, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to read affected rows", err)
	}
	if rows == 0 {
		return current, webhooks.ErrClaimConflict
	}
	return claimed, nil
}

// FindDueRetries retrieves scheduled rows whose retry time has passed.
// Rows of disabled subscriptions are excluded at the query, so a freeze
// takes effect at the next scan without touching the ledger.
func (r *DeliveryRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]model.Delivery, error) {
	var deliveries []model.Delivery

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND next_retry_at <= ?", model.DeliveryStatusPendingRetry, now).
		Where("subscription_id NOT IN (SELECT id FROM "+r.subscriptionTableName()+" WHERE status = ?)",
			model.SubscriptionStatusDisabled).
		OrderBy("next_retry_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&deliveries)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find due retries", err)
	}
	if len(deliveries) == 0 {
		return nil, webhooks.ErrNoData
	}
	return deliveries, nil
}

// FindStalePending retrieves pending rows whose last activity predates the
// threshold. These are attempts whose worker died before writing an outcome.
func (r *DeliveryRepository) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]model.Delivery, error) {
	var deliveries []model.Delivery

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND COALESCE(last_attempt_at, created_at) <= ?", model.DeliveryStatusPending, olderThan).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&deliveries)
	if err != nil {
		return nil, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find stale pending deliveries", err)
	}
	if len(deliveries) == 0 {
		return nil, webhooks.ErrNoData
	}
	return deliveries, nil
}

// ListBySubscription retrieves one ledger page, newest first. The cursor is
// an opaque encoding of the last row ID of the previous page.
func (r *DeliveryRepository) ListBySubscription(ctx context.Context, query webhooks.DeliveryQuery) (webhooks.DeliveryPage, error) {
	var page webhooks.DeliveryPage

	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscription_id = ?", query.SubscriptionID)
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if query.Cursor != "" {
		beforeID, err := decodeCursor(query.Cursor)
		if err != nil {
			return page, webhooks.NewErrorWithCause(webhooks.ErrCodeValidation, "invalid cursor", err)
		}
		q = q.Where("id < ?", beforeID)
	}

	var deliveries []model.Delivery
	// Fetch one extra row to know whether another page exists.
	err := q.OrderBy("id DESC").
		Limit(int64(limit + 1)).
		WithContext(ctx).
		All(&deliveries)
	if err != nil {
		return page, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to list deliveries", err)
	}

	if len(deliveries) > limit {
		deliveries = deliveries[:limit]
		page.NextCursor = encodeCursor(deliveries[limit-1].ID)
	}
	page.Deliveries = deliveries
	return page, nil
}

func encodeCursor(id int64) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

func decodeCursor(cursor string) (int64, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}
