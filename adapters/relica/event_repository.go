package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/webhooks"
	"github.com/coregx/webhooks/model"
)

// EventRepository implements webhooks.EventRepository using Relica.
type EventRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewEventRepository creates a new EventRepository with default table prefix.
func NewEventRepository(sqlDB *sql.DB, driverName string) *EventRepository {
	return &EventRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "webhooks_"}
}

// NewEventRepositoryWithPrefix creates a new EventRepository with custom table prefix.
func NewEventRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *EventRepository {
	return &EventRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *EventRepository) tableName() string {
	return r.tablePrefix + "event"
}

// Load retrieves an event by row ID.
func (r *EventRepository) Load(ctx context.Context, id int64) (model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&event)
	if errors.Is(err, sql.ErrNoRows) {
		return event, webhooks.ErrNoData
	}
	if err != nil {
		return event, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to load event", err)
	}
	return event, nil
}

// FindByEventID retrieves an event by its public event ID.
func (r *EventRepository) FindByEventID(ctx context.Context, eventID string) (model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("event_id = ?", eventID).One(&event)
	if errors.Is(err, sql.ErrNoRows) {
		return event, webhooks.ErrNoData
	}
	if err != nil {
		return event, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to find event", err)
	}
	return event, nil
}

// Save creates a new event. Events are immutable, so an event with a
// populated ID is never written back.
func (r *EventRepository) Save(ctx context.Context, m model.Event) (model.Event, error) {
	if m.ID != 0 {
		return m, webhooks.NewError(webhooks.ErrCodeValidation, "events are immutable")
	}

	// Insert using Model() API - auto-populates m.ID
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
	if err != nil {
		return m, webhooks.NewErrorWithCause(webhooks.ErrCodeDatabase, "failed to insert event", err)
	}
	return m, nil
}
