package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coregx/webhooks/model"
)

// In-memory repository fakes shared by the service tests. They mirror the
// adapter behaviors the services depend on: assigned IDs, ErrNoData on
// misses, and compare-and-set claims that lose when the row moved.

type fakeEventRepo struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]model.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[int64]model.Event)}
}

func (r *fakeEventRepo) Load(_ context.Context, id int64) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return model.Event{}, ErrNoData
	}
	return event, nil
}

func (r *fakeEventRepo) FindByEventID(_ context.Context, eventID string) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.EventID == eventID {
			return event, nil
		}
	}
	return model.Event{}, ErrNoData
}

func (r *fakeEventRepo) Save(_ context.Context, m model.Event) (model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m.ID = r.nextID
	r.events[m.ID] = m
	return m, nil
}

type fakeSubscriptionRepo struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]model.Subscription

	// casFailures forces that many lost compare-and-swap races before one
	// succeeds. casCalls counts CompareAndSwapHealth invocations.
	casFailures int
	casCalls    int
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[int64]model.Subscription)}
}

func (r *fakeSubscriptionRepo) add(sub model.Subscription) model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == 0 {
		r.nextID++
		sub.ID = r.nextID
	}
	r.subs[sub.ID] = sub
	return sub
}

func (r *fakeSubscriptionRepo) get(id int64) model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id]
}

func (r *fakeSubscriptionRepo) Load(_ context.Context, id int64) (model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return model.Subscription{}, ErrNoData
	}
	return sub, nil
}

func (r *fakeSubscriptionRepo) Save(_ context.Context, m model.Subscription) (model.Subscription, error) {
	return r.add(m), nil
}

func (r *fakeSubscriptionRepo) List(_ context.Context, filter SubscriptionFilter) ([]model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Subscription
	for _, sub := range r.subs {
		if filter.Owner != "" && sub.Owner != filter.Owner {
			continue
		}
		if filter.EventType != "" && !sub.IsSubscribedTo(filter.EventType) {
			continue
		}
		out = append(out, sub)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSubscriptionRepo) FindForEventType(_ context.Context, eventType string) ([]model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Subscription
	for _, sub := range r.subs {
		if sub.AcceptsNewDeliveries() && sub.IsSubscribedTo(eventType) {
			out = append(out, sub)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSubscriptionRepo) CompareAndSwapHealth(_ context.Context, id int64, expectedCount int, expectedStatus model.SubscriptionStatus, newCount int, newStatus model.SubscriptionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.casCalls++
	if r.casFailures > 0 {
		r.casFailures--
		return false, nil
	}
	sub, ok := r.subs[id]
	if !ok {
		return false, nil
	}
	if sub.FailureCount != expectedCount || sub.Status != expectedStatus {
		return false, nil
	}
	sub.FailureCount = newCount
	sub.Status = newStatus
	r.subs[id] = sub
	return true, nil
}

type fakeDeliveryRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]model.Delivery

	// subs, when set, lets FindDueRetries exclude disabled subscriptions the
	// way the SQL adapter does.
	subs *fakeSubscriptionRepo

	// claimErr is returned by the next claim call, then cleared.
	claimErr error
}

func newFakeDeliveryRepo(subs *fakeSubscriptionRepo) *fakeDeliveryRepo {
	return &fakeDeliveryRepo{rows: make(map[int64]model.Delivery), subs: subs}
}

func (r *fakeDeliveryRepo) add(d model.Delivery) model.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		r.nextID++
		d.ID = r.nextID
	}
	r.rows[d.ID] = d
	return d
}

func (r *fakeDeliveryRepo) get(id int64) model.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *fakeDeliveryRepo) Load(_ context.Context, id int64) (model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return model.Delivery{}, ErrNoData
	}
	return row, nil
}

func (r *fakeDeliveryRepo) Create(_ context.Context, m model.Delivery) (model.Delivery, error) {
	return r.add(m), nil
}

func (r *fakeDeliveryRepo) Update(_ context.Context, m *model.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.ID] = *m
	return nil
}

func (r *fakeDeliveryRepo) ClaimRetry(_ context.Context, id int64) (model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		err := r.claimErr
		r.claimErr = nil
		return model.Delivery{}, err
	}
	row, ok := r.rows[id]
	if !ok {
		return model.Delivery{}, ErrNoData
	}
	if row.Status != model.DeliveryStatusPendingRetry && row.Status != model.DeliveryStatusExhausted {
		return model.Delivery{}, ErrClaimConflict
	}
	row.BeginRetryAttempt()
	row.LastAttemptAt.Time = time.Now()
	row.LastAttemptAt.Valid = true
	r.rows[id] = row
	return row, nil
}

func (r *fakeDeliveryRepo) ClaimStalePending(_ context.Context, id int64) (model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		err := r.claimErr
		r.claimErr = nil
		return model.Delivery{}, err
	}
	row, ok := r.rows[id]
	if !ok {
		return model.Delivery{}, ErrNoData
	}
	if row.Status != model.DeliveryStatusPending {
		return model.Delivery{}, ErrClaimConflict
	}
	row.LastAttemptAt.Time = time.Now()
	row.LastAttemptAt.Valid = true
	r.rows[id] = row
	return row, nil
}

func (r *fakeDeliveryRepo) FindDueRetries(_ context.Context, now time.Time, limit int) ([]model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Delivery
	for _, row := range r.rows {
		if !row.DueForRetry(now) {
			continue
		}
		if r.subs != nil {
			sub := r.subs.get(row.SubscriptionID)
			if sub.IsDisabled() {
				continue
			}
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Time.Before(out[j].NextRetryAt.Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDeliveryRepo) FindStalePending(_ context.Context, olderThan time.Time, limit int) ([]model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Delivery
	for _, row := range r.rows {
		if row.Status != model.DeliveryStatusPending {
			continue
		}
		lastActivity := row.CreatedAt
		if row.LastAttemptAt.Valid {
			lastActivity = row.LastAttemptAt.Time
		}
		if lastActivity.After(olderThan) {
			continue
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDeliveryRepo) ListBySubscription(_ context.Context, q DeliveryQuery) (DeliveryPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Delivery
	for _, row := range r.rows {
		if row.SubscriptionID != q.SubscriptionID {
			continue
		}
		if q.Status != "" && row.Status != q.Status {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return DeliveryPage{Deliveries: out}, nil
}

// stubExecutor returns scripted outcomes. With no script it succeeds with 200.
type stubExecutor struct {
	mu       sync.Mutex
	calls    int
	outcomes []Outcome
	fn       func(sub model.Subscription, event model.Event, attemptNumber int) Outcome
}

func (s *stubExecutor) Attempt(_ context.Context, sub model.Subscription, event model.Event, attemptNumber int) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fn != nil {
		return s.fn(sub, event, attemptNumber)
	}
	if len(s.outcomes) > 0 {
		out := s.outcomes[0]
		s.outcomes = s.outcomes[1:]
		return out
	}
	return Outcome{Success: true, StatusCode: 200, ResponseTime: 5 * time.Millisecond}
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func failureOutcome(statusCode int, message string) Outcome {
	return Outcome{StatusCode: statusCode, ErrorMessage: message, ResponseTime: 5 * time.Millisecond}
}
