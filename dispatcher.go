package webhooks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/coregx/webhooks/backoff"
	"github.com/coregx/webhooks/model"
)

// Dispatcher coordinates the full delivery pipeline: it persists incoming
// events, fans them out to matching subscriptions, runs the first delivery
// attempt, and records outcomes on the ledger.
//
// Retries are not run by the dispatcher itself; it only writes the schedule.
// The RetryWorker claims due rows and feeds them back through the same
// outcome handling, so every attempt (first, scheduled, manual) follows one
// code path.
//
// Thread safety: safe for concurrent use.
type Dispatcher struct {
	eventRepo        EventRepository
	subscriptionRepo SubscriptionRepository
	deliveryRepo     DeliveryRepository
	executor         Executor
	schedule         backoff.Schedule
	health           *HealthTracker
	logger           Logger
	maxConcurrent    int
	retryInterval    time.Duration

	// Per-delivery manual retry limiters. Entries are created lazily and
	// kept for the life of the process.
	limiterMu sync.Mutex
	limiters  map[int64]*rate.Limiter

	// Attempts started by ManualRetry run detached from the caller's
	// request; Close waits for them.
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the provided options.
//
// Required options:
//   - WithDispatcherRepositories: event, subscription, and delivery repositories
//   - WithExecutor: delivery attempt executor
//   - WithHealthTracker: subscription health tracker
//
// Optional options:
//   - WithSchedule: retry schedule (default: backoff.Default())
//   - WithDispatcherLogger: logger instance (default: NoopLogger)
//   - WithMaxConcurrentAttempts: fan-out bound (default: 10)
//   - WithManualRetryInterval: per-delivery manual retry limit (default: 1/minute)
func NewDispatcher(opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		schedule:      backoff.Default(),
		logger:        &NoopLogger{},
		maxConcurrent: 10,
		retryInterval: time.Minute,
		limiters:      make(map[int64]*rate.Limiter),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply dispatcher option", err)
		}
	}

	if d.eventRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "EventRepository is required (use WithDispatcherRepositories)")
	}
	if d.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithDispatcherRepositories)")
	}
	if d.deliveryRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryRepository is required (use WithDispatcherRepositories)")
	}
	if d.executor == nil {
		return nil, NewError(ErrCodeConfiguration, "Executor is required (use WithExecutor)")
	}
	if d.health == nil {
		return nil, NewError(ErrCodeConfiguration, "HealthTracker is required (use WithHealthTracker)")
	}

	return d, nil
}

// DispatchRequest represents an incoming event to deliver.
type DispatchRequest struct {
	EventType string // Routing key matched against subscription event types
	Payload   string // Opaque JSON payload
}

// DispatchResult represents the outcome of a dispatch operation.
type DispatchResult struct {
	EventID           string  // Public event ID assigned to the stored event
	DeliveriesCreated int     // Number of ledger rows created
	SubscriptionIDs   []int64 // Subscriptions that received a delivery
}

// Dispatch persists the event, creates one delivery per matching
// subscription, and runs the first attempt for each concurrently.
//
// Subscriptions that are failing still receive deliveries; only disabled
// ones are skipped. An event with no matching subscriptions is stored and
// returns a result with zero deliveries.
//
// Dispatch returns after all first attempts have recorded their outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if req.EventType == "" {
		return nil, NewError(ErrCodeValidation, "event type is required")
	}
	if req.Payload == "" {
		return nil, NewError(ErrCodeValidation, "payload is required")
	}

	event := model.NewEvent(uuid.NewString(), req.EventType, req.Payload)
	event, err := d.eventRepo.Save(ctx, event)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save event", err)
	}

	d.logger.Infof("Event stored: id=%s, type=%s", event.EventID, event.EventType)

	subscriptions, err := d.subscriptionRepo.FindForEventType(ctx, req.EventType)
	if err != nil && !IsNoData(err) {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load subscriptions", err)
	}

	if len(subscriptions) == 0 {
		d.logger.Warnf("No subscriptions for event type %s", req.EventType)
		return &DispatchResult{
			EventID:           event.EventID,
			DeliveriesCreated: 0,
			SubscriptionIDs:   []int64{},
		}, nil
	}

	type fanoutItem struct {
		delivery model.Delivery
		sub      model.Subscription
	}

	items := make([]fanoutItem, 0, len(subscriptions))
	subscriptionIDs := make([]int64, 0, len(subscriptions))
	for _, sub := range subscriptions {
		delivery, err := d.deliveryRepo.Create(ctx, model.NewDelivery(event.ID, sub.ID))
		if err != nil {
			d.logger.Errorf("Failed to create delivery for subscription %d: %v", sub.ID, err)
			continue
		}
		items = append(items, fanoutItem{delivery: delivery, sub: sub})
		subscriptionIDs = append(subscriptionIDs, sub.ID)
	}

	// First attempts run concurrently, bounded.
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.maxConcurrent)
	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item fanoutItem) {
			defer wg.Done()
			defer func() { <-sem }()
			d.runAttempt(ctx, item.delivery, item.sub, event, false)
		}(items[i])
	}
	wg.Wait()

	d.logger.Infof("Dispatched event %s to %d subscriptions", event.EventID, len(items))

	return &DispatchResult{
		EventID:           event.EventID,
		DeliveriesCreated: len(items),
		SubscriptionIDs:   subscriptionIDs,
	}, nil
}

// RetryReceipt represents an accepted manual retry.
type RetryReceipt struct {
	DeliveryID         int64
	AttemptNumber      int       // Attempt number the forced retry will run as
	Queued             bool      // Always true on success
	EstimatedRetryTime time.Time // When the attempt is expected to run
}

// ManualRetry forces a new attempt for a delivery, outside the automatic
// schedule. Allowed for pending_retry and exhausted rows, including rows of
// disabled subscriptions.
//
// The row is claimed with a compare-and-set (the same mechanism that
// serializes the retry worker), so a concurrent worker and operator cannot
// double-attempt. The attempt itself runs in the background; the receipt is
// returned immediately.
//
// Errors:
//   - NO_DATA: no such delivery
//   - INVALID_STATE: delivery already succeeded or an attempt is in flight
//   - RATE_LIMITED: manual retries arriving faster than the per-delivery limit
//   - CONFLICT: a concurrent actor claimed the row first
func (d *Dispatcher) ManualRetry(ctx context.Context, deliveryID int64) (*RetryReceipt, error) {
	delivery, err := d.deliveryRepo.Load(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	if err := delivery.CanRetryManually(); err != nil {
		return nil, NewErrorWithCause(ErrCodeInvalidState, "delivery cannot be retried", err)
	}

	if !d.limiterFor(deliveryID).Allow() {
		return nil, ErrRateLimited
	}

	wasExhausted := delivery.Status == model.DeliveryStatusExhausted

	claimed, err := d.deliveryRepo.ClaimRetry(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	sub, err := d.subscriptionRepo.Load(ctx, claimed.SubscriptionID)
	if err != nil {
		return nil, err
	}
	event, err := d.eventRepo.Load(ctx, claimed.EventID)
	if err != nil {
		return nil, err
	}

	// The attempt outlives the operator's request.
	attemptCtx := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.runAttempt(attemptCtx, claimed, sub, event, wasExhausted)
	}()

	d.logger.Infof("Manual retry queued for delivery %d (attempt %d)", deliveryID, claimed.AttemptNumber)

	return &RetryReceipt{
		DeliveryID:         deliveryID,
		AttemptNumber:      claimed.AttemptNumber,
		Queued:             true,
		EstimatedRetryTime: time.Now(),
	}, nil
}

// Close waits for background manual-retry attempts to finish, up to the
// context deadline.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule returns the retry schedule in use.
func (d *Dispatcher) Schedule() backoff.Schedule {
	return d.schedule
}

func (d *Dispatcher) limiterFor(deliveryID int64) *rate.Limiter {
	d.limiterMu.Lock()
	defer d.limiterMu.Unlock()
	l, ok := d.limiters[deliveryID]
	if !ok {
		l = rate.NewLimiter(rate.Every(d.retryInterval), 1)
		d.limiters[deliveryID] = l
	}
	return l
}

// processClaimed loads the subscription and event for a claimed ledger row
// and runs the attempt. Used by the retry worker after a successful claim.
func (d *Dispatcher) processClaimed(ctx context.Context, claimed model.Delivery, wasExhausted bool) error {
	sub, err := d.subscriptionRepo.Load(ctx, claimed.SubscriptionID)
	if err != nil {
		return err
	}
	event, err := d.eventRepo.Load(ctx, claimed.EventID)
	if err != nil {
		return err
	}
	d.runAttempt(ctx, claimed, sub, event, wasExhausted)
	return nil
}

// runAttempt executes one delivery attempt and records the outcome on the
// ledger and the subscription's health. wasExhausted marks rows revived from
// the exhausted status so a re-failure does not increment the subscription
// failure counter a second time.
func (d *Dispatcher) runAttempt(ctx context.Context, delivery model.Delivery, sub model.Subscription, event model.Event, wasExhausted bool) {
	outcome := d.executor.Attempt(ctx, sub, event, delivery.AttemptNumber)
	d.recordOutcome(ctx, &delivery, outcome, wasExhausted)
}

// recordOutcome applies an attempt outcome to the ledger row and the
// subscription health counter.
func (d *Dispatcher) recordOutcome(ctx context.Context, delivery *model.Delivery, outcome Outcome, wasExhausted bool) {
	if outcome.Success {
		delivery.MarkSucceeded(outcome.StatusCode, outcome.ResponseTime)
		if err := d.deliveryRepo.Update(ctx, delivery); err != nil {
			d.logger.Errorf("Failed to record success for delivery %d: %v", delivery.ID, err)
			return
		}
		if err := d.health.RecordSuccess(ctx, delivery.SubscriptionID); err != nil {
			d.logger.Errorf("Failed to record subscription health for delivery %d: %v", delivery.ID, err)
		}
		d.logger.Infof("Delivered event %d to subscription %d (delivery=%d, attempt=%d, %dms)",
			delivery.EventID, delivery.SubscriptionID, delivery.ID, delivery.AttemptNumber,
			outcome.ResponseTime.Milliseconds())
		return
	}

	delay, ok := d.schedule.NextDelay(delivery.AttemptNumber)
	if ok {
		delivery.MarkRetryScheduled(outcome.StatusCode, outcome.ErrorMessage, outcome.ResponseTime, delay)
		if err := d.deliveryRepo.Update(ctx, delivery); err != nil {
			d.logger.Errorf("Failed to schedule retry for delivery %d: %v", delivery.ID, err)
			return
		}
		d.logger.Warnf("Delivery %d attempt %d failed, retry in %v: %s",
			delivery.ID, delivery.AttemptNumber, delay, outcome.ErrorMessage)
		return
	}

	delivery.MarkExhausted(outcome.StatusCode, outcome.ErrorMessage, outcome.ResponseTime)
	if err := d.deliveryRepo.Update(ctx, delivery); err != nil {
		d.logger.Errorf("Failed to mark delivery %d exhausted: %v", delivery.ID, err)
		return
	}
	d.logger.Warnf("Delivery %d exhausted after attempt %d: %s",
		delivery.ID, delivery.AttemptNumber, outcome.ErrorMessage)

	// Only the first transition into exhausted counts against the
	// subscription. A re-failed manual retry of an exhausted row does not.
	if wasExhausted {
		return
	}
	if err := d.health.RecordExhausted(ctx, delivery.SubscriptionID); err != nil {
		d.logger.Errorf("Failed to record exhaustion for subscription %d: %v", delivery.SubscriptionID, err)
	}
}
