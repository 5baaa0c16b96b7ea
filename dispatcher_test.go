package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/webhooks/model"
)

type dispatcherEnv struct {
	events     *fakeEventRepo
	subs       *fakeSubscriptionRepo
	deliveries *fakeDeliveryRepo
	executor   *stubExecutor
	dispatcher *Dispatcher
}

func newDispatcherEnv(t *testing.T, opts ...DispatcherOption) *dispatcherEnv {
	t.Helper()

	env := &dispatcherEnv{
		events:   newFakeEventRepo(),
		subs:     newFakeSubscriptionRepo(),
		executor: &stubExecutor{},
	}
	env.deliveries = newFakeDeliveryRepo(env.subs)

	health, err := NewHealthTracker(env.subs, nil)
	require.NoError(t, err)

	all := append([]DispatcherOption{
		WithDispatcherRepositories(env.events, env.subs, env.deliveries),
		WithExecutor(env.executor),
		WithHealthTracker(health),
	}, opts...)

	env.dispatcher, err = NewDispatcher(all...)
	require.NoError(t, err)
	return env
}

func TestNewDispatcher_RequiresDependencies(t *testing.T) {
	_, err := NewDispatcher()
	assert.Error(t, err)

	_, err = NewDispatcher(
		WithDispatcherRepositories(newFakeEventRepo(), newFakeSubscriptionRepo(), newFakeDeliveryRepo(nil)),
	)
	assert.Error(t, err)
}

func TestDispatcher_Dispatch_FanOut(t *testing.T) {
	env := newDispatcherEnv(t)

	active := env.subs.add(model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"}))

	failing := model.NewSubscription("team-b", "https://b.example.com/hook", "secret-b", []string{"order.created"})
	failing.Status = model.SubscriptionStatusFailing
	failing.FailureCount = 5
	failing = env.subs.add(failing)

	disabled := model.NewSubscription("team-c", "https://c.example.com/hook", "secret-c", []string{"order.created"})
	disabled.Disable()
	env.subs.add(disabled)

	env.subs.add(model.NewSubscription("team-d", "https://d.example.com/hook", "secret-d", []string{"invoice.paid"}))

	result, err := env.dispatcher.Dispatch(context.Background(), DispatchRequest{
		EventType: "order.created",
		Payload:   `{"orderId":42}`,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.EventID)
	assert.Equal(t, 2, result.DeliveriesCreated)
	assert.ElementsMatch(t, []int64{active.ID, failing.ID}, result.SubscriptionIDs)
	assert.Equal(t, 2, env.executor.callCount())

	// Dispatch returns only after first attempts recorded their outcomes.
	for _, id := range []int64{1, 2} {
		row := env.deliveries.get(id)
		assert.Equal(t, model.DeliveryStatusSuccess, row.Status)
		assert.Equal(t, 1, row.AttemptNumber)
		assert.True(t, row.DeliveredAt.Valid)
	}

	// A successful delivery recovers the failing subscription.
	recovered := env.subs.get(failing.ID)
	assert.Equal(t, model.SubscriptionStatusActive, recovered.Status)
	assert.Equal(t, 0, recovered.FailureCount)
}

func TestDispatcher_Dispatch_NoMatchingSubscriptions(t *testing.T) {
	env := newDispatcherEnv(t)

	result, err := env.dispatcher.Dispatch(context.Background(), DispatchRequest{
		EventType: "order.created",
		Payload:   `{}`,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.EventID)
	assert.Equal(t, 0, result.DeliveriesCreated)
	assert.Empty(t, result.SubscriptionIDs)
	assert.Equal(t, 0, env.executor.callCount())

	// The event is stored regardless, for audit and later subscriptions.
	stored, err := env.events.FindByEventID(context.Background(), result.EventID)
	require.NoError(t, err)
	assert.Equal(t, "order.created", stored.EventType)
}

func TestDispatcher_Dispatch_Validation(t *testing.T) {
	env := newDispatcherEnv(t)

	tests := []struct {
		name string
		req  DispatchRequest
	}{
		{"missing event type", DispatchRequest{Payload: `{}`}},
		{"missing payload", DispatchRequest{EventType: "order.created"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.dispatcher.Dispatch(context.Background(), tt.req)
			assert.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestDispatcher_Dispatch_FailureSchedulesRetry(t *testing.T) {
	env := newDispatcherEnv(t)
	env.executor.outcomes = []Outcome{failureOutcome(503, "endpoint returned 503 Service Unavailable")}

	sub := env.subs.add(model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"}))

	result, err := env.dispatcher.Dispatch(context.Background(), DispatchRequest{
		EventType: "order.created",
		Payload:   `{}`,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.DeliveriesCreated)

	row := env.deliveries.get(1)
	assert.Equal(t, model.DeliveryStatusPendingRetry, row.Status)
	assert.Equal(t, 1, row.AttemptNumber)
	assert.Equal(t, int64(503), row.StatusCode.Int64)
	require.True(t, row.NextRetryAt.Valid)
	assert.WithinDuration(t, time.Now().Add(time.Minute), row.NextRetryAt.Time, 10*time.Second)

	// A scheduled retry is not an exhausted delivery; health is untouched.
	assert.Equal(t, 0, env.subs.get(sub.ID).FailureCount)
}

func TestDispatcher_ManualRetry_NotFound(t *testing.T) {
	env := newDispatcherEnv(t)

	_, err := env.dispatcher.ManualRetry(context.Background(), 999)
	assert.True(t, IsNoData(err))
}

func TestDispatcher_ManualRetry_InvalidStates(t *testing.T) {
	env := newDispatcherEnv(t)
	sub := env.subs.add(model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"}))
	event, err := env.events.Save(context.Background(), model.NewEvent("evt-1", "order.created", `{}`))
	require.NoError(t, err)

	succeeded := model.NewDelivery(event.ID, sub.ID)
	succeeded.MarkSucceeded(200, 10*time.Millisecond)
	succeeded = env.deliveries.add(succeeded)

	inflight := env.deliveries.add(model.NewDelivery(event.ID, sub.ID))

	_, err = env.dispatcher.ManualRetry(context.Background(), succeeded.ID)
	assert.True(t, IsInvalidState(err))

	_, err = env.dispatcher.ManualRetry(context.Background(), inflight.ID)
	assert.True(t, IsInvalidState(err))
}

func TestDispatcher_ManualRetry_RateLimited(t *testing.T) {
	env := newDispatcherEnv(t, WithManualRetryInterval(time.Hour))
	env.executor.fn = func(model.Subscription, model.Event, int) Outcome {
		return failureOutcome(500, "endpoint returned 500 Internal Server Error")
	}

	sub := env.subs.add(model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"}))
	event, err := env.events.Save(context.Background(), model.NewEvent("evt-1", "order.created", `{}`))
	require.NoError(t, err)

	row := model.NewDelivery(event.ID, sub.ID)
	row.MarkRetryScheduled(503, "endpoint returned 503 Service Unavailable", 5*time.Millisecond, time.Minute)
	row = env.deliveries.add(row)

	receipt, err := env.dispatcher.ManualRetry(context.Background(), row.ID)
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	assert.Equal(t, 2, receipt.AttemptNumber)

	require.NoError(t, env.dispatcher.Close(context.Background()))
	assert.Equal(t, model.DeliveryStatusPendingRetry, env.deliveries.get(row.ID).Status)

	// The per-delivery limiter refuses a second forced retry inside the window.
	_, err = env.dispatcher.ManualRetry(context.Background(), row.ID)
	assert.True(t, IsRateLimited(err))
}

func TestDispatcher_ManualRetry_RevivesExhausted(t *testing.T) {
	env := newDispatcherEnv(t)

	failing := model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"})
	failing.Status = model.SubscriptionStatusFailing
	failing.FailureCount = 5
	failing = env.subs.add(failing)

	event, err := env.events.Save(context.Background(), model.NewEvent("evt-1", "order.created", `{}`))
	require.NoError(t, err)

	row := model.NewDelivery(event.ID, failing.ID)
	row.AttemptNumber = 6
	row.MarkExhausted(500, "endpoint returned 500 Internal Server Error", 5*time.Millisecond)
	row = env.deliveries.add(row)

	receipt, err := env.dispatcher.ManualRetry(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, receipt.AttemptNumber)

	require.NoError(t, env.dispatcher.Close(context.Background()))

	revived := env.deliveries.get(row.ID)
	assert.Equal(t, model.DeliveryStatusSuccess, revived.Status)
	assert.Equal(t, 7, revived.AttemptNumber)

	recovered := env.subs.get(failing.ID)
	assert.Equal(t, model.SubscriptionStatusActive, recovered.Status)
	assert.Equal(t, 0, recovered.FailureCount)
}

func TestDispatcher_ManualRetry_ExhaustedAgainDoesNotDoubleCount(t *testing.T) {
	env := newDispatcherEnv(t)
	env.executor.fn = func(model.Subscription, model.Event, int) Outcome {
		return failureOutcome(500, "endpoint returned 500 Internal Server Error")
	}

	failing := model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"})
	failing.Status = model.SubscriptionStatusFailing
	failing.FailureCount = 5
	failing = env.subs.add(failing)

	event, err := env.events.Save(context.Background(), model.NewEvent("evt-1", "order.created", `{}`))
	require.NoError(t, err)

	row := model.NewDelivery(event.ID, failing.ID)
	row.AttemptNumber = 6
	row.MarkExhausted(500, "endpoint returned 500 Internal Server Error", 5*time.Millisecond)
	row = env.deliveries.add(row)

	_, err = env.dispatcher.ManualRetry(context.Background(), row.ID)
	require.NoError(t, err)
	require.NoError(t, env.dispatcher.Close(context.Background()))

	// Attempt 7 has no scheduled delay, so the row exhausts again. The
	// subscription was already charged for this delivery.
	again := env.deliveries.get(row.ID)
	assert.Equal(t, model.DeliveryStatusExhausted, again.Status)
	assert.Equal(t, 7, again.AttemptNumber)
	assert.Equal(t, 5, env.subs.get(failing.ID).FailureCount)
}
