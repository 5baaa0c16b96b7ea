package webhooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/webhooks/model"
)

func TestNewHealthTracker_RequiresRepository(t *testing.T) {
	_, err := NewHealthTracker(nil, nil)
	assert.Error(t, err)
}

func TestHealthTracker_RecordExhausted_FlipsToFailingAtThreshold(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	tracker, err := NewHealthTracker(repo, nil)
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"})
	sub.FailureCount = model.FailingThreshold - 1
	sub = repo.add(sub)

	require.NoError(t, tracker.RecordExhausted(context.Background(), sub.ID))

	updated := repo.get(sub.ID)
	assert.Equal(t, model.FailingThreshold, updated.FailureCount)
	assert.Equal(t, model.SubscriptionStatusFailing, updated.Status)
}

func TestHealthTracker_RecordSuccess_RecoversFailing(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	tracker, err := NewHealthTracker(repo, nil)
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"})
	sub.Status = model.SubscriptionStatusFailing
	sub.FailureCount = 7
	sub = repo.add(sub)

	require.NoError(t, tracker.RecordSuccess(context.Background(), sub.ID))

	updated := repo.get(sub.ID)
	assert.Equal(t, 0, updated.FailureCount)
	assert.Equal(t, model.SubscriptionStatusActive, updated.Status)
}

func TestHealthTracker_NoWriteWhenNothingChanges(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	tracker, err := NewHealthTracker(repo, nil)
	require.NoError(t, err)

	// Healthy subscription, successful delivery: count and status already match.
	sub := repo.add(model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"}))

	require.NoError(t, tracker.RecordSuccess(context.Background(), sub.ID))
	assert.Equal(t, 0, repo.casCalls)
}

func TestHealthTracker_RetriesLostRaces(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	tracker, err := NewHealthTracker(repo, nil)
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"})
	sub.FailureCount = 2
	sub = repo.add(sub)

	repo.casFailures = 2

	require.NoError(t, tracker.RecordExhausted(context.Background(), sub.ID))
	assert.Equal(t, 3, repo.casCalls)
	assert.Equal(t, 3, repo.get(sub.ID).FailureCount)
}

func TestHealthTracker_GivesUpAfterRepeatedRaces(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	tracker, err := NewHealthTracker(repo, nil)
	require.NoError(t, err)

	sub := model.NewSubscription("team-a", "https://a.example.com/hook", "secret-a", []string{"order.created"})
	sub.FailureCount = 2
	sub = repo.add(sub)

	repo.casFailures = healthUpdateRetries

	err = tracker.RecordExhausted(context.Background(), sub.ID)
	assert.Error(t, err)
	assert.Equal(t, 2, repo.get(sub.ID).FailureCount)
}

func TestHealthTracker_MissingSubscription(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	tracker, err := NewHealthTracker(repo, nil)
	require.NoError(t, err)

	err = tracker.RecordSuccess(context.Background(), 42)
	assert.True(t, IsNoData(err))
}
