package webhooks

import (
	"context"
	"fmt"

	"github.com/coregx/webhooks/model"
)

// healthUpdateRetries bounds the optimistic-concurrency loop. Contention on a
// single subscription's counter is short-lived, so a handful of retries is
// plenty.
const healthUpdateRetries = 5

// HealthTracker maintains the per-subscription consecutive-failure counter
// and the active/failing status derived from it.
//
// Updates go through a compare-and-swap on (failure_count, status) so that
// concurrent deliveries of the same subscription never lose an increment or
// a reset. On a lost race the tracker reloads and reapplies.
//
// Thread safety: safe for concurrent use.
type HealthTracker struct {
	subscriptionRepo SubscriptionRepository
	logger           Logger
}

// NewHealthTracker creates a health tracker.
func NewHealthTracker(subscriptionRepo SubscriptionRepository, logger Logger) (*HealthTracker, error) {
	if subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required")
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	return &HealthTracker{
		subscriptionRepo: subscriptionRepo,
		logger:           logger,
	}, nil
}

// RecordSuccess applies a successful delivery to the subscription's health:
// the failure count resets to zero and a failing subscription recovers.
func (t *HealthTracker) RecordSuccess(ctx context.Context, subscriptionID int64) error {
	return t.apply(ctx, subscriptionID, func(s *model.Subscription) {
		s.RecordSuccess()
	})
}

// RecordExhausted applies a permanently failed delivery: the failure count
// increments and the subscription flips to failing at the threshold.
// Called exactly once per delivery's first transition into exhausted.
func (t *HealthTracker) RecordExhausted(ctx context.Context, subscriptionID int64) error {
	return t.apply(ctx, subscriptionID, func(s *model.Subscription) {
		s.RecordExhausted()
	})
}

func (t *HealthTracker) apply(ctx context.Context, subscriptionID int64, mutate func(*model.Subscription)) error {
	for i := 0; i < healthUpdateRetries; i++ {
		sub, err := t.subscriptionRepo.Load(ctx, subscriptionID)
		if err != nil {
			if IsNoData(err) {
				return err
			}
			return NewErrorWithCause(ErrCodeDatabase, "failed to load subscription for health update", err)
		}

		expectedCount := sub.FailureCount
		expectedStatus := sub.Status
		mutate(&sub)

		if sub.FailureCount == expectedCount && sub.Status == expectedStatus {
			return nil
		}

		swapped, err := t.subscriptionRepo.CompareAndSwapHealth(ctx, subscriptionID,
			expectedCount, expectedStatus, sub.FailureCount, sub.Status)
		if err != nil {
			return NewErrorWithCause(ErrCodeDatabase, "failed to update subscription health", err)
		}
		if swapped {
			if sub.Status != expectedStatus {
				t.logger.Infof("Subscription %d health changed: %s -> %s (failures=%d)",
					subscriptionID, expectedStatus, sub.Status, sub.FailureCount)
			}
			return nil
		}

		t.logger.Debugf("Health update for subscription %d lost a race, retrying", subscriptionID)
	}

	return NewError(ErrCodeDatabase, fmt.Sprintf("health update for subscription %d kept losing races", subscriptionID))
}
