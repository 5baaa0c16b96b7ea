package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/coregx/webhooks/model"
)

// SubscriptionService handles subscription lifecycle management.
//
// Key operations:
//   - Register: create new subscriptions with validation
//   - Disable/Enable: freeze and resume delivery for an endpoint
//   - RotateSecret: replace the HMAC signing secret
//   - Get/List: query subscriptions
//
// Disable takes effect at the next scan tick: scheduled retries stop being
// claimed, while attempts already in flight complete and record outcomes.
//
// Thread safety: safe for concurrent use.
type SubscriptionService struct {
	subscriptionRepo SubscriptionRepository
	logger           Logger
}

// NewSubscriptionService creates a subscription service with the provided options.
//
// Required options:
//   - WithSubscriptionRepository: subscription persistence
//
// Optional options:
//   - WithSubscriptionLogger: logger instance (default: NoopLogger)
func NewSubscriptionService(opts ...SubscriptionServiceOption) (*SubscriptionService, error) {
	s := &SubscriptionService{
		logger: &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply subscription service option", err)
		}
	}

	if s.subscriptionRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "SubscriptionRepository is required (use WithSubscriptionRepository)")
	}

	return s, nil
}

// RegisterSubscriptionRequest represents a request to register a webhook endpoint.
type RegisterSubscriptionRequest struct {
	Owner      string   `json:"owner"`      // Owning account or team (required)
	TargetURL  string   `json:"targetURL"`  // Webhook endpoint, must be a valid URL (required)
	Secret     string   `json:"secret"`     // HMAC secret; generated when empty
	EventTypes []string `json:"eventTypes"` // Event types to deliver (at least one required)
}

// Validate implements request validation.
func (r RegisterSubscriptionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Owner, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.TargetURL, validation.Required, is.URL),
		validation.Field(&r.EventTypes, validation.Required, validation.Length(1, 0)),
		validation.Field(&r.EventTypes, validation.Each(validation.Required, validation.Length(1, 128))),
	)
}

// Register creates a new active subscription. When no secret is supplied a
// random one is generated and returned on the subscription.
func (s *SubscriptionService) Register(ctx context.Context, req RegisterSubscriptionRequest) (*model.Subscription, error) {
	if err := req.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid subscription request", err)
	}

	secret := req.Secret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to generate secret", err)
		}
		secret = generated
	}

	subscription := model.NewSubscription(req.Owner, req.TargetURL, secret, req.EventTypes)
	subscription, err := s.subscriptionRepo.Save(ctx, subscription)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	s.logger.Infof("Subscription registered: id=%d, owner=%s, url=%s, types=%s",
		subscription.ID, subscription.Owner, subscription.TargetURL, subscription.EventTypes)

	return &subscription, nil
}

// Get retrieves a single subscription by ID.
func (s *SubscriptionService) Get(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	if subscriptionID == 0 {
		return nil, NewError(ErrCodeValidation, "subscription ID is required")
	}

	subscription, err := s.subscriptionRepo.Load(ctx, subscriptionID)
	if err != nil {
		if IsNoData(err) {
			return nil, err
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load subscription", err)
	}

	return &subscription, nil
}

// List returns subscriptions matching the filter.
// Returns empty slice if none found (not an error).
func (s *SubscriptionService) List(ctx context.Context, filter SubscriptionFilter) ([]model.Subscription, error) {
	subscriptions, err := s.subscriptionRepo.List(ctx, filter)
	if err != nil {
		if IsNoData(err) {
			return []model.Subscription{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to list subscriptions", err)
	}

	return subscriptions, nil
}

// Disable freezes delivery for a subscription. Non-terminal deliveries are
// retained; the retry scan stops claiming them until Enable.
// Disabling an already disabled subscription is a no-op.
func (s *SubscriptionService) Disable(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	subscription, err := s.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if subscription.IsDisabled() {
		s.logger.Warnf("Subscription already disabled: id=%d", subscriptionID)
		return subscription, nil
	}

	subscription.Disable()
	saved, err := s.subscriptionRepo.Save(ctx, *subscription)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	s.logger.Infof("Subscription disabled: id=%d", subscriptionID)
	return &saved, nil
}

// Enable lifts a freeze. Frozen deliveries with a past retry time become
// claimable again at the next scan tick.
func (s *SubscriptionService) Enable(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	subscription, err := s.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if !subscription.IsDisabled() {
		s.logger.Warnf("Subscription not disabled: id=%d", subscriptionID)
		return subscription, nil
	}

	subscription.Enable()
	saved, err := s.subscriptionRepo.Save(ctx, *subscription)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	s.logger.Infof("Subscription enabled: id=%d (status=%s)", subscriptionID, saved.Status)
	return &saved, nil
}

// RotateSecret replaces the subscription's HMAC secret with a freshly
// generated one. Attempts already in flight were signed with the old secret;
// subscribers should accept both during a rotation window.
func (s *SubscriptionService) RotateSecret(ctx context.Context, subscriptionID int64) (*model.Subscription, error) {
	subscription, err := s.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to generate secret", err)
	}

	subscription.Secret = secret
	saved, err := s.subscriptionRepo.Save(ctx, *subscription)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save subscription", err)
	}

	s.logger.Infof("Subscription secret rotated: id=%d", subscriptionID)
	return &saved, nil
}

// generateSecret produces a 256-bit random secret, hex encoded.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
