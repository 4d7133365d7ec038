package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/metrics"
	"github.com/normanking/alcance/internal/router"
)

var (
	// ErrInvalidSignature means the payload failed Stripe signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMissingMetadata means a checkout session carries no userId.
	ErrMissingMetadata = errors.New("checkout session missing userId metadata")
	// ErrMalformedEvent means the event object could not be decoded.
	ErrMalformedEvent = errors.New("malformed event payload")
)

// WebhookResult describes what a webhook event changed.
type WebhookResult struct {
	Type     string `json:"type"`
	Handled  bool   `json:"handled"`
	UserID   string `json:"user_id,omitempty"`
	Customer string `json:"customer,omitempty"`
	Rewarded bool   `json:"rewarded,omitempty"`
}

// HandleWebhook verifies and applies a Stripe event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	metrics.StripeWebhookEvents.WithLabelValues(string(event.Type)).Inc()
	res := &WebhookResult{Type: string(event.Type)}

	switch event.Type {
	case "checkout.session.completed":
		err = s.checkoutCompleted(ctx, event, res)
	case "customer.subscription.updated":
		err = s.subscriptionChanged(ctx, event, res, false)
	case "customer.subscription.deleted":
		err = s.subscriptionChanged(ctx, event, res, true)
	default:
		s.log.Debug().Str("type", res.Type).Msg("ignoring webhook event")
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Handled = true
	return res, nil
}

func (s *Service) checkoutCompleted(ctx context.Context, event stripe.Event, res *WebhookResult) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	userID := sess.Metadata["userId"]
	if userID == "" {
		return ErrMissingMetadata
	}
	plan := sess.Metadata["plan"]
	if tier, err := router.ParseTier(plan); err != nil || plan == "" {
		plan = string(router.TierPro)
	} else {
		plan = string(tier)
	}

	customer := ""
	if sess.Customer != nil {
		customer = sess.Customer.ID
	}
	res.UserID, res.Customer = userID, customer

	err := s.store.UpdateSubscription(ctx, userID, customer, data.StatusActive, plan)
	if errors.Is(err, data.ErrNotFound) {
		s.log.Warn().Str("user", userID).Str("customer", customer).Msg("checkout completed for unknown user")
		return nil
	}
	if err != nil {
		return fmt.Errorf("activate subscription for %s: %w", userID, err)
	}

	rewarded, err := s.store.RewardReferrer(ctx, userID, s.cfg.ReferralRewardCents)
	if err != nil {
		return fmt.Errorf("reward referrer of %s: %w", userID, err)
	}
	res.Rewarded = rewarded

	s.log.Info().
		Str("user", userID).
		Str("customer", customer).
		Str("plan", plan).
		Bool("referral_rewarded", rewarded).
		Msg("subscription activated")
	return nil
}

func (s *Service) subscriptionChanged(ctx context.Context, event stripe.Event, res *WebhookResult, deleted bool) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("%w: subscription without customer", ErrMalformedEvent)
	}
	res.Customer = sub.Customer.ID

	status, plan := statusFor(sub.Status), ""
	if deleted {
		status, plan = data.StatusCanceled, string(router.TierEco)
	}

	err := s.store.UpdateSubscriptionByCustomer(ctx, sub.Customer.ID, status, plan)
	if errors.Is(err, data.ErrNotFound) {
		s.log.Warn().Str("customer", sub.Customer.ID).Msg("subscription event for unknown customer")
		return nil
	}
	if err != nil {
		return fmt.Errorf("update subscription for %s: %w", sub.Customer.ID, err)
	}
	s.log.Info().Str("customer", sub.Customer.ID).Str("status", status).Msg("subscription updated")
	return nil
}

// statusFor maps Stripe subscription statuses onto profile statuses.
func statusFor(st stripe.SubscriptionStatus) string {
	switch st {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return data.StatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return data.StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return data.StatusCanceled
	default:
		return data.StatusInactive
	}
}
