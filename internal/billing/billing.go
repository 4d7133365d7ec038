// Package billing creates Stripe checkout sessions, processes Stripe
// webhooks and resolves a user's subscription tier.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/normanking/alcance/internal/config"
	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/router"
)

// placeholderPrice is the price id shipped in sample configuration.
const placeholderPrice = "price_replace_me"

var (
	// ErrPriceNotConfigured means the plan has no usable Stripe price id.
	ErrPriceNotConfigured = errors.New("stripe price id not configured")
	// ErrUnknownPlan means the requested plan is not eco or pro.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrNotConfigured means no Stripe secret key is set.
	ErrNotConfigured = errors.New("stripe not configured")
)

// SessionCreator creates checkout sessions. *session.Client satisfies it.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Store is the persistence billing needs.
type Store interface {
	GetPlan(ctx context.Context, userID string) (string, error)
	UpdateSubscription(ctx context.Context, userID, customerID, status, plan string) error
	UpdateSubscriptionByCustomer(ctx context.Context, customerID, status, plan string) error
	RewardReferrer(ctx context.Context, referredID string, cents int64) (bool, error)
}

// Service handles checkout and webhook processing.
type Service struct {
	cfg      config.StripeConfig
	sessions SessionCreator
	store    Store
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSessionCreator replaces the Stripe checkout client.
func WithSessionCreator(c SessionCreator) Option {
	return func(s *Service) { s.sessions = c }
}

// New creates a billing service. A Stripe client is built from the secret
// key unless WithSessionCreator is given.
func New(cfg config.StripeConfig, store Store, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "billing").Logger(),
	}
	if cfg.SecretKey != "" {
		sc := &client.API{}
		sc.Init(cfg.SecretKey, nil)
		s.sessions = sc.CheckoutSessions
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PriceID returns the configured price for a plan.
func (s *Service) PriceID(plan router.Tier) (string, error) {
	var id string
	switch plan {
	case router.TierPro:
		id = s.cfg.PriceIDPro
	case router.TierEco:
		id = s.cfg.PriceIDEco
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	id = strings.TrimSpace(id)
	if id == "" || id == placeholderPrice {
		return "", fmt.Errorf("%w for plan %s", ErrPriceNotConfigured, plan)
	}
	return id, nil
}

// CreateCheckout starts a subscription checkout for userID and returns the
// hosted checkout URL.
func (s *Service) CreateCheckout(ctx context.Context, userID, email string, plan router.Tier) (string, error) {
	if s.sessions == nil {
		return "", ErrNotConfigured
	}
	price, err := s.PriceID(plan)
	if err != nil {
		return "", err
	}

	appURL := strings.TrimRight(s.cfg.AppURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(price), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(appURL + "/?checkout=success"),
		CancelURL:  stripe.String(appURL + "/?checkout=cancel"),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	params.AddMetadata("plan", string(plan))

	sess, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	s.log.Info().Str("user", userID).Str("plan", string(plan)).Str("session", sess.ID).Msg("checkout session created")
	return sess.URL, nil
}

// Tier implements the assistant's tier lookup. Unknown users and store
// errors resolve to eco.
func (s *Service) Tier(ctx context.Context, userID string) router.Tier {
	plan, err := s.store.GetPlan(ctx, userID)
	if err != nil {
		if !errors.Is(err, data.ErrNotFound) {
			s.log.Warn().Err(err).Str("user", userID).Msg("plan lookup failed")
		}
		return router.TierEco
	}
	tier, err := router.ParseTier(plan)
	if err != nil {
		return router.TierEco
	}
	return tier
}
