package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/assistant"
	"github.com/normanking/alcance/internal/auth"
	"github.com/normanking/alcance/internal/billing"
	"github.com/normanking/alcance/internal/config"
	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/dispatch"
	"github.com/normanking/alcance/internal/google"
	"github.com/normanking/alcance/internal/llm"
	"github.com/normanking/alcance/internal/referral"
	"github.com/normanking/alcance/internal/router"
	"github.com/normanking/alcance/internal/tools"
	"github.com/normanking/alcance/internal/usage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COMPONENT WIRING
// ═══════════════════════════════════════════════════════════════════════════════

// app holds every component built from one configuration.
type app struct {
	cfg       *config.Config
	store     *data.Store
	registry  *tools.Registry
	assistant *assistant.Service
	billing   *billing.Service
	referrals *referral.Service
	auth      *auth.Service
	closers   []func() error
}

// Close releases the store and any usage backend connection.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close component")
		}
	}
}

func buildRegistry(variant string) (*tools.Registry, tools.Variant, error) {
	v, err := tools.ParseVariant(variant)
	if err != nil {
		return nil, "", err
	}
	return tools.DefaultCatalog(v), v, nil
}

func buildPolicy(cfg config.RoutingConfig) *router.Policy {
	opts := []router.PolicyOption{
		router.WithEconomy(router.Target{Backend: router.Backend(cfg.Economy.Backend), Model: cfg.Economy.Model}),
		router.WithPremium(router.Target{Backend: router.Backend(cfg.Premium.Backend), Model: cfg.Premium.Model}),
	}
	if len(cfg.Keywords) > 0 {
		opts = append(opts, router.WithKeywords(cfg.Keywords))
	}
	return router.NewPolicy(opts...)
}

func buildCounter(cfg config.UsageConfig, store *data.Store) (usage.Counter, func() error, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return usage.NewStoreCounter(store), func() error { return nil }, nil
	case "redis":
		rc, err := usage.NewRedisCounter(usage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect usage redis: %w", err)
		}
		return rc, rc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown usage backend %q", cfg.Backend)
	}
}

// buildApp opens the store and wires the assistant with its collaborators.
func buildApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := data.NewDB(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, store: store, closers: []func() error{store.Close}}

	registry, variant, err := buildRegistry(cfg.Assistant.Variant)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = registry

	unknown, err := dispatch.ParseUnknownPolicy(cfg.Assistant.UnknownTools)
	if err != nil {
		a.Close()
		return nil, err
	}
	dispatcher := dispatch.New(registry,
		dispatch.WithUnknownPolicy(unknown),
		dispatch.WithCallTimeout(cfg.Assistant.ToolTimeout),
		dispatch.WithLocation(cfg.Location()),
		dispatch.WithAppointmentHour(cfg.Assistant.AppointmentHour),
	)

	counter, closeCounter, err := buildCounter(cfg.Usage, store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeCounter)

	var limiterOpts []usage.Option
	if !cfg.Usage.FailOpen {
		limiterOpts = append(limiterOpts, usage.WithFailClosed())
	}
	limiter := usage.NewLimiter(counter, usage.Limits{Eco: cfg.Usage.EcoDaily, Pro: cfg.Usage.ProDaily}, limiterOpts...)

	authCfg := &auth.Config{
		SessionSecret: cfg.Auth.SessionSecret,
		SessionTTL:    cfg.Auth.SessionTTL,
		ClientID:      cfg.Google.ClientID,
		ClientSecret:  cfg.Google.ClientSecret,
		RedirectURL:   cfg.Google.RedirectURL,
	}
	key, err := auth.ParseKey(cfg.Auth.TokenKey, cfg.Auth.SessionSecret)
	if err != nil {
		a.Close()
		return nil, err
	}
	vault := auth.NewVault(store, key, auth.NewOAuthConfig(authCfg))
	a.auth = auth.NewService(store, authCfg, auth.WithVault(vault))

	a.billing = billing.New(cfg.Stripe, store)
	a.referrals = referral.NewService(store)

	a.assistant = assistant.New(buildPolicy(cfg.Routing), llm.NewSetFromConfig(cfg), registry, dispatcher,
		assistant.WithTierSource(a.billing),
		assistant.WithUsageGate(limiter),
		assistant.WithServices(assistant.NewResolver(store, google.NewResolver(vault))),
		assistant.WithProviderTimeout(cfg.Assistant.ProviderTimeout),
		assistant.WithVariant(variant),
	)
	return a, nil
}
