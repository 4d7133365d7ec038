package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/dispatch"
	"github.com/normanking/alcance/internal/llm"
	"github.com/normanking/alcance/internal/metrics"
	"github.com/normanking/alcance/internal/router"
	"github.com/normanking/alcance/internal/tools"
)

// DefaultProviderTimeout bounds one chat completion.
const DefaultProviderTimeout = 30 * time.Second

// Service processes commands. It is safe for concurrent use.
type Service struct {
	policy     *router.Policy
	providers  *llm.Set
	registry   *tools.Registry
	dispatcher *dispatch.Dispatcher
	variant    tools.Variant

	tiers    TierSource
	usage    UsageGate
	services ServiceResolver

	providerTimeout time.Duration
	prompt          func(time.Time) string
	now             func() time.Time
	log             zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTierSource sets the tier lookup. Without one every user is eco.
func WithTierSource(t TierSource) Option {
	return func(s *Service) { s.tiers = t }
}

// WithUsageGate enables daily usage limits.
func WithUsageGate(g UsageGate) Option {
	return func(s *Service) { s.usage = g }
}

// WithServices sets the per-user collaborator lookup. Without one every
// action is simulated.
func WithServices(r ServiceResolver) Option {
	return func(s *Service) { s.services = r }
}

// WithProviderTimeout bounds each chat completion.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// WithVariant selects the deployment variant named in the system prompt.
func WithVariant(v tools.Variant) Option {
	return func(s *Service) { s.variant = v }
}

// WithSystemPrompt replaces the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(s *Service) { s.prompt = func(time.Time) string { return prompt } }
}

// WithClock sets the time source for the prompt date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a command service.
func New(policy *router.Policy, providers *llm.Set, registry *tools.Registry, dispatcher *dispatch.Dispatcher, opts ...Option) *Service {
	s := &Service{
		policy:          policy,
		providers:       providers,
		registry:        registry,
		dispatcher:      dispatcher,
		variant:         tools.VariantTasks,
		providerTimeout: DefaultProviderTimeout,
		now:             time.Now,
		log:             log.With().Str("component", "assistant").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prompt == nil {
		variant := s.variant
		s.prompt = func(t time.Time) string { return SystemPrompt(variant, t) }
	}
	return s
}

// Process handles one command. It never fails: every error becomes part of
// the reply.
func (s *Service) Process(ctx context.Context, cmd Command) *Response {
	logger := s.log.With().Str("user", cmd.UserID).Logger()

	tier := router.TierEco
	if s.tiers != nil {
		tier = s.tiers.Tier(ctx, cmd.UserID)
	}

	if s.usage != nil {
		decision, err := s.usage.Check(ctx, cmd.UserID, tier)
		if err != nil {
			logger.Warn().Err(err).Bool("allowed", decision.Allowed).Msg("usage check failed")
		}
		if !decision.Allowed {
			return &Response{Message: fmt.Sprintf(limitReached, decision.Limit)}
		}
	}

	route := s.policy.Route(cmd.Text, tier)
	metrics.CommandsTotal.WithLabelValues(string(route.Backend), string(route.Path)).Inc()
	logger.Debug().
		Str("backend", string(route.Backend)).
		Str("model", route.Model).
		Str("path", string(route.Path)).
		Str("keyword", route.Keyword).
		Str("tier", string(tier)).
		Msg("command routed")

	resp, err := s.complete(ctx, route, cmd.Text)
	if err != nil {
		logger.Error().Err(err).Str("backend", string(route.Backend)).Msg("provider call failed")
		return &Response{Message: fmt.Sprintf("%s (%v)", providerFailure, err)}
	}
	if len(resp.ToolCalls) == 0 {
		return Aggregate(resp, nil)
	}

	var svc dispatch.Services
	if s.services != nil {
		svc = s.services.Services(ctx, cmd.UserID)
	}
	result := s.dispatcher.Dispatch(ctx, cmd.UserID, svc, resp.ToolCalls)
	return Aggregate(resp, result)
}

func (s *Service) complete(ctx context.Context, route router.Decision, text string) (*llm.ChatResponse, error) {
	provider, err := s.providers.Get(route.Backend)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	return provider.Complete(ctx, &llm.ChatRequest{
		Model:        route.Model,
		SystemPrompt: s.prompt(s.now()),
		Messages:     []llm.Message{llm.UserMessage(text)},
		Tools:        s.registry.Definitions(),
	})
}

// Aggregate builds the reply from a provider response and, when the
// response carried tool calls, their dispatch result.
func Aggregate(resp *llm.ChatResponse, result *dispatch.Result) *Response {
	if result == nil {
		msg := ""
		if resp != nil {
			msg = strings.TrimSpace(resp.Content)
		}
		if msg == "" {
			msg = FallbackNoTools
		}
		return &Response{Message: msg}
	}

	out := &Response{Message: result.Message(), View: result.View()}
	if out.Message == "" {
		out.Message = FallbackNoMessage
	}
	if len(result.Actions) > 0 {
		out.Actions = result.Actions
		first := result.Actions[0]
		out.Action = &first
	}
	return out
}
