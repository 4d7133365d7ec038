package router

import "strings"

// Policy is the routing policy. It is immutable after construction and safe
// for concurrent use.
type Policy struct {
	economy  Target
	premium  Target
	keywords []string
}

// PolicyOption is a functional option for configuring Policy.
type PolicyOption func(*Policy)

// WithEconomy sets the cost-optimized target.
func WithEconomy(t Target) PolicyOption {
	return func(p *Policy) {
		p.economy = t
	}
}

// WithPremium sets the premium target.
func WithPremium(t Target) PolicyOption {
	return func(p *Policy) {
		p.premium = t
	}
}

// WithKeywords replaces the action keyword set. Blank entries are ignored.
func WithKeywords(words []string) PolicyOption {
	return func(p *Policy) {
		p.keywords = normalizeKeywords(words)
	}
}

// NewPolicy creates a Policy with the default targets and keywords.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		economy:  DefaultEconomy,
		premium:  DefaultPremium,
		keywords: normalizeKeywords(DefaultKeywords),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Route decides which target serves text. An action keyword anywhere in the
// text selects the economy target regardless of tier; otherwise pro goes to
// premium and everything else to economy.
func (p *Policy) Route(text string, tier Tier) Decision {
	if !tier.IsValid() {
		tier = TierEco
	}

	if kw, ok := p.MatchKeyword(text); ok {
		return Decision{Target: p.economy, Path: PathKeyword, Keyword: kw, Tier: tier}
	}

	target := p.economy
	if tier == TierPro {
		target = p.premium
	}
	return Decision{Target: target, Path: PathTier, Tier: tier}
}

// MatchKeyword returns the first configured keyword contained in text.
func (p *Policy) MatchKeyword(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range p.keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// Keywords returns a copy of the configured keyword set.
func (p *Policy) Keywords() []string {
	return append([]string(nil), p.keywords...)
}

// Targets returns the economy and premium targets.
func (p *Policy) Targets() (economy, premium Target) {
	return p.economy, p.premium
}

func normalizeKeywords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
