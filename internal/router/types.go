// Package router picks the chat-completion backend and model that serve a
// command. Routing is a pure function of the command text, the caller's
// subscription tier and a configured set of action keywords.
package router

import (
	"fmt"
	"strings"
)

// Tier is a subscription tier.
type Tier string

const (
	// TierEco is the economy plan and the default for unknown callers.
	TierEco Tier = "eco"
	// TierPro is the premium plan.
	TierPro Tier = "pro"
)

// String returns the string representation of a Tier.
func (t Tier) String() string {
	return string(t)
}

// IsValid checks if a Tier is a known tier.
func (t Tier) IsValid() bool {
	return t == TierEco || t == TierPro
}

// ParseTier parses a plan name. Empty input is TierEco.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TierEco, nil
	case TierEco, TierPro:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

// Backend identifies a chat-completion service.
type Backend string

const (
	// BackendDeepSeek is the cost-optimized, tool-capable backend.
	BackendDeepSeek Backend = "deepseek"
	// BackendOpenAI is the higher-quality backend.
	BackendOpenAI Backend = "openai"
)

// Target is a backend/model pair.
type Target struct {
	Backend Backend `json:"backend" mapstructure:"backend" yaml:"backend"`
	Model   string  `json:"model" mapstructure:"model" yaml:"model"`
}

func (t Target) String() string {
	return string(t.Backend) + "/" + t.Model
}

// Path records which rule produced a decision.
type Path string

const (
	// PathKeyword means an action keyword matched.
	PathKeyword Path = "keyword"
	// PathTier means the subscription tier decided.
	PathTier Path = "tier"
)

// Decision is the routing outcome for one command.
type Decision struct {
	Target
	Path Path `json:"path"`
	// Keyword is the matched action keyword on PathKeyword.
	Keyword string `json:"keyword,omitempty"`
	Tier    Tier   `json:"tier"`
}

// DefaultKeywords are the Spanish trigger words that mark a command as an
// action request.
var DefaultKeywords = []string{
	"crear", "nueva", "nuevo", "agendar", "cita", "reunión",
	"tarea", "recordatorio", "email", "correo", "plantilla",
}

// DefaultEconomy is the cost-optimized target.
var DefaultEconomy = Target{Backend: BackendDeepSeek, Model: "deepseek-chat"}

// DefaultPremium is the higher-quality target.
var DefaultPremium = Target{Backend: BackendOpenAI, Model: "gpt-4o-mini"}
