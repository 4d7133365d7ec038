// Package assistant is the command entry point: it resolves the caller's
// tier, enforces usage limits, routes the text to a provider, dispatches the
// returned tool calls and aggregates one reply.
package assistant

import (
	"context"

	"github.com/normanking/alcance/internal/dispatch"
	"github.com/normanking/alcance/internal/router"
	"github.com/normanking/alcance/internal/usage"
)

// Command is one user request.
type Command struct {
	UserID string `json:"-"`
	Text   string `json:"text"`
}

// Response is the reply to a command. Action mirrors Actions[0] for older
// clients; View is the screen the client should switch to.
type Response struct {
	Message string            `json:"message"`
	Actions []dispatch.Action `json:"actions,omitempty"`
	Action  *dispatch.Action  `json:"action,omitempty"`
	View    dispatch.View     `json:"view,omitempty"`
}

// TierSource resolves a user's subscription tier.
type TierSource interface {
	Tier(ctx context.Context, userID string) router.Tier
}

// UsageGate counts a command against the user's daily allowance.
type UsageGate interface {
	Check(ctx context.Context, userID string, tier router.Tier) (usage.Decision, error)
}

// ServiceResolver returns the collaborators connected for a user.
type ServiceResolver interface {
	Services(ctx context.Context, userID string) dispatch.Services
}

// Fixed replies.
const (
	FallbackNoTools   = "No entendí eso, ¿puedes repetir?"
	FallbackNoMessage = "Función no reconocida, pero te escuché."
	providerFailure   = "Lo siento, tuve un problema conectando con mi cerebro digital. Intenta de nuevo."
	limitReached      = "Has alcanzado tu límite diario de %d comandos. Mejora a Pro para comandos ilimitados."
)
