package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// ErrNotConnected means the user never linked a Google account.
var ErrNotConnected = errors.New("google account not connected")

// TokenProvider yields a refreshing token source for a user, or an error
// wrapping ErrNotConnected.
type TokenProvider interface {
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
}

// Resolver builds a Workspace per user from stored tokens.
type Resolver struct {
	tokens TokenProvider
	opts   []option.ClientOption
	log    zerolog.Logger
}

// NewResolver creates a resolver. Extra client options are appended to the
// per-user token source.
func NewResolver(tokens TokenProvider, opts ...option.ClientOption) *Resolver {
	return &Resolver{
		tokens: tokens,
		opts:   opts,
		log:    log.With().Str("component", "google").Logger(),
	}
}

// Workspace returns the user's workspace, or nil when the account is not
// connected or the token cannot be loaded.
func (r *Resolver) Workspace(ctx context.Context, userID string) *Workspace {
	if r == nil || r.tokens == nil {
		return nil
	}
	ts, err := r.tokens.TokenSource(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotConnected) {
			r.log.Warn().Err(err).Str("user", userID).Msg("load google token")
		}
		return nil
	}

	ws, err := NewWorkspace(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, r.opts...)...)
	if err != nil {
		r.log.Warn().Err(fmt.Errorf("build workspace: %w", err)).Str("user", userID).Msg("google workspace unavailable")
		return nil
	}
	return ws
}
