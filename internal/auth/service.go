package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/normanking/alcance/internal/data"
)

// Scopes requested at Google sign-in.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/contacts",
	"https://www.googleapis.com/auth/tasks",
}

// ProfileStore is the persistence sign-in needs.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, email, name string) (*data.Profile, error)
	GetProfile(ctx context.Context, id string) (*data.Profile, error)
}

// Identity is the Google account behind a sign-in.
type Identity struct {
	Email string
	Name  string
}

// UserInfoFunc fetches the identity for an OAuth token.
type UserInfoFunc func(ctx context.Context, ts oauth2.TokenSource) (*Identity, error)

// IDTokenValidator verifies a Google id token for audience.
type IDTokenValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Service provides authentication operations.
type Service struct {
	store    ProfileStore
	config   *Config
	oauth    *oauth2.Config
	vault    *Vault
	userInfo UserInfoFunc
	validate IDTokenValidator
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithVault stores Google tokens obtained at web sign-in.
func WithVault(v *Vault) Option {
	return func(s *Service) { s.vault = v }
}

// WithUserInfo replaces the Google userinfo lookup.
func WithUserInfo(fn UserInfoFunc) Option {
	return func(s *Service) { s.userInfo = fn }
}

// WithIDTokenValidator replaces Google id token verification.
func WithIDTokenValidator(fn IDTokenValidator) Option {
	return func(s *Service) { s.validate = fn }
}

// WithOAuthEndpoint overrides the Google OAuth endpoint.
func WithOAuthEndpoint(ep oauth2.Endpoint) Option {
	return func(s *Service) { s.oauth.Endpoint = ep }
}

// WithClock sets the time source for token issuance.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new auth service.
func NewService(store ProfileStore, config *Config, opts ...Option) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultConfig().SessionTTL
	}
	if config.Issuer == "" {
		config.Issuer = DefaultConfig().Issuer
	}
	s := &Service{
		store:    store,
		config:   config,
		oauth:    NewOAuthConfig(config),
		userInfo: fetchUserInfo,
		validate: idtoken.Validate,
		now:      time.Now,
		log:      log.With().Str("component", "auth").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewOAuthConfig returns the Google OAuth client for config. The vault uses
// the same client to refresh stored tokens.
func NewOAuthConfig(config *Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// OAuthConfig returns the Google OAuth client configuration.
func (s *Service) OAuthConfig() *oauth2.Config {
	return s.oauth
}

// ───────────────────────────────────────────────────────────────────────────────
// GOOGLE SIGN-IN
// ───────────────────────────────────────────────────────────────────────────────

// LoginURL returns the Google consent URL for state.
func (s *Service) LoginURL(state string) (string, error) {
	if s.oauth.ClientID == "" {
		return "", ErrNotConfigured
	}
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteLogin exchanges an authorization code, creates or refreshes the
// profile, seals the Google token and issues a session.
func (s *Service) CompleteLogin(ctx context.Context, code string) (*AuthResponse, error) {
	if s.oauth.ClientID == "" {
		return nil, ErrNotConfigured
	}
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.log.Warn().Err(err).Msg("oauth code exchange failed")
		return nil, ErrExchangeFailed
	}

	id, err := s.userInfo(ctx, s.oauth.TokenSource(ctx, tok))
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	if id.Email == "" {
		return nil, ErrEmailMissing
	}

	profile, err := s.store.UpsertProfile(ctx, id.Email, id.Name)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	if s.vault != nil {
		if err := s.vault.Save(ctx, profile.ID, tok); err != nil {
			return nil, fmt.Errorf("store google token: %w", err)
		}
	}

	s.log.Info().Str("user", profile.ID).Msg("google sign-in")
	return s.IssueSession(profile)
}

// NativeSignIn verifies a Google id token from a native client and issues a
// session for its account.
func (s *Service) NativeSignIn(ctx context.Context, rawIDToken string) (*AuthResponse, error) {
	if s.oauth.ClientID == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(rawIDToken) == "" {
		return nil, ErrMissingToken
	}

	payload, err := s.validate(ctx, rawIDToken, s.oauth.ClientID)
	if err != nil {
		s.log.Warn().Err(err).Msg("id token rejected")
		return nil, ErrInvalidIDToken
	}

	email, _ := payload.Claims["email"].(string)
	if verified, ok := payload.Claims["email_verified"].(bool); email == "" || (ok && !verified) {
		return nil, ErrEmailMissing
	}
	name, _ := payload.Claims["name"].(string)

	profile, err := s.store.UpsertProfile(ctx, email, name)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	s.log.Info().Str("user", profile.ID).Msg("native sign-in")
	return s.IssueSession(profile)
}

func fetchUserInfo(ctx context.Context, ts oauth2.TokenSource) (*Identity, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &Identity{Email: info.Email, Name: info.Name}, nil
}

// ───────────────────────────────────────────────────────────────────────────────
// SESSIONS
// ───────────────────────────────────────────────────────────────────────────────

// IssueSession signs a session token for profile.
func (s *Service) IssueSession(profile *data.Profile) (*AuthResponse, error) {
	if s.config.SessionSecret == "" {
		return nil, fmt.Errorf("session secret not configured")
	}
	now := s.now()
	expires := now.Add(s.config.SessionTTL)
	claims := &Claims{
		Email: profile.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.SessionSecret))
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &AuthResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
		Profile:   profile,
	}, nil
}

// ValidateToken validates a session token and returns its claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.SessionSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Me returns the profile of an authenticated user.
func (s *Service) Me(ctx context.Context, userID string) (*data.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, data.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return p, err
}
