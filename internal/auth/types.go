// Package auth provides sign-in and session management for Alcance.
// Users sign in with Google (web OAuth or a native id token); sessions are
// HS256 JWTs and Google tokens are sealed at rest.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/normanking/alcance/internal/data"
)

// Claims represents the session token claims. The subject is the profile ID.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthResponse is the response for successful authentication.
type AuthResponse struct {
	Token     string        `json:"token"`
	TokenType string        `json:"tokenType"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Profile   *data.Profile `json:"profile"`
}

// NativeRequest is the payload for native sign-in.
type NativeRequest struct {
	IDToken string `json:"idToken"`
}

// ───────────────────────────────────────────────────────────────────────────────
// ERROR TYPES
// ───────────────────────────────────────────────────────────────────────────────

// AuthError represents an authentication-related error.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return e.Message
}

// Common auth errors
var (
	ErrInvalidToken   = &AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired   = &AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrMissingToken   = &AuthError{Code: "MISSING_TOKEN", Message: "authorization token required"}
	ErrUserNotFound   = &AuthError{Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrInvalidState   = &AuthError{Code: "INVALID_STATE", Message: "oauth state mismatch"}
	ErrExchangeFailed = &AuthError{Code: "EXCHANGE_FAILED", Message: "could not exchange authorization code"}
	ErrInvalidIDToken = &AuthError{Code: "INVALID_ID_TOKEN", Message: "id token verification failed"}
	ErrEmailMissing   = &AuthError{Code: "EMAIL_MISSING", Message: "google account has no verified email"}
	ErrNotConfigured  = &AuthError{Code: "NOT_CONFIGURED", Message: "google sign-in is not configured"}
)

// ───────────────────────────────────────────────────────────────────────────────
// CONFIG
// ───────────────────────────────────────────────────────────────────────────────

// Config holds authentication configuration.
type Config struct {
	// SessionSecret signs session JWTs.
	SessionSecret string

	// SessionTTL is how long session tokens are valid.
	SessionTTL time.Duration

	// Issuer is the iss claim of issued tokens.
	Issuer string

	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		SessionTTL: 30 * 24 * time.Hour,
		Issuer:     "alcance",
	}
}
