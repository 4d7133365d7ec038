package auth

import (
	"context"
	"net/http"
	"strings"
)

// Context keys for storing auth data in request context
type contextKey string

const (
	// UserIDContextKey is the context key for the authenticated profile ID
	UserIDContextKey contextKey = "auth_user_id"
	// ClaimsContextKey is the context key for JWT claims
	ClaimsContextKey contextKey = "auth_claims"
)

// Middleware provides HTTP middleware for authentication.
type Middleware struct {
	service *Service
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequireAuth is middleware that requires a valid session token.
// Requests without valid auth will receive a 401 response.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.extractAndValidateToken(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		ctx := WithUserID(r.Context(), claims.Subject)
		ctx = context.WithValue(ctx, ClaimsContextKey, claims)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAndValidateToken reads the bearer token, falling back to the
// token query parameter used by websocket clients.
func (m *Middleware) extractAndValidateToken(r *http.Request) (*Claims, error) {
	token := ""
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return nil, ErrInvalidToken
		}
		token = strings.TrimPrefix(authHeader, "Bearer ")
	} else {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	return m.service.ValidateToken(token)
}

// ───────────────────────────────────────────────────────────────────────────────
// CONTEXT HELPERS
// ───────────────────────────────────────────────────────────────────────────────

// WithUserID returns a context carrying an authenticated profile ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// ClaimsFromContext retrieves the JWT claims from the request context.
// Returns nil if no claims are present.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// UserIDFromContext retrieves the user ID from the request context.
// Returns empty string if no user is authenticated.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(UserIDContextKey).(string)
	return id
}

// ───────────────────────────────────────────────────────────────────────────────
// ERROR RESPONSE HELPER
// ───────────────────────────────────────────────────────────────────────────────

func writeAuthError(w http.ResponseWriter, err error) {
	authErr, ok := err.(*AuthError)
	if !ok {
		writeError(w, http.StatusInternalServerError, "AUTH_ERROR", "authentication failed")
		return
	}
	writeError(w, statusFor(authErr), authErr.Code, authErr.Message)
}

// statusFor maps auth errors to HTTP status codes.
func statusFor(err *AuthError) int {
	switch err {
	case ErrNotConfigured:
		return http.StatusServiceUnavailable
	case ErrInvalidState, ErrExchangeFailed:
		return http.StatusBadRequest
	case ErrUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnauthorized
	}
}
