package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
)

const stateCookie = "alcance_oauth_state"

// Handlers provides HTTP handlers for authentication endpoints.
type Handlers struct {
	service    *Service
	middleware *Middleware
}

// NewHandlers creates new auth handlers.
func NewHandlers(service *Service, middleware *Middleware) *Handlers {
	return &Handlers{service: service, middleware: middleware}
}

// RegisterRoutes registers auth routes on a mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/auth/google/login", h.Login)
	mux.HandleFunc("GET /api/auth/google/callback", h.Callback)
	mux.HandleFunc("POST /api/auth/native", h.Native)
	mux.Handle("GET /api/auth/me", h.middleware.RequireAuth(http.HandlerFunc(h.Me)))
}

// Login redirects to the Google consent screen.
// GET /api/auth/google/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state := generateState()
	url, err := h.service.LoginURL(state)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback completes Google sign-in.
// GET /api/auth/google/callback
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		writeAuthError(w, ErrInvalidState)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/auth/google", MaxAge: -1})

	if reason := r.URL.Query().Get("error"); reason != "" {
		writeError(w, http.StatusBadRequest, "CONSENT_DENIED", reason)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "MISSING_CODE", "authorization code required")
		return
	}

	resp, err := h.service.CompleteLogin(r.Context(), code)
	if err != nil {
		h.fail(w, err, "LOGIN_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Native signs in a native client with a Google id token.
// POST /api/auth/native
func (h *Handlers) Native(w http.ResponseWriter, r *http.Request) {
	var req NativeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	resp, err := h.service.NativeSignIn(r.Context(), req.IDToken)
	if err != nil {
		h.fail(w, err, "LOGIN_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me returns the current user's profile.
// GET /api/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Me(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, err, "PROFILE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile": profile,
	})
}

func (h *Handlers) fail(w http.ResponseWriter, err error, code string) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		writeAuthError(w, authErr)
		return
	}
	h.service.log.Error().Err(err).Str("code", code).Msg("auth request failed")
	writeError(w, http.StatusInternalServerError, code, "authentication failed")
}

// ───────────────────────────────────────────────────────────────────────────────
// HELPERS
// ───────────────────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

func generateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
