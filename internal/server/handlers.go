package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/normanking/alcance/internal/assistant"
	"github.com/normanking/alcance/internal/auth"
	"github.com/normanking/alcance/internal/billing"
	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/referral"
	"github.com/normanking/alcance/internal/router"
)

const (
	maxBodyBytes    = 1 << 20
	maxWebhookBytes = 64 << 10
)

// ═══════════════════════════════════════════════════════════════════════════════
// REQUEST TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// CommandRequest is the body of POST /api/command and of each chat frame.
type CommandRequest struct {
	Text string `json:"text"`
}

// NoteRequest is the body of POST /api/notes.
type NoteRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	AudioURL string   `json:"audio_url,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	IsPinned bool     `json:"is_pinned,omitempty"`
}

// RedeemRequest is the body of POST /api/referral.
type RedeemRequest struct {
	Code string `json:"code"`
}

// CheckoutRequest is the body of POST /api/stripe/checkout.
type CheckoutRequest struct {
	Plan string `json:"plan"`
}

// CheckoutResponse carries the hosted checkout URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// HEALTH & COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Health(); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/command
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required")
		return
	}
	resp := s.deps.Assistant.Process(r.Context(), assistant.Command{
		UserID: auth.UserIDFromContext(r.Context()),
		Text:   req.Text,
	})
	writeJSON(w, http.StatusOK, resp)
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTES & TEMPLATES
// ═══════════════════════════════════════════════════════════════════════════════

// GET /api/notes
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.deps.Store.ListNotes(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.internal(w, err, "list notes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

// POST /api/notes
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "title is required")
		return
	}
	note := &data.Note{
		UserID:   auth.UserIDFromContext(r.Context()),
		Title:    req.Title,
		Content:  req.Content,
		AudioURL: req.AudioURL,
		Tags:     req.Tags,
		IsPinned: req.IsPinned,
	}
	if err := s.deps.Store.CreateNote(r.Context(), note); err != nil {
		s.internal(w, err, "create note")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// PATCH /api/notes/{id}
func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var u data.NoteUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	note, err := s.deps.Store.UpdateNote(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id"), u)
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "note not found")
		return
	}
	if err != nil {
		s.internal(w, err, "update note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DELETE /api/notes/{id}
func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Store.DeleteNote(r.Context(), auth.UserIDFromContext(r.Context()), r.PathValue("id"))
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "note not found")
		return
	}
	if err != nil {
		s.internal(w, err, "delete note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.Store.ListTemplates(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		s.internal(w, err, "list templates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// ═══════════════════════════════════════════════════════════════════════════════
// REFERRALS
// ═══════════════════════════════════════════════════════════════════════════════

// GET /api/referral
func (s *Server) handleReferralSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Referrals.Summary(r.Context(), auth.UserIDFromContext(r.Context()))
	if errors.Is(err, data.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "profile not found")
		return
	}
	if err != nil {
		s.internal(w, err, "referral summary")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// POST /api/referral
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.deps.Referrals.Redeem(r.Context(), auth.UserIDFromContext(r.Context()), req.Code)
	switch {
	case errors.Is(err, referral.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "INVALID_CODE", "Código inválido")
	case errors.Is(err, referral.ErrSelfReferral):
		writeError(w, http.StatusBadRequest, "SELF_REFERRAL", "No puedes referirte a ti mismo")
	case errors.Is(err, referral.ErrAlreadyReferred):
		writeError(w, http.StatusConflict, "ALREADY_REFERRED", "Ya usaste un código de referido")
	case err != nil:
		s.internal(w, err, "redeem referral")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BILLING
// ═══════════════════════════════════════════════════════════════════════════════

// POST /api/stripe/checkout
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	plan, err := router.ParseTier(req.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PLAN", err.Error())
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	var email string
	if p, err := s.deps.Store.GetProfile(r.Context(), userID); err == nil {
		email = p.Email
	}

	url, err := s.deps.Billing.CreateCheckout(r.Context(), userID, email, plan)
	switch {
	case errors.Is(err, billing.ErrPriceNotConfigured), errors.Is(err, billing.ErrNotConfigured):
		s.log.Error().Err(err).Str("plan", string(plan)).Msg("checkout not configured")
		writeError(w, http.StatusInternalServerError, "BILLING_NOT_CONFIGURED", err.Error())
	case errors.Is(err, billing.ErrUnknownPlan):
		writeError(w, http.StatusBadRequest, "INVALID_PLAN", err.Error())
	case err != nil:
		s.internal(w, err, "create checkout")
	default:
		writeJSON(w, http.StatusOK, CheckoutResponse{URL: url})
	}
}

// POST /api/stripe/webhook
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "could not read body")
		return
	}

	res, err := s.deps.Billing.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature verification failed")
	case errors.Is(err, billing.ErrMissingMetadata), errors.Is(err, billing.ErrMalformedEvent):
		writeError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error())
	case err != nil:
		s.internal(w, err, "webhook")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "handled": res.Handled})
	}
}

// ───────────────────────────────────────────────────────────────────────────────
// HELPERS
// ───────────────────────────────────────────────────────────────────────────────

func (s *Server) internal(w http.ResponseWriter, err error, op string) {
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "INTERNAL", op+" failed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
