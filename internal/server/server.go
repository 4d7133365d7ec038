// Package server exposes the assistant over HTTP: the command endpoint, the
// websocket chat transport, notes, templates, referrals, Stripe billing,
// authentication, health and Prometheus metrics.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/alcance/internal/assistant"
	"github.com/normanking/alcance/internal/billing"
	"github.com/normanking/alcance/internal/data"
	"github.com/normanking/alcance/internal/metrics"
	"github.com/normanking/alcance/internal/referral"
	"github.com/normanking/alcance/internal/router"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ═══════════════════════════════════════════════════════════════════════════════

// CommandProcessor handles one natural-language command.
type CommandProcessor interface {
	Process(ctx context.Context, cmd assistant.Command) *assistant.Response
}

// Store is the persistence behind the notes, templates and health routes.
type Store interface {
	GetProfile(ctx context.Context, id string) (*data.Profile, error)
	ListNotes(ctx context.Context, userID string) ([]data.Note, error)
	CreateNote(ctx context.Context, n *data.Note) error
	UpdateNote(ctx context.Context, userID, id string, u data.NoteUpdate) (*data.Note, error)
	DeleteNote(ctx context.Context, userID, id string) error
	ListTemplates(ctx context.Context, userID string) ([]data.Template, error)
	Health() error
}

// Referrals serves the referral routes.
type Referrals interface {
	Summary(ctx context.Context, userID string) (*referral.Summary, error)
	Redeem(ctx context.Context, userID, code string) error
}

// Billing serves the Stripe routes.
type Billing interface {
	CreateCheckout(ctx context.Context, userID, email string, plan router.Tier) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookResult, error)
}

// RouteRegistrar mounts additional routes, such as authentication.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Deps wires the server to its collaborators. Assistant, Store and
// RequireAuth are required; the rest disable their routes when nil.
type Deps struct {
	Assistant   CommandProcessor
	Store       Store
	Referrals   Referrals
	Billing     Billing
	Auth        RouteRegistrar
	RequireAuth func(http.Handler) http.Handler
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVER
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	// AllowedOrigins are accepted on the websocket upgrade in addition to
	// same-origin requests.
	AllowedOrigins []string
}

// Server is the HTTP front end.
type Server struct {
	cfg        Config
	deps       Deps
	mux        *http.ServeMux
	httpServer *http.Server
	log        zerolog.Logger
	chat       *chatHandler
}

// New creates a server and registers its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if deps.RequireAuth == nil {
		deps.RequireAuth = func(next http.Handler) http.Handler { return next }
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		log:  log.With().Str("component", "server").Logger(),
	}
	s.chat = newChatHandler(deps.Assistant, cfg.AllowedOrigins, s.log)
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	protect := func(h http.HandlerFunc) http.Handler { return s.deps.RequireAuth(h) }

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.Handle("POST /api/command", protect(s.handleCommand))
	s.mux.Handle("GET /ws/chat", s.deps.RequireAuth(s.chat))

	s.mux.Handle("GET /api/notes", protect(s.handleListNotes))
	s.mux.Handle("POST /api/notes", protect(s.handleCreateNote))
	s.mux.Handle("PATCH /api/notes/{id}", protect(s.handleUpdateNote))
	s.mux.Handle("DELETE /api/notes/{id}", protect(s.handleDeleteNote))
	s.mux.Handle("GET /api/templates", protect(s.handleListTemplates))

	if s.deps.Referrals != nil {
		s.mux.Handle("GET /api/referral", protect(s.handleReferralSummary))
		s.mux.Handle("POST /api/referral", protect(s.handleRedeem))
	}
	if s.deps.Billing != nil {
		s.mux.Handle("POST /api/stripe/checkout", protect(s.handleCheckout))
		s.mux.HandleFunc("POST /api/stripe/webhook", s.handleWebhook)
	}
	if s.deps.Auth != nil {
		s.deps.Auth.RegisterRoutes(s.mux)
	}
}

// Handler returns the root handler with request metrics applied.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.chat.closeAll()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("HTTP server stopped")
	return nil
}

// ───────────────────────────────────────────────────────────────────────────────
// MIDDLEWARE
// ───────────────────────────────────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, route := s.mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		s.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}
