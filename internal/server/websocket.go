package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/alcance/internal/assistant"
	"github.com/normanking/alcance/internal/auth"
)

const (
	chatReadLimit  = 64 << 10
	chatWriteWait  = 10 * time.Second
	chatPongWait   = 60 * time.Second
	chatPingPeriod = chatPongWait * 9 / 10
)

// ErrorFrame answers a chat frame that could not be processed.
type ErrorFrame struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// chatHandler serves GET /ws/chat. Each text frame {text} is processed as a
// command and answered with one response frame, strictly in order per
// connection.
type chatHandler struct {
	assistant CommandProcessor
	upgrader  websocket.Upgrader
	log       zerolog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newChatHandler(a CommandProcessor, allowed []string, logger zerolog.Logger) *chatHandler {
	h := &chatHandler{
		assistant: a,
		log:       logger.With().Str("transport", "websocket").Logger(),
		conns:     make(map[*websocket.Conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowed),
	}
	return h
}

// originChecker accepts requests without an Origin header, same-origin
// requests and the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (h *chatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.track(conn)
	defer h.untrack(conn)

	logger := h.log.With().Str("user", userID).Logger()
	logger.Debug().Msg("chat connected")

	conn.SetReadLimit(chatReadLimit)
	conn.SetReadDeadline(time.Now().Add(chatPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(chatPongWait))
	})

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(chatWriteWait))
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(chatPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(chatWriteWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("chat read failed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var req CommandRequest
		if err := json.Unmarshal(raw, &req); err != nil || strings.TrimSpace(req.Text) == "" {
			if err := write(ErrorFrame{Error: "INVALID_REQUEST", Message: "expected {\"text\": \"...\"}"}); err != nil {
				return
			}
			continue
		}

		resp := h.assistant.Process(r.Context(), assistant.Command{UserID: userID, Text: req.Text})
		if err := write(resp); err != nil {
			logger.Warn().Err(err).Msg("chat write failed")
			return
		}
	}
}

func (h *chatHandler) track(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *chatHandler) untrack(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.Close()
}

// closeAll sends a going-away close to every open connection.
func (h *chatHandler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for c := range h.conns {
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}
