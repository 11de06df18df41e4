package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Pages only send control frames.
	maxMessageSize = 512
)

// StateSource is the session store as seen by the session handlers.
type StateSource interface {
	StateReader
	Subscribe() (<-chan domainauth.State, func())
}

// SessionHandlers serves the current session state.
type SessionHandlers struct {
	Sessions StateSource
	// AllowedOrigins may open the stream from another origin. Empty means same-origin only.
	AllowedOrigins []string
	Logger         *slog.Logger

	upgrader *websocket.Upgrader
}

// NewSessionHandlers constructs SessionHandlers.
func NewSessionHandlers(sessions StateSource, allowedOrigins []string, logger *slog.Logger) *SessionHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &SessionHandlers{Sessions: sessions, AllowedOrigins: allowedOrigins, Logger: logger}
	h.upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Get handles GET /session.
func (h *SessionHandlers) Get(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.Sessions.Current())
}

// Stream handles GET /session/stream. It pushes the latest state on connect
// and after every change; slow readers skip intermediate states.
func (h *SessionHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an error response.
		h.Logger.DebugContext(r.Context(), "session stream upgrade failed", "error", err)
		return
	}
	subscriberID := uuid.NewString()
	logger := h.Logger.With("subscriber_id", subscriberID)
	logger.DebugContext(r.Context(), "session stream opened")

	states, cancel := h.Sessions.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go readPump(conn, stop)

	writePump(ctx, conn, states, logger)
	logger.Debug("session stream closed")
}

// readPump discards inbound frames and stops the stream when the peer goes away.
func readPump(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, states <-chan domainauth.State, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session store closed"))
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				logger.Debug("session stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *SessionHandlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.Contains(h.AllowedOrigins, strings.TrimRight(origin, "/"))
}
