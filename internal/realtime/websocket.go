package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/pairroom/internal/protocol"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	readLimit    = 1 << 20
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Dispatcher consumes inbound envelopes. Dispatch is called sequentially per
// connection, so events from one client are handled in arrival order.
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, env protocol.Envelope)
	Disconnect(connID string)
}

// WebSocketHandler upgrades room connections and pumps frames between the
// socket and the hub.
type WebSocketHandler struct {
	hub           *Hub
	dispatcher    Dispatcher
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, dispatcher Dispatcher, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		dispatcher:    dispatcher,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	slog.Info("WebSocket connection request", "user_id", userID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(readLimit)

	connID := uuid.NewString()
	c := h.hub.Register(connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.writePump(ctx, ws, c)
	}()

	h.readLoop(ctx, ws, connID)

	cancel()
	h.dispatcher.Disconnect(connID)
	h.hub.Unregister(c)
	wg.Wait()

	if closeErr := ws.Close(websocket.StatusNormalClosure, "connection closed"); closeErr != nil {
		slog.Debug("Failed to close websocket", "error", closeErr, "conn_id", connID)
	}
	slog.Info("WebSocket connection ended", "conn_id", connID, "user_id", userID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, connID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) != -1:
				slog.Debug("WebSocket closed by client", "conn_id", connID)
			case errors.Is(err, context.Canceled):
				slog.Debug("WebSocket read canceled", "conn_id", connID)
			default:
				slog.Warn("WebSocket read error", "error", err, "conn_id", connID)
			}
			return
		}

		env, err := protocol.Decode(message)
		if err != nil {
			slog.Debug("Malformed frame", "conn_id", connID, "error", err)
			h.hub.Send(connID, protocol.EventError, protocol.Error{Message: "Invalid payload"})
			continue
		}
		h.dispatcher.Dispatch(ctx, connID, env)
	}
}

// writePump drains the client's queue onto the socket and keeps it alive with
// pings. It returns when the hub drops the client or ctx ends.
func (h *WebSocketHandler) writePump(ctx context.Context, ws *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			// Dropped by the hub: closing the socket ends the read loop.
			if err := ws.Close(websocket.StatusPolicyViolation, "connection dropped"); err != nil {
				slog.Debug("Failed to close dropped websocket", "error", err, "conn_id", c.ID())
			}
			return
		case data := <-c.Outbound():
			if err := h.write(ctx, ws, data); err != nil {
				slog.Debug("WebSocket write error", "error", err, "conn_id", c.ID())
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("WebSocket ping failed", "error", err, "conn_id", c.ID())
				return
			}
		}
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
