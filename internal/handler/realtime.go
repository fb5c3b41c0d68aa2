package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DukeRupert/fixmatch/internal/broker"
	"github.com/DukeRupert/fixmatch/internal/dispatch"
	"github.com/DukeRupert/fixmatch/internal/domain"
)

const (
	// sseHeartbeat keeps idle streams open through proxies.
	sseHeartbeat = 30 * time.Second

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// EventSource hands out event subscriptions.
type EventSource interface {
	Subscribe(p domain.Principal) *broker.Subscription
	Unsubscribe(sub *broker.Subscription)
}

// RealtimeHandler pushes dispatch events to clients over server-sent events
// and WebSockets.
type RealtimeHandler struct {
	events      EventSource
	coordinator dispatch.Coordinator
	upgrader    websocket.Upgrader
	heartbeat   time.Duration
	logger      *slog.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler. allowedOrigins lists the
// browser origins allowed to open a WebSocket; an empty list admits
// same-origin requests only.
func NewRealtimeHandler(
	events EventSource,
	coordinator dispatch.Coordinator,
	allowedOrigins []string,
	logger *slog.Logger,
) *RealtimeHandler {
	h := &RealtimeHandler{
		events:      events,
		coordinator: coordinator,
		heartbeat:   sseHeartbeat,
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
	return h
}

// RegisterRoutes registers the realtime routes.
//
// Routes:
// - GET /api/requests/{id}/stream -> Stream (SSE)
// - GET /ws                       -> WebSocket
func (h *RealtimeHandler) RegisterRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/requests/{id}/stream", requireAuth(http.HandlerFunc(h.Stream)))
	mux.Handle("GET /ws", requireAuth(http.HandlerFunc(h.WebSocket)))
}

// =============================================================================
// GET /api/requests/{id}/stream - Server-Sent Events
// =============================================================================

// Stream sends the events for one request as server-sent events until the
// client goes away. The first frame is the current state.
func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	const op = "handler.stream"

	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	id, err := pathID(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Also the visibility check: callers who cannot see the request get a 404.
	state, err := h.coordinator.State(r.Context(), p, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub := h.events.Subscribe(p)
	defer h.events.Unsubscribe(sub)

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	initial := StateView{Request: newRequestView(&state.Request, p), Status: state.Status, Tracking: state.Tracking}
	if err := writeSSE(w, "state", initial); err != nil || rc.Flush() != nil {
		return
	}

	h.logger.Debug("stream opened", "request_id", id, "principal_id", p.ID)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("stream closed", "request_id", id, "principal_id", p.ID)
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if ev.RequestID != id {
				continue
			}
			if err := writeSSE(w, string(ev.Type), ev); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// =============================================================================
// GET /ws - WebSocket
// =============================================================================

// WebSocket upgrades the connection and forwards every event addressed to
// the caller as a JSON text frame. Client messages are read only to notice
// disconnects.
func (h *RealtimeHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Info("websocket upgrade failed", "principal_id", p.ID, "error", err)
		return
	}

	sub := h.events.Subscribe(p)
	h.logger.Info("websocket connected", "principal_id", p.ID, "role", p.Role)

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)

	h.events.Unsubscribe(sub)
	conn.Close()
	h.logger.Info("websocket disconnected", "principal_id", p.ID)
}

// readPump drains client frames and closes done when the peer goes away.
func (h *RealtimeHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump forwards events and pings until the peer or the broker closes.
func (h *RealtimeHandler) writePump(conn *websocket.Conn, sub *broker.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev, open := <-sub.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ EventSource = (*broker.Broker)(nil)
