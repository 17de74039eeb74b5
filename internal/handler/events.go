package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/bizdesk/internal/events"
	"github.com/aryan0dhankhar/bizdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/bizdesk/internal/security/middleware"
)

const (
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// EventsHandler streams an organization's events over a WebSocket
type EventsHandler struct {
	publisher      *events.Publisher
	logger         *slog.Logger
	allowedOrigins []string
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(publisher *events.Publisher, allowedOrigins []string, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		publisher:      publisher,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

// upgrader is initialized per-request to use instance's allowed origins
func (h *EventsHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients send no origin
				return true
			}
			if middleware.OriginAllowed(h.allowedOrigins, origin) {
				return true
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/organizations/{orgId}/events?token=...
// Membership is resolved before this handler runs.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, err := membership(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// subscribe first so a Redis outage is reported as an HTTP error
	sub, err := h.publisher.Subscribe(r.Context(), m.OrganizationID)
	if err != nil {
		h.logger.Error("event subscription failed",
			slog.String("org_id", m.OrganizationID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "event stream unavailable"})
		return
	}
	defer sub.Close()

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	metrics.WebsocketConnected()
	defer metrics.WebsocketDisconnected()
	h.logger.Debug("event stream opened",
		slog.String("org_id", m.OrganizationID),
		slog.String("user_id", m.UserID),
	)

	if err := h.stream(ws, sub); err != nil {
		h.logger.Debug("event stream ended",
			slog.String("org_id", m.OrganizationID),
			slog.String("reason", err.Error()),
		)
	}
}

// stream forwards events until the client goes away or the subscription ends
func (h *EventsHandler) stream(ws *websocket.Conn, sub *events.Subscription) error {
	// the read pump only exists to observe close frames and dead peers
	closed := make(chan error, 1)
	_ = ws.SetReadDeadline(time.Now().Add(2 * pingInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * pingInterval))
	})
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
					time.Now().Add(writeTimeout))
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				return err
			}
		case err := <-closed:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
	}
}
