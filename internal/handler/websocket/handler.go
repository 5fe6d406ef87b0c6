package websocket

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	httpHandler "sketch-lobby/internal/handler/http"
	"sketch-lobby/internal/hub"
	"sketch-lobby/internal/service"
)

// SessionBinder attaches a connection to the caller's membership.
type SessionBinder interface {
	BindSession(ctx context.Context, roomID uint, credential, connectionID string) (domain.Identity, error)
}

// WebSocketHandler upgrades room connections and hands them to the hub.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	sessions SessionBinder
}

// NewWebSocketHandler creates the handler. An empty allowedOrigin accepts
// any origin.
func NewWebSocketHandler(h *hub.Hub, sessions SessionBinder, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if sessions == nil {
		panic("SessionBinder cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || origin == "" || origin == allowedOrigin
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h, sessions: sessions}
}

// HandleConnection serves GET /ws/rooms/:roomId?token=<socket token>.
// The membership is bound before the upgrade so failures surface as plain
// HTTP errors.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	roomID64, err := strconv.ParseUint(c.Param("roomId"), 10, 64)
	if err != nil || roomID64 == 0 {
		httpHandler.ErrorResponse(c, http.StatusBadRequest, service.Code(service.ErrInvalidRequest), "Invalid room ID")
		return
	}
	roomID := uint(roomID64)
	token := c.Query("token")
	if token == "" {
		httpHandler.HandleServiceError(c, service.ErrUnauthenticated)
		return
	}

	connectionID := uuid.NewString()
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "session_id": connectionID})

	identity, err := h.sessions.BindSession(c.Request.Context(), roomID, token, connectionID)
	if err != nil {
		logCtx.WithError(err).Warn("WS Handler: session binding rejected")
		httpHandler.HandleServiceError(c, err)
		return
	}
	logCtx = logCtx.WithField("identity_id", identity.ID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error; the stale binding is cleaned
		// up by the next bind or by an explicit exit.
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, connectionID, roomID, identity)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		conn.Close()
		// the membership is already bound to this session
		h.hub.SessionLost(connectionID, roomID)
		return
	}
	client.Run()
	logCtx.Info("WS Handler: client connected")
}
