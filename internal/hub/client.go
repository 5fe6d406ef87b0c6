package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
)

// Client is one realtime connection bound to a membership.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	connectionID string
	roomID       uint
	identity     domain.Identity
	send         chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, connectionID string, roomID uint, identity domain.Identity) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		connectionID: connectionID,
		roomID:       roomID,
		identity:     identity,
		send:         make(chan []byte, 256),
	}
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump forwards frames to the hub. When the connection drops it asks the
// hub to unregister, which schedules the exit.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", Client: c}:
		case <-time.After(1 * time.Second):
			c.logCtx().Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		c.logCtx().Info("readPump exited")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logCtx().WithError(err).Warn("WebSocket read error (unexpected close)")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.hub.QueueMessage(HubMessage{Type: "message", Client: c, RawData: message})
	}
}

// WritePump drains the send channel and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logCtx().WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logCtx().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) ConnectionID() string      { return c.connectionID }
func (c *Client) RoomID() uint              { return c.roomID }
func (c *Client) Identity() domain.Identity { return c.identity }

func (c *Client) logCtx() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"session_id":  c.connectionID,
		"room_id":     c.roomID,
		"identity_id": c.identity.ID,
	})
}
