package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"sketch-lobby/internal/domain"
	"sketch-lobby/internal/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Bounds the presence lookups and departure enqueue done per event.
	opTimeout = 5 * time.Second
)

// Event types sent to clients.
const (
	EventJoined      = "joined"
	EventLeft        = "left"
	EventHostChanged = "host_changed"
	EventMessage     = "message"
	EventError       = "error"
)

// Event is the envelope of every server-to-client frame.
type Event struct {
	Type     string           `json:"type"`
	RoomID   uint             `json:"roomId"`
	Identity *domain.Identity `json:"identity,omitempty"`
	NewHost  *domain.Identity `json:"newHost,omitempty"`
	Payload  json.RawMessage  `json:"payload,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Presence resolves who else in a room is reachable.
type Presence interface {
	ListOthers(ctx context.Context, roomID uint, callerConnectionID string) ([]string, error)
}

// Departures is told when a connection goes away so the exit can run.
type Departures interface {
	SessionLost(ctx context.Context, sessionID string, roomID uint) error
}

type HubMessage struct {
	Type    string // "register", "unregister", "message"
	Client  *Client
	RawData []byte
}

// Hub tracks live connections by connection id and fans room events out to
// the connections the membership store reports as present.
type Hub struct {
	messageChan chan HubMessage

	clients   map[string]*Client
	clientsMu sync.RWMutex

	presence   Presence
	departures Departures
}

func NewHub(presence Presence, departures Departures) *Hub {
	if presence == nil {
		panic("Presence cannot be nil for Hub")
	}
	if departures == nil {
		panic("Departures cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		clients:     make(map[string]*Client),
		presence:    presence,
		departures:  departures,
	}
}

// Run processes hub messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "message":
				go h.relay(msg.Client, msg.RawData)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		}
	}
}

// QueueMessage hands msg to the hub loop without blocking. It reports false
// when the queue is full.
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := client.logCtx()

	h.clientsMu.Lock()
	if previous, ok := h.clients[client.connectionID]; ok && previous != client {
		close(previous.send)
	}
	h.clients[client.connectionID] = client
	h.clientsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	identity := client.identity
	go h.notifyRoom(client.roomID, client.connectionID, Event{Type: EventJoined, RoomID: client.roomID, Identity: &identity})
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := client.logCtx()

	h.clientsMu.Lock()
	current, ok := h.clients[client.connectionID]
	if ok && current == client {
		delete(h.clients, client.connectionID)
		close(client.send)
	}
	h.clientsMu.Unlock()
	if !ok || current != client {
		logCtx.Warn("Client not found during unregister")
		return
	}
	logCtx.Info("Client unregistered from Hub")

	go h.SessionLost(client.connectionID, client.roomID)
}

// SessionLost schedules the exit of whoever is bound to sessionID. It is
// also used for connections that never made it into the hub.
func (h *Hub) SessionLost(sessionID string, roomID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := h.departures.SessionLost(ctx, sessionID, roomID); err != nil {
		logrus.WithFields(logrus.Fields{"session_id": sessionID, "room_id": roomID}).
			WithError(err).Error("Failed to schedule connection-loss exit")
	}
}

// MemberLeft broadcasts a committed departure to whoever is still in the room.
func (h *Hub) MemberLeft(ctx context.Context, result service.ExitResult) {
	if result.RoomDeleted {
		return
	}
	departed := result.Departed
	h.notifyRoom(result.RoomID, result.SessionID, Event{Type: EventLeft, RoomID: result.RoomID, Identity: &departed})
	if result.NewHost != nil {
		h.notifyRoom(result.RoomID, result.SessionID, Event{Type: EventHostChanged, RoomID: result.RoomID, NewHost: result.NewHost})
	}
}

// relay forwards a client frame to the rest of its room.
func (h *Hub) relay(sender *Client, raw []byte) {
	logCtx := sender.logCtx()
	if !json.Valid(raw) {
		logCtx.Debug("Dropping non-JSON client frame")
		h.sendTo(sender, Event{Type: EventError, RoomID: sender.roomID, Message: "messages must be JSON"})
		return
	}
	identity := sender.identity
	h.notifyRoom(sender.roomID, sender.connectionID, Event{
		Type:     EventMessage,
		RoomID:   sender.roomID,
		Identity: &identity,
		Payload:  json.RawMessage(raw),
	})
}

func (h *Hub) notifyRoom(roomID uint, exceptConnectionID string, event Event) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "event": event.Type})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	recipients, err := h.presence.ListOthers(ctx, roomID, exceptConnectionID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to resolve room presence")
		return
	}
	if len(recipients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal event")
		return
	}
	h.deliver(recipients, data)
}

func (h *Hub) sendTo(client *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.deliver([]string{client.connectionID}, data)
}

// deliver never blocks on a slow client.
func (h *Hub) deliver(connectionIDs []string, message []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	targets := lo.FilterMap(connectionIDs, func(id string, _ int) (*Client, bool) {
		c, ok := h.clients[id]
		return c, ok
	})
	for _, client := range targets {
		select {
		case client.send <- message:
		default:
			client.logCtx().Warn("Client send channel full, skipping this client")
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}
