package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// MessageType defines the type of WebSocket message.
type MessageType string

const (
	// MsgState carries a full client.State snapshot. Snapshots are complete,
	// so a dropped frame is repaired by the next one.
	MsgState MessageType = "state"
	MsgError MessageType = "error"
)

// Message is the WebSocket envelope format.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks the WebSocket connection of each session participant. At most
// one connection per participant; a reconnect replaces the old one.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[string]*Connection // sessionCode -> userID -> conn
	log   zerolog.Logger
}

// Connection represents one participant's WebSocket connection. Send is
// never closed; Done signals teardown so concurrent senders stay safe.
type Connection struct {
	SessionCode string
	UserID      string
	Send        chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(code, userID string) *Connection {
	return &Connection{
		SessionCode: code,
		UserID:      userID,
		Send:        make(chan []byte, 256),
		done:        make(chan struct{}),
	}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]map[string]*Connection),
		log:   log,
	}
}

// Done is closed once the connection is being torn down.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Register adds a connection, displacing any previous one for the same
// participant.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	if h.conns[conn.SessionCode] == nil {
		h.conns[conn.SessionCode] = make(map[string]*Connection)
	}
	if old, ok := h.conns[conn.SessionCode][conn.UserID]; ok {
		old.Close()
	}
	h.conns[conn.SessionCode][conn.UserID] = conn
	h.mu.Unlock()
	h.log.Debug().Str("code", conn.SessionCode).Str("userId", conn.UserID).Msg("participant connected")
}

// Unregister removes a connection if it is still the current one.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	if members, ok := h.conns[conn.SessionCode]; ok {
		if existing, ok := members[conn.UserID]; ok && existing == conn {
			delete(members, conn.UserID)
			existing.Close()
			if len(members) == 0 {
				delete(h.conns, conn.SessionCode)
			}
		}
	}
	h.mu.Unlock()
	h.log.Debug().Str("code", conn.SessionCode).Str("userId", conn.UserID).Msg("participant disconnected")
}

// SendState delivers an encoded state envelope to one participant. Full
// buffers drop the frame rather than block.
func (h *Hub) SendState(conn *Connection, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("state marshal failed")
		return
	}
	envelope, _ := json.Marshal(&Message{Type: MsgState, Payload: data})
	select {
	case <-conn.done:
	case conn.Send <- envelope:
	default:
	}
}

// DisconnectSession closes every connection of a session.
func (h *Hub) DisconnectSession(code string) {
	h.mu.Lock()
	if members, ok := h.conns[code]; ok {
		for _, conn := range members {
			conn.Close()
		}
		delete(h.conns, code)
	}
	h.mu.Unlock()
}
