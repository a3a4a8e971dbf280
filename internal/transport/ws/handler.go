package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"troll/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Handler streams per-participant state over WebSocket.
type Handler struct {
	hub     *Hub
	authSvc *service.AuthService
	gameSvc *service.GameService
	log     zerolog.Logger
}

func NewHandler(hub *Hub, authSvc *service.AuthService, gameSvc *service.GameService, log zerolog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		authSvc: authSvc,
		gameSvc: gameSvc,
		log:     log,
	}
}

// SessionWS handles GET /v1/ws/sessions/{code}. Token comes in the query
// string since browsers cannot set headers on WebSocket upgrades.
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.SessionCode != code {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	participant, err := h.gameSvc.Participant(code, claims.UserID)
	if err != nil {
		http.Error(w, "not in session", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(code, claims.UserID)
	h.hub.Register(conn)
	h.log.Info().Str("code", code).Str("userId", claims.UserID).Msg("websocket attached")

	// Current snapshot first, then live updates.
	h.hub.SendState(conn, participant.State())

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
	go h.forwardStates(conn, claims.UserID)
}

// forwardStates relays the participant's update stream into the connection.
// The stream closes when the participant's client shuts down.
func (h *Handler) forwardStates(conn *Connection, userID string) {
	updates, err := h.gameSvc.Updates(conn.SessionCode, userID)
	if err != nil {
		conn.Close()
		return
	}
	for {
		select {
		case <-conn.Done():
			return
		case st, ok := <-updates:
			if !ok {
				conn.Close()
				return
			}
			h.hub.SendState(conn, st)
		}
	}
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
		// Actions arrive over REST; inbound frames are ignored.
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case <-conn.Done():
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			wsConn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
