package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/model"
	"pulsequiz/internal/service"
	"pulsequiz/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	buzzTimeout  = 5 * time.Second
	setupTimeout = 10 * time.Second
)

// SessionInfo is the first message a client receives after connecting
type SessionInfo struct {
	Role         string `json:"role"`
	PIN          string `json:"pin"`
	PlayerID     string `json:"playerId,omitempty"`
	ConnectionID string `json:"connectionId"`
}

// Handler handles WebSocket connections
type Handler struct {
	hub      *Hub
	authSvc  *service.AuthService
	sessions *service.SessionService
	buzzer   *service.BuzzerService
	fanout   *service.Fanout
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. A nil checkOrigin accepts any
// origin.
func NewHandler(hub *Hub, authSvc *service.AuthService, sessions *service.SessionService, buzzer *service.BuzzerService, fanout *service.Fanout, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		authSvc:  authSvc,
		sessions: sessions,
		buzzer:   buzzer,
		fanout:   fanout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// HostWS handles GET /v1/ws/sessions/{pin}/host
func (h *Handler) HostWS(w http.ResponseWriter, r *http.Request) {
	pin := mux.Vars(r)["pin"]
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateHostToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.PIN != pin {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	h.serve(w, r, NewConnection(pin, "", true))
}

// PlayerWS handles GET /v1/ws/sessions/{pin}/player
func (h *Handler) PlayerWS(w http.ResponseWriter, r *http.Request) {
	pin := mux.Vars(r)["pin"]
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidatePlayerToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.PIN != pin {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	h.serve(w, r, NewConnection(pin, claims.PlayerID, false))
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, conn *Connection) {
	if _, err := h.sessions.GetSession(r.Context(), conn.PIN); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("pin", conn.PIN).Msg("failed to load session for websocket")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("pin", conn.PIN).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	h.hub.Register(conn)
	if err := h.fanout.Acquire(ctx, conn.PIN); err != nil {
		log.Error().Err(err).Str("pin", conn.PIN).Msg("failed to subscribe websocket client")
		h.hub.Unregister(conn)
		wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
			time.Now().Add(writeWait))
		wsConn.Close()
		return
	}

	h.sendSnapshot(ctx, conn)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

// sendSnapshot gives a new client its identity and the current state. Later
// changes reach it through the session fan-out.
func (h *Handler) sendSnapshot(ctx context.Context, conn *Connection) {
	h.hub.SendTo(conn, MsgSessionInfo, SessionInfo{
		Role:         conn.role(),
		PIN:          conn.PIN,
		PlayerID:     conn.PlayerID,
		ConnectionID: conn.ID,
	})

	session, err := h.sessions.GetSession(ctx, conn.PIN)
	if err != nil {
		log.Warn().Err(err).Str("pin", conn.PIN).Msg("failed to load session snapshot")
		return
	}
	h.hub.SendTo(conn, MsgSessionUpdate, session)

	players, err := h.sessions.Players(ctx, conn.PIN)
	if err != nil {
		log.Warn().Err(err).Str("pin", conn.PIN).Msg("failed to load players snapshot")
		return
	}
	h.hub.SendTo(conn, MsgPlayersUpdate, service.NewPlayersPayload(players))
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		h.fanout.Release(conn.PIN)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("pin", conn.PIN).Str("conn_id", conn.ID).Msg("websocket read error")
			}
			return
		}
		h.handleMessage(conn, data)
	}
}

func (h *Handler) handleMessage(conn *Connection, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.hub.SendTo(conn, MsgError, map[string]string{"error": "invalid message"})
		return
	}

	switch {
	case msg.Type == MsgBuzz && !conn.IsHost:
		ctx, cancel := context.WithTimeout(context.Background(), buzzTimeout)
		defer cancel()

		won, err := h.buzzer.AttemptBuzz(ctx, conn.PIN, conn.PlayerID)
		result := model.BuzzResponse{Won: won}
		if err != nil {
			result.Error = "buzz could not be recorded, try again"
		}
		h.hub.SendTo(conn, MsgBuzzResult, result)
	default:
		h.hub.SendTo(conn, MsgError, map[string]string{"error": "unsupported message type"})
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
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

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
