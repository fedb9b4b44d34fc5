package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/metrics"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Server to client message types
const (
	MsgSessionInfo        MessageType = "session_info"
	MsgSessionUpdate      MessageType = "session_update"
	MsgPlayersUpdate      MessageType = "players_update"
	MsgBuzzResult         MessageType = "buzz_result"
	MsgRoundResult        MessageType = "round_result"
	MsgPlayerConnected    MessageType = "player_connected"
	MsgPlayerDisconnected MessageType = "player_disconnected"
	MsgError              MessageType = "error"
)

// Client to server message types
const (
	MsgBuzz MessageType = "buzz"
)

const (
	roleHost   = "host"
	rolePlayer = "player"

	sendBufferSize = 64
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connection represents a WebSocket connection
type Connection struct {
	ID       string
	PIN      string
	PlayerID string // Empty for host connections
	IsHost   bool
	Send     chan []byte
}

// NewConnection creates a connection with a buffered send queue.
func NewConnection(pin, playerID string, isHost bool) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		PIN:      pin,
		PlayerID: playerID,
		IsHost:   isHost,
		Send:     make(chan []byte, sendBufferSize),
	}
}

func (c *Connection) role() string {
	if c.IsHost {
		return roleHost
	}
	return rolePlayer
}

// BroadcastMessage is a message to deliver inside one session
type BroadcastMessage struct {
	PIN      string
	ToPlayer string      // Empty means every connection of the session
	ToConn   *Connection // Set for a direct reply to one connection
	Data     []byte
}

type sessionConns struct {
	host    *Connection
	players map[string]*Connection
}

func (s *sessionConns) empty() bool {
	return s.host == nil && len(s.players) == 0
}

// Hub manages WebSocket connections per session. All connection state is
// owned by the run loop.
type Hub struct {
	sessions map[string]*sessionConns

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	disconnect chan string
	count      chan chan int

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		sessions:   make(map[string]*sessionConns),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		disconnect: make(chan string, 16),
		count:      make(chan chan int),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for pin := range h.sessions {
				h.dropSession(pin)
			}
			return

		case conn := <-h.register:
			h.add(conn)

		case conn := <-h.unregister:
			h.remove(conn)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case pin := <-h.disconnect:
			if _, ok := h.sessions[pin]; ok {
				h.dropSession(pin)
				log.Info().Str("pin", pin).Msg("disconnected session clients")
			}

		case reply := <-h.count:
			n := 0
			for _, s := range h.sessions {
				n += len(s.players)
				if s.host != nil {
					n++
				}
			}
			reply <- n
		}
	}
}

func (h *Hub) add(conn *Connection) {
	s, ok := h.sessions[conn.PIN]
	if !ok {
		s = &sessionConns{players: make(map[string]*Connection)}
		h.sessions[conn.PIN] = s
	}

	// A newer connection for the same slot replaces the older one.
	var old *Connection
	if conn.IsHost {
		old, s.host = s.host, conn
	} else {
		old = s.players[conn.PlayerID]
		s.players[conn.PlayerID] = conn
	}
	if old != nil {
		h.closeConn(old)
	}
	metrics.WSConnections.WithLabelValues(conn.role()).Inc()

	if conn.IsHost {
		log.Info().Str("pin", conn.PIN).Str("conn_id", conn.ID).Msg("host connected")
		return
	}
	log.Info().Str("pin", conn.PIN).Str("player_id", conn.PlayerID).Str("conn_id", conn.ID).Msg("player connected")
	h.notifyHost(s, MsgPlayerConnected, conn.PlayerID)
}

func (h *Hub) remove(conn *Connection) {
	s, ok := h.sessions[conn.PIN]
	if !ok {
		return
	}
	if conn.IsHost {
		if s.host != conn {
			return
		}
		s.host = nil
		log.Info().Str("pin", conn.PIN).Str("conn_id", conn.ID).Msg("host disconnected")
	} else {
		if s.players[conn.PlayerID] != conn {
			return
		}
		delete(s.players, conn.PlayerID)
		log.Info().Str("pin", conn.PIN).Str("player_id", conn.PlayerID).Msg("player disconnected")
		h.notifyHost(s, MsgPlayerDisconnected, conn.PlayerID)
	}
	h.closeConn(conn)
	if s.empty() {
		delete(h.sessions, conn.PIN)
	}
}

func (h *Hub) dropSession(pin string) {
	s := h.sessions[pin]
	if s.host != nil {
		h.closeConn(s.host)
	}
	for _, conn := range s.players {
		h.closeConn(conn)
	}
	delete(h.sessions, pin)
}

func (h *Hub) closeConn(conn *Connection) {
	close(conn.Send)
	metrics.WSConnections.WithLabelValues(conn.role()).Dec()
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	s, ok := h.sessions[msg.PIN]
	if !ok {
		return
	}
	switch {
	case msg.ToConn != nil:
		// Only while the connection still holds its slot; otherwise Send is closed.
		if msg.ToConn == s.host || msg.ToConn == s.players[msg.ToConn.PlayerID] {
			h.push(msg.ToConn, msg.Data)
		}
	case msg.ToPlayer != "":
		if conn, ok := s.players[msg.ToPlayer]; ok {
			h.push(conn, msg.Data)
		}
	default:
		if s.host != nil {
			h.push(s.host, msg.Data)
		}
		for _, conn := range s.players {
			h.push(conn, msg.Data)
		}
	}
}

// push never blocks; a slow client loses the message and catches up on the
// next snapshot.
func (h *Hub) push(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		metrics.WSDroppedMessages.Inc()
		log.Debug().Str("pin", conn.PIN).Str("conn_id", conn.ID).Msg("send buffer full, message dropped")
	}
}

func (h *Hub) notifyHost(s *sessionConns, msgType MessageType, playerID string) {
	if s.host == nil {
		return
	}
	data, err := encode(msgType, map[string]string{"playerId": playerID})
	if err != nil {
		return
	}
	h.push(s.host, data)
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.quit:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.quit:
	}
}

// SendTo queues a message for a single connection.
func (h *Hub) SendTo(conn *Connection, msgType MessageType, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(msgType)).Msg("failed to encode message")
		return
	}
	h.enqueue(&BroadcastMessage{PIN: conn.PIN, ToConn: conn, Data: data})
}

// BroadcastToSession sends a message to the host and all players of a session
// (implements service.Broadcaster)
func (h *Hub) BroadcastToSession(pin string, msgType string, payload interface{}) {
	data, err := encode(MessageType(msgType), payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to encode message")
		return
	}
	h.enqueue(&BroadcastMessage{PIN: pin, Data: data})
}

// BroadcastToPlayer sends a message to a specific player (implements service.Broadcaster)
func (h *Hub) BroadcastToPlayer(pin, playerID string, msgType string, payload interface{}) {
	data, err := encode(MessageType(msgType), payload)
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to encode message")
		return
	}
	h.enqueue(&BroadcastMessage{PIN: pin, ToPlayer: playerID, Data: data})
}

// DisconnectSession closes every connection of a session (implements service.Broadcaster)
func (h *Hub) DisconnectSession(pin string) {
	select {
	case h.disconnect <- pin:
	case <-h.quit:
	}
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.quit:
		return 0
	}
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
	<-h.done
}

func encode(msgType MessageType, payload interface{}) ([]byte, error) {
	msg := Message{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
