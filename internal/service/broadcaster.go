package service

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	// BroadcastToSession sends to the host and every player of a session.
	BroadcastToSession(pin string, msgType string, payload interface{})
	BroadcastToPlayer(pin, playerID string, msgType string, payload interface{})
	DisconnectSession(pin string)
}
