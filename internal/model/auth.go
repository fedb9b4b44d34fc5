package model

import "github.com/golang-jwt/jwt/v5"

// HostClaims are JWT claims for the host of one session
type HostClaims struct {
	PIN string `json:"pin"`
	jwt.RegisteredClaims
}

// PlayerClaims are JWT claims for player session-scoped tokens
type PlayerClaims struct {
	PIN      string `json:"pin"`
	PlayerID string `json:"playerId"`
	jwt.RegisteredClaims
}

// CreateSessionResponse is returned after a host creates a session
type CreateSessionResponse struct {
	PIN       string   `json:"pin"`
	HostToken string   `json:"hostToken"`
	Session   *Session `json:"session"`
}
