// Package store holds session and player records and is the only place they
// are mutated. Every backend gives the same guarantees: transactions on one
// session are linearized, different sessions never contend, and subscribers
// receive full snapshots after every committed change.
package store

import (
	"context"
	"errors"

	"pulsequiz/internal/model"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrConflict        = errors.New("too many conflicting writes, transaction aborted")
)

// TxFunc decides a session mutation. It receives a private copy of the stored
// session (nil when the session does not exist), may modify it, and reports
// whether the copy must be written back. Optimistic backends may call it more
// than once, so it must not have side effects beyond capturing its result.
type TxFunc func(s *model.Session) (bool, error)

// Unsubscribe stops a subscription and waits for any delivery in flight.
type Unsubscribe func()

// Store is the session store contract.
type Store interface {
	// CreateSession inserts s. It fails with ErrSessionExists if the PIN is taken.
	CreateSession(ctx context.Context, s *model.Session) error
	// GetSession returns nil, nil when the session does not exist.
	GetSession(ctx context.Context, pin string) (*model.Session, error)
	// UpdateSession applies a field-level, last-write-wins patch.
	UpdateSession(ctx context.Context, pin string, patch model.SessionPatch) error
	// TransactSession runs fn as one atomic read-modify-write.
	TransactSession(ctx context.Context, pin string, fn TxFunc) error
	DeleteSession(ctx context.Context, pin string) error

	AddPlayer(ctx context.Context, pin string, p *model.Player) error
	// GetPlayer returns nil, nil when the player does not exist.
	GetPlayer(ctx context.Context, pin, playerID string) (*model.Player, error)
	// ListPlayers returns the players ranked with model.RankPlayers.
	ListPlayers(ctx context.Context, pin string) ([]*model.Player, error)
	// AddScore atomically adds delta to a player's score and returns the
	// updated record, or nil, nil when the player does not exist.
	AddScore(ctx context.Context, pin, playerID string, delta int) (*model.Player, error)

	// SubscribeSession calls fn with the current session right away and again
	// after changes. fn receives nil while the session does not exist.
	SubscribeSession(ctx context.Context, pin string, fn func(*model.Session)) (Unsubscribe, error)
	// SubscribePlayers calls fn with the full ranked player list right away and
	// again after changes.
	SubscribePlayers(ctx context.Context, pin string, fn func([]*model.Player)) (Unsubscribe, error)

	Close() error
}
