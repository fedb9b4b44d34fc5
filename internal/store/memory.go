package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/model"
)

// MemoryStore keeps sessions in process. Each session has its own mutex, so
// transactions on one session are serialized while other sessions proceed in
// parallel.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memEntry

	topics *topics
	clock  clockwork.Clock
	ttl    time.Duration
}

type memEntry struct {
	mu      sync.Mutex
	session *model.Session
	players map[string]*model.Player
	deleted bool
}

// NewMemoryStore creates an in-process store. Sessions older than ttl are
// removed by Sweep; a zero ttl keeps them until deleted.
func NewMemoryStore(clock clockwork.Clock, ttl time.Duration) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		sessions: make(map[string]*memEntry),
		topics:   newTopics(),
		clock:    clock,
		ttl:      ttl,
	}
}

func (m *MemoryStore) entry(pin string) *memEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[pin]
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *model.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if _, exists := m.sessions[s.PIN]; exists {
		m.mu.Unlock()
		return ErrSessionExists
	}
	stored := s.Clone()
	stored.Version = 1
	m.sessions[s.PIN] = &memEntry{
		session: stored,
		players: make(map[string]*model.Player),
	}
	m.mu.Unlock()

	m.topics.publish(sessionTopic(s.PIN))
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, pin string) (*model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := m.entry(pin)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, nil
	}
	return e.session.Clone(), nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, pin string, patch model.SessionPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	e := m.entry(pin)
	if e == nil {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return ErrSessionNotFound
	}
	if patch.Empty() {
		e.mu.Unlock()
		return nil
	}
	patch.Apply(e.session)
	e.session.Version++
	e.mu.Unlock()

	m.topics.publish(sessionTopic(pin))
	return nil
}

func (m *MemoryStore) TransactSession(ctx context.Context, pin string, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := m.entry(pin)
	if e == nil {
		_, err := fn(nil)
		return err
	}

	// Once the lock is held the mutation runs to completion regardless of ctx.
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		_, err := fn(nil)
		return err
	}
	working := e.session.Clone()
	changed, err := fn(working)
	if err != nil || !changed {
		e.mu.Unlock()
		return err
	}
	working.PIN = pin
	working.Version = e.session.Version + 1
	e.session = working
	e.mu.Unlock()

	m.topics.publish(sessionTopic(pin))
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, pin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	e := m.sessions[pin]
	delete(m.sessions, pin)
	m.mu.Unlock()
	if e == nil {
		return nil
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()

	m.topics.publish(sessionTopic(pin))
	m.topics.publish(playersTopic(pin))
	return nil
}

func (m *MemoryStore) AddPlayer(ctx context.Context, pin string, p *model.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := m.entry(pin)
	if e == nil {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return ErrSessionNotFound
	}
	if _, exists := e.players[p.ID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("player %s already exists", p.ID)
	}
	stored := *p
	e.players[p.ID] = &stored
	e.mu.Unlock()

	m.topics.publish(playersTopic(pin))
	return nil
}

func (m *MemoryStore) GetPlayer(ctx context.Context, pin, playerID string) (*model.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := m.entry(pin)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.players[playerID]
	if !ok || e.deleted {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListPlayers(ctx context.Context, pin string) ([]*model.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := m.entry(pin)
	if e == nil {
		return []*model.Player{}, nil
	}
	e.mu.Lock()
	players := make([]*model.Player, 0, len(e.players))
	if !e.deleted {
		for _, p := range e.players {
			cp := *p
			players = append(players, &cp)
		}
	}
	e.mu.Unlock()

	model.RankPlayers(players)
	return players, nil
}

func (m *MemoryStore) AddScore(ctx context.Context, pin, playerID string, delta int) (*model.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := m.entry(pin)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	p, ok := e.players[playerID]
	if !ok || e.deleted {
		e.mu.Unlock()
		return nil, nil
	}
	p.Score += delta
	cp := *p
	e.mu.Unlock()

	m.topics.publish(playersTopic(pin))
	return &cp, nil
}

func (m *MemoryStore) SubscribeSession(ctx context.Context, pin string, fn func(*model.Session)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic := sessionTopic(pin)
	w := newWatcher(func(ctx context.Context) {
		s, err := m.GetSession(ctx, pin)
		if err != nil {
			return
		}
		fn(s)
	})
	m.topics.add(topic, w)
	w.start()
	return func() {
		m.topics.remove(topic, w)
		w.stop()
	}, nil
}

func (m *MemoryStore) SubscribePlayers(ctx context.Context, pin string, fn func([]*model.Player)) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic := playersTopic(pin)
	w := newWatcher(func(ctx context.Context) {
		players, err := m.ListPlayers(ctx, pin)
		if err != nil {
			return
		}
		fn(players)
	})
	m.topics.add(topic, w)
	w.start()
	return func() {
		m.topics.remove(topic, w)
		w.stop()
	}, nil
}

// Sweep deletes sessions created more than ttl ago and returns how many were
// removed.
func (m *MemoryStore) Sweep(ctx context.Context) int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-m.ttl)

	m.mu.RLock()
	var expired []string
	for pin, e := range m.sessions {
		e.mu.Lock()
		if e.session.CreatedAt.Before(cutoff) {
			expired = append(expired, pin)
		}
		e.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, pin := range expired {
		_ = m.DeleteSession(ctx, pin)
	}
	if len(expired) > 0 {
		log.Debug().Int("expired", len(expired)).Msg("memory store swept sessions")
	}
	return len(expired)
}

// RunJanitor sweeps every interval until ctx is done.
func (m *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Sweep(ctx)
		}
	}
}

func (m *MemoryStore) Close() error { return nil }
