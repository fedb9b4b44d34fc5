package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
)

// Message types pushed to WebSocket clients
const (
	MsgSessionUpdate = "session_update"
	MsgPlayersUpdate = "players_update"
)

// PlayersPayload is the players_update message body
type PlayersPayload struct {
	Players     []*model.Player          `json:"players"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
}

// NewPlayersPayload builds a players_update body from a ranked list
func NewPlayersPayload(players []*model.Player) PlayersPayload {
	if players == nil {
		players = []*model.Player{}
	}
	return PlayersPayload{Players: players, Leaderboard: model.Leaderboard(players)}
}

// Fanout shares one pair of store subscriptions per session among all of its
// WebSocket connections and forwards every snapshot to them.
type Fanout struct {
	store       store.Store
	broadcaster Broadcaster

	mu   sync.Mutex
	subs map[string]*fanoutSub
}

// fanoutSub is pending until ready is closed; err and unsubscribe are only
// read after that.
type fanoutSub struct {
	refs        int
	ready       chan struct{}
	err         error
	unsubscribe []store.Unsubscribe
}

// NewFanout creates a new fan-out
func NewFanout(st store.Store, b Broadcaster) *Fanout {
	return &Fanout{
		store:       st,
		broadcaster: b,
		subs:        make(map[string]*fanoutSub),
	}
}

// Acquire registers interest in a session, subscribing on first use. The
// store is called without holding the fan-out lock; concurrent callers for
// the same session wait for the first one.
func (f *Fanout) Acquire(ctx context.Context, pin string) error {
	f.mu.Lock()
	if sub, ok := f.subs[pin]; ok {
		sub.refs++
		f.mu.Unlock()
		<-sub.ready
		return sub.err
	}
	sub := &fanoutSub{refs: 1, ready: make(chan struct{})}
	f.subs[pin] = sub
	f.mu.Unlock()

	unsubs, err := f.subscribe(ctx, pin)

	f.mu.Lock()
	if err != nil {
		sub.err = err
		if f.subs[pin] == sub {
			delete(f.subs, pin)
		}
	} else {
		sub.unsubscribe = unsubs
	}
	f.mu.Unlock()
	close(sub.ready)

	if err == nil {
		log.Debug().Str("pin", pin).Msg("fan-out subscribed")
	}
	return err
}

func (f *Fanout) subscribe(ctx context.Context, pin string) ([]store.Unsubscribe, error) {
	unsubSession, err := f.store.SubscribeSession(ctx, pin, func(session *model.Session) {
		if session == nil {
			log.Info().Str("pin", pin).Msg("session gone, disconnecting clients")
			f.broadcaster.DisconnectSession(pin)
			return
		}
		f.broadcaster.BroadcastToSession(pin, MsgSessionUpdate, session)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to session: %w", err)
	}
	unsubPlayers, err := f.store.SubscribePlayers(ctx, pin, func(players []*model.Player) {
		f.broadcaster.BroadcastToSession(pin, MsgPlayersUpdate, NewPlayersPayload(players))
	})
	if err != nil {
		unsubSession()
		return nil, fmt.Errorf("failed to subscribe to players: %w", err)
	}
	return []store.Unsubscribe{unsubSession, unsubPlayers}, nil
}

// Release drops one reference and unsubscribes when none remain
func (f *Fanout) Release(pin string) {
	f.mu.Lock()
	sub, ok := f.subs[pin]
	if !ok {
		f.mu.Unlock()
		return
	}
	sub.refs--
	if sub.refs > 0 {
		f.mu.Unlock()
		return
	}
	delete(f.subs, pin)
	f.mu.Unlock()

	for _, unsub := range sub.unsubscribe {
		unsub()
	}
	log.Debug().Str("pin", pin).Msg("fan-out unsubscribed")
}

// Active returns the number of sessions with live subscriptions
func (f *Fanout) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close drops every subscription
func (f *Fanout) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[string]*fanoutSub)
	f.mu.Unlock()

	for _, sub := range subs {
		<-sub.ready
		for _, unsub := range sub.unsubscribe {
			unsub()
		}
	}
}
