package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"pulsequiz/internal/eventbus"
	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
	"pulsequiz/internal/tracksource"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recordedEvents) Publish(_ context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) Close() error { return nil }

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type sentMessage struct {
	pin, playerID, msgType string
	payload                interface{}
}

type recordingBroadcaster struct {
	mu           sync.Mutex
	messages     []sentMessage
	disconnected []string
	notify       chan struct{}
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{notify: make(chan struct{}, 1)}
}

func (b *recordingBroadcaster) record(m sentMessage) {
	b.mu.Lock()
	b.messages = append(b.messages, m)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *recordingBroadcaster) BroadcastToSession(pin, msgType string, payload interface{}) {
	b.record(sentMessage{pin: pin, msgType: msgType, payload: payload})
}

func (b *recordingBroadcaster) BroadcastToPlayer(pin, playerID, msgType string, payload interface{}) {
	b.record(sentMessage{pin: pin, playerID: playerID, msgType: msgType, payload: payload})
}

func (b *recordingBroadcaster) DisconnectSession(pin string) {
	b.mu.Lock()
	b.disconnected = append(b.disconnected, pin)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *recordingBroadcaster) snapshot() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.messages...)
}

// waitUntil polls cond until it holds or the deadline passes.
func (b *recordingBroadcaster) waitUntil(t *testing.T, cond func([]sentMessage) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond(b.snapshot()) {
			return
		}
		select {
		case <-b.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("condition not met, messages: %+v", b.snapshot())
		}
	}
}

type stubSource struct {
	trending []model.Track
	err      error
}

func (s stubSource) Search(context.Context, string) ([]model.Track, error) { return nil, s.err }
func (s stubSource) Trending(context.Context) ([]model.Track, error)       { return s.trending, s.err }

type fixture struct {
	clock   *clockwork.FakeClock
	store   *store.MemoryStore
	events  *recordedEvents
	auth    *AuthService
	session *SessionService
	buzzer  *BuzzerService
	game    *GameService
	scoring *ScoringService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore(clock, 0)
	events := &recordedEvents{}
	auth := NewAuthService([]byte("test-secret"), time.Hour, clock)
	return &fixture{
		clock:   clock,
		store:   st,
		events:  events,
		auth:    auth,
		session: NewSessionService(st, auth, events, clock),
		buzzer:  NewBuzzerService(st, events, clock),
		game:    NewGameService(st, stubSource{trending: tracksource.DefaultPlaylist()}, events, clock),
		scoring: NewScoringService(st, events, clock, DefaultPoints),
	}
}

// playing creates a session that is playing its first track.
func (f *fixture) playing(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	resp, err := f.session.CreateSession(ctx, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := f.game.SelectTracks(ctx, resp.PIN, tracksource.DefaultPlaylist()); err != nil {
		t.Fatalf("SelectTracks: %v", err)
	}
	return resp.PIN
}

func (f *fixture) join(t *testing.T, pin, name string) string {
	t.Helper()
	resp, err := f.session.JoinSession(context.Background(), pin, name)
	if err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	return resp.PlayerID
}

func (f *fixture) get(t *testing.T, pin string) *model.Session {
	t.Helper()
	s, err := f.session.GetSession(context.Background(), pin)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return s
}
