package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pulsequiz/internal/model"
)

// runStoreSuite exercises the Store contract against one backend. newStore
// must return an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicatePIN", func(t *testing.T) { testDuplicatePIN(t, newStore(t)) })
	t.Run("UpdateSession", func(t *testing.T) { testUpdateSession(t, newStore(t)) })
	t.Run("TransactNoChange", func(t *testing.T) { testTransactNoChange(t, newStore(t)) })
	t.Run("TransactMissing", func(t *testing.T) { testTransactMissing(t, newStore(t)) })
	t.Run("SingleWinner", func(t *testing.T) { testSingleWinner(t, newStore(t)) })
	t.Run("Players", func(t *testing.T) { testPlayers(t, newStore(t)) })
	t.Run("ConcurrentScores", func(t *testing.T) { testConcurrentScores(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("SubscribeSession", func(t *testing.T) { testSubscribeSession(t, newStore(t)) })
	t.Run("SubscribePlayers", func(t *testing.T) { testSubscribePlayers(t, newStore(t)) })
}

var testTracks = []model.Track{
	{ID: "t1", ExternalMediaID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Artist: "Rick Astley"},
	{ID: "t2", ExternalMediaID: "kJQP7kiw5Fk", Title: "Despacito", Artist: "Luis Fonsi"},
}

func playingSession(t *testing.T, s Store, pin string) {
	t.Helper()
	sess := model.NewSession(pin, nil, time.Now().UTC())
	if err := sess.SelectTracks(testTracks); err != nil {
		t.Fatalf("SelectTracks: %v", err)
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func testCreateAndGet(t *testing.T, s Store) {
	ctx := context.Background()
	got, err := s.GetSession(ctx, "123456")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing session, got %v, %v", got, err)
	}

	playingSession(t, s, "123456")
	got, err = s.GetSession(ctx, "123456")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != model.SessionPlaying {
		t.Fatalf("expected playing, got %s", got.State)
	}
	if got.CurrentTrack == nil || got.CurrentTrack.ID != "t1" {
		t.Fatalf("expected current track t1, got %+v", got.CurrentTrack)
	}
	if len(got.Playlist) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(got.Playlist))
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Version)
	}
}

func testDuplicatePIN(t *testing.T, s Store) {
	playingSession(t, s, "222222")
	err := s.CreateSession(context.Background(), model.NewSession("222222", nil, time.Now()))
	if !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func testUpdateSession(t *testing.T, s Store) {
	ctx := context.Background()
	playingSession(t, s, "333333")

	if err := s.TransactSession(ctx, "333333", func(sess *model.Session) (bool, error) {
		return sess.LockBuzzer("p1", time.Now()), nil
	}); err != nil {
		t.Fatalf("TransactSession: %v", err)
	}

	ended := model.SessionEnded
	if err := s.UpdateSession(ctx, "333333", model.SessionPatch{State: &ended, ClearBuzzer: true}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	got, _ := s.GetSession(ctx, "333333")
	if got.State != model.SessionEnded {
		t.Fatalf("expected ended, got %s", got.State)
	}
	if got.ActiveBuzzer != "" || got.BuzzerLockedAt != nil {
		t.Fatalf("expected buzzer cleared, got %q %v", got.ActiveBuzzer, got.BuzzerLockedAt)
	}
	if got.Playlist == nil || len(got.Playlist) != 2 {
		t.Fatalf("patch must leave other fields alone, playlist=%v", got.Playlist)
	}
	if got.Version != 3 {
		t.Fatalf("expected version 3, got %d", got.Version)
	}

	err := s.UpdateSession(ctx, "999998", model.SessionPatch{ClearBuzzer: true})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	if err := s.UpdateSession(ctx, "333333", model.SessionPatch{}); err != nil {
		t.Fatalf("empty UpdateSession: %v", err)
	}
	if got, _ := s.GetSession(ctx, "333333"); got.Version != 3 {
		t.Fatalf("empty patch must not write, got version %d", got.Version)
	}
	if err := s.UpdateSession(ctx, "999998", model.SessionPatch{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty patch, got %v", err)
	}

	bogus := model.SessionState("rewinding")
	err = s.UpdateSession(ctx, "333333", model.SessionPatch{State: &bogus})
	if !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if got, _ := s.GetSession(ctx, "333333"); got.State != model.SessionEnded {
		t.Fatalf("invalid patch must not write, got %s", got.State)
	}
}

func testTransactNoChange(t *testing.T, s Store) {
	ctx := context.Background()
	playingSession(t, s, "444444")
	if err := s.TransactSession(ctx, "444444", func(sess *model.Session) (bool, error) {
		sess.State = model.SessionEnded
		return false, nil
	}); err != nil {
		t.Fatalf("TransactSession: %v", err)
	}
	got, _ := s.GetSession(ctx, "444444")
	if got.State != model.SessionPlaying || got.Version != 1 {
		t.Fatalf("unchanged transaction must not write, got %s v%d", got.State, got.Version)
	}

	sentinel := errors.New("boom")
	err := s.TransactSession(ctx, "444444", func(sess *model.Session) (bool, error) {
		sess.State = model.SessionEnded
		return true, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ = s.GetSession(ctx, "444444")
	if got.State != model.SessionPlaying {
		t.Fatalf("failed transaction must not write, got %s", got.State)
	}
}

func testTransactMissing(t *testing.T, s Store) {
	var sawNil bool
	err := s.TransactSession(context.Background(), "555555", func(sess *model.Session) (bool, error) {
		sawNil = sess == nil
		return false, nil
	})
	if err != nil {
		t.Fatalf("TransactSession: %v", err)
	}
	if !sawNil {
		t.Fatal("expected fn to receive nil for a missing session")
	}
}

func testSingleWinner(t *testing.T, s Store) {
	ctx := context.Background()
	playingSession(t, s, "666666")

	const contenders = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			var won bool
			err := s.TransactSession(ctx, "666666", func(sess *model.Session) (bool, error) {
				won = sess.LockBuzzer(id, time.Now())
				return won, nil
			})
			if err != nil {
				t.Errorf("TransactSession: %v", err)
				return
			}
			if won {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(fmt.Sprintf("p%d", i))
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	got, _ := s.GetSession(ctx, "666666")
	if got.ActiveBuzzer != winners[0] {
		t.Fatalf("stored buzzer %q does not match winner %q", got.ActiveBuzzer, winners[0])
	}
}

func testPlayers(t *testing.T, s Store) {
	ctx := context.Background()
	err := s.AddPlayer(ctx, "777777", &model.Player{ID: "ghost", Name: "Ghost", JoinedAt: time.Now()})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	playingSession(t, s, "777777")
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, name := range []string{"Ana", "Ben", "Cy"} {
		p := &model.Player{ID: fmt.Sprintf("p%d", i), Name: name, JoinedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.AddPlayer(ctx, "777777", p); err != nil {
			t.Fatalf("AddPlayer: %v", err)
		}
	}

	p, err := s.GetPlayer(ctx, "777777", "p1")
	if err != nil || p == nil || p.Name != "Ben" {
		t.Fatalf("GetPlayer: %+v %v", p, err)
	}
	if p, _ := s.GetPlayer(ctx, "777777", "nobody"); p != nil {
		t.Fatalf("expected nil for missing player, got %+v", p)
	}

	updated, err := s.AddScore(ctx, "777777", "p2", 100)
	if err != nil {
		t.Fatalf("AddScore: %v", err)
	}
	if updated.Score != 100 {
		t.Fatalf("expected score 100, got %d", updated.Score)
	}
	if missing, err := s.AddScore(ctx, "777777", "nobody", 100); err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing player, got %+v %v", missing, err)
	}

	players, err := s.ListPlayers(ctx, "777777")
	if err != nil {
		t.Fatalf("ListPlayers: %v", err)
	}
	var order []string
	for _, p := range players {
		order = append(order, p.ID)
	}
	if fmt.Sprint(order) != "[p2 p0 p1]" {
		t.Fatalf("unexpected ranking %v", order)
	}
}

func testConcurrentScores(t *testing.T, s Store) {
	ctx := context.Background()
	playingSession(t, s, "888888")
	if err := s.AddPlayer(ctx, "888888", &model.Player{ID: "p1", Name: "Ana", JoinedAt: time.Now()}); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddScore(ctx, "888888", "p1", 10); err != nil {
				t.Errorf("AddScore: %v", err)
			}
		}()
	}
	wg.Wait()

	p, _ := s.GetPlayer(ctx, "888888", "p1")
	if p.Score != 250 {
		t.Fatalf("expected 250, got %d", p.Score)
	}
}

func testDelete(t *testing.T, s Store) {
	ctx := context.Background()
	playingSession(t, s, "121212")
	if err := s.AddPlayer(ctx, "121212", &model.Player{ID: "p1", Name: "Ana", JoinedAt: time.Now()}); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	if err := s.DeleteSession(ctx, "121212"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if got, _ := s.GetSession(ctx, "121212"); got != nil {
		t.Fatalf("expected session gone, got %+v", got)
	}
	players, err := s.ListPlayers(ctx, "121212")
	if err != nil || len(players) != 0 {
		t.Fatalf("expected no players, got %v %v", players, err)
	}
	if err := s.DeleteSession(ctx, "121212"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

// waitFor returns the first value from ch that satisfies ok.
func waitFor[T any](t *testing.T, ch <-chan T, ok func(T) bool) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v := <-ch:
			if ok(v) {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatal("timed out waiting for subscription delivery")
			return zero
		}
	}
}

func testSubscribeSession(t *testing.T, s Store) {
	ctx := context.Background()
	playingSession(t, s, "131313")

	updates := make(chan *model.Session)
	done := make(chan struct{})
	unsub, err := s.SubscribeSession(ctx, "131313", func(sess *model.Session) {
		select {
		case updates <- sess:
		case <-done:
		}
	})
	if err != nil {
		t.Fatalf("SubscribeSession: %v", err)
	}
	defer unsub()
	defer close(done)

	waitFor(t, updates, func(sess *model.Session) bool { return sess != nil && sess.Version == 1 })

	if err := s.TransactSession(ctx, "131313", func(sess *model.Session) (bool, error) {
		return sess.LockBuzzer("p1", time.Now()), nil
	}); err != nil {
		t.Fatalf("TransactSession: %v", err)
	}
	got := waitFor(t, updates, func(sess *model.Session) bool { return sess != nil && sess.ActiveBuzzer != "" })
	if got.ActiveBuzzer != "p1" {
		t.Fatalf("expected p1, got %q", got.ActiveBuzzer)
	}
}

func testSubscribePlayers(t *testing.T, s Store) {
	ctx := context.Background()
	playingSession(t, s, "141414")

	updates := make(chan []*model.Player)
	done := make(chan struct{})
	unsub, err := s.SubscribePlayers(ctx, "141414", func(players []*model.Player) {
		select {
		case updates <- players:
		case <-done:
		}
	})
	if err != nil {
		t.Fatalf("SubscribePlayers: %v", err)
	}
	defer unsub()
	defer close(done)

	waitFor(t, updates, func(p []*model.Player) bool { return len(p) == 0 })

	if err := s.AddPlayer(ctx, "141414", &model.Player{ID: "p1", Name: "Ana", JoinedAt: time.Now()}); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	waitFor(t, updates, func(p []*model.Player) bool { return len(p) == 1 })

	if _, err := s.AddScore(ctx, "141414", "p1", 100); err != nil {
		t.Fatalf("AddScore: %v", err)
	}
	waitFor(t, updates, func(p []*model.Player) bool { return len(p) == 1 && p[0].Score == 100 })
}
