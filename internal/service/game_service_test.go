package service

import (
	"context"
	"errors"
	"testing"

	"pulsequiz/internal/eventbus"
	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
	"pulsequiz/internal/tracksource"
)

func TestSelectTracksResetsRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	f.buzzer.AttemptBuzz(ctx, pin, "p1")

	picked := []model.Track{{ID: "x", ExternalMediaID: "abc", Title: "Song"}}
	s, err := f.game.SelectTracks(ctx, pin, picked)
	if err != nil {
		t.Fatalf("SelectTracks: %v", err)
	}
	if s.State != model.SessionPlaying || s.CurrentTrackIndex != 0 || s.CurrentTrack.ID != "x" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.ActiveBuzzer != "" || s.BuzzerLockedAt != nil {
		t.Fatal("selecting tracks must clear the buzzer")
	}
	if len(s.Playlist) != 1 {
		t.Fatalf("expected playlist replaced, got %d tracks", len(s.Playlist))
	}

	if _, err := f.game.SelectTracks(ctx, pin, nil); !errors.Is(err, model.ErrNoTracks) {
		t.Fatalf("expected ErrNoTracks, got %v", err)
	}
}

func TestAdvanceThroughPlaylist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	playlist := tracksource.DefaultPlaylist()

	for i := 1; i < len(playlist); i++ {
		f.buzzer.AttemptBuzz(ctx, pin, "p1")
		s, err := f.game.Advance(ctx, pin)
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if s.CurrentTrackIndex != i || s.CurrentTrack.ID != playlist[i].ID {
			t.Fatalf("expected track %d, got %+v", i, s.CurrentTrack)
		}
		if s.ActiveBuzzer != "" || s.State != model.SessionPlaying {
			t.Fatalf("advance must reopen the round, got %+v", s)
		}
	}

	f.buzzer.AttemptBuzz(ctx, pin, "p1")
	s, err := f.game.Advance(ctx, pin)
	if err != nil {
		t.Fatalf("Advance past end: %v", err)
	}
	if s.State != model.SessionEnded || s.ActiveBuzzer != "" {
		t.Fatalf("expected ended with open lock, got %+v", s)
	}
	if s.CurrentTrack == nil || s.CurrentTrack.ID != playlist[len(playlist)-1].ID {
		t.Fatalf("track fields must keep the last played track, got %+v", s.CurrentTrack)
	}
	if won, _ := f.buzzer.AttemptBuzz(ctx, pin, "p2"); won {
		t.Fatal("buzz accepted after playlist exhaustion")
	}
	if _, err := f.game.Advance(ctx, pin); !errors.Is(err, model.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}

	types := f.events.types()
	if types[len(types)-1] != eventbus.SessionEnded {
		t.Fatalf("expected session.ended last, got %v", types)
	}
}

func TestAdvanceFromWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, _ := f.session.CreateSession(ctx, nil)
	if _, err := f.game.Advance(ctx, empty.PIN); !errors.Is(err, model.ErrNoTracks) {
		t.Fatalf("expected ErrNoTracks, got %v", err)
	}
	if s := f.get(t, empty.PIN); s.State != model.SessionWaiting {
		t.Fatalf("failed advance must not change state, got %s", s.State)
	}

	preset, _ := f.session.CreateSession(ctx, tracksource.DefaultPlaylist())
	s, err := f.game.Advance(ctx, preset.PIN)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if s.State != model.SessionPlaying || s.CurrentTrackIndex != 0 {
		t.Fatalf("expected first track playing, got %+v", s)
	}
}

func TestTogglePause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	waiting, _ := f.session.CreateSession(ctx, nil)
	if _, err := f.game.TogglePause(ctx, waiting.PIN); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	pin := f.playing(t)
	f.buzzer.AttemptBuzz(ctx, pin, "p1")

	s, err := f.game.TogglePause(ctx, pin)
	if err != nil || s.State != model.SessionPaused {
		t.Fatalf("expected paused, got %v %v", s, err)
	}
	if s.ActiveBuzzer != "p1" {
		t.Fatal("pausing must not touch the buzzer")
	}
	s, err = f.game.TogglePause(ctx, pin)
	if err != nil || s.State != model.SessionPlaying || s.ActiveBuzzer != "p1" {
		t.Fatalf("expected playing with lock kept, got %+v %v", s, err)
	}

	f.game.End(ctx, pin)
	if _, err := f.game.TogglePause(ctx, pin); !errors.Is(err, model.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestEnqueueKeepsRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	f.buzzer.AttemptBuzz(ctx, pin, "p1")

	s, err := f.game.Enqueue(ctx, pin, []model.Track{{ID: "extra"}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(s.Playlist) != 6 || s.CurrentTrackIndex != 0 || s.ActiveBuzzer != "p1" {
		t.Fatalf("unexpected session after enqueue %+v", s)
	}
}

func TestSelectTrending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp, _ := f.session.CreateSession(ctx, nil)

	s, err := f.game.SelectTrending(ctx, resp.PIN)
	if err != nil {
		t.Fatalf("SelectTrending: %v", err)
	}
	if len(s.Playlist) != 1 || s.State != model.SessionPlaying {
		t.Fatalf("expected a single trending track playing, got %+v", s)
	}

	f.game.source = stubSource{}
	before := f.get(t, resp.PIN)
	if _, err := f.game.SelectTrending(ctx, resp.PIN); !errors.Is(err, model.ErrNoTracks) {
		t.Fatalf("expected ErrNoTracks, got %v", err)
	}
	if after := f.get(t, resp.PIN); after.Version != before.Version {
		t.Fatal("empty trending result must leave the session unchanged")
	}
}

func TestEndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := f.playing(t)
	f.buzzer.AttemptBuzz(ctx, pin, "p1")

	for i := 0; i < 2; i++ {
		s, err := f.game.End(ctx, pin)
		if err != nil {
			t.Fatalf("End #%d: %v", i+1, err)
		}
		if s.State != model.SessionEnded || s.ActiveBuzzer != "" {
			t.Fatalf("unexpected session %+v", s)
		}
	}

	if _, err := f.game.End(ctx, "000000"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestTransitionsOnMissingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.game.Advance(ctx, "000000"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.game.TogglePause(ctx, "000000"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
