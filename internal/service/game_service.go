package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"pulsequiz/internal/eventbus"
	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
	"pulsequiz/internal/tracksource"
)

// GameService drives the session state machine. Every transition is one
// store transaction, and any track change clears the buzzer in the same write.
type GameService struct {
	store  store.Store
	source tracksource.Source
	events eventbus.Publisher
	clock  clockwork.Clock
}

// NewGameService creates a new game service
func NewGameService(st store.Store, source tracksource.Source, events eventbus.Publisher, clock clockwork.Clock) *GameService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if events == nil {
		events = eventbus.Nop{}
	}
	return &GameService{store: st, source: source, events: events, clock: clock}
}

// SelectTracks replaces the playlist and starts its first track
func (s *GameService) SelectTracks(ctx context.Context, pin string, tracks []model.Track) (*model.Session, error) {
	if len(tracks) == 0 {
		return nil, model.ErrNoTracks
	}
	return s.transition(ctx, pin, "select", func(session *model.Session) error {
		return session.SelectTracks(tracks)
	})
}

// SelectTrending picks one random trending track and starts it
func (s *GameService) SelectTrending(ctx context.Context, pin string) (*model.Session, error) {
	tracks, err := s.source.Trending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trending tracks: %w", err)
	}
	if len(tracks) == 0 {
		return nil, model.ErrNoTracks
	}
	pick := lo.Sample(tracks)
	return s.SelectTracks(ctx, pin, []model.Track{pick})
}

// Enqueue appends tracks to the playlist without touching the current round
func (s *GameService) Enqueue(ctx context.Context, pin string, tracks []model.Track) (*model.Session, error) {
	if len(tracks) == 0 {
		return nil, model.ErrNoTracks
	}
	return s.transition(ctx, pin, "enqueue", func(session *model.Session) error {
		return session.Enqueue(tracks)
	})
}

// TogglePause flips between playing and paused
func (s *GameService) TogglePause(ctx context.Context, pin string) (*model.Session, error) {
	return s.transition(ctx, pin, "pause", func(session *model.Session) error {
		return session.TogglePause()
	})
}

// Advance moves to the next track, ending the session after the last one
func (s *GameService) Advance(ctx context.Context, pin string) (*model.Session, error) {
	return s.transition(ctx, pin, "advance", func(session *model.Session) error {
		return session.Advance()
	})
}

// End moves the session to ended. Ending twice is not an error.
func (s *GameService) End(ctx context.Context, pin string) (*model.Session, error) {
	ended := model.SessionEnded
	if err := s.store.UpdateSession(ctx, pin, model.SessionPatch{State: &ended, ClearBuzzer: true}); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	s.emit(ctx, eventbus.SessionEnded, pin, nil)
	log.Info().Str("pin", pin).Msg("session ended")

	session, err := s.store.GetSession(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, store.ErrSessionNotFound
	}
	return session, nil
}

// transition applies apply to the session in one transaction and returns the
// committed state. Track-start and end events are emitted after commit.
func (s *GameService) transition(ctx context.Context, pin, action string, apply func(*model.Session) error) (*model.Session, error) {
	var (
		result    *model.Session
		prevIndex int
		prevState model.SessionState
	)
	err := s.store.TransactSession(ctx, pin, func(session *model.Session) (bool, error) {
		result = nil
		if session == nil {
			return false, store.ErrSessionNotFound
		}
		prevIndex, prevState = session.CurrentTrackIndex, session.State
		if err := apply(session); err != nil {
			return false, err
		}
		result = session.Clone()
		return true, nil
	})
	if err != nil {
		if isStateError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to %s: %w", action, err)
	}

	switch {
	case result.State == model.SessionEnded && prevState != model.SessionEnded:
		s.emit(ctx, eventbus.SessionEnded, pin, nil)
		log.Info().Str("pin", pin).Msg("playlist finished, session ended")
	case result.CurrentTrack != nil && (action == "select" || result.CurrentTrackIndex != prevIndex):
		s.emit(ctx, eventbus.TrackStarted, pin, map[string]any{
			"index":   result.CurrentTrackIndex,
			"trackId": result.CurrentTrack.ID,
		})
		log.Info().Str("pin", pin).Int("index", result.CurrentTrackIndex).Str("track", result.CurrentTrack.Title).Msg("track started")
	}
	return result, nil
}

func (s *GameService) emit(ctx context.Context, eventType, pin string, data map[string]any) {
	eventbus.Emit(ctx, s.events, eventbus.Event{
		Type:       eventType,
		PIN:        pin,
		Data:       data,
		OccurredAt: s.clock.Now().UTC(),
	})
}

func isStateError(err error) bool {
	return errors.Is(err, store.ErrSessionNotFound) ||
		errors.Is(err, model.ErrInvalidTransition) ||
		errors.Is(err, model.ErrSessionEnded) ||
		errors.Is(err, model.ErrNoTracks) ||
		errors.Is(err, ErrNoActiveBuzzer)
}
