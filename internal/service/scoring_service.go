package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/eventbus"
	"pulsequiz/internal/metrics"
	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
)

// DefaultPoints is awarded for a correct answer unless configured otherwise
const DefaultPoints = 100

// RoundResult tells a player how the host judged their buzz
type RoundResult struct {
	Correct bool `json:"correct"`
	Points  int  `json:"points"`
	Score   int  `json:"score,omitempty"`
}

// ScoringService resolves rounds: it awards points and reopens the buzzer
type ScoringService struct {
	store       store.Store
	events      eventbus.Publisher
	clock       clockwork.Clock
	points      int
	broadcaster Broadcaster
}

// NewScoringService creates a new scoring service
func NewScoringService(st store.Store, events eventbus.Publisher, clock clockwork.Clock, points int) *ScoringService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if events == nil {
		events = eventbus.Nop{}
	}
	if points <= 0 {
		points = DefaultPoints
	}
	return &ScoringService{store: st, events: events, clock: clock, points: points}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *ScoringService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// AwardPoints adds points to a player and reopens the round. A player that
// no longer exists is skipped; the round still reopens.
func (s *ScoringService) AwardPoints(ctx context.Context, pin, playerID string, points int) (*model.Player, error) {
	if points <= 0 {
		return nil, ErrInvalidPoints
	}

	player, err := s.store.AddScore(ctx, pin, playerID, points)
	if err != nil {
		return nil, fmt.Errorf("failed to award points: %w", err)
	}
	if player == nil {
		log.Warn().Str("pin", pin).Str("player_id", playerID).Msg("award for unknown player skipped")
	}

	if err := s.clearBuzzer(ctx, pin); err != nil {
		return player, err
	}

	metrics.RoundsResolved.WithLabelValues("correct").Inc()
	s.emit(ctx, pin, playerID, map[string]any{"correct": true, "points": points})
	if player != nil {
		s.notify(pin, playerID, RoundResult{Correct: true, Points: points, Score: player.Score})
		log.Info().Str("pin", pin).Str("player_id", playerID).Int("points", points).Int("score", player.Score).Msg("points awarded")
	}
	return player, nil
}

// RejectBuzz reopens the round without scoring. It is a no-op when the round
// is already open.
func (s *ScoringService) RejectBuzz(ctx context.Context, pin string) error {
	return s.clearBuzzer(ctx, pin)
}

// ResolveCorrect awards the configured points to the current buzzer holder.
// Only the call that clears the lock scores, so a buzz pays out once.
func (s *ScoringService) ResolveCorrect(ctx context.Context, pin string) (*model.Player, error) {
	holder, err := s.takeBuzzer(ctx, pin)
	if err != nil {
		return nil, err
	}

	// The lock is already released; the award must not be lost to a
	// cancelled request.
	ctx = context.WithoutCancel(ctx)
	player, err := s.store.AddScore(ctx, pin, holder, s.points)
	if err != nil {
		return nil, fmt.Errorf("failed to award points: %w", err)
	}

	metrics.RoundsResolved.WithLabelValues("correct").Inc()
	s.emit(ctx, pin, holder, map[string]any{"correct": true, "points": s.points})
	if player == nil {
		log.Warn().Str("pin", pin).Str("player_id", holder).Msg("award for unknown player skipped")
		return nil, nil
	}
	s.notify(pin, holder, RoundResult{Correct: true, Points: s.points, Score: player.Score})
	log.Info().Str("pin", pin).Str("player_id", holder).Int("points", s.points).Int("score", player.Score).Msg("points awarded")
	return player, nil
}

// ResolveIncorrect rejects the current buzzer holder's answer
func (s *ScoringService) ResolveIncorrect(ctx context.Context, pin string) error {
	holder, err := s.takeBuzzer(ctx, pin)
	if err != nil {
		return err
	}

	metrics.RoundsResolved.WithLabelValues("incorrect").Inc()
	s.emit(ctx, pin, holder, map[string]any{"correct": false})
	s.notify(pin, holder, RoundResult{Correct: false})
	log.Info().Str("pin", pin).Str("player_id", holder).Msg("buzz rejected")
	return nil
}

// takeBuzzer clears the lock and returns who held it, in one transaction.
func (s *ScoringService) takeBuzzer(ctx context.Context, pin string) (string, error) {
	var holder string
	err := s.store.TransactSession(ctx, pin, func(session *model.Session) (bool, error) {
		holder = ""
		if session == nil {
			return false, store.ErrSessionNotFound
		}
		holder = session.ActiveBuzzer
		if holder == "" {
			return false, ErrNoActiveBuzzer
		}
		return session.ClearBuzzer(), nil
	})
	if err != nil {
		if isStateError(err) {
			return "", err
		}
		return "", fmt.Errorf("failed to resolve buzz: %w", err)
	}
	return holder, nil
}

func (s *ScoringService) clearBuzzer(ctx context.Context, pin string) error {
	err := s.store.TransactSession(ctx, pin, func(session *model.Session) (bool, error) {
		if session == nil {
			return false, store.ErrSessionNotFound
		}
		return session.ClearBuzzer(), nil
	})
	if errors.Is(err, store.ErrSessionNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to clear buzzer: %w", err)
	}
	return nil
}

func (s *ScoringService) emit(ctx context.Context, pin, playerID string, data map[string]any) {
	eventbus.Emit(ctx, s.events, eventbus.Event{
		Type:       eventbus.RoundResolved,
		PIN:        pin,
		PlayerID:   playerID,
		Data:       data,
		OccurredAt: s.clock.Now().UTC(),
	})
}

func (s *ScoringService) notify(pin, playerID string, result RoundResult) {
	if s.broadcaster != nil && playerID != "" {
		s.broadcaster.BroadcastToPlayer(pin, playerID, "round_result", result)
	}
}
