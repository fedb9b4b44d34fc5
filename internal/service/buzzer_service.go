package service

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/eventbus"
	"pulsequiz/internal/metrics"
	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
)

// BuzzerService arbitrates buzz attempts. The store orders concurrent
// attempts; the first committed one wins the round.
type BuzzerService struct {
	store  store.Store
	events eventbus.Publisher
	clock  clockwork.Clock
}

// NewBuzzerService creates a new buzzer service
func NewBuzzerService(st store.Store, events eventbus.Publisher, clock clockwork.Clock) *BuzzerService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if events == nil {
		events = eventbus.Nop{}
	}
	return &BuzzerService{store: st, events: events, clock: clock}
}

// AttemptBuzz tries to take the round for playerID. It returns false without
// error when the session is missing, not playing, or already locked.
func (s *BuzzerService) AttemptBuzz(ctx context.Context, pin, playerID string) (bool, error) {
	var won bool
	err := s.store.TransactSession(ctx, pin, func(session *model.Session) (bool, error) {
		won = false
		if session == nil {
			return false, nil
		}
		won = session.LockBuzzer(playerID, s.clock.Now().UTC())
		return won, nil
	})
	if err != nil {
		metrics.BuzzAttempts.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("pin", pin).Str("player_id", playerID).Msg("buzz attempt failed")
		return false, fmt.Errorf("failed to record buzz: %w", err)
	}

	if !won {
		metrics.BuzzAttempts.WithLabelValues("rejected").Inc()
		log.Debug().Str("pin", pin).Str("player_id", playerID).Str("outcome", "rejected").Msg("buzz")
		return false, nil
	}

	metrics.BuzzAttempts.WithLabelValues("won").Inc()
	log.Info().Str("pin", pin).Str("player_id", playerID).Str("outcome", "won").Msg("buzz")
	eventbus.Emit(ctx, s.events, eventbus.Event{
		Type:       eventbus.BuzzWon,
		PIN:        pin,
		PlayerID:   playerID,
		OccurredAt: s.clock.Now().UTC(),
	})
	return true, nil
}
