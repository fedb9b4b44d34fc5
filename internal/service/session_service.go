package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/eventbus"
	"pulsequiz/internal/metrics"
	"pulsequiz/internal/model"
	"pulsequiz/internal/store"
)

const (
	maxNameLength = 20
	pinAttempts   = 10
)

// SessionService handles session lifecycle and player joins
type SessionService struct {
	store  store.Store
	auth   *AuthService
	events eventbus.Publisher
	clock  clockwork.Clock
	newPIN func() (string, error)
}

// NewSessionService creates a new session service
func NewSessionService(st store.Store, auth *AuthService, events eventbus.Publisher, clock clockwork.Clock) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if events == nil {
		events = eventbus.Nop{}
	}
	return &SessionService{
		store:  st,
		auth:   auth,
		events: events,
		clock:  clock,
		newPIN: generatePIN,
	}
}

// CreateSession creates a waiting session, optionally with a preset playlist,
// and returns it with the host token.
func (s *SessionService) CreateSession(ctx context.Context, playlist []model.Track) (*model.CreateSessionResponse, error) {
	var session *model.Session
	for attempt := 0; attempt < pinAttempts; attempt++ {
		pin, err := s.newPIN()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session PIN: %w", err)
		}
		candidate := model.NewSession(pin, playlist, s.clock.Now().UTC())
		err = s.store.CreateSession(ctx, candidate)
		if errors.Is(err, store.ErrSessionExists) {
			log.Debug().Str("pin", pin).Msg("session PIN collision, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		session = candidate
		break
	}
	if session == nil {
		return nil, ErrPINExhausted
	}

	token, err := s.auth.GenerateHostToken(session.PIN)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	stored, err := s.store.GetSession(ctx, session.PIN)
	if err == nil && stored != nil {
		session = stored
	}

	metrics.SessionsCreated.Inc()
	eventbus.Emit(ctx, s.events, eventbus.Event{
		Type:       eventbus.SessionCreated,
		PIN:        session.PIN,
		Data:       map[string]any{"playlistLength": len(session.Playlist)},
		OccurredAt: s.clock.Now().UTC(),
	})
	log.Info().Str("pin", session.PIN).Int("tracks", len(session.Playlist)).Msg("session created")

	return &model.CreateSessionResponse{
		PIN:       session.PIN,
		HostToken: token,
		Session:   session,
	}, nil
}

// GetSession returns the session or store.ErrSessionNotFound
func (s *SessionService) GetSession(ctx context.Context, pin string) (*model.Session, error) {
	session, err := s.store.GetSession(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, store.ErrSessionNotFound
	}
	return session, nil
}

// JoinSession adds a player under a display name and returns their token
func (s *SessionService) JoinSession(ctx context.Context, pin, name string) (*model.PlayerJoinResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	session, err := s.GetSession(ctx, pin)
	if err != nil {
		return nil, err
	}
	if session.Finished() {
		return nil, model.ErrSessionEnded
	}

	playerID := "p_" + uuid.NewString()
	token, err := s.auth.GeneratePlayerToken(pin, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	player := &model.Player{
		ID:       playerID,
		Name:     name,
		Score:    0,
		JoinedAt: s.clock.Now().UTC(),
	}
	if err := s.store.AddPlayer(ctx, pin, player); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add player: %w", err)
	}

	metrics.PlayersJoined.Inc()
	eventbus.Emit(ctx, s.events, eventbus.Event{
		Type:       eventbus.PlayerJoined,
		PIN:        pin,
		PlayerID:   playerID,
		Data:       map[string]any{"name": name},
		OccurredAt: player.JoinedAt,
	})
	log.Info().Str("pin", pin).Str("player_id", playerID).Msg("player joined")

	return &model.PlayerJoinResponse{
		PlayerID: playerID,
		Token:    token,
		Session:  session,
	}, nil
}

// GetPlayer returns a player of the session, or nil when absent
func (s *SessionService) GetPlayer(ctx context.Context, pin, playerID string) (*model.Player, error) {
	return s.store.GetPlayer(ctx, pin, playerID)
}

// Players returns the ranked player list
func (s *SessionService) Players(ctx context.Context, pin string) ([]*model.Player, error) {
	if _, err := s.GetSession(ctx, pin); err != nil {
		return nil, err
	}
	return s.store.ListPlayers(ctx, pin)
}

// Leaderboard returns ranked leaderboard entries for a session
func (s *SessionService) Leaderboard(ctx context.Context, pin string) ([]model.LeaderboardEntry, error) {
	players, err := s.Players(ctx, pin)
	if err != nil {
		return nil, err
	}
	return model.Leaderboard(players), nil
}

// generatePIN returns a random six-digit PIN
func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
