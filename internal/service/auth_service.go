package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"pulsequiz/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates session-scoped capability tokens. A host
// token proves its bearer created the session; a player token proves its
// bearer joined it.
type AuthService struct {
	jwtSecret []byte
	ttl       time.Duration
	clock     clockwork.Clock
}

// NewAuthService creates a new auth service
func NewAuthService(secret []byte, ttl time.Duration, clock clockwork.Clock) *AuthService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuthService{
		jwtSecret: secret,
		ttl:       ttl,
		clock:     clock,
	}
}

func (s *AuthService) registered(subject string) jwt.RegisteredClaims {
	now := s.clock.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
}

func (s *AuthService) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *AuthService) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// GenerateHostToken creates the host token for a session
func (s *AuthService) GenerateHostToken(pin string) (string, error) {
	return s.sign(&model.HostClaims{
		PIN:              pin,
		RegisteredClaims: s.registered("host:" + pin),
	})
}

// ValidateHostToken validates a host JWT and returns claims
func (s *AuthService) ValidateHostToken(tokenString string) (*model.HostClaims, error) {
	claims := &model.HostClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.PIN == "" || claims.Subject != "host:"+claims.PIN {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GeneratePlayerToken creates a session-scoped token for a player
func (s *AuthService) GeneratePlayerToken(pin, playerID string) (string, error) {
	return s.sign(&model.PlayerClaims{
		PIN:              pin,
		PlayerID:         playerID,
		RegisteredClaims: s.registered("player:" + playerID),
	})
}

// ValidatePlayerToken validates a player JWT and returns claims
func (s *AuthService) ValidatePlayerToken(tokenString string) (*model.PlayerClaims, error) {
	claims := &model.PlayerClaims{}
	if err := s.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.PIN == "" || claims.PlayerID == "" || claims.Subject != "player:"+claims.PlayerID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
