package model

import (
	"errors"
	"fmt"
	"time"
)

type SessionState string

const (
	SessionWaiting SessionState = "waiting"
	SessionPlaying SessionState = "playing"
	SessionPaused  SessionState = "paused"
	SessionEnded   SessionState = "ended"
)

// Valid reports whether s is one of the known session states.
func (s SessionState) Valid() bool {
	switch s {
	case SessionWaiting, SessionPlaying, SessionPaused, SessionEnded:
		return true
	}
	return false
}

var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrSessionEnded      = errors.New("session has ended")
	ErrNoTracks          = errors.New("no tracks to play")
	ErrInvalidState      = errors.New("unknown session state")
)

// Session is the shared game record, keyed by PIN
type Session struct {
	PIN               string       `json:"pin" bson:"_id"`
	State             SessionState `json:"state" bson:"state"`
	CurrentTrack      *Track       `json:"currentTrack" bson:"currentTrack"`
	CurrentTrackIndex int          `json:"currentTrackIndex" bson:"currentTrackIndex"`
	Playlist          []Track      `json:"playlist" bson:"playlist"`
	ActiveBuzzer      string       `json:"activeBuzzer,omitempty" bson:"activeBuzzer"`
	BuzzerLockedAt    *time.Time   `json:"buzzerLockedAt,omitempty" bson:"buzzerLockedAt,omitempty"`
	CreatedAt         time.Time    `json:"createdAt" bson:"createdAt"`
	Version           int64        `json:"version" bson:"version"`
}

// NewSession returns a waiting session with an optional preset playlist.
func NewSession(pin string, playlist []Track, now time.Time) *Session {
	if playlist == nil {
		playlist = []Track{}
	}
	return &Session{
		PIN:               pin,
		State:             SessionWaiting,
		CurrentTrackIndex: -1,
		Playlist:          playlist,
		CreatedAt:         now,
	}
}

// Clone returns a deep copy so callers never share slices or pointers with a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		c.CurrentTrack = &t
	}
	if s.BuzzerLockedAt != nil {
		t := *s.BuzzerLockedAt
		c.BuzzerLockedAt = &t
	}
	c.Playlist = append([]Track(nil), s.Playlist...)
	return &c
}

// RoundOpen reports whether a buzz would currently be accepted.
func (s *Session) RoundOpen() bool {
	return s.State == SessionPlaying && s.ActiveBuzzer == ""
}

// LockBuzzer gives the round to playerID if it is open. It returns false and
// leaves s untouched otherwise.
func (s *Session) LockBuzzer(playerID string, at time.Time) bool {
	if !s.RoundOpen() {
		return false
	}
	s.ActiveBuzzer = playerID
	s.BuzzerLockedAt = &at
	return true
}

// ClearBuzzer reopens the round. It reports whether a lock was held.
func (s *Session) ClearBuzzer() bool {
	if s.ActiveBuzzer == "" && s.BuzzerLockedAt == nil {
		return false
	}
	s.ActiveBuzzer = ""
	s.BuzzerLockedAt = nil
	return true
}

// SelectTracks replaces the playlist and starts playing its first track.
func (s *Session) SelectTracks(tracks []Track) error {
	if s.State == SessionEnded {
		return ErrSessionEnded
	}
	if len(tracks) == 0 {
		return ErrNoTracks
	}
	s.Playlist = append([]Track(nil), tracks...)
	s.startTrack(0)
	return nil
}

// Enqueue appends tracks without touching the round in progress.
func (s *Session) Enqueue(tracks []Track) error {
	if s.State == SessionEnded {
		return ErrSessionEnded
	}
	if len(tracks) == 0 {
		return ErrNoTracks
	}
	s.Playlist = append(s.Playlist, tracks...)
	return nil
}

// TogglePause flips between playing and paused.
func (s *Session) TogglePause() error {
	switch s.State {
	case SessionPlaying:
		s.State = SessionPaused
	case SessionPaused:
		s.State = SessionPlaying
	case SessionEnded:
		return ErrSessionEnded
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Advance moves to the next playlist entry, or ends the session when the
// playlist is exhausted. Track fields keep the last played track on end.
func (s *Session) Advance() error {
	switch s.State {
	case SessionEnded:
		return ErrSessionEnded
	case SessionWaiting:
		if len(s.Playlist) == 0 {
			return ErrNoTracks
		}
	}

	next := s.CurrentTrackIndex + 1
	if next >= len(s.Playlist) {
		s.End()
		return nil
	}
	s.startTrack(next)
	return nil
}

// End moves the session to its terminal state.
func (s *Session) End() {
	s.State = SessionEnded
	s.ClearBuzzer()
}

// Finished reports whether no further track can be played.
func (s *Session) Finished() bool {
	return s.State == SessionEnded
}

func (s *Session) startTrack(index int) {
	t := s.Playlist[index]
	s.CurrentTrackIndex = index
	s.CurrentTrack = &t
	s.State = SessionPlaying
	s.ClearBuzzer()
}

// SessionPatch is a field-level partial update. Nil fields are left as stored.
type SessionPatch struct {
	State       *SessionState
	ClearBuzzer bool
}

// Apply writes the patch onto s.
func (p SessionPatch) Apply(s *Session) {
	if p.State != nil {
		s.State = *p.State
	}
	if p.ClearBuzzer {
		s.ClearBuzzer()
	}
}

// Validate rejects patches that would store an unknown state.
func (p SessionPatch) Validate() error {
	if p.State != nil && !p.State.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, *p.State)
	}
	return nil
}

// Empty reports whether the patch would change nothing.
func (p SessionPatch) Empty() bool {
	return p.State == nil && !p.ClearBuzzer
}
