package model

import (
	"sort"
	"time"
)

// Player represents a participant in a session
type Player struct {
	ID       string    `json:"id" bson:"_id"`
	Name     string    `json:"name" bson:"name"`
	Score    int       `json:"score" bson:"score"`
	JoinedAt time.Time `json:"joinedAt" bson:"joinedAt"`
}

// LeaderboardEntry represents a single ranked row of the scoreboard
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// RankPlayers sorts players in place: highest score first, ties by join order,
// then by id so the order is stable across stores.
func RankPlayers(players []*Player) {
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
}

// Leaderboard converts an already ranked list into entries.
func Leaderboard(players []*Player) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = LeaderboardEntry{
			Rank:     i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		}
	}
	return entries
}

// PlayerJoinResponse is returned when a player joins a session
type PlayerJoinResponse struct {
	PlayerID string   `json:"playerId"`
	Token    string   `json:"token"`
	Session  *Session `json:"session"`
}

// BuzzResponse is the outcome of one buzz attempt
type BuzzResponse struct {
	Won   bool   `json:"won"`
	Error string `json:"error,omitempty"`
}
