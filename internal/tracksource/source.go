// Package tracksource supplies candidate tracks for a session.
package tracksource

import (
	"context"

	"pulsequiz/internal/model"
)

const (
	MaxSearchResults   = 20
	MaxTrendingResults = 30
)

// Source looks up tracks. An empty result with a nil error means nothing
// matched.
type Source interface {
	Search(ctx context.Context, query string) ([]model.Track, error)
	Trending(ctx context.Context) ([]model.Track, error)
}
