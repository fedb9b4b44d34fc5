package tracksource

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"pulsequiz/internal/model"
)

var defaultTracks = []model.Track{
	{ID: "track_1", ExternalMediaID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up", Artist: "Rick Astley"},
	{ID: "track_2", ExternalMediaID: "kJQP7kiw5Fk", Title: "Despacito", Artist: "Luis Fonsi ft. Daddy Yankee"},
	{ID: "track_3", ExternalMediaID: "9bZkp7q19f0", Title: "Gangnam Style", Artist: "PSY"},
	{ID: "track_4", ExternalMediaID: "OPf0YbXqDm0", Title: "Uptown Funk", Artist: "Mark Ronson ft. Bruno Mars"},
	{ID: "track_5", ExternalMediaID: "RgKAFK5djSk", Title: "Waka Waka", Artist: "Shakira"},
}

// DefaultPlaylist returns a copy of the built-in five-track playlist.
func DefaultPlaylist() []model.Track {
	return append([]model.Track(nil), defaultTracks...)
}

// Catalog is a fixed in-memory track list, used when no API key is configured.
type Catalog struct {
	tracks []model.Track
}

// NewCatalog creates a catalog over tracks, or the default playlist when
// tracks is empty.
func NewCatalog(tracks []model.Track) *Catalog {
	if len(tracks) == 0 {
		tracks = DefaultPlaylist()
	}
	return &Catalog{tracks: tracks}
}

// Search matches query case-insensitively against title and artist.
func (c *Catalog) Search(ctx context.Context, query string) ([]model.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	matches := lo.Filter(c.tracks, func(t model.Track, _ int) bool {
		return strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Artist), q)
	})
	if len(matches) > MaxSearchResults {
		matches = matches[:MaxSearchResults]
	}
	return matches, nil
}

func (c *Catalog) Trending(ctx context.Context) ([]model.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := min(len(c.tracks), MaxTrendingResults)
	return append([]model.Track(nil), c.tracks[:n]...), nil
}
