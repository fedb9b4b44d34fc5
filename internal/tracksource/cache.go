package tracksource

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/metrics"
	"pulsequiz/internal/model"
)

// CachedSource is a read-through Redis cache in front of another Source.
// Cache failures fall through to the wrapped source.
type CachedSource struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
}

// NewCachedSource creates a cache around next
func NewCachedSource(next Source, client *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl}
}

func (c *CachedSource) searchKey(query string) string {
	return "tracks:search:" + strings.ToLower(strings.TrimSpace(query))
}

func (c *CachedSource) trendingKey() string {
	return "tracks:trending"
}

func (c *CachedSource) Search(ctx context.Context, query string) ([]model.Track, error) {
	return c.cached(ctx, "search", c.searchKey(query), func() ([]model.Track, error) {
		return c.next.Search(ctx, query)
	})
}

func (c *CachedSource) Trending(ctx context.Context) ([]model.Track, error) {
	return c.cached(ctx, "trending", c.trendingKey(), func() ([]model.Track, error) {
		return c.next.Trending(ctx)
	})
}

func (c *CachedSource) cached(ctx context.Context, kind, key string, load func() ([]model.Track, error)) ([]model.Track, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var tracks []model.Track
		if err := json.Unmarshal(data, &tracks); err == nil {
			metrics.TrackSourceRequests.WithLabelValues(kind, "hit").Inc()
			return tracks, nil
		}
		log.Warn().Str("key", key).Msg("discarding undecodable cached tracks")
	case err != redis.Nil:
		log.Warn().Err(err).Str("key", key).Msg("track cache unavailable")
	}

	tracks, err := load()
	if err != nil {
		metrics.TrackSourceRequests.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	metrics.TrackSourceRequests.WithLabelValues(kind, "miss").Inc()

	if data, err := json.Marshal(tracks); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache tracks")
		}
	}
	return tracks, nil
}
