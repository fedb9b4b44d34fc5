package tracksource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/model"
)

const (
	defaultYouTubeURL = "https://www.googleapis.com/youtube/v3"
	musicCategoryID   = "10"
)

var errRetryable = errors.New("retryable YouTube response")

// YouTubeClient wraps the YouTube Data API v3
type YouTubeClient struct {
	baseURL     string
	apiKey      string
	region      string
	httpClient  *http.Client
	clock       clockwork.Clock
	maxRetries  int
	baseBackoff time.Duration
}

// YouTubeOption configures a YouTubeClient
type YouTubeOption func(*YouTubeClient)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) YouTubeOption {
	return func(c *YouTubeClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) YouTubeOption {
	return func(c *YouTubeClient) { c.httpClient = hc }
}

func WithClock(clock clockwork.Clock) YouTubeOption {
	return func(c *YouTubeClient) { c.clock = clock }
}

// WithRetry sets the attempt count and the first backoff delay, which
// doubles on every retry.
func WithRetry(maxRetries int, baseBackoff time.Duration) YouTubeOption {
	return func(c *YouTubeClient) {
		c.maxRetries = maxRetries
		c.baseBackoff = baseBackoff
	}
}

// NewYouTubeClient creates a new YouTube API client
func NewYouTubeClient(apiKey, region string, opts ...YouTubeOption) *YouTubeClient {
	c := &YouTubeClient{
		baseURL: defaultYouTubeURL,
		apiKey:  apiKey,
		region:  region,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		clock:       clockwork.NewRealClock(),
		maxRetries:  4,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet ytSnippet `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID             string    `json:"id"`
		Snippet        ytSnippet `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytSnippet struct {
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle"`
	Thumbnails   map[string]struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (s ytSnippet) thumbnail() string {
	for _, size := range []string{"high", "medium", "default"} {
		if t, ok := s.Thumbnails[size]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}

func (s ytSnippet) track(videoID, duration string) model.Track {
	return model.Track{
		ID:              videoID,
		ExternalMediaID: videoID,
		Title:           s.Title,
		Artist:          s.ChannelTitle,
		ThumbnailRef:    s.thumbnail(),
		DurationLabel:   formatDuration(duration),
	}
}

// Search finds music videos matching query, with durations filled in from a
// second videos lookup.
func (c *YouTubeClient) Search(ctx context.Context, query string) ([]model.Track, error) {
	params := url.Values{
		"part":            {"snippet"},
		"type":            {"video"},
		"videoCategoryId": {musicCategoryID},
		"maxResults":      {strconv.Itoa(MaxSearchResults)},
		"q":               {query},
	}
	var search ytSearchResponse
	if err := c.get(ctx, "/search", params, &search); err != nil {
		return nil, err
	}
	if len(search.Items) == 0 {
		return []model.Track{}, nil
	}

	ids := make([]string, 0, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	durations, err := c.durations(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load video durations")
	}

	tracks := make([]model.Track, 0, len(ids))
	for _, item := range search.Items {
		if item.ID.VideoID == "" {
			continue
		}
		tracks = append(tracks, item.Snippet.track(item.ID.VideoID, durations[item.ID.VideoID]))
	}
	return tracks, nil
}

// Trending returns the most popular music videos for the configured region.
func (c *YouTubeClient) Trending(ctx context.Context) ([]model.Track, error) {
	params := url.Values{
		"part":            {"snippet,contentDetails"},
		"chart":           {"mostPopular"},
		"videoCategoryId": {musicCategoryID},
		"maxResults":      {strconv.Itoa(MaxTrendingResults)},
	}
	if c.region != "" {
		params.Set("regionCode", c.region)
	}
	var videos ytVideosResponse
	if err := c.get(ctx, "/videos", params, &videos); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, len(videos.Items))
	for _, item := range videos.Items {
		tracks = append(tracks, item.Snippet.track(item.ID, item.ContentDetails.Duration))
	}
	return tracks, nil
}

func (c *YouTubeClient) durations(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	params := url.Values{
		"part": {"contentDetails"},
		"id":   {strings.Join(ids, ",")},
	}
	var videos ytVideosResponse
	if err := c.get(ctx, "/videos", params, &videos); err != nil {
		return out, err
	}
	for _, item := range videos.Items {
		out[item.ID] = item.ContentDetails.Duration
	}
	return out, nil
}

// get performs a GET with retry on rate limiting and server errors
func (c *YouTubeClient) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseBackoff
			log.Debug().Str("path", path).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying YouTube request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.clock.After(backoff):
			}
		}

		body, err := c.do(ctx, endpoint)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to parse YouTube response: %w", err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !errors.Is(err, errRetryable) {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *YouTubeClient) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRetryable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("YouTube API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
