// Package app assembles the server from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pulsequiz/internal/config"
	"pulsequiz/internal/eventbus"
	"pulsequiz/internal/service"
	"pulsequiz/internal/store"
	"pulsequiz/internal/tracksource"
	"pulsequiz/internal/transport/rest"
	"pulsequiz/internal/transport/ws"
)

const (
	connectTimeout  = 10 * time.Second
	janitorInterval = time.Minute
)

type App struct {
	Config config.Config
	Clock  clockwork.Clock

	Store  store.Store
	Events eventbus.Publisher
	Tracks tracksource.Source
	redis  *redis.Client

	Auth     *service.AuthService
	Sessions *service.SessionService
	Buzzer   *service.BuzzerService
	Game     *service.GameService
	Scoring  *service.ScoringService
	Fanout   *service.Fanout
	Hub      *ws.Hub

	stopJanitor context.CancelFunc
}

// New connects the configured backends and wires the services together.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg, Clock: clockwork.NewRealClock()}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.Events = eventbus.Nop{}
	if cfg.NATSURL != "" {
		pub, err := eventbus.Connect(cfg.NATSURL, cfg.NATSPrefix)
		if err != nil {
			a.Store.Close()
			return nil, err
		}
		a.Events = pub
		log.Info().Str("url", cfg.NATSURL).Str("prefix", cfg.NATSPrefix).Msg("relaying game events to NATS")
	}

	a.Tracks = a.trackSource()

	a.Hub = ws.NewHub()
	a.Auth = service.NewAuthService(cfg.Secret(), cfg.TokenTTL, a.Clock)
	a.Sessions = service.NewSessionService(a.Store, a.Auth, a.Events, a.Clock)
	a.Buzzer = service.NewBuzzerService(a.Store, a.Events, a.Clock)
	a.Game = service.NewGameService(a.Store, a.Tracks, a.Events, a.Clock)
	a.Scoring = service.NewScoringService(a.Store, a.Events, a.Clock, cfg.Points)
	a.Fanout = service.NewFanout(a.Store, a.Hub)

	// Inject broadcaster (Hub implements service.Broadcaster)
	a.Scoring.SetBroadcaster(a.Hub)

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.Store {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return fmt.Errorf("failed to ping Redis: %w", err)
		}
		a.redis = rdb
		a.Store = store.NewRedisStore(rdb, cfg.SessionTTL)
		log.Info().Str("addr", cfg.RedisAddress()).Msg("connected to Redis")

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(context.Background())
			return fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		ms := store.NewMongoStore(client, cfg.MongoDatabase, cfg.SessionTTL)
		if err := ms.EnsureIndexes(ctx); err != nil {
			ms.Close()
			return err
		}
		a.Store = ms
		log.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")

	default:
		mem := store.NewMemoryStore(a.Clock, cfg.SessionTTL)
		janitorCtx, stop := context.WithCancel(context.Background())
		a.stopJanitor = stop
		go mem.RunJanitor(janitorCtx, janitorInterval)
		a.Store = mem
		log.Info().Dur("session_ttl", cfg.SessionTTL).Msg("using in-memory store")
	}
	return nil
}

// trackSource picks YouTube when a key is configured, the built-in catalog
// otherwise, and adds the Redis cache when Redis is available.
func (a *App) trackSource() tracksource.Source {
	var src tracksource.Source
	if a.Config.YouTubeEnabled() {
		src = tracksource.NewYouTubeClient(a.Config.YouTubeAPIKey, a.Config.YouTubeRegion, tracksource.WithClock(a.Clock))
		log.Info().Str("region", a.Config.YouTubeRegion).Msg("using YouTube track source")
	} else {
		src = tracksource.NewCatalog(nil)
		log.Info().Msg("YouTube API key not set, using built-in catalog")
	}
	if a.redis != nil && a.Config.TrackCacheTTL > 0 {
		src = tracksource.NewCachedSource(src, a.redis, a.Config.TrackCacheTTL)
	}
	return src
}

// Router builds the HTTP handler for all endpoints.
func (a *App) Router(logger zerolog.Logger) http.Handler {
	return rest.NewRouter(&rest.Container{
		AuthService:    a.Auth,
		SessionService: a.Sessions,
		BuzzerService:  a.Buzzer,
		GameService:    a.Game,
		ScoringService: a.Scoring,
		Fanout:         a.Fanout,
		Tracks:         a.Tracks,
		WSHub:          a.Hub,
		Logger:         logger,
		AllowedOrigins: a.Config.AllowedOrigins,
		PublicURL:      a.Config.PublicURL,
	})
}

// Close releases subscriptions, client connections and backends.
func (a *App) Close() error {
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
	a.Fanout.Close()
	a.Hub.Close()
	return errors.Join(a.Events.Close(), a.Store.Close())
}
