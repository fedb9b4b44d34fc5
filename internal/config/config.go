// Package config holds the server settings. Values come from flags, then
// PULSEQUIZ_* environment variables, then defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "PULSEQUIZ"

// Store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

type Config struct {
	Bind        string
	Port        int
	Environment string

	Store         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MongoURI      string
	MongoDatabase string
	SessionTTL    time.Duration

	JWTSecret string
	TokenTTL  time.Duration
	Points    int

	YouTubeAPIKey  string
	YouTubeRegion  string
	TrackCacheTTL  time.Duration
	NATSURL        string
	NATSPrefix     string
	AllowedOrigins []string
	PublicURL      string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Bind:           "0.0.0.0",
		Port:           8080,
		Environment:    "development",
		Store:          StoreMemory,
		RedisAddr:      "localhost:6379",
		MongoURI:       "mongodb://localhost:27017",
		MongoDatabase:  "pulsequiz",
		SessionTTL:     24 * time.Hour,
		TokenTTL:       24 * time.Hour,
		Points:         100,
		YouTubeRegion:  "US",
		TrackCacheTTL:  10 * time.Minute,
		NATSPrefix:     "pulsequiz",
		AllowedOrigins: []string{"*"},
	}
}

// Validate checks settings that cannot be fixed by a default.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	switch c.Store {
	case StoreMemory, StoreRedis, StoreMongo:
	default:
		return fmt.Errorf("unknown store backend %q (want memory, redis or mongo)", c.Store)
	}
	if c.Store == StoreMongo && c.MongoDatabase == "" {
		return errors.New("--mongo-database is required for the mongo store")
	}
	if c.JWTSecret == "" && c.Environment != "development" {
		return errors.New("--jwt-secret is required outside development")
	}
	if c.Points <= 0 {
		return fmt.Errorf("points per correct answer must be positive: %d", c.Points)
	}
	if c.SessionTTL < 0 || c.TokenTTL <= 0 || c.TrackCacheTTL < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// RedisAddress strips a redis:// scheme if one was given.
func (c *Config) RedisAddress() string {
	return strings.TrimPrefix(c.RedisAddr, "redis://")
}

// YouTubeEnabled reports whether the YouTube track source can be used.
func (c *Config) YouTubeEnabled() bool {
	return c.YouTubeAPIKey != ""
}

// Secret returns the JWT signing key, with a fixed key in development.
func (c *Config) Secret() []byte {
	if c.JWTSecret == "" {
		return []byte("pulsequiz-dev-secret")
	}
	return []byte(c.JWTSecret)
}

// RegisterFlags binds every setting to a flag on fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&c.Bind, "bind", "b", d.Bind, "address to bind to (env: PULSEQUIZ_BIND)")
	fs.IntVarP(&c.Port, "port", "p", d.Port, "port to listen on (env: PULSEQUIZ_PORT)")
	fs.StringVar(&c.Environment, "env", d.Environment, "development or production (env: PULSEQUIZ_ENV)")

	fs.StringVar(&c.Store, "store", d.Store, "session store: memory, redis or mongo (env: PULSEQUIZ_STORE)")
	fs.StringVar(&c.RedisAddr, "redis-addr", d.RedisAddr, "redis address (env: PULSEQUIZ_REDIS_ADDR)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password (env: PULSEQUIZ_REDIS_PASSWORD)")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number (env: PULSEQUIZ_REDIS_DB)")
	fs.StringVar(&c.MongoURI, "mongo-uri", d.MongoURI, "mongodb connection string (env: PULSEQUIZ_MONGO_URI)")
	fs.StringVar(&c.MongoDatabase, "mongo-database", d.MongoDatabase, "mongodb database (env: PULSEQUIZ_MONGO_DATABASE)")
	fs.DurationVar(&c.SessionTTL, "session-ttl", d.SessionTTL, "lifetime of a session, 0 keeps sessions forever (env: PULSEQUIZ_SESSION_TTL)")

	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "key used to sign host and player tokens (env: PULSEQUIZ_JWT_SECRET)")
	fs.DurationVar(&c.TokenTTL, "token-ttl", d.TokenTTL, "lifetime of host and player tokens (env: PULSEQUIZ_TOKEN_TTL)")
	fs.IntVar(&c.Points, "points", d.Points, "points for a correct answer (env: PULSEQUIZ_POINTS)")

	fs.StringVar(&c.YouTubeAPIKey, "youtube-api-key", "", "YouTube Data API key, built-in catalog when empty (env: PULSEQUIZ_YOUTUBE_API_KEY)")
	fs.StringVar(&c.YouTubeRegion, "youtube-region", d.YouTubeRegion, "region for trending tracks (env: PULSEQUIZ_YOUTUBE_REGION)")
	fs.DurationVar(&c.TrackCacheTTL, "track-cache-ttl", d.TrackCacheTTL, "redis cache lifetime of track lookups, 0 disables (env: PULSEQUIZ_TRACK_CACHE_TTL)")
	fs.StringVar(&c.NATSURL, "nats-url", "", "NATS server for game events, disabled when empty (env: PULSEQUIZ_NATS_URL)")
	fs.StringVar(&c.NATSPrefix, "nats-prefix", d.NATSPrefix, "subject prefix for game events (env: PULSEQUIZ_NATS_PREFIX)")
	fs.StringSliceVar(&c.AllowedOrigins, "cors-origins", d.AllowedOrigins, "allowed CORS and WebSocket origins (env: PULSEQUIZ_CORS_ORIGINS)")
	fs.StringVar(&c.PublicURL, "public-url", "", "base URL used in join links (env: PULSEQUIZ_PUBLIC_URL)")
}

// ApplyEnv overlays PULSEQUIZ_* environment variables onto flags the user
// did not set explicitly.
func ApplyEnv(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, v.GetString(f.Name)); err != nil {
				errs = append(errs, fmt.Errorf("invalid %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return errors.Join(errs...)
}
