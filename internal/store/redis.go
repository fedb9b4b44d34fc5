package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"pulsequiz/internal/model"
)

const (
	changeSession = "session"
	changePlayers = "players"

	defaultMaxRetries = 16
)

// addPlayerScript creates the player hash and its leaderboard entry in one
// step. It returns -1 when the session is missing and 0 on a duplicate id.
var addPlayerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
redis.call('HSET', KEYS[2], 'name', ARGV[1], 'score', ARGV[2], 'joinedAt', ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[4])
if tonumber(ARGV[5]) > 0 then
	redis.call('PEXPIRE', KEYS[2], ARGV[5])
	redis.call('PEXPIRE', KEYS[3], ARGV[5])
end
return 1
`)

// addScoreScript increments a player's score and mirrors it into the
// leaderboard index. It returns nil when the player does not exist.
var addScoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'score', ARGV[1])
redis.call('ZINCRBY', KEYS[2], ARGV[1], ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

// RedisStore keeps each session as a JSON document with companion player
// hashes and a sorted-set index. Keys carry a {pin} hash tag so one session
// never spans cluster slots.
type RedisStore struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:     client,
		ttl:        ttl,
		maxRetries: defaultMaxRetries,
	}
}

func (r *RedisStore) key(pin string) string {
	return fmt.Sprintf("session:{%s}", pin)
}

func (r *RedisStore) playerKey(pin, playerID string) string {
	return fmt.Sprintf("session:{%s}:player:%s", pin, playerID)
}

func (r *RedisStore) lbKey(pin string) string {
	return fmt.Sprintf("session:{%s}:lb", pin)
}

func (r *RedisStore) channel(pin string) string {
	return fmt.Sprintf("session:{%s}:changes", pin)
}

func (r *RedisStore) publish(ctx context.Context, pin, kind string) {
	if err := r.client.Publish(ctx, r.channel(pin), kind).Err(); err != nil {
		log.Warn().Err(err).Str("pin", pin).Str("kind", kind).Msg("failed to publish session change")
	}
}

func (r *RedisStore) CreateSession(ctx context.Context, s *model.Session) error {
	stored := s.Clone()
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.key(s.PIN), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	r.publish(ctx, s.PIN, changeSession)
	return nil
}

func (r *RedisStore) GetSession(ctx context.Context, pin string) (*model.Session, error) {
	return r.getSession(ctx, r.client, pin)
}

func (r *RedisStore) getSession(ctx context.Context, c redis.Cmdable, pin string) (*model.Session, error) {
	data, err := c.Get(ctx, r.key(pin)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", pin, err)
	}
	return &s, nil
}

func (r *RedisStore) UpdateSession(ctx context.Context, pin string, patch model.SessionPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	var missing bool
	err := r.TransactSession(ctx, pin, func(s *model.Session) (bool, error) {
		missing = s == nil
		if missing {
			return false, nil
		}
		patch.Apply(s)
		return !patch.Empty(), nil
	})
	if err != nil {
		return err
	}
	if missing {
		return ErrSessionNotFound
	}
	return nil
}

// TransactSession runs fn under WATCH and retries when another client wrote
// the session between read and commit.
func (r *RedisStore) TransactSession(ctx context.Context, pin string, fn TxFunc) error {
	key := r.key(pin)
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		committed := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			s, err := r.getSession(ctx, tx, pin)
			if err != nil {
				return err
			}
			working := s.Clone()
			changed, err := fn(working)
			if err != nil || !changed || s == nil {
				return err
			}

			working.PIN = pin
			working.Version = s.Version + 1
			data, err := json.Marshal(working)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, redis.KeepTTL)
				return nil
			})
			committed = err == nil
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		if committed {
			r.publish(ctx, pin, changeSession)
		}
		return nil
	}
	return ErrConflict
}

func (r *RedisStore) DeleteSession(ctx context.Context, pin string) error {
	ids, err := r.client.ZRange(ctx, r.lbKey(pin), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	keys := []string{r.key(pin), r.lbKey(pin)}
	for _, id := range ids {
		keys = append(keys, r.playerKey(pin, id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	r.publish(ctx, pin, changeSession)
	r.publish(ctx, pin, changePlayers)
	return nil
}

func (r *RedisStore) AddPlayer(ctx context.Context, pin string, p *model.Player) error {
	keys := []string{r.key(pin), r.playerKey(pin, p.ID), r.lbKey(pin)}
	res, err := addPlayerScript.Run(ctx, r.client, keys,
		p.Name, p.Score, p.JoinedAt.UnixNano(), p.ID, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to add player: %w", err)
	}
	switch res {
	case -1:
		return ErrSessionNotFound
	case 0:
		return fmt.Errorf("player %s already exists", p.ID)
	}
	r.publish(ctx, pin, changePlayers)
	return nil
}

func (r *RedisStore) GetPlayer(ctx context.Context, pin, playerID string) (*model.Player, error) {
	fields, err := r.client.HGetAll(ctx, r.playerKey(pin, playerID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodePlayer(playerID, fields)
}

func (r *RedisStore) ListPlayers(ctx context.Context, pin string) ([]*model.Player, error) {
	ids, err := r.client.ZRange(ctx, r.lbKey(pin), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Player{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.playerKey(pin, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}

	players := make([]*model.Player, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodePlayer(ids[i], fields)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	model.RankPlayers(players)
	return players, nil
}

func (r *RedisStore) AddScore(ctx context.Context, pin, playerID string, delta int) (*model.Player, error) {
	keys := []string{r.playerKey(pin, playerID), r.lbKey(pin)}
	res, err := addScoreScript.Run(ctx, r.client, keys, delta, playerID).Slice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add score: %w", err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		fields[fmt.Sprint(res[i])] = fmt.Sprint(res[i+1])
	}
	p, err := decodePlayer(playerID, fields)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, pin, changePlayers)
	return p, nil
}

func (r *RedisStore) SubscribeSession(ctx context.Context, pin string, fn func(*model.Session)) (Unsubscribe, error) {
	return r.subscribe(ctx, pin, changeSession, func(ctx context.Context) {
		s, err := r.GetSession(ctx, pin)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("pin", pin).Msg("failed to refetch session")
			}
			return
		}
		fn(s)
	})
}

func (r *RedisStore) SubscribePlayers(ctx context.Context, pin string, fn func([]*model.Player)) (Unsubscribe, error) {
	return r.subscribe(ctx, pin, changePlayers, func(ctx context.Context) {
		players, err := r.ListPlayers(ctx, pin)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("pin", pin).Msg("failed to refetch players")
			}
			return
		}
		fn(players)
	})
}

// subscribe confirms the channel subscription before the first snapshot is
// read, so no change committed after that read can be missed.
func (r *RedisStore) subscribe(ctx context.Context, pin, kind string, deliver func(context.Context)) (Unsubscribe, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(pin))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	w := newWatcher(deliver).start()
	go func() {
		for msg := range pubsub.Channel() {
			if msg.Payload == kind {
				w.notify()
			}
		}
	}()

	return func() {
		pubsub.Close()
		w.stop()
	}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodePlayer(id string, fields map[string]string) (*model.Player, error) {
	score, err := strconv.Atoi(fields["score"])
	if err != nil {
		return nil, fmt.Errorf("invalid score for player %s: %w", id, err)
	}
	joined, err := strconv.ParseInt(fields["joinedAt"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid joinedAt for player %s: %w", id, err)
	}
	return &model.Player{
		ID:       id,
		Name:     fields["name"],
		Score:    score,
		JoinedAt: time.Unix(0, joined).UTC(),
	}, nil
}
