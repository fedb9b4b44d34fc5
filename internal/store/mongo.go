package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pulsequiz/internal/model"
)

// playerDoc is how a player is stored in the players collection
type playerDoc struct {
	SessionPIN   string `bson:"sessionPin"`
	model.Player `bson:",inline"`
}

// MongoStore keeps sessions as versioned documents. Transactions are
// optimistic: a replace only succeeds against the version that was read.
// Subscriptions use change streams and need a replica set.
type MongoStore struct {
	client     *mongo.Client
	sessions   *mongo.Collection
	players    *mongo.Collection
	ttl        time.Duration
	maxRetries int
}

// NewMongoStore creates a MongoDB-backed store in the given database
func NewMongoStore(client *mongo.Client, database string, ttl time.Duration) *MongoStore {
	db := client.Database(database)
	return &MongoStore{
		client:     client,
		sessions:   db.Collection("sessions"),
		players:    db.Collection("players"),
		ttl:        ttl,
		maxRetries: defaultMaxRetries,
	}
}

// EnsureIndexes creates the player lookup index and, when a ttl is set, the
// expiry indexes for both collections.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	playerIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionPin", Value: 1}, {Key: "score", Value: -1}}},
	}
	if m.ttl > 0 {
		secs := int32(m.ttl.Seconds())
		playerIdx = append(playerIdx, mongo.IndexModel{
			Keys:    bson.D{{Key: "joinedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(secs),
		})
		if _, err := m.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(secs),
		}); err != nil {
			return fmt.Errorf("failed to create session indexes: %w", err)
		}
	}
	if _, err := m.players.Indexes().CreateMany(ctx, playerIdx); err != nil {
		return fmt.Errorf("failed to create player indexes: %w", err)
	}
	return nil
}

func (m *MongoStore) CreateSession(ctx context.Context, s *model.Session) error {
	stored := s.Clone()
	stored.Version = 1
	_, err := m.sessions.InsertOne(ctx, stored)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSessionExists
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (m *MongoStore) GetSession(ctx context.Context, pin string) (*model.Session, error) {
	var s model.Session
	err := m.sessions.FindOne(ctx, bson.M{"_id": pin}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MongoStore) UpdateSession(ctx context.Context, pin string, patch model.SessionPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.Empty() {
		n, err := m.sessions.CountDocuments(ctx, bson.M{"_id": pin})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrSessionNotFound
		}
		return nil
	}
	set := bson.M{}
	update := bson.M{"$inc": bson.M{"version": 1}}
	if patch.State != nil {
		set["state"] = *patch.State
	}
	if patch.ClearBuzzer {
		set["activeBuzzer"] = ""
		update["$unset"] = bson.M{"buzzerLockedAt": ""}
	}
	if len(set) > 0 {
		update["$set"] = set
	}

	res, err := m.sessions.UpdateOne(ctx, bson.M{"_id": pin}, update)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// TransactSession replaces the document only if its version is unchanged
// since the read, retrying otherwise.
func (m *MongoStore) TransactSession(ctx context.Context, pin string, fn TxFunc) error {
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		s, err := m.GetSession(ctx, pin)
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
		res, err := m.sessions.ReplaceOne(ctx, bson.M{"_id": pin, "version": s.Version}, working)
		if err != nil {
			return fmt.Errorf("failed to replace session: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return ErrConflict
}

func (m *MongoStore) DeleteSession(ctx context.Context, pin string) error {
	if _, err := m.sessions.DeleteOne(ctx, bson.M{"_id": pin}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := m.players.DeleteMany(ctx, bson.M{"sessionPin": pin}); err != nil {
		return fmt.Errorf("failed to delete players: %w", err)
	}
	return nil
}

func (m *MongoStore) AddPlayer(ctx context.Context, pin string, p *model.Player) error {
	n, err := m.sessions.CountDocuments(ctx, bson.M{"_id": pin})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	if _, err := m.players.InsertOne(ctx, playerDoc{SessionPIN: pin, Player: *p}); err != nil {
		return fmt.Errorf("failed to add player: %w", err)
	}
	return nil
}

func (m *MongoStore) GetPlayer(ctx context.Context, pin, playerID string) (*model.Player, error) {
	var doc playerDoc
	err := m.players.FindOne(ctx, bson.M{"_id": playerID, "sessionPin": pin}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc.Player, nil
}

func (m *MongoStore) ListPlayers(ctx context.Context, pin string) ([]*model.Player, error) {
	opts := options.Find().SetSort(bson.D{{Key: "score", Value: -1}, {Key: "joinedAt", Value: 1}})
	cur, err := m.players.Find(ctx, bson.M{"sessionPin": pin}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	var docs []playerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	players := make([]*model.Player, len(docs))
	for i := range docs {
		players[i] = &docs[i].Player
	}
	model.RankPlayers(players)
	return players, nil
}

func (m *MongoStore) AddScore(ctx context.Context, pin, playerID string, delta int) (*model.Player, error) {
	var doc playerDoc
	err := m.players.FindOneAndUpdate(ctx,
		bson.M{"_id": playerID, "sessionPin": pin},
		bson.M{"$inc": bson.M{"score": delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add score: %w", err)
	}
	return &doc.Player, nil
}

func (m *MongoStore) SubscribeSession(ctx context.Context, pin string, fn func(*model.Session)) (Unsubscribe, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": pin}}},
	}
	return m.watch(ctx, m.sessions, pipeline, func(ctx context.Context) {
		s, err := m.GetSession(ctx, pin)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("pin", pin).Msg("failed to refetch session")
			}
			return
		}
		fn(s)
	})
}

func (m *MongoStore) SubscribePlayers(ctx context.Context, pin string, fn func([]*model.Player)) (Unsubscribe, error) {
	// Deleted players have no full document; they only disappear together
	// with their session.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.sessionPin": pin}}},
	}
	return m.watch(ctx, m.players, pipeline, func(ctx context.Context) {
		players, err := m.ListPlayers(ctx, pin)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("pin", pin).Msg("failed to refetch players")
			}
			return
		}
		fn(players)
	})
}

// watch opens the change stream before the first snapshot is read.
func (m *MongoStore) watch(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, deliver func(context.Context)) (Unsubscribe, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	w := newWatcher(deliver).start()
	streamCtx, cancel := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		defer cs.Close(context.Background())
		for cs.Next(streamCtx) {
			w.notify()
		}
		if err := cs.Err(); err != nil && streamCtx.Err() == nil {
			log.Warn().Err(err).Str("collection", coll.Name()).Msg("change stream stopped")
		}
	}()

	return func() {
		cancel()
		<-relayDone
		w.stop()
	}, nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
