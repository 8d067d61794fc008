// Package mongostore keeps identities and rooms in MongoDB collections.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abhimm5/chatapp/internal/core"
	"github.com/abhimm5/chatapp/internal/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	rooms  *mongo.Collection
}

var _ core.Store = (*Store)(nil)

// Open connects, pings and makes sure the unique indexes exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w: %w", domain.ErrStorageUnavailable, err)
	}
	db := client.Database(cfg.Database)
	s := &Store{client: client, users: db.Collection("users"), rooms: db.Collection("rooms")}

	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "socketID", Value: 1}}},
		{Keys: bson.D{{Key: "lastActive", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("mongo user indexes: %w", err)
	}
	if _, err := s.rooms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomName", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("mongo room indexes: %w", err)
	}
	log.Info().Str("module", "infra.mongostore").Str("database", cfg.Database).Msg("store ready")
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func wrap(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}

func userFilter(f core.UserFilter) bson.M {
	q := bson.M{}
	if f.Status != "" {
		q["status"] = string(f.Status)
	}
	if !f.ActiveBefore.IsZero() {
		q["lastActive"] = bson.M{"$lt": f.ActiveBefore.UTC()}
	}
	return q
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*domain.Identity, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, wrap("find user", err)
	}
	id := doc.identity()
	return &id, nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*domain.Identity, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) FindUserByConnection(ctx context.Context, conn domain.ConnectionID) (*domain.Identity, error) {
	return s.findUser(ctx, bson.M{"socketID": string(conn)})
}

func (s *Store) FindUsers(ctx context.Context, filter core.UserFilter) ([]domain.Identity, error) {
	cur, err := s.users.Find(ctx, userFilter(filter), options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, wrap("find users", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode users", err)
	}
	out := make([]domain.Identity, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.identity())
	}
	return out, nil
}

func (s *Store) UpsertUser(ctx context.Context, id domain.Identity) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"username": id.Username},
		bson.M{"$set": toUserDoc(id)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return wrap("upsert user", err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return wrap("delete user", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete user %s: %w", username, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUsers(ctx context.Context, filter core.UserFilter) (int64, error) {
	res, err := s.users.DeleteMany(ctx, userFilter(filter))
	if err != nil {
		return 0, wrap("delete users", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) FindRoom(ctx context.Context, name domain.RoomName) (*domain.Room, error) {
	var doc roomDoc
	if err := s.rooms.FindOne(ctx, bson.M{"roomName": string(name)}).Decode(&doc); err != nil {
		return nil, wrap("find room", err)
	}
	r := doc.room()
	return &r, nil
}

func (s *Store) FindRooms(ctx context.Context) ([]domain.Room, error) {
	cur, err := s.rooms.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "roomName", Value: 1}}))
	if err != nil {
		return nil, wrap("find rooms", err)
	}
	var docs []roomDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("decode rooms", err)
	}
	out := make([]domain.Room, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.room())
	}
	return out, nil
}

func (s *Store) InsertRoom(ctx context.Context, room domain.Room) error {
	if _, err := s.rooms.InsertOne(ctx, toRoomDoc(room)); err != nil {
		return wrap("insert room", err)
	}
	return nil
}

func (s *Store) UpdateRoom(ctx context.Context, room domain.Room) error {
	_, err := s.rooms.UpdateOne(ctx,
		bson.M{"roomName": string(room.Name)},
		bson.M{"$set": toRoomDoc(room)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return wrap("update room", err)
	}
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, name domain.RoomName) error {
	res, err := s.rooms.DeleteOne(ctx, bson.M{"roomName": string(name)})
	if err != nil {
		return wrap("delete room", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete room %s: %w", name, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRooms(ctx context.Context) (int64, error) {
	res, err := s.rooms.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, wrap("delete rooms", err)
	}
	return res.DeletedCount, nil
}

// Drop removes the whole database. Used to clean up throwaway databases.
func (s *Store) Drop(ctx context.Context) error {
	return s.users.Database().Drop(ctx)
}
