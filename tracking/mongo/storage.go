package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ttlIndexName = "updated_at_ttl"

type recordDocument struct {
	Key       string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// IdentityStorage persists identity records as documents keyed by storage key.
type IdentityStorage struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time
}

var _ identity.Storage = (*IdentityStorage)(nil)

// NewIdentityStorage creates an IdentityStorage on client. A positive ttl lets
// EnsureSchema install a TTL index that expires idle documents.
func NewIdentityStorage(client *Client, ttl time.Duration) (*IdentityStorage, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	return &IdentityStorage{client: client, ttl: ttl, now: time.Now}, nil
}

// EnsureSchema creates the TTL index when a ttl is configured.
func (s *IdentityStorage) EnsureSchema(ctx context.Context) error {
	if s == nil {
		return ErrNilClient
	}

	if s.ttl <= 0 {
		return nil
	}

	collection, err := s.client.Collection(ctx)
	if err != nil {
		return err
	}

	index := mongo.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().
			SetName(ttlIndexName).
			SetExpireAfterSeconds(int32(s.ttl / time.Second)),
	}

	if _, err := collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("create %s index: %w", ttlIndexName, err)
	}

	return nil
}

// Get implements identity.Storage.
func (s *IdentityStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, ErrNilClient
	}

	collection, err := s.client.Collection(ctx)
	if err != nil {
		return "", false, err
	}

	var doc recordDocument

	err = collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("find %s: %w", key, err)
	}

	return doc.Payload, true, nil
}

// Set implements identity.Storage.
func (s *IdentityStorage) Set(ctx context.Context, key, value string) error {
	if s == nil {
		return ErrNilClient
	}

	collection, err := s.client.Collection(ctx)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"payload": value, "updated_at": s.now().UTC()}}

	if _, err := collection.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}

	return nil
}

// Delete implements identity.Storage.
func (s *IdentityStorage) Delete(ctx context.Context, key string) error {
	if s == nil {
		return ErrNilClient
	}

	collection, err := s.client.Collection(ctx)
	if err != nil {
		return err
	}

	if _, err := collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}
