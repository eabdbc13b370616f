package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/redis/go-redis/v9"
)

// DefaultRecordTTL bounds how long a namespace key survives without writes.
// It matches the longest window of identity.DefaultWindows.
const DefaultRecordTTL = 24 * time.Hour

// IdentityStorage persists identity records in Redis.
type IdentityStorage struct {
	client *Client
	ttl    time.Duration
}

var _ identity.ExpiringStorage = (*IdentityStorage)(nil)

// NewIdentityStorage creates an IdentityStorage on client. A non-positive ttl
// falls back to DefaultRecordTTL.
func NewIdentityStorage(client *Client, ttl time.Duration) (*IdentityStorage, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}

	return &IdentityStorage{client: client, ttl: ttl}, nil
}

// Get implements identity.Storage.
func (s *IdentityStorage) Get(ctx context.Context, key string) (string, bool, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return "", false, err
	}

	value, err := rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}

	return value, true, nil
}

// Set implements identity.Storage. Every write refreshes the key TTL.
func (s *IdentityStorage) Set(ctx context.Context, key, value string) error {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return err
	}

	if err := rdb.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// SetWithTTL implements identity.ExpiringStorage. A non-positive ttl uses the
// storage ttl.
func (s *IdentityStorage) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = s.ttl
	}

	if err := rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete implements identity.Storage.
func (s *IdentityStorage) Delete(ctx context.Context, key string) error {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return err
	}

	if err := rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}

func (s *IdentityStorage) rdb(ctx context.Context) (redis.UniversalClient, error) {
	if s == nil {
		return nil, ErrNilClient
	}

	return s.client.UniversalClient(ctx)
}
