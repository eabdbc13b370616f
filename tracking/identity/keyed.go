package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/log"
)

// ExpiringStorage is implemented by backends that can expire a key on their own.
type ExpiringStorage interface {
	Storage
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// KeyedStore answers AlreadySent / MarkSent like Store, but keeps one storage
// key per (event name, identifier) instead of one array per namespace.
//
// Writes for different events never touch the same key, so concurrent
// servers do not overwrite each other's records. Two concurrent marks of the
// same event still race, and the last write wins.
type KeyedStore struct {
	base *Store
}

// NewKeyedStore creates a KeyedStore for namespace. It accepts the Store options.
func NewKeyedStore(storage Storage, namespace string, opts ...Option) (*KeyedStore, error) {
	base, err := NewStore(storage, namespace, opts...)
	if err != nil {
		return nil, err
	}

	return &KeyedStore{base: base}, nil
}

// Namespace returns the store namespace.
func (s *KeyedStore) Namespace() string {
	if s == nil {
		return ""
	}

	return s.base.Namespace()
}

// RecordKey returns the storage key holding (eventName, identifier).
func (s *KeyedStore) RecordKey(eventName, identifier string) string {
	if s == nil {
		return ""
	}

	return s.base.key + ":" + CompositeKey(eventName, identifier)
}

// AlreadySent reports whether a live record exists for (eventName, identifier).
// Storage failures answer false. Expired records are deleted on the way.
func (s *KeyedStore) AlreadySent(ctx context.Context, eventName, identifier string) bool {
	if s == nil || eventName == "" {
		return false
	}

	key := s.RecordKey(eventName, identifier)

	raw, found, err := s.base.storage.Get(ctx, key)
	if err != nil {
		s.base.logger.Log(ctx, log.LevelWarn, "dedup lookup failed, treating event as not sent",
			log.EventName(eventName), log.Err(err))

		return false
	}

	if !found || strings.TrimSpace(raw) == "" {
		return false
	}

	var record StoredEvent
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.base.logger.Log(ctx, log.LevelWarn, "dedup record corrupt, treating event as not sent",
			log.EventName(eventName), log.Err(err))

		return false
	}

	if s.base.live(record, s.base.now()) {
		return true
	}

	if err := s.base.storage.Delete(ctx, key); err != nil {
		s.base.logger.Log(ctx, log.LevelDebug, "expired dedup record not deleted",
			log.EventName(eventName), log.Err(err))
	}

	return false
}

// MarkSent writes the record of (eventName, identifier). Backends implementing
// ExpiringStorage expire it after the event window.
func (s *KeyedStore) MarkSent(ctx context.Context, eventName, identifier string, metadata map[string]any) error {
	if s == nil {
		return ErrStorageRequired
	}

	if eventName == "" {
		return ErrEventNameRequired
	}

	payload, err := json.Marshal(StoredEvent{
		EventName:  eventName,
		Identifier: NormalizeIdentifier(identifier),
		Timestamp:  s.base.now().UnixMilli(),
		Metadata:   metadata,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventName, err)
	}

	key := s.RecordKey(eventName, identifier)

	if expiring, ok := s.base.storage.(ExpiringStorage); ok {
		err = expiring.SetWithTTL(ctx, key, string(payload), s.base.windows.For(eventName))
	} else {
		err = s.base.storage.Set(ctx, key, string(payload))
	}

	if err != nil {
		s.base.logger.Log(ctx, log.LevelError, "dedup mark failed",
			log.EventName(eventName), log.Err(err))

		return fmt.Errorf("write %s: %w", key, err)
	}

	return nil
}

// ClearKey removes the record of exactly (eventName, identifier).
func (s *KeyedStore) ClearKey(ctx context.Context, eventName, identifier string) error {
	if s == nil {
		return ErrStorageRequired
	}

	key := s.RecordKey(eventName, identifier)

	if err := s.base.storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}
