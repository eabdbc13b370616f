package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
)

// KeyPrefix prefixes every namespace record key in Storage.
const KeyPrefix = "tracking:dedup:"

// Store answers AlreadySent / MarkSent for one namespace.
//
// Read-then-write is not atomic: two concurrent MarkSent calls for the same
// key may both observe "not sent". Duplicate suppression is best-effort and the
// last write wins.
type Store struct {
	storage   Storage
	namespace string
	key       string
	windows   Windows
	now       func() time.Time
	logger    log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithWindows replaces the expiration table.
func WithWindows(windows Windows) Option {
	return func(s *Store) {
		if len(windows) > 0 {
			s.windows = windows
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Store) {
		if !nilcheck.Interface(logger) {
			s.logger = logger
		}
	}
}

// NewStore creates a Store persisting records of namespace in storage.
func NewStore(storage Storage, namespace string, opts ...Option) (*Store, error) {
	if nilcheck.Interface(storage) {
		return nil, ErrStorageRequired
	}

	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return nil, ErrNamespaceRequired
	}

	store := &Store{
		storage:   storage,
		namespace: namespace,
		key:       KeyPrefix + namespace,
		windows:   DefaultWindows(),
		now:       time.Now,
		logger:    log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	store.logger = store.logger.With(log.String("dedup_namespace", namespace))

	return store, nil
}

// Namespace returns the store namespace.
func (s *Store) Namespace() string {
	if s == nil {
		return ""
	}

	return s.namespace
}

// WindowFor returns the dedup window of eventName.
func (s *Store) WindowFor(eventName string) time.Duration {
	if s == nil {
		return DefaultWindows().For(eventName)
	}

	return s.windows.For(eventName)
}

// AlreadySent reports whether a live record exists for (eventName, identifier).
// Any storage failure answers false.
func (s *Store) AlreadySent(ctx context.Context, eventName, identifier string) bool {
	if s == nil || eventName == "" {
		return false
	}

	records, err := s.load(ctx)
	if err != nil {
		s.logger.Log(ctx, log.LevelWarn, "dedup lookup failed, treating event as not sent",
			log.EventName(eventName), log.Err(err))

		return false
	}

	key := CompositeKey(eventName, identifier)
	now := s.now()

	for _, record := range records {
		if record.Key() == key && s.live(record, now) {
			return true
		}
	}

	return false
}

// MarkSent appends a record for (eventName, identifier), drops expired and
// superseded records, and writes the set back. A corrupt set is replaced; any
// other read failure skips the write so live records are never overwritten.
// Failures are logged and returned; callers are free to ignore them.
func (s *Store) MarkSent(ctx context.Context, eventName, identifier string, metadata map[string]any) error {
	if s == nil {
		return ErrStorageRequired
	}

	if eventName == "" {
		return ErrEventNameRequired
	}

	records, err := s.load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorruptRecords) {
			s.logger.Log(ctx, log.LevelWarn, "dedup records unreadable, mark skipped",
				log.EventName(eventName), log.Err(err))

			return err
		}

		s.logger.Log(ctx, log.LevelWarn, "dedup records corrupt, rewriting namespace", log.Err(err))

		records = nil
	}

	now := s.now()
	record := StoredEvent{
		EventName:  eventName,
		Identifier: NormalizeIdentifier(identifier),
		Timestamp:  now.UnixMilli(),
		Metadata:   metadata,
	}

	kept := make([]StoredEvent, 0, len(records)+1)

	for _, existing := range records {
		if existing.Key() == record.Key() || !s.live(existing, now) {
			continue
		}

		kept = append(kept, existing)
	}

	kept = append(kept, record)

	if err := s.save(ctx, kept); err != nil {
		s.logger.Log(ctx, log.LevelError, "dedup mark failed",
			log.EventName(eventName), log.Err(err))

		return err
	}

	return nil
}

// Clear removes every record of the namespace.
func (s *Store) Clear(ctx context.Context) error {
	if s == nil {
		return ErrStorageRequired
	}

	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.logger.Log(ctx, log.LevelError, "dedup clear failed", log.Err(err))

		return fmt.Errorf("clear %s: %w", s.namespace, err)
	}

	return nil
}

// ClearEvent removes every record of eventName.
func (s *Store) ClearEvent(ctx context.Context, eventName string) error {
	return s.rewrite(ctx, func(record StoredEvent) bool {
		return record.EventName == eventName
	})
}

// ClearKey removes the record of exactly (eventName, identifier).
func (s *Store) ClearKey(ctx context.Context, eventName, identifier string) error {
	key := CompositeKey(eventName, identifier)

	return s.rewrite(ctx, func(record StoredEvent) bool {
		return record.Key() == key
	})
}

// Records returns the live records of the namespace.
func (s *Store) Records(ctx context.Context) ([]StoredEvent, error) {
	if s == nil {
		return nil, ErrStorageRequired
	}

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	live := make([]StoredEvent, 0, len(records))

	for _, record := range records {
		if s.live(record, now) {
			live = append(live, record)
		}
	}

	return live, nil
}

func (s *Store) rewrite(ctx context.Context, drop func(StoredEvent) bool) error {
	if s == nil {
		return ErrStorageRequired
	}

	records, err := s.load(ctx)
	if err != nil {
		s.logger.Log(ctx, log.LevelError, "dedup clear failed", log.Err(err))

		return err
	}

	now := s.now()
	kept := make([]StoredEvent, 0, len(records))

	for _, record := range records {
		if drop(record) || !s.live(record, now) {
			continue
		}

		kept = append(kept, record)
	}

	if err := s.save(ctx, kept); err != nil {
		s.logger.Log(ctx, log.LevelError, "dedup clear failed", log.Err(err))

		return err
	}

	return nil
}

func (s *Store) live(record StoredEvent, now time.Time) bool {
	age := now.Sub(record.SentAt())

	return age < s.windows.For(record.EventName)
}

func (s *Store) load(ctx context.Context) ([]StoredEvent, error) {
	raw, found, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.namespace, err)
	}

	if !found || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var records []StoredEvent
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecords, err)
	}

	return records, nil
}

func (s *Store) save(ctx context.Context, records []StoredEvent) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.namespace, err)
	}

	if err := s.storage.Set(ctx, s.key, string(payload)); err != nil {
		return fmt.Errorf("write %s: %w", s.namespace, err)
	}

	return nil
}
