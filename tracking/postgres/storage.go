package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/jackc/pgx/v5"
)

// IdentityStorage persists identity records as rows of (key, payload).
type IdentityStorage struct {
	client *Client
}

var _ identity.Storage = (*IdentityStorage)(nil)

// NewIdentityStorage creates an IdentityStorage on client.
func NewIdentityStorage(client *Client) (*IdentityStorage, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	return &IdentityStorage{client: client}, nil
}

// EnsureSchema creates the records table when missing.
func (s *IdentityStorage) EnsureSchema(ctx context.Context) error {
	if s == nil {
		return ErrNilClient
	}

	pool, err := s.client.Pool(ctx)
	if err != nil {
		return err
	}

	// Table name is validated against identifierPattern in New.
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.client.Table())

	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.client.Table(), err)
	}

	return nil
}

// Get implements identity.Storage.
func (s *IdentityStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, ErrNilClient
	}

	pool, err := s.client.Pool(ctx)
	if err != nil {
		return "", false, err
	}

	var payload string

	query := fmt.Sprintf(`SELECT payload FROM %s WHERE key = $1`, s.client.Table())

	err = pool.QueryRow(ctx, query, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("select %s: %w", key, err)
	}

	return payload, true, nil
}

// Set implements identity.Storage.
func (s *IdentityStorage) Set(ctx context.Context, key, value string) error {
	if s == nil {
		return ErrNilClient
	}

	pool, err := s.client.Pool(ctx)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s (key, payload, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`, s.client.Table())

	if _, err := pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}

	return nil
}

// Delete implements identity.Storage.
func (s *IdentityStorage) Delete(ctx context.Context, key string) error {
	if s == nil {
		return ErrNilClient
	}

	pool, err := s.client.Pool(ctx)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.client.Table())

	if _, err := pool.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}
