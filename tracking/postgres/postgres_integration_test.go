//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts a disposable PostgreSQL container and returns
// its connection string. The container is terminated on test cleanup.
func setupPostgresContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return connStr
}

func newIntegrationStorage(t *testing.T) *IdentityStorage {
	t.Helper()

	client, err := New(Config{DSN: setupPostgresContainer(t), Logger: log.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Connect(context.Background()))

	storage, err := NewIdentityStorage(client)
	require.NoError(t, err)
	require.NoError(t, storage.EnsureSchema(context.Background()))

	return storage
}

func TestIntegration_IdentityStorage_RoundTrip(t *testing.T) {
	storage := newIntegrationStorage(t)
	ctx := context.Background()

	_, found, err := storage.Get(ctx, "tracking:dedup:tag")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, storage.Set(ctx, "tracking:dedup:tag", `[{"eventName":"Lead"}]`))
	require.NoError(t, storage.Set(ctx, "tracking:dedup:tag", `[]`))

	value, found, err := storage.Get(ctx, "tracking:dedup:tag")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[]`, value)

	require.NoError(t, storage.Delete(ctx, "tracking:dedup:tag"))

	_, found, err = storage.Get(ctx, "tracking:dedup:tag")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntegration_IdentityStorage_BacksStore(t *testing.T) {
	storage := newIntegrationStorage(t)
	ctx := context.Background()

	tagStore, err := identity.NewStore(storage, "tag")
	require.NoError(t, err)

	analyticsStore, err := identity.NewStore(storage, "analytics")
	require.NoError(t, err)

	require.NoError(t, tagStore.MarkSent(ctx, "Lead", "lead_123", map[string]any{"value": 150}))

	assert.True(t, tagStore.AlreadySent(ctx, "Lead", "lead_123"))
	assert.False(t, analyticsStore.AlreadySent(ctx, "Lead", "lead_123"))

	require.NoError(t, tagStore.ClearEvent(ctx, "Lead"))
	assert.False(t, tagStore.AlreadySent(ctx, "Lead", "lead_123"))
}

func TestIntegration_EnsureSchemaIsIdempotent(t *testing.T) {
	storage := newIntegrationStorage(t)

	require.NoError(t, storage.EnsureSchema(context.Background()))
}
