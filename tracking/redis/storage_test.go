//go:build unit

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIdentityStorage(t *testing.T, ttl time.Duration) (*IdentityStorage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := New(context.Background(), Config{Addresses: []string{mr.Addr()}, Logger: log.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	storage, err := NewIdentityStorage(client, ttl)
	require.NoError(t, err)

	return storage, mr
}

func TestNewIdentityStorage_NilClient(t *testing.T) {
	storage, err := NewIdentityStorage(nil, time.Hour)
	assert.ErrorIs(t, err, ErrNilClient)
	assert.Nil(t, storage)
}

func TestIdentityStorage_GetSetDelete(t *testing.T) {
	storage, mr := newTestIdentityStorage(t, 0)
	ctx := context.Background()

	_, found, err := storage.Get(ctx, "tracking:dedup:tag")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, storage.Set(ctx, "tracking:dedup:tag", `[]`))

	value, found, err := storage.Get(ctx, "tracking:dedup:tag")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[]`, value)
	assert.Equal(t, DefaultRecordTTL, mr.TTL("tracking:dedup:tag"))

	require.NoError(t, storage.Delete(ctx, "tracking:dedup:tag"))
	assert.False(t, mr.Exists("tracking:dedup:tag"))
}

func TestIdentityStorage_KeyExpires(t *testing.T) {
	storage, mr := newTestIdentityStorage(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, "k", "v"))
	mr.FastForward(2 * time.Minute)

	_, found, err := storage.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIdentityStorage_BacksIdentityStore(t *testing.T) {
	storage, _ := newTestIdentityStorage(t, 0)
	ctx := context.Background()

	store, err := identity.NewStore(storage, "tag")
	require.NoError(t, err)

	assert.False(t, store.AlreadySent(ctx, "Lead", "lead_123"))
	require.NoError(t, store.MarkSent(ctx, "Lead", "lead_123", nil))
	assert.True(t, store.AlreadySent(ctx, "Lead", "lead_123"))

	require.NoError(t, store.ClearKey(ctx, "Lead", "lead_123"))
	assert.False(t, store.AlreadySent(ctx, "Lead", "lead_123"))
}

func TestIdentityStorage_ServerErrorFailsOpen(t *testing.T) {
	storage, mr := newTestIdentityStorage(t, 0)
	ctx := context.Background()

	store, err := identity.NewStore(storage, "tag")
	require.NoError(t, err)
	require.NoError(t, store.MarkSent(ctx, "Lead", "x", nil))

	mr.SetError("LOADING server is loading")

	assert.False(t, store.AlreadySent(ctx, "Lead", "x"))
	assert.Error(t, store.MarkSent(ctx, "Lead", "y", nil))
}

func TestIdentityStorage_KeyedStoreExpiresRecordsWithTheirWindow(t *testing.T) {
	storage, mr := newTestIdentityStorage(t, time.Hour)
	ctx := context.Background()

	store, err := identity.NewKeyedStore(storage, "relay",
		identity.WithWindows(identity.Windows{identity.DefaultWindowKey: 10 * time.Minute}))
	require.NoError(t, err)

	require.NoError(t, store.MarkSent(ctx, "Lead", "conversions:evt-1", nil))
	require.NoError(t, store.MarkSent(ctx, "Lead", "conversions:evt-2", nil))

	key := store.RecordKey("Lead", "conversions:evt-1")
	assert.Equal(t, 10*time.Minute, mr.TTL(key))
	assert.True(t, store.AlreadySent(ctx, "Lead", "conversions:evt-1"))
	assert.True(t, store.AlreadySent(ctx, "Lead", "conversions:evt-2"))

	mr.FastForward(11 * time.Minute)

	assert.False(t, mr.Exists(key))
	assert.False(t, store.AlreadySent(ctx, "Lead", "conversions:evt-1"))
}
