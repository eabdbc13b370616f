//go:build unit

package main

import (
	"context"
	"testing"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/config"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestOpenDedupStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultService()
		cfg.Relay.Dedup = false

		store, closeStore, err := openDedupStore(ctx, &cfg, log.NewNop(), noop.NewMeterProvider())
		require.NoError(t, err)
		assert.Nil(t, store)
		assert.NoError(t, closeStore(ctx))
	})

	t.Run("memory backend keeps one key per event", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultService()
		cfg.Relay.Dedup = true
		cfg.Relay.DedupWindow = time.Hour
		cfg.Storage.Backend = config.BackendMemory

		store, closeStore, err := openDedupStore(ctx, &cfg, log.NewNop(), noop.NewMeterProvider())
		require.NoError(t, err)
		require.NotNil(t, store)
		t.Cleanup(func() { _ = closeStore(ctx) })

		assert.Equal(t, dedupNamespace, store.Namespace())
		require.NoError(t, store.MarkSent(ctx, "Lead", "conversions:evt-1", nil))
		assert.True(t, store.AlreadySent(ctx, "Lead", "conversions:evt-1"))
		assert.False(t, store.AlreadySent(ctx, "Lead", "conversions:evt-2"))
	})

	t.Run("unsupported backend", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultService()
		cfg.Relay.Dedup = true
		cfg.Storage.Backend = "cassandra"

		_, _, err := openDedupStore(ctx, &cfg, log.NewNop(), noop.NewMeterProvider())
		assert.ErrorIs(t, err, config.ErrUnsupportedBackend)
	})
}
