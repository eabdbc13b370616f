//go:build unit

package redis

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testConfig(addr string) Config {
	return Config{Addresses: []string{addr}, Logger: log.NewNop()}
}

func TestClient_NewAndUniversalClient(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, testConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	rdb, err := client.UniversalClient(ctx)
	require.NoError(t, err)

	require.NoError(t, rdb.Set(ctx, "dedup:ping", "1", 0).Err())
	mr.CheckGet(t, "dedup:ping", "1")

	assert.True(t, client.IsConnected())
	assert.NoError(t, client.Ping(ctx))
}

func TestClient_New_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		errText string
	}{
		{
			name:    "standalone without address",
			cfg:     Config{},
			errText: "exactly one address",
		},
		{
			name:    "standalone with two addresses",
			cfg:     Config{Addresses: []string{"127.0.0.1:6379", "127.0.0.1:6380"}},
			errText: "exactly one address",
		},
		{
			name:    "blank addresses are dropped",
			cfg:     Config{Addresses: []string{"  ", ""}},
			errText: "exactly one address",
		},
		{
			name:    "sentinel without master name",
			cfg:     Config{Mode: ModeSentinel, Addresses: []string{"127.0.0.1:26379"}},
			errText: "master name",
		},
		{
			name:    "sentinel without sentinels",
			cfg:     Config{Mode: ModeSentinel, MasterName: "mymaster"},
			errText: "sentinel address",
		},
		{
			name:    "cluster without seeds",
			cfg:     Config{Mode: ModeCluster},
			errText: "seed address",
		},
		{
			name:    "cluster with non-zero DB",
			cfg:     Config{Mode: ModeCluster, Addresses: []string{"127.0.0.1:7000"}, DB: 2},
			errText: "DB 0",
		},
		{
			name:    "unknown mode",
			cfg:     Config{Mode: "ring", Addresses: []string{"127.0.0.1:6379"}},
			errText: `unknown mode "ring"`,
		},
		{
			name:    "tls without CA",
			cfg:     Config{Addresses: []string{"127.0.0.1:6379"}, TLS: &TLSConfig{}},
			errText: "CA cert is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, err := New(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errText)
			assert.Nil(t, client)
		})
	}
}

func TestClient_New_UnreachableServerRecordsFailure(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(addr)
	cfg.MeterProvider = provider
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = -1

	client, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "redis connect: ping")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var found bool

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "redis_connection_failures_total" {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.Equal(t, int64(1), sum.DataPoints[0].Value)

			operation, _ := sum.DataPoints[0].Attributes.Value("operation")
			assert.Equal(t, "connect", operation.AsString())

			found = true
		}
	}

	assert.True(t, found)
}

func TestBuildTLSConfig(t *testing.T) {
	t.Parallel()

	_, err := buildTLSConfig(TLSConfig{CACertBase64: "%%%"})
	assert.Error(t, err)

	_, err = buildTLSConfig(TLSConfig{CACertBase64: base64.StdEncoding.EncodeToString([]byte("plain text"))})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	pemCA := base64.StdEncoding.EncodeToString(generateTestCertificatePEM(t))

	cfg, err := buildTLSConfig(TLSConfig{CACertBase64: pemCA})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.RootCAs)

	cfg, err = buildTLSConfig(TLSConfig{CACertBase64: pemCA, MinVersion: tls.VersionTLS13})
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestClient_NilReceiverGuards(t *testing.T) {
	t.Parallel()

	var client *Client

	ctx := context.Background()

	assert.ErrorIs(t, client.Connect(ctx), ErrNilClient)
	assert.ErrorIs(t, client.Ping(ctx), ErrNilClient)
	assert.ErrorIs(t, client.Close(), ErrNilClient)
	assert.False(t, client.IsConnected())

	rdb, err := client.UniversalClient(ctx)
	assert.ErrorIs(t, err, ErrNilClient)
	assert.Nil(t, rdb)
}

func TestClient_UniversalClient_ReconnectsAfterClose(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, testConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Close())
	assert.False(t, client.IsConnected())

	rdb, err := client.UniversalClient(ctx)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	assert.True(t, client.IsConnected())
	assert.NoError(t, rdb.Ping(ctx).Err())
}

func TestClient_UniversalClient_ThrottlesFailedReconnects(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := testConfig(mr.Addr())
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxRetries = -1

	client, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return clock }

	require.NoError(t, client.Close())
	mr.Close()

	_, err = client.UniversalClient(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReconnectThrottled)

	_, err = client.UniversalClient(ctx)
	assert.ErrorIs(t, err, ErrReconnectThrottled)

	// Past the capped delay the client tries again.
	require.NoError(t, mr.Restart())
	clock = clock.Add(reconnectBackoffCap + time.Second)

	rdb, err := client.UniversalClient(ctx)
	require.NoError(t, err)
	assert.NoError(t, rdb.Ping(ctx).Err())
	assert.Zero(t, client.reconnectAttempts)
}

func TestUniversalOptions(t *testing.T) {
	t.Parallel()

	t.Run("sentinel keeps master name", func(t *testing.T) {
		t.Parallel()

		cfg, err := normalizeConfig(Config{
			Mode:       ModeSentinel,
			Addresses:  []string{"10.0.0.1:26379", " 10.0.0.2:26379 "},
			MasterName: "dedup",
			Password:   "secret",
		})
		require.NoError(t, err)

		c := &Client{cfg: cfg, logger: cfg.Logger}
		opts, err := c.universalOptions()
		require.NoError(t, err)
		assert.Equal(t, "dedup", opts.MasterName)
		assert.Equal(t, []string{"10.0.0.1:26379", "10.0.0.2:26379"}, opts.Addrs)
		assert.Equal(t, "secret", opts.Password)

		rdb := newUniversalClient(cfg.Mode, opts)
		t.Cleanup(func() { _ = rdb.Close() })

		_, ok := rdb.(*redis.Client)
		assert.True(t, ok)
	})

	t.Run("single cluster seed builds a cluster client", func(t *testing.T) {
		t.Parallel()

		cfg, err := normalizeConfig(Config{Mode: ModeCluster, Addresses: []string{"10.0.0.1:7000"}})
		require.NoError(t, err)

		c := &Client{cfg: cfg, logger: cfg.Logger}
		opts, err := c.universalOptions()
		require.NoError(t, err)
		assert.Empty(t, opts.MasterName)

		rdb := newUniversalClient(cfg.Mode, opts)
		t.Cleanup(func() { _ = rdb.Close() })

		_, ok := rdb.(*redis.ClusterClient)
		assert.True(t, ok)
	})

	t.Run("broken CA fails", func(t *testing.T) {
		t.Parallel()

		c := &Client{cfg: Config{Mode: ModeStandalone, Addresses: []string{"x:1"}, TLS: &TLSConfig{CACertBase64: "%%%"}}}
		_, err := c.universalOptions()
		assert.ErrorContains(t, err, "redis TLS config")
	})
}

func TestConfig_StringHidesPassword(t *testing.T) {
	t.Parallel()

	cfg := Config{Addresses: []string{"cache:6379"}, Password: "hunter2"}

	assert.NotContains(t, cfg.String(), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%#v", cfg), "hunter2")
	assert.NotContains(t, fmt.Sprintf("%v", cfg), "hunter2")
	assert.Contains(t, cfg.String(), "REDACTED")
	assert.Contains(t, cfg.String(), "cache:6379")

	assert.NotContains(t, Config{}.String(), "REDACTED")
}

func TestParseAddresses(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ParseAddresses(""))
	assert.Nil(t, ParseAddresses(" , "))
	assert.Equal(t, []string{"a:1"}, ParseAddresses("a:1"))
	assert.Equal(t, []string{"a:1", "b:2"}, ParseAddresses(" a:1 ,, b:2 "))
}

func TestNormalizeConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := normalizeConfig(Config{Addresses: []string{"a:1"}})
		require.NoError(t, err)
		assert.Equal(t, ModeStandalone, cfg.Mode)
		assert.Equal(t, defaultPoolSize, cfg.PoolSize)
		assert.Equal(t, 5*time.Second, cfg.DialTimeout)
		assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
		assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
		assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
		assert.NotNil(t, cfg.Logger)
	})

	t.Run("pool size is capped and retries can be disabled", func(t *testing.T) {
		t.Parallel()

		cfg, err := normalizeConfig(Config{Addresses: []string{"a:1"}, PoolSize: 5000, MaxRetries: -1})
		require.NoError(t, err)
		assert.Equal(t, maxPoolSize, cfg.PoolSize)
		assert.Equal(t, -1, cfg.MaxRetries)
	})

	t.Run("TLS floor applies to a copy", func(t *testing.T) {
		t.Parallel()

		callerTLS := &TLSConfig{CACertBase64: "ca", MinVersion: tls.VersionTLS10}

		cfg, err := normalizeConfig(Config{Addresses: []string{"a:1"}, TLS: callerTLS})
		require.NoError(t, err)
		assert.Equal(t, uint16(tls.VersionTLS12), cfg.TLS.MinVersion)
		assert.Equal(t, uint16(tls.VersionTLS10), callerTLS.MinVersion)
	})
}

func generateTestCertificatePEM(t *testing.T) []byte {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "redis-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
}
