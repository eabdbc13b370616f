package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/backoff"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/LerianStudio/lib-tracking/tracking/redis"

	defaultPoolSize     = 10
	maxPoolSize         = 1000
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultMaxRetries   = 3
	reconnectBase       = 500 * time.Millisecond
	reconnectBackoffCap = 30 * time.Second
)

var (
	// ErrNilClient is returned when a redis client receiver is nil.
	ErrNilClient = errors.New("redis client is nil")
	// ErrInvalidConfig indicates the provided redis configuration is invalid.
	ErrInvalidConfig = errors.New("invalid redis config")
	// ErrReconnectThrottled is returned while a failed reconnect is backing off.
	ErrReconnectThrottled = errors.New("redis reconnect throttled")
)

// Mode selects the Redis deployment the client talks to.
type Mode string

// Supported modes.
const (
	ModeStandalone Mode = "standalone"
	ModeSentinel   Mode = "sentinel"
	ModeCluster    Mode = "cluster"
)

// Config describes how to reach the Redis (or Valkey) deployment holding
// dedup records.
type Config struct {
	// Mode defaults to ModeStandalone.
	Mode Mode
	// Addresses holds one node for standalone, the sentinels or the cluster seeds.
	Addresses  []string
	MasterName string
	Username   string
	Password   string
	DB         int
	TLS        *TLSConfig

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxRetries is the per-command retry count of go-redis; -1 disables retries.
	MaxRetries int

	Logger        log.Logger
	MeterProvider metric.MeterProvider
}

// String hides the password.
func (c Config) String() string {
	password := ""
	if c.Password != "" {
		password = "REDACTED"
	}

	return fmt.Sprintf("redis.Config{Mode:%s Addresses:%v MasterName:%s Username:%s Password:%s DB:%d TLS:%t}",
		c.Mode, c.Addresses, c.MasterName, c.Username, password, c.DB, c.TLS != nil)
}

// GoString hides the password for %#v.
func (c Config) GoString() string { return c.String() }

// TLSConfig enables TLS with a pinned CA.
type TLSConfig struct {
	CACertBase64 string
	MinVersion   uint16
}

// ParseAddresses splits a comma separated address list, dropping blanks.
func ParseAddresses(list string) []string {
	var addresses []string

	for _, address := range strings.Split(list, ",") {
		if address = strings.TrimSpace(address); address != "" {
			addresses = append(addresses, address)
		}
	}

	return addresses
}

// Client owns a redis.UniversalClient and reconnects it on demand, backing
// off after failures.
type Client struct {
	mu     sync.RWMutex
	cfg    Config
	logger log.Logger
	client redis.UniversalClient
	now    func() time.Time

	connectionFailures metric.Int64Counter

	lastReconnect     time.Time
	reconnectAttempts int
}

// New validates cfg, connects and pings the deployment.
func New(ctx context.Context, cfg Config) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: normalized, logger: normalized.Logger, now: time.Now}
	c.initMetrics(normalized.MeterProvider)

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect (re)establishes the connection, replacing any previous one.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx, "connect")
}

// UniversalClient returns the live client, reconnecting when the previous
// connection was dropped. Failed reconnects are throttled with exponential
// backoff.
func (c *Client) UniversalClient(ctx context.Context) (redis.UniversalClient, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client != nil {
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	if c.reconnectAttempts > 0 {
		delay := backoff.Reconnect(reconnectBase, c.reconnectAttempts, reconnectBackoffCap)
		if wait := delay - c.now().Sub(c.lastReconnect); wait > 0 {
			return nil, fmt.Errorf("%w: next attempt in %s", ErrReconnectThrottled, wait.Round(time.Millisecond))
		}
	}

	c.lastReconnect = c.now()

	if err := c.connectLocked(ctx, "reconnect"); err != nil {
		c.reconnectAttempts++
		return nil, err
	}

	c.reconnectAttempts = 0

	return c.client, nil
}

// Ping checks the deployment answers.
func (c *Client) Ping(ctx context.Context) error {
	client, err := c.UniversalClient(ctx)
	if err != nil {
		return err
	}

	return client.Ping(ctx).Err()
}

// IsConnected reports whether a connection is held.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.client != nil
}

// Close releases the connection. A later UniversalClient call reconnects.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.dropLocked()
}

func (c *Client) connectLocked(ctx context.Context, operation string) error {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "redis."+operation)
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("app.redis.mode", string(c.cfg.Mode)),
	)

	if err := c.dropLocked(); err != nil {
		c.logger.Log(ctx, log.LevelWarn, "closing previous redis client failed", log.Err(err))
	}

	opts, err := c.universalOptions()
	if err != nil {
		return err
	}

	rdb := newUniversalClient(c.cfg.Mode, opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()

		c.recordConnectionFailure(ctx, operation)
		c.logger.Log(ctx, log.LevelError, "redis ping failed",
			log.String("operation", operation),
			log.String("mode", string(c.cfg.Mode)),
			log.Err(err))

		span.RecordError(err)
		span.SetStatus(codes.Error, "redis ping failed")

		return fmt.Errorf("redis %s: ping: %w", operation, err)
	}

	c.client = rdb

	c.logger.Log(ctx, log.LevelInfo, "connected to redis",
		log.String("mode", string(c.cfg.Mode)),
		log.Bool("tls", c.cfg.TLS != nil))

	return nil
}

func (c *Client) dropLocked() error {
	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil

	return err
}

func (c *Client) universalOptions() (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		Addrs:        c.cfg.Addresses,
		Username:     c.cfg.Username,
		Password:     c.cfg.Password,
		DB:           c.cfg.DB,
		PoolSize:     c.cfg.PoolSize,
		DialTimeout:  c.cfg.DialTimeout,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		MaxRetries:   c.cfg.MaxRetries,
	}

	if c.cfg.Mode == ModeSentinel {
		opts.MasterName = c.cfg.MasterName
	}

	if c.cfg.TLS != nil {
		tlsCfg, err := buildTLSConfig(*c.cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("redis TLS config: %w", err)
		}

		opts.TLSConfig = tlsCfg
	}

	return opts, nil
}

// newUniversalClient picks the client by mode rather than by address count,
// so a single cluster seed still yields a cluster client.
func newUniversalClient(mode Mode, opts *redis.UniversalOptions) redis.UniversalClient {
	switch mode {
	case ModeCluster:
		return redis.NewClusterClient(opts.Cluster())
	case ModeSentinel:
		return redis.NewFailoverClient(opts.Failover())
	default:
		return redis.NewClient(opts.Simple())
	}
}

func normalizeConfig(cfg Config) (Config, error) {
	cfg.Logger = log.OrNop(cfg.Logger)
	cfg.Addresses = ParseAddresses(strings.Join(cfg.Addresses, ","))

	if cfg.Mode == "" {
		cfg.Mode = ModeStandalone
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}

	cfg.PoolSize = min(cfg.PoolSize, maxPoolSize)

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.TLS != nil {
		tlsCfg := *cfg.TLS
		tlsCfg.MinVersion = max(tlsCfg.MinVersion, tls.VersionTLS12)
		cfg.TLS = &tlsCfg
	}

	return cfg, validateConfig(cfg)
}

func validateConfig(cfg Config) error {
	switch cfg.Mode {
	case ModeStandalone:
		if len(cfg.Addresses) != 1 {
			return configError("standalone mode needs exactly one address")
		}
	case ModeSentinel:
		if len(cfg.Addresses) == 0 {
			return configError("sentinel mode needs at least one sentinel address")
		}

		if strings.TrimSpace(cfg.MasterName) == "" {
			return configError("sentinel mode needs a master name")
		}
	case ModeCluster:
		if len(cfg.Addresses) == 0 {
			return configError("cluster mode needs at least one seed address")
		}

		if cfg.DB != 0 {
			return configError("cluster mode only supports DB 0")
		}
	default:
		return configError(fmt.Sprintf("unknown mode %q", cfg.Mode))
	}

	if cfg.TLS != nil && strings.TrimSpace(cfg.TLS.CACertBase64) == "" {
		return configError("TLS CA cert is required when TLS is configured")
	}

	return nil
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	caCert, err := base64.StdEncoding.DecodeString(cfg.CACertBase64)
	if err != nil {
		return nil, fmt.Errorf("decode CA cert: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, configError("CA cert holds no PEM certificate")
	}

	return &tls.Config{RootCAs: pool, MinVersion: max(cfg.MinVersion, tls.VersionTLS12)}, nil
}

func (c *Client) initMetrics(provider metric.MeterProvider) {
	if nilcheck.Interface(provider) {
		provider = otel.GetMeterProvider()
	}

	counter, err := provider.Meter(instrumentationName).Int64Counter("redis_connection_failures_total",
		metric.WithDescription("Failed redis connects and reconnects"),
		metric.WithUnit("1"))
	if err != nil {
		c.logger.Log(context.Background(), log.LevelWarn, "redis failure counter unavailable", log.Err(err))
		return
	}

	c.connectionFailures = counter
}

func (c *Client) recordConnectionFailure(ctx context.Context, operation string) {
	if c.connectionFailures == nil {
		return
	}

	c.connectionFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
