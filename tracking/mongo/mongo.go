package mongo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/backoff"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/LerianStudio/lib-tracking/tracking/mongo"
	dbSystemMongoDB     = "mongodb"

	defaultServerSelectionTimeout = 5 * time.Second
	defaultHeartbeatInterval      = 10 * time.Second
	maxMaxPoolSize                = 1000
	connectBackoffCap             = 30 * time.Second

	// DefaultCollection stores identity records.
	DefaultCollection = "tracking_dedup_records"
)

// Errors of the dedup record client. Connection errors never carry the URI
// credentials.
var (
	ErrNilClient     = errors.New("mongo client is nil")
	ErrClientClosed  = errors.New("mongo client is closed")
	ErrInvalidConfig = errors.New("invalid mongo config")
	ErrConnect       = errors.New("mongo connect failed")
	ErrPing          = errors.New("mongo ping failed")
	ErrDisconnect    = errors.New("mongo disconnect failed")

	uriCredentialsPattern = regexp.MustCompile(`://[^@\s/]+@`)
)

// TLSConfig pins the CA used to verify the server. MinVersion below TLS 1.2
// is raised to it.
type TLSConfig struct {
	CACertBase64 string
	MinVersion   uint16
}

// Config locates the collection holding dedup records. Collection defaults to
// DefaultCollection.
type Config struct {
	URI                    string
	Database               string
	Collection             string
	MaxPoolSize            uint64
	ServerSelectionTimeout time.Duration
	HeartbeatInterval      time.Duration
	TLS                    *TLSConfig
	Logger                 log.Logger
	MeterProvider          metric.MeterProvider
}

// Option replaces driver calls, mostly for tests.
type Option func(*clientDeps)

type clientDeps struct {
	connect    func(context.Context, *options.ClientOptions) (*mongo.Client, error)
	ping       func(context.Context, *mongo.Client) error
	disconnect func(context.Context, *mongo.Client) error
}

// WithConnectFunc replaces mongo.Connect.
func WithConnectFunc(fn func(context.Context, *options.ClientOptions) (*mongo.Client, error)) Option {
	return func(d *clientDeps) {
		if fn != nil {
			d.connect = fn
		}
	}
}

// WithPingFunc replaces the server ping.
func WithPingFunc(fn func(context.Context, *mongo.Client) error) Option {
	return func(d *clientDeps) {
		if fn != nil {
			d.ping = fn
		}
	}
}

// WithDisconnectFunc replaces the driver disconnect.
func WithDisconnectFunc(fn func(context.Context, *mongo.Client) error) Option {
	return func(d *clientDeps) {
		if fn != nil {
			d.disconnect = fn
		}
	}
}

func defaultDeps() clientDeps {
	return clientDeps{
		connect: func(ctx context.Context, clientOptions *options.ClientOptions) (*mongo.Client, error) {
			return mongo.Connect(ctx, clientOptions)
		},
		ping: func(ctx context.Context, client *mongo.Client) error {
			return client.Ping(ctx, nil)
		},
		disconnect: func(ctx context.Context, client *mongo.Client) error {
			return client.Disconnect(ctx)
		},
	}
}

// Client wraps a *mongo.Client with lifecycle helpers.
type Client struct {
	mu     sync.RWMutex
	client *mongo.Client
	cfg    Config
	logger log.Logger
	deps   clientDeps

	connectionFailures metric.Int64Counter

	lastConnectAttempt time.Time
	connectAttempts    int
}

// New validates cfg and returns an unconnected Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	deps := defaultDeps()

	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	c := &Client{cfg: normalized, logger: normalized.Logger, deps: deps}
	c.initMetrics(normalized.MeterProvider)

	return c, nil
}

func normalizeConfig(cfg Config) (Config, error) {
	cfg.Logger = log.OrNop(cfg.Logger)

	cfg.URI = strings.TrimSpace(cfg.URI)
	if cfg.URI == "" {
		return Config{}, configError("uri is required")
	}

	cfg.Database = strings.TrimSpace(cfg.Database)
	if cfg.Database == "" {
		return Config{}, configError("database is required")
	}

	cfg.Collection = strings.TrimSpace(cfg.Collection)
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	if cfg.MaxPoolSize > maxMaxPoolSize {
		cfg.MaxPoolSize = maxMaxPoolSize
	}

	if cfg.ServerSelectionTimeout <= 0 {
		cfg.ServerSelectionTimeout = defaultServerSelectionTimeout
	}

	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}

	if cfg.TLS != nil {
		if strings.TrimSpace(cfg.TLS.CACertBase64) == "" {
			return Config{}, configError("TLS CA cert is required when TLS is configured")
		}

		tlsCopy := *cfg.TLS
		if tlsCopy.MinVersion < tls.VersionTLS12 {
			tlsCopy.MinVersion = tls.VersionTLS12
		}

		cfg.TLS = &tlsCopy
	}

	return cfg, nil
}

// Connect establishes the connection if none is open.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "mongo.connect")
	defer span.End()

	span.SetAttributes(attribute.String("db.system", dbSystemMongoDB))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	if err := c.connectLocked(ctx); err != nil {
		c.recordConnectionFailure(ctx, "connect")

		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect to mongo")

		return err
	}

	return nil
}

// connectLocked requires c.mu held for writing.
func (c *Client) connectLocked(ctx context.Context) error {
	clientOptions := options.Client().ApplyURI(c.cfg.URI)
	clientOptions.SetServerSelectionTimeout(c.cfg.ServerSelectionTimeout)
	clientOptions.SetHeartbeatInterval(c.cfg.HeartbeatInterval)

	if c.cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(c.cfg.MaxPoolSize)
	}

	if c.cfg.TLS != nil {
		tlsCfg, err := buildTLSConfig(*c.cfg.TLS)
		if err != nil {
			return fmt.Errorf("%w: TLS configuration: %w", ErrConnect, err)
		}

		clientOptions.SetTLSConfig(tlsCfg)
	}

	c.logger.Log(ctx, log.LevelInfo, "connecting to mongo", log.String("uri", redactURI(c.cfg.URI)))

	mongoClient, err := c.deps.connect(ctx, clientOptions)
	if err != nil {
		c.logger.Log(ctx, log.LevelError, "mongo connect failed", log.String("error", redactURI(err.Error())))

		return fmt.Errorf("%w: %s", ErrConnect, redactURI(err.Error()))
	}

	if mongoClient == nil {
		return fmt.Errorf("%w: driver returned no client", ErrConnect)
	}

	if err := c.deps.ping(ctx, mongoClient); err != nil {
		if disconnectErr := c.deps.disconnect(ctx, mongoClient); disconnectErr != nil {
			c.logger.Log(ctx, log.LevelWarn, "failed to disconnect after ping failure", log.Err(disconnectErr))
		}

		c.logger.Log(ctx, log.LevelError, "mongo ping failed", log.Err(err))

		return fmt.Errorf("%w: %w", ErrPing, err)
	}

	c.client = mongoClient

	if c.cfg.TLS == nil && !isTLSImplied(c.cfg.URI) {
		c.logger.Log(ctx, log.LevelWarn, "mongo connection established without TLS")
	}

	c.logger.Log(ctx, log.LevelInfo, "connected to mongo", log.String("database", c.cfg.Database))

	return nil
}

// ResolveClient returns the connected client, reconnecting on demand with
// exponential backoff between failed attempts.
func (c *Client) ResolveClient(ctx context.Context) (*mongo.Client, error) {
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

	if c.connectAttempts > 0 {
		delay := backoff.Reconnect(time.Second, c.connectAttempts, connectBackoffCap)

		if elapsed := time.Since(c.lastConnectAttempt); elapsed < delay {
			return nil, fmt.Errorf("%w: reconnect rate-limited, next attempt in %s", ErrClientClosed, delay-elapsed)
		}
	}

	c.lastConnectAttempt = time.Now()

	if err := c.connectLocked(ctx); err != nil {
		c.connectAttempts++
		c.recordConnectionFailure(ctx, "resolve")

		return nil, err
	}

	c.connectAttempts = 0

	return c.client, nil
}

// Collection returns the records collection, connecting on first use.
func (c *Client) Collection(ctx context.Context) (*mongo.Collection, error) {
	client, err := c.ResolveClient(ctx)
	if err != nil {
		return nil, err
	}

	return client.Database(c.cfg.Database).Collection(c.cfg.Collection), nil
}

// Ping checks availability over the active connection.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil {
		return ErrClientClosed
	}

	if err := c.deps.ping(ctx, client); err != nil {
		return fmt.Errorf("%w: %w", ErrPing, err)
	}

	return nil
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.client != nil
}

// Close releases the connection. The client counts as closed even when the
// driver disconnect fails.
func (c *Client) Close(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	err := c.deps.disconnect(ctx, c.client)
	c.client = nil

	if err != nil {
		c.logger.Log(ctx, log.LevelWarn, "mongo disconnect failed", log.Err(err))

		return fmt.Errorf("%w: %w", ErrDisconnect, err)
	}

	return nil
}

func (c *Client) initMetrics(provider metric.MeterProvider) {
	if nilcheck.Interface(provider) {
		provider = otel.GetMeterProvider()
	}

	counter, err := provider.Meter(instrumentationName).Int64Counter("mongo_connection_failures_total",
		metric.WithDescription("Total number of mongo connection failures"),
		metric.WithUnit("1"))
	if err != nil {
		c.logger.Log(context.Background(), log.LevelWarn, "failed to create mongo metric counter", log.Err(err))
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

// buildTLSConfig accepts MinVersion TLS 1.2 or 1.3 only.
func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	caCert, err := base64.StdEncoding.DecodeString(cfg.CACertBase64)
	if err != nil {
		return nil, fmt.Errorf("decode CA cert: %w", err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caCert) {
		return nil, configError("CA cert holds no PEM certificate")
	}

	if cfg.MinVersion != tls.VersionTLS12 && cfg.MinVersion != tls.VersionTLS13 {
		return nil, fmt.Errorf("%w: unsupported TLS MinVersion %#x", ErrInvalidConfig, cfg.MinVersion)
	}

	return &tls.Config{RootCAs: roots, MinVersion: cfg.MinVersion}, nil
}

func isTLSImplied(uri string) bool {
	return strings.HasPrefix(uri, "mongodb+srv://") ||
		strings.Contains(uri, "tls=true") ||
		strings.Contains(uri, "ssl=true")
}

func redactURI(s string) string {
	return uriCredentialsPattern.ReplaceAllString(s, "://***@")
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
