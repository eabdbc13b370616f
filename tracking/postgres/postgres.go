package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns        = 10
	defaultMinConns        = 1
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	// DefaultTable stores identity records.
	DefaultTable = "tracking_dedup_records"
)

var (
	// ErrNilClient is returned when a postgres client receiver is nil.
	ErrNilClient = errors.New("postgres client is nil")
	// ErrInvalidConfig indicates the provided postgres configuration is invalid.
	ErrInvalidConfig = errors.New("invalid postgres config")

	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	identifierPattern                  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// Config configures the pgx pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Logger          log.Logger
}

// Client owns a lazily connected pgxpool.Pool.
type Client struct {
	cfg       Config
	logger    log.Logger
	pool      *pgxpool.Pool
	connected bool
	mu        sync.RWMutex
}

// New validates cfg and returns an unconnected Client.
func New(cfg Config) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{cfg: normalized, logger: normalized.Logger}, nil
}

func normalizeConfig(cfg Config) (Config, error) {
	if nilcheck.Interface(cfg.Logger) {
		cfg.Logger = log.NewNop()
	}

	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" {
		return Config{}, configError("dsn is required")
	}

	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}

	if !identifierPattern.MatchString(cfg.Table) {
		return Config{}, configError(fmt.Sprintf("invalid table name: %q", cfg.Table))
	}

	if cfg.MaxConns <= 0 {
		cfg.MaxConns = defaultMaxConns
	}

	if cfg.MinConns <= 0 {
		cfg.MinConns = defaultMinConns
	}

	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}

	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = defaultConnMaxIdleTime
	}

	return cfg, nil
}

// Connect opens the pool and pings the server.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	if c.pool != nil {
		c.closeLocked()
	}

	c.logger.Log(ctx, log.LevelInfo, "connecting to postgres")

	poolCfg, err := pgxpool.ParseConfig(c.cfg.DSN)
	if err != nil {
		sanitized := sanitizeSensitiveError(err)
		c.logger.Log(ctx, log.LevelError, "failed to parse postgres dsn", log.String("error", sanitized))

		return fmt.Errorf("%w: %s", ErrInvalidConfig, sanitized)
	}

	poolCfg.MaxConns = c.cfg.MaxConns
	poolCfg.MinConns = c.cfg.MinConns
	poolCfg.MaxConnLifetime = c.cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = c.cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		sanitized := sanitizeSensitiveError(err)
		c.logger.Log(ctx, log.LevelError, "failed to open postgres pool", log.String("error", sanitized))

		return fmt.Errorf("failed to open postgres pool: %s", sanitized)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		sanitized := sanitizeSensitiveError(err)
		c.logger.Log(ctx, log.LevelError, "failed to ping postgres", log.String("error", sanitized))

		return fmt.Errorf("failed to ping postgres: %s", sanitized)
	}

	c.pool = pool
	c.connected = true

	c.logger.Log(ctx, log.LevelInfo, "connected to postgres")

	return nil
}

// Pool returns the pool, connecting on first use.
func (c *Client) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()

	if c.pool != nil {
		pool := c.pool
		c.mu.RUnlock()

		return pool, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return c.pool, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.pool, nil
}

// Table returns the configured records table.
func (c *Client) Table() string {
	if c == nil {
		return DefaultTable
	}

	return c.cfg.Table
}

// Close releases the pool.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	return nil
}

func (c *Client) closeLocked() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}

	c.connected = false
}

// IsConnected reports whether the pool is open.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

func sanitizeSensitiveError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := connectionStringCredentialsPattern.ReplaceAllString(err.Error(), "://***@")
	sanitized = connectionStringPasswordPattern.ReplaceAllString(sanitized, "${1}***")

	return sanitized
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
