package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking"
	"github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/retry"
	"gopkg.in/yaml.v3"
)

// Storage backends accepted by Storage.Backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

const (
	defaultServerAddress    = ":4010"
	defaultShutdownTimeout  = 30 * time.Second
	defaultBodyLimit        = 64 * 1024
	defaultLogLevel         = "info"
	defaultEnvName          = "development"
	defaultConversionsURL   = "https://graph.facebook.com/v19.0"
	defaultMeasurementURL   = "https://www.google-analytics.com/mp/collect"
	defaultUpstreamTimeout  = 10 * time.Second
	defaultRelayDedupWindow = 24 * time.Hour
)

var (
	// ErrUnsupportedBackend is returned for an unknown Storage.Backend.
	ErrUnsupportedBackend = errors.New("unsupported storage backend")
	// ErrMissingStorageAddress is returned when the selected backend has no address or DSN.
	ErrMissingStorageAddress = errors.New("storage backend address is required")
	// ErrMissingRelayCredentials is returned when an enabled upstream lacks its credentials.
	ErrMissingRelayCredentials = errors.New("relay upstream credentials are required")
	// ErrMissingCollectorEndpoint is returned when telemetry is enabled without a collector.
	ErrMissingCollectorEndpoint = errors.New("telemetry collector endpoint is required")
	// ErrInvalidLogLevel is returned when log_level names no known level.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Service is the configuration of a process hosting the relay and, optionally, a Tracker.
type Service struct {
	EnvName   string          `yaml:"env_name" env:"ENV_NAME"`
	Version   string          `yaml:"version" env:"VERSION"`
	LogLevel  string          `yaml:"log_level" env:"LOG_LEVEL"`
	Server    Server          `yaml:"server"`
	Storage   Storage         `yaml:"storage"`
	Relay     Relay           `yaml:"relay"`
	Telemetry Telemetry       `yaml:"telemetry"`
	Tracker   tracking.Config `yaml:"tracker"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Enabled           bool   `yaml:"enabled" env:"ENABLE_TELEMETRY"`
	CollectorEndpoint string `yaml:"collector_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure          bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Server configures the HTTP listener.
type Server struct {
	Address          string        `yaml:"address" env:"SERVER_ADDRESS"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	BodyLimit        int           `yaml:"body_limit" env:"SERVER_BODY_LIMIT"`
	CORSAllowOrigins string        `yaml:"cors_allow_origins" env:"ACCESS_CONTROL_ALLOW_ORIGIN"`
}

// Storage selects the backend of dedup records.
type Storage struct {
	Backend       string        `yaml:"backend" env:"STORAGE_BACKEND"`
	// RedisMode is standalone, sentinel or cluster. RedisAddress holds a comma
	// separated list for the latter two.
	RedisMode       string        `yaml:"redis_mode" env:"REDIS_MODE"`
	RedisAddress    string        `yaml:"redis_address" env:"REDIS_ADDRESS"`
	RedisMasterName string        `yaml:"redis_master_name" env:"REDIS_MASTER_NAME"`
	RedisPassword   string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB         int           `yaml:"redis_db" env:"REDIS_DB"`
	RedisTTL        time.Duration `yaml:"redis_ttl" env:"REDIS_TTL"`
	PostgresDSN     string        `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	PostgresTable   string        `yaml:"postgres_table" env:"POSTGRES_TABLE"`
	MongoURI        string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase   string        `yaml:"mongo_database" env:"MONGO_DATABASE"`
	MongoTTL        time.Duration `yaml:"mongo_ttl" env:"MONGO_TTL"`
}

// String hides credentials.
func (s Storage) String() string {
	password := ""
	if s.RedisPassword != "" {
		password = "REDACTED"
	}

	dsn := ""
	if s.PostgresDSN != "" {
		dsn = "REDACTED"
	}

	mongoURI := ""
	if s.MongoURI != "" {
		mongoURI = "REDACTED"
	}

	return fmt.Sprintf("Storage{Backend:%s RedisMode:%s RedisAddress:%s RedisPassword:%s PostgresDSN:%s MongoURI:%s MongoDatabase:%s}",
		s.Backend, s.RedisMode, s.RedisAddress, password, dsn, mongoURI, s.MongoDatabase)
}

// Relay configures the upstream collectors the relay forwards to.
type Relay struct {
	ConversionsURL string        `yaml:"conversions_url" env:"RELAY_CONVERSIONS_URL"`
	PixelID        string        `yaml:"pixel_id" env:"RELAY_PIXEL_ID"`
	AccessToken    string        `yaml:"access_token" env:"RELAY_ACCESS_TOKEN"`
	MeasurementURL string        `yaml:"measurement_url" env:"RELAY_MEASUREMENT_URL"`
	MeasurementID  string        `yaml:"measurement_id" env:"RELAY_MEASUREMENT_ID"`
	APISecret      string        `yaml:"api_secret" env:"RELAY_API_SECRET"`
	Timeout        time.Duration `yaml:"timeout" env:"RELAY_TIMEOUT"`
	Dedup          bool          `yaml:"dedup" env:"RELAY_DEDUP"`
	DedupWindow    time.Duration `yaml:"dedup_window" env:"RELAY_DEDUP_WINDOW"`

	Retry   retry.Policy          `yaml:"retry"`
	Breaker circuitbreaker.Config `yaml:"breaker"`
}

// String hides credentials.
func (r Relay) String() string {
	return fmt.Sprintf("Relay{ConversionsURL:%s PixelID:%s AccessToken:%s MeasurementURL:%s MeasurementID:%s APISecret:%s}",
		r.ConversionsURL, r.PixelID, redact(r.AccessToken), r.MeasurementURL, r.MeasurementID, redact(r.APISecret))
}

// ConversionsEnabled reports whether the conversions upstream is configured.
func (r Relay) ConversionsEnabled() bool { return r.PixelID != "" || r.AccessToken != "" }

// MeasurementEnabled reports whether the measurement upstream is configured.
func (r Relay) MeasurementEnabled() bool { return r.MeasurementID != "" || r.APISecret != "" }

func redact(value string) string {
	if value == "" {
		return ""
	}

	return "REDACTED"
}

// DefaultService returns the baseline every Load starts from.
func DefaultService() Service {
	return Service{
		EnvName:  defaultEnvName,
		LogLevel: defaultLogLevel,
		Server: Server{
			Address:         defaultServerAddress,
			ShutdownTimeout: defaultShutdownTimeout,
			BodyLimit:       defaultBodyLimit,
		},
		Storage: Storage{Backend: BackendMemory},
		Relay: Relay{
			ConversionsURL: defaultConversionsURL,
			MeasurementURL: defaultMeasurementURL,
			Timeout:        defaultUpstreamTimeout,
			DedupWindow:    defaultRelayDedupWindow,
			Retry:          retry.DefaultPolicy(),
			Breaker:        circuitbreaker.HTTPServiceConfig(),
		},
		Tracker: tracking.DefaultConfig(),
	}
}

// Load applies each YAML file in paths over DefaultService, then the
// environment, then WithDefaults. Entries of paths may be comma-separated lists.
func Load(paths ...string) (*Service, error) {
	cfg := DefaultService()

	for _, entry := range paths {
		for _, path := range strings.Split(entry, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}

			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := SetConfigFromEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WithDefaults fills zero values left by files or the environment.
func (s *Service) WithDefaults() *Service {
	if s == nil {
		return nil
	}

	defaults := DefaultService()

	if s.EnvName == "" {
		s.EnvName = defaults.EnvName
	}

	if s.LogLevel == "" {
		s.LogLevel = defaults.LogLevel
	}

	if s.Server.Address == "" {
		s.Server.Address = defaults.Server.Address
	}

	if s.Server.ShutdownTimeout <= 0 {
		s.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if s.Server.BodyLimit <= 0 {
		s.Server.BodyLimit = defaults.Server.BodyLimit
	}

	s.Storage.Backend = strings.ToLower(strings.TrimSpace(s.Storage.Backend))
	s.Storage.RedisMode = strings.ToLower(strings.TrimSpace(s.Storage.RedisMode))
	if s.Storage.Backend == "" {
		s.Storage.Backend = BackendMemory
	}

	if s.Relay.ConversionsURL == "" {
		s.Relay.ConversionsURL = defaults.Relay.ConversionsURL
	}

	if s.Relay.MeasurementURL == "" {
		s.Relay.MeasurementURL = defaults.Relay.MeasurementURL
	}

	if s.Relay.Timeout <= 0 {
		s.Relay.Timeout = defaults.Relay.Timeout
	}

	if s.Relay.DedupWindow <= 0 {
		s.Relay.DedupWindow = defaults.Relay.DedupWindow
	}

	if s.Relay.Retry == (retry.Policy{}) {
		s.Relay.Retry = defaults.Relay.Retry
	}

	if s.Relay.Breaker == (circuitbreaker.Config{}) {
		s.Relay.Breaker = defaults.Relay.Breaker
	}

	return s
}

// Validate checks the log level, the storage backend, relay credentials and telemetry export.
func (s *Service) Validate() error {
	if _, err := log.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLogLevel, err)
	}

	switch s.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if s.Storage.RedisAddress == "" {
			return fmt.Errorf("%w: redis_address", ErrMissingStorageAddress)
		}

		if s.Storage.RedisMode == "sentinel" && s.Storage.RedisMasterName == "" {
			return fmt.Errorf("%w: redis_master_name", ErrMissingStorageAddress)
		}
	case BackendPostgres:
		if s.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn", ErrMissingStorageAddress)
		}
	case BackendMongo:
		if s.Storage.MongoURI == "" || s.Storage.MongoDatabase == "" {
			return fmt.Errorf("%w: mongo_uri and mongo_database", ErrMissingStorageAddress)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, s.Storage.Backend)
	}

	if s.Relay.ConversionsEnabled() && (s.Relay.PixelID == "" || s.Relay.AccessToken == "") {
		return fmt.Errorf("%w: conversions needs pixel_id and access_token", ErrMissingRelayCredentials)
	}

	if s.Relay.MeasurementEnabled() && (s.Relay.MeasurementID == "" || s.Relay.APISecret == "") {
		return fmt.Errorf("%w: measurement needs measurement_id and api_secret", ErrMissingRelayCredentials)
	}

	if s.Telemetry.Enabled && s.Telemetry.CollectorEndpoint == "" {
		return ErrMissingCollectorEndpoint
	}

	return nil
}
