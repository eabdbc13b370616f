package zap

import (
	"errors"
	"fmt"
	"strings"

	logpkg "github.com/LerianStudio/lib-tracking/tracking/log"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingServiceName is returned by New when Config.ServiceName is blank.
var ErrMissingServiceName = errors.New("zap: service name is required")

// Config builds a Logger.
type Config struct {
	// Environment "production" and "staging" select the production profile
	// at info level. Any other value is treated as a development setup and
	// logs at debug.
	Environment string
	// Level overrides the environment default. Accepts the names of log.ParseLevel.
	Level string
	// ServiceName tags every entry and names the OpenTelemetry log scope.
	ServiceName string
	Version     string
	// LoggerProvider receives a copy of every entry. Nil uses the global
	// provider, which forwards to the one installed by the telemetry package.
	LoggerProvider otellog.LoggerProvider
}

func (c Config) production() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "production", "staging":
		return true
	default:
		return false
	}
}

// New builds a JSON logger that also feeds the OpenTelemetry log pipeline.
func New(cfg Config) (*Logger, error) {
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return nil, ErrMissingServiceName
	}

	level, err := resolveLevel(cfg)
	if err != nil {
		return nil, err
	}

	base := baseConfig(cfg.production())
	base.Level = level

	bridgeOpts := []otelzap.Option{otelzap.WithVersion(cfg.Version)}
	if cfg.LoggerProvider != nil {
		bridgeOpts = append(bridgeOpts, otelzap.WithLoggerProvider(cfg.LoggerProvider))
	}

	bridge := otelzap.NewCore(cfg.ServiceName, bridgeOpts...)

	built, err := base.Build(
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("service", cfg.ServiceName), zap.String("version", cfg.Version)),
		zap.WrapCore(func(core zapcore.Core) zapcore.Core { return zapcore.NewTee(core, bridge) }),
	)
	if err != nil {
		return nil, fmt.Errorf("zap: build logger: %w", err)
	}

	return &Logger{logger: built, level: level}, nil
}

func resolveLevel(cfg Config) (zap.AtomicLevel, error) {
	if strings.TrimSpace(cfg.Level) == "" {
		if cfg.production() {
			return zap.NewAtomicLevelAt(zapcore.InfoLevel), nil
		}

		return zap.NewAtomicLevelAt(zapcore.DebugLevel), nil
	}

	level, err := logpkg.ParseLevel(cfg.Level)
	if err != nil {
		return zap.AtomicLevel{}, fmt.Errorf("zap: %w", err)
	}

	return zap.NewAtomicLevelAt(toZapLevel(level)), nil
}

func baseConfig(production bool) zap.Config {
	cfg := zap.NewDevelopmentConfig()
	if production {
		cfg = zap.NewProductionConfig()
	}

	cfg.Encoding = "json"
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg
}
