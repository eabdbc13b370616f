// Command relay serves the conversion and measurement relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/LerianStudio/lib-tracking/tracking"
	"github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"
	"github.com/LerianStudio/lib-tracking/tracking/config"
	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/mongo"
	"github.com/LerianStudio/lib-tracking/tracking/opentelemetry"
	"github.com/LerianStudio/lib-tracking/tracking/postgres"
	trackingredis "github.com/LerianStudio/lib-tracking/tracking/redis"
	"github.com/LerianStudio/lib-tracking/tracking/relay"
	trackingruntime "github.com/LerianStudio/lib-tracking/tracking/runtime"
	"github.com/LerianStudio/lib-tracking/tracking/server"
	trackingzap "github.com/LerianStudio/lib-tracking/tracking/zap"
	"go.opentelemetry.io/otel/metric"
)

const (
	serviceName    = "tracking-relay"
	dedupNamespace = "relay"
)

func main() {
	if err := run(); err != nil {
		log.NewGoLogger(log.LevelError).Log(context.Background(), log.LevelError, "relay stopped", log.Err(err))
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("c", "", "comma separated YAML config files")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The OTLP copy of each entry goes through the global logger provider,
	// which opentelemetry.New installs below.
	logger, err := trackingzap.New(trackingzap.Config{
		Environment: cfg.EnvName,
		Level:       cfg.LogLevel,
		ServiceName: serviceName,
		Version:     cfg.Version,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx := context.Background()

	logger.Log(ctx, log.LevelInfo, "starting relay",
		log.String("version", cfg.Version),
		log.String("env", cfg.EnvName),
		log.String("storage", cfg.Storage.String()),
		log.String("relay", cfg.Relay.String()))

	tl, err := opentelemetry.New(ctx, opentelemetry.Config{
		LibraryName:               serviceName,
		ServiceName:               serviceName,
		ServiceVersion:            cfg.Version,
		DeploymentEnv:             cfg.EnvName,
		CollectorExporterEndpoint: cfg.Telemetry.CollectorEndpoint,
		EnableTelemetry:           cfg.Telemetry.Enabled,
		Insecure:                  cfg.Telemetry.Insecure,
		Logger:                    logger,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	if err := trackingruntime.InitPanicMetrics(tl.Meter()); err != nil {
		logger.Log(ctx, log.LevelWarn, "panic counter unavailable", log.Err(err))
	}

	trackingruntime.SetPanicReporter(opentelemetry.PanicReporter{})

	store, closeStore, err := openDedupStore(ctx, cfg, logger, tl.Meter())
	if err != nil {
		_ = tl.Shutdown(ctx)
		return err
	}

	opts := []relay.Option{
		relay.WithLogger(logger),
		relay.WithBreakerManager(circuitbreaker.NewManager(logger, circuitbreaker.WithMeterProvider(tl.Meter()))),
	}
	if store != nil {
		opts = append(opts, relay.WithDedupStore(store))
	}

	r, err := relay.New(cfg.Relay, opts...)
	if err != nil {
		_ = closeStore(ctx)
		_ = tl.Shutdown(ctx)

		return fmt.Errorf("init relay: %w", err)
	}

	app, err := relay.NewApp(r, relay.AppConfig{
		Name:             serviceName,
		Version:          cfg.Version,
		BodyLimit:        cfg.Server.BodyLimit,
		CORSAllowOrigins: cfg.Server.CORSAllowOrigins,
		Logger:           logger,
		Telemetry:        tl,
	})
	if err != nil {
		_ = closeStore(ctx)
		_ = tl.Shutdown(ctx)

		return fmt.Errorf("init relay app: %w", err)
	}

	manager := server.NewServerManager(logger).
		WithHTTPServer(app, cfg.Server.Address).
		WithShutdownTimeout(cfg.Server.ShutdownTimeout).
		WithShutdownHook("dedup-storage", closeStore).
		WithShutdownHook("telemetry", tl.Shutdown)

	launcher := tracking.NewLauncher(
		tracking.WithLauncherLogger(logger),
		tracking.RunApp(serviceName, tracking.AppFunc(func(*tracking.Launcher) error {
			return manager.StartWithGracefulShutdownWithError()
		})),
	)

	return launcher.RunWithError()
}

// openDedupStore builds the relay dedup store on the configured backend. The
// returned hook releases the backend and is never nil.
func openDedupStore(ctx context.Context, cfg *config.Service, logger log.Logger, meters metric.MeterProvider) (*identity.KeyedStore, server.ShutdownHook, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Relay.Dedup {
		return nil, noop, nil
	}

	var (
		storage identity.Storage
		closer  = noop
	)

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		storage = identity.NewMemoryStorage()
	case config.BackendRedis:
		client, err := trackingredis.New(ctx, trackingredis.Config{
			Mode:          trackingredis.Mode(cfg.Storage.RedisMode),
			Addresses:     trackingredis.ParseAddresses(cfg.Storage.RedisAddress),
			MasterName:    cfg.Storage.RedisMasterName,
			Password:      cfg.Storage.RedisPassword,
			DB:            cfg.Storage.RedisDB,
			Logger:        logger,
			MeterProvider: meters,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("connect redis: %w", err)
		}

		closer = func(context.Context) error { return client.Close() }

		redisStorage, err := trackingredis.NewIdentityStorage(client, cfg.Storage.RedisTTL)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}

		storage = redisStorage
	case config.BackendPostgres:
		client, err := postgres.New(postgres.Config{
			DSN:    cfg.Storage.PostgresDSN,
			Table:  cfg.Storage.PostgresTable,
			Logger: logger,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("configure postgres: %w", err)
		}

		if err := client.Connect(ctx); err != nil {
			return nil, noop, fmt.Errorf("connect postgres: %w", err)
		}

		closer = func(context.Context) error { return client.Close() }

		pgStorage, err := postgres.NewIdentityStorage(client)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}

		if err := pgStorage.EnsureSchema(ctx); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ensure dedup schema: %w", err)
		}

		storage = pgStorage
	case config.BackendMongo:
		client, err := mongo.New(mongo.Config{
			URI:           cfg.Storage.MongoURI,
			Database:      cfg.Storage.MongoDatabase,
			Logger:        logger,
			MeterProvider: meters,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("configure mongo: %w", err)
		}

		if err := client.Connect(ctx); err != nil {
			return nil, noop, fmt.Errorf("connect mongo: %w", err)
		}

		closer = client.Close

		mongoStorage, err := mongo.NewIdentityStorage(client, cfg.Storage.MongoTTL)
		if err != nil {
			_ = client.Close(ctx)
			return nil, noop, err
		}

		if err := mongoStorage.EnsureSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, noop, fmt.Errorf("ensure dedup indexes: %w", err)
		}

		storage = mongoStorage
	default:
		return nil, noop, fmt.Errorf("%w: %s", config.ErrUnsupportedBackend, cfg.Storage.Backend)
	}

	store, err := identity.NewKeyedStore(storage, dedupNamespace,
		identity.WithWindows(identity.Windows{identity.DefaultWindowKey: cfg.Relay.DedupWindow}),
		identity.WithLogger(logger))
	if err != nil {
		_ = closer(ctx)
		return nil, noop, err
	}

	return store, closer, nil
}
