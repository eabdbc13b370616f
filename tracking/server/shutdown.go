package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
	"github.com/gofiber/fiber/v2"
)

const defaultShutdownTimeout = 30 * time.Second

// ErrNoServersConfigured indicates no servers were configured for the manager
var ErrNoServersConfigured = errors.New("no servers configured: use WithHTTPServer()")

// ShutdownHook releases one resource during shutdown.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

// ServerManager handles the graceful shutdown of the HTTP server and the
// resources behind it.
type ServerManager struct {
	httpServer         *fiber.App
	logger             log.Logger
	httpAddress        string
	hooks              []namedHook
	serversStarted     chan struct{}
	serversStartedOnce sync.Once
	shutdownChan       <-chan struct{}
	shutdownOnce       sync.Once
	shutdownErr        error
	shutdownTimeout    time.Duration
	startupErrors      chan error
}

// NewServerManager creates a new instance of ServerManager.
// If logger is nil, a no-op logger is used.
func NewServerManager(logger log.Logger) *ServerManager {
	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	return &ServerManager{
		logger:          logger,
		serversStarted:  make(chan struct{}),
		shutdownTimeout: defaultShutdownTimeout,
		startupErrors:   make(chan error, 1),
	}
}

// WithHTTPServer configures the HTTP server for the ServerManager.
func (sm *ServerManager) WithHTTPServer(app *fiber.App, address string) *ServerManager {
	sm.httpServer = app
	sm.httpAddress = address

	return sm
}

// WithShutdownHook registers fn to run after the HTTP server stops. Hooks run
// in registration order; a failing hook does not stop the ones after it.
func (sm *ServerManager) WithShutdownHook(name string, fn ShutdownHook) *ServerManager {
	if fn != nil {
		sm.hooks = append(sm.hooks, namedHook{name: name, fn: fn})
	}

	return sm
}

// WithShutdownChannel configures a custom shutdown channel for the ServerManager.
// This allows tests to trigger shutdown deterministically instead of relying on OS signals.
func (sm *ServerManager) WithShutdownChannel(ch <-chan struct{}) *ServerManager {
	sm.shutdownChan = ch

	return sm
}

// WithShutdownTimeout bounds the HTTP drain and the whole hook sequence.
// Defaults to 30 seconds.
func (sm *ServerManager) WithShutdownTimeout(d time.Duration) *ServerManager {
	if d > 0 {
		sm.shutdownTimeout = d
	}

	return sm
}

// ServersStarted returns a channel that is closed when server goroutines have been launched.
// Note: This signals that goroutines were spawned, not that sockets are bound and ready to accept connections.
func (sm *ServerManager) ServersStarted() <-chan struct{} {
	return sm.serversStarted
}

// StartWithGracefulShutdownWithError starts the server and blocks until a
// signal, the shutdown channel or a startup failure. It returns the startup
// failure, if any, joined with hook errors.
func (sm *ServerManager) StartWithGracefulShutdownWithError() error {
	if sm.httpServer == nil {
		return ErrNoServersConfigured
	}

	sm.startServers()

	startupErr := sm.waitForShutdown()

	sm.logger.Log(context.Background(), log.LevelInfo, "gracefully shutting down")

	return errors.Join(startupErr, sm.executeShutdown())
}

// StartWithGracefulShutdown is StartWithGracefulShutdownWithError that exits
// the process with status 1 on failure.
func (sm *ServerManager) StartWithGracefulShutdown() {
	defer func() {
		if r := recover(); r != nil {
			runtime.HandlePanicValue(context.Background(), sm.logger, r, "server", "StartWithGracefulShutdown")

			_ = sm.executeShutdown()

			os.Exit(1)
		}
	}()

	if err := sm.StartWithGracefulShutdownWithError(); err != nil {
		sm.logger.Log(context.Background(), log.LevelError, "server stopped with error", log.Err(err))

		os.Exit(1)
	}
}

func (sm *ServerManager) startServers() {
	runtime.SafeGoWithContextAndComponent(
		context.Background(),
		sm.logger,
		"server",
		"start_http_server",
		runtime.KeepRunning,
		func(ctx context.Context) {
			sm.logger.Log(ctx, log.LevelInfo, "starting HTTP server", log.String("address", sm.httpAddress))

			if err := sm.httpServer.Listen(sm.httpAddress); err != nil {
				sm.logger.Log(ctx, log.LevelError, "HTTP server error", log.Err(err))

				select {
				case sm.startupErrors <- fmt.Errorf("HTTP server: %w", err):
				default:
				}
			}
		},
	)

	sm.serversStartedOnce.Do(func() {
		close(sm.serversStarted)
	})
}

func (sm *ServerManager) waitForShutdown() error {
	if sm.shutdownChan != nil {
		select {
		case <-sm.shutdownChan:
			return nil
		case err := <-sm.startupErrors:
			return err
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	defer signal.Stop(c)

	select {
	case <-c:
		return nil
	case err := <-sm.startupErrors:
		return err
	}
}

// executeShutdown stops the HTTP server, runs hooks and syncs the logger.
// Only the first call does the work; later calls return the same result.
func (sm *ServerManager) executeShutdown() error {
	sm.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
		defer cancel()

		var errs []error

		if sm.httpServer != nil {
			if err := sm.httpServer.ShutdownWithTimeout(sm.shutdownTimeout); err != nil {
				sm.logger.Log(ctx, log.LevelError, "HTTP server shutdown failed", log.Err(err))
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}

		for _, hook := range sm.hooks {
			if err := sm.runHook(ctx, hook); err != nil {
				errs = append(errs, err)
			}
		}

		if err := sm.logger.Sync(ctx); err != nil {
			sm.logger.Log(ctx, log.LevelWarn, "failed to sync logger", log.Err(err))
		}

		sm.logger.Log(ctx, log.LevelInfo, "graceful shutdown completed")

		sm.shutdownErr = errors.Join(errs...)
	})

	return sm.shutdownErr
}

func (sm *ServerManager) runHook(ctx context.Context, hook namedHook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			runtime.HandlePanicValue(ctx, sm.logger, r, "server", "shutdown_hook_"+hook.name)

			err = fmt.Errorf("shutdown hook %s panicked: %v", hook.name, r)
		}
	}()

	sm.logger.Log(ctx, log.LevelInfo, "running shutdown hook", log.String("hook", hook.name))

	if err := hook.fn(ctx); err != nil {
		sm.logger.Log(ctx, log.LevelError, "shutdown hook failed", log.String("hook", hook.name), log.Err(err))

		return fmt.Errorf("shutdown hook %s: %w", hook.name, err)
	}

	return nil
}
