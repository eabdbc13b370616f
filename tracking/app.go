package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
)

var (
	// ErrLoggerNil is returned when the launcher has no logger.
	ErrLoggerNil = errors.New("logger is nil")
	// ErrNilLauncher is returned when a launcher method is called on a nil receiver.
	ErrNilLauncher = errors.New("launcher is nil")
	// ErrEmptyApp is returned when an app name is empty or whitespace.
	ErrEmptyApp = errors.New("app name is empty")
	// ErrNilApp is returned when a nil app instance is provided.
	ErrNilApp = errors.New("app is nil")
	// ErrConfigFailed is returned when launcher option application collected errors.
	ErrConfigFailed = errors.New("launcher configuration failed")
)

// App is a long-running component started by a Launcher, such as the relay
// HTTP server.
type App interface {
	Run(launcher *Launcher) error
}

// AppFunc adapts a function to App.
type AppFunc func(launcher *Launcher) error

// Run implements App.
func (fn AppFunc) Run(launcher *Launcher) error {
	return fn(launcher)
}

// LauncherOption configures a Launcher.
type LauncherOption func(l *Launcher)

// WithLauncherLogger sets the launcher logger.
func WithLauncherLogger(logger log.Logger) LauncherOption {
	return func(l *Launcher) {
		if !nilcheck.Interface(logger) {
			l.Logger = logger
		}
	}
}

// RunApp registers an application with the launcher.
// Registration errors surface when RunWithError is called.
func RunApp(name string, app App) LauncherOption {
	return func(l *Launcher) {
		if err := l.Add(name, app); err != nil {
			l.configErrors = append(l.configErrors, fmt.Errorf("add app %q: %w", name, err))
		}
	}
}

// Launcher runs registered apps concurrently and waits for all of them.
type Launcher struct {
	Logger       log.Logger
	apps         map[string]App
	configErrors []error
	mu           sync.Mutex
}

// NewLauncher creates a Launcher.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{apps: make(map[string]App)}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Add registers app under appName.
func (l *Launcher) Add(appName string, app App) error {
	if l == nil {
		return ErrNilLauncher
	}

	if strings.TrimSpace(appName) == "" {
		return ErrEmptyApp
	}

	if nilcheck.Interface(app) {
		return ErrNilApp
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.apps == nil {
		l.apps = make(map[string]App)
	}

	l.apps[appName] = app

	return nil
}

// Run runs every app and logs the joined error, if any.
func (l *Launcher) Run() {
	if err := l.RunWithError(); err != nil && l != nil && l.Logger != nil {
		l.Logger.Log(context.Background(), log.LevelError, "launcher error", log.Err(err))
	}
}

// RunWithError runs every app and returns their errors joined. A panicking
// app is logged and does not stop the others.
func (l *Launcher) RunWithError() error {
	if l == nil {
		return ErrNilLauncher
	}

	if nilcheck.Interface(l.Logger) {
		return ErrLoggerNil
	}

	if len(l.configErrors) > 0 {
		return errors.Join(append([]error{ErrConfigFailed}, l.configErrors...)...)
	}

	l.mu.Lock()
	apps := make(map[string]App, len(l.apps))
	for name, app := range l.apps {
		apps[name] = app
	}
	l.mu.Unlock()

	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   []error
	)

	wg.Add(len(apps))

	l.Logger.Log(context.Background(), log.LevelInfo, "starting apps", log.Int("count", len(apps)))

	for name, app := range apps {
		runtime.SafeGoWithContextAndComponent(context.Background(), l.Logger, "launcher", "run_app_"+name, runtime.KeepRunning,
			func(ctx context.Context) {
				defer wg.Done()

				l.Logger.Log(ctx, log.LevelInfo, "app starting", log.String("app", name))

				if err := app.Run(l); err != nil {
					l.Logger.Log(ctx, log.LevelError, "app error", log.String("app", name), log.Err(err))

					errsMu.Lock()
					errs = append(errs, fmt.Errorf("app %q: %w", name, err))
					errsMu.Unlock()
				}

				l.Logger.Log(ctx, log.LevelInfo, "app finished", log.String("app", name))
			})
	}

	wg.Wait()

	l.Logger.Log(context.Background(), log.LevelInfo, "launcher terminated")

	return errors.Join(errs...)
}
