package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// State is the gateway lifecycle state.
type State int

const (
	// StateUninstalled means the source dispatch function is not wrapped.
	StateUninstalled State = iota
	// StateInstalling means Install is polling for the source channel.
	StateInstalling
	// StateInstalled means the wrapper is active.
	StateInstalled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	default:
		return "unknown"
	}
}

// Gateway wraps a source channel and mirrors its calls.
type Gateway struct {
	registry *channel.Registry
	mirror   Mirror
	cfg      Config
	logger   log.Logger

	mirrored metric.Int64Counter
	skipped  metric.Int64Counter

	mu        sync.Mutex
	state     State
	exhausted bool
	restore   func() error
	mirrorCtx context.Context
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger log.Logger) Option {
	return func(g *Gateway) {
		if !nilcheck.Interface(logger) {
			g.logger = logger
		}
	}
}

// New creates an uninstalled Gateway.
func New(registry *channel.Registry, mirror Mirror, cfg Config, opts ...Option) (*Gateway, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	if nilcheck.Interface(mirror) {
		return nil, ErrMirrorRequired
	}

	cfg.normalize()

	g := &Gateway{
		registry:  registry,
		mirror:    mirror,
		cfg:       cfg,
		logger:    log.NewNop(),
		mirrorCtx: context.Background(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	provider := cfg.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("tracking.gateway")

	var err error

	g.mirrored, err = meter.Int64Counter(
		"tracking.gateway.mirrored",
		metric.WithDescription("Number of intercepted tag calls mirrored into the destination channel"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tracking.gateway.mirrored counter: %w", err)
	}

	g.skipped, err = meter.Int64Counter(
		"tracking.gateway.skipped",
		metric.WithDescription("Number of intercepted tag calls that were not mirrored"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tracking.gateway.skipped counter: %w", err)
	}

	return g, nil
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	if g == nil {
		return StateUninstalled
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// Install polls for the source channel and wraps it once available. It blocks
// until the wrapper is active, the attempts run out or ctx is done. Running
// out of attempts is permanent.
func (g *Gateway) Install(ctx context.Context) error {
	if g == nil {
		return ErrGatewayRequired
	}

	g.mu.Lock()

	switch {
	case g.exhausted:
		g.mu.Unlock()

		return ErrReadinessExhausted
	case g.state == StateInstalled:
		g.mu.Unlock()

		return nil
	case g.state == StateInstalling:
		g.mu.Unlock()

		return ErrInstallInProgress
	}

	g.state = StateInstalling
	g.mirrorCtx = context.WithoutCancel(ctx)
	g.mu.Unlock()

	err := g.poll(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.state = StateUninstalled

		if errors.Is(err, ErrReadinessExhausted) {
			g.exhausted = true
		}

		g.logger.Log(ctx, log.LevelWarn, "gateway not installed",
			log.String("source", g.cfg.Source.String()), log.Err(err))

		return err
	}

	g.state = StateInstalled

	g.logger.Log(ctx, log.LevelInfo, "gateway installed", log.String("source", g.cfg.Source.String()))

	return nil
}

func (g *Gateway) poll(ctx context.Context) error {
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if g.registry.Available(g.cfg.Source) {
			return g.wrap()
		}

		if attempt >= g.cfg.Attempts {
			return fmt.Errorf("%w: %s after %d attempts", ErrReadinessExhausted, g.cfg.Source, attempt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("gateway install: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *Gateway) wrap() error {
	restore, err := g.registry.Wrap(g.cfg.Source, g.decorate)
	if err != nil {
		return fmt.Errorf("wrap %s: %w", g.cfg.Source, err)
	}

	g.mu.Lock()
	g.restore = restore
	g.mu.Unlock()

	return nil
}

func (g *Gateway) decorate(original channel.DispatchFunc) channel.DispatchFunc {
	return func(args ...any) any {
		result := original(args...)

		g.intercept(args)

		return result
	}
}

// intercept parses one call and starts its mirror in the background.
func (g *Gateway) intercept(args []any) {
	g.mu.Lock()
	ctx := g.mirrorCtx
	g.mu.Unlock()

	call, outcome, err := parseCall(args)
	if err != nil {
		g.skip(ctx, "malformed")
		g.logger.Log(ctx, log.LevelWarn, "skipping intercepted call", log.Err(err))

		return
	}

	switch outcome {
	case outcomeIgnored:
		g.skip(ctx, "not_trackable")

		return
	case outcomeSelfOriginated:
		g.skip(ctx, "self_originated")

		return
	}

	if mapped, ok := g.cfg.NameMap[call.SourceName]; ok {
		call.EventName = mapped
	}

	runtime.SafeGoWithContextAndComponent(ctx, g.logger, "gateway", "mirror", runtime.KeepRunning,
		func(ctx context.Context) {
			accepted := g.mirror.Mirror(ctx, call)

			g.mirrored.Add(ctx, 1, metric.WithAttributes(attribute.Bool("accepted", accepted)))
			g.logger.Log(ctx, log.LevelDebug, "intercepted call mirrored",
				log.String("source_event", call.SourceName),
				log.EventName(call.EventName),
				log.Bool("accepted", accepted))
		})
}

func (g *Gateway) skip(ctx context.Context, reason string) {
	g.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Teardown restores the original dispatch function and returns the gateway to
// StateUninstalled. A gateway whose polling ran out stays exhausted.
func (g *Gateway) Teardown() error {
	if g == nil {
		return ErrGatewayRequired
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateInstalled {
		return nil
	}

	restore := g.restore
	g.restore = nil
	g.state = StateUninstalled

	if restore == nil {
		return nil
	}

	if err := restore(); err != nil && !errors.Is(err, channel.ErrWrapperReleased) {
		return fmt.Errorf("restore %s: %w", g.cfg.Source, err)
	}

	g.logger.Log(context.Background(), log.LevelInfo, "gateway torn down", log.String("source", g.cfg.Source.String()))

	return nil
}
