package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"

// ErrBreakerNotFound is returned by Execute for an unknown service.
var ErrBreakerNotFound = errors.New("circuit breaker not found")

type manager struct {
	breakers  map[string]*gobreaker.CircuitBreaker
	configs   map[string]Config
	listeners []StateChangeListener
	mu        sync.RWMutex
	logger    log.Logger

	stateChanges metric.Int64Counter
	rejections   metric.Int64Counter
}

// ManagerOption configures a Manager.
type ManagerOption func(*manager)

// WithMeterProvider records state transitions and rejections on provider.
func WithMeterProvider(provider metric.MeterProvider) ManagerOption {
	return func(m *manager) {
		if !nilcheck.Interface(provider) {
			m.initMetrics(provider)
		}
	}
}

// NewManager creates a new circuit breaker manager.
func NewManager(logger log.Logger, opts ...ManagerOption) Manager {
	m := &manager{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		configs:   make(map[string]Config),
		listeners: make([]StateChangeListener, 0),
		logger:    logger,
	}

	if nilcheck.Interface(logger) {
		m.logger = log.NewNop()
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.stateChanges == nil {
		m.initMetrics(otel.GetMeterProvider())
	}

	return m
}

func (m *manager) initMetrics(provider metric.MeterProvider) {
	meter := provider.Meter(instrumentationName)

	var err error

	m.stateChanges, err = meter.Int64Counter("tracking.circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"))
	if err != nil {
		m.logger.Log(context.Background(), log.LevelWarn, "failed to create circuit breaker metric", log.Err(err))
	}

	m.rejections, err = meter.Int64Counter("tracking.circuit_breaker.rejections",
		metric.WithDescription("Calls rejected by an open or half-open circuit breaker"),
		metric.WithUnit("{call}"))
	if err != nil {
		m.logger.Log(context.Background(), log.LevelWarn, "failed to create circuit breaker metric", log.Err(err))
	}
}

func (m *manager) GetOrCreate(name string, config Config) CircuitBreaker {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if exists {
		return &circuitBreaker{breaker: breaker}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists = m.breakers[name]; exists {
		return &circuitBreaker{breaker: breaker}
	}

	config = config.normalize()

	breaker = m.newBreaker(name, config)
	m.breakers[name] = breaker
	m.configs[name] = config

	m.logger.Log(context.Background(), log.LevelInfo, "created circuit breaker", log.String("service", name))

	return &circuitBreaker{breaker: breaker}
}

func (m *manager) newBreaker(name string, config Config) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.ConsecutiveFailures {
				return true
			}

			if counts.Requests < config.MinRequests || counts.Requests == 0 {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			m.handleStateChange(name, from, to)
		},
	})
}

func (m *manager) Execute(name string, fn func() (any, error)) (any, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w for service %s (call GetOrCreate first)", ErrBreakerNotFound, name)
	}

	result, err := breaker.Execute(fn)
	if err == nil {
		return result, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		m.recordRejection(name, StateOpen)
		m.logger.Log(context.Background(), log.LevelWarn, "circuit breaker open, request rejected", log.String("service", name))

		return nil, fmt.Errorf("service %s is currently unavailable (circuit breaker open): %w", name, err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		m.recordRejection(name, StateHalfOpen)
		m.logger.Log(context.Background(), log.LevelWarn, "circuit breaker half-open, too many probe requests", log.String("service", name))

		return nil, fmt.Errorf("service %s is recovering (too many requests): %w", name, err)
	}

	return result, err
}

func (m *manager) GetState(name string) State {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return StateUnknown
	}

	return convertGobreakerState(breaker.State())
}

func (m *manager) GetCounts(name string) Counts {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return Counts{}
	}

	return convertCounts(breaker.Counts())
}

func (m *manager) IsHealthy(name string) bool {
	return m.GetState(name) == StateClosed
}

func (m *manager) Reset(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.breakers[name]; !exists {
		return
	}

	config, configExists := m.configs[name]
	if !configExists {
		m.logger.Log(context.Background(), log.LevelWarn, "no stored config for circuit breaker, removing it",
			log.String("service", name))
		delete(m.breakers, name)

		return
	}

	m.breakers[name] = m.newBreaker(name, config)

	m.logger.Log(context.Background(), log.LevelInfo, "circuit breaker reset", log.String("service", name))
}

// RegisterStateChangeListener registers a listener for state change notifications.
func (m *manager) RegisterStateChangeListener(listener StateChangeListener) {
	if nilcheck.Interface(listener) {
		m.logger.Log(context.Background(), log.LevelWarn, "attempted to register a nil state change listener")

		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
}

func (m *manager) handleStateChange(name string, from gobreaker.State, to gobreaker.State) {
	ctx := context.Background()
	fromState := convertGobreakerState(from)
	toState := convertGobreakerState(to)

	level := log.LevelInfo
	if toState == StateOpen {
		level = log.LevelError
	}

	m.logger.Log(ctx, level, "circuit breaker state changed",
		log.String("service", name),
		log.String("from", string(fromState)),
		log.String("to", string(toState)))

	if m.stateChanges != nil {
		m.stateChanges.Add(ctx, 1, metric.WithAttributes(
			attribute.String("service", name),
			attribute.String("to", string(toState))))
	}

	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		runtime.SafeGo(m.logger, "circuit_breaker_listener", runtime.KeepRunning, func() {
			listener.OnStateChange(name, fromState, toState)
		})
	}
}

func (m *manager) recordRejection(name string, state State) {
	if m.rejections == nil {
		return
	}

	m.rejections.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", name),
		attribute.String("state", string(state))))
}
