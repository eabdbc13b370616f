package tracking

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"
	"github.com/LerianStudio/lib-tracking/tracking/crypto"
	"github.com/LerianStudio/lib-tracking/tracking/dispatch"
	"github.com/LerianStudio/lib-tracking/tracking/errgroup"
	"github.com/LerianStudio/lib-tracking/tracking/gateway"
	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/pending"
	"github.com/LerianStudio/lib-tracking/tracking/retry"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
)

// Hasher hashes one personal field. crypto.Hasher is the default implementation.
type Hasher interface {
	Hash(value string) string
}

// FieldHasher is an optional Hasher extension with per-field normalization.
type FieldHasher interface {
	HashField(key, value string) string
}

// Tracker sends events through a tag side (tag + conversion endpoint) and an
// analytics side (analytics tag + measurement endpoint), each with its own
// dedup namespace.
type Tracker struct {
	cfg      Config
	logger   log.Logger
	registry *channel.Registry
	queue    *pending.Queue
	tag      *dispatch.Dispatcher
	analytic *dispatch.Dispatcher
	gateway  *gateway.Gateway
	breakers circuitbreaker.Manager
	scorer   LeadScorer
	hasher   Hasher
	nameMap  map[string]string

	background sync.WaitGroup
	closeOnce  sync.Once
	mu         sync.Mutex
	closed     bool
	stopStart  context.CancelFunc
}

type trackerOptions struct {
	logger        log.Logger
	meterProvider metric.MeterProvider
	registry      *channel.Registry
	storage       identity.Storage
	httpClient    *http.Client
	breakers      circuitbreaker.Manager
	scorer        LeadScorer
	hasher        Hasher
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
}

// Option configures a Tracker.
type Option func(*trackerOptions)

// WithLogger sets the logger shared by every component.
func WithLogger(logger log.Logger) Option {
	return func(o *trackerOptions) {
		if !nilcheck.Interface(logger) {
			o.logger = logger
		}
	}
}

// WithMeterProvider sets the OTel meter provider shared by every component.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *trackerOptions) {
		if !nilcheck.Interface(provider) {
			o.meterProvider = provider
		}
	}
}

// WithRegistry uses registry for tag entry points instead of a private one.
func WithRegistry(registry *channel.Registry) Option {
	return func(o *trackerOptions) {
		if registry != nil {
			o.registry = registry
		}
	}
}

// WithStorage persists dedup records in storage. Records are kept in memory by default.
func WithStorage(storage identity.Storage) Option {
	return func(o *trackerOptions) {
		if !nilcheck.Interface(storage) {
			o.storage = storage
		}
	}
}

// WithHTTPClient sets the client used by the endpoint senders.
func WithHTTPClient(client *http.Client) Option {
	return func(o *trackerOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithBreakerManager shares a circuit breaker manager with the endpoint senders.
func WithBreakerManager(manager circuitbreaker.Manager) Option {
	return func(o *trackerOptions) {
		if !nilcheck.Interface(manager) {
			o.breakers = manager
		}
	}
}

// WithLeadScorer enables TrackLead.
func WithLeadScorer(scorer LeadScorer) Option {
	return func(o *trackerOptions) {
		if !nilcheck.Interface(scorer) {
			o.scorer = scorer
		}
	}
}

// WithHasher hashes personal user data fields before they leave the tracker.
func WithHasher(hasher Hasher) Option {
	return func(o *trackerOptions) {
		if !nilcheck.Interface(hasher) {
			o.hasher = hasher
		}
	}
}

// WithClock injects the time source of dedup records and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *trackerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSleeper replaces the sleep used by retries and the PageView settle delay.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *trackerOptions) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// New wires a Tracker from cfg.
func New(cfg Config, opts ...Option) (*Tracker, error) {
	cfg.normalize()

	o := trackerOptions{logger: log.NewNop(), now: time.Now, hasher: &crypto.Hasher{}}

	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.registry == nil {
		o.registry = channel.NewRegistry(channel.WithRegistryLogger(o.logger))
	}

	if o.storage == nil {
		o.storage = identity.NewMemoryStorage()
	}

	if o.breakers == nil {
		o.breakers = circuitbreaker.NewManager(o.logger, circuitbreaker.WithMeterProvider(o.meterProvider))
	}

	cfg.Queue.MeterProvider = o.meterProvider
	cfg.Dispatch.MeterProvider = o.meterProvider
	cfg.Gateway.MeterProvider = o.meterProvider

	t := &Tracker{
		cfg:      cfg,
		logger:   o.logger,
		registry: o.registry,
		breakers: o.breakers,
		scorer:   o.scorer,
		hasher:   o.hasher,
		nameMap:  cfg.nameMap(),
	}

	queue, err := pending.New(o.registry, cfg.Queue, pending.WithLogger(o.logger), pending.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("create pending queue: %w", err)
	}

	t.queue = queue

	if err := t.wireSides(o); err != nil {
		queue.Close()

		return nil, err
	}

	if cfg.EnableGateway {
		t.gateway, err = gateway.New(o.registry, gateway.MirrorFunc(t.mirror), cfg.Gateway, gateway.WithLogger(o.logger))
		if err != nil {
			queue.Close()

			return nil, fmt.Errorf("create gateway: %w", err)
		}
	}

	return t, nil
}

func (t *Tracker) wireSides(o trackerOptions) error {
	engineOpts := []retry.Option{retry.WithLogger(o.logger)}
	if o.sleep != nil {
		engineOpts = append(engineOpts, retry.WithSleeper(o.sleep))
	}

	endpointOpts := []channel.EndpointOption{
		channel.WithRequestTimeout(t.cfg.RequestTimeout),
		channel.WithRetryEngine(retry.NewEngine(t.cfg.Retry, engineOpts...)),
		channel.WithBreakers(o.breakers, t.cfg.Breaker),
		channel.WithEndpointLogger(o.logger),
		channel.WithClock(o.now),
	}
	if o.httpClient != nil {
		endpointOpts = append(endpointOpts, channel.WithHTTPClient(o.httpClient))
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithQueue(t.queue),
		dispatch.WithLogger(o.logger),
		dispatch.WithClock(o.now),
	}
	if o.sleep != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithSleeper(o.sleep))
	}

	windows := identity.DefaultWindows().Merge(t.cfg.Windows)

	tagSide, err := t.side(o, NamespaceTag, windows, dispatchOpts, func() (channel.Sender, channel.Sender, error) {
		tag, err := channel.NewTagAdapter(t.registry, channel.WithTagLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}

		if t.cfg.ConversionURL == "" {
			return tag, nil, nil
		}

		conversion, err := channel.NewConversionEndpoint(t.cfg.ConversionURL, endpointOpts...)

		return tag, conversion, err
	})
	if err != nil {
		return err
	}

	analyticsSide, err := t.side(o, NamespaceAnalytics, windows, dispatchOpts, func() (channel.Sender, channel.Sender, error) {
		tag, err := channel.NewAnalyticsTagAdapter(t.registry, t.cfg.AnalyticsSendTo, channel.WithTagLogger(o.logger))
		if err != nil {
			return nil, nil, err
		}

		if t.cfg.MeasurementURL == "" {
			return tag, nil, nil
		}

		measurement, err := channel.NewMeasurementEndpoint(t.cfg.MeasurementURL, endpointOpts...)

		return tag, measurement, err
	})
	if err != nil {
		return err
	}

	t.tag = tagSide
	t.analytic = analyticsSide

	return nil
}

func (t *Tracker) side(
	o trackerOptions,
	namespace string,
	windows identity.Windows,
	dispatchOpts []dispatch.Option,
	senders func() (channel.Sender, channel.Sender, error),
) (*dispatch.Dispatcher, error) {
	store, err := identity.NewStore(o.storage, namespace,
		identity.WithWindows(windows), identity.WithClock(o.now), identity.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("create %s identity store: %w", namespace, err)
	}

	tag, endpoint, err := senders()
	if err != nil {
		return nil, fmt.Errorf("create %s senders: %w", namespace, err)
	}

	opts := append([]dispatch.Option{dispatch.WithTagSender(tag)}, dispatchOpts...)
	if endpoint != nil {
		opts = append(opts, dispatch.WithEndpointSender(endpoint))
	}

	d, err := dispatch.New(store, t.cfg.Dispatch, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s dispatcher: %w", namespace, err)
	}

	return d, nil
}

// Registry returns the registry holding the tag entry points.
func (t *Tracker) Registry() *channel.Registry {
	if t == nil {
		return nil
	}

	return t.registry
}

// Queue returns the pending queue.
func (t *Tracker) Queue() *pending.Queue {
	if t == nil {
		return nil
	}

	return t.queue
}

// Gateway returns the gateway, nil when disabled.
func (t *Tracker) Gateway() *gateway.Gateway {
	if t == nil {
		return nil
	}

	return t.gateway
}

// TagStore returns the dedup store of the tag side.
func (t *Tracker) TagStore() *identity.Store {
	if t == nil {
		return nil
	}

	return t.tag.Store()
}

// AnalyticsStore returns the dedup store of the analytics side.
func (t *Tracker) AnalyticsStore() *identity.Store {
	if t == nil {
		return nil
	}

	return t.analytic.Store()
}

// Start installs the gateway in the background. It returns immediately.
func (t *Tracker) Start(ctx context.Context) error {
	if t == nil {
		return ErrNilTracker
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTrackerClosed
	}

	if t.gateway == nil || t.stopStart != nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	installCtx, cancel := context.WithCancel(ctx)
	t.stopStart = cancel

	t.background.Add(1)

	runtime.SafeGoWithContextAndComponent(installCtx, t.logger, "tracker", "gateway_install", runtime.KeepRunning,
		func(ctx context.Context) {
			defer t.background.Done()

			if err := t.gateway.Install(ctx); err != nil {
				t.logger.Log(ctx, log.LevelWarn, "gateway install failed", log.Err(err))
			}
		})

	return nil
}

// SendEvent sends eventName through both sides and reports whether any channel
// accepted it. The analytics side receives the translated event name. Both
// sides share one event id.
func (t *Tracker) SendEvent(ctx context.Context, eventName string, params map[string]any, identifier string, opts dispatch.Options) bool {
	tagReport, analyticsReport := t.SendEventReport(ctx, eventName, params, identifier, opts)

	return tagReport.Accepted() || analyticsReport.Accepted()
}

// SendEventReport is SendEvent returning the report of each side.
func (t *Tracker) SendEventReport(
	ctx context.Context,
	eventName string,
	params map[string]any,
	identifier string,
	opts dispatch.Options,
) (dispatch.Report, dispatch.Report) {
	if t == nil {
		return dispatch.Report{EventName: eventName, Err: ErrNilTracker}, dispatch.Report{EventName: eventName, Err: ErrNilTracker}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts = t.enrich(ctx, opts)

	var tagReport, analyticsReport dispatch.Report

	group, _ := errgroup.WithContext(ctx)
	group.SetLogger(t.logger)
	group.SetComponent("tracker")

	group.Go(func() error {
		tagReport = t.tag.SendEventReport(ctx, eventName, params, identifier, opts)

		return nil
	})

	group.Go(func() error {
		analyticsReport = t.analytic.SendEventReport(ctx, t.translate(eventName), params, identifier, opts)

		return nil
	})

	if err := group.Wait(); err != nil {
		t.logger.Log(ctx, log.LevelError, "event send aborted", log.EventName(eventName), log.Err(err))
	}

	return tagReport, analyticsReport
}

// Track is SendEvent without waiting for the outcome.
func (t *Tracker) Track(ctx context.Context, eventName string, params map[string]any, identifier string, opts dispatch.Options) {
	if t == nil {
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		t.logger.Log(ctx, log.LevelWarn, "tracker closed, dropping event", log.EventName(eventName))

		return
	}

	t.background.Add(1)
	t.mu.Unlock()

	runtime.SafeGoWithContextAndComponent(context.WithoutCancel(ctx), t.logger, "tracker", "track", runtime.KeepRunning,
		func(ctx context.Context) {
			defer t.background.Done()

			t.SendEvent(ctx, eventName, params, identifier, opts)
		})
}

// Close stops the gateway install, waits for background sends, tears the
// gateway down and drops queued events. It is safe to call more than once.
func (t *Tracker) Close(ctx context.Context) error {
	if t == nil {
		return ErrNilTracker
	}

	var err error

	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		stopStart := t.stopStart
		t.mu.Unlock()

		if stopStart != nil {
			stopStart()
		}

		done := make(chan struct{})

		runtime.SafeGo(t.logger, "tracker.close_wait", runtime.KeepRunning, func() {
			t.background.Wait()
			close(done)
		})

		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("tracker close: %w", ctx.Err())
		}

		if t.gateway != nil {
			if teardownErr := t.gateway.Teardown(); teardownErr != nil {
				t.logger.Log(ctx, log.LevelWarn, "gateway teardown failed", log.Err(teardownErr))
			}
		}

		if shutdownErr := t.queue.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	})

	return err
}

// mirror forwards a call intercepted by the gateway to the analytics side.
func (t *Tracker) mirror(ctx context.Context, call gateway.Call) bool {
	identifier := call.EventID
	eventID := call.EventID

	if eventID == "" {
		eventID = uuid.NewString()
	}

	return t.analytic.SendEvent(ctx, call.EventName, call.Params, identifier, t.enrich(ctx, dispatch.Options{EventID: eventID}))
}

func (t *Tracker) translate(eventName string) string {
	if mapped, ok := t.nameMap[eventName]; ok {
		return mapped
	}

	return eventName
}

// enrich fills user data and source URL from ctx, hashes personal fields and
// pins one event id for both sides.
func (t *Tracker) enrich(ctx context.Context, opts dispatch.Options) dispatch.Options {
	userData := UserDataFromContext(ctx)
	if userData == nil && opts.UserData != nil {
		userData = make(channel.UserData, len(opts.UserData))
	}

	maps.Copy(userData, opts.UserData)

	if t.hasher != nil {
		fieldHasher, perField := t.hasher.(FieldHasher)

		for _, key := range crypto.PersonalFields {
			value, ok := userData[key]
			if !ok || value == "" {
				continue
			}

			if perField {
				userData[key] = fieldHasher.HashField(key, value)
			} else {
				userData[key] = t.hasher.Hash(value)
			}
		}
	}

	opts.UserData = userData

	if opts.SourceURL == "" {
		opts.SourceURL = SourceURLFromContext(ctx)
	}

	if opts.EventID == "" {
		opts.EventID = newEventID()
	}

	return opts
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
