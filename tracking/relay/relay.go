package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"
	"github.com/LerianStudio/lib-tracking/tracking/config"
	"github.com/LerianStudio/lib-tracking/tracking/crypto"
	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	thttp "github.com/LerianStudio/lib-tracking/tracking/net/http"
	"github.com/LerianStudio/lib-tracking/tracking/opentelemetry"
	"github.com/LerianStudio/lib-tracking/tracking/retry"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Upstream names, used as breaker names and metric labels.
const (
	UpstreamConversions = "conversions"
	UpstreamMeasurement = "measurement"
)

const (
	maxUpstreamBody     = 1 << 20
	instrumentationName = "github.com/LerianStudio/lib-tracking/tracking/relay"
)

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Relay) {
		if !nilcheck.Interface(logger) {
			r.logger = logger
		}
	}
}

// WithHTTPClient replaces the upstream HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Relay) {
		if client != nil {
			r.client = client
		}
	}
}

// WithBreakerManager shares a breaker manager with the rest of the process.
func WithBreakerManager(manager circuitbreaker.Manager) Option {
	return func(r *Relay) {
		if !nilcheck.Interface(manager) {
			r.breakers = manager
		}
	}
}

// WithDedupStore drops events already forwarded inside their window. Records
// are kept one key per event.
func WithDedupStore(store *identity.KeyedStore) Option {
	return func(r *Relay) {
		if store != nil {
			r.dedup = store
		}
	}
}

// WithRegistry sets the registry the relay metrics are registered on.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Relay) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// WithSleeper replaces the wait between upstream retries.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Relay) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithClock injects the time source used for missing event times.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithHasher replaces the hasher applied to clear-text personal fields.
func WithHasher(hasher *crypto.Hasher) Option {
	return func(r *Relay) {
		if hasher != nil {
			r.hasher = hasher
		}
	}
}

// Relay forwards tracking payloads to the upstream collectors.
type Relay struct {
	cfg      config.Relay
	client   *http.Client
	engine   *retry.Engine
	breakers circuitbreaker.Manager
	dedup    *identity.KeyedStore
	registry *prometheus.Registry
	metrics  *metrics
	hasher   *crypto.Hasher
	logger   log.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// New creates a Relay for the upstreams enabled in cfg.
func New(cfg config.Relay, opts ...Option) (*Relay, error) {
	if !cfg.ConversionsEnabled() && !cfg.MeasurementEnabled() {
		return nil, ErrNoUpstream
	}

	defaults := config.DefaultService().Relay

	if cfg.ConversionsURL == "" {
		cfg.ConversionsURL = defaults.ConversionsURL
	}

	if cfg.MeasurementURL == "" {
		cfg.MeasurementURL = defaults.MeasurementURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	r := &Relay{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		hasher: &crypto.Hasher{},
		logger: log.NewNop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}

	m, err := newMetrics(r.registry)
	if err != nil {
		return nil, fmt.Errorf("register relay metrics: %w", err)
	}

	r.metrics = m

	if r.breakers == nil {
		r.breakers = circuitbreaker.NewManager(r.logger)
	}

	engineOpts := []retry.Option{retry.WithLogger(r.logger)}
	if r.sleep != nil {
		engineOpts = append(engineOpts, retry.WithSleeper(r.sleep))
	}

	r.engine = retry.NewEngine(cfg.Retry, engineOpts...)

	for _, upstream := range r.Upstreams() {
		r.breakers.GetOrCreate(upstream, cfg.Breaker)
	}

	r.logger.Log(context.Background(), log.LevelInfo, "relay configured",
		log.String("upstreams", strings.Join(r.Upstreams(), ",")),
		log.Bool("dedup", r.dedup != nil))

	return r, nil
}

// Upstreams lists the enabled upstream names.
func (r *Relay) Upstreams() []string {
	if r == nil {
		return nil
	}

	var upstreams []string

	if r.cfg.ConversionsEnabled() {
		upstreams = append(upstreams, UpstreamConversions)
	}

	if r.cfg.MeasurementEnabled() {
		upstreams = append(upstreams, UpstreamMeasurement)
	}

	return upstreams
}

// Registry returns the registry holding the relay metrics.
func (r *Relay) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// Health returns one dependency check per enabled upstream breaker.
func (r *Relay) Health() []thttp.DependencyCheck {
	if r == nil {
		return nil
	}

	upstreams := r.Upstreams()
	checks := make([]thttp.DependencyCheck, 0, len(upstreams))

	for _, upstream := range upstreams {
		checks = append(checks, thttp.DependencyCheck{
			Name:           upstream,
			CircuitBreaker: r.breakers,
			ServiceName:    upstream,
		})
	}

	return checks
}

func (r *Relay) conversionsURL() string {
	return strings.TrimRight(r.cfg.ConversionsURL, "/") + "/" + url.PathEscape(r.cfg.PixelID) + "/events"
}

func (r *Relay) measurementURL() string {
	query := url.Values{}
	query.Set("measurement_id", r.cfg.MeasurementID)
	query.Set("api_secret", r.cfg.APISecret)

	separator := "?"
	if strings.Contains(r.cfg.MeasurementURL, "?") {
		separator = "&"
	}

	return r.cfg.MeasurementURL + separator + query.Encode()
}

// forward POSTs payload to target through the retry engine and the upstream
// breaker. The answer is the body of the successful attempt.
func (r *Relay) forward(ctx context.Context, upstream, target string, payload any) (json.RawMessage, retry.Result) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Result{Err: retry.Terminal(fmt.Errorf("encode %s payload: %w", upstream, err))}
	}

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "relay.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("app.relay.upstream", upstream)))
	defer span.End()

	var answer json.RawMessage

	start := time.Now()

	result := r.engine.Do(ctx, upstream, func(ctx context.Context) error {
		_, err := r.breakers.Execute(upstream, func() (any, error) {
			raw, err := r.post(ctx, upstream, target, body)
			if err == nil {
				answer = raw
			}

			return nil, err
		})

		if circuitbreaker.IsRejection(err) {
			return retry.Terminal(err)
		}

		return err
	})

	r.metrics.upstream(upstream, time.Since(start), result.Attempts)

	span.SetAttributes(attribute.Int("app.relay.attempts", result.Attempts))
	opentelemetry.HandleSpanError(span, "forward to "+upstream+" failed", result.Err)

	return answer, result
}

func (r *Relay) post(ctx context.Context, upstream, target string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("build %s request: %w", upstream, err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// url.Error carries the target, which holds the api secret.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}

		return nil, fmt.Errorf("post %s: %w", upstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", upstream, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		r.logger.Log(ctx, log.LevelWarn, "upstream answered with an error status",
			log.Upstream(upstream),
			log.Int("status", resp.StatusCode),
			log.Body(raw))

		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Endpoint: upstream}
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, nil
	}

	return raw, nil
}

// outcome maps a forward error to its metric label and HTTP status.
func outcome(err error) (string, int) {
	var statusErr *retry.StatusError

	switch {
	case err == nil:
		return OutcomeForwarded, http.StatusOK
	case circuitbreaker.IsRejection(err):
		return OutcomeUnavailable, http.StatusServiceUnavailable
	case errors.As(err, &statusErr) && !statusErr.Retryable():
		return OutcomeRejected, http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeFailed, http.StatusGatewayTimeout
	default:
		return OutcomeFailed, http.StatusBadGateway
	}
}
