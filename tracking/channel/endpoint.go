package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/circuitbreaker"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	// DefaultRequestTimeout bounds one POST.
	DefaultRequestTimeout = 10 * time.Second

	maxResponseBody = 1 << 20
)

// EndpointResponse is the body the collectors answer with.
type EndpointResponse struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// EndpointOption configures an endpoint sender.
type EndpointOption func(*endpoint)

// WithHTTPClient replaces the HTTP client. Its Timeout is kept as is.
func WithHTTPClient(client *http.Client) EndpointOption {
	return func(e *endpoint) {
		if client != nil {
			e.client = client
		}
	}
}

// WithRequestTimeout sets the per-request timeout of the default client.
func WithRequestTimeout(timeout time.Duration) EndpointOption {
	return func(e *endpoint) {
		if timeout > 0 {
			e.client.Timeout = timeout
		}
	}
}

// WithRetryEngine sets the engine that runs Deliver.
func WithRetryEngine(engine *retry.Engine) EndpointOption {
	return func(e *endpoint) {
		if engine != nil {
			e.engine = engine
		}
	}
}

// WithBreakers routes every POST through manager under the endpoint name.
func WithBreakers(manager circuitbreaker.Manager, config circuitbreaker.Config) EndpointOption {
	return func(e *endpoint) {
		if !nilcheck.Interface(manager) {
			e.breakers = manager
			e.breakerConfig = config
		}
	}
}

// WithEndpointLogger sets the endpoint logger.
func WithEndpointLogger(logger log.Logger) EndpointOption {
	return func(e *endpoint) {
		if !nilcheck.Interface(logger) {
			e.logger = logger
		}
	}
}

// WithClock injects the time source used when an event carries no Time.
func WithClock(now func() time.Time) EndpointOption {
	return func(e *endpoint) {
		if now != nil {
			e.now = now
		}
	}
}

type endpoint struct {
	name          Name
	url           string
	client        *http.Client
	engine        *retry.Engine
	breakers      circuitbreaker.Manager
	breakerConfig circuitbreaker.Config
	logger        log.Logger
	now           func() time.Time
}

func newEndpoint(name Name, url string, opts []EndpointOption) (*endpoint, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrEndpointRequired
	}

	e := &endpoint{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: DefaultRequestTimeout},
		engine: retry.NewEngine(retry.DefaultPolicy()),
		logger: log.NewNop(),
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	if e.breakers != nil {
		e.breakers.GetOrCreate(name.String(), e.breakerConfig)
	}

	return e, nil
}

// post sends one JSON payload. Non-2xx answers become *retry.StatusError and a
// body declaring success=false becomes retry.ErrUnsuccessfulResponse.
func (e *endpoint) post(ctx context.Context, payload any) error {
	if e.breakers == nil {
		return e.doPost(ctx, payload)
	}

	_, err := e.breakers.Execute(e.name.String(), func() (any, error) {
		return nil, e.doPost(ctx, payload)
	})

	if circuitbreaker.IsRejection(err) {
		return retry.Terminal(err)
	}

	return err
}

func (e *endpoint) doPost(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Terminal(fmt.Errorf("encode %s payload: %w", e.name, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return retry.Terminal(fmt.Errorf("build %s request: %w", e.name, err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", e.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read %s response: %w", e.name, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &retry.StatusError{StatusCode: resp.StatusCode, Endpoint: e.name.String()}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var answer EndpointResponse
	if err := json.Unmarshal(raw, &answer); err != nil {
		// 2xx with a non-JSON body counts as delivered.
		return nil
	}

	if answer.Success != nil && !*answer.Success {
		if answer.Error != "" {
			return fmt.Errorf("%w: %s", retry.ErrUnsuccessfulResponse, answer.Error)
		}

		return retry.ErrUnsuccessfulResponse
	}

	return nil
}

func (e *endpoint) attempt(ctx context.Context, event Event, deliver func(context.Context, Event) error) retry.Result {
	if event.Name == "" {
		return retry.Result{Err: ErrEventNameRequired}
	}

	result := e.engine.Do(ctx, e.name.String(), func(ctx context.Context) error {
		return deliver(ctx, event)
	})

	if !result.OK() {
		e.logger.Log(ctx, log.LevelWarn, "server-side delivery failed",
			log.Channel(e.name.String()),
			log.EventName(event.Name),
			log.Int("attempts", result.Attempts),
			log.Bool("terminal", errors.Is(result.Err, retry.ErrNonRetryable)),
			log.Err(result.Err))
	}

	return result
}

func (e *endpoint) eventTime(event Event) time.Time {
	if event.Time.IsZero() {
		return e.now()
	}

	return event.Time
}
