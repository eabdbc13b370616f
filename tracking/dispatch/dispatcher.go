package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/backoff"
	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/errgroup"
	"github.com/LerianStudio/lib-tracking/tracking/identity"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/pending"
)

// Dispatcher fans one event out to its channels.
type Dispatcher struct {
	store      *identity.Store
	tags       []channel.Sender
	endpoints  []channel.Sender
	queue      *pending.Queue
	cfg        Config
	logger     log.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	newEventID func() string
	metrics    dispatchMetrics
}

// New creates a Dispatcher deduplicating through store.
func New(store *identity.Store, cfg Config, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	cfg.normalize()

	d := &Dispatcher{
		store:      store,
		cfg:        cfg,
		logger:     log.NewNop(),
		now:        time.Now,
		sleep:      backoff.SleepWithContext,
		newEventID: newEventID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	if len(d.tags) == 0 && len(d.endpoints) == 0 {
		return nil, ErrNoChannels
	}

	metrics, err := newDispatchMetrics(cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init dispatch metrics: %w", err)
	}

	d.metrics = metrics

	if d.queue != nil {
		for _, sender := range d.tags {
			if err := d.queue.Register(sender); err != nil {
				return nil, fmt.Errorf("register %s with pending queue: %w", sender.Name(), err)
			}
		}
	}

	return d, nil
}

// Store returns the identity store used for deduplication.
func (d *Dispatcher) Store() *identity.Store {
	if d == nil {
		return nil
	}

	return d.store
}

// SendEvent delivers eventName to every channel and reports whether any accepted it.
func (d *Dispatcher) SendEvent(ctx context.Context, eventName string, params map[string]any, identifier string, opts Options) bool {
	return d.SendEventReport(ctx, eventName, params, identifier, opts).Accepted()
}

// SendEventReport is SendEvent returning the per-channel outcome.
func (d *Dispatcher) SendEventReport(ctx context.Context, eventName string, params map[string]any, identifier string, opts Options) Report {
	report := Report{EventName: eventName}

	if d == nil {
		report.Err = ErrStoreRequired

		return report
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if eventName == "" {
		report.Err = ErrEventNameRequired
		d.logger.Log(ctx, log.LevelWarn, "dropping event without a name")

		return report
	}

	identifier = identity.NormalizeIdentifier(identifier)
	namespace := d.store.Namespace()

	if !opts.SkipDeduplication && d.store.AlreadySent(ctx, eventName, identifier) {
		report.Duplicate = true
		d.metrics.recordEvent(ctx, namespace, "duplicate")
		d.logger.Log(ctx, log.LevelDebug, "event already sent, skipping",
			log.EventName(eventName),
			log.String("namespace", namespace))

		return report
	}

	report.EventID = opts.EventID
	if report.EventID == "" {
		report.EventID = d.newEventID()
	}

	event := channel.Event{
		Name:           eventName,
		CustomData:     maps.Clone(params),
		UserData:       opts.UserData.Clone(),
		UserProperties: maps.Clone(opts.UserProperties),
		EventID:        report.EventID,
		SourceURL:      opts.SourceURL,
		Time:           d.now(),
	}

	started := time.Now()
	report.Channels = d.fanOut(ctx, event, identifier, opts.SendToServer)
	d.metrics.recordDuration(ctx, namespace, time.Since(started).Seconds())

	for _, result := range report.Channels {
		d.metrics.recordChannel(ctx, result.Channel, result.Outcome)
	}

	if !report.Accepted() {
		d.metrics.recordEvent(ctx, namespace, "rejected")
		d.logger.Log(ctx, log.LevelWarn, "no channel accepted the event",
			log.EventName(eventName),
			log.String("event_id", report.EventID))

		return report
	}

	if err := d.store.MarkSent(ctx, eventName, identifier, d.recordMetadata(report, opts.Metadata)); err != nil {
		report.Err = err
		d.logger.Log(ctx, log.LevelWarn, "failed to record sent event", log.EventName(eventName), log.Err(err))
	}

	d.metrics.recordEvent(ctx, namespace, "accepted")
	d.logger.Log(ctx, log.LevelDebug, "event dispatched",
		log.EventName(eventName),
		log.String("event_id", report.EventID),
		log.Int("channels", len(report.Channels)))

	return report
}

// fanOut sends event to every tag channel and, when toServer is set, every
// endpoint, in parallel. Results keep sender order: tags first.
func (d *Dispatcher) fanOut(ctx context.Context, event channel.Event, identifier string, toServer bool) []ChannelResult {
	senders := d.tags
	if toServer {
		senders = append(append([]channel.Sender(nil), d.tags...), d.endpoints...)
	}

	results := make([]ChannelResult, len(senders))

	group, groupCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	group.SetLogger(d.logger)
	group.SetComponent("dispatch")

	for i, sender := range senders {
		results[i] = ChannelResult{Channel: sender.Name(), Outcome: OutcomeFailed}
		isEndpoint := i >= len(d.tags)

		group.Go(func() error {
			if isEndpoint {
				results[i].Outcome = d.sendToEndpoint(groupCtx, sender, event)
			} else {
				results[i].Outcome = d.sendToTag(groupCtx, sender, event, identifier)
			}

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		d.logger.Log(ctx, log.LevelError, "channel send aborted", log.EventName(event.Name), log.Err(err))
	}

	return results
}

func (d *Dispatcher) sendToTag(ctx context.Context, sender channel.Sender, event channel.Event, identifier string) Outcome {
	if probe, ok := sender.(channel.Probe); ok && !probe.Available() && d.queue != nil {
		err := d.queue.Enqueue(ctx, pending.Item{
			Channel:    sender.Name(),
			Event:      event,
			Identifier: identifier,
		})
		if err != nil {
			d.logger.Log(ctx, log.LevelWarn, "failed to queue event",
				log.Channel(sender.Name().String()),
				log.EventName(event.Name),
				log.Err(err))

			return OutcomeFailed
		}

		return OutcomeQueued
	}

	if sender.Send(ctx, event) {
		return OutcomeDelivered
	}

	return OutcomeFailed
}

func (d *Dispatcher) sendToEndpoint(ctx context.Context, sender channel.Sender, event channel.Event) Outcome {
	if event.Name == PageViewEvent && d.cfg.PageViewSettleDelay > 0 {
		if err := d.sleep(ctx, d.cfg.PageViewSettleDelay); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Log(ctx, log.LevelDebug, "page view settle delay interrupted", log.Err(err))
		}
	}

	if sender.Send(ctx, event) {
		return OutcomeDelivered
	}

	return OutcomeFailed
}

func (d *Dispatcher) recordMetadata(report Report, extra map[string]any) map[string]any {
	metadata := maps.Clone(extra)
	if metadata == nil {
		metadata = make(map[string]any, 2)
	}

	metadata["event_id"] = report.EventID

	channels := make([]string, 0, len(report.Channels))

	for _, result := range report.Channels {
		if result.Outcome.Accepted() {
			channels = append(channels, result.Channel.String())
		}
	}

	metadata["channels"] = channels

	return metadata
}
