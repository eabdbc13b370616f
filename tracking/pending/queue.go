package pending

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
)

// Item is one queued event.
type Item struct {
	Channel    channel.Name
	Event      channel.Event
	Identifier string
	EnqueuedAt time.Time
}

// DrainResult counts the outcome of one Drain call.
type DrainResult struct {
	Delivered int
	Failed    int
}

// Queue holds undelivered items per channel.
type Queue struct {
	registry *channel.Registry
	cfg      Config
	logger   log.Logger
	now      func() time.Time
	metrics  queueMetrics

	mu      sync.Mutex
	senders map[channel.Name]channel.Sender
	items   map[channel.Name][]Item
	running bool
	loopGen uint64
	closed  bool

	drainMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	loopWg sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger log.Logger) Option {
	return func(q *Queue) {
		if !nilcheck.Interface(logger) {
			q.logger = logger
		}
	}
}

// WithClock injects the time source used for enqueue timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithSender registers sender at construction.
func WithSender(sender channel.Sender) Option {
	return func(q *Queue) {
		if !nilcheck.Interface(sender) {
			q.senders[sender.Name()] = sender
		}
	}
}

// New creates a Queue that watches registry for channel installs.
func New(registry *channel.Registry, cfg Config, opts ...Option) (*Queue, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	cfg.normalize()

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		registry: registry,
		cfg:      cfg,
		logger:   log.NewNop(),
		now:      time.Now,
		senders:  make(map[channel.Name]channel.Sender),
		items:    make(map[channel.Name][]Item),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}

	metrics, err := newQueueMetrics(cfg.MeterProvider)
	if err != nil {
		cancel()

		return nil, fmt.Errorf("init pending metrics: %w", err)
	}

	q.metrics = metrics

	return q, nil
}

// Register binds sender to its channel name.
func (q *Queue) Register(sender channel.Sender) error {
	if q == nil {
		return ErrQueueRequired
	}

	if nilcheck.Interface(sender) {
		return ErrSenderRequired
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.senders[sender.Name()] = sender

	return nil
}

// Enqueue appends item to its channel and starts a drain process when none is running.
func (q *Queue) Enqueue(ctx context.Context, item Item) error {
	if q == nil {
		return ErrQueueRequired
	}

	if item.Event.Name == "" {
		return ErrEventNameInvalid
	}

	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return ErrQueueClosed
	}

	if _, ok := q.senders[item.Channel]; !ok {
		q.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrUnknownChannel, item.Channel)
	}

	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = q.now()
	}

	q.items[item.Channel] = append(q.items[item.Channel], item)
	depth := len(q.items[item.Channel])

	start := !q.running
	if start {
		q.running = true
		q.loopGen++
		q.loopWg.Add(1)
	}

	generation := q.loopGen

	q.mu.Unlock()

	q.metrics.add(ctx, q.metrics.enqueued, item.Channel, 1)
	q.metrics.moveDepth(ctx, item.Channel, 1)
	q.logger.Log(ctx, log.LevelDebug, "event queued for unloaded channel",
		log.Channel(item.Channel.String()),
		log.EventName(item.Event.Name),
		log.Int("depth", depth))

	if start {
		runtime.SafeGoWithContextAndComponent(q.ctx, q.logger, "pending", "drain_loop", runtime.KeepRunning,
			func(loopCtx context.Context) {
				defer q.loopWg.Done()
				defer q.release(generation)

				q.run(loopCtx)
			})
	}

	return nil
}

// Drain delivers queued items, FIFO per channel, while their channel is available.
// A failed item is dropped, never re-queued.
func (q *Queue) Drain(ctx context.Context) DrainResult {
	var result DrainResult

	if q == nil {
		return result
	}

	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	for _, name := range q.queuedChannels() {
		sender := q.senderFor(name)
		if sender == nil {
			continue
		}

		for q.available(name, sender) {
			item, ok := q.pop(ctx, name)
			if !ok {
				break
			}

			if q.deliver(ctx, sender, item) {
				result.Delivered++
				q.metrics.add(ctx, q.metrics.delivered, name, 1)

				continue
			}

			result.Failed++
			q.metrics.add(ctx, q.metrics.failed, name, 1)
			q.logger.Log(ctx, log.LevelWarn, "queued event delivery failed, dropping it",
				log.Channel(name.String()), log.EventName(item.Event.Name))
		}
	}

	return result
}

// Len returns the number of items waiting for name.
func (q *Queue) Len(name channel.Name) int {
	if q == nil {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items[name])
}

// Items returns a snapshot of the items waiting for name.
func (q *Queue) Items(name channel.Name) []Item {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]Item(nil), q.items[name]...)
}

// Running reports whether a drain process is active.
func (q *Queue) Running() bool {
	if q == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return q.running
}

// Close stops the drain process and drops every queued item. Later enqueues fail.
func (q *Queue) Close() {
	if q == nil {
		return
	}

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()

	q.dropAll(context.Background(), "queue closed")
}

// Shutdown closes the queue and waits for the drain process to return.
func (q *Queue) Shutdown(ctx context.Context) error {
	if q == nil {
		return nil
	}

	q.Close()

	done := make(chan struct{})

	runtime.SafeGo(q.logger, "pending.shutdown_wait", runtime.KeepRunning, func() {
		q.loopWg.Wait()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending queue shutdown: %w", ctx.Err())
	}
}

func (q *Queue) run(ctx context.Context) {
	installs, cancelWatch := q.registry.Watch()
	defer cancelWatch()

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(q.untilNextExpiry())
	defer deadline.Stop()

	q.Drain(ctx)

	for {
		if q.finishIfEmpty() {
			q.logger.Log(ctx, log.LevelDebug, "pending queue drained")

			return
		}

		select {
		case <-ctx.Done():
			return
		case _, ok := <-installs:
			if !ok {
				installs = nil

				continue
			}

			q.Drain(ctx)
		case <-ticker.C:
			q.Drain(ctx)
		case <-deadline.C:
			q.expire(ctx)
			deadline.Reset(q.untilNextExpiry())
		}
	}
}

func (q *Queue) finishIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, items := range q.items {
		if len(items) > 0 {
			return false
		}
	}

	q.running = false

	return true
}

func (q *Queue) release(generation uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loopGen == generation {
		q.running = false
	}
}

// untilNextExpiry returns the wait before the oldest item exceeds the budget.
func (q *Queue) untilNextExpiry() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest time.Time

	for _, items := range q.items {
		if len(items) > 0 && (oldest.IsZero() || items[0].EnqueuedAt.Before(oldest)) {
			oldest = items[0].EnqueuedAt
		}
	}

	if oldest.IsZero() {
		return q.cfg.DrainBudget
	}

	wait := oldest.Add(q.cfg.DrainBudget).Sub(q.now())
	if wait <= 0 {
		return time.Millisecond
	}

	return wait
}

// expire drops items that waited longer than the drain budget.
func (q *Queue) expire(ctx context.Context) int {
	now := q.now()
	dropped := make(map[channel.Name]int)

	q.mu.Lock()

	for name, items := range q.items {
		kept := items[:0]

		for _, item := range items {
			if now.Sub(item.EnqueuedAt) >= q.cfg.DrainBudget {
				dropped[name]++

				continue
			}

			kept = append(kept, item)
		}

		q.items[name] = kept
	}

	q.mu.Unlock()

	return q.reportDropped(ctx, dropped, "drain budget expired")
}

func (q *Queue) dropAll(ctx context.Context, reason string) int {
	dropped := make(map[channel.Name]int)

	q.mu.Lock()

	for name, items := range q.items {
		if len(items) > 0 {
			dropped[name] = len(items)
		}

		delete(q.items, name)
	}

	q.mu.Unlock()

	return q.reportDropped(ctx, dropped, reason)
}

func (q *Queue) reportDropped(ctx context.Context, dropped map[channel.Name]int, reason string) int {
	total := 0

	for name, count := range dropped {
		if count == 0 {
			continue
		}

		total += count

		q.metrics.add(ctx, q.metrics.abandoned, name, count)
		q.metrics.moveDepth(ctx, name, -count)
		q.logger.Log(ctx, log.LevelWarn, "abandoning queued events",
			log.Channel(name.String()),
			log.Int("count", count),
			log.String("reason", reason))
	}

	return total
}

func (q *Queue) queuedChannels() []channel.Name {
	q.mu.Lock()
	defer q.mu.Unlock()

	names := make([]channel.Name, 0, len(q.items))

	for name, items := range q.items {
		if len(items) > 0 {
			names = append(names, name)
		}
	}

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}

func (q *Queue) senderFor(name channel.Name) channel.Sender {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.senders[name]
}

func (q *Queue) available(name channel.Name, sender channel.Sender) bool {
	if probe, ok := sender.(channel.Probe); ok {
		return probe.Available()
	}

	return q.registry.Available(name)
}

func (q *Queue) pop(ctx context.Context, name channel.Name) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items[name]
	if len(items) == 0 {
		return Item{}, false
	}

	item := items[0]
	items[0] = Item{}
	q.items[name] = items[1:]

	q.metrics.moveDepth(ctx, name, -1)

	return item, true
}

func (q *Queue) deliver(ctx context.Context, sender channel.Sender, item Item) (ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			runtime.HandlePanicValue(ctx, q.logger, recovered, "pending", "deliver")

			ok = false
		}
	}()

	return sender.Send(ctx, item.Event)
}
