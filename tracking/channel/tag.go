package channel

import (
	"context"

	"github.com/LerianStudio/lib-tracking/tracking/internal/nilcheck"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/LerianStudio/lib-tracking/tracking/runtime"
)

const (
	// CommandTrack is the tag command for standard events.
	CommandTrack = "track"
	// CommandTrackCustom is the tag command for custom events.
	CommandTrackCustom = "trackCustom"
	// CommandEvent is the analytics tag command for any event.
	CommandEvent = "event"
)

var standardEvents = map[string]struct{}{
	"AddPaymentInfo":       {},
	"AddToCart":            {},
	"AddToWishlist":        {},
	"CompleteRegistration": {},
	"Contact":              {},
	"CustomizeProduct":     {},
	"Donate":               {},
	"FindLocation":         {},
	"InitiateCheckout":     {},
	"Lead":                 {},
	"PageView":             {},
	"Purchase":             {},
	"Schedule":             {},
	"Search":               {},
	"StartTrial":           {},
	"SubmitApplication":    {},
	"Subscribe":            {},
	"ViewContent":          {},
}

// IsStandardEvent reports whether name belongs to the tag's standard event set.
func IsStandardEvent(name string) bool {
	_, ok := standardEvents[name]

	return ok
}

// TagOption configures a tag adapter.
type TagOption func(*tagBase)

// WithTagLogger sets the adapter logger.
func WithTagLogger(logger log.Logger) TagOption {
	return func(b *tagBase) {
		if !nilcheck.Interface(logger) {
			b.logger = logger
		}
	}
}

// WithChannelName binds the adapter to a registry entry other than its default.
func WithChannelName(name Name) TagOption {
	return func(b *tagBase) {
		if name != "" {
			b.name = name
		}
	}
}

type tagBase struct {
	registry *Registry
	name     Name
	logger   log.Logger
}

func newTagBase(registry *Registry, name Name, opts []TagOption) (tagBase, error) {
	if registry == nil {
		return tagBase{}, ErrRegistryRequired
	}

	base := tagBase{registry: registry, name: name, logger: log.NewNop()}

	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}

	return base, nil
}

func (b tagBase) Name() Name { return b.name }

func (b tagBase) Available() bool { return b.registry.Available(b.name) }

// invoke calls the registered function, turning panics and error results into false.
func (b tagBase) invoke(ctx context.Context, eventName string, args ...any) (ok bool) {
	fn, found := b.registry.Lookup(b.name)
	if !found {
		b.logger.Log(ctx, log.LevelDebug, "tag entry point not loaded",
			log.Channel(b.name.String()), log.EventName(eventName))

		return false
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			runtime.HandlePanicValue(ctx, b.logger.With(log.EventName(eventName)), recovered, "channel", "tag."+b.name.String())

			ok = false
		}
	}()

	if err, isErr := fn(args...).(error); isErr && err != nil {
		b.logger.Log(ctx, log.LevelWarn, "tag call failed",
			log.Channel(b.name.String()), log.EventName(eventName), log.Err(err))

		return false
	}

	return true
}

// TagAdapter sends events through the page tag: fn("track"|"trackCustom", name, params, CallOptions).
type TagAdapter struct {
	tagBase
}

var (
	_ Sender = (*TagAdapter)(nil)
	_ Probe  = (*TagAdapter)(nil)
)

// NewTagAdapter creates a TagAdapter bound to ChannelTag.
func NewTagAdapter(registry *Registry, opts ...TagOption) (*TagAdapter, error) {
	base, err := newTagBase(registry, ChannelTag, opts)
	if err != nil {
		return nil, err
	}

	return &TagAdapter{tagBase: base}, nil
}

// Send implements Sender. An absent entry point returns false immediately.
func (a *TagAdapter) Send(ctx context.Context, event Event) bool {
	if a == nil || event.Name == "" {
		return false
	}

	command := CommandTrackCustom
	if IsStandardEvent(event.Name) {
		command = CommandTrack
	}

	return a.invoke(ctx, event.Name, command, event.Name, event.Params(),
		CallOptions{EventID: event.EventID, Origin: OriginTracker})
}

// AnalyticsTagAdapter sends events through the analytics tag: fn("event", name, params).
type AnalyticsTagAdapter struct {
	tagBase
	sendTo string
}

var (
	_ Sender = (*AnalyticsTagAdapter)(nil)
	_ Probe  = (*AnalyticsTagAdapter)(nil)
)

// NewAnalyticsTagAdapter creates an AnalyticsTagAdapter bound to ChannelAnalyticsTag.
// sendTo, when set, is merged into params as send_to.
func NewAnalyticsTagAdapter(registry *Registry, sendTo string, opts ...TagOption) (*AnalyticsTagAdapter, error) {
	base, err := newTagBase(registry, ChannelAnalyticsTag, opts)
	if err != nil {
		return nil, err
	}

	return &AnalyticsTagAdapter{tagBase: base, sendTo: sendTo}, nil
}

// Send implements Sender.
func (a *AnalyticsTagAdapter) Send(ctx context.Context, event Event) bool {
	if a == nil || event.Name == "" {
		return false
	}

	params := event.Params()

	if a.sendTo != "" {
		params["send_to"] = a.sendTo
	}

	if event.EventID != "" {
		params["event_id"] = event.EventID
	}

	return a.invoke(ctx, event.Name, CommandEvent, event.Name, params)
}
