package channel

import (
	"context"

	"github.com/LerianStudio/lib-tracking/tracking/retry"
)

// ActionSourceWebsite is the action_source of every conversion payload.
const ActionSourceWebsite = "website"

// ConversionPayload is the body POSTed to the Conversion Endpoint.
type ConversionPayload struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// ConversionEndpoint delivers events to the server-side conversions collector.
type ConversionEndpoint struct {
	*endpoint
}

var _ Sender = (*ConversionEndpoint)(nil)

// NewConversionEndpoint creates a ConversionEndpoint posting to url.
func NewConversionEndpoint(url string, opts ...EndpointOption) (*ConversionEndpoint, error) {
	e, err := newEndpoint(ChannelConversion, url, opts)
	if err != nil {
		return nil, err
	}

	return &ConversionEndpoint{endpoint: e}, nil
}

// Name implements Sender.
func (c *ConversionEndpoint) Name() Name { return ChannelConversion }

// Payload builds the request body for event.
func (c *ConversionEndpoint) Payload(event Event) ConversionPayload {
	userData := event.UserData.Clone()
	if userData == nil {
		userData = UserData{}
	}

	return ConversionPayload{
		EventName:      event.Name,
		EventTime:      c.eventTime(event).Unix(),
		EventID:        event.EventID,
		EventSourceURL: event.SourceURL,
		ActionSource:   ActionSourceWebsite,
		UserData:       userData,
		CustomData:     event.CustomData,
	}
}

// Deliver performs exactly one POST.
func (c *ConversionEndpoint) Deliver(ctx context.Context, event Event) error {
	return c.post(ctx, c.Payload(event))
}

// Attempt runs Deliver through the retry engine.
func (c *ConversionEndpoint) Attempt(ctx context.Context, event Event) retry.Result {
	if c == nil {
		return retry.Result{Err: ErrEndpointRequired}
	}

	return c.attempt(ctx, event, c.Deliver)
}

// Send implements Sender.
func (c *ConversionEndpoint) Send(ctx context.Context, event Event) bool {
	return c.Attempt(ctx, event).OK()
}
