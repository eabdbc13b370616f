package channel

import (
	"context"

	"github.com/LerianStudio/lib-tracking/tracking/retry"
	"github.com/google/uuid"
)

const (
	// DefaultEngagementTimeMsec is injected when params carry no engagement time.
	DefaultEngagementTimeMsec = 100

	paramEngagementTime = "engagement_time_msec"
	paramTimestamp      = "timestamp_micros"
)

// MeasurementPayload is the body POSTed to the Measurement Endpoint.
type MeasurementPayload struct {
	ClientID       string                  `json:"client_id"`
	Events         []MeasurementEvent      `json:"events"`
	UserProperties map[string]UserProperty `json:"user_properties,omitempty"`
}

// MeasurementEvent is one entry of MeasurementPayload.Events.
type MeasurementEvent struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// UserProperty wraps a user property value.
type UserProperty struct {
	Value any `json:"value"`
}

// MeasurementEndpoint delivers events to the server-side measurement collector.
type MeasurementEndpoint struct {
	*endpoint
}

var _ Sender = (*MeasurementEndpoint)(nil)

// NewMeasurementEndpoint creates a MeasurementEndpoint posting to url.
func NewMeasurementEndpoint(url string, opts ...EndpointOption) (*MeasurementEndpoint, error) {
	e, err := newEndpoint(ChannelMeasurement, url, opts)
	if err != nil {
		return nil, err
	}

	return &MeasurementEndpoint{endpoint: e}, nil
}

// Name implements Sender.
func (m *MeasurementEndpoint) Name() Name { return ChannelMeasurement }

// Payload builds the request body for event. The client id comes from
// UserData["client_id"], falling back to a fresh random id.
func (m *MeasurementEndpoint) Payload(event Event) MeasurementPayload {
	params := event.Params()

	if _, ok := params[paramEngagementTime]; !ok {
		params[paramEngagementTime] = DefaultEngagementTimeMsec
	}

	params[paramTimestamp] = m.eventTime(event).UnixMicro()

	if event.EventID != "" {
		params["event_id"] = event.EventID
	}

	clientID := event.UserData[UserAnalyticsID]
	if clientID == "" {
		clientID = uuid.NewString()
	}

	payload := MeasurementPayload{
		ClientID: clientID,
		Events:   []MeasurementEvent{{Name: event.Name, Params: params}},
	}

	if len(event.UserProperties) > 0 {
		payload.UserProperties = make(map[string]UserProperty, len(event.UserProperties))
		for key, value := range event.UserProperties {
			payload.UserProperties[key] = UserProperty{Value: value}
		}
	}

	return payload
}

// Deliver performs exactly one POST.
func (m *MeasurementEndpoint) Deliver(ctx context.Context, event Event) error {
	return m.post(ctx, m.Payload(event))
}

// Attempt runs Deliver through the retry engine.
func (m *MeasurementEndpoint) Attempt(ctx context.Context, event Event) retry.Result {
	if m == nil {
		return retry.Result{Err: ErrEndpointRequired}
	}

	return m.attempt(ctx, event, m.Deliver)
}

// Send implements Sender.
func (m *MeasurementEndpoint) Send(ctx context.Context, event Event) bool {
	return m.Attempt(ctx, event).OK()
}
