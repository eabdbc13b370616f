package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	constant "github.com/LerianStudio/lib-tracking/tracking/constants"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	thttp "github.com/LerianStudio/lib-tracking/tracking/net/http"
	"github.com/gofiber/fiber/v2"
)

// ConversionEvent is the body accepted on the conversions route. It matches
// the payload of channel.ConversionEndpoint.
type ConversionEvent struct {
	EventName      string           `json:"event_name" validate:"required,event_name"`
	EventTime      int64            `json:"event_time" validate:"gte=0"`
	EventID        string           `json:"event_id,omitempty" validate:"max=256"`
	EventSourceURL string           `json:"event_source_url,omitempty" validate:"omitempty,url"`
	ActionSource   string           `json:"action_source,omitempty" validate:"omitempty,oneof=website app email phone_call chat physical_store system_generated other"`
	UserData       channel.UserData `json:"user_data"`
	CustomData     map[string]any   `json:"custom_data,omitempty"`
}

// MeasurementRequest is the body accepted on the measurement route. It matches
// the payload of channel.MeasurementEndpoint.
type MeasurementRequest struct {
	ClientID        string                          `json:"client_id" validate:"required,max=256"`
	UserID          string                          `json:"user_id,omitempty" validate:"max=256"`
	TimestampMicros int64                           `json:"timestamp_micros,omitempty" validate:"gte=0"`
	Events          []MeasurementEvent              `json:"events" validate:"required,min=1,max=25,dive"`
	UserProperties  map[string]channel.UserProperty `json:"user_properties,omitempty"`
}

// MeasurementEvent is one event of a MeasurementRequest.
type MeasurementEvent struct {
	Name   string         `json:"name" validate:"required,max=40,measurement_name"`
	Params map[string]any `json:"params,omitempty"`
}

// Summary is the data of a successful relay answer.
type Summary struct {
	Forwarded  int             `json:"forwarded"`
	Duplicates int             `json:"duplicates"`
	Attempts   int             `json:"attempts,omitempty"`
	Upstream   json.RawMessage `json:"upstream,omitempty"`
}

type conversionRequest struct {
	Data        []ConversionEvent `json:"data"`
	AccessToken string            `json:"access_token"`
}

// HandleConversion forwards one conversion event to the conversions upstream.
func (r *Relay) HandleConversion(c *fiber.Ctx) error {
	if r == nil || !r.cfg.ConversionsEnabled() {
		return thttp.UpstreamDisabledError(c, ErrUpstreamDisabled.Error())
	}

	ctx := c.UserContext()

	var event ConversionEvent
	if err := thttp.ParseBodyAndValidate(c, &event); err != nil {
		return r.invalid(c, UpstreamConversions, err)
	}

	if err := thttp.ValidateAmount("value", event.CustomData["value"]); err != nil {
		return r.invalid(c, UpstreamConversions, err)
	}

	r.completeConversion(c, &event)

	if r.seen(ctx, UpstreamConversions, event.EventName, event.EventID) {
		r.metrics.request(UpstreamConversions, OutcomeDuplicate)
		r.metrics.event(UpstreamConversions, OutcomeDuplicate, 1)

		return thttp.OK(c, Summary{Duplicates: 1})
	}

	answer, result := r.forward(ctx, UpstreamConversions, r.conversionsURL(), conversionRequest{
		Data:        []ConversionEvent{event},
		AccessToken: r.cfg.AccessToken,
	})

	label, status := outcome(result.Err)
	r.metrics.request(UpstreamConversions, label)
	r.metrics.event(UpstreamConversions, label, 1)

	if result.Err != nil {
		return r.failed(ctx, c, UpstreamConversions, label, status, result.Attempts, result.Err)
	}

	r.remember(ctx, UpstreamConversions, event.EventName, event.EventID)

	return thttp.OK(c, Summary{Forwarded: 1, Attempts: result.Attempts, Upstream: answer})
}

// HandleMeasurement forwards a measurement batch to the measurement upstream.
// Events already forwarded are dropped from the batch.
func (r *Relay) HandleMeasurement(c *fiber.Ctx) error {
	if r == nil || !r.cfg.MeasurementEnabled() {
		return thttp.UpstreamDisabledError(c, ErrUpstreamDisabled.Error())
	}

	ctx := c.UserContext()

	var req MeasurementRequest
	if err := thttp.ParseBodyAndValidate(c, &req); err != nil {
		return r.invalid(c, UpstreamMeasurement, err)
	}

	for _, event := range req.Events {
		if err := thttp.ValidateAmount("value", event.Params["value"]); err != nil {
			return r.invalid(c, UpstreamMeasurement, err)
		}
	}

	fresh := make([]MeasurementEvent, 0, len(req.Events))

	for _, event := range req.Events {
		if r.seen(ctx, UpstreamMeasurement, event.Name, measurementEventID(event)) {
			continue
		}

		fresh = append(fresh, event)
	}

	duplicates := len(req.Events) - len(fresh)
	r.metrics.event(UpstreamMeasurement, OutcomeDuplicate, duplicates)

	if len(fresh) == 0 {
		r.metrics.request(UpstreamMeasurement, OutcomeDuplicate)

		return thttp.OK(c, Summary{Duplicates: duplicates})
	}

	req.Events = fresh

	answer, result := r.forward(ctx, UpstreamMeasurement, r.measurementURL(), req)

	label, status := outcome(result.Err)
	r.metrics.request(UpstreamMeasurement, label)
	r.metrics.event(UpstreamMeasurement, label, len(fresh))

	if result.Err != nil {
		return r.failed(ctx, c, UpstreamMeasurement, label, status, result.Attempts, result.Err)
	}

	for _, event := range fresh {
		r.remember(ctx, UpstreamMeasurement, event.Name, measurementEventID(event))
	}

	return thttp.OK(c, Summary{
		Forwarded:  len(fresh),
		Duplicates: duplicates,
		Attempts:   result.Attempts,
		Upstream:   answer,
	})
}

// completeConversion fills the fields only the server knows and hashes
// personal fields sent in clear text.
func (r *Relay) completeConversion(c *fiber.Ctx, event *ConversionEvent) {
	if event.EventTime == 0 {
		event.EventTime = r.now().Unix()
	}

	if event.ActionSource == "" {
		event.ActionSource = channel.ActionSourceWebsite
	}

	userData := r.hasher.HashUserData(event.UserData)
	if userData == nil {
		userData = channel.UserData{}
	}

	if userData[channel.UserIPAddress] == "" {
		if ip := clientIP(c); ip != "" {
			userData[channel.UserIPAddress] = ip
		}
	}

	if userData[channel.UserAgent] == "" {
		if agent := c.Get(constant.HeaderUserAgent); agent != "" {
			userData[channel.UserAgent] = agent
		}
	}

	event.UserData = userData
}

func (r *Relay) invalid(c *fiber.Ctx, upstream string, err error) error {
	r.metrics.request(upstream, OutcomeInvalid)

	if errors.Is(err, thttp.ErrUnsupportedContentType) {
		return thttp.UnsupportedMediaTypeError(c, err.Error())
	}

	return thttp.BadRequestError(c, err.Error())
}

func (r *Relay) failed(ctx context.Context, c *fiber.Ctx, upstream, label string, status, attempts int, err error) error {
	r.logger.Log(ctx, log.LevelError, "relay forward failed",
		log.Upstream(upstream),
		log.String("outcome", label),
		log.Int("attempts", attempts),
		log.Err(err))

	return thttp.UpstreamError(c, status, label, err.Error())
}

func (r *Relay) seen(ctx context.Context, upstream, eventName, eventID string) bool {
	if r.dedup == nil || eventID == "" {
		return false
	}

	return r.dedup.AlreadySent(ctx, eventName, upstream+":"+eventID)
}

func (r *Relay) remember(ctx context.Context, upstream, eventName, eventID string) {
	if r.dedup == nil || eventID == "" {
		return
	}

	if err := r.dedup.MarkSent(ctx, eventName, upstream+":"+eventID, map[string]any{"upstream": upstream}); err != nil {
		r.logger.Log(ctx, log.LevelWarn, "relay dedup record failed",
			log.Upstream(upstream), log.EventName(eventName), log.Err(err))
	}
}

func measurementEventID(event MeasurementEvent) string {
	id, _ := event.Params["event_id"].(string)

	return id
}

// clientIP prefers the proxy headers over the socket address.
func clientIP(c *fiber.Ctx) string {
	if ip := strings.TrimSpace(c.Get(constant.HeaderRealIP)); ip != "" {
		return ip
	}

	if forwarded := c.Get(constant.HeaderForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	return c.IP()
}
