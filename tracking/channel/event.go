package channel

import (
	"maps"
	"time"
)

// Name identifies a delivery channel.
type Name string

const (
	ChannelTag          Name = "tag"
	ChannelConversion   Name = "conversion"
	ChannelAnalyticsTag Name = "analytics_tag"
	ChannelMeasurement  Name = "measurement"
)

func (n Name) String() string { return string(n) }

// UserData carries the visitor attributes passed through to the channels:
// em, ph, fn, ln, external_id, fbp, fbc, client_user_agent, client_ip_address
// and client_id. Values are forwarded as given.
type UserData map[string]string

// Well-known UserData keys.
const (
	UserEmail       = "em"
	UserPhone       = "ph"
	UserFirstName   = "fn"
	UserLastName    = "ln"
	UserExternalID  = "external_id"
	UserBrowserID   = "fbp"
	UserClickID     = "fbc"
	UserAgent       = "client_user_agent"
	UserIPAddress   = "client_ip_address"
	UserAnalyticsID = "client_id"
)

// Clone returns a copy of u.
func (u UserData) Clone() UserData {
	if u == nil {
		return nil
	}

	return maps.Clone(u)
}

// Event is one business event handed to a Sender.
type Event struct {
	Name           string
	CustomData     map[string]any
	UserData       UserData
	UserProperties map[string]any
	EventID        string
	SourceURL      string
	Time           time.Time
}

// Params returns a shallow copy of CustomData that is safe to extend.
func (e Event) Params() map[string]any {
	params := make(map[string]any, len(e.CustomData)+2)
	maps.Copy(params, e.CustomData)

	return params
}

// Origin tells who issued a tag call.
type Origin int

const (
	// OriginExternal is a call issued by the page or by the tag itself.
	OriginExternal Origin = iota
	// OriginTracker is a call issued by a tracker Sender.
	OriginTracker
)

// CallOptions is the trailing argument of a tag call.
type CallOptions struct {
	EventID string
	Origin  Origin
}
