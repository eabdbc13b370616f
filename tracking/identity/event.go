package identity

import "time"

// DefaultIdentifier is used when the caller supplies no identifier.
const DefaultIdentifier = "default"

// StoredEvent records that an event was dispatched at Timestamp (unix milliseconds).
type StoredEvent struct {
	EventName  string         `json:"eventName"`
	Identifier string         `json:"identifier"`
	Timestamp  int64          `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Key returns the composite key eventName:identifier.
func (e StoredEvent) Key() string {
	return CompositeKey(e.EventName, e.Identifier)
}

// SentAt returns Timestamp as a time.Time.
func (e StoredEvent) SentAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// CompositeKey forms the dedup key, substituting DefaultIdentifier for an empty identifier.
func CompositeKey(eventName, identifier string) string {
	return eventName + ":" + NormalizeIdentifier(identifier)
}

// NormalizeIdentifier returns identifier, or DefaultIdentifier when it is empty.
func NormalizeIdentifier(identifier string) string {
	if identifier == "" {
		return DefaultIdentifier
	}

	return identifier
}
