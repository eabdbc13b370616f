package dispatch

import "github.com/LerianStudio/lib-tracking/tracking/channel"

// Outcome is what happened to an event on one channel.
type Outcome string

const (
	// OutcomeDelivered means the channel accepted the event.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeQueued means the channel was not loaded and the pending queue took the event.
	OutcomeQueued Outcome = "queued"
	// OutcomeFailed means the channel rejected the event or could not be reached.
	OutcomeFailed Outcome = "failed"
)

// Accepted reports whether the outcome counts as acceptance.
func (o Outcome) Accepted() bool {
	return o == OutcomeDelivered || o == OutcomeQueued
}

// ChannelResult is the outcome for one channel.
type ChannelResult struct {
	Channel channel.Name
	Outcome Outcome
}

// Report describes one SendEvent call.
type Report struct {
	EventName string
	EventID   string
	Duplicate bool
	Channels  []ChannelResult
	Err       error
}

// Accepted reports whether any channel accepted the event.
func (r Report) Accepted() bool {
	for _, result := range r.Channels {
		if result.Outcome.Accepted() {
			return true
		}
	}

	return false
}

// Outcome returns the outcome recorded for name.
func (r Report) Outcome(name channel.Name) (Outcome, bool) {
	for _, result := range r.Channels {
		if result.Channel == name {
			return result.Outcome, true
		}
	}

	return "", false
}
