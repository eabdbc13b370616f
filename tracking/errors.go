package tracking

import "errors"

var (
	// ErrNilTracker is returned when a Tracker method is called on a nil receiver.
	ErrNilTracker = errors.New("tracker is nil")
	// ErrTrackerClosed is returned by Start after Close.
	ErrTrackerClosed = errors.New("tracker is closed")
	// ErrLeadIDRequired is returned by TrackLeadReport for an empty lead id.
	ErrLeadIDRequired = errors.New("lead id is required")
	// ErrLeadScorerRequired is returned by TrackLeadReport when no LeadScorer is configured.
	ErrLeadScorerRequired = errors.New("lead scorer is required")
)
