//go:build unit

package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowsFor(t *testing.T) {
	t.Parallel()

	windows := DefaultWindows()

	tests := []struct {
		event    string
		expected time.Duration
	}{
		{event: "PageView", expected: 30 * time.Minute},
		{event: "page_view", expected: 30 * time.Minute},
		{event: "Lead", expected: 24 * time.Hour},
		{event: "generate_lead", expected: 24 * time.Hour},
		{event: "Contact", expected: 24 * time.Hour},
		{event: "InitiateCheckout", expected: time.Hour},
		{event: "SomethingCustom", expected: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, windows.For(tt.event))
		})
	}
}

func TestWindowsFallbacks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, defaultWindow, Windows{}.For("Lead"))
	assert.Equal(t, 5*time.Minute, Windows{DefaultWindowKey: 5 * time.Minute}.For("Lead"))
	assert.Equal(t, 5*time.Minute, Windows{DefaultWindowKey: 5 * time.Minute, "Lead": 0}.For("Lead"))
}

func TestWindowsMerge(t *testing.T) {
	t.Parallel()

	base := DefaultWindows()
	merged := base.Merge(map[string]time.Duration{"Lead": time.Hour, "PageView": -1, "Quote": 2 * time.Hour})

	assert.Equal(t, time.Hour, merged.For("Lead"))
	assert.Equal(t, 30*time.Minute, merged.For("PageView"))
	assert.Equal(t, 2*time.Hour, merged.For("Quote"))
	assert.Equal(t, 24*time.Hour, base.For("Lead"), "merge must not mutate the receiver")
}

func TestCompositeKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Lead:lead_123", CompositeKey("Lead", "lead_123"))
	assert.Equal(t, "PageView:default", CompositeKey("PageView", ""))
	assert.Equal(t, "Lead:x", StoredEvent{EventName: "Lead", Identifier: "x"}.Key())
}
