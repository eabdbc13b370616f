package identity

import (
	"maps"
	"time"
)

// DefaultWindowKey is the fallback entry of a Windows table.
const DefaultWindowKey = "default"

const defaultWindow = time.Hour

// Windows maps event names to the period during which a repeat is a duplicate.
type Windows map[string]time.Duration

// DefaultWindows is the canonical expiration table shared by the Tag and the
// Analytics namespaces. Frequent, idempotent events get short session-like
// windows; conversions get a day.
func DefaultWindows() Windows {
	return Windows{
		DefaultWindowKey: defaultWindow,

		"PageView":    30 * time.Minute,
		"page_view":   30 * time.Minute,
		"ViewContent": 30 * time.Minute,
		"view_item":   30 * time.Minute,

		"InitiateCheckout": time.Hour,
		"begin_checkout":   time.Hour,

		"Contact":              24 * time.Hour,
		"contact":              24 * time.Hour,
		"Lead":                 24 * time.Hour,
		"generate_lead":        24 * time.Hour,
		"CompleteRegistration": 24 * time.Hour,
		"sign_up":              24 * time.Hour,
		"Schedule":             24 * time.Hour,
		"schedule":             24 * time.Hour,
		"SubmitApplication":    24 * time.Hour,
		"Purchase":             24 * time.Hour,
		"purchase":             24 * time.Hour,
	}
}

// For returns table[eventName], falling back to the default entry.
func (w Windows) For(eventName string) time.Duration {
	if d, ok := w[eventName]; ok && d > 0 {
		return d
	}

	if d, ok := w[DefaultWindowKey]; ok && d > 0 {
		return d
	}

	return defaultWindow
}

// Merge returns a copy of w with overrides applied. Non-positive overrides are ignored.
func (w Windows) Merge(overrides map[string]time.Duration) Windows {
	out := make(Windows, len(w)+len(overrides))
	maps.Copy(out, w)

	for name, d := range overrides {
		if d > 0 {
			out[name] = d
		}
	}

	return out
}
