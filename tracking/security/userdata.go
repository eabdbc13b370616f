package security

import (
	"strings"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
)

// RedactedValue replaces masked values.
const RedactedValue = "[REDACTED]"

const sha256HexLen = 64

// RedactUserData returns a copy of data safe to log. Personal fields are
// masked unless they already hold a SHA-256 hex digest; browser and click ids
// and the user agent are kept.
func RedactUserData(data channel.UserData) channel.UserData {
	if data == nil {
		return nil
	}

	redacted := make(channel.UserData, len(data))

	for key, value := range data {
		if IsPersonalField(key) && !IsHashed(value) {
			redacted[key] = RedactedValue

			continue
		}

		redacted[key] = value
	}

	return redacted
}

// RedactParams returns a copy of params with sensitive keys masked, recursing
// into nested maps.
func RedactParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}

	redacted := make(map[string]any, len(params))

	for key, value := range params {
		if IsSensitiveField(key) {
			redacted[key] = RedactedValue

			continue
		}

		if nested, ok := value.(map[string]any); ok {
			redacted[key] = RedactParams(nested)

			continue
		}

		redacted[key] = value
	}

	return redacted
}

// IsHashed reports whether value looks like a lowercase SHA-256 hex digest.
func IsHashed(value string) bool {
	if len(value) != sha256HexLen {
		return false
	}

	return strings.IndexFunc(value, func(r rune) bool {
		return (r < '0' || r > '9') && (r < 'a' || r > 'f')
	}) == -1
}
