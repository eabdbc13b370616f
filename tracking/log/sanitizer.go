package log

import "unicode/utf8"

// MaxBodyBytes bounds the upstream response bodies written to logs.
const MaxBodyBytes = 512

// Body attaches an upstream response body under the "body" key. The body is
// cut to MaxBodyBytes on a rune boundary and control characters are escaped
// so a hostile upstream cannot forge log lines.
func Body(raw []byte) Field {
	if len(raw) > MaxBodyBytes {
		cut := MaxBodyBytes
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}

		return String("body", sanitizeLogString(string(raw[:cut]))+"...")
	}

	return String("body", sanitizeLogString(string(raw)))
}
