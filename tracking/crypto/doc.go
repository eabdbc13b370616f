// Package crypto hashes visitor personal data before it is sent to an
// advertising or analytics collector.
//
// Values are NFKC-normalized, trimmed and lower-cased, then hashed with
// SHA-256 (or HMAC-SHA256 when a secret is configured) and hex encoded.
// Values that already look like a SHA-256 hex digest are passed through.
package crypto
