// Package relay is the server side of the conversion and measurement channels.
//
// A Relay accepts the payloads built by the tracking endpoints, fills the
// request-derived fields, hashes personal data that arrives in clear text and
// forwards them to the configured upstream collectors with the credentials the
// browser must never see. Forwarding runs through the retry engine and a
// circuit breaker per upstream, and an optional identity store drops events
// that were already forwarded inside their window.
package relay
