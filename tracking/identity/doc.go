// Package identity is the deduplication store: it remembers which
// (event name, identifier) pairs were dispatched and for how long they count
// as already sent.
//
// Records live as one JSON array per namespace behind an injected Storage
// adapter. Reads fail open: a storage error answers "not sent" so an event is
// never dropped because of a storage glitch.
package identity
