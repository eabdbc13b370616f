// Package channel holds the delivery channels of the tracker.
//
// A Registry stands in for the page globals a third-party tag installs: each
// channel Name maps to a DispatchFunc that can be installed, torn down, watched
// for installation and wrapped by exactly one reversible decorator.
//
// Senders deliver an Event to one channel. Tag senders call the registered
// DispatchFunc and fail fast when it is absent; endpoint senders POST a JSON
// payload through a circuit breaker and the retry engine.
package channel
