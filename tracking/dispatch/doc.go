// Package dispatch is the single entry point for sending an event.
//
// A Dispatcher checks its identity store, fans the event out in parallel to
// every tag channel (queueing it for channels that are not loaded yet) and,
// when asked, to every server endpoint. The event is marked as sent once any
// channel accepted it. Partial failure is never returned to the caller: the
// outcome is a bool, with details in the Report, logs and metrics.
package dispatch
