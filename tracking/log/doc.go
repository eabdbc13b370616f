// Package log defines the logging interface shared by every tracking component
// together with typed logging fields.
//
// Adapters (such as the zap package) implement Logger so the dispatch pipeline,
// the pending queue and the gateway emit structured entries through a single
// abstraction regardless of backend.
package log
