// Package runtime provides panic-safe goroutine launchers and recovery helpers.
//
// Analytics work must never crash the host process: every background goroutine
// started by the tracking pipeline goes through SafeGo so a panicking adapter
// or third-party dispatch function is logged, counted and contained.
package runtime
