// Package server provides server lifecycle and graceful shutdown helpers.
//
// ServerManager runs a Fiber app, waits for a signal or a shutdown channel,
// stops the app and then runs registered shutdown hooks in order, so the
// tracker can flush pending work and storage clients can close last.
package server
