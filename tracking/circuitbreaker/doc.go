// Package circuitbreaker guards the server-side collectors with
// sony/gobreaker breakers, one per channel or relay upstream, so an unhealthy
// collector is skipped instead of retried on every event.
package circuitbreaker
