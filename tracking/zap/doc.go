// Package zap implements log.Logger on go.uber.org/zap. Entries are written
// as JSON and copied to the OpenTelemetry log pipeline through the otelzap
// bridge.
package zap
