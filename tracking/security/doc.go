// Package security detects sensitive field names and masks visitor personal
// data before it reaches logs or telemetry.
package security
