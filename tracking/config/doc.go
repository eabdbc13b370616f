// Package config loads service configuration from YAML files and environment
// variables.
//
// Files are applied in order over DefaultService, then every field tagged with
// `env:"NAME"` is overridden from the environment when NAME is set, and finally
// WithDefaults fills whatever is still empty.
package config
