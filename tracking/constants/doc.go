// Package constant holds the header names and error titles shared by the
// HTTP middleware and the relay handlers.
package constant
