// Package redis provides a Redis/Valkey client with standalone, sentinel and
// cluster topologies, and an identity.Storage backed by it.
package redis
