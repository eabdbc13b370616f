// Package mongo provides a MongoDB client with lazy, rate-limited reconnection
// and an identity.Storage that keeps dedup records as one document per key.
package mongo
