// Package postgres provides a pgx connection pool and an identity.Storage that
// keeps dedup records in a single key/value table.
package postgres
