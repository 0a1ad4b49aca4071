// Package queue persists conversion jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, stuck-job recovery, and the status transitions the preparation
// pipeline and the control surfaces rely on. Jobs carry their command as JSON
// so callers outside the pipeline can stay opaque to its contents.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
