// Package store persists discovered schema graphs.
//
// Every save of a schema name appends a version. A version records:
//   - Number: per-name sequence starting at 1
//   - RunID: UUIDv7 of the discovery run that produced it
//   - Hash: content hash from ir.SchemaHash
//
// Saving a graph whose hash equals the latest version of that name is a
// no-op that returns the latest version, so repeated discovery over an
// unchanged dataset does not grow the history.
//
// # Implementations
//
//   - SQLite: durable store on mattn/go-sqlite3, accessed through sqlx
//   - Memory: map-backed store for tests and the in-memory CLI mode
//   - Cached: LRU decorator over any Store for hot Load paths
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Queries order by (name, version) so listings are deterministic.
package store
