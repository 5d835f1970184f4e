// Package engine ties discovery, schema persistence, query translation and
// execution together.
//
// An Engine owns a schema store and a pipeline executor:
//
//	Discover: sample collections -> schema graph -> store (versioned)
//	Compile:  store -> schema graph + relational plan -> pipeline program
//	Query:    Compile -> executor -> cursor
//
// Every operation is stamped with a query id from the engine's IDGenerator
// and logged with slog; when metrics are configured, outcomes and latency
// are recorded per operation.
//
// The engine holds no per-query state. Discover, Compile and Query may be
// called concurrently; each returned Cursor belongs to a single goroutine.
package engine
