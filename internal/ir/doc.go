// Package ir provides the foundational types shared by every docsql package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// value model, the schema graph and the pipeline program at the bottom of
// the dependency graph.
//
// Contents:
//   - Value: a sealed tagged union over every native document value kind
//   - Kind: the tag of a Value, with a total order used for comparisons
//   - SQLType: the relational type exposed for a column
//   - Schema, Table, Column: the virtual table forest built by discovery
//   - Stage, Program, ColumnMeta: the compiled aggregation program
//
// Key design constraints:
//   - Documents keep field order (Document is a slice, not a map)
//   - Tables reference each other by name, never by pointer
//   - A Schema or Program is never mutated after it is returned
package ir
