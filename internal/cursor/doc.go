// Package cursor materializes pipeline output as a forward-only row cursor.
//
// A Cursor wraps a native.Iterator and the column metadata of a compiled
// program. It starts before the first row, advances with Next, Absolute or
// Relative, and ends after the last row. It never moves backwards and keeps
// no rows other than the current one and a single lookahead used by IsLast.
//
// Getters take a 1-based column index, or a label with the ByLabel
// variants, and convert the stored value with the coerce rules. Lossy
// numeric conversions yield the target's zero instead of failing. WasNull
// reports whether the last value read was null.
//
// A Cursor is not safe for concurrent use.
package cursor
