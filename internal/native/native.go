// Package native defines the contracts docsql consumes from a document
// store: a forward iterator over documents, a collection that can be
// sampled, and an executor that runs a compiled aggregation program.
//
// Concrete implementations live in memdb (in-process) and mongosrc
// (MongoDB driver).
package native

import (
	"context"

	"github.com/roach88/docsql/internal/ir"
)

// Iterator is a forward-only stream of documents.
//
// Usage mirrors a driver cursor:
//
//	for it.Next(ctx) {
//	    doc := it.Current()
//	}
//	if err := it.Err(); err != nil { ... }
//
// Next may block on I/O. Close is idempotent.
type Iterator interface {
	Next(ctx context.Context) bool
	Current() ir.Document
	Err() error
	Close(ctx context.Context) error
}

// SortOrder orders a Find by _id.
type SortOrder int

const (
	// Natural applies no sort.
	Natural SortOrder = iota
	// Ascending sorts by _id ascending.
	Ascending
	// Descending sorts by _id descending.
	Descending
)

// FindOptions controls a Find. Limit <= 0 means no limit.
type FindOptions struct {
	Sort  SortOrder
	Limit int64
}

// Collection is a named set of documents that discovery can sample.
type Collection interface {
	Name() string
	Find(ctx context.Context, opts FindOptions) (Iterator, error)
	Sample(ctx context.Context, n int64) (Iterator, error)
}

// Executor runs a compiled program and returns its output documents.
type Executor interface {
	Aggregate(ctx context.Context, p *ir.Program) (Iterator, error)
}

// SliceIterator iterates over an in-memory slice of documents.
type SliceIterator struct {
	docs   []ir.Document
	pos    int
	err    error
	closed bool
}

// NewSliceIterator returns an iterator over docs.
func NewSliceIterator(docs []ir.Document) *SliceIterator {
	return &SliceIterator{docs: docs, pos: -1}
}

// FailingIterator returns an iterator that yields docs and then fails with err.
func FailingIterator(docs []ir.Document, err error) *SliceIterator {
	return &SliceIterator{docs: docs, pos: -1, err: err}
}

// Next advances to the next document.
func (s *SliceIterator) Next(ctx context.Context) bool {
	if s.closed || ctx.Err() != nil {
		return false
	}
	if s.pos+1 >= len(s.docs) {
		s.pos = len(s.docs)
		return false
	}
	s.pos++
	return true
}

// Current returns the document under the iterator.
func (s *SliceIterator) Current() ir.Document {
	if s.pos < 0 || s.pos >= len(s.docs) {
		return nil
	}
	return s.docs[s.pos]
}

// Err returns the terminal error, reported once the documents are exhausted.
func (s *SliceIterator) Err() error {
	if s.pos >= len(s.docs) {
		return s.err
	}
	return nil
}

// Close marks the iterator closed.
func (s *SliceIterator) Close(context.Context) error {
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *SliceIterator) Closed() bool {
	return s.closed
}

// Drain reads every remaining document from it and closes it.
func Drain(ctx context.Context, it Iterator) ([]ir.Document, error) {
	defer it.Close(ctx)
	var out []ir.Document
	for it.Next(ctx) {
		out = append(out, it.Current())
	}
	return out, it.Err()
}
