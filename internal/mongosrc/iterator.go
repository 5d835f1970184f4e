package mongosrc

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

// Iterator adapts a driver cursor. A document that fails to convert ends
// the iteration with that error.
type Iterator struct {
	cur    *mongo.Cursor
	doc    ir.Document
	err    error
	closed bool
}

// NewIterator wraps cur.
func NewIterator(cur *mongo.Cursor) *Iterator {
	return &Iterator{cur: cur}
}

// Next fetches and converts the next document. It may block on a getMore.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.closed || it.err != nil {
		return false
	}
	if !it.cur.Next(ctx) {
		it.doc = nil
		return false
	}
	doc, err := FromRaw(it.cur.Current)
	if err != nil {
		it.err = fmt.Errorf("decode document: %w", err)
		it.doc = nil
		return false
	}
	it.doc = doc
	return true
}

// Current returns the last document Next converted.
func (it *Iterator) Current() ir.Document {
	return it.doc
}

// Err returns the conversion or driver error that ended the iteration.
func (it *Iterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.cur.Err()
}

// Close closes the driver cursor once.
func (it *Iterator) Close(ctx context.Context) error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.cur.Close(ctx)
}

var _ native.Iterator = (*Iterator)(nil)
