package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/docsql/internal/native"
)

// countingIterator counts the documents read from an executor stream.
type countingIterator struct {
	native.Iterator
	rows prometheus.Counter
}

func (c *countingIterator) Next(ctx context.Context) bool {
	if !c.Iterator.Next(ctx) {
		return false
	}
	c.rows.Inc()
	return true
}
