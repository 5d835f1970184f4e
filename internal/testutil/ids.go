package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "prefix-0001", "prefix-0002", ... for tests that
// compare logs or snapshots across runs.
//
// Implements engine.IDGenerator. Safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialIDs creates a generator. An empty prefix uses "q".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "q"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Current returns the number of ids generated so far.
func (g *SequentialIDs) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence, so a scenario can be rerun with identical ids.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
