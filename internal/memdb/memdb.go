package memdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

// DB is an in-memory set of collections.
// It is safe for concurrent use.
type DB struct {
	mu    sync.RWMutex
	colls map[string]*Collection
	seq   uint64
	seed  uint64
}

// Option configures a DB.
type Option func(*DB)

// WithSeed sets the seed of the random source used by Sample.
func WithSeed(seed uint64) Option {
	return func(db *DB) { db.seed = seed }
}

// New creates an empty database.
func New(opts ...Option) *DB {
	db := &DB{colls: make(map[string]*Collection), seed: 1}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Collection returns the named collection, creating it if needed.
func (db *DB) Collection(name string) *Collection {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.colls[name]
	if !ok {
		c = &Collection{db: db, name: name}
		db.colls[name] = c
	}
	return c
}

// Collections returns the collection names, sorted.
func (db *DB) Collections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.colls))
	for name := range db.colls {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Insert appends documents to the named collection. Documents without an
// _id get a sequential ObjectID.
func (db *DB) Insert(collection string, docs ...ir.Document) {
	c := db.Collection(collection)
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, doc := range docs {
		if _, ok := doc.Get(ir.IDField); !ok {
			db.seq++
			var id ir.ObjectID
			binary.BigEndian.PutUint64(id[4:], db.seq)
			doc = append(ir.D(ir.F(ir.IDField, id)), doc...)
		}
		c.docs = append(c.docs, doc)
	}
}

// snapshot returns the documents of a collection; a missing collection is
// empty.
func (db *DB) snapshot(name string) []ir.Document {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.colls[name]
	if !ok {
		return nil
	}
	return slices.Clone(c.docs)
}

// Aggregate runs a compiled program against its collection.
func (db *DB) Aggregate(ctx context.Context, p *ir.Program) (native.Iterator, error) {
	stages := make(ir.Array, len(p.Stages))
	for i, s := range p.Stages {
		stages[i] = s.Document()
	}
	out, err := db.Run(ctx, p.Collection, stages)
	if err != nil {
		return nil, err
	}
	return native.NewSliceIterator(out), nil
}

// Run evaluates a pipeline of stage documents against a collection.
func (db *DB) Run(ctx context.Context, collection string, pipeline ir.Array) ([]ir.Document, error) {
	r := &runner{db: db}
	return r.run(ctx, db.snapshot(collection), pipeline, nil)
}

// Collection is a named list of documents in insertion order.
type Collection struct {
	db   *DB
	name string
	docs []ir.Document
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	return len(c.db.snapshot(c.name))
}

// Find returns the documents in insertion order, or sorted by _id.
func (c *Collection) Find(ctx context.Context, opts native.FindOptions) (native.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs := c.db.snapshot(c.name)
	if opts.Sort != native.Natural {
		slices.SortStableFunc(docs, func(a, b ir.Document) int {
			av, _ := a.Get(ir.IDField)
			bv, _ := b.Get(ir.IDField)
			if opts.Sort == native.Descending {
				return ir.Compare(bv, av)
			}
			return ir.Compare(av, bv)
		})
	}
	if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return native.NewSliceIterator(docs), nil
}

// Sample returns up to n documents chosen at random without replacement.
// The choice is a pure function of the database seed and the collection
// contents.
func (c *Collection) Sample(ctx context.Context, n int64) (native.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("sample %s: negative size %d", c.name, n)
	}
	docs := c.db.snapshot(c.name)
	rng := rand.New(rand.NewPCG(c.db.seed, uint64(len(docs))))
	rng.Shuffle(len(docs), func(i, j int) { docs[i], docs[j] = docs[j], docs[i] })
	if int64(len(docs)) > n {
		docs = docs[:n]
	}
	return native.NewSliceIterator(docs), nil
}

var (
	_ native.Collection = (*Collection)(nil)
	_ native.Executor   = (*DB)(nil)
)
