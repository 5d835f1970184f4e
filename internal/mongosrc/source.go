package mongosrc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

// Source is one database of a MongoDB deployment.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and selects database. The connection is verified with
// a ping.
func Connect(ctx context.Context, uri, database string) (*Source, error) {
	if database == "" {
		return nil, fmt.Errorf("connect: no database name")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	slog.Debug("connected to mongodb", "database", database)
	return &Source{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CollectionNames lists the collections of the database, sorted.
func (s *Source) CollectionNames(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Collection returns a handle on the named collection.
func (s *Source) Collection(name string) *Collection {
	return &Collection{coll: s.db.Collection(name)}
}

// Aggregate runs a compiled program against its collection.
func (s *Source) Aggregate(ctx context.Context, p *ir.Program) (native.Iterator, error) {
	cur, err := s.db.Collection(p.Collection).Aggregate(ctx, pipeline(p.Pipeline()))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", p.Collection, err)
	}
	return NewIterator(cur), nil
}

// Collection samples one MongoDB collection.
type Collection struct {
	coll *mongo.Collection
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.coll.Name()
}

// Find reads documents in natural order or sorted by _id.
func (c *Collection) Find(ctx context.Context, opts native.FindOptions) (native.Iterator, error) {
	fo := options.Find()
	switch opts.Sort {
	case native.Ascending:
		fo.SetSort(bson.D{{Key: ir.IDField, Value: 1}})
	case native.Descending:
		fo.SetSort(bson.D{{Key: ir.IDField, Value: -1}})
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	cur, err := c.coll.Find(ctx, bson.D{}, fo)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.Name(), err)
	}
	return NewIterator(cur), nil
}

// Sample reads up to n random documents with $sample.
func (c *Collection) Sample(ctx context.Context, n int64) (native.Iterator, error) {
	if n < 0 {
		return nil, fmt.Errorf("sample %s: negative size %d", c.Name(), n)
	}
	stages := bson.A{bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: n}}}}}
	cur, err := c.coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", c.Name(), err)
	}
	return NewIterator(cur), nil
}

var (
	_ native.Collection = (*Collection)(nil)
	_ native.Executor   = (*Source)(nil)
)
