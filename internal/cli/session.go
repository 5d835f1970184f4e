package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/docsql/internal/engine"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/memdb"
	"github.com/roach88/docsql/internal/metrics"
	"github.com/roach88/docsql/internal/mongosrc"
	"github.com/roach88/docsql/internal/native"
	"github.com/roach88/docsql/internal/store"
)

// Failure classes for errorCode.
var (
	errSource = errors.New("document source")
	errStore  = errors.New("schema store")
)

// source is where documents come from: a directory loaded into memory or a
// MongoDB database.
type source interface {
	native.Executor
	collections(ctx context.Context, names []string) ([]native.Collection, error)
	close(ctx context.Context) error
}

type memSource struct {
	db *memdb.DB
}

func (s memSource) Aggregate(ctx context.Context, p *ir.Program) (native.Iterator, error) {
	return s.db.Aggregate(ctx, p)
}

func (s memSource) collections(_ context.Context, names []string) ([]native.Collection, error) {
	known := s.db.Collections()
	if len(names) == 0 {
		names = known
	}
	out := make([]native.Collection, 0, len(names))
	for _, name := range names {
		if !slices.Contains(known, name) {
			return nil, fmt.Errorf("collection %q not found", name)
		}
		out = append(out, s.db.Collection(name))
	}
	return out, nil
}

func (memSource) close(context.Context) error { return nil }

type mongoSource struct {
	*mongosrc.Source
}

func (s mongoSource) collections(ctx context.Context, names []string) ([]native.Collection, error) {
	if len(names) == 0 {
		var err error
		if names, err = s.CollectionNames(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]native.Collection, len(names))
	for i, name := range names {
		out[i] = s.Collection(name)
	}
	return out, nil
}

func (s mongoSource) close(ctx context.Context) error { return s.Close(ctx) }

// openSource connects to the configured document source. A data directory
// takes precedence over MongoDB.
func openSource(ctx context.Context, opts *RootOptions) (source, error) {
	cfg := opts.Config
	if cfg.Data.Dir != "" {
		db, err := memdb.LoadDir(cfg.Data.Dir)
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded data directory", "dir", cfg.Data.Dir, "collections", len(db.Collections()))
		return memSource{db: db}, nil
	}
	src, err := mongosrc.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, err
	}
	return mongoSource{Source: src}, nil
}

// openStore opens the schema store with an LRU cache in front.
func openStore(opts *RootOptions) (*store.SQLite, store.Store, error) {
	cfg := opts.Config
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errStore, err)
	}
	cached, err := store.NewCached(db, cfg.Store.CacheSize)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, cached, nil
}

// session holds what a command needs to reach the engine.
type session struct {
	engine  *engine.Engine
	db      *store.SQLite
	src     source
	metrics *metrics.Metrics
}

// openSession opens the schema store and, when withSource is set, the
// document source.
func openSession(ctx context.Context, opts *RootOptions, withSource bool) (*session, error) {
	db, st, err := openStore(opts)
	if err != nil {
		return nil, err
	}
	s := &session{db: db, metrics: metrics.New(nil)}
	var exec native.Executor = noExecutor{}
	if withSource {
		src, err := openSource(ctx, opts)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %w", errSource, err)
		}
		s.src = src
		exec = src
	}
	s.engine = engine.New(st, exec, engine.WithMetrics(s.metrics))
	return s, nil
}

// Close releases the source and the store.
func (s *session) Close(ctx context.Context) error {
	var srcErr error
	if s.src != nil {
		srcErr = s.src.close(ctx)
	}
	return errors.Join(srcErr, s.db.Close())
}

// noExecutor serves commands that only compile.
type noExecutor struct{}

func (noExecutor) Aggregate(context.Context, *ir.Program) (native.Iterator, error) {
	return nil, fmt.Errorf("no document source opened")
}
