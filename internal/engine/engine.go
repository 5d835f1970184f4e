package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/docsql/internal/cursor"
	"github.com/roach88/docsql/internal/discovery"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/metrics"
	"github.com/roach88/docsql/internal/native"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/querypipe"
	"github.com/roach88/docsql/internal/store"
)

// Engine runs discovery and queries against one document database.
type Engine struct {
	store    store.Store
	exec     native.Executor
	compiler *querypipe.Compiler
	ids      IDGenerator
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records operation outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator sets the generator of query ids.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine over a schema store and a pipeline executor.
func New(s store.Store, exec native.Executor, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		exec:     exec,
		compiler: querypipe.NewCompiler(),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's schema store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Discover samples colls, merges the inferred tables into one schema graph
// and saves it under name. Saving a graph identical to the latest version
// returns that version.
func (e *Engine) Discover(ctx context.Context, name string, colls []native.Collection, opts discovery.Options) (*ir.Schema, store.Version, error) {
	start := time.Now()
	id := e.ids.Generate()
	schema, version, err := e.discover(ctx, name, id, colls, opts)
	e.observe(metrics.OpDiscover, start, err)
	if err != nil {
		slog.Warn("discovery failed", "query_id", id, "schema", name, "error", err)
		return nil, store.Version{}, err
	}
	if e.metrics != nil {
		e.metrics.SchemaTables.WithLabelValues(name).Set(float64(len(schema.Tables)))
	}
	slog.Info("schema saved",
		"query_id", id,
		"schema", name,
		"version", version.Number,
		"hash", version.Hash,
		"collections", len(colls),
		"tables", len(schema.Tables),
	)
	return schema, version, nil
}

func (e *Engine) discover(ctx context.Context, name, id string, colls []native.Collection, opts discovery.Options) (*ir.Schema, store.Version, error) {
	schema, err := discovery.DiscoverAll(ctx, colls, opts)
	if err != nil {
		return nil, store.Version{}, &Error{Code: ErrCodeDiscover, Schema: name, QueryID: id, Err: err}
	}
	version, err := e.store.Save(ctx, name, schema)
	if err != nil {
		return nil, store.Version{}, &Error{Code: ErrCodeStore, Schema: name, QueryID: id, Err: err}
	}
	return schema, version, nil
}

// Schema loads the latest version of a schema.
func (e *Engine) Schema(ctx context.Context, name string) (*ir.Schema, error) {
	return e.loadSchema(ctx, name, "")
}

func (e *Engine) loadSchema(ctx context.Context, name, id string) (*ir.Schema, error) {
	schema, ok, err := e.store.Load(ctx, name)
	if err != nil {
		return nil, &Error{Code: ErrCodeStore, Schema: name, QueryID: id, Err: err}
	}
	if !ok {
		return nil, &Error{Code: ErrCodeSchemaNotFound, Schema: name, QueryID: id, Err: ErrSchemaNotFound}
	}
	return schema, nil
}

// Compile translates plan over the latest version of the named schema.
func (e *Engine) Compile(ctx context.Context, schemaName string, plan queryir.Node) (*ir.Program, error) {
	start := time.Now()
	id := e.ids.Generate()
	prog, err := e.compile(ctx, schemaName, id, plan)
	e.observe(metrics.OpCompile, start, err)
	if err != nil {
		slog.Debug("compile failed", "query_id", id, "schema", schemaName, "error", err)
		return nil, err
	}
	slog.Debug("plan compiled",
		"query_id", id,
		"schema", schemaName,
		"collection", prog.Collection,
		"stages", len(prog.Stages),
		"columns", len(prog.Columns),
	)
	return prog, nil
}

func (e *Engine) compile(ctx context.Context, schemaName, id string, plan queryir.Node) (*ir.Program, error) {
	schema, err := e.loadSchema(ctx, schemaName, id)
	if err != nil {
		return nil, err
	}
	prog, err := e.compiler.Compile(plan, schema)
	if err != nil {
		return nil, &Error{Code: ErrCodeCompile, Schema: schemaName, QueryID: id, Err: err}
	}
	return prog, nil
}

// Query compiles plan, runs the program and returns a cursor over the
// result rows. The caller owns the cursor and must close it.
func (e *Engine) Query(ctx context.Context, schemaName string, plan queryir.Node) (*cursor.Cursor, error) {
	start := time.Now()
	id := e.ids.Generate()
	cur, err := e.query(ctx, schemaName, id, plan)
	e.observe(metrics.OpQuery, start, err)
	if err != nil {
		slog.Debug("query failed", "query_id", id, "schema", schemaName, "error", err)
		return nil, err
	}
	return cur, nil
}

func (e *Engine) query(ctx context.Context, schemaName, id string, plan queryir.Node) (*cursor.Cursor, error) {
	prog, err := e.compile(ctx, schemaName, id, plan)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, schemaName, id, prog)
}

// Execute runs an already compiled program.
func (e *Engine) Execute(ctx context.Context, prog *ir.Program) (*cursor.Cursor, error) {
	start := time.Now()
	id := e.ids.Generate()
	cur, err := e.execute(ctx, "", id, prog)
	e.observe(metrics.OpQuery, start, err)
	return cur, err
}

func (e *Engine) execute(ctx context.Context, schemaName, id string, prog *ir.Program) (*cursor.Cursor, error) {
	it, err := e.exec.Aggregate(ctx, prog)
	if err != nil {
		return nil, &Error{Code: ErrCodeExecute, Schema: schemaName, QueryID: id, Err: err}
	}
	if e.metrics != nil {
		it = &countingIterator{Iterator: it, rows: e.metrics.RowsTotal}
	}
	slog.Debug("query started",
		"query_id", id,
		"schema", schemaName,
		"collection", prog.Collection,
		"stages", prog.StageKinds(),
	)
	return cursor.New(it, prog.Columns), nil
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.metrics != nil {
		e.metrics.Observe(op, start, err)
	}
}
