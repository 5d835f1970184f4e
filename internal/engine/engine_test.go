package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/discovery"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/memdb"
	"github.com/roach88/docsql/internal/metrics"
	"github.com/roach88/docsql/internal/native"
	"github.com/roach88/docsql/internal/queryir"
	"github.com/roach88/docsql/internal/querypipe"
	"github.com/roach88/docsql/internal/store"
	"github.com/roach88/docsql/internal/testutil"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func shopDB() *memdb.DB {
	db := memdb.New()
	db.Insert("orders",
		ir.D(
			ir.F("_id", ir.Int32(1)),
			ir.F("customer", ir.Int32(1)),
			ir.F("total", ir.Int32(30)),
			ir.F("items", ir.A(
				ir.D(ir.F("sku", ir.String("a")), ir.F("qty", ir.Int32(2))),
				ir.D(ir.F("sku", ir.String("b")), ir.F("qty", ir.Int32(1))),
			)),
		),
		ir.D(
			ir.F("_id", ir.Int32(2)),
			ir.F("customer", ir.Int32(2)),
			ir.F("total", ir.Int32(5)),
			ir.F("items", ir.A()),
		),
	)
	db.Insert("customers",
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("name", ir.String("ada"))),
		ir.D(ir.F("_id", ir.Int32(2)), ir.F("name", ir.String("bob"))),
	)
	return db
}

// setupEngine returns an engine over the shop data with the "shop" schema
// already discovered.
func setupEngine(t *testing.T, opts ...Option) (*Engine, *memdb.DB) {
	t.Helper()
	db := shopDB()
	e := New(store.NewMemory(), db, opts...)
	_, _, err := e.Discover(context.Background(), "shop", testutil.Collections(db), discovery.Options{})
	require.NoError(t, err)
	return e, db
}

func TestEngine_DiscoverSavesVersion(t *testing.T) {
	db := shopDB()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := New(s, db)
	ctx := context.Background()

	schema, v1, err := e.Discover(ctx, "shop", testutil.Collections(db), discovery.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Number)
	assert.Equal(t, ir.MustSchemaHash(schema), v1.Hash)
	for _, name := range []string{"orders", "orders_items", "customers"} {
		_, ok := schema.Table(name)
		assert.True(t, ok, "table %s", name)
	}

	_, v2, err := e.Discover(ctx, "shop", testutil.Collections(db), discovery.Options{})
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "unchanged data must not add a version")

	db.Insert("customers", ir.D(ir.F("_id", ir.Int32(3)), ir.F("vip", ir.Bool(true))))
	_, v3, err := e.Discover(ctx, "shop", testutil.Collections(db), discovery.Options{SampleSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, v3.Number)

	loaded, err := e.Schema(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, v3.Hash, ir.MustSchemaHash(loaded))
}

func TestEngine_Query(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	plan := &queryir.Sort{
		Keys: []queryir.SortKey{{Expr: queryir.Col("", "sku")}},
		Input: &queryir.Project{
			Items: []queryir.ProjectItem{
				{Expr: queryir.Col("", "sku")},
				{Expr: queryir.Col("", "qty")},
			},
			Input: &queryir.Scan{Table: "orders_items"},
		},
	}

	cur, err := e.Query(ctx, "shop", plan)
	require.NoError(t, err)
	defer cur.Close(ctx)

	type row struct {
		sku string
		qty int64
	}
	var rows []row
	for {
		ok, err := cur.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		sku, err := cur.StringByLabel("sku")
		require.NoError(t, err)
		qty, err := cur.Int64(2)
		require.NoError(t, err)
		rows = append(rows, row{sku, qty})
	}
	assert.Equal(t, []row{{"a", 2}, {"b", 1}}, rows)

	cols := cur.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "sku", cols[0].Label)
	assert.Equal(t, ir.TypeVarchar, cols[0].Type)
}

func TestEngine_Compile(t *testing.T) {
	e, _ := setupEngine(t)

	prog, err := e.Compile(context.Background(), "shop", &queryir.Filter{
		Cond:  queryir.Cmp(queryir.OpGt, queryir.Col("", "total"), queryir.Lit(ir.Int32(10))),
		Input: &queryir.Scan{Table: "orders"},
	})
	require.NoError(t, err)
	assert.Equal(t, "orders", prog.Collection)
	assert.Contains(t, prog.StageKinds(), ir.StageMatch)
}

func TestEngine_SchemaNotFound(t *testing.T) {
	e := New(store.NewMemory(), memdb.New(), WithIDGenerator(NewFixedGenerator("q-missing")))

	_, err := e.Query(context.Background(), "missing", &queryir.Scan{Table: "t"})
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "q-missing", engErr.QueryID)
	assert.Equal(t, "missing", engErr.Schema)
	assert.True(t, IsSchemaNotFound(err))
	assert.True(t, HasCode(err, ErrCodeSchemaNotFound))
	assert.ErrorIs(t, err, ErrSchemaNotFound)
}

func TestEngine_CompileErrorKeepsCause(t *testing.T) {
	e, _ := setupEngine(t)

	_, err := e.Compile(context.Background(), "shop", &queryir.Project{
		Items: []queryir.ProjectItem{{Expr: queryir.Col("", "nope")}},
		Input: &queryir.Scan{Table: "orders"},
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeCompile))
	assert.True(t, querypipe.IsResolutionError(err))
}

type failingExecutor struct{ err error }

func (f failingExecutor) Aggregate(context.Context, *ir.Program) (native.Iterator, error) {
	return nil, f.err
}

func TestEngine_ExecuteError(t *testing.T) {
	db := shopDB()
	boom := errors.New("connection reset")
	s := store.NewMemory()

	schema, err := discovery.DiscoverAll(context.Background(), testutil.Collections(db), discovery.Options{})
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "shop", schema)
	require.NoError(t, err)

	e := New(s, failingExecutor{err: boom}, WithIDGenerator(testutil.NewSequentialIDs("")))
	_, err = e.Query(context.Background(), "shop", &queryir.Scan{Table: "customers"})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeExecute))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "query=q-0001")
}

func TestEngine_DiscoverStreamError(t *testing.T) {
	boom := errors.New("cursor killed")
	coll := brokenCollection{name: "orders", err: boom}

	e := New(store.NewMemory(), memdb.New())
	_, _, err := e.Discover(context.Background(), "shop", []native.Collection{coll}, discovery.Options{})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDiscover))
	assert.True(t, discovery.IsStreamError(err))
	assert.ErrorIs(t, err, boom)

	_, ok, err := e.Store().Load(context.Background(), "shop")
	require.NoError(t, err)
	assert.False(t, ok, "failed discovery must not save a schema")
}

type brokenCollection struct {
	name string
	err  error
}

func (b brokenCollection) Name() string { return b.name }

func (b brokenCollection) Find(context.Context, native.FindOptions) (native.Iterator, error) {
	return native.FailingIterator([]ir.Document{ir.D(ir.F("_id", ir.Int32(1)))}, b.err), nil
}

func (b brokenCollection) Sample(context.Context, int64) (native.Iterator, error) {
	return native.FailingIterator(nil, b.err), nil
}

func TestEngine_Metrics(t *testing.T) {
	m := metrics.New(nil)
	e, _ := setupEngine(t, WithMetrics(m))
	ctx := context.Background()

	cur, err := e.Query(ctx, "shop", &queryir.Scan{Table: "customers"})
	require.NoError(t, err)
	for {
		ok, err := cur.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	require.NoError(t, cur.Close(ctx))

	_, err = e.Query(ctx, "missing", &queryir.Scan{Table: "customers"})
	require.Error(t, err)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.OperationsTotal.WithLabelValues(metrics.OpDiscover, metrics.StatusOK)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.OperationsTotal.WithLabelValues(metrics.OpQuery, metrics.StatusOK)))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.OperationsTotal.WithLabelValues(metrics.OpQuery, metrics.StatusError)))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.RowsTotal))
	assert.Equal(t, 3.0, promtestutil.ToFloat64(m.SchemaTables.WithLabelValues("shop")))
}

func TestEngine_Execute(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	prog, err := e.Compile(ctx, "shop", &queryir.Scan{Table: "customers"})
	require.NoError(t, err)
	cur, err := e.Execute(ctx, prog)
	require.NoError(t, err)
	defer cur.Close(ctx)

	ok, err := cur.Absolute(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	name, err := cur.StringByLabel("name")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}
