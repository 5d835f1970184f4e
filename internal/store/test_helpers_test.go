package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/docsql/internal/ir"
)

// createTestStore opens a SQLite store in a temporary directory.
func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// historyStore is what both concrete stores implement.
type historyStore interface {
	Store
	History
}

// eachStore runs fn against a fresh SQLite and a fresh Memory store.
func eachStore(t *testing.T, fn func(t *testing.T, s historyStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, createTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

// sequentialRunIDs makes run ids predictable.
func sequentialRunIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("run-%d", n), nil
	}
}

// testSchema builds a two-table schema; extra adds a data column to the
// base table so callers can produce distinct graphs.
func testSchema(extra ...string) *ir.Schema {
	s := ir.NewSchema()
	cols := []ir.Column{
		{Name: "_id", Path: "_id", Type: ir.TypeOther, Ordinal: 1, Table: "orders", Role: ir.RoleKey, Kinds: []ir.Kind{ir.KindObjectID}},
		{Name: "total", Path: "total", Type: ir.TypeInteger, Ordinal: 2, Table: "orders", Role: ir.RoleData, Kinds: []ir.Kind{ir.KindInt32}},
	}
	for _, name := range extra {
		cols = append(cols, ir.Column{Name: name, Path: name, Type: ir.TypeVarchar, Nullable: true, Ordinal: len(cols) + 1, Table: "orders", Role: ir.RoleData, Kinds: []ir.Kind{ir.KindString}})
	}
	s.Tables["orders"] = ir.Table{
		Name: "orders", Collection: "orders", Kind: ir.TableBase,
		Columns: cols, PrimaryKey: []string{"_id"},
	}
	s.Tables["orders_tags"] = ir.Table{
		Name: "orders_tags", Collection: "orders", Kind: ir.TableArray, Path: "tags",
		Parent: "orders", Depth: 1, ArrayDepth: 0,
		Columns: []ir.Column{
			{Name: "_id", Path: "_id", Type: ir.TypeOther, Ordinal: 1, Table: "orders_tags", Role: ir.RoleKey},
			{Name: "array_index_lvl_0", Path: "array_index_lvl_0", Type: ir.TypeBigInt, Ordinal: 2, Table: "orders_tags", Role: ir.RoleArrayIndex},
			{Name: "tags", Path: "tags", Type: ir.TypeVarchar, Ordinal: 3, Table: "orders_tags", Role: ir.RoleValue, Kinds: []ir.Kind{ir.KindString}},
		},
		PrimaryKey:       []string{"_id", "array_index_lvl_0"},
		ForeignKey:       &ir.ForeignKey{Columns: []string{"_id"}, RefTable: "orders", RefColumns: []string{"_id"}},
		ArrayIndexColumn: "array_index_lvl_0",
		ValueColumn:      "tags",
	}
	s.Bases = []string{"orders"}
	return s
}

// countingStore counts Load calls that reach it.
type countingStore struct {
	Store
	loads int
}

func (c *countingStore) Load(ctx context.Context, name string) (*ir.Schema, bool, error) {
	c.loads++
	return c.Store.Load(ctx, name)
}
