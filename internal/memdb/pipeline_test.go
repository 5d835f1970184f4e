package memdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
)

func run(t *testing.T, db *DB, coll string, stages ...ir.Document) []ir.Document {
	t.Helper()
	pipeline := make(ir.Array, len(stages))
	for i, s := range stages {
		pipeline[i] = s
	}
	out, err := db.Run(context.Background(), coll, pipeline)
	require.NoError(t, err)
	return out
}

func stage(name string, body ir.Value) ir.Document {
	return ir.D(ir.F(name, body))
}

func ordersDB() *DB {
	db := New()
	db.Insert("orders",
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("items", ir.A(
			ir.D(ir.F("sku", ir.String("a")), ir.F("qty", ir.Int32(2))),
			ir.D(ir.F("sku", ir.String("b")), ir.F("qty", ir.Int32(1))),
		))),
		ir.D(ir.F("_id", ir.Int32(2)), ir.F("items", ir.A())),
		ir.D(ir.F("_id", ir.Int32(3))),
		ir.D(ir.F("_id", ir.Int32(4)), ir.F("items", ir.Null{})),
		ir.D(ir.F("_id", ir.Int32(5)), ir.F("items", ir.String("legacy"))),
	)
	return db
}

func TestUnwindWithIndex(t *testing.T) {
	out := run(t, ordersDB(), "orders",
		stage("$unwind", ir.D(ir.F("path", ir.String("$items")), ir.F("includeArrayIndex", ir.String("idx")))))

	require.Len(t, out, 3)
	assert.Equal(t, ir.D(
		ir.F("_id", ir.Int32(1)),
		ir.F("items", ir.D(ir.F("sku", ir.String("a")), ir.F("qty", ir.Int32(2)))),
		ir.F("idx", ir.Int64(0)),
	), out[0])
	idx, _ := out[1].Get("idx")
	assert.Equal(t, ir.Int64(1), idx)

	// A scalar passes through as a single element with a null index.
	id, _ := out[2].Get("_id")
	assert.Equal(t, ir.Int32(5), id)
	idx, _ = out[2].Get("idx")
	assert.Equal(t, ir.Null{}, idx)
}

func TestUnwindPreserveNullAndEmpty(t *testing.T) {
	out := run(t, ordersDB(), "orders",
		stage("$unwind", ir.D(
			ir.F("path", ir.String("$items")),
			ir.F("includeArrayIndex", ir.String("idx")),
			ir.F("preserveNullAndEmptyArrays", ir.Bool(true)),
		)))

	require.Len(t, out, 6)
	assert.Equal(t, []ir.Value{ir.Int32(1), ir.Int32(1), ir.Int32(2), ir.Int32(3), ir.Int32(4), ir.Int32(5)}, ids(out))

	// The empty array is removed, missing stays missing, null stays null.
	_, ok := out[2].Get("items")
	assert.False(t, ok)
	_, ok = out[3].Get("items")
	assert.False(t, ok)
	items, _ := out[4].Get("items")
	assert.Equal(t, ir.Null{}, items)
	for _, doc := range out[2:5] {
		idx, _ := doc.Get("idx")
		assert.Equal(t, ir.Null{}, idx)
	}
}

func TestUnwindStringForm(t *testing.T) {
	out := run(t, ordersDB(), "orders", stage("$unwind", ir.String("$items")))
	assert.Len(t, out, 3)
}

func TestProjectExcludesIDAndOmitsMissing(t *testing.T) {
	out := run(t, ordersDB(), "orders",
		stage("$match", ir.D(ir.F("_id", ir.D(ir.F("$in", ir.A(ir.Int32(1), ir.Int32(3))))))),
		stage("$project", ir.D(
			ir.F("_id", ir.Int32(0)),
			ir.F("id", ir.String("$_id")),
			ir.F("first", ir.String("$items.sku")),
		)))

	require.Len(t, out, 2)
	assert.Equal(t, ir.D(ir.F("id", ir.Int32(1)), ir.F("first", ir.A(ir.String("a"), ir.String("b")))), out[0])
	assert.Equal(t, ir.D(ir.F("id", ir.Int32(3))), out[1])
}

func TestProjectInclusionKeepsID(t *testing.T) {
	db := New()
	db.Insert("c", ir.D(ir.F("_id", ir.Int32(1)), ir.F("a", ir.Int32(2)), ir.F("b", ir.Int32(3))))

	out := run(t, db, "c", stage("$project", ir.D(ir.F("b", ir.Bool(true)))))
	assert.Equal(t, []ir.Document{ir.D(ir.F("_id", ir.Int32(1)), ir.F("b", ir.Int32(3)))}, out)

	out = run(t, db, "c", stage("$project", ir.D(ir.F("a", ir.Int32(0)))))
	assert.Equal(t, []ir.Document{ir.D(ir.F("_id", ir.Int32(1)), ir.F("b", ir.Int32(3)))}, out)
}

func TestSortIsStableAndMultiKey(t *testing.T) {
	db := New()
	db.Insert("c",
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("g", ir.String("b")), ir.F("n", ir.Int32(1))),
		ir.D(ir.F("_id", ir.Int32(2)), ir.F("g", ir.String("a")), ir.F("n", ir.Int32(1))),
		ir.D(ir.F("_id", ir.Int32(3)), ir.F("g", ir.String("a")), ir.F("n", ir.Int32(2))),
		ir.D(ir.F("_id", ir.Int32(4)), ir.F("n", ir.Int32(7))),
	)

	out := run(t, db, "c", stage("$sort", ir.D(ir.F("g", ir.Int32(1)), ir.F("n", ir.Int32(-1)))))
	assert.Equal(t, []ir.Value{ir.Int32(4), ir.Int32(3), ir.Int32(2), ir.Int32(1)}, ids(out))

	out = run(t, db, "c", stage("$sort", ir.D(ir.F("n", ir.Int32(1)))))
	assert.Equal(t, []ir.Value{ir.Int32(1), ir.Int32(2), ir.Int32(3), ir.Int32(4)}, ids(out))
}

func TestLimitSkipCount(t *testing.T) {
	db := ordersDB()
	out := run(t, db, "orders", stage("$skip", ir.Int64(1)), stage("$limit", ir.Int64(2)))
	assert.Equal(t, []ir.Value{ir.Int32(2), ir.Int32(3)}, ids(out))

	out = run(t, db, "orders", stage("$skip", ir.Int64(10)))
	assert.Empty(t, out)

	out = run(t, db, "orders", stage("$count", ir.String("n")))
	assert.Equal(t, []ir.Document{ir.D(ir.F("n", ir.Int32(5)))}, out)
}

func TestGroupAccumulators(t *testing.T) {
	db := New()
	db.Insert("sales",
		ir.D(ir.F("region", ir.String("east")), ir.F("amount", ir.Int32(10))),
		ir.D(ir.F("region", ir.String("west")), ir.F("amount", ir.Int64(5))),
		ir.D(ir.F("region", ir.String("east")), ir.F("amount", ir.Double(2.5))),
		ir.D(ir.F("region", ir.String("east"))),
	)

	out := run(t, db, "sales", stage("$group", ir.D(
		ir.F("_id", ir.D(ir.F("g0", ir.String("$region")))),
		ir.F("total", ir.D(ir.F("$sum", ir.String("$amount")))),
		ir.F("rows", ir.D(ir.F("$sum", ir.Int32(1)))),
		ir.F("avg", ir.D(ir.F("$avg", ir.String("$amount")))),
		ir.F("lo", ir.D(ir.F("$min", ir.String("$amount")))),
		ir.F("hi", ir.D(ir.F("$max", ir.String("$amount")))),
		ir.F("first", ir.D(ir.F("$first", ir.String("$amount")))),
	)))

	require.Len(t, out, 2)
	assert.Equal(t, ir.D(
		ir.F("_id", ir.D(ir.F("g0", ir.String("east")))),
		ir.F("total", ir.Double(12.5)),
		ir.F("rows", ir.Int32(3)),
		ir.F("avg", ir.Double(6.25)),
		ir.F("lo", ir.Double(2.5)),
		ir.F("hi", ir.Int32(10)),
		ir.F("first", ir.Int32(10)),
	), out[0])
	assert.Equal(t, ir.D(
		ir.F("_id", ir.D(ir.F("g0", ir.String("west")))),
		ir.F("total", ir.Int64(5)),
		ir.F("rows", ir.Int32(1)),
		ir.F("avg", ir.Double(5)),
		ir.F("lo", ir.Int64(5)),
		ir.F("hi", ir.Int64(5)),
		ir.F("first", ir.Int64(5)),
	), out[1])
}

func TestGroupMergesNumericKeysAcrossKinds(t *testing.T) {
	db := New()
	db.Insert("c",
		ir.D(ir.F("k", ir.Int32(1))),
		ir.D(ir.F("k", ir.Int64(1))),
		ir.D(ir.F("k", ir.Double(1))),
	)
	out := run(t, db, "c", stage("$group", ir.D(
		ir.F("_id", ir.String("$k")),
		ir.F("n", ir.D(ir.F("$count", ir.D()))),
	)))
	assert.Equal(t, []ir.Document{ir.D(ir.F("_id", ir.Int32(1)), ir.F("n", ir.Int32(3)))}, out)
}

func TestGroupSumOverflowsToLong(t *testing.T) {
	db := New()
	db.Insert("c",
		ir.D(ir.F("n", ir.Int32(2_000_000_000))),
		ir.D(ir.F("n", ir.Int32(2_000_000_000))),
	)
	out := run(t, db, "c", stage("$group", ir.D(
		ir.F("_id", ir.Null{}),
		ir.F("s", ir.D(ir.F("$sum", ir.String("$n")))),
	)))
	assert.Equal(t, []ir.Document{ir.D(ir.F("_id", ir.Null{}), ir.F("s", ir.Int64(4_000_000_000)))}, out)
}

func TestGroupOnEmptyInputYieldsNoRows(t *testing.T) {
	out := run(t, New(), "none", stage("$group", ir.D(
		ir.F("_id", ir.Null{}),
		ir.F("n", ir.D(ir.F("$sum", ir.Int32(1)))),
	)))
	assert.Empty(t, out)
}

func customersDB() *DB {
	db := New()
	db.Insert("customers",
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("name", ir.String("ada"))),
		ir.D(ir.F("_id", ir.Int32(2)), ir.F("name", ir.String("bob"))),
	)
	db.Insert("orders",
		ir.D(ir.F("_id", ir.Int32(10)), ir.F("customer", ir.Int32(1))),
		ir.D(ir.F("_id", ir.Int32(11)), ir.F("customer", ir.Int32(1))),
		ir.D(ir.F("_id", ir.Int32(12)), ir.F("customer", ir.Int32(3))),
	)
	return db
}

func TestLookupPipelineForm(t *testing.T) {
	out := run(t, customersDB(), "customers",
		stage("$lookup", ir.D(
			ir.F("from", ir.String("orders")),
			ir.F("let", ir.D(ir.F("k0", ir.String("$_id")))),
			ir.F("pipeline", ir.A(
				stage("$match", ir.D(ir.F("$expr", ir.D(ir.F("$eq", ir.A(ir.String("$customer"), ir.String("$$k0"))))))),
			)),
			ir.F("as", ir.String("__orders")),
		)),
		stage("$unwind", ir.D(ir.F("path", ir.String("$__orders")), ir.F("preserveNullAndEmptyArrays", ir.Bool(true)))),
	)

	require.Len(t, out, 3)
	assert.Equal(t, []ir.Value{ir.Int32(1), ir.Int32(1), ir.Int32(2)}, ids(out))
	order, _ := out[1].Lookup("__orders._id")
	assert.Equal(t, ir.Int32(11), order)
	_, ok := out[2].Get("__orders")
	assert.False(t, ok)
}

func TestLookupFieldForm(t *testing.T) {
	out := run(t, customersDB(), "orders",
		stage("$lookup", ir.D(
			ir.F("from", ir.String("customers")),
			ir.F("localField", ir.String("customer")),
			ir.F("foreignField", ir.String("_id")),
			ir.F("as", ir.String("c")),
		)))

	require.Len(t, out, 3)
	c, _ := out[0].Get("c")
	assert.Len(t, c, 1)
	c, _ = out[2].Get("c")
	assert.Equal(t, ir.Array{}, c)
}

func TestLookupUndefinedVariable(t *testing.T) {
	_, err := customersDB().Run(context.Background(), "customers", ir.A(
		stage("$lookup", ir.D(
			ir.F("from", ir.String("orders")),
			ir.F("pipeline", ir.A(
				stage("$match", ir.D(ir.F("$expr", ir.D(ir.F("$eq", ir.A(ir.String("$customer"), ir.String("$$nope"))))))),
			)),
			ir.F("as", ir.String("o")),
		)),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined variable: nope")
}

func TestUnsupportedStage(t *testing.T) {
	_, err := New().Run(context.Background(), "c", ir.A(stage("$facet", ir.D())))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Index)
	assert.Equal(t, "$facet", se.Stage)
}
