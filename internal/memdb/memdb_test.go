package memdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

func drain(t *testing.T, it native.Iterator) []ir.Document {
	t.Helper()
	docs, err := native.Drain(context.Background(), it)
	require.NoError(t, err)
	return docs
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	db := New()
	db.Insert("c", ir.D(ir.F("a", ir.Int32(1))), ir.D(ir.F("a", ir.Int32(2))))

	docs := db.snapshot("c")
	require.Len(t, docs, 2)
	assert.Equal(t, ir.IDField, docs[0][0].Key)

	first, _ := docs[0].Get(ir.IDField)
	second, _ := docs[1].Get(ir.IDField)
	assert.Equal(t, -1, ir.Compare(first, second))
	assert.Equal(t, "000000000000000000000001", first.(ir.ObjectID).Hex())
}

func TestInsertKeepsExplicitID(t *testing.T) {
	db := New()
	db.Insert("c", ir.D(ir.F("a", ir.Int32(1)), ir.F("_id", ir.String("x"))))

	docs := db.snapshot("c")
	id, _ := docs[0].Get(ir.IDField)
	assert.Equal(t, ir.String("x"), id)
	assert.Equal(t, "a", docs[0][0].Key)
}

func TestCollectionsSorted(t *testing.T) {
	db := New()
	db.Insert("orders")
	db.Collection("accounts")
	assert.Equal(t, []string{"accounts", "orders"}, db.Collections())
	assert.Equal(t, 0, db.Collection("orders").Len())
}

func TestFindSortAndLimit(t *testing.T) {
	db := New()
	db.Insert("c",
		ir.D(ir.F("_id", ir.Int32(2))),
		ir.D(ir.F("_id", ir.Int32(3))),
		ir.D(ir.F("_id", ir.Int32(1))),
	)
	ctx := context.Background()
	c := db.Collection("c")

	it, err := c.Find(ctx, native.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.Int32(2), ir.Int32(3), ir.Int32(1)}, ids(drain(t, it)))

	it, err = c.Find(ctx, native.FindOptions{Sort: native.Descending, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.Int32(3), ir.Int32(2)}, ids(drain(t, it)))

	it, err = c.Find(ctx, native.FindOptions{Sort: native.Ascending})
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.Int32(1), ir.Int32(2), ir.Int32(3)}, ids(drain(t, it)))
}

func TestSampleIsDeterministic(t *testing.T) {
	load := func(seed uint64) *DB {
		db := New(WithSeed(seed))
		for i := range 50 {
			db.Insert("c", ir.D(ir.F("_id", ir.Int32(i))))
		}
		return db
	}
	ctx := context.Background()

	a, err := load(7).Collection("c").Sample(ctx, 10)
	require.NoError(t, err)
	b, err := load(7).Collection("c").Sample(ctx, 10)
	require.NoError(t, err)

	first, second := drain(t, a), drain(t, b)
	assert.Len(t, first, 10)
	assert.Equal(t, ids(first), ids(second))

	all, err := load(7).Collection("c").Sample(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, drain(t, all), 50)

	_, err = load(7).Collection("c").Sample(ctx, -1)
	assert.Error(t, err)
}

func TestAggregateRunsProgram(t *testing.T) {
	db := New()
	db.Insert("c",
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("n", ir.Int32(5))),
		ir.D(ir.F("_id", ir.Int32(2)), ir.F("n", ir.Int32(9))),
	)
	p := &ir.Program{
		Collection: "c",
		Stages: []ir.Stage{
			{Kind: ir.StageMatch, Body: ir.D(ir.F("n", ir.D(ir.F("$gt", ir.Int32(6)))))},
			{Kind: ir.StageProject, Body: ir.D(ir.F("_id", ir.Int32(0)), ir.F("n", ir.String("$n")))},
		},
	}
	it, err := db.Aggregate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []ir.Document{ir.D(ir.F("n", ir.Int32(9)))}, drain(t, it))
}

func TestRunHonorsCanceledContext(t *testing.T) {
	db := New()
	db.Insert("c", ir.D(ir.F("a", ir.Int32(1))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Run(ctx, "c", ir.A(ir.D(ir.F("$limit", ir.Int32(1)))))
	assert.ErrorIs(t, err, context.Canceled)
}

func ids(docs []ir.Document) []ir.Value {
	out := make([]ir.Value, len(docs))
	for i, d := range docs {
		out[i], _ = d.Get(ir.IDField)
	}
	return out
}
