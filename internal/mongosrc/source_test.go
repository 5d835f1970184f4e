package mongosrc

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

// liveSource connects to DOCSQL_TEST_MONGO_URI and seeds a scratch
// collection. Tests using it are skipped without a server.
func liveSource(t *testing.T) (*Source, string) {
	t.Helper()
	uri := os.Getenv("DOCSQL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DOCSQL_TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	src, err := Connect(ctx, uri, "docsql_test")
	require.NoError(t, err)
	t.Cleanup(func() { src.Close(context.Background()) })

	name := "orders_" + time.Now().Format("150405.000000")
	coll := src.db.Collection(name)
	t.Cleanup(func() { coll.Drop(context.Background()) })
	for i := int32(1); i <= 3; i++ {
		_, err := coll.InsertOne(ctx, ToBSON(ir.D(
			ir.F("_id", ir.Int32(i)),
			ir.F("items", ir.A(ir.D(ir.F("qty", ir.Int32(i))), ir.D(ir.F("qty", ir.Int32(i*10))))),
		)))
		require.NoError(t, err)
	}
	return src, name
}

func TestSource_FindSorted(t *testing.T) {
	src, name := liveSource(t)
	ctx := context.Background()

	it, err := src.Collection(name).Find(ctx, native.FindOptions{Sort: native.Descending, Limit: 2})
	require.NoError(t, err)
	docs, err := native.Drain(ctx, it)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	id, _ := docs[0].Get("_id")
	assert.Equal(t, ir.Int32(3), id)
}

func TestSource_Sample(t *testing.T) {
	src, name := liveSource(t)
	ctx := context.Background()

	it, err := src.Collection(name).Sample(ctx, 2)
	require.NoError(t, err)
	docs, err := native.Drain(ctx, it)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestSource_Aggregate(t *testing.T) {
	src, name := liveSource(t)
	ctx := context.Background()

	p := &ir.Program{
		Collection: name,
		Stages: []ir.Stage{
			{Kind: ir.StageUnwind, Body: ir.D(ir.F("path", ir.String("$items")), ir.F("includeArrayIndex", ir.String("array_index_lvl_0")))},
			{Kind: ir.StageMatch, Body: ir.D(ir.F("array_index_lvl_0", ir.Int64(1)))},
			{Kind: ir.StageSort, Body: ir.D(ir.F("_id", ir.Int32(1)))},
		},
	}
	it, err := src.Aggregate(ctx, p)
	require.NoError(t, err)
	docs, err := native.Drain(ctx, it)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	qty, ok := docs[0].Lookup("items.qty")
	require.True(t, ok)
	assert.Equal(t, ir.Int32(10), qty)
}
