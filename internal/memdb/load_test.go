package memdb

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"orders.json":   {Data: []byte(`[{"_id": 1, "total": 10}, {"_id": 2, "total": {"$numberLong": "20"}}]`)},
		"events.jsonl":  {Data: []byte("{\"kind\": \"a\"}\n{\"kind\": \"b\"}\n")},
		"empty.json":    {Data: []byte(`[]`)},
		"README.md":     {Data: []byte("ignored")},
		"nested/x.json": {Data: []byte(`[{"a": 1}]`)},
	}

	db, err := LoadFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"empty", "events", "orders"}, db.Collections())

	it, err := db.Collection("orders").Find(context.Background(), native.FindOptions{})
	require.NoError(t, err)
	docs, err := native.Drain(context.Background(), it)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	total, _ := docs[1].Get("total")
	assert.Equal(t, ir.Int64(20), total)

	// Documents without _id get generated ids.
	assert.Equal(t, 2, db.Collection("events").Len())
	events := db.snapshot("events")
	_, ok := events[0].Get(ir.IDField)
	assert.True(t, ok)
}

func TestLoadFS_BadFile(t *testing.T) {
	fsys := fstest.MapFS{"orders.json": {Data: []byte(`[{"_id": 1}`)}}

	_, err := LoadFS(fsys)
	assert.ErrorContains(t, err, "parse orders.json")
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(t.TempDir() + "/nope")
	assert.Error(t, err)
}
