package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
)

func TestStore_SaveAndLoad(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		ctx := context.Background()
		schema := testSchema()

		v, err := s.Save(ctx, "shop", schema)
		require.NoError(t, err)
		assert.Equal(t, "shop", v.Name)
		assert.Equal(t, 1, v.Number)
		assert.Equal(t, ir.MustSchemaHash(schema), v.Hash)

		id, err := uuid.Parse(v.RunID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())

		got, ok, err := s.Load(ctx, "shop")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ir.MustSchemaHash(schema), ir.MustSchemaHash(got))

		orders, ok := got.Table("orders")
		require.True(t, ok)
		assert.Equal(t, []string{"_id", "total"}, orders.ColumnNames())
		tags, _ := got.Table("orders_tags")
		require.NotNil(t, tags.ForeignKey)
		assert.Equal(t, "orders", tags.ForeignKey.RefTable)
	})
}

func TestStore_LoadUnknown(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		got, ok, err := s.Load(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})
}

func TestStore_SaveUnchangedIsNoop(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		ctx := context.Background()

		first, err := s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)
		again, err := s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)
		assert.Equal(t, first, again)

		versions, err := s.Versions(ctx, "shop")
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})
}

func TestStore_VersionHistory(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		ctx := context.Background()

		_, err := s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)
		v2, err := s.Save(ctx, "shop", testSchema("status"))
		require.NoError(t, err)
		assert.Equal(t, 2, v2.Number)

		// Going back to the first graph is a new version, not a no-op.
		v3, err := s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)
		assert.Equal(t, 3, v3.Number)

		versions, err := s.Versions(ctx, "shop")
		require.NoError(t, err)
		require.Len(t, versions, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{versions[0].Number, versions[1].Number, versions[2].Number})
		assert.Equal(t, versions[0].Hash, versions[2].Hash)

		old, err := s.LoadVersion(ctx, "shop", 2)
		require.NoError(t, err)
		orders, _ := old.Table("orders")
		assert.Equal(t, []string{"_id", "total", "status"}, orders.ColumnNames())

		_, err = s.LoadVersion(ctx, "shop", 9)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Remove(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		ctx := context.Background()
		_, err := s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)

		require.NoError(t, s.Remove(ctx, "shop"))
		_, ok, err := s.Load(ctx, "shop")
		require.NoError(t, err)
		assert.False(t, ok)

		err = s.Remove(ctx, "shop")
		assert.ErrorIs(t, err, ErrNotFound)

		// Numbering restarts after removal.
		v, err := s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)
		assert.Equal(t, 1, v.Number)
	})
}

func TestStore_List(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		ctx := context.Background()

		empty, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		_, err = s.Save(ctx, "zoo", testSchema())
		require.NoError(t, err)
		_, err = s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)
		_, err = s.Save(ctx, "shop", testSchema("status"))
		require.NoError(t, err)

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "shop", list[0].Name)
		assert.Equal(t, 2, list[0].Number)
		assert.Equal(t, "zoo", list[1].Name)
		assert.Equal(t, 1, list[1].Number)
	})
}

func TestStore_SaveNil(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		_, err := s.Save(context.Background(), "shop", nil)
		assert.Error(t, err)
	})
}

func TestStore_LoadReturnsIndependentGraphs(t *testing.T) {
	eachStore(t, func(t *testing.T, s historyStore) {
		ctx := context.Background()
		_, err := s.Save(ctx, "shop", testSchema())
		require.NoError(t, err)

		a, _, err := s.Load(ctx, "shop")
		require.NoError(t, err)
		delete(a.Tables, "orders_tags")

		b, _, err := s.Load(ctx, "shop")
		require.NoError(t, err)
		_, ok := b.Table("orders_tags")
		assert.True(t, ok)
	})
}

func TestSQLite_RunIDs(t *testing.T) {
	s := createTestStore(t)
	s.runID = sequentialRunIDs()
	ctx := context.Background()

	v1, err := s.Save(ctx, "shop", testSchema())
	require.NoError(t, err)
	v2, err := s.Save(ctx, "shop", testSchema("status"))
	require.NoError(t, err)

	assert.Equal(t, "run-1", v1.RunID)
	assert.Equal(t, "run-2", v2.RunID)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/schemas.db"
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Save(ctx, "shop", testSchema())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.Load(ctx, "shop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.MustSchemaHash(testSchema()), ir.MustSchemaHash(got))
}

func TestSQLite_RejectsUnknownFormat(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.db.Exec(`INSERT INTO schemas (name, version, run_id, content_hash, format, body) VALUES ('old', 1, 'r', 'h', '0', '{}')`)
	require.NoError(t, err)

	_, _, err = s.Load(ctx, "old")
	assert.ErrorContains(t, err, "unsupported schema format")
}
