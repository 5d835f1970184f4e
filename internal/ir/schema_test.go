package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleSchema() *Schema {
	s := NewSchema()
	s.Bases = []string{"orders"}
	s.Tables["orders"] = Table{
		Name: "orders", Collection: "orders", Kind: TableBase,
		Columns: []Column{
			{Name: "_id", Path: "_id", Type: TypeInteger, Ordinal: 1, Table: "orders", Role: RoleKey, Kinds: []Kind{KindInt32}},
		},
		PrimaryKey: []string{"_id"},
	}
	s.Tables["orders_items"] = Table{
		Name: "orders_items", Collection: "orders", Kind: TableArray, Path: "items",
		Parent: "orders", Depth: 1,
		Columns: []Column{
			{Name: "_id", Path: "_id", Type: TypeInteger, Ordinal: 1, Table: "orders_items", Role: RoleKey},
			{Name: "array_index_lvl_0", Path: "array_index_lvl_0", Type: TypeBigInt, Ordinal: 2, Table: "orders_items", Role: RoleArrayIndex},
		},
		PrimaryKey:       []string{"_id", "array_index_lvl_0"},
		ForeignKey:       &ForeignKey{Columns: []string{"_id"}, RefTable: "orders", RefColumns: []string{"_id"}},
		ArrayIndexColumn: "array_index_lvl_0",
	}
	s.Tables["orders_items_tags"] = Table{
		Name: "orders_items_tags", Collection: "orders", Kind: TableArray, Path: "items.tags",
		Parent: "orders_items", Depth: 2, ArrayDepth: 1,
	}
	return s
}

func TestSchemaLineage(t *testing.T) {
	s := sampleSchema()

	assert.Equal(t, []string{"orders", "orders_items", "orders_items_tags"}, s.Lineage("orders_items_tags"))
	assert.Nil(t, s.Lineage("missing"))
	assert.True(t, s.IsAncestor("orders", "orders_items_tags"))
	assert.False(t, s.IsAncestor("orders_items_tags", "orders"))
	assert.False(t, s.IsAncestor("orders", "orders"))
	assert.True(t, s.Related("orders_items_tags", "orders"))
}

func TestSchemaChildrenAndNames(t *testing.T) {
	s := sampleSchema()

	assert.Equal(t, []string{"orders", "orders_items", "orders_items_tags"}, s.TableNames())
	children := s.Children("orders")
	if assert.Len(t, children, 1) {
		assert.Equal(t, "orders_items", children[0].Name)
	}
}

func TestTableColumn(t *testing.T) {
	tbl, ok := sampleSchema().Table("orders_items")
	assert.True(t, ok)

	c, ok := tbl.Column("array_index_lvl_0")
	assert.True(t, ok)
	assert.Equal(t, RoleArrayIndex, c.Role)
	assert.Equal(t, []string{"_id", "array_index_lvl_0"}, tbl.ColumnNames())

	_, ok = tbl.Column("nope")
	assert.False(t, ok)
}

func TestSchemaEqualAndHash(t *testing.T) {
	a, b := sampleSchema(), sampleSchema()
	assert.True(t, a.Equal(b))
	assert.Equal(t, MustSchemaHash(a), MustSchemaHash(b))
	assert.Len(t, MustSchemaHash(a), 64)

	tbl := b.Tables["orders"]
	tbl.Columns = append([]Column(nil), tbl.Columns...)
	tbl.Columns[0].Nullable = true
	b.Tables["orders"] = tbl

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, MustSchemaHash(a), MustSchemaHash(b))
}

func TestChildTableName(t *testing.T) {
	assert.Equal(t, "orders_items", ChildTableName("orders", "items"))
	assert.Equal(t, "orders_ship_to", ChildTableName("orders", "ship-to"))
	assert.Equal(t, "orders_a_b", ChildTableName("orders", "a.b"))
}
