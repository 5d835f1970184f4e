package ir

import (
	"reflect"
	"slices"
	"strings"
)

// ColumnRole describes why a column exists in its table.
type ColumnRole string

const (
	// RoleKey marks a key column inherited from the parent table (or _id on a base table).
	RoleKey ColumnRole = "key"

	// RoleArrayIndex marks the zero-based array position column of an array table.
	RoleArrayIndex ColumnRole = "array_index"

	// RoleValue marks the scalar element column of an array table.
	RoleValue ColumnRole = "value"

	// RoleData marks a column read from a document field.
	RoleData ColumnRole = "data"
)

// TableKind distinguishes base tables from the child tables discovery spawns.
type TableKind string

const (
	TableBase     TableKind = "base"
	TableDocument TableKind = "document"
	TableArray    TableKind = "array"
)

// ArrayIndexColumnPrefix prefixes the synthesized array position column.
// The full name is ArrayIndexColumnPrefix + array depth, e.g. array_index_lvl_0.
const ArrayIndexColumnPrefix = "array_index_lvl_"

// IDField is the primary key field of every base table.
const IDField = "_id"

// Column is one column of a virtual table.
type Column struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"` // document path after the table's unwinds
	Type     SQLType    `json:"type"`
	Nullable bool       `json:"nullable"`
	Ordinal  int        `json:"ordinal"` // 1-based position within the table
	Table    string     `json:"table"`
	Role     ColumnRole `json:"role"`
	Kinds    []Kind     `json:"kinds,omitempty"` // observed native kinds, in Kind order
}

// ForeignKey links a child table to its parent's primary key.
type ForeignKey struct {
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"`
	RefColumns []string `json:"ref_columns"`
}

// Table is one virtual table of the schema forest.
// Parent linkage is by name; a Schema is the arena that owns all tables.
type Table struct {
	Name             string      `json:"name"`
	Collection       string      `json:"collection"`
	Kind             TableKind   `json:"kind"`
	Path             string      `json:"path"`             // document path of the field that spawned the table
	Parent           string      `json:"parent,omitempty"` // empty for base tables
	Depth            int         `json:"depth"`            // 0 for base tables
	ArrayDepth       int         `json:"array_depth"`      // number of array tables above this one
	Columns          []Column    `json:"columns"`
	PrimaryKey       []string    `json:"primary_key"`
	ForeignKey       *ForeignKey `json:"foreign_key,omitempty"`
	ArrayIndexColumn string      `json:"array_index_column,omitempty"`
	ValueColumn      string      `json:"value_column,omitempty"`
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in ordinal order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Schema is the table graph built by one discovery run.
//
// Tables are stored by value in a flat map keyed by their deterministic
// names. A Schema is never mutated after discovery returns it, so it may be
// shared freely between goroutines.
type Schema struct {
	Tables map[string]Table `json:"tables"`
	Bases  []string         `json:"bases"` // base table names, one per collection
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{Tables: make(map[string]Table)}
}

// Table returns the named table.
func (s *Schema) Table(name string) (Table, bool) {
	if s == nil {
		return Table{}, false
	}
	t, ok := s.Tables[name]
	return t, ok
}

// TableNames returns every table name, sorted.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Children returns the direct child tables of name, sorted by name.
func (s *Schema) Children(name string) []Table {
	var out []Table
	for _, n := range s.TableNames() {
		if t := s.Tables[n]; t.Parent == name {
			out = append(out, t)
		}
	}
	return out
}

// Lineage returns the chain of table names from the base table down to name.
// Returns nil if name is not in the schema.
func (s *Schema) Lineage(name string) []string {
	var chain []string
	for cur := name; cur != ""; {
		t, ok := s.Tables[cur]
		if !ok {
			return nil
		}
		chain = append(chain, cur)
		cur = t.Parent
	}
	slices.Reverse(chain)
	return chain
}

// IsAncestor reports whether ancestor lies strictly above descendant.
func (s *Schema) IsAncestor(ancestor, descendant string) bool {
	if ancestor == descendant {
		return false
	}
	return slices.Contains(s.Lineage(descendant), ancestor)
}

// Related reports whether a and b lie on one root-to-leaf chain.
func (s *Schema) Related(a, b string) bool {
	return a == b || s.IsAncestor(a, b) || s.IsAncestor(b, a)
}

// Equal reports whether two schemas have the same tables, columns and order.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	return reflect.DeepEqual(s.Tables, o.Tables) && slices.Equal(s.Bases, o.Bases)
}

// ChildTableName derives a child table name from its parent and field name.
// The result is a pure function of its inputs so re-discovery is idempotent.
func ChildTableName(parent, field string) string {
	return parent + "_" + sanitizeName(field)
}

// sanitizeName replaces characters that cannot appear in an unquoted
// identifier.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
