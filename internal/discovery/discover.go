package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

// Options configures a discovery run.
type Options struct {
	// SampleSize bounds the documents read; <= 0 means DefaultSampleSize.
	SampleSize int64

	// Method selects the sampled documents; empty means ScanForward.
	Method ScanMethod

	// Workers bounds DiscoverAll's concurrency; <= 0 means DefaultWorkers.
	Workers int
}

func (o Options) sampleSize() int64 {
	if o.SampleSize <= 0 {
		return DefaultSampleSize
	}
	return o.SampleSize
}

// Discover samples coll and returns the inferred schema.
func Discover(ctx context.Context, coll native.Collection, opts Options) (*ir.Schema, error) {
	name := coll.Name()
	it, err := StrategyFor(opts.Method).Open(ctx, coll, opts.sampleSize())
	if err != nil {
		return nil, &StreamError{Collection: name, Op: "open", Err: err}
	}
	defer it.Close(ctx)

	b := newBuilder(name)
	n := 0
	for it.Next(ctx) {
		b.observeDocument(it.Current())
		n++
	}
	if err := it.Err(); err != nil {
		return nil, &StreamError{Collection: name, Op: "read", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &StreamError{Collection: name, Op: "read", Err: err}
	}

	schema := b.build()
	slog.Debug("collection discovered",
		"collection", name,
		"method", opts.Method,
		"documents", n,
		"tables", len(schema.Tables),
	)
	return schema, nil
}

// childKey identifies a child table by its parent, the field that spawned
// it and its kind. Nested-array element tables use an empty field.
type childKey struct {
	parent string
	field  string
	kind   ir.TableKind
}

// builder accumulates observations for one collection.
// Tables are kept in creation order, which places every parent before its
// children.
type builder struct {
	collection string
	base       *tableBuilder
	tables     []*tableBuilder
	names      map[string]bool
	children   map[childKey]*tableBuilder
}

func newBuilder(collection string) *builder {
	b := &builder{
		collection: collection,
		names:      make(map[string]bool),
		children:   make(map[childKey]*tableBuilder),
	}
	base := &tableBuilder{
		name:     collection,
		kind:     ir.TableBase,
		keyNames: []string{ir.IDField},
	}
	base.init()
	base.id = &columnBuilder{name: ir.IDField, path: ir.IDField}
	b.base = base
	b.tables = append(b.tables, base)
	b.names[collection] = true
	return b
}

func (b *builder) observeDocument(doc ir.Document) {
	b.base.rows++
	b.observeFields(b.base, doc)
}

func (b *builder) observeFields(t *tableBuilder, doc ir.Document) {
	for _, f := range doc {
		if t.kind == ir.TableBase && f.Key == ir.IDField {
			t.id.observe(f.Value)
			continue
		}
		path := joinPath(t.path, f.Key)
		switch v := f.Value.(type) {
		case ir.Document:
			child := b.child(t, f.Key, path, ir.TableDocument)
			child.rows++
			b.observeFields(child, v)
			t.noteComposite(f.Key, ir.KindDocument)
		case ir.Array:
			child := b.child(t, f.Key, path, ir.TableArray)
			for _, elem := range v {
				b.observeElement(child, elem)
			}
			t.noteComposite(f.Key, ir.KindArray)
		default:
			t.column(f.Key, path).observe(v)
		}
	}
}

// observeElement records one array element as one row of the array table t.
func (b *builder) observeElement(t *tableBuilder, elem ir.Value) {
	t.rows++
	switch v := elem.(type) {
	case ir.Document:
		b.observeFields(t, v)
	case ir.Array:
		nested := b.child(t, "", t.path, ir.TableArray)
		for _, inner := range v {
			b.observeElement(nested, inner)
		}
	default:
		t.valueColumn().observe(v)
	}
}

// child returns the child table of parent for field, creating it on first use.
func (b *builder) child(parent *tableBuilder, field, path string, kind ir.TableKind) *tableBuilder {
	key := childKey{parent: parent.name, field: field, kind: kind}
	if t, ok := b.children[key]; ok {
		return t
	}

	nameField, valueName := field, field
	if field == "" {
		nameField, valueName = "elements", parent.valueName
	}

	t := &tableBuilder{
		name:       b.uniqueName(ir.ChildTableName(parent.name, nameField)),
		kind:       kind,
		path:       path,
		valueName:  valueName,
		parent:     parent,
		depth:      parent.depth + 1,
		arrayDepth: parent.arrayDepth,
		keyNames:   slices.Clone(parent.keyNames),
	}
	if parent.kind == ir.TableArray {
		t.arrayDepth++
	}
	if kind == ir.TableArray {
		t.indexName = fmt.Sprintf("%s%d", ir.ArrayIndexColumnPrefix, t.arrayDepth)
		t.keyNames = append(t.keyNames, t.indexName)
	}
	t.init()

	b.children[key] = t
	b.tables = append(b.tables, t)
	return t
}

func (b *builder) uniqueName(name string) string {
	candidate := name
	for n := 2; b.names[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	b.names[candidate] = true
	return candidate
}

func (b *builder) build() *ir.Schema {
	s := ir.NewSchema()
	s.Bases = []string{b.base.name}
	for _, t := range b.tables {
		var parent *ir.Table
		if t.parent != nil {
			p := s.Tables[t.parent.name]
			parent = &p
		}
		s.Tables[t.name] = t.finalize(b.collection, parent)
	}
	return s
}

// tableBuilder accumulates the rows and columns of one table.
type tableBuilder struct {
	name       string
	kind       ir.TableKind
	path       string
	valueName  string // value column name for scalar array elements
	parent     *tableBuilder
	depth      int
	arrayDepth int
	keyNames   []string
	indexName  string

	rows      int
	id        *columnBuilder // base tables only
	cols      []*columnBuilder
	byField   map[string]*columnBuilder
	value     *columnBuilder
	taken     map[string]bool
	composite map[string][]ir.Kind
}

func (t *tableBuilder) init() {
	t.byField = make(map[string]*columnBuilder)
	t.composite = make(map[string][]ir.Kind)
	t.taken = make(map[string]bool, len(t.keyNames))
	for _, k := range t.keyNames {
		t.taken[k] = true
	}
}

// columnName returns name, or name_1, name_2, ... if it is already taken.
func (t *tableBuilder) columnName(name string) string {
	candidate := name
	for n := 1; t.taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
	t.taken[candidate] = true
	return candidate
}

func (t *tableBuilder) column(field, path string) *columnBuilder {
	if c, ok := t.byField[field]; ok {
		return c
	}
	c := &columnBuilder{name: t.columnName(field), path: path, field: field}
	t.byField[field] = c
	t.cols = append(t.cols, c)
	return c
}

func (t *tableBuilder) valueColumn() *columnBuilder {
	if t.value == nil {
		t.value = &columnBuilder{name: t.columnName(t.valueName), path: t.path}
		t.cols = append(t.cols, t.value)
	}
	return t.value
}

// noteComposite records that field held a document or array in some row.
// If the field also held scalars, its column is widened at finalization.
func (t *tableBuilder) noteComposite(field string, k ir.Kind) {
	kinds := t.composite[field]
	if !slices.Contains(kinds, k) {
		t.composite[field] = append(kinds, k)
	}
}

func (t *tableBuilder) finalize(collection string, parent *ir.Table) ir.Table {
	out := ir.Table{
		Name:       t.name,
		Collection: collection,
		Kind:       t.kind,
		Path:       t.path,
		Depth:      t.depth,
		ArrayDepth: t.arrayDepth,
		PrimaryKey: slices.Clone(t.keyNames),
	}

	var cols []ir.Column
	if parent == nil {
		cols = append(cols, t.id.finalize(t.rows, ir.RoleKey))
	} else {
		out.Parent = parent.Name
		out.ForeignKey = &ir.ForeignKey{
			Columns:    slices.Clone(parent.PrimaryKey),
			RefTable:   parent.Name,
			RefColumns: slices.Clone(parent.PrimaryKey),
		}
		for _, name := range parent.PrimaryKey {
			c, _ := parent.Column(name)
			c.Role = ir.RoleKey
			c.Kinds = slices.Clone(c.Kinds)
			cols = append(cols, c)
		}
		if t.kind == ir.TableArray {
			out.ArrayIndexColumn = t.indexName
			cols = append(cols, ir.Column{
				Name:  t.indexName,
				Path:  t.indexName,
				Type:  ir.TypeBigInt,
				Role:  ir.RoleArrayIndex,
				Kinds: []ir.Kind{ir.KindInt64},
			})
		}
	}

	for _, c := range t.cols {
		role := ir.RoleData
		if c == t.value {
			role = ir.RoleValue
			out.ValueColumn = c.name
		}
		for _, k := range t.composite[c.field] {
			c.addKind(k)
		}
		cols = append(cols, c.finalize(t.rows, role))
	}

	for i := range cols {
		cols[i].Table = t.name
		cols[i].Ordinal = i + 1
	}
	out.Columns = cols
	return out
}

// columnBuilder accumulates the observations of one column.
type columnBuilder struct {
	name    string
	path    string
	field   string
	kinds   []ir.Kind // sorted set
	present int       // rows holding a non-null value
	null    bool      // some row held an explicit null
}

func (c *columnBuilder) observe(v ir.Value) {
	if ir.IsNull(v) {
		c.null = true
		return
	}
	c.present++
	c.addKind(v.Kind())
}

func (c *columnBuilder) addKind(k ir.Kind) {
	if i, found := slices.BinarySearch(c.kinds, k); !found {
		c.kinds = slices.Insert(c.kinds, i, k)
	}
}

// finalize resolves the column type over every observed kind.
// A column is nullable when some row lacked it or held null, or when its
// kinds have no common type. A column that only saw nulls is VARCHAR.
func (c *columnBuilder) finalize(rows int, role ir.ColumnRole) ir.Column {
	typ := ir.TypeNull
	for _, k := range c.kinds {
		typ = ir.Widen(typ, ir.TypeOfKind(k))
	}
	nullable := c.null || c.present < rows || typ == ir.TypeOther
	if typ == ir.TypeNull {
		typ = ir.TypeVarchar
		nullable = true
	}
	return ir.Column{
		Name:     c.name,
		Path:     c.path,
		Type:     typ,
		Nullable: nullable,
		Role:     role,
		Kinds:    slices.Clone(c.kinds),
	}
}

func joinPath(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}
