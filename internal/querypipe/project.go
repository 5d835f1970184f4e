package querypipe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// hiddenSortPrefix names projected sort keys that are not output columns.
const hiddenSortPrefix = "__sort"

// group compiles an Aggregate to a $group stage and returns the scope of the
// grouped documents. Group keys are written to _id.g<i> and accumulators to
// a<i>.
func (b *builder) group(a *queryir.Aggregate) (ir.Stage, *scope, error) {
	g := &grouping{aggs: make(map[string]aggOutput, len(a.Aggs))}

	var id ir.Value = ir.Null{}
	if len(a.GroupBy) > 0 {
		keys := make(ir.Document, 0, len(a.GroupBy))
		for i, ref := range a.GroupBy {
			bind, col, err := b.rows.resolve(ref)
			if err != nil {
				return ir.Stage{}, nil, err
			}
			c, err := b.rows.expr(ref)
			if err != nil {
				return ir.Stage{}, nil, err
			}
			name := "g" + strconv.Itoa(i)
			keys = append(keys, ir.F(name, c.value))
			g.keys = append(g.keys, groupKey{
				table:  bind.table.Name,
				column: col.Name,
				field:  "_id." + name,
				typ:    c.typ,
			})
		}
		id = keys
	}

	body := ir.D(ir.F("_id", id))
	for i, item := range a.Aggs {
		acc, typ, err := b.accumulator(item)
		if err != nil {
			return ir.Stage{}, nil, err
		}
		field := "a" + strconv.Itoa(i)
		body = append(body, ir.F(field, acc))
		g.aggs[item.Label] = aggOutput{field: field, typ: typ}
	}

	grouped := &scope{bindings: b.rows.bindings, group: g}
	return ir.Stage{Kind: ir.StageGroup, Body: body}, grouped, nil
}

func (b *builder) accumulator(item queryir.AggItem) (ir.Value, coerce.Typed, error) {
	if item.Func == coerce.AggCount {
		typ, _ := coerce.AggregateType(coerce.AggCount, coerce.Typed{})
		if item.Arg == nil {
			return ir.D(ir.F("$sum", ir.Int32(1))), typ, nil
		}
		arg, err := b.rows.expr(item.Arg)
		if err != nil {
			return nil, coerce.Typed{}, err
		}
		// COUNT(expr) counts the rows where expr is not null.
		isNull := ir.D(ir.F("$eq", ir.A(ifNull(arg.value), ir.Null{})))
		return ir.D(ir.F("$sum", ir.D(ir.F("$cond", ir.A(isNull, ir.Int32(0), ir.Int32(1)))))), typ, nil
	}

	arg, err := b.rows.expr(item.Arg)
	if err != nil {
		return nil, coerce.Typed{}, err
	}
	typ, err := coerce.AggregateType(item.Func, arg.typ)
	if err != nil {
		return nil, coerce.Typed{}, fmt.Errorf("aggregate %q: %w", item.Label, err)
	}
	return ir.D(ir.F("$"+string(item.Func), arg.value)), typ, nil
}

// projection accumulates the final $project stage and the output columns.
type projection struct {
	fields  ir.Document
	used    map[string]bool
	cols    []ir.ColumnMeta
	byLabel map[string]string // first output field per label
	byExpr  map[string]string // output field per canonical expression
	hasID   bool
}

// projection compiles the output columns. A nil Project selects every
// column of every scanned table in scan order, or the group keys and
// aggregates above an Aggregate.
func (b *builder) projection(q *queryir.Query, sc *scope) (*projection, error) {
	p := &projection{
		used:    make(map[string]bool),
		byLabel: make(map[string]string),
		byExpr:  make(map[string]string),
	}
	for i, item := range projectItems(q, sc) {
		ord := i + 1
		c, err := sc.expr(item.Expr)
		if err != nil {
			return nil, err
		}
		label := item.OutputLabel(ord)
		field := p.reserve(label, ord)
		p.fields = append(p.fields, ir.F(field, c.value))
		if _, ok := p.byLabel[label]; !ok {
			p.byLabel[label] = field
		}
		if key, err := canonicalKey(c.value); err == nil {
			if _, ok := p.byExpr[key]; !ok {
				p.byExpr[key] = field
			}
		}
		p.cols = append(p.cols, coerce.Meta(ir.ColumnMeta{
			Ordinal:  ord,
			Label:    label,
			Field:    field,
			Table:    owningTable(item.Expr, sc),
			Type:     c.typ.Type,
			Nullable: c.typ.Nullable,
		}))
	}
	return p, nil
}

func projectItems(q *queryir.Query, sc *scope) []queryir.ProjectItem {
	if q.Project != nil {
		return q.Project.Items
	}
	var items []queryir.ProjectItem
	if q.Aggregate != nil {
		for _, ref := range q.Aggregate.GroupBy {
			items = append(items, queryir.ProjectItem{Expr: ref})
		}
		for _, agg := range q.Aggregate.Aggs {
			items = append(items, queryir.ProjectItem{Expr: &queryir.AggRef{Label: agg.Label}})
		}
		return items
	}
	for _, bind := range sc.bindings {
		for _, col := range bind.table.Columns {
			items = append(items, queryir.ProjectItem{Expr: queryir.Col(bind.table.Name, col.Name)})
		}
	}
	return items
}

// owningTable returns the table a plain column reference reads from.
func owningTable(e queryir.Expr, sc *scope) string {
	ref, ok := e.(*queryir.ColumnRef)
	if !ok {
		return ""
	}
	bind, _, err := sc.resolve(ref)
	if err != nil {
		return ""
	}
	return bind.table.Name
}

// reserve picks a unique output field for label. Labels that cannot be
// field names fall back to c<ordinal>.
func (p *projection) reserve(label string, ord int) string {
	base := label
	if !validField(base) {
		base = "c" + strconv.Itoa(ord)
	}
	name := base
	for n := 2; p.used[name]; n++ {
		name = base + "_" + strconv.Itoa(n)
	}
	p.used[name] = true
	if name == ir.IDField {
		p.hasID = true
	}
	return name
}

func validField(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, "$") &&
		!strings.ContainsAny(name, ".\x00")
}

// tail compiles Sort, Limit and Skip. Sort keys read output fields; keys
// that are not output columns are projected under hidden fields.
func (p *projection) tail(nodes []queryir.Node, sc *scope) ([]ir.Stage, error) {
	var stages []ir.Stage
	hidden := 0
	for _, n := range nodes {
		switch n := n.(type) {
		case *queryir.Sort:
			body := make(ir.Document, 0, len(n.Keys))
			for _, key := range n.Keys {
				field, err := p.sortField(key.Expr, sc, &hidden)
				if err != nil {
					return nil, err
				}
				dir := ir.Int32(1)
				if key.Desc {
					dir = -1
				}
				body = append(body, ir.F(field, dir))
			}
			stages = append(stages, ir.Stage{Kind: ir.StageSort, Body: body})
		case *queryir.Limit:
			stages = append(stages, ir.Stage{Kind: ir.StageLimit, Body: ir.Int64(n.N)})
		case *queryir.Skip:
			stages = append(stages, ir.Stage{Kind: ir.StageSkip, Body: ir.Int64(n.N)})
		}
	}
	return stages, nil
}

// sortField resolves a sort key: an unqualified name matching an output
// label first, then an expression equal to an output column, then a new
// hidden field.
func (p *projection) sortField(e queryir.Expr, sc *scope, hidden *int) (string, error) {
	if ref, ok := e.(*queryir.ColumnRef); ok && ref.Table == "" {
		if field, ok := p.byLabel[ref.Column]; ok {
			return field, nil
		}
	}
	c, err := sc.expr(e)
	if err != nil {
		return "", err
	}
	key, err := canonicalKey(c.value)
	if err != nil {
		return "", err
	}
	if field, ok := p.byExpr[key]; ok {
		return field, nil
	}

	name := hiddenSortPrefix + strconv.Itoa(*hidden)
	for p.used[name] {
		*hidden++
		name = hiddenSortPrefix + strconv.Itoa(*hidden)
	}
	*hidden++
	p.used[name] = true
	p.byExpr[key] = name
	p.fields = append(p.fields, ir.F(name, c.value))
	return name, nil
}

// stage returns the $project stage. _id is excluded unless projected.
func (p *projection) stage() ir.Stage {
	body := make(ir.Document, 0, len(p.fields)+1)
	if !p.hasID {
		body = append(body, ir.F(ir.IDField, ir.Int32(0)))
	}
	body = append(body, p.fields...)
	return ir.Stage{Kind: ir.StageProject, Body: body}
}

func canonicalKey(v ir.Value) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
