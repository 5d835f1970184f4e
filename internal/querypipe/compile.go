package querypipe

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// lookupPrefix prefixes the field a $lookup writes its matches to.
const lookupPrefix = "__"

// Compiler compiles relational plans to aggregation programs.
//
// A Compiler holds no state between calls; Compile may be called
// concurrently.
type Compiler struct{}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile converts a relational plan over the tables of schema into a
// pipeline program.
//
// Stage order is fixed:
//
//	unwinds (by depth) → matches (expansion checks, then plan order) →
//	joins → group → project → sort/limit/skip (plan order)
//
// Compile is a pure function: identical inputs produce identical programs.
func (c *Compiler) Compile(plan queryir.Node, schema *ir.Schema) (*ir.Program, error) {
	if schema == nil {
		return nil, errors.New("compile: nil schema")
	}
	if err := queryir.Validate(plan); err != nil {
		return nil, err
	}
	q, err := queryir.Decompose(plan)
	if err != nil {
		return nil, err
	}

	b := &builder{schema: schema, rows: &scope{}}
	if err := b.from(q.From); err != nil {
		return nil, err
	}
	b.where = append(b.where, q.Where...)
	return b.program(q)
}

// lookupJoin is a join compiled to a $lookup stage.
type lookupJoin struct {
	bind    *binding
	left    bool
	on      queryir.Expr
	filters []queryir.Expr
	outer   []*binding // tables to the left of the join
}

// builder accumulates the compilation of one plan.
type builder struct {
	schema     *ir.Schema
	collection string

	rows    *scope     // every scanned table, in scan order
	driving []*binding // tables read from the pipeline's own documents
	lookups []*lookupJoin
	where   []queryir.Expr
}

func (b *builder) table(name string) (ir.Table, error) {
	t, ok := b.schema.Table(name)
	if !ok {
		return ir.Table{}, unknownTable(name)
	}
	return t, nil
}

// from walks a left-deep join tree.
func (b *builder) from(n queryir.Node) error {
	switch n := n.(type) {
	case *queryir.Scan:
		t, err := b.table(n.Table)
		if err != nil {
			return err
		}
		b.collection = t.Collection
		b.addDriving(&binding{table: t})
		return nil

	case *queryir.Filter:
		if err := b.from(n.Input); err != nil {
			return err
		}
		b.where = append(b.where, n.Cond)
		return nil

	case *queryir.Join:
		if err := b.from(n.Left); err != nil {
			return err
		}
		return b.join(n)
	}
	return fmt.Errorf("unexpected %T in join tree", n)
}

func (b *builder) addDriving(bind *binding) {
	b.driving = append(b.driving, bind)
	b.rows.bindings = append(b.rows.bindings, bind)
}

// join adds the right side of n. Joins between tables of one lineage on
// their synthesized keys are self-joins: the unwind chain already puts both
// levels in one document, so no join stage is emitted. Other joins, and
// LEFT joins whose right side is filtered, become a $lookup.
func (b *builder) join(n *queryir.Join) error {
	scan, filters, err := rightScan(n.Right)
	if err != nil {
		return err
	}
	rt, err := b.table(scan.Table)
	if err != nil {
		return err
	}

	// A filtered right side of a LEFT join must not drop left rows whose
	// matches all fail the filter, so it is joined by $lookup.
	filteredLeft := n.Kind == queryir.JoinLeft && len(filters) > 0
	if anchor, ok := b.selfJoin(rt, n.On); ok && !filteredLeft {
		optional := n.Kind == queryir.JoinLeft && b.schema.IsAncestor(anchor, rt.Name)
		b.addDriving(&binding{table: rt, optional: optional})
		b.where = append(b.where, filters...)
		return nil
	}

	bind := &binding{
		table:    rt,
		prefix:   lookupPrefix + rt.Name + ".",
		optional: n.Kind == queryir.JoinLeft,
	}
	b.lookups = append(b.lookups, &lookupJoin{
		bind:    bind,
		left:    n.Kind == queryir.JoinLeft,
		on:      n.On,
		filters: filters,
		outer:   slices.Clone(b.rows.bindings),
	})
	b.rows.bindings = append(b.rows.bindings, bind)
	return nil
}

// rightScan unwraps the right input of a join: a Scan under optional
// Filters, which are returned innermost first.
func rightScan(n queryir.Node) (*queryir.Scan, []queryir.Expr, error) {
	var filters []queryir.Expr
	for {
		switch t := n.(type) {
		case *queryir.Scan:
			slices.Reverse(filters)
			return t, filters, nil
		case *queryir.Filter:
			filters = append(filters, t.Cond)
			n = t.Input
		default:
			return nil, nil, &UnsupportedError{Construct: fmt.Sprintf("join with %T as right input", n)}
		}
	}
}

// selfJoin reports whether joining rt on cond is a self-join, returning the
// driving table rt is joined to. rt must lie on the lineage chain of every
// driving table, and cond must equate the shallower table's whole primary
// key across the two tables.
func (b *builder) selfJoin(rt ir.Table, cond queryir.Expr) (string, bool) {
	if rt.Collection != b.collection {
		return "", false
	}
	for _, d := range b.driving {
		if d.table.Name == rt.Name || !b.schema.Related(d.table.Name, rt.Name) {
			return "", false
		}
	}

	candidate := &binding{table: rt}
	sc := &scope{bindings: append(slices.Clone(b.rows.bindings), candidate)}

	anchor := ""
	matched := make(map[string]bool)
	for _, term := range conjuncts(cond) {
		cmp, ok := term.(*queryir.Compare)
		if !ok || cmp.Op != queryir.OpEq {
			return "", false
		}
		l, r := asColumn(cmp.Left), asColumn(cmp.Right)
		if l == nil || r == nil {
			return "", false
		}
		lb, lc, err := sc.resolve(l)
		if err != nil {
			return "", false
		}
		rb, rc, err := sc.resolve(r)
		if err != nil {
			return "", false
		}
		if rb != candidate {
			lb, lc, rb, rc = rb, rc, lb, lc
		}
		if rb != candidate || lb == candidate || lb.prefix != "" || lc.Name != rc.Name {
			return "", false
		}
		if anchor == "" {
			anchor = lb.table.Name
		} else if anchor != lb.table.Name {
			return "", false
		}
		matched[lc.Name] = true
	}
	if anchor == "" {
		return "", false
	}

	shallow := rt
	if at := b.schema.Tables[anchor]; at.Depth < rt.Depth {
		shallow = at
	}
	for _, k := range shallow.PrimaryKey {
		if !matched[k] {
			return "", false
		}
	}
	return anchor, true
}

func conjuncts(e queryir.Expr) []queryir.Expr {
	if and, ok := e.(*queryir.And); ok {
		var out []queryir.Expr
		for _, t := range and.Terms {
			out = append(out, conjuncts(t)...)
		}
		return out
	}
	return []queryir.Expr{e}
}

func asColumn(e queryir.Expr) *queryir.ColumnRef {
	ref, _ := e.(*queryir.ColumnRef)
	return ref
}

// program assembles the stages in their fixed order.
func (b *builder) program(q *queryir.Query) (*ir.Program, error) {
	var stages []ir.Stage

	unwinds, checks := b.expansion(b.driving)
	stages = append(stages, unwinds...)
	stages = append(stages, checks...)

	early, late, err := b.partitionWhere()
	if err != nil {
		return nil, err
	}
	for _, cond := range early {
		m, err := b.rows.match(cond)
		if err != nil {
			return nil, err
		}
		stages = append(stages, m)
	}

	for _, lj := range b.lookups {
		st, err := b.lookupStages(lj)
		if err != nil {
			return nil, err
		}
		stages = append(stages, st...)
	}
	for _, cond := range late {
		m, err := b.rows.match(cond)
		if err != nil {
			return nil, err
		}
		stages = append(stages, m)
	}

	sc := b.rows
	if q.Aggregate != nil {
		group, grouped, err := b.group(q.Aggregate)
		if err != nil {
			return nil, err
		}
		stages = append(stages, group)
		for _, cond := range q.Having {
			m, err := grouped.match(cond)
			if err != nil {
				return nil, err
			}
			stages = append(stages, m)
		}
		sc = grouped
	}

	proj, err := b.projection(q, sc)
	if err != nil {
		return nil, err
	}
	tail, err := proj.tail(q.Tail, sc)
	if err != nil {
		return nil, err
	}
	stages = append(stages, proj.stage())
	stages = append(stages, tail...)

	return &ir.Program{
		Collection: b.collection,
		Stages:     stages,
		Columns:    proj.cols,
	}, nil
}

// partitionWhere splits filters into those over driving tables only, which
// run before any join, and those that need joined tables.
func (b *builder) partitionWhere() (early, late []queryir.Expr, err error) {
	for _, cond := range b.where {
		local := true
		var resolveErr error
		walkColumns(cond, func(ref *queryir.ColumnRef) {
			bind, _, err := b.rows.resolve(ref)
			if err != nil {
				if resolveErr == nil {
					resolveErr = err
				}
				return
			}
			if bind.prefix != "" {
				local = false
			}
		})
		if resolveErr != nil {
			return nil, nil, resolveErr
		}
		if local {
			early = append(early, cond)
		} else {
			late = append(late, cond)
		}
	}
	return early, late, nil
}

// expansion returns the stages that flatten documents down to the deepest of
// tables, which must share one lineage: an $unwind per array level and an
// existence $match per subdocument level. Levels below which every table
// is optional keep documents whose array is missing or empty.
func (b *builder) expansion(tables []*binding) (unwinds, checks []ir.Stage) {
	if len(tables) == 0 {
		return nil, nil
	}
	deepest := tables[0]
	for _, t := range tables[1:] {
		if t.table.Depth > deepest.table.Depth {
			deepest = t
		}
	}

	for _, name := range b.schema.Lineage(deepest.table.Name) {
		level := b.schema.Tables[name]
		preserve := true
		for _, t := range tables {
			if t.table.Depth >= level.Depth && !t.optional {
				preserve = false
			}
		}

		switch level.Kind {
		case ir.TableArray:
			body := ir.D(
				ir.F("path", ir.String("$"+level.Path)),
				ir.F("includeArrayIndex", ir.String(level.ArrayIndexColumn)),
			)
			if preserve {
				body = append(body, ir.F("preserveNullAndEmptyArrays", ir.Bool(true)))
			}
			unwinds = append(unwinds, ir.Stage{Kind: ir.StageUnwind, Body: body})
		case ir.TableDocument:
			if !preserve {
				checks = append(checks, ir.Stage{
					Kind: ir.StageMatch,
					Body: ir.D(ir.F(level.Path, ir.D(ir.F("$type", ir.String("object"))))),
				})
			}
		}
	}
	return unwinds, checks
}

// lookupStages compiles a join with an unrelated table to a pipeline-form
// $lookup followed by an $unwind of the matches.
func (b *builder) lookupStages(lj *lookupJoin) ([]ir.Stage, error) {
	inner := &binding{table: lj.bind.table}
	vars := &letVars{}

	var pipeline ir.Array
	unwinds, checks := b.expansion([]*binding{inner})
	for _, st := range slices.Concat(unwinds, checks) {
		pipeline = append(pipeline, st.Document())
	}

	own := &scope{bindings: []*binding{inner}}
	for _, cond := range lj.filters {
		m, err := own.match(cond)
		if err != nil {
			return nil, err
		}
		pipeline = append(pipeline, m.Document())
	}

	correlated := &scope{bindings: []*binding{inner}, vars: vars}
	for _, o := range lj.outer {
		outer := *o
		outer.outer = true
		correlated.bindings = append(correlated.bindings, &outer)
	}
	m, err := correlated.match(lj.on)
	if err != nil {
		return nil, err
	}
	pipeline = append(pipeline, m.Document())

	as := lookupPrefix + lj.bind.table.Name
	body := ir.D(ir.F("from", ir.String(lj.bind.table.Collection)))
	if len(vars.fields) > 0 {
		body = append(body, ir.F("let", vars.fields))
	}
	body = append(body,
		ir.F("pipeline", pipeline),
		ir.F("as", ir.String(as)),
	)

	unwind := ir.D(ir.F("path", ir.String("$"+as)))
	if lj.left {
		unwind = append(unwind, ir.F("preserveNullAndEmptyArrays", ir.Bool(true)))
	}
	return []ir.Stage{
		{Kind: ir.StageLookup, Body: body},
		{Kind: ir.StageUnwind, Body: unwind},
	}, nil
}

func walkColumns(e queryir.Expr, fn func(*queryir.ColumnRef)) {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		fn(e)
	case *queryir.Compare:
		walkColumns(e.Left, fn)
		walkColumns(e.Right, fn)
	case *queryir.And:
		for _, t := range e.Terms {
			walkColumns(t, fn)
		}
	case *queryir.Or:
		for _, t := range e.Terms {
			walkColumns(t, fn)
		}
	case *queryir.Not:
		walkColumns(e.Expr, fn)
	case *queryir.IsNull:
		walkColumns(e.Expr, fn)
	case *queryir.Concat:
		for _, a := range e.Args {
			walkColumns(a, fn)
		}
	case *queryir.Cast:
		walkColumns(e.Expr, fn)
	case *queryir.Arith:
		walkColumns(e.Left, fn)
		walkColumns(e.Right, fn)
	}
}
