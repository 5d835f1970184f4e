package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
)

// ValidationError lists every structural problem found in a plan.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid plan: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid plan: %d problems:\n  - %s", len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Query is a plan decomposed into the clauses of one SELECT.
type Query struct {
	// From is the join tree: a Scan, or a Join whose sides are Scans, Joins
	// or Filters over those.
	From Node

	// Where holds filters above the join tree, innermost first.
	Where []Expr

	// Aggregate is the grouping step, if any.
	Aggregate *Aggregate

	// Having holds filters directly above Aggregate, innermost first.
	Having []Expr

	// Project is the projection; nil selects every column of every
	// scanned table.
	Project *Project

	// Tail holds Sort, Limit and Skip nodes in application order.
	Tail []Node
}

// Scans returns the scanned table names in plan order (left to right).
func (q *Query) Scans() []string {
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Scan:
			out = append(out, n.Table)
		case *Join:
			walk(n.Left)
			walk(n.Right)
		case *Filter:
			walk(n.Input)
		}
	}
	walk(q.From)
	return out
}

// Decompose splits a plan into its SELECT clauses. It fails when the plan
// does not have the shape described in the package documentation.
func Decompose(node Node) (*Query, error) {
	if node == nil {
		return nil, &ValidationError{Problems: []string{"nil plan"}}
	}
	q := &Query{}
	cur := node

	top, cur := takeTail(cur)
	if p, ok := cur.(*Project); ok {
		q.Project = p
		cur = p.Input
	}
	below, cur := takeTail(cur)
	slices.Reverse(below)
	slices.Reverse(top)
	q.Tail = append(below, top...)

	filters, cur := takeFilters(cur)
	if agg, ok := cur.(*Aggregate); ok {
		q.Aggregate = agg
		q.Having = filters
		filters, cur = takeFilters(agg.Input)
	}
	q.Where = filters

	switch cur.(type) {
	case *Scan, *Join:
		q.From = cur
	case nil:
		return nil, &ValidationError{Problems: []string{"plan has no input"}}
	default:
		return nil, &ValidationError{Problems: []string{
			fmt.Sprintf("unexpected %s below the SELECT clauses", nodeName(cur)),
		}}
	}
	return q, nil
}

func takeTail(n Node) ([]Node, Node) {
	var out []Node
	for {
		switch t := n.(type) {
		case *Sort:
			out = append(out, t)
			n = t.Input
		case *Limit:
			out = append(out, t)
			n = t.Input
		case *Skip:
			out = append(out, t)
			n = t.Input
		default:
			return out, n
		}
	}
}

// takeFilters collects stacked filters, innermost first.
func takeFilters(n Node) ([]Expr, Node) {
	var out []Expr
	for {
		f, ok := n.(*Filter)
		if !ok {
			slices.Reverse(out)
			return out, n
		}
		out = append(out, f.Cond)
		n = f.Input
	}
}

// Validate checks the structural rules of a plan. Name resolution against
// a schema is left to the compiler.
//
// Validate is a pure function with no side effects.
func Validate(node Node) error {
	q, err := Decompose(node)
	if err != nil {
		return err
	}
	v := &validator{scanned: make(map[string]bool)}
	v.validateFrom(q.From)

	for _, e := range q.Where {
		v.validateExpr(e, false)
	}
	hasAgg := q.Aggregate != nil
	if hasAgg {
		v.validateAggregate(q.Aggregate)
		for _, e := range q.Having {
			v.validateExpr(e, true)
		}
	}
	if q.Project != nil {
		v.validateProject(q.Project, hasAgg)
	}
	for _, t := range q.Tail {
		v.validateTail(t, hasAgg)
	}

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	scanned  map[string]bool
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateFrom(n Node) {
	switch n := n.(type) {
	case *Scan:
		switch {
		case n.Table == "":
			v.addProblem("scan without a table name")
		case v.scanned[n.Table]:
			v.addProblem("table %q is scanned more than once", n.Table)
		}
		v.scanned[n.Table] = true
	case *Join:
		if n.Kind != JoinInner && n.Kind != JoinLeft {
			v.addProblem("join kind %q (want inner or left)", n.Kind)
		}
		if n.On == nil {
			v.addProblem("join without an ON condition")
		} else {
			v.validateExpr(n.On, false)
		}
		v.validateFrom(n.Left)
		v.validateFrom(n.Right)
	case *Filter:
		v.validateExpr(n.Cond, false)
		v.validateFrom(n.Input)
	case nil:
		v.addProblem("join side is nil")
	default:
		v.addProblem("unexpected %s inside the join tree", nodeName(n))
	}
}

func (v *validator) validateAggregate(a *Aggregate) {
	if len(a.GroupBy) == 0 && len(a.Aggs) == 0 {
		v.addProblem("aggregate without group keys or aggregates")
	}
	for _, g := range a.GroupBy {
		if g == nil || g.Column == "" {
			v.addProblem("aggregate group key without a column")
		}
	}
	labels := make(map[string]bool)
	for _, item := range a.Aggs {
		switch item.Func {
		case coerce.AggCount:
		case coerce.AggSum, coerce.AggAvg, coerce.AggMin, coerce.AggMax, coerce.AggFirst:
			if item.Arg == nil {
				v.addProblem("%s(%s) needs an argument", item.Func, item.Label)
			}
		default:
			v.addProblem("unknown aggregate function %q", item.Func)
		}
		if item.Label == "" {
			v.addProblem("%s aggregate without a label", item.Func)
		} else if labels[item.Label] {
			v.addProblem("duplicate aggregate label %q", item.Label)
		}
		labels[item.Label] = true
		if item.Arg != nil {
			v.validateExpr(item.Arg, false)
		}
	}
}

func (v *validator) validateProject(p *Project, hasAgg bool) {
	if len(p.Items) == 0 {
		v.addProblem("projection without items")
	}
	labels := make(map[string]bool)
	for i, item := range p.Items {
		if item.Expr == nil {
			v.addProblem("projection item %d has no expression", i+1)
			continue
		}
		v.validateExpr(item.Expr, hasAgg)
		label := item.OutputLabel(i + 1)
		if labels[label] {
			v.addProblem("duplicate output label %q", label)
		}
		labels[label] = true
	}
}

func (v *validator) validateTail(n Node, hasAgg bool) {
	switch t := n.(type) {
	case *Sort:
		if len(t.Keys) == 0 {
			v.addProblem("sort without keys")
		}
		for _, k := range t.Keys {
			v.validateExpr(k.Expr, hasAgg)
		}
	case *Limit:
		if t.N < 0 {
			v.addProblem("negative limit %d", t.N)
		}
	case *Skip:
		if t.N < 0 {
			v.addProblem("negative skip %d", t.N)
		}
	}
}

func (v *validator) validateExpr(e Expr, aggRefs bool) {
	switch e := e.(type) {
	case nil:
		v.addProblem("missing expression")
	case *ColumnRef:
		if e.Column == "" {
			v.addProblem("column reference without a column name")
		}
	case *AggRef:
		if !aggRefs {
			v.addProblem("aggregate reference %q outside an aggregation", e.Label)
		}
	case *Literal:
		if e.Value == nil {
			v.addProblem("literal without a value")
		}
	case *Compare:
		switch e.Op {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		default:
			v.addProblem("unknown comparison operator %q", e.Op)
		}
		v.validateExpr(e.Left, aggRefs)
		v.validateExpr(e.Right, aggRefs)
	case *And:
		v.validateTerms("AND", e.Terms, aggRefs)
	case *Or:
		v.validateTerms("OR", e.Terms, aggRefs)
	case *Not:
		v.validateExpr(e.Expr, aggRefs)
	case *IsNull:
		v.validateExpr(e.Expr, aggRefs)
	case *Concat:
		if len(e.Args) == 0 {
			v.addProblem("CONCAT without arguments")
		}
		for _, a := range e.Args {
			v.validateExpr(a, aggRefs)
		}
	case *Cast:
		if !e.To.Valid() || e.To == ir.TypeNull || e.To == ir.TypeOther {
			v.addProblem("cannot cast to %s", e.To)
		}
		v.validateExpr(e.Expr, aggRefs)
	case *Arith:
		switch e.Op {
		case coerce.OpAdd, coerce.OpSub, coerce.OpMul, coerce.OpDiv:
		default:
			v.addProblem("unknown arithmetic operator %q", e.Op)
		}
		v.validateExpr(e.Left, aggRefs)
		v.validateExpr(e.Right, aggRefs)
	default:
		v.addProblem("unknown expression %T", e)
	}
}

func (v *validator) validateTerms(op string, terms []Expr, aggRefs bool) {
	if len(terms) == 0 {
		v.addProblem("%s without terms", op)
	}
	for _, t := range terms {
		v.validateExpr(t, aggRefs)
	}
}

func nodeName(n Node) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*queryir.")
}
