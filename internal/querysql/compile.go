package querysql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// SQLCompiler renders a plan as one parameterized SELECT statement, the
// form a SQL client would have sent for it.
//
// Literals are never interpolated: each becomes a ? placeholder and its
// value is appended to the parameter list, in statement order.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a plan to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(plan queryir.Node) (string, []any, error) {
	q, err := queryir.Decompose(plan)
	if err != nil {
		return "", nil, err
	}

	r := &renderer{}
	var b strings.Builder

	b.WriteString("SELECT ")
	b.WriteString(r.selectList(q))

	from, err := r.from(q.From)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" FROM ")
	b.WriteString(from)

	if len(q.Where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(r.conjunction(q.Where))
	}
	if q.Aggregate != nil && len(q.Aggregate.GroupBy) > 0 {
		keys := make([]string, len(q.Aggregate.GroupBy))
		for i, ref := range q.Aggregate.GroupBy {
			keys[i] = r.expr(ref, 0)
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(keys, ", "))
	}
	if len(q.Having) > 0 {
		b.WriteString(" HAVING ")
		b.WriteString(r.conjunction(q.Having))
	}

	tail, err := r.tail(q.Tail)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(tail)

	if r.err != nil {
		return "", nil, r.err
	}
	return b.String(), r.params, nil
}

// renderer accumulates parameters while rendering one statement.
type renderer struct {
	params []any
	err    error
}

func (r *renderer) selectList(q *queryir.Query) string {
	var items []string
	switch {
	case q.Project != nil:
		for _, item := range q.Project.Items {
			items = append(items, r.item(item.Expr, item.Label))
		}
	case q.Aggregate != nil:
		for _, ref := range q.Aggregate.GroupBy {
			items = append(items, r.expr(ref, 0))
		}
		for _, agg := range q.Aggregate.Aggs {
			items = append(items, aggregate(r, agg)+" AS "+quoteIdent(agg.Label))
		}
	default:
		return "*"
	}
	return strings.Join(items, ", ")
}

// item renders one output column. A label equal to the column name needs
// no alias.
func (r *renderer) item(e queryir.Expr, label string) string {
	out := r.expr(e, 0)
	if ref, ok := e.(*queryir.ColumnRef); ok && (label == "" || label == ref.Column) {
		return out
	}
	if ref, ok := e.(*queryir.AggRef); ok && (label == "" || label == ref.Label) {
		return out
	}
	if label == "" {
		return out
	}
	return out + " AS " + quoteIdent(label)
}

func aggregate(r *renderer, agg queryir.AggItem) string {
	fn := strings.ToUpper(string(agg.Func))
	if agg.Arg == nil {
		return fn + "(*)"
	}
	return fn + "(" + r.expr(agg.Arg, 0) + ")"
}

// from renders the join tree. A filtered right side becomes a derived
// table so its condition stays on that side of an outer join.
func (r *renderer) from(n queryir.Node) (string, error) {
	switch n := n.(type) {
	case *queryir.Scan:
		return quoteIdent(n.Table), nil
	case *queryir.Join:
		left, err := r.from(n.Left)
		if err != nil {
			return "", err
		}
		right, err := r.joinSide(n.Right)
		if err != nil {
			return "", err
		}
		kind := "JOIN"
		if n.Kind == queryir.JoinLeft {
			kind = "LEFT JOIN"
		}
		return fmt.Sprintf("%s %s %s ON %s", left, kind, right, r.expr(n.On, 0)), nil
	}
	return "", fmt.Errorf("unsupported join input: %T", n)
}

func (r *renderer) joinSide(n queryir.Node) (string, error) {
	var conds []queryir.Expr
	for {
		f, ok := n.(*queryir.Filter)
		if !ok {
			break
		}
		conds = append(conds, f.Cond)
		n = f.Input
	}
	scan, ok := n.(*queryir.Scan)
	if !ok {
		return r.from(n)
	}
	if len(conds) == 0 {
		return quoteIdent(scan.Table), nil
	}
	table := quoteIdent(scan.Table)
	return fmt.Sprintf("(SELECT * FROM %s WHERE %s) AS %s", table, r.conjunction(conds), table), nil
}

// tail folds Sort, Skip and Limit nodes into ORDER BY, LIMIT and OFFSET.
func (r *renderer) tail(nodes []queryir.Node) (string, error) {
	var orderBy []string
	offset, limit := int64(0), int64(-1)
	for _, n := range nodes {
		switch n := n.(type) {
		case *queryir.Sort:
			if offset > 0 || limit >= 0 {
				return "", fmt.Errorf("sort above skip or limit has no single-statement form")
			}
			for _, key := range n.Keys {
				k := r.expr(key.Expr, 0)
				if key.Desc {
					k += " DESC"
				}
				orderBy = append(orderBy, k)
			}
		case *queryir.Skip:
			offset += n.N
			if limit >= 0 {
				limit = max(0, limit-n.N)
			}
		case *queryir.Limit:
			if limit < 0 || n.N < limit {
				limit = n.N
			}
		}
	}

	var b strings.Builder
	if len(orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(orderBy, ", "))
	}
	switch {
	case limit >= 0:
		b.WriteString(" LIMIT " + strconv.FormatInt(limit, 10))
	case offset > 0:
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		b.WriteString(" OFFSET " + strconv.FormatInt(offset, 10))
	}
	return b.String(), nil
}

func (r *renderer) conjunction(conds []queryir.Expr) string {
	if len(conds) == 1 {
		return r.expr(conds[0], 0)
	}
	return r.expr(&queryir.And{Terms: conds}, 0)
}

// Operator precedence, loosest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precConcat
	precAdd
	precMul
	precAtom
)

// expr renders an expression, parenthesized when it binds looser than
// minPrec.
func (r *renderer) expr(e queryir.Expr, minPrec int) string {
	s, prec := r.build(e)
	if prec < minPrec {
		return "(" + s + ")"
	}
	return s
}

func (r *renderer) build(e queryir.Expr) (string, int) {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		if e.Table == "" {
			return quoteIdent(e.Column), precAtom
		}
		return quoteIdent(e.Table) + "." + quoteIdent(e.Column), precAtom
	case *queryir.AggRef:
		return quoteIdent(e.Label), precAtom
	case *queryir.Literal:
		if ir.IsNull(e.Value) {
			return "NULL", precAtom
		}
		param, err := valueToParam(e.Value)
		if err != nil && r.err == nil {
			r.err = err
		}
		r.params = append(r.params, param)
		return "?", precAtom
	case *queryir.Compare:
		return r.expr(e.Left, precConcat) + " " + string(e.Op) + " " + r.expr(e.Right, precConcat), precCompare
	case *queryir.And:
		return r.join(e.Terms, " AND ", precAnd), precAnd
	case *queryir.Or:
		// And terms are parenthesized for readability.
		return r.join(e.Terms, " OR ", precNot), precOr
	case *queryir.Not:
		return "NOT " + r.expr(e.Expr, precConcat), precNot
	case *queryir.IsNull:
		if e.Negate {
			return r.expr(e.Expr, precConcat) + " IS NOT NULL", precCompare
		}
		return r.expr(e.Expr, precConcat) + " IS NULL", precCompare
	case *queryir.Concat:
		return r.join(e.Args, " || ", precConcat), precConcat
	case *queryir.Cast:
		return "CAST(" + r.expr(e.Expr, 0) + " AS " + e.To.String() + ")", precAtom
	case *queryir.Arith:
		prec := precAdd
		if e.Op == coerce.OpMul || e.Op == coerce.OpDiv {
			prec = precMul
		}
		return r.expr(e.Left, prec) + " " + string(e.Op) + " " + r.expr(e.Right, prec+1), prec
	}
	if r.err == nil {
		r.err = fmt.Errorf("unsupported expression: %T", e)
	}
	return "?", precAtom
}

func (r *renderer) join(terms []queryir.Expr, sep string, minPrec int) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = r.expr(t, minPrec)
	}
	return strings.Join(parts, sep)
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// quoteIdent double-quotes identifiers that are not plain words.
func quoteIdent(name string) string {
	if plainIdent.MatchString(name) && !reserved[strings.ToUpper(name)] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "ORDER": true,
	"BY": true, "HAVING": true, "LIMIT": true, "OFFSET": true, "JOIN": true,
	"LEFT": true, "ON": true, "AS": true, "AND": true, "OR": true, "NOT": true,
	"NULL": true, "IS": true, "CAST": true, "DESC": true,
}

// valueToParam converts a literal to a Go value for a SQL parameter.
// Documents and arrays have no parameter form.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int32:
		return int32(val), nil
	case ir.Int64:
		return int64(val), nil
	case ir.Double:
		return float64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.DateTime:
		return val.Time(), nil
	case ir.Decimal128:
		return val.String(), nil
	case ir.ObjectID:
		return val.Hex(), nil
	case ir.Binary:
		return val.Data, nil
	}
	return nil, fmt.Errorf("%s literal cannot be used as SQL parameter", v.Kind())
}
