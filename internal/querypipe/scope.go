package querypipe

import (
	"fmt"
	"strconv"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

// binding is a scanned table visible to expressions.
type binding struct {
	table ir.Table

	// prefix is prepended to column paths: empty for tables read from the
	// pipeline's own documents, "__<table>." for tables joined by $lookup.
	prefix string

	// optional marks tables brought in by a LEFT join; their columns may be
	// null in every row.
	optional bool

	// outer marks tables of the enclosing pipeline, seen from inside a
	// $lookup sub-pipeline. Their columns are read through let variables.
	outer bool
}

func (b *binding) path(c ir.Column) string {
	return b.prefix + c.Path
}

// compiled is an aggregation expression with its static type.
type compiled struct {
	value ir.Value
	typ   coerce.Typed
}

// groupKey is one grouping column of an Aggregate, addressed in the
// grouped documents.
type groupKey struct {
	table  string
	column string
	field  string
	typ    coerce.Typed
}

// aggOutput is one accumulator output of an Aggregate.
type aggOutput struct {
	field string
	typ   coerce.Typed
}

// grouping describes the documents a $group stage produces.
type grouping struct {
	keys []groupKey
	aggs map[string]aggOutput
}

func (g *grouping) key(table, column string) (groupKey, bool) {
	for _, k := range g.keys {
		if k.table == table && k.column == column {
			return k, true
		}
	}
	return groupKey{}, false
}

// letVars collects the outer values a $lookup sub-pipeline reads.
type letVars struct {
	fields ir.Document
	byPath map[string]string
}

// bind returns the variable holding the outer document path, declaring it
// on first use.
func (v *letVars) bind(path string) string {
	if v.byPath == nil {
		v.byPath = make(map[string]string)
	}
	if name, ok := v.byPath[path]; ok {
		return name
	}
	name := "k" + strconv.Itoa(len(v.fields))
	v.byPath[path] = name
	v.fields = append(v.fields, ir.F(name, ir.String("$"+path)))
	return name
}

// scope resolves column references and compiles expressions against the
// documents flowing through one point of the pipeline.
type scope struct {
	bindings []*binding
	vars     *letVars  // non-nil inside a $lookup sub-pipeline
	group    *grouping // non-nil above an Aggregate
}

// resolve finds the table and column a reference names. Unqualified
// references must match exactly one visible table.
func (s *scope) resolve(ref *queryir.ColumnRef) (*binding, ir.Column, error) {
	if ref.Table != "" {
		for _, b := range s.bindings {
			if b.table.Name != ref.Table {
				continue
			}
			col, ok := b.table.Column(ref.Column)
			if !ok {
				return nil, ir.Column{}, unknownColumn(ref.Table, ref.Column)
			}
			return b, col, nil
		}
		return nil, ir.Column{}, unknownColumn(ref.Table, ref.Column)
	}

	var found *binding
	var col ir.Column
	for _, b := range s.bindings {
		c, ok := b.table.Column(ref.Column)
		if !ok {
			continue
		}
		if found != nil {
			return nil, ir.Column{}, &ResolutionError{Code: ErrCodeAmbiguousColumn, Column: ref.Column}
		}
		found, col = b, c
	}
	if found == nil {
		return nil, ir.Column{}, unknownColumn("", ref.Column)
	}
	return found, col, nil
}

// expr compiles e to an aggregation expression.
func (s *scope) expr(e queryir.Expr) (compiled, error) {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		return s.column(e)

	case *queryir.AggRef:
		out, ok := s.aggregate(e.Label)
		if !ok {
			return compiled{}, &ResolutionError{Code: ErrCodeUnknownAggregate, Column: e.Label}
		}
		return compiled{value: ir.String("$" + out.field), typ: out.typ}, nil

	case *queryir.Literal:
		return compiled{
			value: ir.D(ir.F("$literal", e.Value)),
			typ:   coerce.LiteralType(e.Value),
		}, nil

	case *queryir.Compare:
		l, err := s.expr(e.Left)
		if err != nil {
			return compiled{}, err
		}
		r, err := s.expr(e.Right)
		if err != nil {
			return compiled{}, err
		}
		return compiled{
			value: nullGuard(ir.D(ir.F(aggOps[e.Op], ir.A(l.value, r.value))), l, r),
			typ:   coerce.CompareType(l.typ, r.typ),
		}, nil

	case *queryir.And:
		return s.logic("$and", e.Terms)

	case *queryir.Or:
		return s.logic("$or", e.Terms)

	case *queryir.Not:
		inner, err := s.expr(e.Expr)
		if err != nil {
			return compiled{}, err
		}
		value := ir.Value(ir.D(ir.F("$not", ir.A(inner.value))))
		if inner.typ.Nullable {
			value = ir.D(ir.F("$cond", ir.A(isNull(inner.value), ir.Null{}, value)))
		}
		return compiled{value: value, typ: coerce.LogicType(inner.typ)}, nil

	case *queryir.IsNull:
		inner, err := s.expr(e.Expr)
		if err != nil {
			return compiled{}, err
		}
		op := "$eq"
		if e.Negate {
			op = "$ne"
		}
		return compiled{
			value: ir.D(ir.F(op, ir.A(ifNull(inner.value), ir.Null{}))),
			typ:   coerce.Typed{Type: ir.TypeBoolean},
		}, nil

	case *queryir.Concat:
		args := make(ir.Array, len(e.Args))
		types := make([]coerce.Typed, len(e.Args))
		for i, a := range e.Args {
			c, err := s.expr(a)
			if err != nil {
				return compiled{}, err
			}
			args[i] = c.value
			if c.typ.Type != ir.TypeVarchar {
				args[i] = ir.D(ir.F("$toString", c.value))
			}
			types[i] = c.typ
		}
		return compiled{
			value: ir.D(ir.F("$concat", args)),
			typ:   coerce.ConcatType(types...),
		}, nil

	case *queryir.Cast:
		inner, err := s.expr(e.Expr)
		if err != nil {
			return compiled{}, err
		}
		return compiled{
			value: ir.D(ir.F("$convert", ir.D(
				ir.F("input", inner.value),
				ir.F("to", ir.String(convertTypes[e.To])),
				ir.F("onError", ir.Null{}),
				ir.F("onNull", ir.Null{}),
			))),
			typ: coerce.CastType(inner.typ, e.To),
		}, nil

	case *queryir.Arith:
		l, err := s.expr(e.Left)
		if err != nil {
			return compiled{}, err
		}
		r, err := s.expr(e.Right)
		if err != nil {
			return compiled{}, err
		}
		typ, err := coerce.ArithType(e.Op, l.typ, r.typ)
		if err != nil {
			return compiled{}, fmt.Errorf("compile arithmetic: %w", err)
		}
		value := ir.Value(ir.D(ir.F(arithOps[e.Op], ir.A(l.value, r.value))))
		if e.Op == coerce.OpDiv {
			// Division by zero yields null instead of failing the pipeline.
			value = ir.D(ir.F("$cond", ir.A(
				ir.D(ir.F("$eq", ir.A(r.value, ir.Int32(0)))),
				ir.Null{},
				value,
			)))
		}
		return compiled{value: value, typ: typ}, nil
	}
	return compiled{}, fmt.Errorf("unsupported expression %T", e)
}

func (s *scope) column(ref *queryir.ColumnRef) (compiled, error) {
	b, col, err := s.resolve(ref)
	if err != nil {
		return compiled{}, err
	}
	if s.group != nil {
		k, ok := s.group.key(b.table.Name, col.Name)
		if !ok {
			return compiled{}, &ResolutionError{Code: ErrCodeNotGrouped, Table: b.table.Name, Column: col.Name}
		}
		return compiled{value: ir.String("$" + k.field), typ: k.typ}, nil
	}
	typ := coerce.Typed{Type: col.Type, Nullable: col.Nullable || b.optional}
	if b.outer {
		return compiled{value: ir.String("$$" + s.vars.bind(b.path(col))), typ: typ}, nil
	}
	return compiled{value: ir.String("$" + b.path(col)), typ: typ}, nil
}

func (s *scope) aggregate(label string) (aggOutput, bool) {
	if s.group == nil {
		return aggOutput{}, false
	}
	out, ok := s.group.aggs[label]
	return out, ok
}

// logic compiles AND and OR. With nullable terms the result follows
// three-valued logic: AND is false if any term is false, OR is true if any
// term is true, and otherwise a null term makes the result null.
func (s *scope) logic(op string, terms []queryir.Expr) (compiled, error) {
	values := make(ir.Array, len(terms))
	types := make([]coerce.Typed, len(terms))
	var nulls ir.Array
	for i, t := range terms {
		c, err := s.expr(t)
		if err != nil {
			return compiled{}, err
		}
		values[i] = c.value
		types[i] = c.typ
		if c.typ.Nullable {
			nulls = append(nulls, isNull(c.value))
		}
	}
	typ := coerce.LogicType(types...)
	plain := ir.D(ir.F(op, values))
	if len(nulls) == 0 {
		return compiled{value: plain, typ: typ}, nil
	}

	if op == "$or" {
		return compiled{
			value: ir.D(ir.F("$cond", ir.A(
				plain,
				ir.Bool(true),
				ir.D(ir.F("$cond", ir.A(ir.D(ir.F("$or", nulls)), ir.Null{}, ir.Bool(false)))),
			))),
			typ: typ,
		}, nil
	}
	falses := make(ir.Array, len(values))
	for i, v := range values {
		falses[i] = ir.D(ir.F("$eq", ir.A(v, ir.Bool(false))))
	}
	return compiled{
		value: ir.D(ir.F("$cond", ir.A(
			ir.D(ir.F("$or", falses)),
			ir.Bool(false),
			ir.D(ir.F("$cond", ir.A(plain, ir.Bool(true), ir.Null{}))),
		))),
		typ: typ,
	}, nil
}

// nullGuard yields null instead of value when a nullable operand is null or
// missing.
func nullGuard(value ir.Value, operands ...compiled) ir.Value {
	var present ir.Array
	for _, o := range operands {
		if o.typ.Nullable {
			// Every non-null value sorts above null.
			present = append(present, ir.D(ir.F("$gt", ir.A(o.value, ir.Null{}))))
		}
	}
	switch len(present) {
	case 0:
		return value
	case 1:
		return ir.D(ir.F("$cond", ir.A(present[0], value, ir.Null{})))
	}
	return ir.D(ir.F("$cond", ir.A(ir.D(ir.F("$and", present)), value, ir.Null{})))
}

// match compiles a filter condition to a $match stage. Conditions made of
// column-versus-constant comparisons use the query form; everything else is
// wrapped in $expr.
func (s *scope) match(cond queryir.Expr) (ir.Stage, error) {
	c, err := s.expr(cond)
	if err != nil {
		return ir.Stage{}, err
	}
	if q, ok := s.queryForm(cond); ok {
		return ir.Stage{Kind: ir.StageMatch, Body: q}, nil
	}
	return ir.Stage{Kind: ir.StageMatch, Body: ir.D(ir.F("$expr", c.value))}, nil
}

// queryForm renders cond as a query document if it has one. cond must
// already compile as an expression.
func (s *scope) queryForm(cond queryir.Expr) (ir.Document, bool) {
	switch e := cond.(type) {
	case *queryir.Compare:
		op := e.Op
		field, lit := e.Left, e.Right
		if _, ok := field.(*queryir.Literal); ok {
			field, lit = lit, field
			op = flipped[op]
		}
		path, ok := s.localPath(field)
		if !ok {
			return nil, false
		}
		l, ok := lit.(*queryir.Literal)
		if !ok || !queryLiteral(l.Value) {
			return nil, false
		}
		if op == queryir.OpNe {
			// <> never matches a null or missing field.
			return ir.D(ir.F(path, ir.D(ir.F("$nin", ir.A(l.Value, ir.Null{}))))), true
		}
		return ir.D(ir.F(path, ir.D(ir.F(aggOps[op], l.Value)))), true

	case *queryir.IsNull:
		path, ok := s.localPath(e.Expr)
		if !ok {
			return nil, false
		}
		op := "$eq"
		if e.Negate {
			op = "$ne"
		}
		return ir.D(ir.F(path, ir.D(ir.F(op, ir.Null{})))), true

	case *queryir.And:
		return s.queryTerms("$and", e.Terms)

	case *queryir.Or:
		return s.queryTerms("$or", e.Terms)
	}
	return nil, false
}

func (s *scope) queryTerms(op string, terms []queryir.Expr) (ir.Document, bool) {
	out := make(ir.Array, len(terms))
	for i, t := range terms {
		q, ok := s.queryForm(t)
		if !ok {
			return nil, false
		}
		out[i] = q
	}
	return ir.D(ir.F(op, out)), true
}

// localPath returns the document path an expression reads, if it is a plain
// column of the current documents.
func (s *scope) localPath(e queryir.Expr) (string, bool) {
	switch e := e.(type) {
	case *queryir.ColumnRef:
		b, col, err := s.resolve(e)
		if err != nil || b.outer {
			return "", false
		}
		if s.group != nil {
			k, ok := s.group.key(b.table.Name, col.Name)
			return k.field, ok
		}
		return b.path(col), true
	case *queryir.AggRef:
		out, ok := s.aggregate(e.Label)
		return out.field, ok
	}
	return "", false
}

// queryLiteral reports whether v compares by equality/order when used as an
// operand in a query document. Null compares differently in the two forms,
// regular expressions match instead of comparing, and documents would be
// read as operators.
func queryLiteral(v ir.Value) bool {
	switch v.Kind() {
	case ir.KindNull, ir.KindRegex, ir.KindDocument, ir.KindArray:
		return false
	}
	return true
}

func ifNull(v ir.Value) ir.Value {
	return ir.D(ir.F("$ifNull", ir.A(v, ir.Null{})))
}

func isNull(v ir.Value) ir.Value {
	return ir.D(ir.F("$eq", ir.A(ifNull(v), ir.Null{})))
}

var aggOps = map[queryir.CmpOp]string{
	queryir.OpEq: "$eq",
	queryir.OpNe: "$ne",
	queryir.OpLt: "$lt",
	queryir.OpLe: "$lte",
	queryir.OpGt: "$gt",
	queryir.OpGe: "$gte",
}

// flipped maps an operator to its mirror image: a < b is b > a.
var flipped = map[queryir.CmpOp]queryir.CmpOp{
	queryir.OpEq: queryir.OpEq,
	queryir.OpNe: queryir.OpNe,
	queryir.OpLt: queryir.OpGt,
	queryir.OpLe: queryir.OpGe,
	queryir.OpGt: queryir.OpLt,
	queryir.OpGe: queryir.OpLe,
}

var arithOps = map[coerce.ArithOp]string{
	coerce.OpAdd: "$add",
	coerce.OpSub: "$subtract",
	coerce.OpMul: "$multiply",
	coerce.OpDiv: "$divide",
}

// convertTypes maps SQL types to $convert target names.
var convertTypes = map[ir.SQLType]string{
	ir.TypeBoolean:   "bool",
	ir.TypeInteger:   "int",
	ir.TypeBigInt:    "long",
	ir.TypeDouble:    "double",
	ir.TypeDecimal:   "decimal",
	ir.TypeVarchar:   "string",
	ir.TypeTimestamp: "date",
	ir.TypeBinary:    "binData",
}
