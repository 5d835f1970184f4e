package planspec

import (
	"fmt"
	"math"
	"strings"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/queryir"
)

var cmpOps = map[string]queryir.CmpOp{
	"eq": queryir.OpEq,
	"ne": queryir.OpNe,
	"lt": queryir.OpLt,
	"le": queryir.OpLe,
	"gt": queryir.OpGt,
	"ge": queryir.OpGe,
}

var arithOps = map[string]coerce.ArithOp{
	"add": coerce.OpAdd,
	"sub": coerce.OpSub,
	"mul": coerce.OpMul,
	"div": coerce.OpDiv,
}

// compileExpr converts one expression value.
func compileExpr(v cue.Value) (queryir.Expr, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if s == "" {
			return nil, exprError(v, "empty column reference")
		}
		return columnRef(s), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind, cue.BoolKind, cue.NullKind:
		val, err := literal(v)
		if err != nil {
			return nil, err
		}
		return queryir.Lit(val), nil
	case cue.StructKind:
		return compileStruct(v)
	}
	return nil, exprError(v, "expression must be a string, literal or operator struct")
}

func compileStruct(v cue.Value) (queryir.Expr, error) {
	fields, err := structFields(v)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, exprError(v, "empty expression")
	}

	switch {
	case has(fields, "lit"):
		if err := onlyFields(v, fields, "lit", "type"); err != nil {
			return nil, err
		}
		return compileLit(fields["lit"], fields["type"])
	case has(fields, "col"):
		if err := onlyFields(v, fields, "col", "table"); err != nil {
			return nil, err
		}
		col, err := fields["col"].String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		table := ""
		if t, ok := fields["table"]; ok {
			if table, err = t.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		return queryir.Col(table, col), nil
	case has(fields, "cast"):
		if err := onlyFields(v, fields, "cast", "to"); err != nil {
			return nil, err
		}
		toVal, ok := fields["to"]
		if !ok {
			return nil, exprError(v, "cast needs a target type in to")
		}
		name, err := toVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		to, err := ir.ParseSQLType(name)
		if err != nil {
			return nil, exprError(toVal, err.Error())
		}
		inner, err := compileExpr(fields["cast"])
		if err != nil {
			return nil, err
		}
		return &queryir.Cast{Expr: inner, To: to}, nil
	}

	if len(fields) != 1 {
		return nil, exprError(v, "operator struct must have exactly one field")
	}
	var name string
	var arg cue.Value
	for n, a := range fields {
		name, arg = n, a
	}
	switch {
	case name == "agg":
		label, err := arg.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return &queryir.AggRef{Label: label}, nil
	case cmpOps[name] != "":
		l, r, err := pair(name, arg)
		if err != nil {
			return nil, err
		}
		return queryir.Cmp(cmpOps[name], l, r), nil
	case arithOps[name] != "":
		l, r, err := pair(name, arg)
		if err != nil {
			return nil, err
		}
		return &queryir.Arith{Op: arithOps[name], Left: l, Right: r}, nil
	case name == "and" || name == "or":
		terms, err := exprList(arg)
		if err != nil {
			return nil, err
		}
		if len(terms) == 0 {
			return nil, exprError(arg, name+" needs at least one term")
		}
		if name == "and" {
			return &queryir.And{Terms: terms}, nil
		}
		return &queryir.Or{Terms: terms}, nil
	case name == "not":
		inner, err := compileExpr(arg)
		if err != nil {
			return nil, err
		}
		return &queryir.Not{Expr: inner}, nil
	case name == "is_null" || name == "is_not_null":
		inner, err := compileExpr(arg)
		if err != nil {
			return nil, err
		}
		return &queryir.IsNull{Expr: inner, Negate: name == "is_not_null"}, nil
	case name == "concat":
		args, err := exprList(arg)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, exprError(arg, "concat needs at least one argument")
		}
		return &queryir.Concat{Args: args}, nil
	}
	return nil, exprError(arg, fmt.Sprintf("unknown operator %q", name))
}

// structFields collects the regular fields of a struct value.
func structFields(v cue.Value) (map[string]cue.Value, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	out := make(map[string]cue.Value)
	for iter.Next() {
		out[iter.Selector().String()] = iter.Value()
	}
	return out, nil
}

func has(fields map[string]cue.Value, name string) bool {
	_, ok := fields[name]
	return ok
}

func onlyFields(v cue.Value, fields map[string]cue.Value, allowed ...string) error {
	for name, fv := range fields {
		known := false
		for _, a := range allowed {
			if name == a {
				known = true
				break
			}
		}
		if !known {
			return exprError(fv, fmt.Sprintf("unexpected field %q, want %s", name, strings.Join(allowed, ", ")))
		}
	}
	return nil
}

func pair(op string, v cue.Value) (queryir.Expr, queryir.Expr, error) {
	args, err := exprList(v)
	if err != nil {
		return nil, nil, err
	}
	if len(args) != 2 {
		return nil, nil, exprError(v, fmt.Sprintf("%s needs exactly two operands, got %d", op, len(args)))
	}
	return args[0], args[1], nil
}

func exprList(v cue.Value) ([]queryir.Expr, error) {
	if v.IncompleteKind() != cue.ListKind {
		return nil, exprError(v, "expected a list of expressions")
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []queryir.Expr
	for iter.Next() {
		e, err := compileExpr(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// columnRef splits "table.column" at the first dot.
func columnRef(s string) *queryir.ColumnRef {
	if table, col, ok := strings.Cut(s, "."); ok && table != "" && col != "" {
		return queryir.Col(table, col)
	}
	return queryir.Col("", s)
}

// literal converts a bare CUE scalar. Integers become Int32 when they fit.
func literal(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return ir.Int32(n), nil
		}
		return ir.Int64(n), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Double(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	}
	return nil, exprError(v, "literal must be concrete")
}

// compileLit converts {lit, type}. Without a type, a string literal stays a
// string rather than a column reference.
func compileLit(litVal cue.Value, typeVal cue.Value) (queryir.Expr, error) {
	if !typeVal.Exists() {
		val, err := literal(litVal)
		if err != nil {
			return nil, err
		}
		return queryir.Lit(val), nil
	}
	typ, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	text, err := litText(litVal)
	if err != nil {
		return nil, err
	}

	var val ir.Value
	switch typ {
	case "int", "long":
		var n int64
		if n, err = litVal.Int64(); err != nil {
			return nil, exprError(litVal, "expected an integer")
		}
		if typ == "int" {
			if n < math.MinInt32 || n > math.MaxInt32 {
				return nil, exprError(litVal, fmt.Sprintf("%d overflows int", n))
			}
			val = ir.Int32(n)
		} else {
			val = ir.Int64(n)
		}
	case "double":
		var f float64
		if f, err = litVal.Float64(); err != nil {
			return nil, exprError(litVal, "expected a number")
		}
		val = ir.Double(f)
	case "decimal":
		if val, err = ir.ParseDecimal128(text); err != nil {
			return nil, exprError(litVal, err.Error())
		}
	case "string":
		val = ir.String(text)
	case "date":
		t, err := parseDate(text)
		if err != nil {
			return nil, exprError(litVal, err.Error())
		}
		val = ir.NewDateTime(t)
	case "objectId":
		if val, err = ir.ObjectIDFromHex(text); err != nil {
			return nil, exprError(litVal, err.Error())
		}
	default:
		return nil, exprError(typeVal, fmt.Sprintf("unknown literal type %q", typ))
	}
	return queryir.Lit(val), nil
}

// litText returns a literal's source text: the string itself, or the number
// as written.
func litText(v cue.Value) (string, error) {
	if v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return "", formatCUEError(err)
	}
	return string(b), nil
}

var dateLayouts = []string{time.RFC3339Nano, coerce.DateTimeLayout, "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

func exprError(v cue.Value, msg string) *CompileError {
	field := "expr"
	if sel := v.Path().Selectors(); len(sel) > 0 {
		field = v.Path().String()
	}
	return &CompileError{Field: field, Message: msg, Pos: v.Pos()}
}
