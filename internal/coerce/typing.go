package coerce

import (
	"fmt"

	"github.com/roach88/docsql/internal/ir"
)

// Typed is the static type of an expression.
type Typed struct {
	Type     ir.SQLType
	Nullable bool
}

// ArithOp is a binary arithmetic operator.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// AggFunc is an aggregate function.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggFirst AggFunc = "first"
)

// TypeError reports an expression whose operand types have no rule.
type TypeError struct {
	Op      string
	Operand ir.SQLType
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("operator %s does not accept %s operands", e.Op, e.Operand)
}

// ConcatType types a string concatenation: always VARCHAR, nullable if any
// operand is nullable.
func ConcatType(operands ...Typed) Typed {
	out := Typed{Type: ir.TypeVarchar}
	for _, o := range operands {
		if o.Nullable || o.Type == ir.TypeNull {
			out.Nullable = true
		}
	}
	return out
}

// ArithType types a binary arithmetic expression. Both operands must be
// numeric (or NULL). Division yields DOUBLE, or DECIMAL when an operand is
// DECIMAL, and is always nullable: division by zero produces null.
func ArithType(op ArithOp, a, b Typed) (Typed, error) {
	for _, o := range []Typed{a, b} {
		if o.Type != ir.TypeNull && !o.Type.IsNumeric() {
			return Typed{}, &TypeError{Op: string(op), Operand: o.Type}
		}
	}
	out := Typed{
		Type:     ir.Widen(a.Type, b.Type),
		Nullable: a.Nullable || b.Nullable || a.Type == ir.TypeNull || b.Type == ir.TypeNull,
	}
	if op == OpDiv {
		if out.Type != ir.TypeDecimal {
			out.Type = ir.TypeDouble
		}
		out.Nullable = true
	}
	if out.Type == ir.TypeNull {
		out.Type = ir.TypeDouble
	}
	return out, nil
}

// CompareType types a comparison: BOOLEAN, nullable if either side is.
func CompareType(a, b Typed) Typed {
	return Typed{Type: ir.TypeBoolean, Nullable: a.Nullable || b.Nullable}
}

// LogicType types AND/OR/NOT over the operands.
func LogicType(operands ...Typed) Typed {
	out := Typed{Type: ir.TypeBoolean}
	for _, o := range operands {
		out.Nullable = out.Nullable || o.Nullable
	}
	return out
}

// CastType types CAST(src AS target). The result is nullable when the
// source is or when the conversion may fail at runtime (a failed cast yields
// null).
func CastType(src Typed, target ir.SQLType) Typed {
	return Typed{
		Type:     target,
		Nullable: src.Nullable || CastMayFail(src.Type, target),
	}
}

// CastMayFail reports whether converting from to to can fail for some
// value of from.
func CastMayFail(from, to ir.SQLType) bool {
	switch {
	case from == to, from == ir.TypeNull:
		return false
	case to == ir.TypeVarchar:
		return from == ir.TypeBinary || from == ir.TypeOther
	case from.IsNumeric() && to.IsNumeric():
		// Widening never fails; narrowing may overflow.
		return to < from
	case from.IsNumeric() && to == ir.TypeBoolean:
		return false
	case from == ir.TypeBoolean && to.IsNumeric():
		return false
	case (from == ir.TypeInteger || from == ir.TypeBigInt) && to == ir.TypeTimestamp:
		return false
	case from == ir.TypeTimestamp && to == ir.TypeBigInt:
		return false
	}
	return true
}

// AggregateType types an aggregate over arg.
func AggregateType(fn AggFunc, arg Typed) (Typed, error) {
	switch fn {
	case AggCount:
		return Typed{Type: ir.TypeBigInt}, nil
	case AggSum:
		switch arg.Type {
		case ir.TypeNull, ir.TypeInteger, ir.TypeBigInt:
			return Typed{Type: ir.TypeBigInt}, nil
		case ir.TypeDouble, ir.TypeDecimal:
			return Typed{Type: arg.Type}, nil
		case ir.TypeOther:
			return Typed{Type: ir.TypeOther, Nullable: true}, nil
		}
		return Typed{}, &TypeError{Op: string(fn), Operand: arg.Type}
	case AggAvg:
		switch {
		case arg.Type == ir.TypeDecimal:
			return Typed{Type: ir.TypeDecimal, Nullable: true}, nil
		case arg.Type.IsNumeric(), arg.Type == ir.TypeNull:
			return Typed{Type: ir.TypeDouble, Nullable: true}, nil
		case arg.Type == ir.TypeOther:
			return Typed{Type: ir.TypeOther, Nullable: true}, nil
		}
		return Typed{}, &TypeError{Op: string(fn), Operand: arg.Type}
	case AggMin, AggMax, AggFirst:
		return Typed{Type: arg.Type, Nullable: true}, nil
	}
	return Typed{}, fmt.Errorf("unknown aggregate %q", fn)
}

// DisplaySize returns the maximum display width of a column of type t.
// Zero means unbounded.
func DisplaySize(t ir.SQLType) int {
	switch t {
	case ir.TypeBoolean:
		return 5
	case ir.TypeInteger:
		return 11
	case ir.TypeBigInt:
		return 20
	case ir.TypeDouble:
		return 24
	case ir.TypeDecimal:
		return 36
	case ir.TypeTimestamp:
		return len(DateTimeLayout)
	}
	return 0
}

// Precision returns the column precision: decimal digits for numbers,
// characters for timestamps, zero when unbounded.
func Precision(t ir.SQLType) int {
	switch t {
	case ir.TypeBoolean:
		return 1
	case ir.TypeInteger:
		return 10
	case ir.TypeBigInt:
		return 19
	case ir.TypeDouble:
		return 15
	case ir.TypeDecimal:
		return 34
	case ir.TypeTimestamp:
		return len(DateTimeLayout)
	}
	return 0
}

// Scale returns the digits after the decimal point.
func Scale(t ir.SQLType) int {
	switch t {
	case ir.TypeDouble:
		return 15
	case ir.TypeDecimal:
		return 34
	case ir.TypeTimestamp:
		return 3
	}
	return 0
}

// Meta fills the type-dependent fields of a column descriptor.
func Meta(c ir.ColumnMeta) ir.ColumnMeta {
	c.DisplaySize = DisplaySize(c.Type)
	c.Precision = Precision(c.Type)
	c.Scale = Scale(c.Type)
	return c
}

// LiteralType returns the static type of a literal value.
func LiteralType(v ir.Value) Typed {
	if ir.IsNull(v) {
		return Typed{Type: ir.TypeNull, Nullable: true}
	}
	return Typed{Type: ir.TypeOfKind(v.Kind())}
}
