package queryir

import (
	"strconv"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
)

// Node is one relational operator of a plan.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	planNode() // Marker method - seals interface to this package
}

// Scan reads every row of a virtual table.
type Scan struct {
	Table string
}

// Filter keeps the rows of Input for which Cond is true.
type Filter struct {
	Input Node
	Cond  Expr
}

// ProjectItem is one output column of a Project.
type ProjectItem struct {
	Expr  Expr
	Label string // output label; empty means derived from the expression
}

// Project computes the output columns.
type Project struct {
	Input Node
	Items []ProjectItem
}

// JoinKind distinguishes inner and left outer joins.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
)

// Join combines two inputs on an equality condition.
type Join struct {
	Kind  JoinKind
	Left  Node
	Right Node
	On    Expr
}

// AggItem is one aggregate output of an Aggregate.
// Arg is nil for COUNT(*).
type AggItem struct {
	Func  coerce.AggFunc
	Arg   Expr
	Label string
}

// Aggregate groups Input by GroupBy and computes Aggs per group.
type Aggregate struct {
	Input   Node
	GroupBy []*ColumnRef
	Aggs    []AggItem
}

// SortKey is one ordering key.
type SortKey struct {
	Expr Expr
	Desc bool
}

// Sort orders the rows of Input.
type Sort struct {
	Input Node
	Keys  []SortKey
}

// Limit keeps the first N rows.
type Limit struct {
	Input Node
	N     int64
}

// Skip drops the first N rows.
type Skip struct {
	Input Node
	N     int64
}

func (*Scan) planNode()      {}
func (*Filter) planNode()    {}
func (*Project) planNode()   {}
func (*Join) planNode()      {}
func (*Aggregate) planNode() {}
func (*Sort) planNode()      {}
func (*Limit) planNode()     {}
func (*Skip) planNode()      {}

// Expr is a scalar expression.
//
// This is a sealed interface - only types in this package implement it.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// ColumnRef references a column; Table may be empty when the column name
// is unambiguous across the scanned tables.
type ColumnRef struct {
	Table  string
	Column string
}

// AggRef references an aggregate output by label, above an Aggregate.
type AggRef struct {
	Label string
}

// Literal is a constant.
type Literal struct {
	Value ir.Value
}

// CmpOp is a comparison operator.
type CmpOp string

const (
	OpEq CmpOp = "="
	OpNe CmpOp = "<>"
	OpLt CmpOp = "<"
	OpLe CmpOp = "<="
	OpGt CmpOp = ">"
	OpGe CmpOp = ">="
)

// Compare compares two expressions.
type Compare struct {
	Op    CmpOp
	Left  Expr
	Right Expr
}

// And is true when every term is true.
type And struct {
	Terms []Expr
}

// Or is true when any term is true.
type Or struct {
	Terms []Expr
}

// Not negates its operand.
type Not struct {
	Expr Expr
}

// IsNull tests for null (or absence); Negate gives IS NOT NULL.
type IsNull struct {
	Expr   Expr
	Negate bool
}

// Concat concatenates its arguments as strings.
type Concat struct {
	Args []Expr
}

// Cast converts Expr to To; a failed conversion yields null.
type Cast struct {
	Expr Expr
	To   ir.SQLType
}

// Arith applies a binary arithmetic operator.
type Arith struct {
	Op    coerce.ArithOp
	Left  Expr
	Right Expr
}

func (*ColumnRef) exprNode() {}
func (*AggRef) exprNode()    {}
func (*Literal) exprNode()   {}
func (*Compare) exprNode()   {}
func (*And) exprNode()       {}
func (*Or) exprNode()        {}
func (*Not) exprNode()       {}
func (*IsNull) exprNode()    {}
func (*Concat) exprNode()    {}
func (*Cast) exprNode()      {}
func (*Arith) exprNode()     {}

// Col builds a column reference. An unqualified reference passes "" as table.
func Col(table, column string) *ColumnRef {
	return &ColumnRef{Table: table, Column: column}
}

// Lit builds a literal.
func Lit(v ir.Value) *Literal {
	return &Literal{Value: v}
}

// Cmp builds a comparison.
func Cmp(op CmpOp, left, right Expr) *Compare {
	return &Compare{Op: op, Left: left, Right: right}
}

// Eq builds an equality comparison.
func Eq(left, right Expr) *Compare {
	return Cmp(OpEq, left, right)
}

// OutputLabel returns the item's label, or the label it gets when none is
// given: the column name for column references, the aggregate label for
// AggRefs and "expr<pos>" otherwise.
func (p ProjectItem) OutputLabel(pos int) string {
	if p.Label != "" {
		return p.Label
	}
	switch e := p.Expr.(type) {
	case *ColumnRef:
		return e.Column
	case *AggRef:
		return e.Label
	}
	return "expr" + strconv.Itoa(pos)
}
