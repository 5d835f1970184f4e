package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
)

func TestValidate_SimpleSelect(t *testing.T) {
	// SELECT sku FROM orders_items WHERE qty > 1 LIMIT 10
	plan := &Limit{
		N: 10,
		Input: &Project{
			Items: []ProjectItem{{Expr: Col("", "sku")}},
			Input: &Filter{
				Cond:  Cmp(OpGt, Col("", "qty"), Lit(ir.Int32(1))),
				Input: &Scan{Table: "orders_items"},
			},
		},
	}

	assert.NoError(t, Validate(plan))
}

func TestValidate_JoinWithAggregate(t *testing.T) {
	// SELECT o.status, COUNT(*) AS n FROM orders o JOIN orders_items i
	// ON o._id = i._id GROUP BY o.status HAVING n > 2 ORDER BY n DESC
	plan := &Sort{
		Keys: []SortKey{{Expr: &AggRef{Label: "n"}, Desc: true}},
		Input: &Project{
			Items: []ProjectItem{
				{Expr: Col("orders", "status")},
				{Expr: &AggRef{Label: "n"}},
			},
			Input: &Filter{
				Cond: Cmp(OpGt, &AggRef{Label: "n"}, Lit(ir.Int64(2))),
				Input: &Aggregate{
					GroupBy: []*ColumnRef{Col("orders", "status")},
					Aggs:    []AggItem{{Func: coerce.AggCount, Label: "n"}},
					Input: &Join{
						Kind:  JoinInner,
						Left:  &Scan{Table: "orders"},
						Right: &Scan{Table: "orders_items"},
						On:    Eq(Col("orders", "_id"), Col("orders_items", "_id")),
					},
				},
			},
		},
	}

	assert.NoError(t, Validate(plan))
}

func TestValidate_NilPlan(t *testing.T) {
	err := Validate(nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"nil plan"}, verr.Problems)
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name string
		plan Node
		want string
	}{
		{
			name: "empty scan",
			plan: &Scan{},
			want: "scan without a table name",
		},
		{
			name: "duplicate scan",
			plan: &Join{
				Kind:  JoinInner,
				Left:  &Scan{Table: "orders"},
				Right: &Scan{Table: "orders"},
				On:    Eq(Col("orders", "_id"), Col("orders", "_id")),
			},
			want: `table "orders" is scanned more than once`,
		},
		{
			name: "join without on",
			plan: &Join{Kind: JoinLeft, Left: &Scan{Table: "a"}, Right: &Scan{Table: "b"}},
			want: "join without an ON condition",
		},
		{
			name: "bad join kind",
			plan: &Join{
				Kind:  "cross",
				Left:  &Scan{Table: "a"},
				Right: &Scan{Table: "b"},
				On:    Eq(Col("a", "x"), Col("b", "x")),
			},
			want: `join kind "cross"`,
		},
		{
			name: "negative limit",
			plan: &Limit{N: -1, Input: &Scan{Table: "a"}},
			want: "negative limit -1",
		},
		{
			name: "negative skip",
			plan: &Skip{N: -5, Input: &Scan{Table: "a"}},
			want: "negative skip -5",
		},
		{
			name: "empty projection",
			plan: &Project{Input: &Scan{Table: "a"}},
			want: "projection without items",
		},
		{
			name: "duplicate label",
			plan: &Project{
				Input: &Scan{Table: "a"},
				Items: []ProjectItem{{Expr: Col("", "x")}, {Expr: Col("", "y"), Label: "x"}},
			},
			want: `duplicate output label "x"`,
		},
		{
			name: "empty aggregate",
			plan: &Aggregate{Input: &Scan{Table: "a"}},
			want: "aggregate without group keys or aggregates",
		},
		{
			name: "sum without argument",
			plan: &Aggregate{
				Input: &Scan{Table: "a"},
				Aggs:  []AggItem{{Func: coerce.AggSum, Label: "total"}},
			},
			want: "sum(total) needs an argument",
		},
		{
			name: "aggregate without label",
			plan: &Aggregate{
				Input: &Scan{Table: "a"},
				Aggs:  []AggItem{{Func: coerce.AggCount}},
			},
			want: "count aggregate without a label",
		},
		{
			name: "agg ref without aggregate",
			plan: &Project{
				Input: &Scan{Table: "a"},
				Items: []ProjectItem{{Expr: &AggRef{Label: "n"}}},
			},
			want: `aggregate reference "n" outside an aggregation`,
		},
		{
			name: "unknown comparison",
			plan: &Filter{
				Input: &Scan{Table: "a"},
				Cond:  Cmp("~", Col("", "x"), Lit(ir.Int32(1))),
			},
			want: `unknown comparison operator "~"`,
		},
		{
			name: "empty and",
			plan: &Filter{Input: &Scan{Table: "a"}, Cond: &And{}},
			want: "AND without terms",
		},
		{
			name: "cast to other",
			plan: &Project{
				Input: &Scan{Table: "a"},
				Items: []ProjectItem{{Expr: &Cast{Expr: Col("", "x"), To: ir.TypeOther}}},
			},
			want: "cannot cast to OTHER",
		},
		{
			name: "literal without value",
			plan: &Filter{Input: &Scan{Table: "a"}, Cond: Eq(Col("", "x"), &Literal{})},
			want: "literal without a value",
		},
		{
			name: "empty sort",
			plan: &Sort{Input: &Scan{Table: "a"}},
			want: "sort without keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.plan)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Problems)
			assert.Contains(t, verr.Problems[0], tt.want)
		})
	}
}

func TestValidate_AccumulatesProblems(t *testing.T) {
	plan := &Limit{
		N: -1,
		Input: &Project{
			Input: &Scan{},
		},
	}

	err := Validate(plan)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 3)
	assert.Contains(t, err.Error(), "3 problems")
}

func TestDecompose_Shape(t *testing.T) {
	scan := &Scan{Table: "orders"}
	where1 := Cmp(OpGt, Col("", "total"), Lit(ir.Int32(0)))
	where2 := &IsNull{Expr: Col("", "status"), Negate: true}
	agg := &Aggregate{
		GroupBy: []*ColumnRef{Col("", "status")},
		Aggs:    []AggItem{{Func: coerce.AggSum, Arg: Col("", "total"), Label: "sum"}},
		Input:   &Filter{Cond: where2, Input: &Filter{Cond: where1, Input: scan}},
	}
	having := Cmp(OpGe, &AggRef{Label: "sum"}, Lit(ir.Int32(10)))
	proj := &Project{
		Items: []ProjectItem{{Expr: Col("", "status")}, {Expr: &AggRef{Label: "sum"}}},
		Input: &Filter{Cond: having, Input: agg},
	}
	sort := &Sort{Keys: []SortKey{{Expr: Col("", "status")}}, Input: proj}
	skip := &Skip{N: 1, Input: sort}
	limit := &Limit{N: 5, Input: skip}

	q, err := Decompose(limit)
	require.NoError(t, err)

	assert.Same(t, scan, q.From)
	assert.Equal(t, []Expr{where1, where2}, q.Where)
	assert.Same(t, agg, q.Aggregate)
	assert.Equal(t, []Expr{having}, q.Having)
	assert.Same(t, proj, q.Project)
	assert.Equal(t, []Node{sort, skip, limit}, q.Tail)
	assert.Equal(t, []string{"orders"}, q.Scans())
}

func TestDecompose_TailBelowProject(t *testing.T) {
	scan := &Scan{Table: "orders"}
	sort := &Sort{Keys: []SortKey{{Expr: Col("", "created")}}, Input: scan}
	proj := &Project{Items: []ProjectItem{{Expr: Col("", "status")}}, Input: sort}
	limit := &Limit{N: 3, Input: proj}

	q, err := Decompose(limit)
	require.NoError(t, err)

	assert.Equal(t, []Node{sort, limit}, q.Tail)
	assert.Nil(t, q.Aggregate)
	assert.Empty(t, q.Where)
}

func TestDecompose_NoProject(t *testing.T) {
	q, err := Decompose(&Scan{Table: "orders"})
	require.NoError(t, err)

	assert.Nil(t, q.Project)
	assert.Equal(t, []string{"orders"}, q.Scans())
}

func TestDecompose_UnexpectedNode(t *testing.T) {
	// A Limit below a Filter is not a single SELECT.
	plan := &Filter{
		Cond: Eq(Col("", "x"), Lit(ir.Int32(1))),
		Input: &Limit{
			N:     1,
			Input: &Scan{Table: "a"},
		},
	}

	_, err := Decompose(plan)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems[0], "unexpected Limit")
}

func TestQuery_ScansJoinOrder(t *testing.T) {
	plan := &Join{
		Kind: JoinLeft,
		Left: &Join{
			Kind:  JoinInner,
			Left:  &Scan{Table: "orders"},
			Right: &Filter{Cond: Eq(Col("", "sku"), Lit(ir.String("a"))), Input: &Scan{Table: "orders_items"}},
			On:    Eq(Col("orders", "_id"), Col("orders_items", "_id")),
		},
		Right: &Scan{Table: "customers"},
		On:    Eq(Col("orders", "customer"), Col("customers", "_id")),
	}

	q, err := Decompose(plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "orders_items", "customers"}, q.Scans())
	assert.NoError(t, Validate(plan))
}
