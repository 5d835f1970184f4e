package planspec

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/queryir"
)

//go:embed plan.cue
var planDefinition string

// definitionFile names the embedded definition in CUE positions.
const definitionFile = "docsql/plan.cue"

// planFields are the fields a plan struct may carry.
var planFields = map[string]bool{
	"from": true, "join": true, "where": true, "group_by": true,
	"aggregate": true, "having": true, "select": true, "order_by": true,
	"skip": true, "limit": true,
}

// LoadFile reads and compiles the plan in a CUE file.
func LoadFile(path string) (queryir.Node, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(path, src)
}

// Parse compiles the plan defined by CUE source. filename is used in
// error positions.
func Parse(filename string, src []byte) (queryir.Node, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	planVal := v.LookupPath(cue.ParsePath("plan"))
	if !planVal.Exists() {
		return nil, &CompileError{
			Field:   "plan",
			Message: "plan is required",
			Pos:     v.Pos(),
		}
	}
	if err := checkDefinition(ctx, planVal); err != nil {
		return nil, err
	}
	return Compile(planVal)
}

// checkDefinition unifies the plan with the embedded #Plan definition.
func checkDefinition(ctx *cue.Context, planVal cue.Value) error {
	def := ctx.CompileString(planDefinition, cue.Filename(definitionFile))
	if err := def.Err(); err != nil {
		return fmt.Errorf("plan definition: %w", err)
	}
	unified := def.LookupPath(cue.ParsePath("#Plan")).Unify(planVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// Compile turns a plan struct into a queryir tree and validates it.
func Compile(v cue.Value) (queryir.Node, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		if !planFields[iter.Selector().String()] {
			return nil, &CompileError{
				Field:   iter.Selector().String(),
				Message: "unknown plan field",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	fromVal := v.LookupPath(cue.ParsePath("from"))
	if !fromVal.Exists() {
		return nil, &CompileError{Field: "from", Message: "from is required", Pos: v.Pos()}
	}
	from, err := fromVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var node queryir.Node = &queryir.Scan{Table: from}

	node, err = compileJoins(v, node)
	if err != nil {
		return nil, err
	}

	node, err = compileFilters(v.LookupPath(cue.ParsePath("where")), node)
	if err != nil {
		return nil, err
	}

	groupVal := v.LookupPath(cue.ParsePath("group_by"))
	aggVal := v.LookupPath(cue.ParsePath("aggregate"))
	if groupVal.Exists() || aggVal.Exists() {
		agg := &queryir.Aggregate{Input: node}
		if agg.GroupBy, err = compileGroupBy(groupVal); err != nil {
			return nil, err
		}
		if agg.Aggs, err = compileAggs(aggVal); err != nil {
			return nil, err
		}
		node = agg
	}

	havingVal := v.LookupPath(cue.ParsePath("having"))
	if havingVal.Exists() && !groupVal.Exists() && !aggVal.Exists() {
		return nil, &CompileError{Field: "having", Message: "having needs group_by or aggregate", Pos: havingVal.Pos()}
	}
	node, err = compileFilters(havingVal, node)
	if err != nil {
		return nil, err
	}

	if selVal := v.LookupPath(cue.ParsePath("select")); selVal.Exists() {
		items, err := compileSelect(selVal)
		if err != nil {
			return nil, err
		}
		node = &queryir.Project{Input: node, Items: items}
	}

	if orderVal := v.LookupPath(cue.ParsePath("order_by")); orderVal.Exists() {
		keys, err := compileOrder(orderVal)
		if err != nil {
			return nil, err
		}
		node = &queryir.Sort{Input: node, Keys: keys}
	}

	if n, ok, err := count(v, "skip"); err != nil {
		return nil, err
	} else if ok {
		node = &queryir.Skip{Input: node, N: n}
	}
	if n, ok, err := count(v, "limit"); err != nil {
		return nil, err
	} else if ok {
		node = &queryir.Limit{Input: node, N: n}
	}

	if err := queryir.Validate(node); err != nil {
		return nil, &CompileError{Field: "plan", Message: err.Error(), Pos: v.Pos()}
	}
	return node, nil
}

func compileJoins(v cue.Value, left queryir.Node) (queryir.Node, error) {
	joinVal := v.LookupPath(cue.ParsePath("join"))
	if !joinVal.Exists() {
		return left, nil
	}
	iter, err := joinVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		jv := iter.Value()
		table, err := jv.LookupPath(cue.ParsePath("table")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		kind := queryir.JoinInner
		if kv := jv.LookupPath(cue.ParsePath("kind")); kv.Exists() {
			s, err := kv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			switch queryir.JoinKind(s) {
			case queryir.JoinInner, queryir.JoinLeft:
				kind = queryir.JoinKind(s)
			default:
				return nil, &CompileError{
					Field:   "join.kind",
					Message: fmt.Sprintf("invalid join kind %q, must be \"inner\" or \"left\"", s),
					Pos:     kv.Pos(),
				}
			}
		}

		onVal := jv.LookupPath(cue.ParsePath("on"))
		if !onVal.Exists() {
			return nil, &CompileError{Field: "join.on", Message: "join condition is required", Pos: jv.Pos()}
		}
		on, err := compileExpr(onVal)
		if err != nil {
			return nil, err
		}

		var right queryir.Node = &queryir.Scan{Table: table}
		right, err = compileFilters(jv.LookupPath(cue.ParsePath("where")), right)
		if err != nil {
			return nil, err
		}
		left = &queryir.Join{Kind: kind, Left: left, Right: right, On: on}
	}
	return left, nil
}

// compileFilters stacks one Filter per condition. v may be a single
// expression or a list of them.
func compileFilters(v cue.Value, input queryir.Node) (queryir.Node, error) {
	if !v.Exists() {
		return input, nil
	}
	conds := []cue.Value{v}
	if v.IncompleteKind() == cue.ListKind {
		conds = nil
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			conds = append(conds, iter.Value())
		}
	}
	for _, c := range conds {
		cond, err := compileExpr(c)
		if err != nil {
			return nil, err
		}
		input = &queryir.Filter{Input: input, Cond: cond}
	}
	return input, nil
}

func compileGroupBy(v cue.Value) ([]*queryir.ColumnRef, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*queryir.ColumnRef
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, columnRef(s))
	}
	return out, nil
}

func compileAggs(v cue.Value) ([]queryir.AggItem, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []queryir.AggItem
	for iter.Next() {
		av := iter.Value()
		fn, err := av.LookupPath(cue.ParsePath("func")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		label, err := av.LookupPath(cue.ParsePath("label")).String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		item := queryir.AggItem{Func: coerce.AggFunc(strings.ToLower(fn)), Label: label}
		if argVal := av.LookupPath(cue.ParsePath("arg")); argVal.Exists() {
			if item.Arg, err = compileExpr(argVal); err != nil {
				return nil, err
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func compileSelect(v cue.Value) ([]queryir.ProjectItem, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []queryir.ProjectItem
	for iter.Next() {
		iv := iter.Value()
		exprVal, label := iv, ""
		if iv.IncompleteKind() == cue.StructKind {
			if e := iv.LookupPath(cue.ParsePath("expr")); e.Exists() {
				exprVal = e
				if as := iv.LookupPath(cue.ParsePath("as")); as.Exists() {
					if label, err = as.String(); err != nil {
						return nil, formatCUEError(err)
					}
				}
			}
		}
		expr, err := compileExpr(exprVal)
		if err != nil {
			return nil, err
		}
		out = append(out, queryir.ProjectItem{Expr: expr, Label: label})
	}
	return out, nil
}

func compileOrder(v cue.Value) ([]queryir.SortKey, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []queryir.SortKey
	for iter.Next() {
		kv := iter.Value()
		exprVal, desc := kv, false
		if kv.IncompleteKind() == cue.StructKind {
			if e := kv.LookupPath(cue.ParsePath("expr")); e.Exists() {
				exprVal = e
				if d := kv.LookupPath(cue.ParsePath("desc")); d.Exists() {
					if desc, err = d.Bool(); err != nil {
						return nil, formatCUEError(err)
					}
				}
			}
		}
		expr, err := compileExpr(exprVal)
		if err != nil {
			return nil, err
		}
		out = append(out, queryir.SortKey{Expr: expr, Desc: desc})
	}
	return out, nil
}

func count(v cue.Value, field string) (int64, bool, error) {
	nv := v.LookupPath(cue.ParsePath(field))
	if !nv.Exists() {
		return 0, false, nil
	}
	n, err := nv.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	if n < 0 {
		return 0, false, &CompileError{Field: field, Message: "must not be negative", Pos: nv.Pos()}
	}
	return n, true, nil
}
