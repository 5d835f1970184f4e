package memdb

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/docsql/internal/ir"
)

// accumulator folds the values of one output field over a group.
type accumulator interface {
	add(v ir.Value) error
	result() (ir.Value, error)
}

type groupState struct {
	key  ir.Value
	accs []accumulator
}

// group implements $group. Groups are emitted in first-seen order; keys
// compare with store equality, so 1 and 1.0 share a group.
func group(docs []ir.Document, body ir.Value, vars map[string]ir.Value) ([]ir.Document, error) {
	spec, ok := body.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("$group needs a document")
	}
	idExpr, ok := spec.Get(ir.IDField)
	if !ok {
		return nil, fmt.Errorf("$group needs an _id")
	}
	type output struct {
		name string
		op   string
		expr ir.Value
	}
	var outputs []output
	for _, f := range spec {
		if f.Key == ir.IDField {
			continue
		}
		acc, ok := f.Value.(ir.Document)
		if !ok || len(acc) != 1 {
			return nil, fmt.Errorf("field %q must be an accumulator document", f.Key)
		}
		if _, err := newAccumulator(acc[0].Key); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		outputs = append(outputs, output{name: f.Key, op: acc[0].Key, expr: acc[0].Value})
	}

	var groups []*groupState
	for _, doc := range docs {
		key, err := eval(doc, idExpr, vars)
		if err != nil {
			return nil, fmt.Errorf("_id: %w", err)
		}
		if key == nil {
			key = ir.Null{}
		}
		idx := slices.IndexFunc(groups, func(g *groupState) bool { return ir.Equal(g.key, key) })
		if idx < 0 {
			g := &groupState{key: key}
			for _, o := range outputs {
				acc, _ := newAccumulator(o.op)
				g.accs = append(g.accs, acc)
			}
			groups = append(groups, g)
			idx = len(groups) - 1
		}
		for i, o := range outputs {
			v, err := eval(doc, o.expr, vars)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", o.name, err)
			}
			if err := groups[idx].accs[i].add(v); err != nil {
				return nil, fmt.Errorf("field %q: %w", o.name, err)
			}
		}
	}

	out := make([]ir.Document, 0, len(groups))
	for _, g := range groups {
		doc := ir.D(ir.F(ir.IDField, g.key))
		for i, o := range outputs {
			v, err := g.accs[i].result()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", o.name, err)
			}
			doc = append(doc, ir.F(o.name, v))
		}
		out = append(out, doc)
	}
	return out, nil
}

func newAccumulator(op string) (accumulator, error) {
	switch op {
	case "$sum":
		return &sumAcc{}, nil
	case "$count":
		return &countAcc{}, nil
	case "$avg":
		return &avgAcc{}, nil
	case "$min":
		return &extremeAcc{sign: -1}, nil
	case "$max":
		return &extremeAcc{sign: 1}, nil
	case "$first":
		return &firstAcc{}, nil
	case "$last":
		return &lastAcc{}, nil
	case "$push":
		return &pushAcc{}, nil
	}
	return nil, fmt.Errorf("unknown accumulator %s", op)
}

// sumAcc adds numeric values exactly and ignores everything else. The
// result kind is the widest input kind, overflowing int32 to int64 to
// double.
type sumAcc struct {
	total  apd.Decimal
	widest ir.Kind
}

func (a *sumAcc) add(v ir.Value) error {
	if v == nil || !v.Kind().IsNumeric() {
		return nil
	}
	d, err := ir.ToAPD(v)
	if err != nil {
		return err
	}
	if a.widest == 0 || rank(v.Kind()) > rank(a.widest) {
		a.widest = v.Kind()
	}
	_, err = integerContext.Add(&a.total, &a.total, d)
	return err
}

func (a *sumAcc) result() (ir.Value, error) {
	if a.widest == 0 {
		return ir.Int32(0), nil
	}
	return narrow(&a.total, a.widest)
}

type countAcc struct{ n int64 }

func (a *countAcc) add(ir.Value) error {
	a.n++
	return nil
}

func (a *countAcc) result() (ir.Value, error) {
	return narrow(apd.New(a.n, 0), ir.KindInt32)
}

// avgAcc averages numeric values; the mean of no values is null.
type avgAcc struct {
	sum sumAcc
	n   int64
}

func (a *avgAcc) add(v ir.Value) error {
	if v == nil || !v.Kind().IsNumeric() {
		return nil
	}
	a.n++
	return a.sum.add(v)
}

func (a *avgAcc) result() (ir.Value, error) {
	if a.n == 0 {
		return ir.Null{}, nil
	}
	var q apd.Decimal
	if _, err := decimalContext.Quo(&q, &a.sum.total, apd.New(a.n, 0)); err != nil {
		return nil, err
	}
	if a.sum.widest == ir.KindDecimal128 {
		return decimalValue(&q)
	}
	f, err := q.Float64()
	return ir.Double(f), err
}

// extremeAcc keeps the least (sign -1) or greatest (sign 1) non-null value.
type extremeAcc struct {
	sign int
	best ir.Value
}

func (a *extremeAcc) add(v ir.Value) error {
	if ir.IsNull(v) {
		return nil
	}
	if a.best == nil || ir.Compare(v, a.best)*a.sign > 0 {
		a.best = v
	}
	return nil
}

func (a *extremeAcc) result() (ir.Value, error) {
	if a.best == nil {
		return ir.Null{}, nil
	}
	return a.best, nil
}

type firstAcc struct {
	seen bool
	v    ir.Value
}

func (a *firstAcc) add(v ir.Value) error {
	if !a.seen {
		a.seen, a.v = true, v
	}
	return nil
}

func (a *firstAcc) result() (ir.Value, error) {
	if a.v == nil {
		return ir.Null{}, nil
	}
	return a.v, nil
}

type lastAcc struct{ v ir.Value }

func (a *lastAcc) add(v ir.Value) error {
	a.v = v
	return nil
}

func (a *lastAcc) result() (ir.Value, error) {
	if a.v == nil {
		return ir.Null{}, nil
	}
	return a.v, nil
}

// pushAcc collects values in input order, skipping missing ones.
type pushAcc struct{ vals ir.Array }

func (a *pushAcc) add(v ir.Value) error {
	if v != nil {
		a.vals = append(a.vals, v)
	}
	return nil
}

func (a *pushAcc) result() (ir.Value, error) {
	if a.vals == nil {
		return ir.Array{}, nil
	}
	return a.vals, nil
}
