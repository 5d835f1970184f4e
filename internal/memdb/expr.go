package memdb

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
)

// ErrDivideByZero is returned by $divide with a zero divisor.
var ErrDivideByZero = errors.New("can't divide by zero")

// decimalContext is the arithmetic context for Decimal128 operands.
var decimalContext = apd.BaseContext.WithPrecision(34)

// integerContext is wide enough that int64 sums and products are exact.
var integerContext = apd.BaseContext.WithPrecision(64)

// eval evaluates an aggregation expression against doc. A nil result means
// the expression referenced a missing field.
func eval(doc ir.Document, e ir.Value, vars map[string]ir.Value) (ir.Value, error) {
	switch x := e.(type) {
	case ir.String:
		s := string(x)
		switch {
		case strings.HasPrefix(s, "$$"):
			return variable(doc, s[2:], vars)
		case strings.HasPrefix(s, "$"):
			v, _ := lookupPath(doc, s[1:])
			return v, nil
		}
		return x, nil
	case ir.Document:
		if len(x) == 1 && strings.HasPrefix(x[0].Key, "$") {
			return operator(doc, x[0].Key, x[0].Value, vars)
		}
		out := make(ir.Document, 0, len(x))
		for _, f := range x {
			v, err := eval(doc, f.Value, vars)
			if err != nil {
				return nil, err
			}
			if v != nil {
				out = append(out, ir.F(f.Key, v))
			}
		}
		return out, nil
	case ir.Array:
		out := make(ir.Array, len(x))
		for i, elem := range x {
			v, err := eval(doc, elem, vars)
			if err != nil {
				return nil, err
			}
			if v == nil {
				v = ir.Null{}
			}
			out[i] = v
		}
		return out, nil
	}
	return e, nil
}

func variable(doc ir.Document, ref string, vars map[string]ir.Value) (ir.Value, error) {
	name, path, nested := strings.Cut(ref, ".")
	var v ir.Value
	switch name {
	case "ROOT", "CURRENT":
		v = doc
	default:
		bound, ok := vars[name]
		if !ok {
			return nil, fmt.Errorf("use of undefined variable: %s", name)
		}
		v = bound
	}
	if !nested {
		return v, nil
	}
	res, _ := lookupValue(v, strings.Split(path, "."))
	return res, nil
}

// args evaluates an operator's argument list. A non-array argument is a
// single operand.
func args(doc ir.Document, arg ir.Value, vars map[string]ir.Value) ([]ir.Value, error) {
	list, ok := arg.(ir.Array)
	if !ok {
		list = ir.A(arg)
	}
	out := make([]ir.Value, len(list))
	for i, a := range list {
		v, err := eval(doc, a, vars)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func operator(doc ir.Document, op string, arg ir.Value, vars map[string]ir.Value) (ir.Value, error) {
	if op == "$literal" {
		return arg, nil
	}
	if op == "$cond" {
		return cond(doc, arg, vars)
	}
	if op == "$convert" {
		return convert(doc, arg, vars)
	}

	xs, err := args(doc, arg, vars)
	if err != nil {
		return nil, err
	}
	switch op {
	case "$eq", "$ne", "$lt", "$lte", "$gt", "$gte":
		if len(xs) != 2 {
			return nil, fmt.Errorf("%s takes exactly 2 arguments", op)
		}
		return ir.Bool(compareOp(op, compareExpr(xs[0], xs[1]))), nil
	case "$and":
		for _, x := range xs {
			if !truthy(x) {
				return ir.Bool(false), nil
			}
		}
		return ir.Bool(true), nil
	case "$or":
		for _, x := range xs {
			if truthy(x) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case "$not":
		if len(xs) != 1 {
			return nil, fmt.Errorf("$not takes exactly 1 argument")
		}
		return ir.Bool(!truthy(xs[0])), nil
	case "$ifNull":
		if len(xs) < 2 {
			return nil, fmt.Errorf("$ifNull needs at least 2 arguments")
		}
		for _, x := range xs[:len(xs)-1] {
			if !ir.IsNull(x) {
				return x, nil
			}
		}
		return xs[len(xs)-1], nil
	case "$concat":
		return concat(xs)
	case "$toString":
		if len(xs) != 1 {
			return nil, fmt.Errorf("$toString takes exactly 1 argument")
		}
		return convertTo(xs[0], "string")
	case "$toInt", "$toLong", "$toDouble", "$toDecimal", "$toBool", "$toDate":
		if len(xs) != 1 {
			return nil, fmt.Errorf("%s takes exactly 1 argument", op)
		}
		return convertTo(xs[0], shorthandTargets[op])
	case "$add", "$subtract", "$multiply", "$divide":
		return arith(op, xs)
	case "$type":
		if len(xs) != 1 {
			return nil, fmt.Errorf("$type takes exactly 1 argument")
		}
		if xs[0] == nil {
			return ir.String("missing"), nil
		}
		return ir.String(xs[0].Kind().String()), nil
	}
	return nil, fmt.Errorf("unsupported expression operator %s", op)
}

var shorthandTargets = map[string]string{
	"$toInt":     "int",
	"$toLong":    "long",
	"$toDouble":  "double",
	"$toDecimal": "decimal",
	"$toBool":    "bool",
	"$toDate":    "date",
}

// compareExpr orders expression operands. A missing operand sorts below
// every value, null included.
func compareExpr(a, b ir.Value) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return ir.Compare(a, b)
}

func compareOp(op string, c int) bool {
	switch op {
	case "$eq":
		return c == 0
	case "$ne":
		return c != 0
	case "$lt":
		return c < 0
	case "$lte":
		return c <= 0
	case "$gt":
		return c > 0
	default:
		return c >= 0
	}
}

// truthy reports the boolean meaning of a value: false, zero, null and
// missing are false.
func truthy(v ir.Value) bool {
	switch x := v.(type) {
	case nil, ir.Null:
		return false
	case ir.Bool:
		return bool(x)
	case ir.Int32, ir.Int64, ir.Double, ir.Decimal128:
		d, err := ir.ToAPD(x)
		return err != nil || !d.IsZero()
	}
	return true
}

func cond(doc ir.Document, arg ir.Value, vars map[string]ir.Value) (ir.Value, error) {
	var ifExpr, thenExpr, elseExpr ir.Value
	switch a := arg.(type) {
	case ir.Array:
		if len(a) != 3 {
			return nil, fmt.Errorf("$cond takes exactly 3 arguments")
		}
		ifExpr, thenExpr, elseExpr = a[0], a[1], a[2]
	case ir.Document:
		var ok1, ok2, ok3 bool
		ifExpr, ok1 = a.Get("if")
		thenExpr, ok2 = a.Get("then")
		elseExpr, ok3 = a.Get("else")
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("$cond needs if, then and else")
		}
	default:
		return nil, fmt.Errorf("$cond needs an array or a document")
	}
	test, err := eval(doc, ifExpr, vars)
	if err != nil {
		return nil, err
	}
	if truthy(test) {
		return eval(doc, thenExpr, vars)
	}
	return eval(doc, elseExpr, vars)
}

func concat(xs []ir.Value) (ir.Value, error) {
	var b strings.Builder
	for _, x := range xs {
		switch s := x.(type) {
		case nil, ir.Null:
			return ir.Null{}, nil
		case ir.String:
			b.WriteString(string(s))
		default:
			return nil, fmt.Errorf("$concat only supports strings, not %s", x.Kind())
		}
	}
	return ir.String(b.String()), nil
}

// convert implements $convert. Null or missing input yields onNull; a
// failed conversion yields onError when given.
func convert(doc ir.Document, arg ir.Value, vars map[string]ir.Value) (ir.Value, error) {
	spec, ok := arg.(ir.Document)
	if !ok {
		return nil, fmt.Errorf("$convert needs a document")
	}
	field := func(name string) (ir.Value, bool, error) {
		e, ok := spec.Get(name)
		if !ok {
			return nil, false, nil
		}
		v, err := eval(doc, e, vars)
		return v, true, err
	}

	input, _, err := field("input")
	if err != nil {
		return nil, err
	}
	to, hasTo, err := field("to")
	if err != nil {
		return nil, err
	}
	target, ok := to.(ir.String)
	if !hasTo || !ok {
		return nil, fmt.Errorf("$convert needs a string target type")
	}

	if ir.IsNull(input) {
		if v, ok, err := field("onNull"); ok || err != nil {
			return v, err
		}
		return ir.Null{}, nil
	}
	out, convErr := convertTo(input, string(target))
	if convErr != nil {
		if v, ok, err := field("onError"); ok || err != nil {
			return v, err
		}
		return nil, convErr
	}
	return out, nil
}

// convertTo converts v to the named target type. Numeric conversions fail
// when the value does not fit the target.
func convertTo(v ir.Value, target string) (ir.Value, error) {
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	switch target {
	case "string":
		s, _, err := coerce.ToString(v)
		if err != nil {
			return nil, err
		}
		return ir.String(s), nil
	case "bool":
		b, _, err := coerce.ToBool(v)
		if err != nil {
			return nil, err
		}
		return ir.Bool(b), nil
	case "int":
		n, err := toInteger(v, math.MinInt32, math.MaxInt32, "int")
		if err != nil {
			return nil, err
		}
		return ir.Int32(n), nil
	case "long":
		if dt, ok := v.(ir.DateTime); ok {
			return ir.Int64(dt), nil
		}
		n, err := toInteger(v, math.MinInt64, math.MaxInt64, "long")
		if err != nil {
			return nil, err
		}
		return ir.Int64(n), nil
	case "double":
		if _, ok := v.(ir.String); ok {
			d, err := coerce.ToDecimalValue(v)
			if err != nil {
				return nil, err
			}
			f, err := d.Float64()
			if err != nil {
				return nil, err
			}
			return ir.Double(f), nil
		}
		f, _, err := coerce.ToFloat64(v)
		if err != nil {
			return nil, err
		}
		return ir.Double(f), nil
	case "decimal":
		d, err := coerce.ToDecimalValue(v)
		if err != nil {
			return nil, err
		}
		return ir.ParseDecimal128(d.Text('G'))
	case "date":
		switch v.(type) {
		case ir.Int32, ir.Bool:
			return nil, &coerce.ConversionError{From: v.Kind(), To: "date"}
		}
		t, _, err := coerce.ToTime(v)
		if err != nil {
			return nil, err
		}
		return ir.NewDateTime(t), nil
	case "binData":
		b, _, err := coerce.ToBytes(v)
		if err != nil {
			return nil, err
		}
		return ir.Binary{Data: b}, nil
	case "objectId":
		if id, ok := v.(ir.ObjectID); ok {
			return id, nil
		}
		s, ok := v.(ir.String)
		if !ok {
			return nil, &coerce.ConversionError{From: v.Kind(), To: "objectId"}
		}
		return ir.ObjectIDFromHex(string(s))
	}
	return nil, fmt.Errorf("unknown conversion target %q", target)
}

// toInteger truncates a numeric or numeric-text value toward zero and
// rejects results outside [lo, hi].
func toInteger(v ir.Value, lo, hi int64, target string) (int64, error) {
	switch v.(type) {
	case ir.Int32, ir.Int64, ir.Double, ir.Decimal128, ir.Bool:
	case ir.String:
		// Strings must spell an integer.
		if strings.ContainsAny(string(v.(ir.String)), ".eE") {
			return 0, &coerce.ConversionError{From: v.Kind(), To: target}
		}
	default:
		return 0, &coerce.ConversionError{From: v.Kind(), To: target}
	}
	d, err := coerce.ToDecimalValue(v)
	if err != nil {
		return 0, err
	}
	if d.Form != apd.Finite {
		return 0, &coerce.ConversionError{From: v.Kind(), To: target, Cause: errors.New("not finite")}
	}
	var integ, frac apd.Decimal
	d.Modf(&integ, &frac)
	n, err := integ.Int64()
	if err != nil || n < lo || n > hi {
		return 0, &coerce.ConversionError{From: v.Kind(), To: target, Cause: errors.New("out of range")}
	}
	return n, nil
}

// arith evaluates $add, $subtract, $multiply and $divide. A null or
// missing operand yields null.
func arith(op string, xs []ir.Value) (ir.Value, error) {
	if op != "$add" && op != "$multiply" && len(xs) != 2 {
		return nil, fmt.Errorf("%s takes exactly 2 arguments", op)
	}
	for _, x := range xs {
		if ir.IsNull(x) {
			return ir.Null{}, nil
		}
	}
	if v, ok, err := dateArith(op, xs); ok || err != nil {
		return v, err
	}

	widest := ir.KindInt32
	for _, x := range xs {
		if !x.Kind().IsNumeric() {
			return nil, fmt.Errorf("%s only supports numeric types, not %s", op, x.Kind())
		}
		if rank(x.Kind()) > rank(widest) {
			widest = x.Kind()
		}
	}

	if op == "$divide" {
		if widest != ir.KindDecimal128 {
			a, _, _ := coerce.ToFloat64(xs[0])
			b, _, _ := coerce.ToFloat64(xs[1])
			if b == 0 {
				return nil, ErrDivideByZero
			}
			return ir.Double(a / b), nil
		}
		a, _ := ir.ToAPD(xs[0])
		b, _ := ir.ToAPD(xs[1])
		if b.IsZero() {
			return nil, ErrDivideByZero
		}
		var q apd.Decimal
		if _, err := decimalContext.Quo(&q, a, b); err != nil {
			return nil, err
		}
		return decimalValue(&q)
	}

	if widest == ir.KindDouble {
		acc, _, _ := coerce.ToFloat64(xs[0])
		for _, x := range xs[1:] {
			f, _, _ := coerce.ToFloat64(x)
			switch op {
			case "$add":
				acc += f
			case "$subtract":
				acc -= f
			case "$multiply":
				acc *= f
			}
		}
		return ir.Double(acc), nil
	}

	ctx := integerContext
	if widest == ir.KindDecimal128 {
		ctx = decimalContext
	}
	acc, err := ir.ToAPD(xs[0])
	if err != nil {
		return nil, err
	}
	for _, x := range xs[1:] {
		d, err := ir.ToAPD(x)
		if err != nil {
			return nil, err
		}
		switch op {
		case "$add":
			_, err = ctx.Add(acc, acc, d)
		case "$subtract":
			_, err = ctx.Sub(acc, acc, d)
		case "$multiply":
			_, err = ctx.Mul(acc, acc, d)
		}
		if err != nil {
			return nil, err
		}
	}
	return narrow(acc, widest)
}

// dateArith handles $add and $subtract with a DateTime operand. Numbers are
// milliseconds; the difference of two dates is a long.
func dateArith(op string, xs []ir.Value) (ir.Value, bool, error) {
	dates := 0
	for _, x := range xs {
		if _, ok := x.(ir.DateTime); ok {
			dates++
		}
	}
	if dates == 0 {
		return nil, false, nil
	}
	switch op {
	case "$add":
		if dates > 1 {
			return nil, true, fmt.Errorf("only one date allowed in an $add expression")
		}
		var sum int64
		for _, x := range xs {
			if dt, ok := x.(ir.DateTime); ok {
				sum += int64(dt)
				continue
			}
			ms, err := millis(x)
			if err != nil {
				return nil, true, err
			}
			sum += ms
		}
		return ir.DateTime(sum), true, nil
	case "$subtract":
		a, aDate := xs[0].(ir.DateTime)
		if !aDate {
			return nil, true, fmt.Errorf("cannot subtract a date from %s", xs[0].Kind())
		}
		if b, ok := xs[1].(ir.DateTime); ok {
			return ir.Int64(int64(a) - int64(b)), true, nil
		}
		ms, err := millis(xs[1])
		if err != nil {
			return nil, true, err
		}
		return ir.DateTime(int64(a) - ms), true, nil
	}
	return nil, true, fmt.Errorf("%s does not support dates", op)
}

func millis(v ir.Value) (int64, error) {
	if !v.Kind().IsNumeric() {
		return 0, fmt.Errorf("cannot add %s to a date", v.Kind())
	}
	f, _, err := coerce.ToFloat64(v)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f)), nil
}

func rank(k ir.Kind) int {
	switch k {
	case ir.KindInt32:
		return 0
	case ir.KindInt64:
		return 1
	case ir.KindDouble:
		return 2
	}
	return 3
}

// narrow renders an exact result in the narrowest kind no narrower than
// widest: integers overflow from int32 to int64 to double.
func narrow(d *apd.Decimal, widest ir.Kind) (ir.Value, error) {
	switch widest {
	case ir.KindDecimal128:
		return decimalValue(d)
	case ir.KindDouble:
		f, err := d.Float64()
		return ir.Double(f), err
	}
	if n, err := d.Int64(); err == nil {
		if widest == ir.KindInt32 && n >= math.MinInt32 && n <= math.MaxInt32 {
			return ir.Int32(n), nil
		}
		return ir.Int64(n), nil
	}
	f, err := d.Float64()
	return ir.Double(f), err
}

func decimalValue(d *apd.Decimal) (ir.Value, error) {
	var rounded apd.Decimal
	if _, err := decimalContext.Round(&rounded, d); err != nil {
		return nil, err
	}
	return ir.ParseDecimal128(rounded.Text('G'))
}
