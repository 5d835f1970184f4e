package memdb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
)

// matches evaluates a query document against doc. Top-level fields are
// implicitly ANDed.
func matches(doc ir.Document, q ir.Document, vars map[string]ir.Value) (bool, error) {
	for _, f := range q {
		ok, err := matchField(doc, f, vars)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchField(doc ir.Document, f ir.Field, vars map[string]ir.Value) (bool, error) {
	switch f.Key {
	case "$and", "$or", "$nor":
		clauses, ok := f.Value.(ir.Array)
		if !ok || len(clauses) == 0 {
			return false, fmt.Errorf("%s needs a non-empty array", f.Key)
		}
		for _, c := range clauses {
			sub, ok := c.(ir.Document)
			if !ok {
				return false, fmt.Errorf("%s entries must be documents", f.Key)
			}
			hit, err := matches(doc, sub, vars)
			if err != nil {
				return false, err
			}
			switch {
			case f.Key == "$and" && !hit:
				return false, nil
			case f.Key == "$or" && hit:
				return true, nil
			case f.Key == "$nor" && hit:
				return false, nil
			}
		}
		return f.Key != "$or", nil
	case "$expr":
		v, err := eval(doc, f.Value, vars)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	}
	if strings.HasPrefix(f.Key, "$") {
		return false, fmt.Errorf("unknown top level operator %s", f.Key)
	}

	v, present := lookupPath(doc, f.Key)
	if ops, ok := operatorDoc(f.Value); ok {
		for _, op := range ops {
			hit, err := matchOp(v, present, op.Key, op.Value)
			if err != nil || !hit {
				return false, err
			}
		}
		return true, nil
	}
	return matchOp(v, present, "$eq", f.Value)
}

// operatorDoc reports whether a field condition is an operator document
// such as {$gt: 5} rather than a literal document to compare against.
func operatorDoc(cond ir.Value) (ir.Document, bool) {
	d, ok := cond.(ir.Document)
	if !ok || len(d) == 0 || !strings.HasPrefix(d[0].Key, "$") {
		return nil, false
	}
	return d, true
}

// candidates returns the values a field condition is tested against: the
// value itself and, for arrays, each element.
func candidates(v ir.Value) []ir.Value {
	out := []ir.Value{v}
	if arr, ok := v.(ir.Array); ok {
		out = append(out, arr...)
	}
	return out
}

func matchOp(v ir.Value, present bool, op string, operand ir.Value) (bool, error) {
	switch op {
	case "$eq":
		return matchEq(v, present, operand), nil
	case "$ne":
		return !matchEq(v, present, operand), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		for _, c := range candidates(v) {
			if ir.SameClass(c, operand) && compareOp(op, ir.Compare(c, operand)) {
				return true, nil
			}
		}
		return false, nil
	case "$in", "$nin":
		list, ok := operand.(ir.Array)
		if !ok {
			return false, fmt.Errorf("%s needs an array", op)
		}
		hit := false
		for _, item := range list {
			if matchEq(v, present, item) {
				hit = true
				break
			}
		}
		return hit == (op == "$in"), nil
	case "$exists":
		want, _, err := coerce.ToBool(operand)
		if err != nil {
			return false, fmt.Errorf("$exists: %w", err)
		}
		return present == want, nil
	case "$type":
		if !present {
			return false, nil
		}
		kinds, err := typeSet(operand)
		if err != nil {
			return false, err
		}
		for _, c := range candidates(v) {
			if kinds(c.Kind()) {
				return true, nil
			}
		}
		return false, nil
	case "$not":
		ops, ok := operatorDoc(operand)
		if !ok {
			if re, isRegex := operand.(ir.Regex); isRegex {
				hit, err := matchRegex(v, re)
				return !hit, err
			}
			return false, fmt.Errorf("$not needs an operator document")
		}
		for _, sub := range ops {
			hit, err := matchOp(v, present, sub.Key, sub.Value)
			if err != nil {
				return false, err
			}
			if !hit {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		var re ir.Regex
		switch x := operand.(type) {
		case ir.Regex:
			re = x
		case ir.String:
			re = ir.Regex{Pattern: string(x)}
		default:
			return false, fmt.Errorf("$regex needs a string or a regex")
		}
		return matchRegex(v, re)
	}
	return false, fmt.Errorf("unknown operator %s", op)
}

// matchEq implements equality with array-element semantics. A null operand
// also matches a missing field; a regex operand matches strings.
func matchEq(v ir.Value, present bool, operand ir.Value) bool {
	if ir.IsNull(operand) && !present {
		return true
	}
	if !present {
		return false
	}
	if re, ok := operand.(ir.Regex); ok {
		hit, _ := matchRegex(v, re)
		return hit
	}
	for _, c := range candidates(v) {
		if ir.SameClass(c, operand) && ir.Equal(c, operand) {
			return true
		}
	}
	return false
}

func matchRegex(v ir.Value, re ir.Regex) (bool, error) {
	pattern := re.Pattern
	if flags := regexFlags(re.Options); flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("$regex: %w", err)
	}
	for _, c := range candidates(v) {
		if s, ok := c.(ir.String); ok && compiled.MatchString(string(s)) {
			return true, nil
		}
	}
	return false, nil
}

func regexFlags(options string) string {
	var b strings.Builder
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			b.WriteRune(o)
		}
	}
	return b.String()
}

// typeSet parses a $type operand: an alias, a numeric code, "number", or an
// array of those.
func typeSet(operand ir.Value) (func(ir.Kind) bool, error) {
	list, ok := operand.(ir.Array)
	if !ok {
		list = ir.A(operand)
	}
	want := make(map[ir.Kind]bool)
	numbers := false
	for _, item := range list {
		switch x := item.(type) {
		case ir.String:
			if x == "number" {
				numbers = true
				continue
			}
			k, err := ir.ParseKind(string(x))
			if err != nil {
				return nil, fmt.Errorf("$type: %w", err)
			}
			want[k] = true
		case ir.Int32, ir.Int64, ir.Double:
			code, _, _ := coerce.ToInt64(x)
			k, ok := kindCodes[code]
			if !ok {
				return nil, fmt.Errorf("$type: unknown type code %d", code)
			}
			want[k] = true
		default:
			return nil, fmt.Errorf("$type needs a type name or code")
		}
	}
	return func(k ir.Kind) bool {
		return want[k] || (numbers && k.IsNumeric())
	}, nil
}

// kindCodes maps the store's numeric type codes to kinds.
var kindCodes = map[int64]ir.Kind{
	-1:  ir.KindMinKey,
	1:   ir.KindDouble,
	2:   ir.KindString,
	3:   ir.KindDocument,
	4:   ir.KindArray,
	5:   ir.KindBinary,
	7:   ir.KindObjectID,
	8:   ir.KindBool,
	9:   ir.KindDateTime,
	10:  ir.KindNull,
	11:  ir.KindRegex,
	16:  ir.KindInt32,
	17:  ir.KindTimestamp,
	18:  ir.KindInt64,
	19:  ir.KindDecimal128,
	127: ir.KindMaxKey,
}
