package ir

import (
	"bytes"
	"math"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Compare orders two values using the store's comparison rules.
// Returns -1, 0 or +1.
//
// Values of different comparison classes order by Kind. Numeric values
// compare by magnitude across Int32, Int64, Double and Decimal128, with NaN
// below every other number. A nil Value compares as Null.
func Compare(a, b Value) int {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	ka, kb := a.Kind(), b.Kind()
	if ka.class() != kb.class() {
		return cmpInt(int64(ka.class()), int64(kb.class()))
	}

	switch av := a.(type) {
	case Null, MinKey, MaxKey:
		return 0
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Int32, Int64, Double, Decimal128:
		return compareNumeric(a, b)
	case String:
		return strings.Compare(string(av), string(b.(String)))
	case DateTime:
		return cmpInt(int64(av), int64(b.(DateTime)))
	case Timestamp:
		bv := b.(Timestamp)
		if av.T != bv.T {
			return cmpInt(int64(av.T), int64(bv.T))
		}
		return cmpInt(int64(av.I), int64(bv.I))
	case ObjectID:
		bv := b.(ObjectID)
		return bytes.Compare(av[:], bv[:])
	case Binary:
		bv := b.(Binary)
		if len(av.Data) != len(bv.Data) {
			return cmpInt(int64(len(av.Data)), int64(len(bv.Data)))
		}
		if av.Subtype != bv.Subtype {
			return cmpInt(int64(av.Subtype), int64(bv.Subtype))
		}
		return bytes.Compare(av.Data, bv.Data)
	case Regex:
		bv := b.(Regex)
		if c := strings.Compare(av.Pattern, bv.Pattern); c != 0 {
			return c
		}
		return strings.Compare(av.Options, bv.Options)
	case Array:
		bv := b.(Array)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(av)), int64(len(bv)))
	case Document:
		bv := b.(Document)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := strings.Compare(av[i].Key, bv[i].Key); c != 0 {
				return c
			}
			if c := Compare(av[i].Value, bv[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(av)), int64(len(bv)))
	}
	return 0
}

// Equal reports whether two values compare equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// SameClass reports whether a and b fall in one comparison class, as two
// numbers of any numeric kind do. Query operators such as $gt only match
// values of the operand's class.
func SameClass(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	return a.Kind().class() == b.Kind().class()
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareNumeric compares two numeric values exactly.
// Integer pairs compare directly; anything involving a double or decimal
// goes through an apd.Decimal so large int64 values never round.
func compareNumeric(a, b Value) int {
	ai, aInt := integral(a)
	bi, bInt := integral(b)
	if aInt && bInt {
		return cmpInt(ai, bi)
	}
	an, bn := isNaN(a), isNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	ad, errA := ToAPD(a)
	bd, errB := ToAPD(b)
	if errA != nil || errB != nil {
		return 0
	}
	return ad.Cmp(bd)
}

func integral(v Value) (int64, bool) {
	switch n := v.(type) {
	case Int32:
		return int64(n), true
	case Int64:
		return int64(n), true
	}
	return 0, false
}

func isNaN(v Value) bool {
	switch n := v.(type) {
	case Double:
		return math.IsNaN(float64(n))
	case Decimal128:
		return strings.EqualFold(n.String(), "NaN")
	}
	return false
}

// ToAPD converts a numeric value to an arbitrary-precision decimal.
// Non-numeric values return an error.
func ToAPD(v Value) (*apd.Decimal, error) {
	d := new(apd.Decimal)
	switch n := v.(type) {
	case Int32:
		d.SetInt64(int64(n))
	case Int64:
		d.SetInt64(int64(n))
	case Double:
		if _, err := d.SetFloat64(float64(n)); err != nil {
			return nil, err
		}
	case Decimal128:
		if _, _, err := d.SetString(n.String()); err != nil {
			return nil, err
		}
	default:
		return nil, &KindError{Want: "number", Got: v.Kind()}
	}
	return d, nil
}

// KindError reports a value of an unexpected kind.
type KindError struct {
	Want string
	Got  Kind
}

func (e *KindError) Error() string {
	return "expected " + e.Want + ", got " + e.Got.String()
}
