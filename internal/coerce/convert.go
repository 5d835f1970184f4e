package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/docsql/internal/ir"
)

// DateTimeLayout renders DateTime values as strings (always UTC).
const DateTimeLayout = "2006-01-02 15:04:05.000"

// parseLayouts are tried in order when converting a string to a time.
var parseLayouts = []string{
	time.RFC3339Nano,
	DateTimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ConversionError reports a value with no conversion to the target.
type ConversionError struct {
	From  ir.Kind
	To    string
	Cause error
}

func (e *ConversionError) Error() string {
	msg := "cannot convert " + e.From.String() + " to " + e.To
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Cause
}

func convErr(v ir.Value, to string, cause error) error {
	return &ConversionError{From: v.Kind(), To: to, Cause: cause}
}

// ToString converts v to its textual form. The second result reports a
// null source.
func ToString(v ir.Value) (string, bool, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return "", true, nil
	case ir.String:
		return string(x), false, nil
	case ir.Bool:
		return strconv.FormatBool(bool(x)), false, nil
	case ir.Int32:
		return strconv.FormatInt(int64(x), 10), false, nil
	case ir.Int64:
		return strconv.FormatInt(int64(x), 10), false, nil
	case ir.Double:
		return strconv.FormatFloat(float64(x), 'g', -1, 64), false, nil
	case ir.Decimal128:
		return x.String(), false, nil
	case ir.DateTime:
		return x.Time().Format(DateTimeLayout), false, nil
	case ir.ObjectID:
		return x.Hex(), false, nil
	case ir.MinKey:
		return "MinKey", false, nil
	case ir.MaxKey:
		return "MaxKey", false, nil
	case ir.Regex:
		return x.Pattern, false, nil
	case ir.Timestamp:
		return strconv.FormatUint(x.Uint64(), 10), false, nil
	case ir.Document, ir.Array:
		data, err := ir.MarshalCanonical(x)
		if err != nil {
			return "", false, convErr(v, "string", err)
		}
		return string(data), false, nil
	}
	return "", false, convErr(v, "string", nil)
}

// ToInt64 converts v to an int64. Values outside the int64 range, NaN and
// infinities yield 0.
func ToInt64(v ir.Value) (int64, bool, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return 0, true, nil
	case ir.Int32:
		return int64(x), false, nil
	case ir.Int64:
		return int64(x), false, nil
	case ir.Bool:
		if x {
			return 1, false, nil
		}
		return 0, false, nil
	case ir.DateTime:
		return int64(x), false, nil
	case ir.Timestamp:
		u := x.Uint64()
		if u > math.MaxInt64 {
			return 0, false, nil
		}
		return int64(u), false, nil
	case ir.Double, ir.Decimal128, ir.String:
		d, err := ToDecimalValue(v)
		if err != nil {
			return 0, false, err
		}
		return truncInt64(d), false, nil
	}
	return 0, false, convErr(v, "int64", nil)
}

// ToInt32 converts v to an int32. Values outside the int32 range yield 0.
func ToInt32(v ir.Value) (int32, bool, error) {
	n, null, err := ToInt64(v)
	if err != nil || null {
		return 0, null, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false, nil
	}
	return int32(n), false, nil
}

// ToFloat64 converts v to a float64. Decimals beyond the float64 range
// yield 0.
func ToFloat64(v ir.Value) (float64, bool, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return 0, true, nil
	case ir.Double:
		return float64(x), false, nil
	case ir.Int32:
		return float64(x), false, nil
	case ir.Int64:
		return float64(x), false, nil
	case ir.Bool:
		if x {
			return 1, false, nil
		}
		return 0, false, nil
	case ir.DateTime:
		return float64(x), false, nil
	case ir.Decimal128, ir.String:
		d, err := ToDecimalValue(v)
		if err != nil {
			return 0, false, err
		}
		f, err := d.Float64()
		if err != nil || (math.IsInf(f, 0) && d.Form == apd.Finite) {
			return 0, false, nil
		}
		return f, false, nil
	}
	return 0, false, convErr(v, "float64", nil)
}

// ToFloat32 converts v to a float32. Finite values beyond the float32 range
// yield 0.
func ToFloat32(v ir.Value) (float32, bool, error) {
	f, null, err := ToFloat64(v)
	if err != nil || null {
		return 0, null, err
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, false, nil
	}
	return float32(f), false, nil
}

// ToBool converts v to a boolean. Numbers are true when non-zero; strings
// accept the forms strconv.ParseBool accepts.
func ToBool(v ir.Value) (bool, bool, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return false, true, nil
	case ir.Bool:
		return bool(x), false, nil
	case ir.Int32, ir.Int64, ir.Double, ir.Decimal128:
		d, err := ir.ToAPD(v)
		if err != nil {
			return false, false, convErr(v, "bool", err)
		}
		return !d.IsZero(), false, nil
	case ir.String:
		b, err := strconv.ParseBool(strings.TrimSpace(string(x)))
		if err != nil {
			return false, false, convErr(v, "bool", err)
		}
		return b, false, nil
	}
	return false, false, convErr(v, "bool", nil)
}

// ToTime converts v to a UTC time. DateTime and integer sources are epoch
// milliseconds; Timestamp sources use their seconds component.
func ToTime(v ir.Value) (time.Time, bool, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return time.Time{}, true, nil
	case ir.DateTime:
		return x.Time(), false, nil
	case ir.Timestamp:
		return time.Unix(int64(x.T), 0).UTC(), false, nil
	case ir.Int32:
		return time.UnixMilli(int64(x)).UTC(), false, nil
	case ir.Int64:
		return time.UnixMilli(int64(x)).UTC(), false, nil
	case ir.ObjectID:
		// The leading four bytes are the creation time in seconds.
		secs := int64(x[0])<<24 | int64(x[1])<<16 | int64(x[2])<<8 | int64(x[3])
		return time.Unix(secs, 0).UTC(), false, nil
	case ir.String:
		s := strings.TrimSpace(string(x))
		for _, layout := range parseLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), false, nil
			}
		}
		return time.Time{}, false, convErr(v, "time", nil)
	}
	return time.Time{}, false, convErr(v, "time", nil)
}

// ToBytes converts v to a byte slice. Binary data is returned unchanged.
func ToBytes(v ir.Value) ([]byte, bool, error) {
	switch x := v.(type) {
	case nil, ir.Null:
		return nil, true, nil
	case ir.Binary:
		return x.Data, false, nil
	case ir.String:
		return []byte(x), false, nil
	case ir.ObjectID:
		return x[:], false, nil
	}
	return nil, false, convErr(v, "bytes", nil)
}

// ToDecimal converts v to an arbitrary-precision decimal. A null source
// yields zero.
func ToDecimal(v ir.Value) (*apd.Decimal, bool, error) {
	if ir.IsNull(v) {
		return new(apd.Decimal), true, nil
	}
	d, err := ToDecimalValue(v)
	if err != nil {
		return nil, false, err
	}
	return d, false, nil
}

// ToDecimalValue converts a non-null numeric, boolean or numeric-text value
// to a decimal.
func ToDecimalValue(v ir.Value) (*apd.Decimal, error) {
	switch x := v.(type) {
	case ir.Int32, ir.Int64, ir.Double, ir.Decimal128:
		d, err := ir.ToAPD(v)
		if err != nil {
			return nil, convErr(v, "decimal", err)
		}
		return d, nil
	case ir.Bool:
		if x {
			return apd.New(1, 0), nil
		}
		return apd.New(0, 0), nil
	case ir.String:
		d, _, err := apd.NewFromString(strings.TrimSpace(string(x)))
		if err != nil {
			return nil, convErr(v, "decimal", err)
		}
		return d, nil
	}
	return nil, convErr(v, "decimal", nil)
}

// truncInt64 drops the fractional part of d. Non-finite values and values
// beyond the int64 range yield 0.
func truncInt64(d *apd.Decimal) int64 {
	if d.Form != apd.Finite {
		return 0
	}
	var integ, frac apd.Decimal
	d.Modf(&integ, &frac)
	n, err := integ.Int64()
	if err != nil {
		return 0
	}
	return n
}
