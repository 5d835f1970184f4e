package coerce

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
)

func TestToStringRendering(t *testing.T) {
	oid, err := ir.ObjectIDFromHex("5f1b2c3d4e5f60718293a4b5")
	require.NoError(t, err)
	when := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)

	tests := []struct {
		name string
		in   ir.Value
		want string
	}{
		{"string", ir.String("abc"), "abc"},
		{"int32", ir.Int32(-7), "-7"},
		{"int64", ir.Int64(1 << 40), "1099511627776"},
		{"double", ir.Double(1.5), "1.5"},
		{"decimal", ir.MustDecimal128("3.140"), "3.140"},
		{"bool", ir.Bool(true), "true"},
		{"object id", oid, "5f1b2c3d4e5f60718293a4b5"},
		{"min key", ir.MinKey{}, "MinKey"},
		{"max key", ir.MaxKey{}, "MaxKey"},
		{"regex", ir.Regex{Pattern: "^ab+", Options: "i"}, "^ab+"},
		{"timestamp", ir.Timestamp{T: 1, I: 2}, "4294967298"},
		{"datetime", ir.NewDateTime(when), "2024-01-02 03:04:05.006"},
		{"document", ir.D(ir.F("a", ir.Int32(1))), `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, null, err := ToString(tt.in)
			require.NoError(t, err)
			assert.False(t, null)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToStringBinaryIsConversionError(t *testing.T) {
	_, _, err := ToString(ir.Binary{Data: []byte{1}})
	var cerr *ConversionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ir.KindBinary, cerr.From)
	assert.Equal(t, "string", cerr.To)
}

func TestNullSourceSetsFlag(t *testing.T) {
	s, null, err := ToString(ir.Null{})
	require.NoError(t, err)
	assert.True(t, null)
	assert.Equal(t, "", s)

	n, null, err := ToInt32(nil)
	require.NoError(t, err)
	assert.True(t, null)
	assert.Zero(t, n)

	b, null, err := ToBool(ir.Null{})
	require.NoError(t, err)
	assert.True(t, null)
	assert.False(t, b)

	bs, null, err := ToBytes(ir.Null{})
	require.NoError(t, err)
	assert.True(t, null)
	assert.Nil(t, bs)

	d, null, err := ToDecimal(ir.Null{})
	require.NoError(t, err)
	assert.True(t, null)
	assert.True(t, d.IsZero())
}

func TestToInt32Overflow(t *testing.T) {
	tests := []struct {
		name string
		in   ir.Value
		want int32
	}{
		{"fits", ir.Int64(123), 123},
		{"int64 beyond int32", ir.Int64(math.MaxInt32 + 1), 0},
		{"negative beyond int32", ir.Int64(math.MinInt32 - 1), 0},
		{"double truncates", ir.Double(-3.9), -3},
		{"double beyond int32", ir.Double(1e12), 0},
		{"nan", ir.Double(math.NaN()), 0},
		{"decimal truncates", ir.MustDecimal128("41.99"), 41},
		{"huge decimal", ir.MustDecimal128("1E+40"), 0},
		{"numeric string", ir.String(" 17 "), 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, null, err := ToInt32(tt.in)
			require.NoError(t, err)
			assert.False(t, null)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToInt64(t *testing.T) {
	n, _, err := ToInt64(ir.MustDecimal128("9223372036854775807"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), n)

	n, _, err = ToInt64(ir.Double(1e300))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, _, err = ToInt64(ir.DateTime(1700000000000))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), n)

	_, _, err = ToInt64(ir.String("twelve"))
	assert.Error(t, err)

	_, _, err = ToInt64(ir.D())
	assert.Error(t, err)
}

func TestToFloat(t *testing.T) {
	f, _, err := ToFloat64(ir.MustDecimal128("0.1"))
	require.NoError(t, err)
	assert.Equal(t, 0.1, f)

	f, _, err = ToFloat64(ir.MustDecimal128("1E+400"))
	require.NoError(t, err)
	assert.Zero(t, f)

	f32, _, err := ToFloat32(ir.Double(1e300))
	require.NoError(t, err)
	assert.Zero(t, f32)

	f32, _, err = ToFloat32(ir.Int32(3))
	require.NoError(t, err)
	assert.Equal(t, float32(3), f32)
}

func TestToBool(t *testing.T) {
	b, _, err := ToBool(ir.Int64(0))
	require.NoError(t, err)
	assert.False(t, b)

	b, _, err = ToBool(ir.Double(0.5))
	require.NoError(t, err)
	assert.True(t, b)

	b, _, err = ToBool(ir.String("true"))
	require.NoError(t, err)
	assert.True(t, b)

	_, _, err = ToBool(ir.String("maybe"))
	assert.Error(t, err)
}

func TestToTime(t *testing.T) {
	when := time.Date(2023, 6, 7, 8, 9, 10, 11_000_000, time.UTC)

	got, _, err := ToTime(ir.NewDateTime(when))
	require.NoError(t, err)
	assert.Equal(t, when, got)

	got, _, err = ToTime(ir.String("2023-06-07 08:09:10.011"))
	require.NoError(t, err)
	assert.Equal(t, when, got)

	got, _, err = ToTime(ir.Timestamp{T: 60, I: 3})
	require.NoError(t, err)
	assert.Equal(t, time.Unix(60, 0).UTC(), got)

	_, _, err = ToTime(ir.Bool(true))
	assert.Error(t, err)
}

func TestToBytes(t *testing.T) {
	data := []byte{0xde, 0xad}
	got, _, err := ToBytes(ir.Binary{Subtype: 0, Data: data})
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, _, err = ToBytes(ir.Int32(1))
	assert.Error(t, err)
}

func TestToDecimalPreservesPrecision(t *testing.T) {
	d, _, err := ToDecimal(ir.MustDecimal128("12345678901234567890.123456789"))
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567890.123456789", d.String())

	d, _, err = ToDecimal(ir.Int64(math.MinInt64))
	require.NoError(t, err)
	assert.Equal(t, "-9223372036854775808", d.String())
}
