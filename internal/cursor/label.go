package cursor

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/docsql/internal/ir"
)

// ValueByLabel is Value for the column with the given label.
func (c *Cursor) ValueByLabel(label string) (ir.Value, error) {
	return byLabel(c, label, c.Value)
}

// StringByLabel is String for the column with the given label.
func (c *Cursor) StringByLabel(label string) (string, error) {
	return byLabel(c, label, c.String)
}

// Int32ByLabel is Int32 for the column with the given label.
func (c *Cursor) Int32ByLabel(label string) (int32, error) {
	return byLabel(c, label, c.Int32)
}

// Int64ByLabel is Int64 for the column with the given label.
func (c *Cursor) Int64ByLabel(label string) (int64, error) {
	return byLabel(c, label, c.Int64)
}

// Float32ByLabel is Float32 for the column with the given label.
func (c *Cursor) Float32ByLabel(label string) (float32, error) {
	return byLabel(c, label, c.Float32)
}

// Float64ByLabel is Float64 for the column with the given label.
func (c *Cursor) Float64ByLabel(label string) (float64, error) {
	return byLabel(c, label, c.Float64)
}

// BoolByLabel is Bool for the column with the given label.
func (c *Cursor) BoolByLabel(label string) (bool, error) {
	return byLabel(c, label, c.Bool)
}

// TimestampByLabel is Timestamp for the column with the given label.
func (c *Cursor) TimestampByLabel(label string) (time.Time, error) {
	return byLabel(c, label, c.Timestamp)
}

// DateByLabel is Date for the column with the given label.
func (c *Cursor) DateByLabel(label string) (time.Time, error) {
	return byLabel(c, label, c.Date)
}

// TimeByLabel is Time for the column with the given label.
func (c *Cursor) TimeByLabel(label string) (time.Time, error) {
	return byLabel(c, label, c.Time)
}

// BytesByLabel is Bytes for the column with the given label.
func (c *Cursor) BytesByLabel(label string) ([]byte, error) {
	return byLabel(c, label, c.Bytes)
}

// DecimalByLabel is Decimal for the column with the given label.
func (c *Cursor) DecimalByLabel(label string) (*apd.Decimal, error) {
	return byLabel(c, label, c.Decimal)
}

// byLabel resolves label with FindColumn and reads the column with get.
func byLabel[T any](c *Cursor, label string, get func(int) (T, error)) (T, error) {
	col, err := c.FindColumn(label)
	if err != nil {
		var zero T
		return zero, err
	}
	return get(col)
}
