package cursor

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/cases"

	"github.com/roach88/docsql/internal/coerce"
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/native"
)

// State is the position of a cursor.
type State int

const (
	// BeforeFirst is the initial state.
	BeforeFirst State = iota
	// Positioned means the cursor has a current row.
	Positioned
	// AfterLast is terminal: the iterator ran out or failed.
	AfterLast
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case BeforeFirst:
		return "before-first"
	case Positioned:
		return "positioned"
	case AfterLast:
		return "after-last"
	}
	return "unknown"
}

// Cursor is a forward-only typed view over pipeline output documents.
type Cursor struct {
	it   native.Iterator
	cols []ir.ColumnMeta
	fold cases.Caser

	state State
	index int // 0-based index of the current row; -1 before the first
	cur   ir.Document

	// One document of lookahead, filled by IsLast.
	peeked    bool
	ahead     ir.Document
	aheadOK   bool
	aheadErr  error
	exhausted bool

	closed  bool
	wasNull bool
}

// New wraps it. cols describes the values of each output document, in
// ordinal order.
func New(it native.Iterator, cols []ir.ColumnMeta) *Cursor {
	return &Cursor{
		it:    it,
		cols:  slices.Clone(cols),
		fold:  cases.Fold(),
		index: -1,
	}
}

// pull returns the next document from the lookahead or the iterator.
func (c *Cursor) pull(ctx context.Context) (ir.Document, bool, error) {
	if c.peeked {
		c.peeked = false
		doc, ok, err := c.ahead, c.aheadOK, c.aheadErr
		c.ahead, c.aheadErr = nil, nil
		return doc, ok, err
	}
	if c.exhausted {
		return nil, false, nil
	}
	if c.it.Next(ctx) {
		return c.it.Current(), true, nil
	}
	c.exhausted = true
	return nil, false, c.it.Err()
}

// Next advances to the next row. It returns false once the rows run out,
// leaving the cursor after the last row. An iterator failure also ends
// the cursor and is returned unchanged.
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	if c.closed {
		return false, errClosed()
	}
	if c.state == AfterLast {
		return false, nil
	}
	doc, ok, err := c.pull(ctx)
	if err != nil || !ok {
		c.toAfterLast()
		return false, err
	}
	c.index++
	c.cur = doc
	c.state = Positioned
	return true, nil
}

func (c *Cursor) toAfterLast() {
	if c.state != AfterLast {
		c.index++
	}
	c.cur = nil
	c.state = AfterLast
}

// Absolute moves to the 1-based row n. Rows cannot be revisited, so n must
// lie beyond the current row. It returns false if the rows run out first,
// and always once the cursor is after the last row.
func (c *Cursor) Absolute(ctx context.Context, n int) (bool, error) {
	if c.closed {
		return false, errClosed()
	}
	if n < 1 {
		return false, newError(ErrCodeOutOfRange, "row %d is not a valid row number", n)
	}
	if c.state == AfterLast {
		return false, nil
	}
	if row, _ := c.Row(); n <= row {
		return false, newError(ErrCodeForwardOnly, "cannot retrieve previous rows: at row %d, asked for row %d", row, n)
	}
	for c.index+1 < n {
		ok, err := c.Next(ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Relative moves delta rows forward. A zero delta stays on the current row
// and reports whether there is one.
func (c *Cursor) Relative(ctx context.Context, delta int) (bool, error) {
	if c.closed {
		return false, errClosed()
	}
	switch {
	case delta < 0:
		return false, newError(ErrCodeForwardOnly, "cannot move %d rows backwards", -delta)
	case delta == 0:
		return c.state == Positioned, nil
	}
	return c.Absolute(ctx, c.index+1+delta)
}

// Close closes the underlying iterator. Later calls do nothing.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cur, c.ahead = nil, nil
	return c.it.Close(ctx)
}

// Closed reports whether Close has been called.
func (c *Cursor) Closed() bool {
	return c.closed
}

// State returns the cursor position state.
func (c *Cursor) State() State {
	return c.state
}

// Row returns the 1-based number of the current row, or 0 when the cursor
// is not on a row.
func (c *Cursor) Row() (int, error) {
	if c.closed {
		return 0, errClosed()
	}
	if c.state != Positioned {
		return 0, nil
	}
	return c.index + 1, nil
}

// RowIndex returns the 0-based index of the current row: -1 before the
// first row, and the number of rows read once after the last.
func (c *Cursor) RowIndex() (int, error) {
	if c.closed {
		return 0, errClosed()
	}
	return c.index, nil
}

// IsBeforeFirst reports whether Next has not yet been called.
func (c *Cursor) IsBeforeFirst() (bool, error) {
	if c.closed {
		return false, errClosed()
	}
	return c.state == BeforeFirst, nil
}

// IsFirst reports whether the cursor is on the first row.
func (c *Cursor) IsFirst() (bool, error) {
	if c.closed {
		return false, errClosed()
	}
	return c.state == Positioned && c.index == 0, nil
}

// IsLast reports whether the cursor is on the last row. It reads one
// document ahead, which may block.
func (c *Cursor) IsLast(ctx context.Context) (bool, error) {
	if c.closed {
		return false, errClosed()
	}
	if c.state != Positioned {
		return false, nil
	}
	if !c.peeked {
		c.ahead, c.aheadOK, c.aheadErr = c.pull(ctx)
		c.peeked = true
	}
	if c.aheadErr != nil {
		return false, c.aheadErr
	}
	return !c.aheadOK, nil
}

// IsAfterLast reports whether the rows have run out.
func (c *Cursor) IsAfterLast() (bool, error) {
	if c.closed {
		return false, errClosed()
	}
	return c.state == AfterLast, nil
}

// Columns returns the output column metadata in ordinal order.
func (c *Cursor) Columns() []ir.ColumnMeta {
	return slices.Clone(c.cols)
}

// Metadata returns the metadata of the 1-based column col.
func (c *Cursor) Metadata(col int) (ir.ColumnMeta, error) {
	if col < 1 || col > len(c.cols) {
		return ir.ColumnMeta{}, errColumnIndex(col, len(c.cols))
	}
	return c.cols[col-1], nil
}

// FindColumn returns the 1-based index of the column labelled label. An
// exact match wins; otherwise the first case-insensitive match is used.
func (c *Cursor) FindColumn(label string) (int, error) {
	if c.closed {
		return 0, errClosed()
	}
	for i, col := range c.cols {
		if col.Label == label {
			return i + 1, nil
		}
	}
	want := c.fold.String(label)
	for i, col := range c.cols {
		if c.fold.String(col.Label) == want {
			return i + 1, nil
		}
	}
	return 0, newError(ErrCodeColumnLabel, "no column labelled %q", label)
}

// WasNull reports whether the last value read by a getter was null or
// missing.
func (c *Cursor) WasNull() bool {
	return c.wasNull
}

// value returns the stored value of a column on the current row. Missing
// fields read as Null.
func (c *Cursor) value(col int) (ir.Value, error) {
	if c.closed {
		return nil, errClosed()
	}
	if col < 1 || col > len(c.cols) {
		return nil, errColumnIndex(col, len(c.cols))
	}
	switch c.state {
	case BeforeFirst:
		return nil, newError(ErrCodeBeforeFirst, "no current row: call Next first")
	case AfterLast:
		return nil, newError(ErrCodeAfterLast, "no current row: past the last row")
	}
	v, ok := c.cur.Lookup(c.cols[col-1].Field)
	if !ok || v == nil {
		v = ir.Null{}
	}
	c.wasNull = ir.IsNull(v)
	return v, nil
}

func (c *Cursor) conversion(col int, err error) error {
	return &Error{
		Code:    ErrCodeConversion,
		Message: "column " + c.cols[col-1].Label,
		Err:     err,
	}
}

// Value returns the stored value of column col unconverted.
func (c *Cursor) Value(col int) (ir.Value, error) {
	return c.value(col)
}

// String returns column col as text. ObjectIDs render as 24 hex digits,
// dates in coerce.DateTimeLayout, documents and arrays as canonical JSON.
func (c *Cursor) String(col int) (string, error) {
	v, err := c.value(col)
	if err != nil {
		return "", err
	}
	s, _, err := coerce.ToString(v)
	if err != nil {
		return "", c.conversion(col, err)
	}
	return s, nil
}

// Int64 returns column col as an int64.
func (c *Cursor) Int64(col int) (int64, error) {
	v, err := c.value(col)
	if err != nil {
		return 0, err
	}
	n, _, err := coerce.ToInt64(v)
	if err != nil {
		return 0, c.conversion(col, err)
	}
	return n, nil
}

// Int32 returns column col as an int32. Values outside the int32 range
// read as 0.
func (c *Cursor) Int32(col int) (int32, error) {
	v, err := c.value(col)
	if err != nil {
		return 0, err
	}
	n, _, err := coerce.ToInt32(v)
	if err != nil {
		return 0, c.conversion(col, err)
	}
	return n, nil
}

// Float64 returns column col as a float64.
func (c *Cursor) Float64(col int) (float64, error) {
	v, err := c.value(col)
	if err != nil {
		return 0, err
	}
	f, _, err := coerce.ToFloat64(v)
	if err != nil {
		return 0, c.conversion(col, err)
	}
	return f, nil
}

// Float32 returns column col as a float32.
func (c *Cursor) Float32(col int) (float32, error) {
	v, err := c.value(col)
	if err != nil {
		return 0, err
	}
	f, _, err := coerce.ToFloat32(v)
	if err != nil {
		return 0, c.conversion(col, err)
	}
	return f, nil
}

// Bool returns column col as a boolean.
func (c *Cursor) Bool(col int) (bool, error) {
	v, err := c.value(col)
	if err != nil {
		return false, err
	}
	b, _, err := coerce.ToBool(v)
	if err != nil {
		return false, c.conversion(col, err)
	}
	return b, nil
}

// Timestamp returns column col as a UTC instant.
func (c *Cursor) Timestamp(col int) (time.Time, error) {
	v, err := c.value(col)
	if err != nil {
		return time.Time{}, err
	}
	t, _, err := coerce.ToTime(v)
	if err != nil {
		return time.Time{}, c.conversion(col, err)
	}
	return t, nil
}

// Date returns the UTC midnight of column col's instant.
func (c *Cursor) Date(col int) (time.Time, error) {
	t, err := c.Timestamp(col)
	if err != nil || t.IsZero() {
		return t, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// Time returns the time of day of column col's instant, on 1970-01-01 UTC.
func (c *Cursor) Time(col int) (time.Time, error) {
	t, err := c.Timestamp(col)
	if err != nil || t.IsZero() {
		return t, err
	}
	return time.Date(1970, time.January, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

// Bytes returns column col as a byte slice.
func (c *Cursor) Bytes(col int) ([]byte, error) {
	v, err := c.value(col)
	if err != nil {
		return nil, err
	}
	b, _, err := coerce.ToBytes(v)
	if err != nil {
		return nil, c.conversion(col, err)
	}
	return b, nil
}

// Decimal returns column col as an arbitrary-precision decimal. A null
// value reads as zero.
func (c *Cursor) Decimal(col int) (*apd.Decimal, error) {
	v, err := c.value(col)
	if err != nil {
		return nil, err
	}
	d, _, err := coerce.ToDecimal(v)
	if err != nil {
		return nil, c.conversion(col, err)
	}
	return d, nil
}

func errClosed() error {
	return newError(ErrCodeClosed, "cursor is closed")
}

func errColumnIndex(col, n int) error {
	return newError(ErrCodeColumnIndex, "column %d out of range 1..%d", col, n)
}
