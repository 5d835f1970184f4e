package ir

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Value is a sealed interface representing one native document value.
// Every value belongs to exactly one Kind; comparisons and type reconciliation
// operate on the Kind, never on the Go representation.
type Value interface {
	Kind() Kind
	irValue() // Sealed - only types in this package implement it
}

// Null represents an explicit null field value.
type Null struct{}

// Bool represents a boolean value.
type Bool bool

// Int32 represents a 32-bit integer.
type Int32 int32

// Int64 represents a 64-bit integer.
type Int64 int64

// Double represents an IEEE-754 binary64 value.
type Double float64

// Decimal128 represents a high-precision IEEE-754 decimal128 value.
type Decimal128 primitive.Decimal128

// String represents a UTF-8 string.
type String string

// DateTime represents a UTC instant as milliseconds since the Unix epoch.
type DateTime int64

// Binary represents a byte string with its store-defined subtype.
type Binary struct {
	Subtype byte
	Data    []byte
}

// ObjectID represents a 12-byte object identifier.
type ObjectID [12]byte

// MinKey sorts below every other value.
type MinKey struct{}

// MaxKey sorts above every other value.
type MaxKey struct{}

// Regex represents a regular expression literal.
type Regex struct {
	Pattern string
	Options string
}

// Timestamp represents the store's internal replication timestamp:
// T is seconds since the epoch and I is an ordinal within that second.
type Timestamp struct {
	T uint32
	I uint32
}

// Array represents an ordered list of values.
type Array []Value

// Field is one key/value entry of a Document.
type Field struct {
	Key   string
	Value Value
}

// Document represents an ordered set of fields.
// Field order is significant: discovery assigns column ordinals in
// first-seen order, and stage bodies such as $sort depend on it.
type Document []Field

func (Null) Kind() Kind       { return KindNull }
func (Bool) Kind() Kind       { return KindBool }
func (Int32) Kind() Kind      { return KindInt32 }
func (Int64) Kind() Kind      { return KindInt64 }
func (Double) Kind() Kind     { return KindDouble }
func (Decimal128) Kind() Kind { return KindDecimal128 }
func (String) Kind() Kind     { return KindString }
func (DateTime) Kind() Kind   { return KindDateTime }
func (Binary) Kind() Kind     { return KindBinary }
func (ObjectID) Kind() Kind   { return KindObjectID }
func (MinKey) Kind() Kind     { return KindMinKey }
func (MaxKey) Kind() Kind     { return KindMaxKey }
func (Regex) Kind() Kind      { return KindRegex }
func (Timestamp) Kind() Kind  { return KindTimestamp }
func (Array) Kind() Kind      { return KindArray }
func (Document) Kind() Kind   { return KindDocument }

func (Null) irValue()       {}
func (Bool) irValue()       {}
func (Int32) irValue()      {}
func (Int64) irValue()      {}
func (Double) irValue()     {}
func (Decimal128) irValue() {}
func (String) irValue()     {}
func (DateTime) irValue()   {}
func (Binary) irValue()     {}
func (ObjectID) irValue()   {}
func (MinKey) irValue()     {}
func (MaxKey) irValue()     {}
func (Regex) irValue()      {}
func (Timestamp) irValue()  {}
func (Array) irValue()      {}
func (Document) irValue()   {}

// F is a shorthand for constructing a Field.
// Example: D(F("name", String("cart")), F("count", Int32(5)))
func F(key string, value Value) Field {
	return Field{Key: key, Value: value}
}

// D creates a Document from fields, preserving their order.
func D(fields ...Field) Document {
	return Document(fields)
}

// A creates an Array from values.
func A(vals ...Value) Array {
	return Array(vals)
}

// IsNull reports whether v is nil or an explicit Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Get returns the value stored under key.
func (d Document) Get(key string) (Value, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns field names in document order.
func (d Document) Keys() []string {
	keys := make([]string, len(d))
	for i, f := range d {
		keys[i] = f.Key
	}
	return keys
}

// Set returns a copy of d with key set to v. An existing field keeps its
// position; a new field is appended.
func (d Document) Set(key string, v Value) Document {
	out := make(Document, len(d), len(d)+1)
	copy(out, d)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = v
			return out
		}
	}
	return append(out, Field{Key: key, Value: v})
}

// Lookup resolves a dotted path such as "items.sku" or "tags.0".
// Numeric segments index into arrays. Missing segments report false.
func (d Document) Lookup(path string) (Value, bool) {
	if path == "" {
		return d, true
	}
	var cur Value = d
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case Document:
			v, ok := node.Get(seg)
			if !ok {
				return nil, false
			}
			cur = v
		case Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath returns a copy of d with the dotted path set to v, creating
// intermediate documents as needed. Intermediate non-document values are
// replaced.
func (d Document) SetPath(path string, v Value) Document {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return d.Set(head, v)
	}
	child, _ := d.Get(head)
	sub, ok := child.(Document)
	if !ok {
		sub = Document{}
	}
	return d.Set(head, sub.SetPath(rest, v))
}

// Hex returns the 24 character lowercase hex form of the identifier.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ObjectID) String() string {
	return id.Hex()
}

// ObjectIDFromHex parses a 24 character hex string.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return id, fmt.Errorf("object id %q: want 24 hex characters", s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("object id %q: %w", s, err)
	}
	return id, nil
}

// String returns the decimal text form, e.g. "1.50" or "-Infinity".
func (d Decimal128) String() string {
	return primitive.Decimal128(d).String()
}

// ParseDecimal128 parses decimal text into a Decimal128.
func ParseDecimal128(s string) (Decimal128, error) {
	d, err := primitive.ParseDecimal128(s)
	if err != nil {
		return Decimal128{}, fmt.Errorf("decimal %q: %w", s, err)
	}
	return Decimal128(d), nil
}

// MustDecimal128 is like ParseDecimal128 but panics on error.
// Use only in tests or with constant input.
func MustDecimal128(s string) Decimal128 {
	d, err := ParseDecimal128(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Time returns the instant as a UTC time.Time.
func (dt DateTime) Time() time.Time {
	return time.UnixMilli(int64(dt)).UTC()
}

// NewDateTime truncates t to millisecond precision.
func NewDateTime(t time.Time) DateTime {
	return DateTime(t.UnixMilli())
}

// Uint64 packs the timestamp as T<<32 | I.
func (ts Timestamp) Uint64() uint64 {
	return uint64(ts.T)<<32 | uint64(ts.I)
}
