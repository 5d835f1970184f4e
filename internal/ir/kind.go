package ir

import "fmt"

// Kind is the tag of a Value.
//
// Kinds are declared in the store's cross-type sort order, so comparing two
// Kinds with < is the total order used for comparisons and for listing the
// members of a union-typed column. The four numeric kinds are adjacent and
// share one comparison class (see Compare).
type Kind int

const (
	KindMinKey Kind = iota + 1
	KindNull
	KindInt32
	KindInt64
	KindDouble
	KindDecimal128
	KindString
	KindDocument
	KindArray
	KindBinary
	KindObjectID
	KindBool
	KindDateTime
	KindTimestamp
	KindRegex
	KindMaxKey
)

var kindNames = map[Kind]string{
	KindMinKey:     "minKey",
	KindNull:       "null",
	KindInt32:      "int",
	KindInt64:      "long",
	KindDouble:     "double",
	KindDecimal128: "decimal",
	KindString:     "string",
	KindDocument:   "object",
	KindArray:      "array",
	KindBinary:     "binData",
	KindObjectID:   "objectId",
	KindBool:       "bool",
	KindDateTime:   "date",
	KindTimestamp:  "timestamp",
	KindRegex:      "regex",
	KindMaxKey:     "maxKey",
}

// String returns the store's type alias for the kind (as accepted by $type).
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a type alias produced by Kind.String.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", name)
}

// IsNumeric reports whether the kind is one of the four numeric kinds.
func (k Kind) IsNumeric() bool {
	return k >= KindInt32 && k <= KindDecimal128
}

// IsScalar reports whether values of this kind map to a single column.
func (k Kind) IsScalar() bool {
	return k != KindDocument && k != KindArray
}

// class returns the comparison class: numeric kinds collapse to one class.
func (k Kind) class() int {
	if k.IsNumeric() {
		return int(KindInt32)
	}
	return int(k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(data []byte) error {
	parsed, err := ParseKind(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
