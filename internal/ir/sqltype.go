package ir

import (
	"fmt"
	"strings"
)

// SQLType is the relational type exposed for a column or expression.
// Code returns the JDBC type code drivers report in result metadata.
type SQLType int

const (
	TypeNull SQLType = iota
	TypeBoolean
	TypeInteger
	TypeBigInt
	TypeDouble
	TypeDecimal
	TypeVarchar
	TypeTimestamp
	TypeBinary
	TypeOther // union-typed (polymorphic) column
)

var sqlTypeNames = []string{
	TypeNull:      "NULL",
	TypeBoolean:   "BOOLEAN",
	TypeInteger:   "INTEGER",
	TypeBigInt:    "BIGINT",
	TypeDouble:    "DOUBLE",
	TypeDecimal:   "DECIMAL",
	TypeVarchar:   "VARCHAR",
	TypeTimestamp: "TIMESTAMP",
	TypeBinary:    "BINARY",
	TypeOther:     "OTHER",
}

var sqlTypeCodes = []int{
	TypeNull:      0,
	TypeBoolean:   16,
	TypeInteger:   4,
	TypeBigInt:    -5,
	TypeDouble:    8,
	TypeDecimal:   3,
	TypeVarchar:   12,
	TypeTimestamp: 93,
	TypeBinary:    -2,
	TypeOther:     1111,
}

// Valid reports whether t is one of the declared types.
func (t SQLType) Valid() bool {
	return t >= TypeNull && t <= TypeOther
}

// String returns the SQL type name.
func (t SQLType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("SQLType(%d)", int(t))
	}
	return sqlTypeNames[t]
}

// Code returns the JDBC type code.
func (t SQLType) Code() int {
	if !t.Valid() {
		return sqlTypeCodes[TypeOther]
	}
	return sqlTypeCodes[t]
}

// IsNumeric reports whether t is INTEGER, BIGINT, DOUBLE or DECIMAL.
func (t SQLType) IsNumeric() bool {
	return t >= TypeInteger && t <= TypeDecimal
}

// ParseSQLType resolves a type name, case-insensitively. Common aliases
// (INT, LONG, FLOAT, STRING, TEXT, BOOL, DATE) are accepted.
func ParseSQLType(name string) (SQLType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range sqlTypeNames {
		if n == upper {
			return SQLType(t), nil
		}
	}
	switch upper {
	case "INT":
		return TypeInteger, nil
	case "LONG":
		return TypeBigInt, nil
	case "FLOAT", "REAL":
		return TypeDouble, nil
	case "NUMERIC":
		return TypeDecimal, nil
	case "STRING", "TEXT", "CHAR":
		return TypeVarchar, nil
	case "BOOL":
		return TypeBoolean, nil
	case "DATE", "DATETIME":
		return TypeTimestamp, nil
	case "VARBINARY", "BYTES":
		return TypeBinary, nil
	}
	return TypeNull, fmt.Errorf("unknown SQL type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t SQLType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SQLType) UnmarshalText(data []byte) error {
	parsed, err := ParseSQLType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TypeOfKind maps a native kind to the SQL type of a column holding it.
func TypeOfKind(k Kind) SQLType {
	switch k {
	case KindNull:
		return TypeNull
	case KindBool:
		return TypeBoolean
	case KindInt32:
		return TypeInteger
	case KindInt64:
		return TypeBigInt
	case KindDouble:
		return TypeDouble
	case KindDecimal128:
		return TypeDecimal
	case KindDateTime:
		return TypeTimestamp
	case KindBinary:
		return TypeBinary
	case KindString, KindObjectID, KindMinKey, KindMaxKey, KindRegex, KindTimestamp:
		return TypeVarchar
	default:
		return TypeOther
	}
}

// Widen returns the narrowest type able to hold values of both a and b.
//
// The lattice: NULL is bottom; INTEGER < BIGINT < DOUBLE < DECIMAL is a
// chain; equal types are unchanged; every other pair widens to OTHER.
// Widen is commutative and associative.
func Widen(a, b SQLType) SQLType {
	switch {
	case a == b:
		return a
	case a == TypeNull:
		return b
	case b == TypeNull:
		return a
	case a.IsNumeric() && b.IsNumeric():
		return max(a, b)
	default:
		return TypeOther
	}
}
