package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLTypeCodes(t *testing.T) {
	tests := []struct {
		typ  SQLType
		name string
		code int
	}{
		{TypeNull, "NULL", 0},
		{TypeBoolean, "BOOLEAN", 16},
		{TypeInteger, "INTEGER", 4},
		{TypeBigInt, "BIGINT", -5},
		{TypeDouble, "DOUBLE", 8},
		{TypeDecimal, "DECIMAL", 3},
		{TypeVarchar, "VARCHAR", 12},
		{TypeTimestamp, "TIMESTAMP", 93},
		{TypeBinary, "BINARY", -2},
		{TypeOther, "OTHER", 1111},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.typ.String())
			assert.Equal(t, tt.code, tt.typ.Code())
			parsed, err := ParseSQLType(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, parsed)
		})
	}
}

func TestParseSQLTypeAliases(t *testing.T) {
	aliases := map[string]SQLType{
		"int":      TypeInteger,
		"Long":     TypeBigInt,
		"float":    TypeDouble,
		"numeric":  TypeDecimal,
		"text":     TypeVarchar,
		" string ": TypeVarchar,
		"bool":     TypeBoolean,
		"date":     TypeTimestamp,
		"bytes":    TypeBinary,
	}
	for name, want := range aliases {
		got, err := ParseSQLType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseSQLType("GEOMETRY")
	assert.Error(t, err)
}

func TestTypeOfKind(t *testing.T) {
	tests := map[Kind]SQLType{
		KindNull:       TypeNull,
		KindBool:       TypeBoolean,
		KindInt32:      TypeInteger,
		KindInt64:      TypeBigInt,
		KindDouble:     TypeDouble,
		KindDecimal128: TypeDecimal,
		KindString:     TypeVarchar,
		KindObjectID:   TypeVarchar,
		KindMinKey:     TypeVarchar,
		KindMaxKey:     TypeVarchar,
		KindRegex:      TypeVarchar,
		KindTimestamp:  TypeVarchar,
		KindDateTime:   TypeTimestamp,
		KindBinary:     TypeBinary,
		KindDocument:   TypeOther,
		KindArray:      TypeOther,
	}
	for k, want := range tests {
		assert.Equal(t, want, TypeOfKind(k), k.String())
	}
}

// TestWidenLattice fixes the widening order for every pair of types.
func TestWidenLattice(t *testing.T) {
	N, B, I, L, D, M, V, T, Y, O := TypeNull, TypeBoolean, TypeInteger, TypeBigInt,
		TypeDouble, TypeDecimal, TypeVarchar, TypeTimestamp, TypeBinary, TypeOther
	all := []SQLType{N, B, I, L, D, M, V, T, Y, O}

	// want[i][j] = Widen(all[i], all[j])
	want := [][]SQLType{
		/* N */ {N, B, I, L, D, M, V, T, Y, O},
		/* B */ {B, B, O, O, O, O, O, O, O, O},
		/* I */ {I, O, I, L, D, M, O, O, O, O},
		/* L */ {L, O, L, L, D, M, O, O, O, O},
		/* D */ {D, O, D, D, D, M, O, O, O, O},
		/* M */ {M, O, M, M, M, M, O, O, O, O},
		/* V */ {V, O, O, O, O, O, V, O, O, O},
		/* T */ {T, O, O, O, O, O, O, T, O, O},
		/* Y */ {Y, O, O, O, O, O, O, O, Y, O},
		/* O */ {O, O, O, O, O, O, O, O, O, O},
	}

	for i, a := range all {
		for j, b := range all {
			assert.Equal(t, want[i][j], Widen(a, b), "Widen(%s, %s)", a, b)
		}
	}
}

func TestWidenAssociative(t *testing.T) {
	all := []SQLType{TypeNull, TypeBoolean, TypeInteger, TypeBigInt, TypeDouble,
		TypeDecimal, TypeVarchar, TypeTimestamp, TypeBinary, TypeOther}
	for _, a := range all {
		for _, b := range all {
			for _, c := range all {
				assert.Equal(t, Widen(Widen(a, b), c), Widen(a, Widen(b, c)))
			}
		}
	}
}
