package mongosrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsql/internal/ir"
)

func TestParseExtJSON_Array(t *testing.T) {
	docs, err := ParseExtJSON([]byte(`[
		{"_id": {"$oid": "650c1f000102030405060708"}, "qty": 3, "big": 5000000000, "price": 1.5},
		{"_id": 2, "when": {"$date": "2024-03-09T00:00:00Z"}, "amount": {"$numberDecimal": "9.99"}}
	]`))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	oid, _ := ir.ObjectIDFromHex("650c1f000102030405060708")
	assert.Equal(t, ir.D(
		ir.F("_id", oid),
		ir.F("qty", ir.Int32(3)),
		ir.F("big", ir.Int64(5000000000)),
		ir.F("price", ir.Double(1.5)),
	), docs[0])

	when, _ := docs[1].Get("when")
	assert.Equal(t, ir.DateTime(1709942400000), when)
	amount, _ := docs[1].Get("amount")
	assert.Equal(t, ir.MustDecimal128("9.99"), amount)
}

func TestParseExtJSON_Lines(t *testing.T) {
	docs, err := ParseExtJSON([]byte("{\"a\": 1}\n{\"a\": {\"$numberLong\": \"2\"}}\n"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, ir.D(ir.F("a", ir.Int32(1))), docs[0])
	assert.Equal(t, ir.D(ir.F("a", ir.Int64(2))), docs[1])
}

func TestParseExtJSON_Empty(t *testing.T) {
	docs, err := ParseExtJSON([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestParseExtJSON_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"broken array", `[{"a": 1}`},
		{"not a document", `[1, 2]`},
		{"bad wrapper", `{"a": {"$oid": "xyz"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExtJSON([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestMarshalExtJSON(t *testing.T) {
	out, err := MarshalExtJSON(ir.D(ir.F("b", ir.Int32(1)), ir.F("a", ir.String("x"))))
	require.NoError(t, err)
	assert.JSONEq(t, `{"b": 1, "a": "x"}`, string(out))

	back, err := ParseExtJSON(out)
	require.NoError(t, err)
	assert.Equal(t, []ir.Document{ir.D(ir.F("b", ir.Int32(1)), ir.F("a", ir.String("x")))}, back)
}
