package mongosrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docsql/internal/ir"
)

func everyKind() ir.Document {
	oid, _ := ir.ObjectIDFromHex("650c1f000102030405060708")
	return ir.D(
		ir.F("_id", oid),
		ir.F("null", ir.Null{}),
		ir.F("bool", ir.Bool(true)),
		ir.F("int", ir.Int32(7)),
		ir.F("long", ir.Int64(1<<40)),
		ir.F("double", ir.Double(2.5)),
		ir.F("decimal", ir.MustDecimal128("10.25")),
		ir.F("string", ir.String("hé")),
		ir.F("date", ir.DateTime(1700000000000)),
		ir.F("bin", ir.Binary{Subtype: 4, Data: []byte{1, 2}}),
		ir.F("min", ir.MinKey{}),
		ir.F("max", ir.MaxKey{}),
		ir.F("re", ir.Regex{Pattern: "^a", Options: "i"}),
		ir.F("ts", ir.Timestamp{T: 5, I: 1}),
		ir.F("arr", ir.A(ir.Int32(1), ir.D(ir.F("x", ir.String("y"))))),
		ir.F("doc", ir.D(ir.F("b", ir.Int32(2)), ir.F("a", ir.Int32(1)))),
	)
}

func TestFromRaw_ThroughBSON(t *testing.T) {
	want := everyKind()

	data, err := bson.Marshal(ToBSON(want))
	require.NoError(t, err)

	got, err := FromRaw(bson.Raw(data))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFromRaw_LegacyTypes(t *testing.T) {
	oid := primitive.ObjectID{1}
	data, err := bson.Marshal(bson.D{
		{Key: "u", Value: primitive.Undefined{}},
		{Key: "sym", Value: primitive.Symbol("s")},
		{Key: "js", Value: primitive.JavaScript("f()")},
		{Key: "ptr", Value: primitive.DBPointer{DB: "db.c", Pointer: oid}},
	})
	require.NoError(t, err)

	got, err := FromRaw(data)
	require.NoError(t, err)
	assert.Equal(t, ir.D(
		ir.F("u", ir.Null{}),
		ir.F("sym", ir.String("s")),
		ir.F("js", ir.String("f()")),
		ir.F("ptr", ir.D(ir.F("$ref", ir.String("db.c")), ir.F("$id", ir.ObjectID(oid)))),
	), got)
}

func TestFromRaw_Malformed(t *testing.T) {
	_, err := FromRaw(bson.Raw{0x05, 0x00})
	assert.Error(t, err)
}

func TestFromBSON(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want ir.Value
	}{
		{"nil", nil, ir.Null{}},
		{"int", 3, ir.Int64(3)},
		{"int32", int32(3), ir.Int32(3)},
		{"string", "x", ir.String("x")},
		{"date", primitive.DateTime(5), ir.DateTime(5)},
		{"array", bson.A{int32(1), "a"}, ir.A(ir.Int32(1), ir.String("a"))},
		{"slice", []any{true}, ir.A(ir.Bool(true))},
		{"d keeps order", bson.D{{Key: "b", Value: int32(1)}, {Key: "a", Value: int32(2)}},
			ir.D(ir.F("b", ir.Int32(1)), ir.F("a", ir.Int32(2)))},
		{"m sorts keys", bson.M{"b": int32(1), "a": int32(2)},
			ir.D(ir.F("a", ir.Int32(2)), ir.F("b", ir.Int32(1)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromBSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromBSON(struct{}{})
	assert.ErrorContains(t, err, "unsupported BSON value")
}

func TestToBSON_Pipeline(t *testing.T) {
	stages := ir.A(
		ir.D(ir.F("$match", ir.D(ir.F("qty", ir.D(ir.F("$gt", ir.Int32(1))))))),
		ir.D(ir.F("$limit", ir.Int64(5))),
	)

	got := pipeline(stages)
	assert.Equal(t, bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: int32(1)}}}}}},
		bson.D{{Key: "$limit", Value: int64(5)}},
	}, got)
}
