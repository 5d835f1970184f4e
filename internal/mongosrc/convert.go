package mongosrc

import (
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/docsql/internal/ir"
)

// FromRaw converts a raw BSON document, keeping field order.
func FromRaw(raw bson.Raw) (ir.Document, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc := make(ir.Document, 0, len(elems))
	for _, e := range elems {
		key, err := e.KeyErr()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		rv, err := e.ValueErr()
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", key, err)
		}
		v, err := fromRawValue(rv)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		doc = append(doc, ir.F(key, v))
	}
	return doc, nil
}

func fromRawValue(rv bson.RawValue) (ir.Value, error) {
	switch rv.Type {
	case bson.TypeNull, bson.TypeUndefined:
		return ir.Null{}, nil
	case bson.TypeBoolean:
		return ir.Bool(rv.Boolean()), nil
	case bson.TypeInt32:
		return ir.Int32(rv.Int32()), nil
	case bson.TypeInt64:
		return ir.Int64(rv.Int64()), nil
	case bson.TypeDouble:
		return ir.Double(rv.Double()), nil
	case bson.TypeDecimal128:
		return ir.Decimal128(rv.Decimal128()), nil
	case bson.TypeString:
		return ir.String(rv.StringValue()), nil
	case bson.TypeSymbol:
		return ir.String(rv.Symbol()), nil
	case bson.TypeJavaScript:
		return ir.String(rv.JavaScript()), nil
	case bson.TypeCodeWithScope:
		code, _ := rv.CodeWithScope()
		return ir.String(code), nil
	case bson.TypeDateTime:
		return ir.DateTime(rv.DateTime()), nil
	case bson.TypeBinary:
		sub, data := rv.Binary()
		return ir.Binary{Subtype: sub, Data: slices.Clone(data)}, nil
	case bson.TypeObjectID:
		return ir.ObjectID(rv.ObjectID()), nil
	case bson.TypeMinKey:
		return ir.MinKey{}, nil
	case bson.TypeMaxKey:
		return ir.MaxKey{}, nil
	case bson.TypeRegex:
		pattern, options := rv.Regex()
		return ir.Regex{Pattern: pattern, Options: options}, nil
	case bson.TypeTimestamp:
		t, i := rv.Timestamp()
		return ir.Timestamp{T: t, I: i}, nil
	case bson.TypeDBPointer:
		ns, id := rv.DBPointer()
		return ir.D(ir.F("$ref", ir.String(ns)), ir.F("$id", ir.ObjectID(id))), nil
	case bson.TypeEmbeddedDocument:
		return FromRaw(rv.Document())
	case bson.TypeArray:
		values, err := rv.Array().Values()
		if err != nil {
			return nil, fmt.Errorf("read array: %w", err)
		}
		arr := make(ir.Array, len(values))
		for i, ev := range values {
			v, err := fromRawValue(ev)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unsupported BSON type %s", rv.Type)
}

// ToBSON converts a value to the driver's Go representation: bson.D for
// documents, bson.A for arrays and primitive types for the rest.
func ToBSON(v ir.Value) any {
	switch x := v.(type) {
	case nil, ir.Null:
		return nil
	case ir.Bool:
		return bool(x)
	case ir.Int32:
		return int32(x)
	case ir.Int64:
		return int64(x)
	case ir.Double:
		return float64(x)
	case ir.Decimal128:
		return primitive.Decimal128(x)
	case ir.String:
		return string(x)
	case ir.DateTime:
		return primitive.DateTime(x)
	case ir.Binary:
		return primitive.Binary{Subtype: x.Subtype, Data: x.Data}
	case ir.ObjectID:
		return primitive.ObjectID(x)
	case ir.MinKey:
		return primitive.MinKey{}
	case ir.MaxKey:
		return primitive.MaxKey{}
	case ir.Regex:
		return primitive.Regex{Pattern: x.Pattern, Options: x.Options}
	case ir.Timestamp:
		return primitive.Timestamp{T: x.T, I: x.I}
	case ir.Array:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = ToBSON(e)
		}
		return out
	case ir.Document:
		return toD(x)
	}
	return nil
}

func toD(doc ir.Document) bson.D {
	out := make(bson.D, len(doc))
	for i, f := range doc {
		out[i] = bson.E{Key: f.Key, Value: ToBSON(f.Value)}
	}
	return out
}

// FromBSON converts a driver Go value back to an ir.Value. bson.M keys are
// sorted, since maps carry no order.
func FromBSON(v any) (ir.Value, error) {
	switch x := v.(type) {
	case nil:
		return ir.Null{}, nil
	case bool:
		return ir.Bool(x), nil
	case int32:
		return ir.Int32(x), nil
	case int64:
		return ir.Int64(x), nil
	case int:
		return ir.Int64(x), nil
	case float64:
		return ir.Double(x), nil
	case string:
		return ir.String(x), nil
	case primitive.Decimal128:
		return ir.Decimal128(x), nil
	case primitive.DateTime:
		return ir.DateTime(x), nil
	case primitive.Binary:
		return ir.Binary{Subtype: x.Subtype, Data: x.Data}, nil
	case primitive.ObjectID:
		return ir.ObjectID(x), nil
	case primitive.MinKey:
		return ir.MinKey{}, nil
	case primitive.MaxKey:
		return ir.MaxKey{}, nil
	case primitive.Undefined, primitive.Null:
		return ir.Null{}, nil
	case primitive.Regex:
		return ir.Regex{Pattern: x.Pattern, Options: x.Options}, nil
	case primitive.Timestamp:
		return ir.Timestamp{T: x.T, I: x.I}, nil
	case primitive.Symbol:
		return ir.String(x), nil
	case primitive.JavaScript:
		return ir.String(x), nil
	case bson.D:
		doc := make(ir.Document, len(x))
		for i, e := range x {
			ev, err := FromBSON(e.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", e.Key, err)
			}
			doc[i] = ir.F(e.Key, ev)
		}
		return doc, nil
	case bson.M:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, strings.Compare)
		doc := make(ir.Document, len(keys))
		for i, k := range keys {
			ev, err := FromBSON(x[k])
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			doc[i] = ir.F(k, ev)
		}
		return doc, nil
	case bson.A:
		return fromSlice(x)
	case []any:
		return fromSlice(x)
	case bson.Raw:
		return FromRaw(x)
	}
	return nil, fmt.Errorf("unsupported BSON value of type %T", v)
}

func fromSlice(xs []any) (ir.Value, error) {
	arr := make(ir.Array, len(xs))
	for i, e := range xs {
		v, err := FromBSON(e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		arr[i] = v
	}
	return arr, nil
}

// pipeline converts stage documents for Aggregate.
func pipeline(stages ir.Array) bson.A {
	return ToBSON(stages).(bson.A)
}
