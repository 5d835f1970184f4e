package harness

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsql/internal/ir"
)

// Value is a document value written in YAML. Mapping order is kept, so a
// decoded Value can stand for a document whose field order matters.
//
// Scalars map by YAML tag: ints become Int32 (Int64 when they overflow),
// floats Double, and so on. Single-key mappings with an Extended JSON key
// build the other kinds:
//
//	{$oid: "65f1a2b3c4d5e6f708192a3b"}
//	{$date: "2024-03-01T00:00:00Z"}
//	{$numberLong: 7}
//	{$numberDecimal: "12.50"}
//	{$minKey: 1}, {$maxKey: 1}
type Value struct {
	ir.Value
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	val, err := nodeValue(node)
	if err != nil {
		return err
	}
	v.Value = val
	return nil
}

func nodeValue(node *yaml.Node) (ir.Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return ir.Null{}, nil
		}
		return nodeValue(node.Content[0])
	case yaml.AliasNode:
		return nodeValue(node.Alias)
	case yaml.SequenceNode:
		arr := make(ir.Array, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := nodeValue(child)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.MappingNode:
		if v, ok, err := wrapperValue(node); ok || err != nil {
			return v, err
		}
		doc := make(ir.Document, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			v, err := nodeValue(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			doc = append(doc, ir.F(node.Content[i].Value, v))
		}
		return doc, nil
	case yaml.ScalarNode:
		return scalarValue(node)
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", node.Line)
}

func scalarValue(node *yaml.Node) (ir.Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return ir.Null{}, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, err
		}
		return ir.Bool(b), nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return nil, err
		}
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return ir.Int32(n), nil
		}
		return ir.Int64(n), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, err
		}
		return ir.Double(f), nil
	}
	return ir.String(node.Value), nil
}

// wrapperValue decodes a single-key Extended JSON mapping.
func wrapperValue(node *yaml.Node) (ir.Value, bool, error) {
	if len(node.Content) != 2 {
		return nil, false, nil
	}
	key, arg := node.Content[0].Value, node.Content[1]
	fail := func(err error) (ir.Value, bool, error) {
		return nil, true, fmt.Errorf("line %d: %s: %w", node.Line, key, err)
	}
	switch key {
	case "$oid":
		id, err := ir.ObjectIDFromHex(arg.Value)
		if err != nil {
			return fail(err)
		}
		return id, true, nil
	case "$date":
		t, err := time.Parse(time.RFC3339Nano, arg.Value)
		if err != nil {
			return fail(err)
		}
		return ir.NewDateTime(t), true, nil
	case "$numberLong":
		n, err := strconv.ParseInt(arg.Value, 10, 64)
		if err != nil {
			return fail(err)
		}
		return ir.Int64(n), true, nil
	case "$numberDecimal":
		d, err := ir.ParseDecimal128(arg.Value)
		if err != nil {
			return fail(err)
		}
		return d, true, nil
	case "$minKey":
		return ir.MinKey{}, true, nil
	case "$maxKey":
		return ir.MaxKey{}, true, nil
	}
	return nil, false, nil
}

// toDocuments converts decoded values to documents.
func toDocuments(vals []Value) ([]ir.Document, error) {
	docs := make([]ir.Document, len(vals))
	for i, v := range vals {
		d, ok := v.Value.(ir.Document)
		if !ok {
			return nil, fmt.Errorf("document %d is a %s, want a mapping", i, kindOf(v.Value))
		}
		docs[i] = d
	}
	return docs, nil
}

func kindOf(v ir.Value) string {
	if v == nil {
		return "null"
	}
	return v.Kind().String()
}
