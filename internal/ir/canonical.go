package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for hashing and golden files.
//
// Differences from json.Marshal:
//  1. map[string]any keys are sorted by UTF-16 code units (RFC 8785)
//  2. Document fields keep their order (stage bodies depend on it)
//  3. No HTML escaping; strings are NFC normalized
//  4. Non-JSON kinds use the store's canonical extended JSON wrappers
//     ({"$oid": ...}, {"$date": ...}, {"$numberDecimal": ...}, ...)
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case Int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Int64:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case Double:
		return writeDouble(buf, float64(val))
	case float64:
		return writeDouble(buf, val)
	case String:
		return writeCanonicalString(buf, string(val))
	case string:
		return writeCanonicalString(buf, val)
	case Decimal128:
		return writeWrapper(buf, "$numberDecimal", val.String())
	case DateTime:
		return writeWrapper(buf, "$date", map[string]any{"$numberLong": strconv.FormatInt(int64(val), 10)})
	case ObjectID:
		return writeWrapper(buf, "$oid", val.Hex())
	case Binary:
		return writeWrapper(buf, "$binary", map[string]any{
			"base64":  base64.StdEncoding.EncodeToString(val.Data),
			"subType": fmt.Sprintf("%02x", val.Subtype),
		})
	case MinKey:
		return writeWrapper(buf, "$minKey", 1)
	case MaxKey:
		return writeWrapper(buf, "$maxKey", 1)
	case Regex:
		return writeWrapper(buf, "$regularExpression", map[string]any{
			"pattern": val.Pattern,
			"options": val.Options,
		})
	case Timestamp:
		return writeWrapper(buf, "$timestamp", map[string]any{
			"t": int64(val.T),
			"i": int64(val.I),
		})
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case []string:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Document:
		buf.WriteByte('{')
		for i, f := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, f.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, f.Value); err != nil {
				return fmt.Errorf("field %q: %w", f.Key, err)
			}
		}
		buf.WriteByte('}')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, compareKeysRFC8785)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeWrapper(buf *bytes.Buffer, key string, inner any) error {
	return writeCanonical(buf, map[string]any{key: inner})
}

// writeDouble renders integral doubles with a trailing ".0" so they stay
// distinguishable from integers; NaN and infinities use $numberDouble.
func writeDouble(buf *bytes.Buffer, f float64) error {
	switch {
	case math.IsNaN(f):
		return writeWrapper(buf, "$numberDouble", "NaN")
	case math.IsInf(f, 1):
		return writeWrapper(buf, "$numberDouble", "Infinity")
	case math.IsInf(f, -1):
		return writeWrapper(buf, "$numberDouble", "-Infinity")
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		buf.WriteString(strconv.FormatFloat(f, 'f', 1, 64))
	default:
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return nil
}

// writeCanonicalString writes a JSON string with NFC normalization.
// Only control characters, backslash and quote are escaped; U+2028 and
// U+2029 are written literally.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false) // <, >, & must NOT be escaped
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the encoder's \u2028 and \u2029 escapes back
// into literal characters. An escape preceded by an odd run of backslashes is
// literal text (\\u2028) and is kept.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	backslashes := 0
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\\' && backslashes%2 == 0 && i+5 < len(data) &&
			string(data[i+1:i+5]) == "u202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			backslashes = 0
			continue
		}
		if c == '\\' {
			backslashes++
		} else {
			backslashes = 0
		}
		out = append(out, c)
	}
	return out
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785. Go's default string comparison uses UTF-8 bytes,
// which orders supplementary-plane characters differently.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt(int64(len(a16)), int64(len(b16)))
}
