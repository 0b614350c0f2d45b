// Package jsontree wraps decoded JSON in a read-only value with dotted-path
// lookup.
package jsontree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a read-only view over a decoded JSON value. Numbers are kept as
// json.Number so integers and money amounts survive untouched.
type Value struct {
	v any
}

// New wraps an already decoded value.
func New(v any) Value {
	return Value{v: v}
}

// Parse decodes data with UseNumber.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("jsontree: decode: %w", err)
	}
	return Value{v: v}, nil
}

// Raw returns the underlying decoded value.
func (v Value) Raw() any { return v.v }

// IsNull reports whether the value is JSON null or absent.
func (v Value) IsNull() bool { return v.v == nil }

// Get walks a dotted path of object keys from v. A missing key, a non-object
// on the way, or a null leaf all report false.
func (v Value) Get(path string) (Value, bool) {
	cur := v
	for _, key := range strings.Split(path, ".") {
		next, ok := cur.Child(key)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Child returns the non-null member key of an object.
func (v Value) Child(key string) (Value, bool) {
	m, ok := v.v.(map[string]any)
	if !ok {
		return Value{}, false
	}
	child, ok := m[key]
	if !ok || child == nil {
		return Value{}, false
	}
	return Value{v: child}, true
}

// Object returns the members of an object value.
func (v Value) Object() (map[string]any, bool) {
	m, ok := v.v.(map[string]any)
	return m, ok
}

// IsObject reports whether v is a JSON object.
func (v Value) IsObject() bool {
	_, ok := v.v.(map[string]any)
	return ok
}

// Array returns the elements of an array value.
func (v Value) Array() ([]Value, bool) {
	arr, ok := v.v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Value, len(arr))
	for i, e := range arr {
		out[i] = Value{v: e}
	}
	return out, true
}

// Str returns the value when it is a JSON string.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Number returns the value when it is a JSON number.
func (v Value) Number() (float64, bool) {
	switch n := v.v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Text renders a scalar as text. Objects and arrays render as compact JSON;
// null renders as "".
func (v Value) Text() string {
	switch x := v.v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
