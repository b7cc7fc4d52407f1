package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

type (
	// Object is a JSON object node.
	Object = map[string]any
	// Array is a JSON array node.
	Array = []any
)

// Unmarshal decodes a JSON object, keeping numbers as json.Number so
// identifiers such as "10021" survive untouched.
func Unmarshal(data []byte) (Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out Object
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("decode document: top-level value is not an object")
	}
	return out, nil
}

// Clone returns a deep copy of v. Containers are copied recursively; scalars
// and nil containers are returned as is.
func Clone(v any) any {
	switch n := v.(type) {
	case map[string]any:
		if n == nil {
			return n
		}
		out := make(map[string]any, len(n))
		for k, child := range n {
			out[k] = Clone(child)
		}
		return out
	case []any:
		if n == nil {
			return n
		}
		out := make([]any, len(n))
		for i, child := range n {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// CloneObject is Clone for object roots.
func CloneObject(o Object) Object {
	if o == nil {
		return nil
	}
	return Clone(o).(map[string]any)
}

// Equal reports whether a and b hold the same JSON value. Numbers compare by
// value regardless of their Go representation.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if x, ok := asFloat(a); ok {
		y, ok := asFloat(b)
		return ok && x == y
	}
	if _, ok := asFloat(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// IsContainer reports whether v is an Object or an Array.
func IsContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Number reports v as a float64 when it is a JSON number in any Go
// representation.
func Number(v any) (float64, bool) { return asFloat(v) }
