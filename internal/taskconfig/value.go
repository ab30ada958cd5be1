package taskconfig

import (
	"encoding/json"
	"fmt"
)

// Value is an immutable, duck-typed wrapper around a decoded JSON value —
// the Go analogue of the original config backend's JSONMapping/JSONSequence
// forwarding wrappers (design note §9): callers index into it with Get/AsList
// without caring whether the underlying JSON was an object or array.
type Value struct {
	raw interface{}
}

// NewValue wraps an already-decoded JSON value (map[string]interface{},
// []interface{}, string, float64, bool, or nil).
func NewValue(raw interface{}) Value { return Value{raw: raw} }

// ParseValue decodes raw JSON bytes into a Value.
func ParseValue(data []byte) (Value, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Value{}, err
	}
	return Value{raw: v}, nil
}

// IsZero reports whether the Value wraps nothing (absent key).
func (v Value) IsZero() bool { return v.raw == nil }

// Raw returns the underlying decoded value.
func (v Value) Raw() interface{} { return v.raw }

// Get indexes into an object-shaped Value by key. Returns a zero Value if
// the receiver is not an object or the key is absent.
func (v Value) Get(key string) Value {
	m, ok := v.raw.(map[string]interface{})
	if !ok {
		return Value{}
	}
	child, ok := m[key]
	if !ok {
		return Value{}
	}
	return Value{raw: child}
}

// Has reports whether an object-shaped Value contains key.
func (v Value) Has(key string) bool {
	m, ok := v.raw.(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

// Keys returns the keys of an object-shaped Value, or nil otherwise.
func (v Value) Keys() []string {
	m, ok := v.raw.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// IsList reports whether the Value wraps a JSON array.
func (v Value) IsList() bool {
	_, ok := v.raw.([]interface{})
	return ok
}

// IsObject reports whether the Value wraps a JSON object.
func (v Value) IsObject() bool {
	_, ok := v.raw.(map[string]interface{})
	return ok
}

// AsList returns an array-shaped Value as a slice of child Values.
func (v Value) AsList() []Value {
	l, ok := v.raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]Value, len(l))
	for i, item := range l {
		out[i] = Value{raw: item}
	}
	return out
}

// AsString returns a scalar string value, or "" if the Value is not a string.
func (v Value) AsString() string {
	s, _ := v.raw.(string)
	return s
}

// AsStringList coerces an array of JSON strings into a []string. Non-string
// items are skipped.
func (v Value) AsStringList() []string {
	l, ok := v.raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AsInt coerces a scalar JSON number into an int.
func (v Value) AsInt() (int, error) {
	f, ok := v.raw.(float64)
	if !ok {
		return 0, fmt.Errorf("value is not a number: %#v", v.raw)
	}
	return int(f), nil
}
