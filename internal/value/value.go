package value

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the attribute value types.
// Only Null, String, Int, Bool, Time, List, and Map implement it.
type Value interface {
	value() // Sealed
}

// Null is the absent attribute value.
// A nil Value and Null{} are interchangeable for equality.
type Null struct{}

func (Null) value() {}

// String is a text attribute value.
type String string

func (String) value() {}

// Int is an integer attribute value. There is no float counterpart.
type Int int64

func (Int) value() {}

// Bool is a boolean attribute value.
type Bool bool

func (Bool) value() {}

// Time is an instant. Two Times are equal when they denote the same instant,
// even when their locations differ.
type Time struct {
	time.Time
}

func (Time) value() {}

// NewTime wraps t as a Time value.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// List is an ordered list of values.
type List []Value

func (List) value() {}

// Map is a string-keyed map of values.
// Use SortedKeys() for deterministic iteration.
type Map map[string]Value

func (Map) value() {}

// Pair is a key-value pair for Map construction.
type Pair struct {
	Key   string
	Value Value
}

// P is shorthand for Pair.
// Example: MapOf(P("title", String("hello")), P("votes", Int(3)))
func P(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// MapOf builds a Map from pairs. Later pairs win on duplicate keys.
func MapOf(pairs ...Pair) Map {
	m := make(Map, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}
	return m
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
// Go's native string order is UTF-8 bytes, which differs above the BMP.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// FromGo converts a decoded YAML/JSON Go value into a Value.
// Floats are rejected unless they are whole numbers (YAML decoders may hand
// back 3.0 for 3). Strings are kept as String; use ParseTime for DateTime
// strings where the schema declares a time attribute.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not attribute values: %v", val)
		}
		return Int(int64(val)), nil
	case time.Time:
		return NewTime(val), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = conv
		}
		return list, nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[k] = conv
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type: %T", v)
	}
}

// ParseTime parses an RFC 3339 timestamp into a Time value.
func ParseTime(s string) (Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return NewTime(t), nil
}

// Kind names the value's type the way schemas declare attribute types.
func Kind(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Time:
		return "time"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
