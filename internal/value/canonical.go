package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DateTime tags used for the JSON form of Time.
const (
	dateTimeTypeKey   = "@type"
	dateTimeValueKey  = "@value"
	dateTimeTypeValue = "DateTime"
)

// MarshalCanonical produces RFC 8785 canonical JSON for a value.
//
// This is the only serialization used for fingerprints and for attribute
// payloads written to the record store. Differences from json.Marshal:
//  1. Map keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. Times are written in UTC so equal instants encode identically
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return writeCanonicalString(buf, string(val))
	case Int:
		fmt.Fprintf(buf, "%d", int64(val))
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Time:
		return writeCanonical(buf, Map{
			dateTimeTypeKey:  String(dateTimeTypeValue),
			dateTimeValueKey: String(val.UTC().Format(time.RFC3339Nano)),
		})
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Map:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalString writes s as a JSON string after NFC normalization.
// Only control characters, backslash and quote are escaped; U+2028 and
// U+2029 are written literally.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(unescapeLineSeparators(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})))
	return nil
}

// unescapeLineSeparators rewrites the \u2028 and \u2029 escapes produced by
// encoding/json back into literal characters. The encoder only emits a
// backslash at the start of an escape sequence, so a left-to-right scan that
// skips over each escape never mistakes an escaped backslash for one.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" {
			switch data[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

// Unmarshal decodes JSON into a Value.
// Numbers must be integers. DateTime objects decode to Time.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromJSON(raw)
}

// UnmarshalMap decodes a JSON object into a Map.
// Empty input and "null" decode to a nil Map.
func UnmarshalMap(data []byte) (Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	v, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case Map:
		return m, nil
	case Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected JSON object, got %s", Kind(v))
	}
}

func fromJSON(raw any) (Value, error) {
	switch val := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not attribute values: %s", val)
		}
		return Int(n), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			conv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = conv
		}
		return list, nil
	case map[string]any:
		if t, ok, err := dateTimeFromJSON(val); ok || err != nil {
			return t, err
		}
		m := make(Map, len(val))
		for k, elem := range val {
			conv, err := fromJSON(elem)
			if err != nil {
				return nil, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[k] = conv
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value: %T", raw)
	}
}

// dateTimeFromJSON recognises {"@type":"DateTime","@value":"..."}.
func dateTimeFromJSON(obj map[string]any) (Value, bool, error) {
	if len(obj) != 2 || obj[dateTimeTypeKey] != dateTimeTypeValue {
		return nil, false, nil
	}
	s, ok := obj[dateTimeValueKey].(string)
	if !ok {
		return nil, false, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil, true, err
	}
	return t, true, nil
}

// MarshalJSON writes Null as JSON null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}
