package store

import (
	"fmt"

	"github.com/roach88/entref/internal/value"
)

// RecordRef is the identity tuple a relationship slot points at.
// Empty strings mean absent.
type RecordRef struct {
	Type     string
	ID       string
	ClientID string
}

// Record is the stored form of one entity.
type Record struct {
	Type       string
	ID         string
	ClientID   string
	Attributes value.Map

	// BelongsTo maps relationship name to target. A missing key is an empty slot.
	BelongsTo map[string]RecordRef

	// HasMany maps relationship name to ordered members.
	HasMany map[string][]RecordRef

	IsDeleted bool
	Errors    value.Map // nil = none

	// Set by the store.
	Revision    int64
	Fingerprint string
}

// content is the part of a record covered by its fingerprint.
func (r Record) content() value.Map {
	m := value.Map{
		"attributes": nonNilMap(r.Attributes),
		"belongsTo":  encodeBelongsTo(r.BelongsTo),
		"clientId":   value.String(r.ClientID),
		"hasMany":    encodeHasMany(r.HasMany),
		"isDeleted":  value.Bool(r.IsDeleted),
		"errors":     value.Null{},
	}
	if r.Errors != nil {
		m["errors"] = r.Errors
	}
	return m
}

func nonNilMap(m value.Map) value.Map {
	if m == nil {
		return value.Map{}
	}
	return m
}

func encodeRef(ref RecordRef) value.Map {
	return value.MapOf(
		value.P("clientId", optionalString(ref.ClientID)),
		value.P("id", optionalString(ref.ID)),
		value.P("type", value.String(ref.Type)),
	)
}

func optionalString(s string) value.Value {
	if s == "" {
		return value.Null{}
	}
	return value.String(s)
}

func decodeRef(v value.Value) (RecordRef, error) {
	m, ok := v.(value.Map)
	if !ok {
		return RecordRef{}, fmt.Errorf("relationship target: expected object, got %s", value.Kind(v))
	}
	var ref RecordRef
	for key, dst := range map[string]*string{"type": &ref.Type, "id": &ref.ID, "clientId": &ref.ClientID} {
		switch s := m[key].(type) {
		case nil, value.Null:
		case value.String:
			*dst = string(s)
		default:
			return RecordRef{}, fmt.Errorf("relationship target %s: expected string, got %s", key, value.Kind(s))
		}
	}
	return ref, nil
}

func encodeBelongsTo(slots map[string]RecordRef) value.Map {
	m := value.Map{}
	for name, ref := range slots {
		m[name] = encodeRef(ref)
	}
	return m
}

func decodeBelongsTo(m value.Map) (map[string]RecordRef, error) {
	slots := make(map[string]RecordRef, len(m))
	for name, v := range m {
		if value.IsNull(v) {
			continue
		}
		ref, err := decodeRef(v)
		if err != nil {
			return nil, fmt.Errorf("belongsTo %s: %w", name, err)
		}
		slots[name] = ref
	}
	return slots, nil
}

func encodeHasMany(collections map[string][]RecordRef) value.Map {
	m := value.Map{}
	for name, refs := range collections {
		list := make(value.List, len(refs))
		for i, ref := range refs {
			list[i] = encodeRef(ref)
		}
		m[name] = list
	}
	return m
}

func decodeHasMany(m value.Map) (map[string][]RecordRef, error) {
	collections := make(map[string][]RecordRef, len(m))
	for name, v := range m {
		list, ok := v.(value.List)
		if !ok {
			return nil, fmt.Errorf("hasMany %s: expected array, got %s", name, value.Kind(v))
		}
		refs := make([]RecordRef, len(list))
		for i, item := range list {
			ref, err := decodeRef(item)
			if err != nil {
				return nil, fmt.Errorf("hasMany %s[%d]: %w", name, i, err)
			}
			refs[i] = ref
		}
		collections[name] = refs
	}
	return collections, nil
}

// marshalMap converts a map to canonical JSON TEXT for storage.
func marshalMap(field string, m value.Map) (string, error) {
	data, err := value.MarshalCanonical(nonNilMap(m))
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", field, err)
	}
	return string(data), nil
}

// unmarshalMap parses canonical JSON TEXT from storage.
func unmarshalMap(field, data string) (value.Map, error) {
	m, err := value.UnmarshalMap([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return m, nil
}
