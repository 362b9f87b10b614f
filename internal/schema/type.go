package schema

import (
	"github.com/roach88/entref/internal/value"
)

// Attribute value types accepted in declarations.
const (
	AttrString = "string"
	AttrInt    = "int"
	AttrBool   = "bool"
	AttrTime   = "time"
	AttrList   = "list"
	AttrMap    = "map"
	AttrAny    = "any"
)

// Kind is a relationship cardinality.
type Kind string

const (
	// BelongsTo holds at most one related entity.
	BelongsTo Kind = "belongsTo"
	// HasMany holds an ordered, identity-unique collection of related entities.
	HasMany Kind = "hasMany"
)

// Attribute is a named scalar or composite slot on an entity type.
type Attribute struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Accepts reports whether v may be stored in this attribute.
// Null is accepted by every attribute.
func (a Attribute) Accepts(v value.Value) bool {
	if value.IsNull(v) || a.Type == AttrAny {
		return true
	}
	return value.Kind(v) == a.Type
}

// Relationship is a named reference slot on an entity type.
type Relationship struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Target string `json:"target"`

	// TargetType is set when the owning Registry is built.
	TargetType *Type `json:"-"`
}

// Type is an entity type tag.
//
// Attributes and Relationships hold the type's own declarations in
// declaration order; AllAttributes and AllRelationships include inherited
// members, ancestors first.
type Type struct {
	Name          string         `json:"name"`
	Extends       string         `json:"extends,omitempty"`
	Attributes    []Attribute    `json:"attributes,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`

	// Parent is set when the owning Registry is built.
	Parent *Type `json:"-"`
}

// String returns the type name.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// Detects reports whether other is t or a descendant of t.
// A nil type detects nothing.
func (t *Type) Detects(other *Type) bool {
	if t == nil {
		return false
	}
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == t {
			return true
		}
	}
	return false
}

// Lineage returns the type's ancestors root first, ending with t itself.
func (t *Type) Lineage() []*Type {
	var chain []*Type
	for cur := t; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// AllAttributes returns inherited and own attributes in declaration order.
func (t *Type) AllAttributes() []Attribute {
	var attrs []Attribute
	for _, cur := range t.Lineage() {
		attrs = append(attrs, cur.Attributes...)
	}
	return attrs
}

// AllRelationships returns inherited and own relationships in declaration order.
func (t *Type) AllRelationships() []Relationship {
	var rels []Relationship
	for _, cur := range t.Lineage() {
		rels = append(rels, cur.Relationships...)
	}
	return rels
}

// Attribute looks up an attribute by name, searching ancestors.
func (t *Type) Attribute(name string) (Attribute, bool) {
	for cur := t; cur != nil; cur = cur.Parent {
		for _, a := range cur.Attributes {
			if a.Name == name {
				return a, true
			}
		}
	}
	return Attribute{}, false
}

// Relationship looks up a relationship by name, searching ancestors.
func (t *Type) Relationship(name string) (Relationship, bool) {
	for cur := t; cur != nil; cur = cur.Parent {
		for _, r := range cur.Relationships {
			if r.Name == name {
				return r, true
			}
		}
	}
	return Relationship{}, false
}
