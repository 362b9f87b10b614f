package entity

import (
	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/value"
)

// Delta is one structural difference reported by Diff.
// Only AttributeDelta, BelongsToDelta and HasManyDelta implement it.
type Delta interface {
	// Field returns the attribute or relationship name.
	Field() string
	delta() // Sealed
}

// AttributeDelta reports an attribute whose values differ.
type AttributeDelta struct {
	Name string
}

func (d AttributeDelta) Field() string { return d.Name }
func (AttributeDelta) delta()          {}

// BelongsToDelta reports a belongsTo slot whose targets differ by identity.
// OldValue is the other entity's target (nil when it had none).
type BelongsToDelta struct {
	Name         string
	Relationship schema.Relationship
	OldValue     Ref
}

func (d BelongsToDelta) Field() string { return d.Name }
func (BelongsToDelta) delta()          {}

// HasManyDelta reports a hasMany collection whose members differ as a set.
//
// The delta says that the collection changed, not which members were added
// or removed.
type HasManyDelta struct {
	Name         string
	Relationship schema.Relationship
}

func (d HasManyDelta) Field() string { return d.Name }
func (HasManyDelta) delta()          {}

// Diff compares e against other and returns the differences in declaration
// order: attributes first, then relationships.
//
// Attributes compare by value (times by instant). belongsTo slots compare by
// identity. hasMany collections compare as sets under identity, so order and
// duplicates do not matter. Related entities are compared by identity only
// and are never loaded. Neither entity is modified. A nil other is treated
// as an entity with no values.
func (e *Entity) Diff(other *Entity) []Delta {
	var deltas []Delta

	e.EachAttribute(func(attr schema.Attribute, left value.Value) {
		if !value.Equal(left, other.attr(attr.Name)) {
			deltas = append(deltas, AttributeDelta{Name: attr.Name})
		}
	})

	e.EachRelationship(func(rel schema.Relationship) {
		switch rel.Kind {
		case schema.BelongsTo:
			left, right := e.BelongsTo(rel.Name), other.belongsToSlot(rel.Name)
			switch {
			case left != nil && right != nil:
				if !IsEqual(left, right) {
					deltas = append(deltas, BelongsToDelta{Name: rel.Name, Relationship: rel, OldValue: right})
				}
			case left != nil || right != nil:
				deltas = append(deltas, BelongsToDelta{Name: rel.Name, Relationship: rel, OldValue: right})
			}
		case schema.HasMany:
			if hasManyDiffers(e.HasMany(rel.Name), other.hasManySlot(rel.Name)) {
				deltas = append(deltas, HasManyDelta{Name: rel.Name, Relationship: rel})
			}
		}
	})

	return deltas
}

// hasManyDiffers is a single pass over right against a working set built
// from left: a right member with no match marks a difference, and so does
// any left member left unmatched at the end.
func hasManyDiffers(left, right *RefSet) bool {
	working := newIdentitySet(left.All())
	matched := newIdentitySet(nil)

	for _, r := range right.All() {
		i := working.find(r)
		if i >= 0 {
			matched.insert(working.refs[i])
			working.remove(i)
			continue
		}
		// A repeat of an already matched member is a duplicate, not a difference.
		if matched.find(r) >= 0 {
			continue
		}
		return true
	}
	return working.remaining > 0
}

func (e *Entity) attr(name string) value.Value {
	if e == nil {
		return value.Null{}
	}
	return e.Get(name)
}

func (e *Entity) belongsToSlot(name string) Ref {
	if e == nil {
		return nil
	}
	return e.BelongsTo(name)
}

func (e *Entity) hasManySlot(name string) *RefSet {
	if e == nil {
		return nil
	}
	return e.HasMany(name)
}
