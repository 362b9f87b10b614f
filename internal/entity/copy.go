package entity

import (
	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/value"
)

// ShallowCopy returns a new detached entity with the same type, identity,
// flags, errors and attributes. Relationship targets are replaced by lazy
// copies: the copy carries their identity, never their content.
func (e *Entity) ShallowCopy() *Entity {
	dest := &Entity{typ: e.typ}
	dest.initSlots()
	e.CopyTo(dest)
	return dest
}

// Copy implements Ref. For an entity it is ShallowCopy.
func (e *Entity) Copy() Ref {
	return e.ShallowCopy()
}

// CopyTo overwrites dest with e's identity, flags, errors, attributes and
// lazily copied relationships. All writes happen in one batch, so dest's
// observers see a single Change. dest should be of e's type.
func (e *Entity) CopyTo(dest *Entity) {
	scope := dest.BeginChanges()
	defer scope.End()

	dest.SetID(e.id)
	if dest.clientID != e.clientID {
		dest.clientID = e.clientID
		dest.markChanged("clientId")
	}
	dest.SetErrors(e.errors.Clone())
	dest.SetDeleted(e.isDeleted)

	e.EachAttribute(func(attr schema.Attribute, v value.Value) {
		if value.Equal(dest.Get(attr.Name), v) {
			return
		}
		dest.attrs[attr.Name] = value.Clone(v)
		dest.markChanged(attr.Name)
	})

	e.EachRelationship(func(rel schema.Relationship) {
		switch rel.Kind {
		case schema.BelongsTo:
			var child Ref
			if target := e.BelongsTo(rel.Name); target != nil {
				child = target.LazyCopy()
			}
			if child == nil && dest.belongsTo[rel.Name] == nil {
				return
			}
			if child == nil {
				delete(dest.belongsTo, rel.Name)
			} else {
				dest.belongsTo[rel.Name] = child
			}
			dest.markChanged(rel.Name)
		case schema.HasMany:
			children := e.HasMany(rel.Name).All()
			copies := make([]Ref, len(children))
			for i, child := range children {
				copies[i] = child.LazyCopy()
			}
			set := dest.hasMany[rel.Name]
			if set == nil {
				set = dest.newRefSet(rel.Name)
				dest.hasMany[rel.Name] = set
			}
			set.Replace(copies...)
		}
	})
}

// LazyCopy returns a detached, unresolved reference carrying e's identity,
// isDeleted flag and a copy of its errors.
func (e *Entity) LazyCopy() *LazyRef {
	return NewLazyRef(
		WithType(e.typ),
		WithID(e.id),
		WithClientID(e.clientID),
		WithDeleted(e.isDeleted),
		WithErrors(e.errors.Clone()),
	)
}
