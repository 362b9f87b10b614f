package session

import (
	"fmt"

	"github.com/roach88/entref/internal/entity"
	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/store"
	"github.com/roach88/entref/internal/value"
)

// fromRecord builds a session-bound entity from a stored record.
// Relationship slots hold unresolved references bound to the session.
// Attributes the type no longer declares are skipped.
func (s *Session) fromRecord(rec store.Record) (*entity.Entity, error) {
	t, ok := s.lookup(rec.Type)
	if !ok {
		return nil, fmt.Errorf("record type %q is not registered", rec.Type)
	}

	e := entity.New(t,
		entity.WithID(rec.ID),
		entity.WithClientID(rec.ClientID),
		entity.WithSession(s),
		entity.WithDeleted(rec.IsDeleted),
		entity.WithErrors(rec.Errors),
	)

	// Loaded state is the baseline: a fresh entity is at revision 0.
	err := e.Hydrate(func() error {
		for _, name := range rec.Attributes.SortedKeys() {
			if _, declared := t.Attribute(name); !declared {
				s.logger.Warn("skipping undeclared attribute", "type", rec.Type, "id", rec.ID, "attribute", name)
				continue
			}
			if err := e.Set(name, rec.Attributes[name]); err != nil {
				return err
			}
		}

		for _, rel := range t.AllRelationships() {
			switch rel.Kind {
			case schema.BelongsTo:
				target, ok := rec.BelongsTo[rel.Name]
				if !ok {
					continue
				}
				if err := e.SetBelongsTo(rel.Name, s.refTo(rel, target)); err != nil {
					return err
				}
			case schema.HasMany:
				members := rec.HasMany[rel.Name]
				refs := make([]entity.Ref, len(members))
				for i, member := range members {
					refs[i] = s.refTo(rel, member)
				}
				e.HasMany(rel.Name).Replace(refs...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e, nil
}

// refTo returns an unresolved reference for a stored relationship target.
// A target type the registry does not know falls back to the declared target.
func (s *Session) refTo(rel schema.Relationship, target store.RecordRef) *entity.LazyRef {
	t, ok := s.lookup(target.Type)
	if !ok {
		t = rel.TargetType
	}
	return entity.NewLazyRef(
		entity.WithType(t),
		entity.WithID(target.ID),
		entity.WithClientID(target.ClientID),
		entity.WithSession(s),
		entity.WithLogger(s.logger),
	)
}

func (s *Session) lookup(name string) (*schema.Type, bool) {
	if s.registry == nil {
		return nil, false
	}
	return s.registry.Lookup(name)
}

// toRecord captures e's current state. Null attributes are omitted.
func toRecord(e *entity.Entity) store.Record {
	rec := store.Record{
		Type:       e.Type().Name,
		ID:         e.ID(),
		ClientID:   e.ClientID(),
		Attributes: value.Map{},
		BelongsTo:  map[string]store.RecordRef{},
		HasMany:    map[string][]store.RecordRef{},
		IsDeleted:  e.IsDeleted(),
		Errors:     e.Errors(),
	}

	e.EachAttribute(func(attr schema.Attribute, v value.Value) {
		if !value.IsNull(v) {
			rec.Attributes[attr.Name] = v
		}
	})

	e.EachRelationship(func(rel schema.Relationship) {
		switch rel.Kind {
		case schema.BelongsTo:
			if target := e.BelongsTo(rel.Name); target != nil {
				rec.BelongsTo[rel.Name] = recordRef(target)
			}
		case schema.HasMany:
			members := e.HasMany(rel.Name).All()
			refs := make([]store.RecordRef, len(members))
			for i, m := range members {
				refs[i] = recordRef(m)
			}
			rec.HasMany[rel.Name] = refs
		}
	})

	return rec
}

func recordRef(r entity.Ref) store.RecordRef {
	ref := store.RecordRef{ID: r.ID(), ClientID: r.ClientID()}
	if t := r.Type(); t != nil {
		ref.Type = t.Name
	}
	return ref
}
