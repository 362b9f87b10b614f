package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Registry is a linked, validated set of entity types.
// It is immutable once built and safe for concurrent reads.
type Registry struct {
	types map[string]*Type
	order []string
}

// NewRegistry validates the declared types, links each type to its parent
// and each relationship to its target, and returns the registry.
//
// The Type values are linked in place. On failure the returned error is a
// ValidationErrors holding every problem found.
func NewRegistry(types ...*Type) (*Registry, error) {
	errs := validateDeclarations(types)

	byName := make(map[string]*Type, len(types))
	for _, t := range types {
		if _, dup := byName[t.Name]; !dup && identifierPattern.MatchString(t.Name) {
			byName[t.Name] = t
		}
	}

	// E203: unknown parents
	for _, t := range byName {
		t.Parent = nil
		if t.Extends == "" {
			continue
		}
		if _, ok := byName[t.Extends]; !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("entity.%s.extends", t.Name),
				Message: fmt.Sprintf("unknown parent type %q", t.Extends),
				Code:    ErrUnknownParent,
			})
		}
	}

	// E204: cycles. Members of a loop are left unlinked so later passes terminate.
	inCycle := make(map[string]bool)
	for _, loop := range findInheritanceCycles(byName) {
		for _, name := range loop {
			inCycle[name] = true
		}
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("entity.%s.extends", loop[0]),
			Message: fmt.Sprintf("inheritance cycle: %s", strings.Join(loop, " -> ")),
			Code:    ErrInheritanceCycle,
		})
	}

	for _, t := range byName {
		if inCycle[t.Name] {
			continue
		}
		if parent, ok := byName[t.Extends]; ok && !inCycle[parent.Name] {
			t.Parent = parent
		}
	}

	// E205: relationship targets
	for _, t := range types {
		for i := range t.Relationships {
			rel := &t.Relationships[i]
			target, ok := byName[rel.Target]
			if !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entity.%s.relationships.%s", t.Name, rel.Name),
					Message: fmt.Sprintf("unknown target type %q", rel.Target),
					Code:    ErrUnknownTarget,
				})
				continue
			}
			rel.TargetType = target
		}
	}

	errs = append(errs, validateMembers(sortedTypes(byName))...)

	if len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	reg := &Registry{types: byName}
	for _, t := range types {
		reg.order = append(reg.order, t.Name)
	}
	slices.Sort(reg.order)
	return reg, nil
}

// MustNewRegistry is NewRegistry for fixtures; it panics on invalid types.
func MustNewRegistry(types ...*Type) *Registry {
	reg, err := NewRegistry(types...)
	if err != nil {
		panic(err)
	}
	return reg
}

// Lookup returns the type with the given name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns all types sorted by name.
func (r *Registry) Types() []*Type {
	out := make([]*Type, len(r.order))
	for i, name := range r.order {
		out[i] = r.types[name]
	}
	return out
}

// Descendants returns t and every registered subtype of t, sorted by name.
func (r *Registry) Descendants(t *Type) []*Type {
	var out []*Type
	for _, name := range r.order {
		if candidate := r.types[name]; t.Detects(candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

func sortedTypes(m map[string]*Type) []*Type {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]*Type, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
