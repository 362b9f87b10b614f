package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileType parses a CUE value into a Type.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Post: { attributes: title: string }`)
//	t, err := CompileType(v.LookupPath(cue.ParsePath("entity.Post")))
//
// The returned Type is unlinked; pass it to NewRegistry.
func CompileType(v cue.Value) (*Type, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &Type{}

	// Type name from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		t.Name = labels[len(labels)-1].String()
	}

	extendsVal := v.LookupPath(cue.ParsePath("extends"))
	if extendsVal.Exists() {
		parent, err := extendsVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   "extends",
				Message: "extends must be a type name string",
				Pos:     extendsVal.Pos(),
			}
		}
		t.Extends = parent
	}

	var err error
	t.Attributes, err = parseAttributes(v)
	if err != nil {
		return nil, err
	}

	t.Relationships, err = parseRelationships(v)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// parseAttributes reads the optional attributes struct in declaration order.
func parseAttributes(v cue.Value) ([]Attribute, error) {
	attrsVal := v.LookupPath(cue.ParsePath("attributes"))
	if !attrsVal.Exists() {
		return nil, nil
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var attrs []Attribute
	for iter.Next() {
		typeName, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Name: iter.Label(), Type: typeName})
	}
	return attrs, nil
}

// parseRelationships reads the optional relationships struct.
// Each entry is a single-field struct: {belongsTo: "User"} or {hasMany: "Tag"}.
func parseRelationships(v cue.Value) ([]Relationship, error) {
	relsVal := v.LookupPath(cue.ParsePath("relationships"))
	if !relsVal.Exists() {
		return nil, nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []Relationship
	for iter.Next() {
		name := iter.Label()
		relVal := iter.Value()

		kindIter, err := relVal.Fields()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("relationships.%s", name),
				Message: "relationship must be a struct like {belongsTo: \"Type\"}",
				Pos:     relVal.Pos(),
			}
		}

		rel := Relationship{Name: name}
		count := 0
		for kindIter.Next() {
			count++
			target, err := kindIter.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("relationships.%s.%s", name, kindIter.Label()),
					Message: "relationship target must be a type name string",
					Pos:     kindIter.Value().Pos(),
				}
			}
			rel.Kind = Kind(kindIter.Label())
			rel.Target = target
		}
		if count != 1 {
			return nil, &CompileError{
				Field:   fmt.Sprintf("relationships.%s", name),
				Message: fmt.Sprintf("relationship must declare exactly one kind, found %d", count),
				Pos:     relVal.Pos(),
			}
		}

		rels = append(rels, rel)
	}
	return rels, nil
}

// extractTypeName converts an attribute declaration to a type name.
// A concrete string names the type ("time"); otherwise the CUE kind is used.
// Floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	if name, err := v.String(); err == nil {
		return name, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return AttrString, nil
	case cue.IntKind:
		return AttrInt, nil
	case cue.BoolKind:
		return AttrBool, nil
	case cue.ListKind:
		return AttrList, nil
	case cue.StructKind:
		return AttrMap, nil
	case cue.TopKind:
		return AttrAny, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileValue compiles every type under the value's "entity" struct and
// builds a Registry from them.
func CompileValue(v cue.Value) (*Registry, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entity types declared"}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var types []*Type
	for iter.Next() {
		t, err := CompileType(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("entity.%s: %w", iter.Label(), err)
		}
		types = append(types, t)
	}

	return NewRegistry(types...)
}

// CompileString compiles CUE source text into a Registry.
func CompileString(src, filename string) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileValue(v)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
