package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidTypeName      = "E201" // type name missing or not an identifier
	ErrDuplicateType        = "E202" // type declared twice
	ErrUnknownParent        = "E203" // extends names an undeclared type
	ErrInheritanceCycle     = "E204" // extends chain loops back on itself
	ErrUnknownTarget        = "E205" // relationship target is undeclared
	ErrInvalidAttributeType = "E206" // attribute type not in the supported set
	ErrDuplicateMember      = "E207" // attribute/relationship name reused (including inherited)
	ErrInvalidKind          = "E208" // relationship kind is not belongsTo or hasMany
	ErrReservedMember       = "E209" // member shadows an identity field
	ErrInvalidMemberName    = "E210" // member name missing or not an identifier
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Identity fields cannot be redeclared as members.
var reservedMembers = map[string]bool{
	"id":        true,
	"clientId":  true,
	"type":      true,
	"isDeleted": true,
	"errors":    true,
}

var validAttributeTypes = map[string]bool{
	AttrString: true,
	AttrInt:    true,
	AttrBool:   true,
	AttrTime:   true,
	AttrList:   true,
	AttrMap:    true,
	AttrAny:    true,
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors collects every problem found while building a Registry.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// validateDeclarations checks each type in isolation. Returns all errors found.
func validateDeclarations(types []*Type) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i, t := range types {
		field := fmt.Sprintf("entity.%s", t.Name)

		// E201
		if !identifierPattern.MatchString(t.Name) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("types[%d].name", i),
				Message: fmt.Sprintf("invalid type name %q", t.Name),
				Code:    ErrInvalidTypeName,
			})
			continue
		}

		// E202
		if seen[t.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate type name: %q", t.Name),
				Code:    ErrDuplicateType,
			})
		}
		seen[t.Name] = true

		for _, a := range t.Attributes {
			errs = append(errs, validateMemberName(field+".attributes", a.Name)...)
			if !validAttributeTypes[a.Type] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.attributes.%s", field, a.Name),
					Message: fmt.Sprintf("invalid attribute type %q", a.Type),
					Code:    ErrInvalidAttributeType,
				})
			}
		}

		for _, r := range t.Relationships {
			errs = append(errs, validateMemberName(field+".relationships", r.Name)...)
			if r.Kind != BelongsTo && r.Kind != HasMany {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.relationships.%s", field, r.Name),
					Message: fmt.Sprintf("relationship kind must be %q or %q, got %q", BelongsTo, HasMany, r.Kind),
					Code:    ErrInvalidKind,
				})
			}
		}
	}

	return errs
}

func validateMemberName(field, name string) []ValidationError {
	if !identifierPattern.MatchString(name) {
		return []ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("invalid member name %q", name),
			Code:    ErrInvalidMemberName,
		}}
	}
	if reservedMembers[name] {
		return []ValidationError{{
			Field:   field + "." + name,
			Message: fmt.Sprintf("%q is an identity field and cannot be declared", name),
			Code:    ErrReservedMember,
		}}
	}
	return nil
}

// validateMembers checks member names across each type's lineage.
// Parents must already be linked and acyclic.
func validateMembers(types []*Type) []ValidationError {
	var errs []ValidationError
	for _, t := range types {
		owner := make(map[string]string)
		for _, cur := range t.Lineage() {
			names := make([]string, 0, len(cur.Attributes)+len(cur.Relationships))
			for _, a := range cur.Attributes {
				names = append(names, a.Name)
			}
			for _, r := range cur.Relationships {
				names = append(names, r.Name)
			}
			for _, name := range names {
				if prev, dup := owner[name]; dup {
					// Report each clash once, on the type that introduces it.
					if cur == t {
						errs = append(errs, ValidationError{
							Field:   fmt.Sprintf("entity.%s.%s", t.Name, name),
							Message: fmt.Sprintf("member %q already declared by %s", name, prev),
							Code:    ErrDuplicateMember,
						})
					}
					continue
				}
				owner[name] = cur.Name
			}
		}
	}
	return errs
}
