package entity

import (
	"fmt"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/value"
)

// Ref is the capability set shared by *Entity and *LazyRef.
//
// Identity reads (Type, ID, ClientID), the pass-through flags, and the
// structural operations never trigger a load.
type Ref interface {
	fmt.Stringer

	Type() *schema.Type
	ID() string
	ClientID() string

	IsLoaded() bool
	IsNew() bool
	IsDeleted() bool
	Errors() value.Map
	HasErrors() bool
	IsManaged() bool

	IsEqual(other Ref) bool
	Diff(other *Entity) []Delta
	EachAttribute(fn func(attr schema.Attribute, v value.Value))
	EachRelationship(fn func(rel schema.Relationship))

	// Copy returns a shallow copy when content is available, else a lazy copy.
	Copy() Ref
	// LazyCopy returns a detached, unresolved reference with the same
	// identity, isDeleted flag and errors.
	LazyCopy() *LazyRef
}

var (
	_ Ref = (*Entity)(nil)
	_ Ref = (*LazyRef)(nil)
)

// IsEqual reports whether a and b denote the same logical entity.
//
// When both carry a client id, only client ids are compared. Otherwise the
// types must match covariantly and the ids must be equal. Two nil refs are
// equal; a nil ref equals nothing else.
func IsEqual(a, b Ref) bool {
	aNil, bNil := isNilRef(a), isNilRef(b)
	if aNil || bNil {
		return aNil && bNil
	}

	aClient, bClient := a.ClientID(), b.ClientID()
	if aClient != "" && bClient != "" {
		return aClient == bClient
	}
	return typesMatch(a.Type(), b.Type()) && a.ID() == b.ID()
}

// typesMatch is covariant in both directions so that IsEqual stays symmetric.
func typesMatch(a, b *schema.Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Detects(b) || b.Detects(a)
}

// isNilRef catches typed nil pointers stored in a Ref.
func isNilRef(r Ref) bool {
	switch v := r.(type) {
	case nil:
		return true
	case *Entity:
		return v == nil
	case *LazyRef:
		return v == nil
	}
	return false
}

func formatIdentity(id, clientID string) string {
	return fmt.Sprintf("[%s, %s]", orNull(id), orNull(clientID))
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}
