package entity

import (
	"github.com/google/uuid"
)

// ClientIDGenerator produces local identities for entities that have no
// server id yet. Implemented by UUIDv7Generator (production) and
// testutil.FixedClientIDGenerator (tests).
type ClientIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 client ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
