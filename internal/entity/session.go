package entity

import (
	"context"

	"github.com/roach88/entref/internal/schema"
)

// Session loads entities on behalf of lazy references.
//
// A reference reads its session once, at construction, and keeps it for its
// whole life. Retry and cancellation policy belong to the implementation.
type Session interface {
	Load(ctx context.Context, t *schema.Type, id string) (*Entity, error)
}
