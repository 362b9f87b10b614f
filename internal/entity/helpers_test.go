package entity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/value"
)

var errNotFound = errors.New("not found")

// blogTypes is the schema shared by the entity tests.
type blogTypes struct {
	User         *schema.Type
	Tag          *schema.Type
	Post         *schema.Type
	FeaturedPost *schema.Type
}

func newBlogTypes(t *testing.T) blogTypes {
	t.Helper()

	reg, err := schema.NewRegistry(
		&schema.Type{Name: "User", Attributes: []schema.Attribute{{Name: "name", Type: schema.AttrString}}},
		&schema.Type{Name: "Tag", Attributes: []schema.Attribute{{Name: "label", Type: schema.AttrString}}},
		&schema.Type{
			Name: "Post",
			Attributes: []schema.Attribute{
				{Name: "title", Type: schema.AttrString},
				{Name: "body", Type: schema.AttrString},
				{Name: "publishedAt", Type: schema.AttrTime},
				{Name: "meta", Type: schema.AttrMap},
			},
			Relationships: []schema.Relationship{
				{Name: "author", Kind: schema.BelongsTo, Target: "User"},
				{Name: "tags", Kind: schema.HasMany, Target: "Tag"},
			},
		},
		&schema.Type{
			Name:       "FeaturedPost",
			Extends:    "Post",
			Attributes: []schema.Attribute{{Name: "rank", Type: schema.AttrInt}},
		},
	)
	require.NoError(t, err)

	lookup := func(name string) *schema.Type {
		typ, ok := reg.Lookup(name)
		require.True(t, ok, name)
		return typ
	}
	return blogTypes{
		User:         lookup("User"),
		Tag:          lookup("Tag"),
		Post:         lookup("Post"),
		FeaturedPost: lookup("FeaturedPost"),
	}
}

// fakeSession serves entities by id and counts Load calls.
// When gate is set, Load blocks until the gate is closed.
type fakeSession struct {
	mu       sync.Mutex
	entities map[string]*Entity
	err      error
	gate     chan struct{}
	calls    int
}

func newFakeSession(entities ...*Entity) *fakeSession {
	s := &fakeSession{entities: make(map[string]*Entity)}
	for _, e := range entities {
		s.entities[e.ID()] = e
	}
	return s
}

func (s *fakeSession) Load(ctx context.Context, _ *schema.Type, id string) (*Entity, error) {
	s.mu.Lock()
	s.calls++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	e, ok := s.entities[id]
	if !ok {
		return nil, errNotFound
	}
	return e, nil
}

func (s *fakeSession) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustSet(t *testing.T, e *Entity, name string, v value.Value) {
	t.Helper()
	require.NoError(t, e.Set(name, v))
}
