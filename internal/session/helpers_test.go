package session

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/store"
	"github.com/roach88/entref/internal/testutil"
)

const blogSchema = `
entity: User: attributes: name: string

entity: Tag: attributes: label: string

entity: Post: {
	attributes: {
		title:       string
		votes:       int
		publishedAt: "time"
	}
	relationships: {
		author: belongsTo: "User"
		tags: hasMany:     "Tag"
	}
}

entity: FeaturedPost: {
	extends: "Post"
	attributes: rank: int
}
`

type fixture struct {
	store    *store.Store
	registry *schema.Registry
	session  *Session
}

func (f fixture) typ(t *testing.T, name string) *schema.Type {
	t.Helper()
	typ, ok := f.registry.Lookup(name)
	require.True(t, ok, name)
	return typ
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()

	reg, err := schema.CompileString(blogSchema, "blog.cue")
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	defaults := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClientIDGenerator(testutil.NewSequentialClientIDGenerator("c")),
		WithIDGenerator(testutil.NewSequentialClientIDGenerator("srv")),
	}
	return fixture{
		store:    st,
		registry: reg,
		session:  New(st, reg, append(defaults, opts...)...),
	}
}
