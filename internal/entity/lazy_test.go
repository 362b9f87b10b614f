package entity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/value"
)

func TestPassThroughDefaultsBeforeResolution(t *testing.T) {
	types := newBlogTypes(t)
	deleted := New(types.Post, WithID("p1"), WithDeleted(true),
		WithErrors(value.Map{"title": value.String("required")}))
	session := newFakeSession(deleted)

	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))

	assert.False(t, ref.IsLoaded())
	assert.False(t, ref.IsNew())
	assert.False(t, ref.IsDeleted())
	assert.Nil(t, ref.Errors())
	assert.False(t, ref.HasErrors())
	assert.Equal(t, StateUnresolved, ref.State(), "pass-through reads must not load")

	e, err := ref.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Same(t, deleted, e)

	assert.True(t, ref.IsLoaded())
	assert.True(t, ref.IsDeleted())
	assert.True(t, ref.HasErrors())
	assert.Equal(t, value.Map{"title": value.String("required")}, ref.Errors())
	assert.Equal(t, 1, session.Calls())
}

func TestPassThroughWritesForwardOnceResolved(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.Post, WithID("p1"))
	ref := Resolve(post)

	ref.SetDeleted(true)
	ref.SetErrors(value.Map{"x": value.Bool(true)})
	assert.True(t, post.IsDeleted())
	assert.True(t, post.HasErrors())

	require.NoError(t, ref.Set("title", value.String("via ref")))
	assert.Equal(t, value.String("via ref"), post.Get("title"))
}

func TestEnvelopeWritesBeforeResolution(t *testing.T) {
	types := newBlogTypes(t)
	ref := NewLazyRef(WithType(types.Post), WithID("p1"))

	ref.SetDeleted(true)
	ref.SetErrors(value.Map{"x": value.Bool(true)})

	assert.True(t, ref.IsDeleted())
	assert.True(t, ref.HasErrors())
	assert.Equal(t, StateUnresolved, ref.State())
}

func TestEnvelopeWritesWhileLoadingDoNotReachEntity(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.Post, WithID("p1"))
	session := newFakeSession(post)
	session.gate = make(chan struct{})

	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))
	promise, err := ref.Load(waitCtx(t))
	require.NoError(t, err)
	require.Equal(t, StateLoading, ref.State())

	ref.SetDeleted(true)
	ref.SetErrors(value.Map{"title": value.String("required")})
	assert.True(t, ref.IsDeleted())
	assert.True(t, ref.HasErrors())

	close(session.gate)
	_, err = promise.Wait(waitCtx(t))
	require.NoError(t, err)

	assert.False(t, ref.IsDeleted())
	assert.False(t, ref.HasErrors())
	assert.False(t, post.IsDeleted())
	assert.Nil(t, post.Errors())
	assert.Equal(t, int64(0), post.ClientRevision())

	ref.SetDeleted(true)
	assert.True(t, post.IsDeleted())
}

func TestDataAccessTriggersLoad(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.Post, WithID("p1"))
	mustSet(t, post, "title", value.String("Loaded"))
	session := newFakeSession(post)

	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))

	// The first read returns the default and starts the load.
	assert.Equal(t, value.Null{}, ref.Get("title"))
	assert.NotEqual(t, StateUnresolved, ref.State())

	_, err := ref.Promise().Wait(waitCtx(t))
	require.NoError(t, err)

	assert.Equal(t, value.String("Loaded"), ref.Get("title"))
	assert.Equal(t, StateResolved, ref.State())
	assert.Equal(t, 1, session.Calls())
}

func TestSetBeforeResolutionFailsAndTriggersLoad(t *testing.T) {
	types := newBlogTypes(t)
	session := newFakeSession(New(types.Post, WithID("p1")))
	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))

	err := ref.Set("title", value.String("x"))
	require.Error(t, err)
	assert.True(t, IsNotLoaded(err))

	_, err = ref.Promise().Wait(waitCtx(t))
	require.NoError(t, err)
	require.NoError(t, ref.Set("title", value.String("x")))
}

func TestStructuralOperationsDoNotLoad(t *testing.T) {
	types := newBlogTypes(t)
	session := newFakeSession(New(types.Post, WithID("p1")))
	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))

	assert.Empty(t, ref.Diff(New(types.Post, WithID("p1"))))
	called := false
	ref.EachAttribute(func(schema.Attribute, value.Value) { called = true })
	ref.EachRelationship(func(schema.Relationship) { called = true })
	_ = ref.Copy()
	_ = ref.LazyCopy()

	assert.False(t, called)
	assert.Equal(t, StateUnresolved, ref.State())
	assert.Equal(t, 0, session.Calls())
}

func TestStructuralOperationsForwardOnceResolved(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.Post, WithID("p1"))
	mustSet(t, post, "title", value.String("a"))
	ref := Resolve(post)

	other := post.ShallowCopy()
	mustSet(t, other, "title", value.String("b"))

	require.Len(t, ref.Diff(other), 1)

	var attrs []string
	ref.EachAttribute(func(attr schema.Attribute, _ value.Value) { attrs = append(attrs, attr.Name) })
	assert.Equal(t, []string{"title", "body", "publishedAt", "meta"}, attrs)

	var rels []string
	ref.EachRelationship(func(rel schema.Relationship) { rels = append(rels, rel.Name) })
	assert.Equal(t, []string{"author", "tags"}, rels)
}

func TestLoadWhileLoadingIsProgrammerError(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.Post, WithID("p1"))
	session := newFakeSession(post)
	session.gate = make(chan struct{})

	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))

	first, err := ref.Load(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, StateLoading, ref.State())

	second, err := ref.Load(waitCtx(t))
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, IsAlreadyLoading(err))

	close(session.gate)
	e, err := first.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Same(t, post, e)
	assert.Equal(t, StateResolved, ref.State())
	assert.Equal(t, 1, session.Calls(), "the rejected call must not start a second load")
}

func TestConcurrentLoadsStartOneLoad(t *testing.T) {
	types := newBlogTypes(t)
	session := newFakeSession(New(types.Post, WithID("p1")))
	session.gate = make(chan struct{})
	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, rejected int
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ref.Load(waitCtx(t))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if IsAlreadyLoading(err) {
				rejected++
			}
		}()
	}
	wg.Wait()
	close(session.gate)

	_, err := ref.Promise().Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, rejected)
	assert.Equal(t, 1, session.Calls())
}

func TestLoadDetachedIsProgrammerError(t *testing.T) {
	types := newBlogTypes(t)
	ref := NewLazyRef(WithType(types.Post), WithID("p1"))

	p, err := ref.Load(waitCtx(t))
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, IsDetached(err))

	_, err = ref.Wait(waitCtx(t))
	assert.True(t, IsDetached(err))

	// Data access on a detached ref returns defaults and stays unresolved.
	assert.Equal(t, value.Null{}, ref.Get("title"))
	assert.Nil(t, ref.BelongsTo("author"))
	assert.Nil(t, ref.HasMany("tags"))
	assert.Equal(t, StateUnresolved, ref.State())
}

func TestLoadFailureIsTerminal(t *testing.T) {
	types := newBlogTypes(t)
	session := newFakeSession()
	ref := NewLazyRef(WithType(types.Post), WithID("missing"), WithSession(session))

	_, err := ref.Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, IsLoadFailed(err))
	assert.True(t, errors.Is(err, errNotFound), "load error wraps the session error")
	assert.Equal(t, StateFailed, ref.State())
	assert.Equal(t, err, ref.Err())

	// Further access neither retries nor changes state.
	assert.Equal(t, value.Null{}, ref.Get("title"))
	p, err := ref.Load(waitCtx(t))
	require.NoError(t, err)
	assert.True(t, p.Settled())
	_, err = p.Wait(waitCtx(t))
	assert.True(t, IsLoadFailed(err))

	assert.Equal(t, StateFailed, ref.State())
	assert.Equal(t, 1, session.Calls())
}

func TestFailureDoesNotPoisonOtherRefs(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.Post, WithID("p1"))
	session := newFakeSession(post)
	session.err = errors.New("offline")

	failing := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))
	_, err := failing.Wait(waitCtx(t))
	require.Error(t, err)

	session.mu.Lock()
	session.err = nil
	session.mu.Unlock()

	fresh := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session))
	e, err := fresh.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Same(t, post, e)
	assert.True(t, failing.IsEqual(fresh))
}

func TestLoadOnResolvedReturnsSettledPromise(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.Post, WithID("p1"))
	ref := Resolve(post)

	p, err := ref.Load(waitCtx(t))
	require.NoError(t, err)
	assert.True(t, p.Settled())
	e, err := p.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Same(t, post, e)
}

func TestSessionReturningNilEntityFails(t *testing.T) {
	types := newBlogTypes(t)
	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(nilSession{}))

	_, err := ref.Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, IsLoadFailed(err))
	assert.Contains(t, err.Error(), "no entity")
}

func TestIdentityForwardsAfterResolution(t *testing.T) {
	types := newBlogTypes(t)
	post := New(types.FeaturedPost, WithClientID("c1"))
	ref := Resolve(post, WithType(types.Post))

	post.SetID("new-id")
	assert.Equal(t, "new-id", ref.ID())
	assert.Same(t, types.FeaturedPost, ref.Type())
}

func TestLazyRefString(t *testing.T) {
	types := newBlogTypes(t)

	assert.Equal(t, "(unloaded Post):[p1, null]",
		NewLazyRef(WithType(types.Post), WithID("p1")).String())
	assert.Equal(t, "(unloaded Post):[null, c1]",
		NewLazyRef(WithType(types.Post), WithClientID("c1")).String())
	assert.Equal(t, "(no identifiers)", NewLazyRef(WithType(types.Post)).String())
	assert.Equal(t, "(no identifiers)", NewLazyRef(WithID("p1")).String())
	assert.Equal(t, "Post:[p1, c1]", Resolve(New(types.Post, WithID("p1"), WithClientID("c1"))).String())
}

func TestLazyStateString(t *testing.T) {
	assert.Equal(t, "unresolved", StateUnresolved.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "resolved", StateResolved.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", LazyState(99).String())
}

func TestLazyRefLogsTransitions(t *testing.T) {
	types := newBlogTypes(t)
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	session := newFakeSession(New(types.Post, WithID("p1")))
	ref := NewLazyRef(WithType(types.Post), WithID("p1"), WithSession(session), WithLogger(logger))
	_, err := ref.Wait(waitCtx(t))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "lazy ref load started")
	assert.Contains(t, out, "lazy ref load resolved")
	assert.Contains(t, out, "type=Post")
	assert.Contains(t, out, "id=p1")
}

type nilSession struct{}

func (nilSession) Load(_ context.Context, _ *schema.Type, _ string) (*Entity, error) {
	return nil, nil
}

// syncBuffer is a bytes.Buffer safe for the load goroutine to write to.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
