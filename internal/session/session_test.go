package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/roach88/entref/internal/entity"
	"github.com/roach88/entref/internal/store"
	"github.com/roach88/entref/internal/testutil"
	"github.com/roach88/entref/internal/value"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func seed(t *testing.T, st *store.Store, records ...store.Record) {
	t.Helper()
	for _, rec := range records {
		_, err := st.WriteRecord(context.Background(), rec)
		require.NoError(t, err)
	}
}

func seedBlog(t *testing.T, st *store.Store) {
	seed(t, st,
		store.Record{Type: "User", ID: "u1", Attributes: value.Map{"name": value.String("Ada")}},
		store.Record{Type: "Tag", ID: "t1", Attributes: value.Map{"label": value.String("go")}},
		store.Record{
			Type:       "Post",
			ID:         "p1",
			ClientID:   "c-p1",
			Attributes: value.Map{"title": value.String("Hello"), "votes": value.Int(3)},
			BelongsTo:  map[string]store.RecordRef{"author": {Type: "User", ID: "u1"}},
			HasMany:    map[string][]store.RecordRef{"tags": {{Type: "Tag", ID: "t1"}, {Type: "Tag", ID: "t2"}}},
		},
	)
}

func TestLoadBuildsSessionBoundEntity(t *testing.T) {
	f := newFixture(t)
	seedBlog(t, f.store)

	post, err := f.session.Load(context.Background(), f.typ(t, "Post"), "p1")
	require.NoError(t, err)

	assert.Equal(t, "p1", post.ID())
	assert.Equal(t, "c-p1", post.ClientID())
	assert.Same(t, f.session, post.Session())
	assert.Equal(t, value.String("Hello"), post.Get("title"))
	assert.Equal(t, value.Int(3), post.Get("votes"))

	author, ok := post.BelongsTo("author").(*entity.LazyRef)
	require.True(t, ok)
	assert.Equal(t, entity.StateUnresolved, author.State())
	assert.Same(t, f.session, author.Session())
	assert.Equal(t, "u1", author.ID())
	assert.Same(t, f.typ(t, "User"), author.Type())

	require.Equal(t, 2, post.HasMany("tags").Len())
	assert.Equal(t, "t2", post.HasMany("tags").At(1).ID())
}

func TestLoadedEntityStartsAtRevisionZero(t *testing.T) {
	f := newFixture(t)
	seedBlog(t, f.store)

	post, err := f.session.Load(context.Background(), f.typ(t, "Post"), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), post.ClientRevision())

	var changes []entity.Change
	post.Observe(func(c entity.Change) { changes = append(changes, c) })
	require.NoError(t, post.Set("title", value.String("Changed")))

	require.Len(t, changes, 1)
	assert.Equal(t, []string{"title"}, changes[0].Fields)
	assert.Equal(t, int64(1), post.ClientRevision())
}

func TestLoadUsesIdentityMap(t *testing.T) {
	f := newFixture(t)
	seedBlog(t, f.store)
	postType := f.typ(t, "Post")

	first, err := f.session.Load(context.Background(), postType, "p1")
	require.NoError(t, err)
	second, err := f.session.Load(context.Background(), postType, "p1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	f.session.Evict(postType, "p1")
	third, err := f.session.Load(context.Background(), postType, "p1")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.True(t, first.IsEqual(third))
}

func TestLoadFindsSubtypeRecords(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, store.Record{
		Type:       "FeaturedPost",
		ID:         "f1",
		Attributes: value.Map{"title": value.String("Top"), "rank": value.Int(1)},
	})

	e, err := f.session.Load(context.Background(), f.typ(t, "Post"), "f1")
	require.NoError(t, err)
	assert.Same(t, f.typ(t, "FeaturedPost"), e.Type())
	assert.Equal(t, value.Int(1), e.Get("rank"))

	// The subtype is cached under its own name and found again via the supertype.
	again, err := f.session.Load(context.Background(), f.typ(t, "Post"), "f1")
	require.NoError(t, err)
	assert.Same(t, e, again)

	_, err = f.session.Load(context.Background(), f.typ(t, "User"), "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Load(context.Background(), f.typ(t, "Post"), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.session.Load(context.Background(), nil, "missing")
	assert.Error(t, err)
}

func TestLoadSkipsUndeclaredAttributes(t *testing.T) {
	f := newFixture(t)
	seed(t, f.store, store.Record{
		Type:       "Tag",
		ID:         "t1",
		Attributes: value.Map{"label": value.String("go"), "retired": value.Bool(true)},
	})

	tag, err := f.session.Load(context.Background(), f.typ(t, "Tag"), "t1")
	require.NoError(t, err)
	assert.Equal(t, value.String("go"), tag.Get("label"))
	assert.Equal(t, value.Null{}, tag.Get("retired"))
}

func TestFollowingRelationshipLoadsThroughSession(t *testing.T) {
	f := newFixture(t)
	seedBlog(t, f.store)

	post, err := f.session.Find(waitCtx(t), f.typ(t, "Post"), "p1")
	require.NoError(t, err)

	author := post.BelongsTo("author").(*entity.LazyRef)
	assert.Equal(t, value.Null{}, author.Get("name"), "first access returns the default")

	user, err := author.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, value.String("Ada"), author.Get("name"))

	direct, err := f.session.Load(context.Background(), f.typ(t, "User"), "u1")
	require.NoError(t, err)
	assert.Same(t, direct, user)

	missing := post.HasMany("tags").At(1).(*entity.LazyRef)
	_, err = missing.Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, entity.IsLoadFailed(err))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAndSave(t *testing.T) {
	f := newFixture(t)
	postType := f.typ(t, "Post")

	post := f.session.Create(postType)
	assert.Equal(t, "c-1", post.ClientID())
	assert.True(t, post.IsNew())
	assert.True(t, post.IsManaged())

	require.NoError(t, post.Set("title", value.String("Draft")))
	require.NoError(t, post.SetBelongsTo("author", f.session.Ref(f.typ(t, "User"), "u1")))
	post.HasMany("tags").Add(f.session.Ref(f.typ(t, "Tag"), "t1"))

	rec, err := f.session.Save(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, "srv-1", post.ID())
	assert.Equal(t, "srv-1", rec.ID)
	assert.Equal(t, "c-1", rec.ClientID)
	assert.Equal(t, int64(1), rec.Revision)
	assert.Equal(t, store.RecordRef{Type: "User", ID: "u1"}, rec.BelongsTo["author"])

	loaded, err := f.session.Load(context.Background(), postType, "srv-1")
	require.NoError(t, err)
	assert.Same(t, post, loaded, "saved entities join the identity map")

	byClient, err := f.session.LoadByClientID(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Same(t, post, byClient)

	rec, err = f.session.Save(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Revision, "unchanged content keeps its revision")

	require.NoError(t, post.Set("title", value.String("Final")))
	rec, err = f.session.Save(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Revision)
}

func TestSavedEntityRoundTripsWithoutDiff(t *testing.T) {
	f := newFixture(t)
	post := f.session.Create(f.typ(t, "Post"))
	require.NoError(t, post.Set("title", value.String("Hello")))
	require.NoError(t, post.Set("publishedAt", value.NewTime(time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC))))
	require.NoError(t, post.SetBelongsTo("author", f.session.Ref(f.typ(t, "User"), "u1")))
	post.HasMany("tags").Add(f.session.Ref(f.typ(t, "Tag"), "t1"))
	post.SetErrors(value.Map{"title": value.String("too short")})

	_, err := f.session.Save(context.Background(), post)
	require.NoError(t, err)

	fresh := New(f.store, f.registry)
	loaded, err := fresh.Load(context.Background(), f.typ(t, "Post"), post.ID())
	require.NoError(t, err)

	assert.NotSame(t, post, loaded)
	assert.True(t, loaded.IsEqual(post))
	assert.Empty(t, loaded.Diff(post))
	assert.Equal(t, post.Errors(), loaded.Errors())
}

func TestLoadByClientIDNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.LoadByClientID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRequiresTypedEntity(t *testing.T) {
	f := newFixture(t)

	_, err := f.session.Save(context.Background(), nil)
	assert.Error(t, err)
	_, err = f.session.Save(context.Background(), entity.New(nil))
	assert.Error(t, err)
}

func TestLoadRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, WithTracerProvider(tp))
	seedBlog(t, f.store)
	postType := f.typ(t, "Post")

	_, err := f.session.Load(context.Background(), postType, "p1")
	require.NoError(t, err)
	_, err = f.session.Load(context.Background(), postType, "p1")
	require.NoError(t, err)
	_, err = f.session.Load(context.Background(), postType, "missing")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	for _, span := range spans {
		assert.Equal(t, "load-entity", span.Name())
	}
	assert.Contains(t, spans[0].Attributes(), attribute.Bool(TraceAttributeCacheHit, false))
	assert.Contains(t, spans[0].Attributes(), attribute.String(TraceAttributeEntityID, "p1"))
	assert.Contains(t, spans[1].Attributes(), attribute.Bool(TraceAttributeCacheHit, true))
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Equal(t, codes.Error, spans[2].Status().Code)
}

func TestQueryIncludesSubtypesAndUsesIdentityMap(t *testing.T) {
	f := newFixture(t)
	seedBlog(t, f.store)
	seed(t, f.store,
		store.Record{Type: "FeaturedPost", ID: "f1", Attributes: value.Map{"title": value.String("Hello"), "rank": value.Int(1)}},
		store.Record{Type: "Post", ID: "p2", Attributes: value.Map{"title": value.String("Other")}},
	)
	ctx := context.Background()
	postType := f.typ(t, "Post")

	cached, err := f.session.Load(ctx, postType, "p1")
	require.NoError(t, err)
	require.NoError(t, cached.Set("votes", value.Int(99)))

	found, err := f.session.Query(ctx, postType, store.AttrEquals{Name: "title", Value: value.String("Hello")})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "FeaturedPost", found[0].Type().Name)
	assert.Equal(t, "f1", found[0].ID())
	assert.Same(t, cached, found[1])
	assert.Equal(t, value.Int(99), found[1].Get("votes"))

	again, err := f.session.Load(ctx, postType, "f1")
	require.NoError(t, err)
	assert.Same(t, found[0], again)
}

func TestQueryByRelationship(t *testing.T) {
	f := newFixture(t)
	seedBlog(t, f.store)

	found, err := f.session.Query(context.Background(), f.typ(t, "Post"),
		store.HasManyContains{Name: "tags", Target: store.RecordRef{Type: "Tag", ID: "t2"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "p1", found[0].ID())

	none, err := f.session.Query(context.Background(), f.typ(t, "Post"),
		store.BelongsTo{Name: "author", Target: store.RecordRef{ID: "nobody"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryRequiresType(t *testing.T) {
	f := newFixture(t)
	_, err := f.session.Query(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestSaveAssignsGeneratedIDs(t *testing.T) {
	f := newFixture(t,
		WithClientIDGenerator(testutil.NewFixedClientIDGenerator("c-post", "c-tag")),
		WithIDGenerator(testutil.NewFixedClientIDGenerator("p-100", "t-100")),
	)
	ctx := context.Background()

	post := f.session.Create(f.typ(t, "Post"))
	tag := f.session.Create(f.typ(t, "Tag"))
	assert.Equal(t, "c-post", post.ClientID())
	assert.Equal(t, "c-tag", tag.ClientID())

	_, err := f.session.Save(ctx, tag)
	require.NoError(t, err)
	post.HasMany("tags").Add(tag)
	rec, err := f.session.Save(ctx, post)
	require.NoError(t, err)

	assert.Equal(t, "t-100", tag.ID())
	assert.Equal(t, "p-100", rec.ID)
	assert.Equal(t, []store.RecordRef{{Type: "Tag", ID: "t-100", ClientID: "c-tag"}}, rec.HasMany["tags"])

	byClient, err := f.session.LoadByClientID(ctx, "c-post")
	require.NoError(t, err)
	assert.Same(t, post, byClient)
}
