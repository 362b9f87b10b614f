package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/entref/internal/entity"
	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/store"
)

const tracerName = "github.com/roach88/entref/internal/session"

// ErrNotFound is returned when no record exists for the requested identity.
var ErrNotFound = errors.New("entity not found")

// Trace attribute keys.
const (
	TraceAttributeEntityType  = "entref.entity.type"
	TraceAttributeEntityID    = "entref.entity.id"
	TraceAttributeCacheHit    = "entref.cache.hit"
	TraceAttributeResultCount = "entref.query.results"
)

// Session loads and saves entities through a record store.
type Session struct {
	store    *store.Store
	registry *schema.Registry
	clientID entity.ClientIDGenerator
	serverID entity.ClientIDGenerator
	logger   *slog.Logger
	tracer   trace.Tracer

	mu    sync.Mutex
	cache map[identity]*entity.Entity
}

type identity struct {
	typ string
	id  string
}

// Option configures a Session.
type Option func(*Session)

// WithClientIDGenerator sets the generator for the client ids of entities
// created with Create. Default: entity.UUIDv7Generator.
func WithClientIDGenerator(g entity.ClientIDGenerator) Option {
	return func(s *Session) { s.clientID = g }
}

// WithIDGenerator sets the generator for the server ids assigned when a new
// entity is first saved. Default: entity.UUIDv7Generator.
func WithIDGenerator(g entity.ClientIDGenerator) Option {
	return func(s *Session) { s.serverID = g }
}

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTracerProvider sets the provider spans are started from.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Session) { s.tracer = tp.Tracer(tracerName) }
}

// New creates a session over st. Record types are resolved against reg.
func New(st *store.Store, reg *schema.Registry, opts ...Option) *Session {
	s := &Session{
		store:    st,
		registry: reg,
		clientID: entity.UUIDv7Generator{},
		serverID: entity.UUIDv7Generator{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		cache:    make(map[identity]*entity.Entity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the type registry the session resolves record types with.
func (s *Session) Registry() *schema.Registry {
	return s.registry
}

// Load returns the entity of type t (or a subtype) with the given id.
// Implements entity.Session.
//
// Errors:
//   - ErrNotFound (wrapped) if no record matches
//   - store and decoding errors, wrapped
func (s *Session) Load(ctx context.Context, t *schema.Type, id string) (e *entity.Entity, err error) {
	ctx, span := s.tracer.Start(ctx, "load-entity",
		trace.WithAttributes(
			attribute.String(TraceAttributeEntityType, t.String()),
			attribute.String(TraceAttributeEntityID, id),
		),
	)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if t == nil {
		return nil, fmt.Errorf("load: entity type is required")
	}

	candidates := s.candidates(t)

	if cached := s.cached(candidates, id); cached != nil {
		span.SetAttributes(attribute.Bool(TraceAttributeCacheHit, true))
		s.logger.Debug("session cache hit", "type", cached.Type().String(), "id", id)
		return cached, nil
	}
	span.SetAttributes(attribute.Bool(TraceAttributeCacheHit, false))
	s.logger.Debug("session cache miss", "type", t.String(), "id", id)

	for _, candidate := range candidates {
		rec, ok, err := s.store.ReadRecord(ctx, candidate.Name, id)
		if err != nil {
			s.logger.Warn("session load failed", "type", t.String(), "id", id, "error", err)
			return nil, fmt.Errorf("load %s %s: %w", t, id, err)
		}
		if !ok {
			continue
		}
		e, err := s.fromRecord(rec)
		if err != nil {
			s.logger.Warn("session load failed", "type", t.String(), "id", id, "error", err)
			return nil, fmt.Errorf("load %s %s: %w", t, id, err)
		}
		return s.remember(e), nil
	}

	s.logger.Warn("session load failed", "type", t.String(), "id", id, "error", ErrNotFound)
	return nil, fmt.Errorf("load %s %s: %w", t, id, ErrNotFound)
}

// LoadByClientID returns the saved entity that was created with clientID.
func (s *Session) LoadByClientID(ctx context.Context, clientID string) (e *entity.Entity, err error) {
	ctx, span := s.tracer.Start(ctx, "load-entity-by-client-id")
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	rec, ok, err := s.store.ReadRecordByClientID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load client id %s: %w", clientID, err)
	}
	if !ok {
		return nil, fmt.Errorf("load client id %s: %w", clientID, ErrNotFound)
	}

	if cached := s.cachedExact(rec.Type, rec.ID); cached != nil {
		return cached, nil
	}
	e, err = s.fromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("load client id %s: %w", clientID, err)
	}
	return s.remember(e), nil
}

// Query returns the stored entities of type t or any subtype that match
// filter, ordered by type then id. A nil filter matches every live record.
//
// Results go through the identity map: an entity already held by the session
// is returned as is, with its in-memory state, even if the stored copy
// differs.
func (s *Session) Query(ctx context.Context, t *schema.Type, filter store.Predicate) (out []*entity.Entity, err error) {
	if t == nil {
		return nil, fmt.Errorf("query: entity type is required")
	}

	ctx, span := s.tracer.Start(ctx, "query-entities",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, t.String())),
	)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	candidates := s.candidates(t)
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}

	records, err := s.store.QueryRecords(ctx, store.Query{Types: names, Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t, err)
	}

	out = make([]*entity.Entity, 0, len(records))
	for _, rec := range records {
		if cached := s.cachedExact(rec.Type, rec.ID); cached != nil {
			out = append(out, cached)
			continue
		}
		e, err := s.fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("query %s: %s %s: %w", t, rec.Type, rec.ID, err)
		}
		out = append(out, s.remember(e))
	}

	span.SetAttributes(attribute.Int(TraceAttributeResultCount, len(out)))
	s.logger.Debug("session query", "type", t.String(), "results", len(out))
	return out, nil
}

// Create returns a new entity of type t bound to the session, with a fresh
// client id and no server id.
func (s *Session) Create(t *schema.Type) *entity.Entity {
	return entity.New(t,
		entity.WithClientID(s.clientID.Generate()),
		entity.WithSession(s),
	)
}

// Ref returns an unresolved reference to (t, id) bound to the session.
func (s *Session) Ref(t *schema.Type, id string) *entity.LazyRef {
	return entity.NewLazyRef(
		entity.WithType(t),
		entity.WithID(id),
		entity.WithSession(s),
		entity.WithLogger(s.logger),
	)
}

// Find loads (t, id) through a fresh reference and waits for it.
func (s *Session) Find(ctx context.Context, t *schema.Type, id string) (*entity.Entity, error) {
	return s.Ref(t, id).Wait(ctx)
}

// Save writes e to the store and returns the stored record.
//
// A new entity is assigned a server id first. Saving also registers e in the
// identity map, so later loads of its identity return e itself.
func (s *Session) Save(ctx context.Context, e *entity.Entity) (rec store.Record, err error) {
	if e == nil || e.Type() == nil {
		return store.Record{}, fmt.Errorf("save: entity with a type is required")
	}

	ctx, span := s.tracer.Start(ctx, "save-entity",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, e.Type().String())),
	)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if e.IsNew() {
		e.SetID(s.serverID.Generate())
	}
	span.SetAttributes(attribute.String(TraceAttributeEntityID, e.ID()))

	rec, err = s.store.WriteRecord(ctx, toRecord(e))
	if err != nil {
		return store.Record{}, fmt.Errorf("save %s: %w", e, err)
	}

	s.mu.Lock()
	s.cache[identity{typ: e.Type().Name, id: e.ID()}] = e
	s.mu.Unlock()

	s.logger.Debug("session saved entity", "type", rec.Type, "id", rec.ID, "revision", rec.Revision)
	return rec, nil
}

// Evict drops (t, id) from the identity map. The next load reads the store.
func (s *Session) Evict(t *schema.Type, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, candidate := range s.candidates(t) {
		delete(s.cache, identity{typ: candidate.Name, id: id})
	}
}

// candidates returns t first, then its registered subtypes.
func (s *Session) candidates(t *schema.Type) []*schema.Type {
	out := []*schema.Type{t}
	if s.registry == nil {
		return out
	}
	for _, d := range s.registry.Descendants(t) {
		if d != t {
			out = append(out, d)
		}
	}
	return out
}

func (s *Session) cached(candidates []*schema.Type, id string) *entity.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, candidate := range candidates {
		if e, ok := s.cache[identity{typ: candidate.Name, id: id}]; ok {
			return e
		}
	}
	return nil
}

func (s *Session) cachedExact(typ, id string) *entity.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[identity{typ: typ, id: id}]
}

// remember stores e in the identity map unless a concurrent load got there
// first, and returns the winner.
func (s *Session) remember(e *entity.Entity) *entity.Entity {
	key := identity{typ: e.Type().Name, id: e.ID()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cache[key]; ok {
		return existing
	}
	s.cache[key] = e
	return e
}

// recordAnyErrorAndEndSpan marks span as failed when err is set, then ends it.
func recordAnyErrorAndEndSpan(err error, span trace.Span) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
