package entity

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/value"
)

// LazyState is the load state of a LazyRef.
type LazyState int

const (
	// StateUnresolved holds identity only; no load has started.
	StateUnresolved LazyState = iota
	// StateLoading has one load in flight.
	StateLoading
	// StateResolved holds the loaded entity. Terminal.
	StateResolved
	// StateFailed holds the load error. Terminal: a failed reference is
	// never retried; ask the session for a fresh reference instead.
	StateFailed
)

func (s LazyState) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateLoading:
		return "loading"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LazyRef stands in for an entity that may not be loaded yet.
//
// Identity reads, the pass-through flags (IsLoaded, IsNew, IsDeleted,
// Errors, HasErrors) and the structural operations (Diff, EachAttribute,
// EachRelationship, Copy, String) never trigger a load. Data access (Get,
// Set, BelongsTo, SetBelongsTo, HasMany, Wait) on an unresolved reference
// with a session starts a background load and returns the default for now.
// Once resolved, every read and write is forwarded to the entity.
//
// Until resolution the pass-through flags read from an envelope: IsLoaded
// and IsNew are false, IsDeleted and Errors hold the values the reference
// was created with. SetDeleted and SetErrors on an unresolved or loading
// reference write the envelope only. The loaded entity's own flags replace
// the envelope at resolution and those writes are not carried over.
//
// Thread-safety: LazyRef is safe for concurrent use. Loads settle on a
// background goroutine.
type LazyRef struct {
	// Immutable after construction.
	typ      *schema.Type
	id       string
	clientID string
	session  Session
	logger   *slog.Logger
	promise  *Promise

	mu        sync.Mutex
	state     LazyState
	entity    *Entity
	err       error
	isDeleted bool
	errors    value.Map
}

// NewLazyRef returns an unresolved reference. Without WithSession it is
// detached and can never load.
func NewLazyRef(opts ...Option) *LazyRef {
	return newLazyRef(buildConfig(opts))
}

func newLazyRef(cfg config) *LazyRef {
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LazyRef{
		typ:       cfg.typ,
		id:        cfg.id,
		clientID:  cfg.clientID,
		session:   cfg.session,
		logger:    logger,
		promise:   NewPromise(),
		isDeleted: cfg.isDeleted,
		errors:    cfg.errors,
	}
}

func (r *LazyRef) resolvable() {}

// content is the single dispatch point for every forwarded access. It
// returns the entity when resolved. With trigger set, an unresolved
// reference that has a session starts loading.
func (r *LazyRef) content(trigger bool) *Entity {
	r.mu.Lock()
	if r.state == StateResolved {
		e := r.entity
		r.mu.Unlock()
		return e
	}
	start := trigger && r.state == StateUnresolved && r.session != nil
	if start {
		r.state = StateLoading
	}
	r.mu.Unlock()

	if start {
		r.startLoad(context.Background())
	}
	return nil
}

// Content returns the loaded entity without triggering a load.
func (r *LazyRef) Content() (*Entity, bool) {
	e := r.content(false)
	return e, e != nil
}

func (r *LazyRef) startLoad(ctx context.Context) {
	r.logger.Debug("lazy ref load started", r.logAttrs()...)
	go func() {
		e, err := r.session.Load(ctx, r.typ, r.id)
		r.settle(e, err)
	}()
}

// settle drives the reference to resolved or failed. Settling a reference
// that is already terminal has no effect.
func (r *LazyRef) settle(e *Entity, err error) {
	if err == nil && e == nil {
		err = errors.New("session returned no entity")
	}

	r.mu.Lock()
	if r.state == StateResolved || r.state == StateFailed {
		r.mu.Unlock()
		return
	}

	if err != nil {
		if !IsLoadFailed(err) {
			err = r.identityErr(ErrCodeLoadFailed, "load failed", err)
		}
		r.state = StateFailed
		r.err = err
		r.mu.Unlock()

		r.logger.Debug("lazy ref load failed", append(r.logAttrs(), slog.String("error", err.Error()))...)
		r.promise.Reject(err)
		return
	}

	r.state = StateResolved
	r.entity = e
	r.mu.Unlock()

	r.logger.Debug("lazy ref load resolved", r.logAttrs()...)
	r.promise.Resolve(e)
}

// Load starts loading explicitly with the caller's context.
//
// Errors (programmer errors, returned immediately):
//   - ALREADY_LOADING if a load is in flight; no second load is started
//   - DETACHED if the reference has no session
//
// A resolved or failed reference returns its settled promise and does not
// load again.
func (r *LazyRef) Load(ctx context.Context) (*Promise, error) {
	r.mu.Lock()
	switch {
	case r.state == StateResolved || r.state == StateFailed:
		r.mu.Unlock()
		return r.promise, nil
	case r.session == nil:
		r.mu.Unlock()
		return nil, r.identityErr(ErrCodeDetached, "must be attached to a session", nil)
	case r.state == StateLoading:
		r.mu.Unlock()
		return nil, r.identityErr(ErrCodeAlreadyLoading, "already loading", nil)
	}
	r.state = StateLoading
	r.mu.Unlock()

	r.startLoad(ctx)
	return r.promise, nil
}

// Wait triggers a load if needed and blocks until the reference settles or
// ctx is done. A detached, unresolved reference returns DETACHED.
func (r *LazyRef) Wait(ctx context.Context) (*Entity, error) {
	if e := r.content(true); e != nil {
		return e, nil
	}
	if r.State() == StateUnresolved {
		return nil, r.identityErr(ErrCodeDetached, "must be attached to a session", nil)
	}
	return r.promise.Wait(ctx)
}

// Promise returns the promise that settles with the reference.
func (r *LazyRef) Promise() *Promise {
	return r.promise
}

// State returns the current load state.
func (r *LazyRef) State() LazyState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the load error of a failed reference, or nil.
func (r *LazyRef) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Session returns the session the reference loads through, or nil.
func (r *LazyRef) Session() Session { return r.session }

// IsManaged reports whether the reference has a session.
func (r *LazyRef) IsManaged() bool { return r.session != nil }

// IsDetached reports whether the reference has no session.
func (r *LazyRef) IsDetached() bool { return r.session == nil }

// Identity. Forwarded once resolved, so a saved entity's new id shows through.

// Type returns the entity type.
func (r *LazyRef) Type() *schema.Type {
	if e := r.content(false); e != nil {
		return e.Type()
	}
	return r.typ
}

// ID returns the server id.
func (r *LazyRef) ID() string {
	if e := r.content(false); e != nil {
		return e.ID()
	}
	return r.id
}

// ClientID returns the local id.
func (r *LazyRef) ClientID() string {
	if e := r.content(false); e != nil {
		return e.ClientID()
	}
	return r.clientID
}

// Pass-through flags.

// IsLoaded reports whether the reference is resolved.
func (r *LazyRef) IsLoaded() bool {
	if e := r.content(false); e != nil {
		return e.IsLoaded()
	}
	return false
}

// IsNew is false until resolved, then the entity's value.
func (r *LazyRef) IsNew() bool {
	if e := r.content(false); e != nil {
		return e.IsNew()
	}
	return false
}

// IsDeleted returns the entity's flag once resolved, else the envelope's.
func (r *LazyRef) IsDeleted() bool {
	if e := r.content(false); e != nil {
		return e.IsDeleted()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDeleted
}

// SetDeleted writes the entity's flag once resolved, else the envelope's.
// An envelope write is discarded when the reference resolves.
func (r *LazyRef) SetDeleted(deleted bool) {
	if e := r.content(false); e != nil {
		e.SetDeleted(deleted)
		return
	}
	r.mu.Lock()
	r.isDeleted = deleted
	r.mu.Unlock()
}

// Errors returns the entity's errors once resolved, else the envelope's.
func (r *LazyRef) Errors() value.Map {
	if e := r.content(false); e != nil {
		return e.Errors()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// SetErrors writes the entity's errors once resolved, else the envelope's.
// An envelope write is discarded when the reference resolves.
func (r *LazyRef) SetErrors(errs value.Map) {
	if e := r.content(false); e != nil {
		e.SetErrors(errs)
		return
	}
	r.mu.Lock()
	r.errors = errs
	r.mu.Unlock()
}

// HasErrors reports whether an errors payload is present.
func (r *LazyRef) HasErrors() bool {
	return r.Errors() != nil
}

// Data access. These trigger a load on an unresolved reference.

// Get returns the attribute value, or Null until resolved.
func (r *LazyRef) Get(name string) value.Value {
	if e := r.content(true); e != nil {
		return e.Get(name)
	}
	return value.Null{}
}

// Set writes an attribute. Returns NOT_LOADED until resolved.
func (r *LazyRef) Set(name string, v value.Value) error {
	if e := r.content(true); e != nil {
		return e.Set(name, v)
	}
	return r.identityErr(ErrCodeNotLoaded, "cannot set "+name+" before the entity is loaded", nil)
}

// BelongsTo returns a belongsTo target, or nil until resolved.
func (r *LazyRef) BelongsTo(name string) Ref {
	if e := r.content(true); e != nil {
		return e.BelongsTo(name)
	}
	return nil
}

// SetBelongsTo writes a belongsTo slot. Returns NOT_LOADED until resolved.
func (r *LazyRef) SetBelongsTo(name string, target Ref) error {
	if e := r.content(true); e != nil {
		return e.SetBelongsTo(name, target)
	}
	return r.identityErr(ErrCodeNotLoaded, "cannot set "+name+" before the entity is loaded", nil)
}

// HasMany returns a hasMany collection, or nil until resolved.
func (r *LazyRef) HasMany(name string) *RefSet {
	if e := r.content(true); e != nil {
		return e.HasMany(name)
	}
	return nil
}

// Structural operations. Forwarded once resolved, neutral otherwise.

// Diff returns the entity's diff against other, or nothing until resolved.
func (r *LazyRef) Diff(other *Entity) []Delta {
	if e := r.content(false); e != nil {
		return e.Diff(other)
	}
	return nil
}

// EachAttribute iterates the entity's attributes, or does nothing until resolved.
func (r *LazyRef) EachAttribute(fn func(attr schema.Attribute, v value.Value)) {
	if e := r.content(false); e != nil {
		e.EachAttribute(fn)
	}
}

// EachRelationship iterates the entity's relationships, or does nothing until resolved.
func (r *LazyRef) EachRelationship(fn func(rel schema.Relationship)) {
	if e := r.content(false); e != nil {
		e.EachRelationship(fn)
	}
}

// Copy returns a shallow copy of the entity once resolved, else a lazy copy.
func (r *LazyRef) Copy() Ref {
	if e := r.content(false); e != nil {
		return e.Copy()
	}
	return r.LazyCopy()
}

// LazyCopy returns a detached, unresolved reference with the same identity,
// isDeleted flag and errors.
func (r *LazyRef) LazyCopy() *LazyRef {
	return NewLazyRef(
		WithType(r.Type()),
		WithID(r.ID()),
		WithClientID(r.ClientID()),
		WithDeleted(r.IsDeleted()),
		WithErrors(r.Errors().Clone()),
		WithLogger(r.logger),
	)
}

// IsEqual reports whether other denotes the same logical entity.
func (r *LazyRef) IsEqual(other Ref) bool {
	return IsEqual(r, other)
}

// String renders the entity once resolved, else "(unloaded Post):[id, clientId]",
// or "(no identifiers)" when the reference has no type or ids.
func (r *LazyRef) String() string {
	if e := r.content(false); e != nil {
		return e.String()
	}
	if r.typ != nil && (r.id != "" || r.clientID != "") {
		return "(unloaded " + r.typ.String() + "):" + formatIdentity(r.id, r.clientID)
	}
	return "(no identifiers)"
}

// identityErr builds a RuntimeError from the reference's own identity.
// It reads only immutable fields, so it is safe to call with mu held.
func (r *LazyRef) identityErr(code RuntimeErrorCode, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:     code,
		Message:  msg,
		Type:     r.typ.String(),
		ID:       r.id,
		ClientID: r.clientID,
		Cause:    cause,
	}
}

func (r *LazyRef) logAttrs() []any {
	return []any{
		slog.String("type", r.typ.String()),
		slog.String("id", r.id),
		slog.String("client_id", r.clientID),
	}
}
