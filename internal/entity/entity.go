package entity

import (
	"fmt"
	"log/slog"

	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/value"
)

// Entity is a loaded record: identity, flags, attributes and relationships.
//
// Attributes and relationships follow the type's declarations. belongsTo
// slots hold one Ref or nil; hasMany slots hold a *RefSet.
//
// Entity is not safe for concurrent mutation. Writers coordinate through
// change batches (BeginChanges / Batch), not locks.
type Entity struct {
	typ       *schema.Type
	id        string
	clientID  string
	session   Session
	isDeleted bool
	errors    value.Map

	attrs     map[string]value.Value
	belongsTo map[string]Ref
	hasMany   map[string]*RefSet

	changes changeTracker
}

// Option configures New, NewLazyRef and Resolve.
type Option func(*config)

type config struct {
	typ       *schema.Type
	id        string
	clientID  string
	session   Session
	logger    *slog.Logger
	isDeleted bool
	errors    value.Map
}

func buildConfig(opts []Option) config {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithType sets the type of a lazy reference (ignored by New).
func WithType(t *schema.Type) Option {
	return func(c *config) { c.typ = t }
}

// WithID sets the server id.
func WithID(id string) Option {
	return func(c *config) { c.id = id }
}

// WithClientID sets the local id.
func WithClientID(clientID string) Option {
	return func(c *config) { c.clientID = clientID }
}

// WithSession binds the entity or reference to a session.
func WithSession(s Session) Option {
	return func(c *config) { c.session = s }
}

// WithLogger sets the logger a lazy reference reports load transitions to.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDeleted sets the initial isDeleted flag.
func WithDeleted(deleted bool) Option {
	return func(c *config) { c.isDeleted = deleted }
}

// WithErrors sets the initial validation errors payload.
func WithErrors(errs value.Map) Option {
	return func(c *config) { c.errors = errs }
}

// New creates an entity of type t. Without WithSession the entity is detached.
func New(t *schema.Type, opts ...Option) *Entity {
	cfg := buildConfig(opts)
	e := &Entity{
		typ:       t,
		id:        cfg.id,
		clientID:  cfg.clientID,
		session:   cfg.session,
		isDeleted: cfg.isDeleted,
		errors:    cfg.errors,
	}
	e.initSlots()
	return e
}

func (e *Entity) initSlots() {
	e.attrs = make(map[string]value.Value)
	e.belongsTo = make(map[string]Ref)
	e.hasMany = make(map[string]*RefSet)
	for _, rel := range e.typ.AllRelationships() {
		if rel.Kind == schema.HasMany {
			e.hasMany[rel.Name] = e.newRefSet(rel.Name)
		}
	}
}

func (e *Entity) newRefSet(name string) *RefSet {
	return &RefSet{onChange: func() { e.markChanged(name) }}
}

func (e *Entity) resolvable() {}

// Type returns the entity's type.
func (e *Entity) Type() *schema.Type { return e.typ }

// ID returns the server id, or "" if the entity has not been saved.
func (e *Entity) ID() string { return e.id }

// ClientID returns the local id, or "".
func (e *Entity) ClientID() string { return e.clientID }

// SetID assigns the server id.
func (e *Entity) SetID(id string) {
	if e.id == id {
		return
	}
	e.id = id
	e.markChanged("id")
}

// AssignClientID sets the local id once. Later calls are ignored.
func (e *Entity) AssignClientID(clientID string) {
	if e.clientID != "" || clientID == "" {
		return
	}
	e.clientID = clientID
	e.markChanged("clientId")
}

// Session returns the owning session, or nil when detached.
func (e *Entity) Session() Session { return e.session }

// IsManaged reports whether the entity is bound to a session.
func (e *Entity) IsManaged() bool { return e.session != nil }

// IsDetached reports whether the entity has no session.
func (e *Entity) IsDetached() bool { return e.session == nil }

// IsLoaded is always true for an entity.
func (e *Entity) IsLoaded() bool { return true }

// IsNew reports whether the entity has no server id.
func (e *Entity) IsNew() bool { return e.id == "" }

// IsDeleted reports whether the entity is marked deleted.
func (e *Entity) IsDeleted() bool { return e.isDeleted }

// SetDeleted sets the deleted flag.
func (e *Entity) SetDeleted(deleted bool) {
	if e.isDeleted == deleted {
		return
	}
	e.isDeleted = deleted
	e.markChanged("isDeleted")
}

// Errors returns the validation errors payload, or nil.
func (e *Entity) Errors() value.Map { return e.errors }

// HasErrors reports whether an errors payload is present.
func (e *Entity) HasErrors() bool { return e.errors != nil }

// SetErrors replaces the validation errors payload. nil clears it.
func (e *Entity) SetErrors(errs value.Map) {
	if e.errors == nil && errs == nil {
		return
	}
	e.errors = errs
	e.markChanged("errors")
}

// Get returns the attribute value, or Null when unset or undeclared.
func (e *Entity) Get(name string) value.Value {
	if v, ok := e.attrs[name]; ok && v != nil {
		return v
	}
	return value.Null{}
}

// Set writes an attribute. The attribute must be declared and accept v.
func (e *Entity) Set(name string, v value.Value) error {
	attr, ok := e.typ.Attribute(name)
	if !ok {
		return identityError(ErrCodeUnknownMember, fmt.Sprintf("%s has no attribute %q", e.typ, name), e)
	}
	if v == nil {
		v = value.Null{}
	}
	if !attr.Accepts(v) {
		return identityError(ErrCodeTypeMismatch,
			fmt.Sprintf("attribute %q expects %s, got %s", name, attr.Type, value.Kind(v)), e)
	}
	if value.Equal(e.Get(name), v) {
		return nil
	}
	e.attrs[name] = v
	e.markChanged(name)
	return nil
}

// BelongsTo returns the reference held by a belongsTo slot, or nil.
func (e *Entity) BelongsTo(name string) Ref {
	return e.belongsTo[name]
}

// SetBelongsTo writes a belongsTo slot. A nil ref clears it. The target's
// type, when known, must be the declared target type or a subtype.
func (e *Entity) SetBelongsTo(name string, r Ref) error {
	rel, ok := e.typ.Relationship(name)
	if !ok || rel.Kind != schema.BelongsTo {
		return identityError(ErrCodeUnknownMember, fmt.Sprintf("%s has no belongsTo %q", e.typ, name), e)
	}
	if isNilRef(r) {
		if e.belongsTo[name] == nil {
			return nil
		}
		delete(e.belongsTo, name)
		e.markChanged(name)
		return nil
	}
	if rel.TargetType != nil && r.Type() != nil && !rel.TargetType.Detects(r.Type()) {
		return identityError(ErrCodeTypeMismatch,
			fmt.Sprintf("%s.%s expects %s, got %s", e.typ, name, rel.TargetType, r.Type()), e)
	}
	if e.belongsTo[name] == r {
		return nil
	}
	e.belongsTo[name] = r
	e.markChanged(name)
	return nil
}

// HasMany returns the live collection for a hasMany slot, or nil when the
// type declares no such relationship. Mutating the set notifies observers.
func (e *Entity) HasMany(name string) *RefSet {
	return e.hasMany[name]
}

// EachAttribute calls fn for every declared attribute, in declaration order,
// with its current value.
func (e *Entity) EachAttribute(fn func(attr schema.Attribute, v value.Value)) {
	for _, attr := range e.typ.AllAttributes() {
		fn(attr, e.Get(attr.Name))
	}
}

// EachRelationship calls fn for every declared relationship in declaration order.
func (e *Entity) EachRelationship(fn func(rel schema.Relationship)) {
	for _, rel := range e.typ.AllRelationships() {
		fn(rel)
	}
}

// IsEqual reports whether other denotes the same logical entity.
func (e *Entity) IsEqual(other Ref) bool {
	return IsEqual(e, other)
}

// String renders the type and identity: "Post:[12, 0190...]".
func (e *Entity) String() string {
	return e.typ.String() + ":" + formatIdentity(e.id, e.clientID)
}
