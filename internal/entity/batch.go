package entity

import (
	"slices"
)

// Change is one consolidated notification: the fields written during a batch
// (or by a single write outside any batch), sorted by name.
type Change struct {
	Entity   *Entity
	Fields   []string
	Revision int64
}

// Observer receives change notifications.
type Observer func(Change)

type observerEntry struct {
	id int
	fn Observer
}

// changeTracker holds the per-entity batching state.
type changeTracker struct {
	observers []observerEntry
	nextID    int
	depth     int
	pending   map[string]struct{}
	revision  int64
}

// ChangeScope is an open batch on an entity. Writes made while any scope is
// open are coalesced; ending the outermost scope fires a single Change.
type ChangeScope struct {
	e     *Entity
	ended bool
}

// Observe registers fn for change notifications and returns a function that
// removes it. Observers are called in registration order.
func (e *Entity) Observe(fn Observer) (cancel func()) {
	t := &e.changes
	id := t.nextID
	t.nextID++
	t.observers = append(t.observers, observerEntry{id: id, fn: fn})

	return func() {
		t.observers = slices.DeleteFunc(t.observers, func(o observerEntry) bool {
			return o.id == id
		})
	}
}

// BeginChanges opens a batch. Scopes nest; only the outermost End notifies.
func (e *Entity) BeginChanges() *ChangeScope {
	e.changes.depth++
	return &ChangeScope{e: e}
}

// End closes the scope. Calling End more than once has no further effect.
func (s *ChangeScope) End() {
	if s.ended {
		return
	}
	s.ended = true

	t := &s.e.changes
	t.depth--
	if t.depth > 0 || len(t.pending) == 0 {
		return
	}

	fields := make([]string, 0, len(t.pending))
	for f := range t.pending {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	t.pending = nil
	s.e.notify(fields)
}

// Batch runs fn inside a change scope.
func (e *Entity) Batch(fn func()) {
	scope := e.BeginChanges()
	defer scope.End()
	fn()
}

// Hydrate runs fn to fill the entity from stored state. Writes made by fn
// are not change notifications: observers are not called and ClientRevision
// does not move. Changes pending in an open batch are kept.
func (e *Entity) Hydrate(fn func() error) error {
	t := &e.changes
	saved := t.pending
	t.pending = nil
	t.depth++
	defer func() {
		t.depth--
		t.pending = saved
	}()
	return fn()
}

// ClientRevision counts the change notifications the entity has fired.
func (e *Entity) ClientRevision() int64 {
	return e.changes.revision
}

// markChanged records a write to field, notifying immediately when no batch
// is open.
func (e *Entity) markChanged(field string) {
	t := &e.changes
	if t.depth == 0 {
		e.notify([]string{field})
		return
	}
	if t.pending == nil {
		t.pending = make(map[string]struct{})
	}
	t.pending[field] = struct{}{}
}

func (e *Entity) notify(fields []string) {
	t := &e.changes
	t.revision++
	change := Change{Entity: e, Fields: fields, Revision: t.revision}

	// Observers may cancel themselves while being called.
	for _, o := range slices.Clone(t.observers) {
		o.fn(change)
	}
}
