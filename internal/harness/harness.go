package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/entref/internal/entity"
	"github.com/roach88/entref/internal/schema"
	"github.com/roach88/entref/internal/session"
	"github.com/roach88/entref/internal/store"
	"github.com/roach88/entref/internal/testutil"
	"github.com/roach88/entref/internal/value"
)

// followTimeout bounds how long a check waits for a followed reference.
const followTimeout = 5 * time.Second

// Harness executes scenario checks against one seeded store.
type Harness struct {
	store    *store.Store
	registry *schema.Registry
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. An error is returned
// only when the scenario cannot be set up (bad schema, bad seed data); failed
// checks are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	reg, err := schema.LoadDir(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()

	for i, seed := range scenario.Entities {
		if err := h.seed(ctx, seed); err != nil {
			return nil, fmt.Errorf("entities[%d]: %w", i, err)
		}
	}

	result := NewResult()
	for _, check := range scenario.Checks {
		result.AddCheck(h.runCheck(ctx, check))
	}
	return result, nil
}

// newSession returns a session with deterministic id generators.
func (h *Harness) newSession() *session.Session {
	return session.New(h.store, h.registry,
		session.WithLogger(h.logger),
		session.WithClientIDGenerator(testutil.NewSequentialClientIDGenerator("client")),
		session.WithIDGenerator(testutil.NewSequentialClientIDGenerator("id")),
	)
}

func (h *Harness) lookup(name string) (*schema.Type, error) {
	t, ok := h.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", name)
	}
	return t, nil
}

// seed writes one scenario entity to the store.
func (h *Harness) seed(ctx context.Context, seed EntitySeed) error {
	t, err := h.lookup(seed.Type)
	if err != nil {
		return err
	}

	rec := store.Record{
		Type:       seed.Type,
		ID:         seed.ID,
		ClientID:   seed.ClientID,
		Attributes: value.Map{},
		BelongsTo:  map[string]store.RecordRef{},
		HasMany:    map[string][]store.RecordRef{},
		IsDeleted:  seed.Deleted,
	}

	for name, raw := range seed.Attributes {
		attr, ok := t.Attribute(name)
		if !ok {
			return fmt.Errorf("%s has no attribute %q", seed.Type, name)
		}
		v, err := attributeValue(attr, raw)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		rec.Attributes[name] = v
	}

	for name, raw := range seed.BelongsTo {
		ref, err := parseRef(raw)
		if err != nil {
			return err
		}
		rec.BelongsTo[name] = store.RecordRef{Type: ref.Type, ID: ref.ID}
	}

	for name, raws := range seed.HasMany {
		refs := make([]store.RecordRef, len(raws))
		for i, raw := range raws {
			ref, err := parseRef(raw)
			if err != nil {
				return err
			}
			refs[i] = store.RecordRef{Type: ref.Type, ID: ref.ID}
		}
		rec.HasMany[name] = refs
	}

	if seed.Errors != nil {
		errs, err := value.FromGo(seed.Errors)
		if err != nil {
			return fmt.Errorf("errors: %w", err)
		}
		rec.Errors = errs.(value.Map)
	}

	_, err = h.store.WriteRecord(ctx, rec)
	return err
}

// attributeValue converts a YAML scalar to a value, parsing time strings for
// time attributes.
func attributeValue(attr schema.Attribute, raw any) (value.Value, error) {
	if s, ok := raw.(string); ok && attr.Type == schema.AttrTime {
		return value.ParseTime(s)
	}
	v, err := value.FromGo(raw)
	if err != nil {
		return nil, err
	}
	if !attr.Accepts(v) {
		return nil, fmt.Errorf("%s attribute does not accept %s", attr.Type, value.Kind(v))
	}
	return v, nil
}

// runCheck loads both sides, applies mutations and compares.
func (h *Harness) runCheck(ctx context.Context, check Check) CheckResult {
	result := CheckResult{Name: check.Name, Pass: true, Deltas: []string{}}
	sess := h.newSession()

	left, err := h.find(ctx, sess, check.Left)
	if err != nil {
		result.addError(fmt.Sprintf("left: %v", err))
		return result
	}

	// right gets its own session when it is loaded, so naming left's identity
	// yields a second instance instead of the one held by the identity map.
	var right *entity.Entity
	rightSess := sess
	if check.CopyOf != "" {
		source, err := h.find(ctx, sess, check.CopyOf)
		if err != nil {
			result.addError(fmt.Sprintf("copy_of: %v", err))
			return result
		}
		right = source.ShallowCopy()
	} else {
		rightSess = h.newSession()
		right, err = h.find(ctx, rightSess, check.Right)
		if err != nil {
			result.addError(fmt.Sprintf("right: %v", err))
			return result
		}
	}

	// Mutations land in one batch so observers see a single change.
	var mutateErr error
	right.Batch(func() {
		for i, m := range check.Mutate {
			if err := h.mutate(rightSess, right, m); err != nil {
				mutateErr = fmt.Errorf("mutate[%d]: %w", i, err)
				return
			}
		}
	})
	if mutateErr != nil {
		result.addError(mutateErr.Error())
		return result
	}

	if len(check.Follow) > 0 {
		result.Followed = make(map[string]string, len(check.Follow))
		for _, name := range check.Follow {
			target, err := follow(ctx, left, name)
			if err != nil {
				result.addError(fmt.Sprintf("follow %s: %v", name, err))
				continue
			}
			result.Followed[name] = target
		}
	}

	result.Left = left.String()
	result.Right = right.String()
	result.Equal = left.IsEqual(right)
	result.Deltas = DeltaLabels(left.Diff(right))

	if err := assertEqual(check.Equal, result.Equal); err != nil {
		result.addError(err.Error())
	}
	if err := assertDeltas(check.Expect, result.Deltas); err != nil {
		result.addError(err.Error())
	}
	return result
}

func (h *Harness) find(ctx context.Context, sess *session.Session, raw string) (*entity.Entity, error) {
	ref, err := parseRef(raw)
	if err != nil {
		return nil, err
	}
	t, err := h.lookup(ref.Type)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, followTimeout)
	defer cancel()
	return sess.Find(ctx, t, ref.ID)
}

func (h *Harness) ref(sess *session.Session, raw string) (entity.Ref, error) {
	ref, err := parseRef(raw)
	if err != nil {
		return nil, err
	}
	t, err := h.lookup(ref.Type)
	if err != nil {
		return nil, err
	}
	return sess.Ref(t, ref.ID), nil
}

func (h *Harness) mutate(sess *session.Session, e *entity.Entity, m Mutation) error {
	switch {
	case m.Set != "":
		attr, ok := e.Type().Attribute(m.Set)
		if !ok {
			return fmt.Errorf("%s has no attribute %q", e.Type(), m.Set)
		}
		v, err := attributeValue(attr, m.Value)
		if err != nil {
			return err
		}
		return e.Set(m.Set, v)

	case m.BelongsTo != "":
		if m.Ref == "" {
			return e.SetBelongsTo(m.BelongsTo, nil)
		}
		target, err := h.ref(sess, m.Ref)
		if err != nil {
			return err
		}
		return e.SetBelongsTo(m.BelongsTo, target)

	case m.Add != "", m.Remove != "":
		name := m.Add + m.Remove
		members := e.HasMany(name)
		if members == nil {
			return fmt.Errorf("%s has no hasMany %q", e.Type(), name)
		}
		target, err := h.ref(sess, m.Ref)
		if err != nil {
			return err
		}
		if m.Add != "" {
			members.Add(target)
		} else {
			members.Remove(target)
		}
		return nil

	case m.Delete != nil:
		e.SetDeleted(*m.Delete)
		return nil
	}
	return fmt.Errorf("empty mutation")
}

// follow resolves a belongsTo slot and returns the loaded target's string form.
func follow(ctx context.Context, e *entity.Entity, name string) (string, error) {
	target := e.BelongsTo(name)
	if target == nil {
		return "null", nil
	}
	lazy := entity.Resolve(lazyOrEntity(target))

	ctx, cancel := context.WithTimeout(ctx, followTimeout)
	defer cancel()
	loaded, err := lazy.Wait(ctx)
	if err != nil {
		return "", err
	}
	return loaded.String(), nil
}

func lazyOrEntity(r entity.Ref) entity.Resolvable {
	switch r := r.(type) {
	case *entity.LazyRef:
		return r
	case *entity.Entity:
		return r
	default:
		return nil
	}
}
