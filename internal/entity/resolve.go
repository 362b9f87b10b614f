package entity

// Resolvable is anything Resolve accepts: *Entity, *Promise or *LazyRef.
type Resolvable interface {
	resolvable() // Sealed
}

var (
	_ Resolvable = (*Entity)(nil)
	_ Resolvable = (*Promise)(nil)
	_ Resolvable = (*LazyRef)(nil)
)

// Resolve normalizes v into a *LazyRef. It returns synchronously and never
// returns nil.
//
//   - *LazyRef: returned unchanged.
//   - *Entity: a new reference, already resolved, seeded with the entity's
//     identity and session (the options fill in what the entity lacks).
//   - *Promise: a new loading reference seeded from the options; it
//     resolves or fails when the promise settles.
//   - nil: a new unresolved reference seeded from the options.
func Resolve(v Resolvable, opts ...Option) *LazyRef {
	cfg := buildConfig(opts)

	switch val := v.(type) {
	case *LazyRef:
		if val != nil {
			return val
		}
	case *Entity:
		if val != nil {
			return resolvedRef(val, cfg)
		}
	case *Promise:
		if val != nil {
			return pendingRef(val, cfg)
		}
	}
	return newLazyRef(cfg)
}

func resolvedRef(e *Entity, cfg config) *LazyRef {
	if e.typ != nil {
		cfg.typ = e.typ
	}
	if e.id != "" {
		cfg.id = e.id
	}
	if e.clientID != "" {
		cfg.clientID = e.clientID
	}
	if e.session != nil {
		cfg.session = e.session
	}

	r := newLazyRef(cfg)
	r.state = StateLoading
	r.settle(e, nil)
	return r
}

func pendingRef(p *Promise, cfg config) *LazyRef {
	r := newLazyRef(cfg)
	r.state = StateLoading
	p.OnSettle(r.settle)
	return r
}
