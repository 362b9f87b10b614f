package entity

import (
	"context"
	"sync"
)

// Promise is a single-assignment result of an entity load.
//
// The first Resolve or Reject wins; later calls are ignored. Callbacks
// registered with OnSettle run exactly once, on the settling goroutine, or
// immediately if the promise has already settled.
//
// Thread-safety: Promise is safe for concurrent use.
type Promise struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	entity    *Entity
	err       error
	callbacks []func(*Entity, error)
}

// NewPromise returns an unsettled promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolved returns a promise already fulfilled with e.
func Resolved(e *Entity) *Promise {
	p := NewPromise()
	p.Resolve(e)
	return p
}

// Rejected returns a promise already failed with err.
func Rejected(err error) *Promise {
	p := NewPromise()
	p.Reject(err)
	return p
}

func (p *Promise) resolvable() {}

// Resolve fulfils the promise with e.
func (p *Promise) Resolve(e *Entity) {
	p.settle(e, nil)
}

// Reject fails the promise with err.
func (p *Promise) Reject(err error) {
	p.settle(nil, err)
}

func (p *Promise) settle(e *Entity, err error) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return
	}
	p.settled = true
	p.entity, p.err = e, err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range callbacks {
		fn(e, err)
	}
}

// OnSettle registers fn to receive the result.
func (p *Promise) OnSettle(fn func(*Entity, error)) {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	e, err := p.entity, p.err
	p.mu.Unlock()
	fn(e, err)
}

// Done is closed once the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the promise has a result.
func (p *Promise) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the promise settles or ctx is done.
func (p *Promise) Wait(ctx context.Context) (*Entity, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.entity, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
