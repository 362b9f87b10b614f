package testutil

import (
	"fmt"
	"sync"
)

// FixedClientIDGenerator returns predetermined client ids in order.
//
// Example:
//
//	gen := NewFixedClientIDGenerator("c-post", "c-tag")
//	gen.Generate() // "c-post"
//	gen.Generate() // "c-tag"
//	gen.Generate() // panic: all client ids exhausted
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedClientIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedClientIDGenerator creates a generator that returns ids in order.
func NewFixedClientIDGenerator(ids ...string) *FixedClientIDGenerator {
	return &FixedClientIDGenerator{ids: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, so a test that creates more
// entities than it planned for fails loudly.
func (g *FixedClientIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedClientIDGenerator: all client ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequentialClientIDGenerator returns "<prefix>-1", "<prefix>-2", ...
//
// Unlike FixedClientIDGenerator it never runs out, and it can be reset so the
// same scenario produces identical ids on every run.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialClientIDGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialClientIDGenerator creates a generator starting at 1.
// An empty prefix defaults to "client".
func NewSequentialClientIDGenerator(prefix string) *SequentialClientIDGenerator {
	if prefix == "" {
		prefix = "client"
	}
	return &SequentialClientIDGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequentialClientIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Issued returns how many ids have been generated since the last Reset.
func (g *SequentialClientIDGenerator) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence at 1.
func (g *SequentialClientIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
