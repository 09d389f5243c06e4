// Package plancache provides the lookup-or-create plan cache consulted by
// executors before building an execution artifact (a compiled pipeline, a
// tuned kernel configuration). Entries are keyed by a structural signature
// of the operation, so plans are reused across calls with structurally
// compatible operands regardless of which buffers they read.
package plancache

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/deft-ml/deft/internal/tensor"
)

// Key is the structural signature of a plan: operation kind, canonicalized
// operand shapes, and scalar parameters. Two calls with equal keys may share
// one plan.
type Key struct {
	Op     string
	Shapes string
	Params string
}

// NewKey canonicalizes operand shapes and scalar parameters into a Key.
func NewKey(op string, shapes []tensor.Shape, params ...float64) Key {
	var sb strings.Builder
	for i, s := range shapes {
		if i > 0 {
			sb.WriteByte(';')
		}
		fmt.Fprintf(&sb, "%v", []int(s))
	}
	var pb strings.Builder
	for i, p := range params {
		if i > 0 {
			pb.WriteByte(';')
		}
		fmt.Fprintf(&pb, "%g", p)
	}
	return Key{Op: op, Shapes: sb.String(), Params: pb.String()}
}

// Cache is the injected lookup-or-create service. build is invoked at most
// once per key; its result is cached and returned to later callers.
type Cache interface {
	GetOrCreate(key Key, build func() (any, error)) (any, error)
}

// Memory is an in-process Cache guarded by a RWMutex with double-checked
// creation, so concurrent lookups of a cached key take only the read lock.
// Hit and miss counters are atomic; the hit path never upgrades to the
// write lock.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]any

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]any)}
}

// GetOrCreate returns the cached plan for key, building and caching it on
// first use. A failed build caches nothing.
func (m *Memory) GetOrCreate(key Key, build func() (any, error)) (any, error) {
	m.mu.RLock()
	if plan, ok := m.entries[key]; ok {
		m.hits.Add(1)
		m.mu.RUnlock()
		return plan, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if plan, ok := m.entries[key]; ok {
		m.hits.Add(1)
		return plan, nil
	}
	m.misses.Add(1)
	plan, err := build()
	if err != nil {
		return nil, err
	}
	m.entries[key] = plan
	return plan, nil
}

// Stats returns hit/miss counters and the number of cached plans.
func (m *Memory) Stats() (hits, misses uint64, entries int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hits.Load(), m.misses.Load(), len(m.entries)
}

// Clear drops every cached plan. Callers that cached releasable artifacts
// must release them before clearing.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[Key]any)
}

// Each invokes f for every cached plan. Used by executors to release cached
// artifacts on shutdown.
func (m *Memory) Each(f func(key Key, plan any)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, v := range m.entries {
		f(k, v)
	}
}
