// Package modelcache implements the shared model cache described in spec
// §5 "Shared resources": a model keyed by (model_path, device, device_index)
// is loaded once and reference-counted across every node instance that asks
// for it, evicted a configurable idle duration after its last reference
// drops, whether or not nodes are actively pulling from it.
//
// The in-process cache is grounded on the teacher's registry.MemoryCache
// (TTL entries, RWMutex, background sweep); a Redis-backed variant is added
// for multi-process deployments where several StreamKit engine instances on
// different hosts would otherwise each load their own copy of a large model.
package modelcache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Key identifies a cacheable model.
type Key struct {
	ModelPath   string
	Device      string
	DeviceIndex int
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.ModelPath, k.Device, k.DeviceIndex)
}

// Loader materializes a model for a Key on a cache miss. Implementations do
// the actual blocking I/O (reading weights off disk, onto a device) and
// should route it through the handoff executor described in spec §5, not
// call it from inside a node's Process.
type Loader func(ctx context.Context, key Key) (any, error)

// Cache is a reference-counted, TTL-evicted model cache.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	idleTTL time.Duration
	load    Loader
}

type entry struct {
	model    any
	refs     int
	lastUsed time.Time
	timer    *time.Timer
}

// New builds a Cache whose entries are evicted idleTTL after their last
// reference is released. A zero idleTTL disables idle eviction; entries
// are then only removed when explicitly Released with refs already at 0
// is impossible, so a zero idleTTL effectively means "keep forever."
func New(idleTTL time.Duration, load Loader) *Cache {
	return &Cache{entries: make(map[Key]*entry), idleTTL: idleTTL, load: load}
}

// Acquire returns the model for key, loading it on a first reference and
// incrementing the refcount on subsequent calls. Callers must pair every
// Acquire with a Release.
func (c *Cache) Acquire(ctx context.Context, key Key) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.refs++
		e.lastUsed = time.Now()
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		model := e.model
		c.mu.Unlock()
		return model, nil
	}
	c.mu.Unlock()

	model, err := c.load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("modelcache: load %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have loaded the same key while this one was
	// blocked on load; prefer the entry already installed and drop ours.
	if e, ok := c.entries[key]; ok {
		e.refs++
		e.lastUsed = time.Now()
		return e.model, nil
	}
	c.entries[key] = &entry{model: model, refs: 1, lastUsed: time.Now()}
	return model, nil
}

// Release drops one reference. Once the refcount reaches zero the entry is
// scheduled for eviction after idleTTL rather than evicted immediately,
// since the next node to materialize against the same key is often seconds
// away (e.g. a session restart).
func (c *Cache) Release(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	if c.idleTTL <= 0 {
		return
	}
	e.timer = time.AfterFunc(c.idleTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries[key]; ok && cur.refs <= 0 {
			delete(c.entries, key)
		}
	})
}

// Len reports the number of resident models, for diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
