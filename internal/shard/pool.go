package shard

import "sync"

// closer is the method every segment handle type (vector.Segment,
// text.Segment, relation.Segment) shares.
type closer interface {
	Close() error
}

// refPool is a refcounted cache of open segment handles, generalized from
// nucliadb_node's resource_cache.rs: a segment a merge just replaced stays
// open for any search that already acquired it, and is only closed (and
// its on-disk files reclaimed) once the last reference releases it.
// Unlike the original, this pool never evicts on capacity: a shard's
// segment count is small enough that keeping every live handle mapped is
// cheaper than reopening it per search.
type refPool[T closer] struct {
	mu      sync.Mutex
	entries map[string]*poolEntry[T]
}

type poolEntry[T closer] struct {
	handle  T
	refs    int
	doomed  bool
	onClose func()
}

func newRefPool[T closer]() *refPool[T] {
	return &refPool[T]{entries: map[string]*poolEntry[T]{}}
}

// Acquire returns the cached handle for id, opening it via open on first
// reference. The caller must call the returned release func exactly once.
func (p *refPool[T]) Acquire(id string, open func() (T, error)) (T, func(), error) {
	p.mu.Lock()
	if e, ok := p.entries[id]; ok {
		e.refs++
		p.mu.Unlock()
		return e.handle, func() { p.release(id) }, nil
	}
	p.mu.Unlock()

	h, err := open()
	if err != nil {
		var zero T
		return zero, nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		// Lost a race to open id concurrently; keep theirs, drop ours.
		h.Close()
		e.refs++
		return e.handle, func() { p.release(id) }, nil
	}
	p.entries[id] = &poolEntry[T]{handle: h, refs: 1}
	return h, func() { p.release(id) }, nil
}

func (p *refPool[T]) release(id string) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 || !e.doomed {
		p.mu.Unlock()
		return
	}
	delete(p.entries, id)
	p.mu.Unlock()

	e.handle.Close()
	if e.onClose != nil {
		e.onClose()
	}
}

// Evict marks id to close once every outstanding reference is released,
// running onClose afterward (typically removing the segment's directory).
// If nothing currently holds id open, it closes immediately.
func (p *refPool[T]) Evict(id string, onClose func()) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		if onClose != nil {
			onClose()
		}
		return
	}
	e.doomed = true
	e.onClose = onClose
	if e.refs > 0 {
		p.mu.Unlock()
		return
	}
	delete(p.entries, id)
	p.mu.Unlock()

	e.handle.Close()
	if onClose != nil {
		onClose()
	}
}

// CloseAll force-closes every handle regardless of refcount.
func (p *refPool[T]) CloseAll() {
	p.mu.Lock()
	entries := p.entries
	p.entries = map[string]*poolEntry[T]{}
	p.mu.Unlock()

	for _, e := range entries {
		e.handle.Close()
	}
}
