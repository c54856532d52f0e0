// internal/nodeid/provider.go
package nodeid

import (
	"maps"
	"sync"
)

// Provider mints fresh UUIDs per type prefix. Counters only grow, so an id
// that was freed is not handed out again by Generate; live ids are never
// reused even after counters are reloaded.
type Provider struct {
	mu       sync.Mutex
	counters map[string]int
	live     map[UUID]struct{}
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{
		counters: make(map[string]int),
		live:     make(map[UUID]struct{}),
	}
}

// Generate reserves and returns a fresh root id `prefix_N`.
func (p *Provider) Generate(prefix string) UUID {
	return p.GenerateChild(Empty, prefix)
}

// GenerateChild reserves and returns a fresh id `parent:|:prefix_N`.
func (p *Provider) GenerateChild(parent UUID, prefix string) UUID {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := counterKey(parent, prefix)
	n := p.counters[key]
	for {
		id := parent.Child(NewSegmentWithIndex(prefix, n))
		n++
		if _, taken := p.live[id]; !taken {
			p.counters[key] = n
			p.live[id] = struct{}{}
			return id
		}
	}
}

// Register marks an externally supplied id as live and advances the counter
// of its prefix past it. Registering a live id again is a no-op.
func (p *Provider) Register(id UUID) {
	if id.IsEmpty() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.live[id] = struct{}{}
	last := id.ID()
	if !last.HasIndex() {
		return
	}
	key := counterKey(id.ParentUUID(), last.Name)
	if p.counters[key] <= last.Index {
		p.counters[key] = last.Index + 1
	}
}

// Free releases a live id.
func (p *Provider) Free(id UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.live, id)
}

// IsLive reports whether id is currently reserved.
func (p *Provider) IsLive(id UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.live[id]
	return ok
}

// Counters returns a copy of the generation counters, keyed by prefix.
func (p *Provider) Counters() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.counters)
}

// LoadCounters merges persisted counters, keeping the larger value per prefix.
func (p *Provider) LoadCounters(counters map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range counters {
		if p.counters[k] < v {
			p.counters[k] = v
		}
	}
}

// Reset forgets all counters and live ids.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters = make(map[string]int)
	p.live = make(map[UUID]struct{})
}

func counterKey(parent UUID, prefix string) string {
	if parent.IsEmpty() {
		return prefix
	}
	return parent.raw + Separator + prefix
}
