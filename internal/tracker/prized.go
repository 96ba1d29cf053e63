package tracker

import (
	"sort"
	"strings"
	"sync"
)

// PrizedSet is the process-wide watchlist of item names that trigger a
// high-priority alert. Loops only read it; mutation happens through the
// admin command surface (and the config seed list on reload).
type PrizedSet struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewPrizedSet(seed ...string) *PrizedSet {
	p := &PrizedSet{names: map[string]struct{}{}}
	p.Seed(seed)
	return p
}

// Seed adds every name in the list. Existing entries are kept, so applying
// a config seed on hot reload is additive and idempotent.
func (p *PrizedSet) Seed(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			p.names[n] = struct{}{}
		}
	}
}

// Add inserts a name; it reports whether the name was not present before.
func (p *PrizedSet) Add(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.names[name]; ok {
		return false
	}
	p.names[name] = struct{}{}
	return true
}

// Remove deletes a name; it reports whether the name was present.
func (p *PrizedSet) Remove(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.names[name]; !ok {
		return false
	}
	delete(p.names, name)
	return true
}

// Contains reports whether the lowercased name is on the watchlist.
func (p *PrizedSet) Contains(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.names[strings.ToLower(name)]
	return ok
}

// Names returns the watchlist sorted for stable display.
func (p *PrizedSet) Names() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.names))
	for n := range p.names {
		out = append(out, n)
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (p *PrizedSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.names)
}
