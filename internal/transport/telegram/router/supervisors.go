package router

import "sync"

// SupervisorRegistry maps subsystem names to their supervisors so the web
// status page can report per-component goroutine counters and errors.
// Read from several goroutines concurrently.
type SupervisorRegistry struct {
	mu sync.RWMutex
	m  map[string]*Supervisor
}

func NewSupervisorRegistry() *SupervisorRegistry {
	return &SupervisorRegistry{m: map[string]*Supervisor{}}
}

// Set registers or replaces the supervisor for name; nil removes it.
func (r *SupervisorRegistry) Set(name string, sup *Supervisor) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sup == nil {
		delete(r.m, name)
		return
	}
	r.m[name] = sup
}

func (r *SupervisorRegistry) Delete(name string) { r.Set(name, nil) }

// Snapshot copies the current name-to-supervisor map.
func (r *SupervisorRegistry) Snapshot() map[string]*Supervisor {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Supervisor, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}
