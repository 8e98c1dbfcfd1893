package elastic

import "sync"

// registry is the in-memory store of known instances. Its operations are
// individually safe for concurrent use; callers needing a consistent view
// across several operations must provide their own serialization.
type registry struct {
	mu        sync.RWMutex
	instances map[string]Instance
}

func newRegistry() *registry {
	return &registry{instances: make(map[string]Instance)}
}

// register inserts the instance if no entry with the same id exists and
// reports whether it was inserted. The first writer wins on an id collision.
func (r *registry) register(in Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[in.ID]; ok {
		return false
	}
	r.instances[in.ID] = in
	return true
}

func (r *registry) find(id string) (Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in, ok := r.instances[id]
	return in, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.instances, id)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.instances)
}

// snapshot returns a copy of the current instances, safe to iterate while
// the registry keeps changing underneath.
func (r *registry) snapshot() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]Instance, 0, len(r.instances))
	for _, in := range r.instances {
		res = append(res, in)
	}
	return res
}
