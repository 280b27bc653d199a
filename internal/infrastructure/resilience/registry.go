package resilience

import "sort"

// Registry maps dependency names to their breakers. Built once at
// startup and passed by reference to every call site; each protected
// dependency owns an independent breaker with no shared state.
type Registry struct {
	breakers map[string]*Breaker
}

func NewRegistry(settings Settings, dependencies ...string) *Registry {
	breakers := make(map[string]*Breaker, len(dependencies))
	for _, name := range dependencies {
		breakers[name] = NewBreaker(name, settings)
	}
	return &Registry{breakers: breakers}
}

// Get returns the breaker for a dependency, or nil when the dependency
// was not registered at startup.
func (r *Registry) Get(name string) *Breaker {
	return r.breakers[name]
}

// Stats snapshots every breaker, ordered by dependency name.
func (r *Registry) Stats() []Stats {
	out := make([]Stats, 0, len(r.breakers))
	for _, breaker := range r.breakers {
		out = append(out, breaker.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
