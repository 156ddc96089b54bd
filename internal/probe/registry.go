package probe

import (
	"fmt"
)

// Registry holds named probes in registration order
type Registry struct {
	probes []Probe
	index  map[string]int
}

// NewRegistry creates a registry from the given probes
func NewRegistry(probes ...Probe) (*Registry, error) {
	r := &Registry{index: make(map[string]int)}
	for _, p := range probes {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a probe. Names must be unique and non-empty.
func (r *Registry) Register(p Probe) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("probe name must not be empty")
	}
	if _, ok := r.index[name]; ok {
		return fmt.Errorf("probe %q already registered", name)
	}
	r.index[name] = len(r.probes)
	r.probes = append(r.probes, p)
	return nil
}

// Get returns the probe with the given name
func (r *Registry) Get(name string) (Probe, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.probes[i], true
}

// Probes returns the registered probes in order
func (r *Registry) Probes() []Probe {
	out := make([]Probe, len(r.probes))
	copy(out, r.probes)
	return out
}

// Names returns the registered probe names in order
func (r *Registry) Names() []string {
	names := make([]string, len(r.probes))
	for i, p := range r.probes {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of registered probes
func (r *Registry) Len() int {
	return len(r.probes)
}
