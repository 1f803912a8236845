package importer

import "github.com/rotisserie/eris"

// Registry maps dataset names to their sources in registration order.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry returns an empty registry. Callers register the sources they
// have inputs for.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source, replacing any previous one with the same name.
func (r *Registry) Register(s Source) {
	name := s.Name()
	if _, exists := r.sources[name]; !exists {
		r.order = append(r.order, name)
	}
	r.sources[name] = s
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, eris.Errorf("importer: unknown dataset %q", name)
	}
	return s, nil
}

// Names returns the registered dataset names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
