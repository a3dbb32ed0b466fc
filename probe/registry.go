package probe

import (
	"fmt"
	"sort"
)

// Registry maps module names to instances. It is filled once at startup and
// only read afterwards.
type Registry struct {
	modules map[string]Module
}

func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module, len(mods))}
	for _, m := range mods {
		name := m.Descriptor().Name
		if _, ok := r.modules[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, name)
		}
		r.modules[name] = m
	}
	return r, nil
}

func (r *Registry) Get(name string) (Module, error) {
	if m, ok := r.modules[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
