package dezoomer

import "sort"

// AutoName is the name of the aggregate dezoomer.
const AutoName = "auto"

// Factory builds a fresh dezoomer. Dezoomers may keep state between probes,
// so every run gets its own instance.
type Factory func() Dezoomer

// Registry maps protocol names to factories. Registration order is the order
// in which auto tries them.
type Registry struct {
	order     []string
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a protocol. Registering AutoName is ignored,
// auto is always derived from the others.
func (r *Registry) Register(name string, f Factory) {
	if name == AutoName {
		return
	}
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// New builds the named dezoomer. AutoName builds the aggregate of all
// registered protocols.
func (r *Registry) New(name string) (Dezoomer, error) {
	if name == AutoName {
		ds := make([]Dezoomer, 0, len(r.order))
		for _, n := range r.order {
			ds = append(ds, r.factories[n]())
		}
		return NewAuto(ds...), nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, &NoSuchDezoomerError{Name: name}
	}
	return f(), nil
}

// Names lists the registered protocols sorted alphabetically, plus auto.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return append(names, AutoName)
}
