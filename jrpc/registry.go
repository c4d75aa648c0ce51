package jrpc

import (
	"sort"

	"github.com/samber/lo"
)

// Entry pairs a method name with its binding for registration.
type Entry struct {
	Name    string
	Binding *Binding
}

// Method binds fn under name, panicking if fn has an unsupported shape.
func Method(name string, fn any, opts ...BindOption) Entry {
	opts = append([]BindOption{WithName(name)}, opts...)
	return Entry{Name: name, Binding: MustBind(fn, opts...)}
}

// Registry maps method names to bindings.
//
// It is not synchronized: register everything before serving and treat it as read-only
// while any connection is being served.
type Registry struct {
	methods map[string]*Binding
}

func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]*Binding)}
}

// Register inserts each entry, replacing any earlier binding with the same name.
func (r *Registry) Register(entries ...Entry) {
	for _, e := range entries {
		r.methods[e.Name] = e.Binding
	}
}

func (r *Registry) Lookup(name string) (*Binding, bool) {
	b, ok := r.methods[name]
	return b, ok
}

func (r *Registry) Len() int { return len(r.methods) }

// Names lists the registered methods in lexical order.
func (r *Registry) Names() []string {
	names := lo.Keys(r.methods)
	sort.Strings(names)
	return names
}
