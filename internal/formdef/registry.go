// Package formdef holds the form definitions served by the API.
package formdef

import (
	"sort"
	"sync"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

// Registry is the in-memory set of published form definitions.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]*form.Definition
}

func NewRegistry() *Registry {
	return &Registry{forms: make(map[string]*form.Definition)}
}

// Get returns the definition with the given id, or nil.
func (r *Registry) Get(id string) *form.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forms[id]
}

// List returns all definitions ordered by id.
func (r *Registry) List() []*form.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*form.Definition, 0, len(r.forms))
	for _, d := range r.forms {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Summaries returns the catalogue entries, ordered by form id.
func (r *Registry) Summaries() []form.Summary {
	defs := r.List()
	out := make([]form.Summary, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Summary())
	}
	return out
}

// Len returns the number of registered forms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

// Load replaces every definition in the registry.
func (r *Registry) Load(defs []*form.Definition) {
	forms := make(map[string]*form.Definition, len(defs))
	for _, d := range defs {
		forms[d.ID] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms = forms
}
