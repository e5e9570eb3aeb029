package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog answers which cataloged method a value of a static type exposes
// under a name. Implementations must be safe for concurrent readers.
type Catalog interface {
	Lookup(t *Type, name string) (*Signature, bool)
}

// Registry is a Catalog of named types. It is seeded with the builtins.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates a registry holding the builtin types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]*Type)}
	for _, t := range Builtins() {
		r.types[t.Name] = t
	}
	return r
}

// Register adds a type. Registering a second type under an existing name
// is an error.
func (r *Registry) Register(t *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("catalog: type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// Type returns the type registered under name.
func (r *Registry) Type(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Types returns every registered type, sorted by name.
func (r *Registry) Types() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds name on t or its bases. The universal base type carries
// only the protocol defaults, which never justify a direct call, so a
// lookup that lands on it reports no match.
func (r *Registry) Lookup(t *Type, name string) (*Signature, bool) {
	if t == nil || t == Object {
		return nil, false
	}
	sig, ok := t.Method(name)
	if !ok || sig.Owner == Object {
		return nil, false
	}
	return sig, true
}

// Dynamic is a Catalog that knows nothing, forcing every operation onto
// its generic path.
type Dynamic struct{}

// Lookup always reports no match.
func (Dynamic) Lookup(*Type, string) (*Signature, bool) { return nil, false }
