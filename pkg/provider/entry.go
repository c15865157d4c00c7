package provider

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNoEntryPoint is returned when a module exposes neither entry point.
	ErrNoEntryPoint = errors.New("module has no entry point")

	// ErrAmbiguousEntryPoint is returned when a module exposes both entry points.
	ErrAmbiguousEntryPoint = errors.New("module has both entry points")

	// ErrNilProvider is returned when a constructor returned no provider.
	ErrNilProvider = errors.New("constructor returned no provider")
)

// ObjectFactory builds a complete provider object.
type ObjectFactory func(info Info, host Host) (Provider, error)

// ConstructFunc is the bare construct callback exported by simple modules.
type ConstructFunc func(info Info, host Host) Provider

// EntryPoint is how a plugin module is instantiated: either an ObjectFactory
// or a ConstructFunc, never both.
type EntryPoint struct {
	Object   ObjectFactory
	Function ConstructFunc
}

// Validate checks that exactly one entry point is set.
func (e EntryPoint) Validate() error {
	switch {
	case e.Object == nil && e.Function == nil:
		return ErrNoEntryPoint
	case e.Object != nil && e.Function != nil:
		return ErrAmbiguousEntryPoint
	}
	return nil
}

// Kind returns "object" or "function".
func (e EntryPoint) Kind() string {
	if e.Object != nil {
		return "object"
	}
	return "function"
}

// New instantiates the plugin through whichever entry point is set.
func (e EntryPoint) New(info Info, host Host) (Provider, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	var (
		p   Provider
		err error
	)
	if e.Object != nil {
		p, err = e.Object(info, host)
	} else {
		p = e.Function(info, host)
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNilProvider
	}
	return p, nil
}

// Registry maps module names to in-process entry points.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]EntryPoint
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]EntryPoint)}
}

// Register adds an entry point under module.
func (r *Registry) Register(module string, e EntryPoint) error {
	if err := e.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[module] = e
	r.mu.Unlock()
	return nil
}

// Lookup returns the entry point registered under module.
func (r *Registry) Lookup(module string) (EntryPoint, bool) {
	if r == nil {
		return EntryPoint{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[module]
	return e, ok
}

// Has reports whether module is registered.
func (r *Registry) Has(module string) bool {
	_, ok := r.Lookup(module)
	return ok
}

// Modules returns the sorted registered module names.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
