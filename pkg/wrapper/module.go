package wrapper

import (
	"plugin"
	"sync"

	"github.com/pkg/errors"

	"github.com/skycoin/xfce4-panel/pkg/provider"
)

// Symbols a plugin module exports. A module exports exactly one of them.
const (
	// SymbolInit has the type func(provider.Info, provider.Host) (provider.Provider, error).
	SymbolInit = "PanelModuleInit"

	// SymbolConstruct has the type func(provider.Info, provider.Host) provider.Provider.
	SymbolConstruct = "PanelModuleConstruct"
)

// Symbols is the lookup half of *plugin.Plugin.
type Symbols interface {
	Lookup(name string) (plugin.Symbol, error)
}

// OpenFunc opens a module file.
type OpenFunc func(path string) (Symbols, error)

// OpenPlugin opens a Go plugin.
func OpenPlugin(path string) (Symbols, error) {
	return plugin.Open(path)
}

// Module is a loaded plugin module.
type Module struct {
	Name  string
	Path  string
	Entry provider.EntryPoint

	uses int
}

// Loader resolves plugin modules, first from the in-process registry and
// then from module files. Loaded modules stay resident.
type Loader struct {
	registry *provider.Registry
	open     OpenFunc

	mu      sync.Mutex
	modules map[string]*Module
}

// NewLoader constructs a Loader. A nil open disables module files.
func NewLoader(registry *provider.Registry, open OpenFunc) *Loader {
	return &Loader{
		registry: registry,
		open:     open,
		modules:  make(map[string]*Module),
	}
}

// Load resolves the module called name, backed by the file at path.
func (l *Loader) Load(name, path string) (*Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.modules[name]; ok {
		m.uses++
		return m, nil
	}

	m := &Module{Name: name, Path: path}
	if e, ok := l.registry.Lookup(name); ok {
		m.Entry = e
	} else {
		e, err := l.openFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load module %s", name)
		}
		m.Entry = e
	}
	m.uses = 1
	l.modules[name] = m
	return m, nil
}

func (l *Loader) openFile(path string) (provider.EntryPoint, error) {
	var e provider.EntryPoint
	if l.open == nil || path == "" {
		return e, errors.New("no such built-in module")
	}
	syms, err := l.open(path)
	if err != nil {
		return e, err
	}

	if sym, err := syms.Lookup(SymbolInit); err == nil {
		fn, ok := sym.(func(provider.Info, provider.Host) (provider.Provider, error))
		if !ok {
			return e, errors.Errorf("%s has type %T", SymbolInit, sym)
		}
		e.Object = fn
	}
	if sym, err := syms.Lookup(SymbolConstruct); err == nil {
		fn, ok := sym.(func(provider.Info, provider.Host) provider.Provider)
		if !ok {
			return e, errors.Errorf("%s has type %T", SymbolConstruct, sym)
		}
		e.Function = fn
	}
	return e, e.Validate()
}

// Release drops one use of m. The module itself is never unloaded.
func (l *Loader) Release(m *Module) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m.uses > 0 {
		m.uses--
	}
}

// Uses returns how many times m is in use.
func (l *Loader) Uses(m *Module) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return m.uses
}
