// Package factory resolves plugin names to descriptors and creates plugin
// instances with panel-wide unique ids.
package factory

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/pkg/provider"
)

// LauncherName is the plugin whose presence the panel tracks separately.
const LauncherName = "launcher"

var (
	// ErrUnknownModule is returned for a plugin name no descriptor matches.
	ErrUnknownModule = errors.New("unknown plugin module")

	// ErrUniqueInUse is returned when a unique plugin already has an instance.
	ErrUniqueInUse = errors.New("unique plugin already in use")

	// ErrUnknownInstance is returned for an id no live instance holds.
	ErrUnknownInstance = errors.New("unknown plugin instance")
)

// Spawner builds instances of plugins that run in a wrapper process.
type Spawner interface {
	Spawn(d *Descriptor, display string, uniqueID int, args []string) (provider.Provider, error)
}

// Config configures a Factory.
type Config struct {
	Dirs []SearchDir

	// Registry holds in-process modules. Descriptors may name them instead
	// of a shared object on disk.
	Registry *provider.Registry

	// Spawner builds external instances.
	Spawner Spawner

	// Hosts returns the host for an in-process instance.
	Hosts func(info provider.Info) provider.Host

	// ForceExternal runs internal plugins in a wrapper as well.
	ForceExternal bool
}

type instance struct {
	p provider.Provider
	d *Descriptor
}

// Factory owns the descriptor table and the live-instance registry of one
// panel. It is safe for concurrent use.
type Factory struct {
	conf Config
	log  *logging.Logger

	mu          sync.Mutex
	descriptors map[string]*Descriptor
	uses        map[string]int
	instances   map[int]*instance
	counter     int
	hasLauncher bool
}

// New constructs a Factory and performs the initial scan.
func New(conf Config, log *logging.Logger) *Factory {
	if log == nil {
		log = logging.MustGetLogger("factory")
	}
	f := &Factory{
		conf:        conf,
		log:         log,
		descriptors: make(map[string]*Descriptor),
		uses:        make(map[string]int),
		instances:   make(map[int]*instance),
	}
	f.Rescan()
	return f
}

// Rescan reloads descriptors from the search path. Use counts are kept by
// name, so live instances stay accounted for across reloads.
func (f *Factory) Rescan() {
	loaded, errs := LoadDescriptors(f.conf.Dirs, f.conf.Registry.Has)
	for _, err := range errs {
		f.log.WithError(err).Warn("Skipping plugin description.")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range loaded {
		_, known := f.descriptors[d.Name]
		f.descriptors[d.Name] = d
		if known {
			continue
		}
		if d.Name == LauncherName {
			f.hasLauncher = true
		}
		f.log.Debugf("Loaded plugin module %s (%s).", d.Name, d.Filename)
	}
}

// HasModule reports whether a descriptor named name is known.
func (f *Factory) HasModule(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.descriptors[name]
	return ok
}

// Descriptor returns the descriptor named name.
func (f *Factory) Descriptor(name string) (*Descriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.descriptors[name]
	return d, ok
}

// HasLauncher reports whether the launcher plugin is installed.
func (f *Factory) HasLauncher() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasLauncher
}

// Modules prunes descriptors whose files vanished and returns, sorted by
// name, those a new instance can be created from.
func (f *Factory) Modules() []*Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Descriptor, 0, len(f.descriptors))
	for name, d := range f.descriptors {
		if !d.Valid() {
			f.log.Infof("Plugin module %s vanished from %s.", name, d.Source)
			delete(f.descriptors, name)
			if name == LauncherName {
				f.hasLauncher = false
			}
			continue
		}
		if d.Unique && f.uses[name] > 0 {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NewInstance creates an instance of the plugin called name. When hint is
// -1 or already taken, a fresh id is allocated.
func (f *Factory) NewInstance(name, display string, hint int, args []string) (provider.Provider, error) {
	f.mu.Lock()
	d, ok := f.descriptors[name]
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("%s: %s", ErrUnknownModule, name)
	}
	if d.Unique && f.uses[name] > 0 {
		f.mu.Unlock()
		return nil, fmt.Errorf("%s: %s", ErrUniqueInUse, name)
	}
	id := f.allocate(hint)
	// reserve the id while the instance is being built
	f.instances[id] = &instance{d: d}
	f.uses[name]++
	f.mu.Unlock()

	p, err := f.build(d, display, id, args)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		delete(f.instances, id)
		f.uses[name]--
		return nil, err
	}
	f.instances[id].p = p
	f.log.Infof("Created plugin %s-%d.", name, id)
	return p, nil
}

func (f *Factory) build(d *Descriptor, display string, id int, args []string) (provider.Provider, error) {
	if d.Internal && !f.conf.ForceExternal {
		e, ok := f.conf.Registry.Lookup(d.Module)
		if !ok {
			return nil, fmt.Errorf("plugin %s: internal module %s is not registered", d.Name, d.Module)
		}
		info := provider.Info{
			Name:        d.Name,
			DisplayName: d.DisplayName,
			Comment:     d.Comment,
			UniqueID:    id,
			Args:        args,
		}
		var host provider.Host
		if f.conf.Hosts != nil {
			host = f.conf.Hosts(info)
		}
		return e.New(info, host)
	}
	if f.conf.Spawner == nil {
		return nil, fmt.Errorf("plugin %s: no spawner configured for external plugins", d.Name)
	}
	return f.conf.Spawner.Spawn(d, display, id, args)
}

// allocate must be called with mu held.
func (f *Factory) allocate(hint int) int {
	id := hint
	for id == -1 || f.exists(id) {
		f.counter++
		id = f.counter
	}
	if id > f.counter {
		f.counter = id
	}
	return id
}

func (f *Factory) exists(id int) bool {
	_, ok := f.instances[id]
	return ok
}

// Reserved reports whether id is held by an instance, built or being built.
func (f *Factory) Reserved(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists(id)
}

// Instance returns the live instance holding id.
func (f *Factory) Instance(id int) (provider.Provider, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.instances[id]
	if !ok || in.p == nil {
		return nil, false
	}
	return in.p, true
}

// Instances returns the live instances matching name, either as a plugin
// name or in its "name-id" form.
func (f *Factory) Instances(name string) []provider.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []provider.Provider
	for id, in := range f.instances {
		if in.p == nil {
			continue
		}
		if in.d.Name == name || in.d.Name+"-"+strconv.Itoa(id) == name {
			out = append(out, in.p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID() < out[j].UniqueID() })
	return out
}

// IDs returns the ids of every live instance, sorted.
func (f *Factory) IDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.instances))
	for id, in := range f.instances {
		if in.p != nil {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Release deregisters the instance holding id.
func (f *Factory) Release(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.instances[id]
	if !ok || in.p == nil {
		return ErrUnknownInstance
	}
	delete(f.instances, id)
	f.uses[in.d.Name]--
	f.log.Debugf("Released plugin %s-%d.", in.d.Name, id)
	return nil
}
