// Package panel ties the plugin factory, the wrapper launcher and the
// embedding transport together into one running panel.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/pkg/external"
	"github.com/skycoin/xfce4-panel/pkg/factory"
	"github.com/skycoin/xfce4-panel/pkg/logstore"
	"github.com/skycoin/xfce4-panel/pkg/metrics"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

const (
	// Offscreen is where plugins of a hidden panel are placed.
	Offscreen = -9999

	// DefaultShutdownTimeout bounds how long wrappers get to quit.
	DefaultShutdownTimeout = 10 * time.Second
)

var (
	// ErrUnknownItem is returned for an id no item on the panel holds.
	ErrUnknownItem = errors.New("no such item on the panel")

	// ErrNoLogStore is returned when plugin logs are not being kept.
	ErrNoLogStore = errors.New("plugin log store is disabled")
)

// Options configures a Runtime.
type Options struct {
	Config *Config

	// ConfigPath is where Save writes the item list. Nothing is written
	// when it is empty.
	ConfigPath string

	Transport transport.Factory
	Registry  *provider.Registry
	Executer  external.Executer
	Metrics   metrics.Recorder

	// Logs keeps wrapper output. It may be nil.
	Logs *logstore.Store

	// OnRequest receives signals asking for panel UI the runtime does not
	// draw itself: preferences, the items dialog, about, moving a plugin.
	OnRequest func(uniqueID int, sig provider.Signal)
}

// Item is one plugin slot on the panel.
type Item struct {
	Provider provider.Provider
	Args     []string

	expand        bool
	width, height int
}

// Runtime owns every piece of panel state: config, factory, launcher, the
// selected transport and the items currently on the panel.
type Runtime struct {
	conf     *Config
	confPath string

	logger    *logging.MasterLogger
	log       *logging.Logger
	transport transport.Factory
	launcher  *external.Launcher
	factory   *factory.Factory
	logs      *logstore.Store
	metrics   metrics.Recorder
	onRequest func(int, provider.Signal)

	mu       sync.Mutex
	items    map[int]*Item
	order    []int
	size     int
	position provider.ScreenPosition
	hidden   bool
	locked   int
	closing  bool
	watcher  *factory.Watcher

	quit     chan struct{}
	quitOnce sync.Once
	restart  bool
}

// New constructs a Runtime. Items are not created until Start.
func New(opts Options, masterLogger *logging.MasterLogger) (*Runtime, error) {
	if opts.Config == nil {
		return nil, errors.New("no config")
	}
	if opts.Transport == nil {
		return nil, errors.New("no embedding transport")
	}
	if masterLogger == nil {
		masterLogger = logging.NewMasterLogger()
	}
	pos, err := opts.Config.Position()
	if err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewDummy()
	}

	r := &Runtime{
		conf:      opts.Config,
		confPath:  opts.ConfigPath,
		logger:    masterLogger,
		log:       masterLogger.PackageLogger("panel"),
		transport: opts.Transport,
		logs:      opts.Logs,
		metrics:   opts.Metrics,
		onRequest: opts.OnRequest,
		items:     make(map[int]*Item),
		size:      opts.Config.Panel.Size,
		position:  pos,
		quit:      make(chan struct{}),
	}

	lconf := opts.Config.LauncherConfig()
	lconf.Transport = opts.Transport
	lconf.Executer = opts.Executer
	lconf.Metrics = opts.Metrics
	if opts.Logs != nil {
		lconf.Logs = opts.Logs.Append
	}
	lconf.OnExit = r.onExit
	lconf.OnSignal = func(h *external.Handle, sig provider.Signal) { r.HandleSignal(h.UniqueID(), sig) }
	lconf.OnRequisition = func(h *external.Handle, w, ht int) { r.setRequisition(h.UniqueID(), w, ht) }
	lconf.OnEmbedded = r.onEmbedded
	r.launcher = external.NewLauncher(lconf, masterLogger.PackageLogger("external"))

	r.factory = factory.New(factory.Config{
		Dirs:          opts.Config.SearchDirs(),
		Registry:      opts.Registry,
		Spawner:       r.launcher,
		Hosts:         r.hostFor,
		ForceExternal: opts.Config.Plugins.ForceExternal,
	}, masterLogger.PackageLogger("factory"))

	return r, nil
}

// Factory returns the plugin factory.
func (r *Runtime) Factory() *factory.Factory { return r.factory }

// Launcher returns the wrapper launcher.
func (r *Runtime) Launcher() *external.Launcher { return r.launcher }

// Start creates the configured items and starts watching the plugin dirs.
// Items that fail to start are logged and left out.
func (r *Runtime) Start() error {
	r.log.Infof("Starting panel on the %s transport.", r.transport.Type())

	r.mu.Lock()
	items := append([]ItemConfig(nil), r.conf.Items...)
	r.mu.Unlock()

	for _, item := range items {
		if _, err := r.AddItem(item.Name, item.ID, item.Args); err != nil {
			r.log.WithError(err).Warnf("Failed to add plugin %s-%d.", item.Name, item.ID)
		}
	}

	if r.conf.Plugins.Watch {
		w, err := r.factory.Watch(factory.DefaultWatchDebounce, func() {
			r.log.Info("Plugin modules changed.")
		})
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.watcher = w
		r.mu.Unlock()
	}
	return nil
}

// Run starts the panel and blocks until ctx is done or a plugin asks the
// panel to quit. It then shuts down every wrapper.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-r.quit:
	}
	return r.Shutdown()
}

// Quit ends Run. Only the first call counts.
func (r *Runtime) Quit(restart bool) {
	r.quitOnce.Do(func() {
		r.mu.Lock()
		r.restart = restart
		r.mu.Unlock()
		close(r.quit)
	})
}

// Done is closed once Quit was called.
func (r *Runtime) Done() <-chan struct{} { return r.quit }

// Restarting reports whether the panel quit to be restarted.
func (r *Runtime) Restarting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restart
}

// Shutdown asks every wrapper to quit and waits for them, up to the
// configured shutdown timeout.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	r.closing = true
	reason := external.ReasonPanelQuit
	if r.restart {
		reason = external.ReasonPanelRestart
	}
	watcher := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if watcher != nil {
		if err := watcher.Close(); err != nil {
			r.log.WithError(err).Warn("Failed to close plugin dir watcher.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout())
	defer cancel()

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		lastErr error
	)
	for _, h := range r.launcher.Handles() {
		wg.Add(1)
		go func(h *external.Handle) {
			defer wg.Done()
			if err := h.Terminate(ctx, reason); err != nil {
				r.log.WithError(err).Warnf("Plugin %s-%d did not quit.", h.Name(), h.UniqueID())
				errMu.Lock()
				lastErr = err
				errMu.Unlock()
			}
		}(h)
	}
	wg.Wait()
	r.log.Infof("Panel stopped (%s).", reason)
	return lastErr
}

// AddItem creates a plugin and puts it at the end of the panel. hint is
// the preferred unique id, or -1.
func (r *Runtime) AddItem(name string, hint int, args []string) (int, error) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return 0, errors.New("panel is shutting down")
	}
	r.mu.Unlock()
	if hint <= 0 {
		hint = -1
	}

	p, err := r.factory.NewInstance(name, "", hint, args)
	if err != nil {
		r.dropOrphans()
		return 0, err
	}
	id := p.UniqueID()

	r.mu.Lock()
	it := r.slot(id)
	it.Provider = p
	it.Args = args
	r.order = append(r.order, id)
	size, pos, monitor := r.size, r.position, r.conf.Panel.Monitor
	r.mu.Unlock()

	configure(p, size, pos)
	if pl, ok := p.(provider.Placement); ok {
		pl.SetMonitor(monitor)
	}
	if ap, ok := p.(provider.Appearance); ok {
		ap.SetSensitive(true)
	}
	r.relayout()
	return id, nil
}

// RemoveItem takes the item off the panel for good and forgets its logs.
func (r *Runtime) RemoveItem(id int) error {
	it := r.take(id)
	if it == nil {
		return ErrUnknownItem
	}
	r.release(id)
	if r.logs != nil {
		if err := r.logs.Forget(id); err != nil {
			r.log.WithError(err).Warnf("Failed to forget logs of plugin %d.", id)
		}
	}

	if h, ok := it.Provider.(*external.Handle); ok {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout())
			defer cancel()
			if err := h.Terminate(ctx, external.ReasonUserRemove); err != nil {
				r.log.WithError(err).Warnf("Plugin %s-%d did not exit after removal.", h.Name(), id)
			}
		}()
	} else {
		it.Provider.Remove()
	}
	r.log.Infof("Removed plugin %s-%d.", it.Provider.Name(), id)
	r.relayout()
	return nil
}

// Save asks every plugin to save and writes the item list to the config.
func (r *Runtime) Save() error {
	r.mu.Lock()
	providers := make([]provider.Provider, 0, len(r.order))
	items := make([]ItemConfig, 0, len(r.order))
	for _, id := range r.order {
		it := r.items[id]
		providers = append(providers, it.Provider)
		items = append(items, ItemConfig{Name: it.Provider.Name(), ID: id, Args: it.Args})
	}
	r.conf.Items = items
	conf := *r.conf
	r.mu.Unlock()

	for _, p := range providers {
		p.Save()
	}
	if r.confPath == "" {
		return nil
	}
	if err := conf.Write(r.confPath); err != nil {
		return err
	}
	r.log.Infof("Saved %d items to %s.", len(items), r.confPath)
	return nil
}

// SetSize changes the panel size.
func (r *Runtime) SetSize(size int) {
	r.mu.Lock()
	r.size = size
	r.conf.Panel.Size = size
	r.mu.Unlock()
	for _, p := range r.providers() {
		p.SetSize(size)
	}
	r.relayout()
}

// SetScreenPosition moves the panel to another screen edge.
func (r *Runtime) SetScreenPosition(pos provider.ScreenPosition) {
	r.mu.Lock()
	r.position = pos
	r.conf.Panel.Position = pos.String()
	size := r.size
	r.mu.Unlock()
	for _, p := range r.providers() {
		configure(p, size, pos)
	}
	r.relayout()
}

// SetMonitor moves the panel to another monitor.
func (r *Runtime) SetMonitor(monitor int) {
	r.mu.Lock()
	r.conf.Panel.Monitor = monitor
	r.mu.Unlock()
	for _, p := range r.providers() {
		if pl, ok := p.(provider.Placement); ok {
			pl.SetMonitor(monitor)
		}
	}
	r.relayout()
}

// SetHidden hides or shows the panel. Plugins of a hidden panel are moved
// offscreen.
func (r *Runtime) SetHidden(hidden bool) {
	r.mu.Lock()
	r.hidden = hidden
	r.mu.Unlock()
	r.relayout()
}

// Locked reports whether a plugin holds the panel locked.
func (r *Runtime) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked > 0
}

// Item returns the item holding id.
func (r *Runtime) Item(id int) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Provider == nil {
		return Item{}, false
	}
	return *it, true
}

// HandleSignal acts on a signal a plugin sent to the panel.
func (r *Runtime) HandleSignal(id int, sig provider.Signal) {
	r.log.Debugf("Plugin %d sent %s.", id, sig)
	switch sig {
	case provider.SignalRemovePlugin:
		if err := r.RemoveItem(id); err != nil {
			r.log.WithError(err).Warnf("Plugin %d asked to be removed.", id)
		}
	case provider.SignalExpandPlugin, provider.SignalCollapsePlugin:
		r.setExpand(id, sig == provider.SignalExpandPlugin)
	case provider.SignalLockPanel:
		r.mu.Lock()
		r.locked++
		r.mu.Unlock()
	case provider.SignalUnlockPanel:
		r.mu.Lock()
		if r.locked > 0 {
			r.locked--
		}
		r.mu.Unlock()
	case provider.SignalPanelQuit:
		r.Quit(false)
	case provider.SignalPanelRestart:
		r.Quit(true)
	default:
		if r.onRequest != nil {
			r.onRequest(id, sig)
			return
		}
		r.log.Infof("Plugin %d requested %s.", id, sig)
	}
}

func (r *Runtime) onEmbedded(h *external.Handle) {
	r.log.Debugf("Plugin %s-%d embedded.", h.Name(), h.UniqueID())
	r.relayout()
}

// onExit runs when a wrapper process is gone. The slot is dropped, and the
// logs are forgotten when the exit code says the plugin cannot run.
func (r *Runtime) onExit(h *external.Handle, info external.ExitInfo) {
	r.mu.Lock()
	closing := r.closing
	r.mu.Unlock()
	if closing {
		return
	}

	id := h.UniqueID()
	if r.take(id) == nil {
		return
	}
	r.release(id)

	switch {
	case info.Err == external.ErrEmbedTimeout:
		r.log.Warnf("Plugin %s-%d did not embed in time, removing it.", h.Name(), id)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout())
			defer cancel()
			h.Terminate(ctx, external.ReasonUserRemove) // nolint: errcheck
		}()
	case info.State == external.StateFailed:
		r.log.WithError(info.Err).Warnf("Plugin %s-%d never embedded, removing it.", h.Name(), id)
	case info.Code.Removes():
		r.log.Warnf("Plugin %s-%d exited with %s, removing it.", h.Name(), id, info.Code)
		if r.logs != nil {
			r.logs.Forget(id) // nolint: errcheck
		}
	default:
		r.log.Infof("Plugin %s-%d exited with %s.", h.Name(), id, info.Code)
	}
	r.relayout()
}

func (r *Runtime) shutdownTimeout() time.Duration {
	if t := time.Duration(r.conf.ShutdownTimeout); t > 0 {
		return t
	}
	return DefaultShutdownTimeout
}

func (r *Runtime) release(id int) {
	if err := r.factory.Release(id); err != nil && err != factory.ErrUnknownInstance {
		r.log.WithError(err).Warnf("Failed to release plugin %d.", id)
	}
}

// slot returns the item for id, creating an empty one. It must be called
// with mu held. In-process plugins report hints from their constructor,
// before AddItem stores the provider.
func (r *Runtime) slot(id int) *Item {
	it, ok := r.items[id]
	if !ok {
		it = &Item{}
		r.items[id] = it
	}
	return it
}

// dropOrphans forgets the hints a failed constructor reported for an id the
// factory no longer holds.
func (r *Runtime) dropOrphans() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, it := range r.items {
		if it.Provider == nil && !r.factory.Reserved(id) {
			delete(r.items, id)
		}
	}
}

func (r *Runtime) take(id int) *Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Provider == nil {
		return nil
	}
	delete(r.items, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return it
}

func (r *Runtime) providers() []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]provider.Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id].Provider)
	}
	return out
}

func (r *Runtime) setExpand(id int, expand bool) {
	r.mu.Lock()
	r.slot(id).expand = expand
	r.mu.Unlock()
	r.relayout()
}

func (r *Runtime) setRequisition(id, width, height int) {
	r.mu.Lock()
	it := r.slot(id)
	it.width, it.height = width, height
	r.mu.Unlock()
	r.relayout()
}

type placement struct {
	p          provider.Placement
	x, y, w, h int
}

// relayout places the items one after another along the panel. Expanding
// items share the length the others leave free.
func (r *Runtime) relayout() {
	r.mu.Lock()
	horizontal := r.position.IsHorizontal()
	size, length, hidden := r.size, r.conf.Panel.Length, r.hidden

	used, expanding := 0, 0
	for _, id := range r.order {
		it := r.items[id]
		if it.expand {
			expanding++
			continue
		}
		used += it.main(horizontal, size)
	}
	extra := 0
	if expanding > 0 && length > used {
		extra = (length - used) / expanding
	}

	var out []placement
	offset := 0
	for _, id := range r.order {
		it := r.items[id]
		main := it.main(horizontal, size)
		if it.expand {
			main = extra
		}
		pl, ok := it.Provider.(provider.Placement)
		if ok {
			g := placement{p: pl, x: offset, w: main, h: size}
			if !horizontal {
				g = placement{p: pl, y: offset, w: size, h: main}
			}
			if hidden {
				g.x, g.y = Offscreen, Offscreen
			}
			out = append(out, g)
		}
		offset += main
	}
	r.mu.Unlock()

	for _, g := range out {
		g.p.SetGeometry(g.x, g.y, g.w, g.h)
	}
}

// main returns the length the item takes along the panel.
func (it *Item) main(horizontal bool, size int) int {
	l := it.height
	if horizontal {
		l = it.width
	}
	if l <= 0 {
		return size
	}
	return l
}

func configure(p provider.Provider, size int, pos provider.ScreenPosition) {
	p.SetSize(size)
	p.SetOrientation(pos.Orientation())
	p.SetScreenPosition(pos)
}

// host is the panel as seen by an in-process plugin.
type host struct {
	r   *Runtime
	id  int
	log *logging.Logger
}

func (r *Runtime) hostFor(info provider.Info) provider.Host {
	return &host{
		r:   r,
		id:  info.UniqueID,
		log: r.logger.PackageLogger(fmt.Sprintf("%s-%d", info.Name, info.UniqueID)),
	}
}

func (h *host) Emit(sig provider.Signal) { h.r.HandleSignal(h.id, sig) }

func (h *host) SetExpand(expand bool) { h.r.setExpand(h.id, expand) }

func (h *host) SetRequisition(width, height int) { h.r.setRequisition(h.id, width, height) }

func (h *host) Logger() *logging.Logger { return h.log }
