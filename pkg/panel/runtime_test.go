package panel

import (
	"errors"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/internal/testhelpers"
	"github.com/skycoin/xfce4-panel/pkg/external"
	"github.com/skycoin/xfce4-panel/pkg/factory"
	"github.com/skycoin/xfce4-panel/pkg/logstore"
	"github.com/skycoin/xfce4-panel/pkg/plugins"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

func TestMain(m *testing.M) {
	loggingLevel, ok := os.LookupEnv("TEST_LOGGING_LEVEL")
	if ok {
		lvl, err := logging.LevelFromString(loggingLevel)
		if err != nil {
			log.Fatal(err)
		}
		logging.SetLevel(lvl)
	} else {
		logging.Disable()
	}
	os.Exit(m.Run())
}

const weatherID = 5

type requests struct {
	mu   sync.Mutex
	sigs []provider.Signal
}

func (r *requests) add(_ int, sig provider.Signal) {
	r.mu.Lock()
	r.sigs = append(r.sigs, sig)
	r.mu.Unlock()
}

func (r *requests) all() []provider.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]provider.Signal(nil), r.sigs...)
}

type fixture struct {
	t        *testing.T
	dir      string
	confPath string
	conf     *Config
	tf       *transport.MockFactory
	exec     *external.MockExecuter
	logs     *logstore.Store
	registry *provider.Registry
	reqs     *requests
	r        *Runtime
}

func newFixture(t *testing.T) *fixture {
	dir, err := ioutil.TempDir("", "panel")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) }) // nolint: errcheck

	data, lib := filepath.Join(dir, "share"), filepath.Join(dir, "lib")
	require.NoError(t, os.MkdirAll(data, 0755))
	require.NoError(t, os.MkdirAll(lib, 0755))
	desktop := map[string]string{
		"separator": "[Xfce Panel]\nName=Separator\nX-XFCE-Module=separator\nX-XFCE-Internal=true\n",
		"clock":     "[Xfce Panel]\nName=Clock\nX-XFCE-Module=clock\nX-XFCE-Internal=true\nX-XFCE-Unique=true\n",
		"weather":   "[Xfce Panel]\nName=Weather\nComment=Forecasts\nX-XFCE-Module=weather\n",
	}
	for name, body := range desktop {
		require.NoError(t, ioutil.WriteFile(filepath.Join(data, name+".desktop"), []byte(body), 0644))
	}
	require.NoError(t, ioutil.WriteFile(factory.ModulePath(lib, "weather"), nil, 0644))

	wrapper := filepath.Join(dir, "xfce4-panel-wrapper")
	require.NoError(t, ioutil.WriteFile(wrapper, []byte("#!/bin/sh\n"), 0755))

	conf := DefaultConfig()
	conf.Plugins.Dirs = []factory.SearchDir{{Data: data, Lib: lib}}
	conf.Plugins.WrapperPath = wrapper
	conf.Plugins.Watch = false
	conf.ShutdownTimeout = Duration(time.Second)
	conf.Items = []ItemConfig{
		{Name: "separator", ID: 1, Args: []string{"expand"}},
		{Name: "weather", ID: weatherID},
	}

	logs, err := logstore.Open(filepath.Join(dir, "logs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { logs.Close() }) // nolint: errcheck

	registry := provider.NewRegistry()
	require.NoError(t, plugins.RegisterAll(registry))

	f := &fixture{
		t:        t,
		dir:      dir,
		confPath: filepath.Join(dir, "panel.json"),
		conf:     conf,
		tf:       transport.NewMockFactory(),
		exec:     external.NewMockExecuter(),
		logs:     logs,
		registry: registry,
		reqs:     &requests{},
	}
	f.r, err = New(Options{
		Config:     conf,
		ConfigPath: f.confPath,
		Transport:  f.tf,
		Registry:   registry,
		Executer:   f.exec,
		Logs:       logs,
		OnRequest:  f.reqs.add,
	}, logging.NewMasterLogger())
	require.NoError(t, err)
	return f
}

func (f *fixture) start() {
	require.NoError(f.t, f.r.Start())
	f.t.Cleanup(func() {
		for _, h := range f.r.Launcher().Handles() {
			f.exec.Exit(h.PID(), 0)
		}
	})
}

func (f *fixture) handle(id int) *external.Handle {
	h, ok := f.r.Launcher().Handle(id)
	require.True(f.t, ok)
	return h
}

func (f *fixture) embed(id int) *external.Handle {
	h := f.handle(id)
	require.NoError(f.t, f.tf.Peer(id).Send(plugmsg.Trigger(plugmsg.KindEmbedded)))
	testhelpers.Eventually(f.t, func() bool { return h.State() == external.StateEmbedded })
	return h
}

func (f *fixture) received(id int, kind plugmsg.Kind) (plugmsg.Message, bool) {
	sent := f.tf.Socket(id).Sent()
	for i := len(sent) - 1; i >= 0; i-- {
		if sent[i].Kind == kind {
			return sent[i], true
		}
	}
	return plugmsg.Message{}, false
}

func (f *fixture) geometry(id int) plugmsg.Rect {
	m, _ := f.received(id, plugmsg.KindSetGeometry)
	return m.Rect
}

func (f *fixture) placeholders() int {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	n := 0
	for _, it := range f.r.items {
		if it.Provider == nil {
			n++
		}
	}
	return n
}

func (f *fixture) ids() []int32 {
	var out []int32
	for _, it := range f.r.Items() {
		out = append(out, it.ID)
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(Options{Transport: transport.NewMockFactory()}, nil)
	assert.Error(t, err)
	_, err = New(Options{Config: DefaultConfig()}, nil)
	assert.Error(t, err)

	conf := DefaultConfig()
	conf.Panel.Position = "middle"
	_, err = New(Options{Config: conf, Transport: transport.NewMockFactory()}, nil)
	assert.Error(t, err)
}

func TestRuntime_Start(t *testing.T) {
	f := newFixture(t)
	f.start()

	assert.Equal(t, []ItemSummary{
		{ID: 1, Name: "separator", State: "internal"},
		{ID: weatherID, Name: "weather", External: true, State: "running"},
	}, f.r.Items())

	sep, ok := f.r.Item(1)
	require.True(t, ok)
	assert.True(t, sep.expand)

	// nothing reaches a wrapper before it embeds
	assert.Empty(t, f.tf.Socket(weatherID).Sent())

	f.embed(weatherID)
	testhelpers.Eventually(t, func() bool {
		_, ok := f.received(weatherID, plugmsg.KindSetGeometry)
		return ok
	})
	size, _ := f.received(weatherID, plugmsg.KindSetSize)
	assert.Equal(t, 30, size.Int())
	assert.Equal(t, plugmsg.Rect{X: 1890, Width: 30, Height: 30}, f.geometry(weatherID))

	require.NoError(t, f.tf.Peer(weatherID).Send(plugmsg.Requisition(40, 30)))
	testhelpers.Eventually(t, func() bool {
		return f.geometry(weatherID) == plugmsg.Rect{X: 1880, Width: 40, Height: 30}
	})

	f.r.SetHidden(true)
	testhelpers.Eventually(t, func() bool {
		g := f.geometry(weatherID)
		return g.X == Offscreen && g.Y == Offscreen
	})
}

func TestRuntime_SkipsBrokenItems(t *testing.T) {
	f := newFixture(t)
	f.conf.Items = append(f.conf.Items, ItemConfig{Name: "missing", ID: 9})
	f.start()
	assert.Equal(t, []int32{1, weatherID}, f.ids())
}

func TestRuntime_AddRemove(t *testing.T) {
	f := newFixture(t)
	f.start()

	id, err := f.r.AddItem("clock", -1, nil)
	require.NoError(t, err)
	assert.Equal(t, weatherID+1, id)
	_, err = f.r.AddItem("clock", -1, nil)
	assert.Error(t, err, "clock is unique")

	require.NoError(t, f.r.RemoveItem(id))
	assert.Equal(t, ErrUnknownItem, f.r.RemoveItem(id))
	assert.Equal(t, []int32{1, weatherID}, f.ids())

	_, err = f.r.AddItem("clock", -1, nil)
	require.NoError(t, err, "a removed unique plugin can be added again")

	h := f.embed(weatherID)
	f.logs.Append(weatherID, "bye")
	require.NoError(t, f.r.RemoveItem(weatherID))
	testhelpers.Eventually(t, func() bool {
		_, ok := f.received(weatherID, plugmsg.KindRemove)
		return ok
	})
	f.exec.Exit(h.PID(), 0)
	<-h.Exited()

	assert.NotContains(t, f.r.Factory().IDs(), weatherID)
	_, err = f.r.PluginLogs(weatherID, time.Time{})
	assert.Equal(t, logstore.ErrUnknownPlugin, err)
}

func TestRuntime_FailedConstructor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register("broken", provider.EntryPoint{
		Object: func(_ provider.Info, host provider.Host) (provider.Provider, error) {
			host.SetExpand(true)
			host.SetRequisition(50, 30)
			return nil, errors.New("no display")
		},
	}))
	desktop := "[Xfce Panel]\nName=Broken\nX-XFCE-Module=broken\nX-XFCE-Internal=true\n"
	require.NoError(t, ioutil.WriteFile(filepath.Join(f.dir, "share", "broken.desktop"), []byte(desktop), 0644))
	f.r.Factory().Rescan()
	f.start()

	_, err := f.r.AddItem("broken", 7, nil)
	require.Error(t, err)
	_, err = f.r.AddItem("broken", -1, nil)
	require.Error(t, err)
	assert.Zero(t, f.placeholders())
	assert.Equal(t, []int32{1, weatherID}, f.ids())

	id, err := f.r.AddItem("clock", 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	it, ok := f.r.Item(id)
	require.True(t, ok)
	assert.False(t, it.expand)
}

func TestRuntime_SetMonitor(t *testing.T) {
	f := newFixture(t)
	f.start()

	f.r.SetMonitor(1)
	assert.Equal(t, 1, f.conf.Panel.Monitor)
	f.embed(weatherID)
	testhelpers.Eventually(t, func() bool {
		_, ok := f.received(weatherID, plugmsg.KindSetGeometry)
		return ok
	})

	sent := f.tf.Socket(weatherID).Sent()
	monitorAt, geometryAt := -1, -1
	for i, m := range sent {
		switch m.Kind {
		case plugmsg.KindSetMonitor:
			assert.Equal(t, -1, monitorAt, "monitor sent once")
			assert.Equal(t, 1, m.Int())
			monitorAt = i
		case plugmsg.KindSetGeometry:
			geometryAt = i
		}
	}
	require.NotEqual(t, -1, monitorAt)
	assert.Less(t, monitorAt, geometryAt, "the monitor goes out before the geometry")

	// the wrapper already has monitor 1
	f.r.SetMonitor(1)
	f.r.SetSize(40)
	testhelpers.Eventually(t, func() bool {
		size, _ := f.received(weatherID, plugmsg.KindSetSize)
		return size.Int() == 40
	})
	m, _ := f.received(weatherID, plugmsg.KindSetMonitor)
	assert.Equal(t, sent[monitorAt], m)
	n := 0
	for _, m := range f.tf.Socket(weatherID).Sent() {
		if m.Kind == plugmsg.KindSetMonitor {
			n++
		}
	}
	assert.Equal(t, 1, n)

	f.r.SetMonitor(0)
	testhelpers.Eventually(t, func() bool {
		m, _ := f.received(weatherID, plugmsg.KindSetMonitor)
		return m.Int() == 0
	})
}

func TestRuntime_Signals(t *testing.T) {
	f := newFixture(t)
	f.start()
	f.embed(weatherID)
	peer := f.tf.Peer(weatherID)

	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalLockPanel)))
	testhelpers.Eventually(t, f.r.Locked)
	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalUnlockPanel)))
	testhelpers.Eventually(t, func() bool { return !f.r.Locked() })

	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalPanelPreferences)))
	testhelpers.Eventually(t, func() bool { return len(f.reqs.all()) == 1 })
	assert.Equal(t, provider.SignalPanelPreferences, f.reqs.all()[0])

	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalExpandPlugin)))
	testhelpers.Eventually(t, func() bool {
		it, _ := f.r.Item(weatherID)
		return it.expand
	})

	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalPanelRestart)))
	testhelpers.Closed(t, f.r.Done(), "restart signal did not quit the panel")
	assert.True(t, f.r.Restarting())

	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalRemovePlugin)))
	testhelpers.Eventually(t, func() bool { return len(f.r.Items()) == 1 })
}

func TestRuntime_EmbedTimeout(t *testing.T) {
	f := newFixture(t)
	f.conf.Plugins.EmbedTimeout = Duration(20 * time.Millisecond)
	var err error
	f.r, err = New(Options{Config: f.conf, Transport: f.tf, Executer: f.exec}, nil)
	require.NoError(t, err)
	f.conf.Items = []ItemConfig{{Name: "weather", ID: weatherID}}
	f.start()

	testhelpers.Eventually(t, func() bool { return len(f.r.Items()) == 0 })
	testhelpers.Eventually(t, func() bool {
		_, ok := f.received(weatherID, plugmsg.KindRemove)
		return ok
	})
}

func TestRuntime_WrapperExit(t *testing.T) {
	tt := []struct {
		name     string
		code     provider.ExitCode
		keepLogs bool
	}{
		{"no_provider", provider.ExitNoProvider, false},
		{"check_failed", provider.ExitCheckFailed, true},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.start()
			h := f.embed(weatherID)
			f.logs.Append(weatherID, "crashed")

			f.exec.Exit(h.PID(), int(tc.code))
			testhelpers.Eventually(t, func() bool { return len(f.r.Items()) == 1 })
			assert.NotContains(t, f.r.Factory().IDs(), weatherID)

			logs, err := f.r.PluginLogs(weatherID, time.Time{})
			if tc.keepLogs {
				require.NoError(t, err)
				assert.Equal(t, []string{"crashed"}, logs)
			} else {
				assert.Equal(t, logstore.ErrUnknownPlugin, err)
			}
		})
	}

	t.Run("before_embedding", func(t *testing.T) {
		f := newFixture(t)
		f.start()
		f.exec.Exit(f.handle(weatherID).PID(), 0)
		testhelpers.Eventually(t, func() bool { return len(f.r.Items()) == 1 })
	})
}

func TestRuntime_Save(t *testing.T) {
	f := newFixture(t)
	f.start()
	_, err := f.r.AddItem("clock", 12, []string{"--format=15:04:05"})
	require.NoError(t, err)
	f.r.SetSize(42)
	require.NoError(t, f.r.Save())

	conf, err := ReadConfig(f.confPath)
	require.NoError(t, err)
	assert.Equal(t, 42, conf.Panel.Size)
	assert.Equal(t, []ItemConfig{
		{Name: "separator", ID: 1, Args: []string{"expand"}},
		{Name: "weather", ID: weatherID},
		{Name: "clock", ID: 12, Args: []string{"--format=15:04:05"}},
	}, conf.Items)
	assert.Equal(t, time.Second, time.Duration(conf.ShutdownTimeout))
}

func TestRuntime_Shutdown(t *testing.T) {
	f := newFixture(t)
	f.start()
	h := f.embed(weatherID)

	done := make(chan error, 1)
	go func() { done <- f.r.Shutdown() }()

	testhelpers.Eventually(t, func() bool {
		_, ok := f.received(weatherID, plugmsg.KindQuit)
		return ok
	})
	f.exec.Exit(h.PID(), 0)
	require.NoError(t, <-done)

	// items stay configured across a quit
	assert.Equal(t, []int32{1, weatherID}, f.ids())
	_, err := f.r.AddItem("clock", -1, nil)
	assert.Error(t, err)
}
