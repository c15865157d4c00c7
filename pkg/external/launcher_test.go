package external

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/internal/testhelpers"
	"github.com/skycoin/xfce4-panel/pkg/factory"
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

type recorder struct {
	mu      sync.Mutex
	exits   []ExitInfo
	signals []provider.Signal
	reqs    [][2]int
	embeds  int
}

func (r *recorder) Exits() []ExitInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExitInfo(nil), r.exits...)
}

func (r *recorder) Signals() []provider.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]provider.Signal(nil), r.signals...)
}

type fixture struct {
	t     *testing.T
	tf    *transport.MockFactory
	exec  *MockExecuter
	l     *Launcher
	rec   *recorder
	desc  *factory.Descriptor
	lines chan string
}

func newFixture(t *testing.T, edit func(*Config)) *fixture {
	dir, err := ioutil.TempDir("", "external")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) }) // nolint: errcheck

	wrapper := filepath.Join(dir, "xfce4-panel-wrapper")
	require.NoError(t, ioutil.WriteFile(wrapper, []byte("#!/bin/sh\n"), 0755))

	f := &fixture{
		t:     t,
		tf:    transport.NewMockFactory(),
		exec:  NewMockExecuter(),
		rec:   &recorder{},
		lines: make(chan string, 16),
		desc: &factory.Descriptor{
			Name:        "clock",
			DisplayName: "Clock",
			Module:      "clock",
			Filename:    "/usr/lib/xfce4/panel/plugins/libclock.so",
		},
	}
	conf := Config{
		WrapperPath: wrapper,
		Transport:   f.tf,
		Executer:    f.exec,
		Logs:        func(id int, line string) { f.lines <- line },
		OnExit: func(h *Handle, info ExitInfo) {
			f.rec.mu.Lock()
			f.rec.exits = append(f.rec.exits, info)
			f.rec.mu.Unlock()
		},
		OnSignal: func(h *Handle, sig provider.Signal) {
			f.rec.mu.Lock()
			f.rec.signals = append(f.rec.signals, sig)
			f.rec.mu.Unlock()
		},
		OnRequisition: func(h *Handle, w, ht int) {
			f.rec.mu.Lock()
			f.rec.reqs = append(f.rec.reqs, [2]int{w, ht})
			f.rec.mu.Unlock()
		},
		OnEmbedded: func(h *Handle) {
			f.rec.mu.Lock()
			f.rec.embeds++
			f.rec.mu.Unlock()
		},
	}
	if edit != nil {
		edit(&conf)
	}
	f.l = NewLauncher(conf, nil)
	return f
}

func (f *fixture) spawn(id int) *Handle {
	p, err := f.l.Spawn(f.desc, "", id, nil)
	require.NoError(f.t, err)
	return p.(*Handle)
}

func (f *fixture) embed(h *Handle) {
	require.NoError(f.t, f.tf.Peer(h.UniqueID()).Send(plugmsg.Trigger(plugmsg.KindEmbedded)))
	testhelpers.Eventually(f.t, func() bool { return h.State() == StateEmbedded })
}

func TestArgv(t *testing.T) {
	d := &factory.Descriptor{Name: "clock", Filename: "/lib/libclock.so"}
	assert.Equal(t,
		[]string{"--name", "clock", "--display-name", "Clock", "--id", "4", "--filename", "/lib/libclock.so", "--socket-id", "77"},
		Argv(d, "Clock", 4, 77, nil))
	assert.Equal(t,
		[]string{"--name", "clock", "--display-name", "Clock", "--id", "4", "--filename", "/lib/libclock.so", "--socket-id", "0", "--", "-v", "x"},
		Argv(d, "Clock", 4, 0, []string{"-v", "x"}))
}

func TestLauncher_Spawn(t *testing.T) {
	f := newFixture(t, nil)
	h := f.spawn(3)

	assert.Equal(t, StateRunning, h.State())
	assert.Equal(t, "Clock", h.Info().DisplayName)
	assert.Equal(t, uint32(3), h.SocketID())
	assert.True(t, f.tf.Socket(3).IsStarted())

	cmds := f.exec.Cmds()
	require.Len(t, cmds, 1)
	assert.Contains(t, strings.Join(cmds[0].Args, " "), "--id 3 --filename /usr/lib/xfce4/panel/plugins/libclock.so --socket-id 3")

	_, err := cmds[0].Stdout.Write([]byte("hello\nwor"))
	require.NoError(t, err)
	_, err = cmds[0].Stdout.Write([]byte("ld\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello", <-f.lines)
	assert.Equal(t, "world", <-f.lines)

	got, ok := f.l.Handle(3)
	require.True(t, ok)
	assert.Equal(t, h, got)
}

func TestLauncher_SpawnFailures(t *testing.T) {
	t.Run("no_wrapper", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.WrapperPath = "/nonexistent/xfce4-panel-wrapper" })
		_, err := f.l.Spawn(f.desc, "", 1, nil)
		assert.Equal(t, ErrWrapperNotFound, errors.Cause(err))
		assert.Nil(t, f.tf.Socket(1))
		assert.Empty(t, f.exec.Cmds())
	})
	t.Run("start_error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.exec.SetErr(errors.New("exec format error"))
		_, err := f.l.Spawn(f.desc, "", 1, nil)
		assert.Error(t, err)
		assert.Equal(t, transport.ErrClosed, f.tf.Socket(1).Send(plugmsg.Trigger(plugmsg.KindSave)))
		_, ok := f.l.Handle(1)
		assert.False(t, ok)
	})
}

func TestHandle_QueueUntilEmbedded(t *testing.T) {
	f := newFixture(t, nil)
	h := f.spawn(5)
	sock := f.tf.Socket(5)

	h.SetSize(30)
	h.SetSize(28)
	h.SetOrientation(provider.Vertical)
	h.Save()
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, sock.Sent())
	assert.Equal(t, 3, h.Pending())

	f.embed(h)
	want := []plugmsg.Message{
		plugmsg.Int(plugmsg.KindSetSize, 28),
		plugmsg.Int(plugmsg.KindSetOrientation, int(provider.Vertical)),
		plugmsg.Trigger(plugmsg.KindSave),
	}
	testhelpers.Eventually(t, func() bool { return len(sock.Sent()) == 3 })
	assert.Equal(t, want, sock.Sent())

	// restating a delivered value sends nothing
	h.SetSize(28)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, sock.Sent(), 3)

	h.SetSize(32)
	testhelpers.Eventually(t, func() bool { return len(sock.Sent()) == 4 })
	assert.Equal(t, plugmsg.Int(plugmsg.KindSetSize, 32), sock.Sent()[3])
	assert.Equal(t, 1, f.rec.embeds)
}

func TestSendOrder(t *testing.T) {
	geo := plugmsg.Geometry(0, 0, 10, 10)
	mon := plugmsg.Int(plugmsg.KindSetMonitor, 1)
	size := plugmsg.Int(plugmsg.KindSetSize, 10)

	assert.Equal(t, []plugmsg.Message{size, mon, geo}, sendOrder([]plugmsg.Message{size, geo, mon}))
	assert.Equal(t, []plugmsg.Message{mon, geo, size}, sendOrder([]plugmsg.Message{geo, size, mon}))
	assert.Equal(t, []plugmsg.Message{mon, size, geo}, sendOrder([]plugmsg.Message{mon, size, geo}))
	assert.Equal(t, []plugmsg.Message{geo}, sendOrder([]plugmsg.Message{geo}))
}

func TestHandle_UnsetBackground(t *testing.T) {
	f := newFixture(t, nil)
	h := f.spawn(4)
	f.embed(h)
	sock := f.tf.Socket(4)

	color := plugmsg.String(plugmsg.KindSetBackgroundColor, "#336699")
	h.SetBackgroundColor("#336699")
	testhelpers.Eventually(t, func() bool { return len(sock.Sent()) == 1 })
	h.UnsetBackground()
	testhelpers.Eventually(t, func() bool { return len(sock.Sent()) == 2 })
	h.SetBackgroundColor("#336699")
	testhelpers.Eventually(t, func() bool { return len(sock.Sent()) == 3 })

	assert.Equal(t, []plugmsg.Message{color, plugmsg.Trigger(plugmsg.KindUnsetBackground), color}, sock.Sent())
}

func TestHandle_ReembedResends(t *testing.T) {
	f := newFixture(t, nil)
	h := f.spawn(8)
	f.embed(h)
	sock := f.tf.Socket(8)

	h.SetGeometry(0, 0, 30, 30)
	testhelpers.Eventually(t, func() bool { return len(sock.Sent()) == 1 })

	require.NoError(t, f.tf.Peer(8).Send(plugmsg.Trigger(plugmsg.KindProviderDestroyed)))
	testhelpers.Eventually(t, func() bool { return h.State() == StateUnembedded })
	f.embed(h)

	h.SetGeometry(0, 0, 30, 30)
	testhelpers.Eventually(t, func() bool { return len(sock.Sent()) == 2 })
	assert.Equal(t, plugmsg.Geometry(0, 0, 30, 30), sock.Sent()[1])
}

func TestHandle_Inbound(t *testing.T) {
	f := newFixture(t, nil)
	h := f.spawn(2)
	f.embed(h)
	peer := f.tf.Peer(2)

	assert.False(t, h.CanConfigure())
	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalShowConfigure)))
	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalShowAbout)))
	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalLockPanel)))
	require.NoError(t, peer.Send(plugmsg.FromSignal(provider.SignalExpandPlugin)))
	require.NoError(t, peer.Send(plugmsg.Requisition(48, 24)))
	require.NoError(t, peer.Send(plugmsg.Int(plugmsg.KindSetSize, 1)))

	testhelpers.Eventually(t, func() bool {
		f.rec.mu.Lock()
		defer f.rec.mu.Unlock()
		return len(f.rec.reqs) == 1
	})
	assert.True(t, h.CanConfigure())
	assert.True(t, h.CanShowAbout())
	assert.Equal(t, []provider.Signal{provider.SignalLockPanel, provider.SignalExpandPlugin}, f.rec.Signals())
	assert.Equal(t, [2]int{48, 24}, f.rec.reqs[0])

	require.NoError(t, peer.Send(plugmsg.Trigger(plugmsg.KindProviderDestroyed)))
	testhelpers.Eventually(t, func() bool { return h.State() == StateUnembedded })

	// updates are held while the window is gone
	sent := len(f.tf.Socket(2).Sent())
	h.SetSensitive(false)
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, f.tf.Socket(2).Sent(), sent)
	f.embed(h)
	testhelpers.Eventually(t, func() bool { return len(f.tf.Socket(2).Sent()) == sent+1 })
}

func TestHandle_ExitBeforeEmbed(t *testing.T) {
	f := newFixture(t, nil)
	h := f.spawn(6)

	f.exec.Exit(h.PID(), int(provider.ExitPreinitFailed))
	testhelpers.Closed(t, h.Exited(), "handle did not notice the exit")

	assert.Equal(t, StateFailed, h.State())
	testhelpers.Eventually(t, func() bool { return len(f.rec.Exits()) == 1 })
	info := f.rec.Exits()[0]
	assert.Equal(t, provider.ExitPreinitFailed, info.Code)
	assert.Equal(t, ErrExitedEarly, info.Err)
	assert.True(t, info.Code.Removes())

	_, ok := f.l.Handle(6)
	assert.False(t, ok)
	assert.Equal(t, transport.ErrClosed, f.tf.Socket(6).Send(plugmsg.Trigger(plugmsg.KindSave)))
}

func TestHandle_EmbedTimeout(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.EmbedTimeout = 20 * time.Millisecond })
	h := f.spawn(7)

	testhelpers.Eventually(t, func() bool { return len(f.rec.Exits()) == 1 })
	assert.Equal(t, ErrEmbedTimeout, f.rec.Exits()[0].Err)
	assert.Equal(t, StateFailed, h.State())

	// the process is left running and its later exit is not reported again
	select {
	case <-h.Exited():
		t.Fatal("process should still be running")
	default:
	}
	f.exec.Exit(h.PID(), 0)
	<-h.Exited()
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.rec.Exits(), 1)
	assert.Equal(t, StateFailed, h.ExitInfo().State)
}

func TestHandle_Terminate(t *testing.T) {
	cases := []struct {
		reason TerminateReason
		want   plugmsg.Kind
	}{
		{ReasonUserRemove, plugmsg.KindRemove},
		{ReasonPanelQuit, plugmsg.KindQuit},
		{ReasonPanelRestart, plugmsg.KindQuit},
	}
	for i, tc := range cases {
		t.Run(tc.reason.String(), func(t *testing.T) {
			f := newFixture(t, nil)
			h := f.spawn(i + 1)
			f.embed(h)

			received := make(chan plugmsg.Message, 8)
			f.tf.Peer(h.UniqueID()).OnReceive(func(m plugmsg.Message) { received <- m })

			errCh := make(chan error, 1)
			go func() { errCh <- h.Terminate(context.Background(), tc.reason) }()

			assert.Equal(t, tc.want, (<-received).Kind)
			f.exec.Exit(h.PID(), 0)
			require.NoError(t, <-errCh)
			assert.Equal(t, StateExited, h.State())
			testhelpers.Eventually(t, func() bool { return len(f.rec.Exits()) == 1 })
			assert.Equal(t, provider.ExitSuccess, f.rec.Exits()[0].Code)
		})
	}

	t.Run("deadline", func(t *testing.T) {
		f := newFixture(t, nil)
		h := f.spawn(9)
		f.embed(h)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Equal(t, context.DeadlineExceeded, h.Terminate(ctx, ReasonPanelQuit))
		assert.Equal(t, StateEmbedded, h.State())
	})
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := &lineWriter{fn: func(l string) { lines = append(lines, l) }}
	_, err := w.Write([]byte("a\r\nb\nc"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
	require.NoError(t, w.Close())
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}
