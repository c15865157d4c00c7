package wayland

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

// Factory creates per-plugin object paths on a bus and routes the signals
// wrappers emit on them.
type Factory struct {
	bus Bus
	log *logging.Logger

	signals chan *dbus.Signal
	mu      sync.Mutex
	sockets map[dbus.ObjectPath]*Socket
	done    chan struct{}
	stopped chan struct{}
}

// NewFactory constructs a Factory listening on bus.
func NewFactory(bus Bus, log *logging.Logger) *Factory {
	if log == nil {
		log = logging.MustGetLogger("wayland")
	}
	f := &Factory{
		bus:     bus,
		log:     log,
		signals: make(chan *dbus.Signal, 64),
		sockets: make(map[dbus.ObjectPath]*Socket),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	bus.Signal(f.signals)
	go f.loop()
	return f
}

// Type implements transport.Factory.
func (f *Factory) Type() string { return transport.TypeWayland }

// NewSocket implements transport.Factory. If the bus refuses the signal
// match the socket still works one way, and reports itself embedded as soon
// as the wrapper has started.
func (f *Factory) NewSocket(uniqueID int) (transport.Socket, error) {
	s := &Socket{
		f:    f,
		id:   uniqueID,
		path: Path(uniqueID),
		last: make(map[plugmsg.Kind]plugmsg.Message),
	}
	if err := f.bus.AddMatchSignal(s.match()...); err != nil {
		f.log.WithError(err).Warnf("Plugin %d will not be heard from.", uniqueID)
		s.degraded = true
	}
	f.mu.Lock()
	f.sockets[s.path] = s
	f.mu.Unlock()
	return s, nil
}

// Close implements transport.Factory.
func (f *Factory) Close() error {
	f.mu.Lock()
	sockets := make([]*Socket, 0, len(f.sockets))
	for _, s := range f.sockets {
		sockets = append(sockets, s)
	}
	f.mu.Unlock()
	for _, s := range sockets {
		s.Close() // nolint: errcheck
	}
	f.bus.RemoveSignal(f.signals)
	close(f.done)
	<-f.stopped
	return nil
}

func (f *Factory) loop() {
	defer close(f.stopped)
	for {
		select {
		case <-f.done:
			return
		case sig, ok := <-f.signals:
			if !ok {
				return
			}
			f.route(sig)
		}
	}
}

func (f *Factory) route(sig *dbus.Signal) {
	if !strings.HasPrefix(sig.Name, Interface+".") {
		return
	}
	f.mu.Lock()
	s := f.sockets[sig.Path]
	f.mu.Unlock()
	if s == nil {
		return
	}
	member := strings.TrimPrefix(sig.Name, Interface+".")
	if member == memberSet {
		return
	}
	m, err := fromWrapperSignal(member, sig.Body)
	if err != nil {
		f.log.WithError(err).Warnf("Plugin %d sent bad signal %s.", s.id, member)
		return
	}
	if m.Kind == plugmsg.KindEmbedded {
		s.resetLast()
	}
	s.Dispatch(m)
}

// Socket is the panel end of one plugin's object path.
type Socket struct {
	transport.Receiver

	f        *Factory
	id       int
	path     dbus.ObjectPath
	degraded bool

	mu     sync.Mutex
	last   map[plugmsg.Kind]plugmsg.Message
	closed bool
}

func (s *Socket) match() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(s.path),
		dbus.WithMatchInterface(Interface),
	}
}

// ID implements transport.Socket. There is no embedding primitive to name,
// so it is always 0 and the wrapper finds its object path by plugin id.
func (s *Socket) ID() uint32 { return 0 }

// Prepare implements transport.Socket.
func (s *Socket) Prepare(cmd *exec.Cmd) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, transport.EnvTransport+"="+transport.TypeWayland)
	return nil
}

// Started implements transport.Socket.
func (s *Socket) Started() error {
	if s.degraded {
		s.Dispatch(plugmsg.Trigger(plugmsg.KindEmbedded))
	}
	return nil
}

func (s *Socket) resetLast() {
	s.mu.Lock()
	s.last = make(map[plugmsg.Kind]plugmsg.Message)
	s.mu.Unlock()
}

// suppressed reports whether m restates the geometry or monitor the wrapper
// already has. It must be called with mu held.
func (s *Socket) suppressed(m plugmsg.Message) bool {
	if m.Kind != plugmsg.KindSetGeometry && m.Kind != plugmsg.KindSetMonitor {
		return false
	}
	last, ok := s.last[m.Kind]
	return ok && last == m
}

// Send implements transport.Channel.
func (s *Socket) Send(m plugmsg.Message) error {
	return s.SendBatch([]plugmsg.Message{m})
}

// SendBatch emits msgs in a single Set signal.
func (s *Socket) SendBatch(msgs []plugmsg.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	entries := make([]SetEntry, 0, len(msgs))
	sent := make([]plugmsg.Message, 0, len(msgs))
	for _, m := range msgs {
		if s.suppressed(m) {
			continue
		}
		entries = append(entries, toEntry(m))
		sent = append(sent, m)
	}
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if err := s.f.bus.Emit(s.path, Interface+"."+memberSet, entries); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range sent {
		if m.Kind == plugmsg.KindSetGeometry || m.Kind == plugmsg.KindSetMonitor {
			s.last[m.Kind] = m
		}
	}
	return nil
}

// Close implements transport.Channel.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.f.mu.Lock()
	delete(s.f.sockets, s.path)
	s.f.mu.Unlock()
	if s.degraded {
		return nil
	}
	return s.f.bus.RemoveMatchSignal(s.match()...)
}
