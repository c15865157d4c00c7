package x11

import (
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/jezek/xgb/xproto"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

// Factory creates container windows on one display and routes the events
// reported on them.
type Factory struct {
	d   Display
	log *logging.Logger

	mu      sync.Mutex
	sockets map[xproto.Window]*Socket
	done    chan struct{}
}

// NewFactory constructs a Factory and starts its event loop. The Factory
// takes ownership of d.
func NewFactory(d Display, log *logging.Logger) *Factory {
	if log == nil {
		log = logging.MustGetLogger("x11")
	}
	f := &Factory{
		d:       d,
		log:     log,
		sockets: make(map[xproto.Window]*Socket),
		done:    make(chan struct{}),
	}
	go f.loop()
	return f
}

// Type implements transport.Factory.
func (f *Factory) Type() string { return transport.TypeX11 }

// NewSocket implements transport.Factory.
func (f *Factory) NewSocket(uniqueID int) (transport.Socket, error) {
	w, err := f.d.CreateWindow(f.d.Root())
	if err != nil {
		return nil, err
	}
	if err := f.d.Map(w); err != nil {
		f.d.DestroyWindow(w) // nolint: errcheck
		return nil, err
	}
	s := &Socket{f: f, id: uniqueID, window: w}
	f.mu.Lock()
	f.sockets[w] = s
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
	err := f.d.Close()
	<-f.done
	return err
}

func (f *Factory) socket(w xproto.Window) *Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sockets[w]
}

func (f *Factory) loop() {
	defer close(f.done)
	for {
		ev, err := f.d.NextEvent()
		if err != nil {
			if err != io.EOF {
				f.log.WithError(err).Warn("X event loop stopped.")
			}
			return
		}
		s := f.socket(ev.Window)
		if s == nil {
			continue
		}
		switch ev.Type {
		case EventMessage:
			s.handleMessage(ev.Data)
		case EventReparent:
			if ev.Parent == s.window {
				s.plugAdded(ev.Child)
			} else {
				s.plugRemoved(ev.Child)
			}
		case EventDestroy:
			if ev.Child != s.window {
				s.plugRemoved(ev.Child)
			}
		}
	}
}

// Socket is a container window a wrapper embeds its plug into.
type Socket struct {
	transport.Receiver

	f      *Factory
	id     int
	window xproto.Window

	mu       sync.Mutex
	plug     xproto.Window
	embedded bool
	backlog  []plugmsg.Message
	closed   bool
}

// ID implements transport.Socket. It is the container window id.
func (s *Socket) ID() uint32 { return uint32(s.window) }

// Prepare implements transport.Socket.
func (s *Socket) Prepare(cmd *exec.Cmd) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, transport.EnvTransport+"="+transport.TypeX11)
	return nil
}

// Started implements transport.Socket.
func (s *Socket) Started() error { return nil }

// Send implements transport.Channel. Geometry is applied to the container
// before being forwarded. Messages sent before the plug window is known are
// delivered once it is.
func (s *Socket) Send(m plugmsg.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	if m.Kind == plugmsg.KindSetGeometry {
		if err := s.f.d.Configure(s.window, m.Rect); err != nil {
			s.f.log.WithError(err).Warnf("Failed to move container of plugin %d.", s.id)
		}
	}
	if s.plug == 0 {
		s.backlog = append(s.backlog, m)
		return nil
	}
	return send(s.f.d, s.plug, m)
}

// setPlug must be called with mu held.
func (s *Socket) setPlug(w xproto.Window) {
	s.plug = w
	for _, m := range s.backlog {
		if err := send(s.f.d, w, m); err != nil {
			s.f.log.WithError(err).Warnf("Failed to deliver %s to plugin %d.", m.Kind, s.id)
		}
	}
	s.backlog = nil
}

func (s *Socket) plugAdded(w xproto.Window) {
	s.mu.Lock()
	if s.closed || s.embedded {
		s.mu.Unlock()
		return
	}
	s.embedded = true
	if s.plug != w {
		s.setPlug(w)
	}
	s.mu.Unlock()
	s.Dispatch(plugmsg.Trigger(plugmsg.KindEmbedded))
}

func (s *Socket) plugRemoved(w xproto.Window) {
	s.mu.Lock()
	if !s.embedded || s.plug != w {
		s.mu.Unlock()
		return
	}
	s.embedded = false
	s.plug = 0
	s.mu.Unlock()
	s.Dispatch(plugmsg.Trigger(plugmsg.KindProviderDestroyed))
}

func (s *Socket) handleMessage(data [5]uint32) {
	m, err := receive(s.f.d, s.window, data)
	if err == plugmsg.ErrUnknownKind {
		s.f.log.Warnf("Plugin %d sent unknown message %s.", s.id, m.Kind)
		return
	}
	if err != nil {
		s.f.log.WithError(err).Warnf("Failed to read %s from plugin %d.", m.Kind, s.id)
		return
	}
	if m.Kind == plugmsg.KindSetPlugID {
		s.mu.Lock()
		if s.plug == 0 {
			s.setPlug(xproto.Window(m.Value))
		}
		s.mu.Unlock()
		return
	}
	s.Dispatch(m)
}

// Close implements transport.Channel. It destroys the container window.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.f.mu.Lock()
	delete(s.f.sockets, s.window)
	s.f.mu.Unlock()
	return s.f.d.DestroyWindow(s.window)
}
