// Package pipe implements the headless embedding transport. The wrapper
// inherits a pair of pipes as fds 3 and 4 and multiplexes a control stream
// and a log stream over them with yamux. There is no window to embed, so a
// plug is embedded as soon as it says so.
package pipe

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

// ErrBadHello is returned when a wrapper presents the wrong session token.
var ErrBadHello = errors.New("wrapper presented a bad session token")

// LogSink receives log lines written by a wrapper.
type LogSink func(uniqueID int, line string)

func muxConfig(w io.Writer) *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.EnableKeepAlive = false
	cfg.LogOutput = w
	return cfg
}

// Factory creates pipe sockets for one panel session.
type Factory struct {
	token string
	sink  LogSink
	log   *logging.Logger

	mu      sync.Mutex
	sockets map[int]*Socket
}

// NewFactory constructs a Factory. Wrappers must present token to connect.
func NewFactory(token string, sink LogSink, log *logging.Logger) *Factory {
	if log == nil {
		log = logging.MustGetLogger("pipe")
	}
	return &Factory{
		token:   token,
		sink:    sink,
		log:     log,
		sockets: make(map[int]*Socket),
	}
}

// Type implements transport.Factory.
func (f *Factory) Type() string { return transport.TypePipe }

// NewSocket implements transport.Factory.
func (f *Factory) NewSocket(uniqueID int) (transport.Socket, error) {
	panelConn, wrapperConn, err := OpenConn()
	if err != nil {
		return nil, err
	}
	s := &Socket{
		f:     f,
		id:    uniqueID,
		panel: panelConn,
		child: wrapperConn,
		log:   f.log,
		done:  make(chan struct{}),
	}
	f.mu.Lock()
	f.sockets[uniqueID] = s
	f.mu.Unlock()
	return s, nil
}

// Close implements transport.Factory. It closes every socket still open.
func (f *Factory) Close() error {
	f.mu.Lock()
	sockets := make([]*Socket, 0, len(f.sockets))
	for _, s := range f.sockets {
		sockets = append(sockets, s)
	}
	f.mu.Unlock()

	for _, s := range sockets {
		if err := s.Close(); err != nil && err != transport.ErrClosed {
			f.log.WithError(err).Warnf("Failed to close socket %d.", s.id)
		}
	}
	return nil
}

func (f *Factory) forget(id int) {
	f.mu.Lock()
	delete(f.sockets, id)
	f.mu.Unlock()
}

// Socket is the panel end of one wrapper's pipes.
type Socket struct {
	transport.Receiver

	f     *Factory
	id    int
	panel *Conn
	child *Conn
	log   *logging.Logger

	mu      sync.Mutex
	session *yamux.Session
	ctrl    *plugmsg.Conn
	backlog []plugmsg.Message
	closed  bool
	done    chan struct{}
}

// ID implements transport.Socket.
func (s *Socket) ID() uint32 { return uint32(s.id) }

// Prepare hands the wrapper its pipe ends as fds 3 and 4.
func (s *Socket) Prepare(cmd *exec.Cmd) error {
	cmd.ExtraFiles = s.child.Files()
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env,
		transport.EnvTransport+"="+transport.TypePipe,
		transport.EnvSession+"="+s.f.token,
	)
	return nil
}

// Started closes the panel's copy of the wrapper ends and starts serving.
func (s *Socket) Started() error {
	if err := s.child.Close(); err != nil {
		s.log.WithError(err).Debug("Failed to close wrapper pipe ends.")
	}
	return s.serve()
}

func (s *Socket) serve() error {
	w := s.log.WithField("plugin", s.id).Writer()
	session, err := yamux.Server(s.panel, muxConfig(w))
	if err != nil {
		w.Close() // nolint: errcheck
		return errors.Wrap(err, "yamux")
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	go func() {
		defer w.Close() // nolint: errcheck
		s.acceptLoop(session)
	}()
	return nil
}

func (s *Socket) acceptLoop(session *yamux.Session) {
	defer s.Close() // nolint: errcheck

	stream, err := session.Accept()
	if err != nil {
		s.log.WithError(err).Debugf("Plugin %d never connected.", s.id)
		return
	}
	ctrl := plugmsg.NewConn(stream)
	hello, err := ctrl.ReadFrame()
	if err != nil || string(hello) != s.f.token {
		s.log.WithError(ErrBadHello).Warnf("Refusing plugin %d.", s.id)
		return
	}

	s.mu.Lock()
	s.ctrl = ctrl
	for _, m := range s.backlog {
		if err := ctrl.WriteMessage(m); err != nil {
			s.log.WithError(err).Warnf("Failed to deliver %s to plugin %d.", m.Kind, s.id)
		}
	}
	s.backlog = nil
	s.mu.Unlock()

	go func() {
		for {
			logs, err := session.Accept()
			if err != nil {
				return
			}
			go s.readLogs(logs)
		}
	}()

	for {
		m, err := ctrl.ReadMessage()
		if err == plugmsg.ErrUnknownKind {
			s.log.Warnf("Plugin %d sent unknown message %s.", s.id, m.Kind)
			continue
		}
		if err != nil {
			if err != io.EOF {
				s.log.WithError(err).Debugf("Plugin %d control stream ended.", s.id)
			}
			return
		}
		s.Dispatch(m)
	}
}

func (s *Socket) readLogs(r io.ReadCloser) {
	defer r.Close() // nolint: errcheck
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if s.f.sink != nil {
			s.f.sink(s.id, sc.Text())
		}
	}
}

// Send implements transport.Channel. Messages sent before the wrapper has
// connected are delivered once it does.
func (s *Socket) Send(m plugmsg.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return transport.ErrClosed
	}
	if s.ctrl == nil {
		s.backlog = append(s.backlog, m)
		return nil
	}
	return s.ctrl.WriteMessage(m)
}

// Done is closed once the socket is closed.
func (s *Socket) Done() <-chan struct{} { return s.done }

// Close implements transport.Channel.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	s.closed = true
	session := s.session
	s.mu.Unlock()

	close(s.done)
	s.f.forget(s.id)
	if session != nil {
		session.Close() // nolint: errcheck
	}
	return s.panel.Close()
}

// Plug is the wrapper end of the pipes.
type Plug struct {
	transport.Receiver

	session *yamux.Session
	ctrl    *plugmsg.Conn
	log     *logging.Logger
	logw    *io.PipeWriter

	once sync.Once
	done chan struct{}
}

// NewPlug connects to the panel over the inherited fds.
func NewPlug(token string, log *logging.Logger) (*Plug, error) {
	conn, err := NewConn(DefaultIn, DefaultOut)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open panel pipes")
	}
	return Dial(conn, token, log)
}

// Dial connects to the panel over conn and presents token.
func Dial(conn io.ReadWriteCloser, token string, log *logging.Logger) (*Plug, error) {
	if log == nil {
		log = logging.MustGetLogger("pipe")
	}
	w := log.WithField("transport", transport.TypePipe).Writer()
	session, err := yamux.Client(conn, muxConfig(w))
	if err != nil {
		w.Close() // nolint: errcheck
		return nil, errors.Wrap(err, "yamux")
	}
	stream, err := session.Open()
	if err != nil {
		session.Close() // nolint: errcheck
		w.Close()       // nolint: errcheck
		return nil, errors.Wrap(err, "failed to open control stream")
	}
	ctrl := plugmsg.NewConn(stream)
	if err := ctrl.WriteFrame([]byte(token)); err != nil {
		session.Close() // nolint: errcheck
		w.Close()       // nolint: errcheck
		return nil, errors.Wrap(err, "hello")
	}

	p := &Plug{
		session: session,
		ctrl:    ctrl,
		log:     log,
		logw:    w,
		done:    make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

func (p *Plug) readLoop() {
	defer p.once.Do(func() { close(p.done) })
	for {
		m, err := p.ctrl.ReadMessage()
		if err == plugmsg.ErrUnknownKind {
			p.log.Warnf("Panel sent unknown message %s.", m.Kind)
			continue
		}
		if err != nil {
			return
		}
		p.Dispatch(m)
	}
}

// Embed implements transport.Plug.
func (p *Plug) Embed() error {
	return p.Send(plugmsg.Trigger(plugmsg.KindEmbedded))
}

// Done implements transport.Plug.
func (p *Plug) Done() <-chan struct{} { return p.done }

// Send implements transport.Channel.
func (p *Plug) Send(m plugmsg.Message) error {
	select {
	case <-p.done:
		return transport.ErrClosed
	default:
	}
	return p.ctrl.WriteMessage(m)
}

// LogWriter opens a stream whose lines end up in the panel's plugin log.
func (p *Plug) LogWriter() (io.WriteCloser, error) {
	return p.session.Open()
}

// Close implements transport.Channel.
func (p *Plug) Close() error {
	p.once.Do(func() { close(p.done) })
	p.logw.Close() // nolint: errcheck
	return p.session.Close()
}
