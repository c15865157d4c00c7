package transport

import (
	"os/exec"
	"sync"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
)

// MockChannel is an in-memory Channel. Messages sent on one end of a pair are
// delivered asynchronously, in order, to the other.
type MockChannel struct {
	Receiver

	mu      sync.Mutex
	peer    *MockChannel
	sent    []plugmsg.Message
	sendErr error
	closed  bool

	in   chan plugmsg.Message
	done chan struct{}
}

func newMockChannel() *MockChannel {
	c := &MockChannel{
		in:   make(chan plugmsg.Message, 1024),
		done: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case m := <-c.in:
				c.Dispatch(m)
			case <-c.done:
				return
			}
		}
	}()
	return c
}

// NewMockChannelPair constructs a pair of connected MockChannels.
func NewMockChannelPair() (*MockChannel, *MockChannel) {
	a, b := newMockChannel(), newMockChannel()
	a.peer, b.peer = b, a
	return a, b
}

// SetSendErr makes subsequent sends fail with err.
func (c *MockChannel) SetSendErr(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Send implements Channel.
func (c *MockChannel) Send(m plugmsg.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, m)
	if c.peer != nil {
		select {
		case c.peer.in <- m:
		case <-c.peer.done:
		}
	}
	return nil
}

// Sent returns every message sent so far.
func (c *MockChannel) Sent() []plugmsg.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]plugmsg.Message(nil), c.sent...)
}

// Close implements Channel.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	close(c.done)
	return nil
}

// MockSocket is a Socket backed by a MockChannel.
type MockSocket struct {
	*MockChannel
	id uint32

	mu       sync.Mutex
	prepared *exec.Cmd
	started  bool
}

// ID implements Socket.
func (s *MockSocket) ID() uint32 { return s.id }

// Prepare implements Socket.
func (s *MockSocket) Prepare(cmd *exec.Cmd) error {
	s.mu.Lock()
	s.prepared = cmd
	s.mu.Unlock()
	return nil
}

// Started implements Socket.
func (s *MockSocket) Started() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// IsStarted reports whether Started was called.
func (s *MockSocket) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// MockFactory implements Factory over MockChannel pairs. The wrapper end of
// every socket is available through Peer.
type MockFactory struct {
	mu      sync.Mutex
	sockets map[int]*MockSocket
	peers   map[int]*MockChannel
	err     error
}

// NewMockFactory constructs a MockFactory.
func NewMockFactory() *MockFactory {
	return &MockFactory{
		sockets: make(map[int]*MockSocket),
		peers:   make(map[int]*MockChannel),
	}
}

// SetErr makes subsequent NewSocket calls fail with err.
func (f *MockFactory) SetErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Type implements Factory.
func (f *MockFactory) Type() string { return "mock" }

// NewSocket implements Factory.
func (f *MockFactory) NewSocket(uniqueID int) (Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	panelEnd, wrapperEnd := NewMockChannelPair()
	s := &MockSocket{MockChannel: panelEnd, id: uint32(uniqueID)}
	f.sockets[uniqueID] = s
	f.peers[uniqueID] = wrapperEnd
	return s, nil
}

// Socket returns the panel end created for uniqueID.
func (f *MockFactory) Socket(uniqueID int) *MockSocket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sockets[uniqueID]
}

// Peer returns the wrapper end of the socket created for uniqueID.
func (f *MockFactory) Peer(uniqueID int) *MockChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[uniqueID]
}

// Close implements Factory.
func (f *MockFactory) Close() error { return nil }

// MockPlug is a Plug backed by a MockChannel.
type MockPlug struct {
	*MockChannel

	once     sync.Once
	gone     chan struct{}
	embedErr error
}

// NewMockPlug constructs a MockPlug and the panel end it talks to.
func NewMockPlug() (*MockPlug, *MockChannel) {
	wrapperEnd, panelEnd := NewMockChannelPair()
	return &MockPlug{MockChannel: wrapperEnd, gone: make(chan struct{})}, panelEnd
}

// SetEmbedErr makes Embed fail with err.
func (p *MockPlug) SetEmbedErr(err error) { p.embedErr = err }

// Embed implements Plug.
func (p *MockPlug) Embed() error {
	if p.embedErr != nil {
		return p.embedErr
	}
	return p.Send(plugmsg.Trigger(plugmsg.KindEmbedded))
}

// Done implements Plug.
func (p *MockPlug) Done() <-chan struct{} { return p.gone }

// Disconnect simulates the panel going away.
func (p *MockPlug) Disconnect() { p.once.Do(func() { close(p.gone) }) }
