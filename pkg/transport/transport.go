// Package transport defines how a plugin's window is embedded into the panel
// and how control messages travel between the panel and a wrapper process.
package transport

import (
	"errors"
	"os/exec"
	"sync"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
)

// Transport types.
const (
	TypeX11     = "x11"
	TypeWayland = "wayland"
	TypePipe    = "pipe"
)

// Environment passed from the panel to its wrappers.
const (
	EnvTransport = "XFCE_PANEL_TRANSPORT"
	EnvSession   = "XFCE_PANEL_SESSION"
)

// ErrClosed is returned when sending on a closed channel.
var ErrClosed = errors.New("channel closed")

// Channel carries control messages for one plugin. Messages are delivered to
// the OnReceive callback one at a time, in the order they were received.
type Channel interface {
	Send(m plugmsg.Message) error
	OnReceive(fn func(m plugmsg.Message))
	Close() error
}

// BatchSender is implemented by channels that deliver several messages in
// one transfer.
type BatchSender interface {
	SendBatch(msgs []plugmsg.Message) error
}

// Socket is the panel-side half of one plugin's embedding.
type Socket interface {
	Channel

	// ID is handed to the wrapper as --socket-id.
	ID() uint32

	// Prepare is called with the wrapper command before it is started.
	Prepare(cmd *exec.Cmd) error

	// Started is called once the wrapper process is running.
	Started() error
}

// Factory creates sockets of one transport type. It is the
// EmbeddingTransport strategy selected once at panel startup.
type Factory interface {
	Type() string
	NewSocket(uniqueID int) (Socket, error)
	Close() error
}

// Plug is the wrapper-side half of an embedding.
type Plug interface {
	Channel

	// Embed realizes the plug and announces readiness to the panel.
	Embed() error

	// Done is closed when the panel end of the embedding goes away.
	Done() <-chan struct{}
}

// Detect picks a transport type from the session environment.
func Detect(getenv func(string) string) string {
	if t := getenv(EnvTransport); t != "" {
		return t
	}
	if getenv("WAYLAND_DISPLAY") != "" {
		return TypeWayland
	}
	if getenv("DISPLAY") != "" {
		return TypeX11
	}
	return TypePipe
}

// Receiver implements the OnReceive half of Channel. Messages arriving
// before a callback is installed are held and replayed to it.
type Receiver struct {
	mu      sync.Mutex
	fn      func(plugmsg.Message)
	pending []plugmsg.Message
}

// OnReceive installs fn as the message callback.
func (r *Receiver) OnReceive(fn func(plugmsg.Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fn = fn
	for _, m := range r.pending {
		fn(m)
	}
	r.pending = nil
}

// Dispatch hands m to the installed callback.
func (r *Receiver) Dispatch(m plugmsg.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fn == nil {
		r.pending = append(r.pending, m)
		return
	}
	r.fn(m)
}
