package x11

import (
	"sync"

	"github.com/jezek/xgb/xproto"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

// Plug is the wrapper's window, embedded into a panel container.
type Plug struct {
	transport.Receiver

	d      Display
	socket xproto.Window
	window xproto.Window
	log    *logging.Logger

	mu       sync.Mutex
	embedded bool

	once sync.Once
	done chan struct{}
}

// NewPlug creates the plug window for the container socketID. The Plug takes
// ownership of d.
func NewPlug(d Display, socketID uint32, log *logging.Logger) (*Plug, error) {
	if log == nil {
		log = logging.MustGetLogger("x11")
	}
	socket := xproto.Window(socketID)
	if err := d.Watch(socket); err != nil {
		return nil, err
	}
	w, err := d.CreateWindow(d.Root())
	if err != nil {
		return nil, err
	}
	p := &Plug{
		d:      d,
		socket: socket,
		window: w,
		log:    log,
		done:   make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

// Window returns the plug window id.
func (p *Plug) Window() xproto.Window { return p.window }

// Embed implements transport.Plug. The panel notices the reparent and
// reports the plug as embedded on its side.
func (p *Plug) Embed() error {
	if err := send(p.d, p.socket, plugmsg.Int(plugmsg.KindSetPlugID, int(p.window))); err != nil {
		return err
	}
	if err := p.d.Reparent(p.window, p.socket); err != nil {
		return err
	}
	p.mu.Lock()
	p.embedded = true
	p.mu.Unlock()
	return p.d.Map(p.window)
}

// Done implements transport.Plug.
func (p *Plug) Done() <-chan struct{} { return p.done }

func (p *Plug) finish() { p.once.Do(func() { close(p.done) }) }

func (p *Plug) loop() {
	defer p.finish()
	for {
		ev, err := p.d.NextEvent()
		if err != nil {
			return
		}
		switch ev.Type {
		case EventMessage:
			if ev.Window != p.window {
				continue
			}
			m, err := receive(p.d, p.window, ev.Data)
			if err != nil {
				p.log.WithError(err).Warnf("Dropping panel message %s.", m.Kind)
				continue
			}
			if m.Kind == plugmsg.KindSetGeometry {
				fill := plugmsg.Rect{Width: m.Rect.Width, Height: m.Rect.Height}
				if err := p.d.Configure(p.window, fill); err != nil {
					p.log.WithError(err).Debug("Failed to resize plug.")
				}
			}
			p.Dispatch(m)
		case EventReparent:
			p.mu.Lock()
			away := p.embedded && ev.Child == p.window && ev.Parent != p.socket
			p.mu.Unlock()
			if away {
				return
			}
		case EventDestroy:
			if ev.Child == p.socket {
				return
			}
		}
	}
}

// Send implements transport.Channel.
func (p *Plug) Send(m plugmsg.Message) error {
	select {
	case <-p.done:
		return transport.ErrClosed
	default:
	}
	return send(p.d, p.socket, m)
}

// Close implements transport.Channel.
func (p *Plug) Close() error {
	p.finish()
	p.d.DestroyWindow(p.window) // nolint: errcheck
	return p.d.Close()
}
