// Package x11 implements the X11 embedding transport. The panel creates a
// container window per plugin and passes its id to the wrapper, which
// reparents its own window into it. Control messages travel as format-32
// client messages, with string payloads stored in a window property first.
package x11

import (
	"io"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
)

// MessageAtom is the type of every client message this transport sends.
const MessageAtom = "XFCE4_XFCE_PANEL_PLUGIN"

// EventType distinguishes the X events the transport cares about.
type EventType int

// Event types.
const (
	EventMessage EventType = iota + 1
	EventReparent
	EventDestroy
)

// Event is a decoded X event. Window is the window the event was reported
// on, Child the window it is about.
type Event struct {
	Type   EventType
	Window xproto.Window
	Child  xproto.Window
	Parent xproto.Window
	Data   [5]uint32
}

// Display is the slice of an X connection the transport needs.
type Display interface {
	Root() xproto.Window
	CreateWindow(parent xproto.Window) (xproto.Window, error)
	DestroyWindow(w xproto.Window) error
	// Watch selects structure events on a window owned by another client.
	Watch(w xproto.Window) error
	Reparent(w, parent xproto.Window) error
	Map(w xproto.Window) error
	Configure(w xproto.Window, r plugmsg.Rect) error
	SetText(w xproto.Window, prop, value string) error
	Text(w xproto.Window, prop string) (string, error)
	Send(w xproto.Window, data [5]uint32) error
	// NextEvent blocks for the next relevant event. It returns io.EOF once
	// the connection is closed.
	NextEvent() (Event, error)
	Close() error
}

// XDisplay implements Display over an xgb connection.
type XDisplay struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	log    *logging.Logger

	msgAtom  xproto.Atom
	utf8Atom xproto.Atom

	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// Open connects to the named X display, or $DISPLAY when name is empty.
func Open(name string, log *logging.Logger) (*XDisplay, error) {
	if log == nil {
		log = logging.MustGetLogger("x11")
	}
	conn, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, errors.Wrap(err, "connect X11")
	}
	d := &XDisplay{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		log:    log,
		atoms:  make(map[string]xproto.Atom),
	}
	if d.msgAtom, err = d.atom(MessageAtom); err != nil {
		conn.Close()
		return nil, err
	}
	if d.utf8Atom, err = d.atom("UTF8_STRING"); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func (d *XDisplay) atom(name string) (xproto.Atom, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(d.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, errors.Wrapf(err, "intern atom %s", name)
	}
	d.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// Root implements Display.
func (d *XDisplay) Root() xproto.Window { return d.screen.Root }

// CreateWindow implements Display. The window starts unmapped at 1x1.
func (d *XDisplay) CreateWindow(parent xproto.Window) (xproto.Window, error) {
	w, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return 0, errors.Wrap(err, "new window id")
	}
	err = xproto.CreateWindowChecked(
		d.conn,
		d.screen.RootDepth,
		w,
		parent,
		0, 0, 1, 1,
		0,
		xproto.WindowClassInputOutput,
		d.screen.RootVisual,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskStructureNotify | xproto.EventMaskSubstructureNotify},
	).Check()
	if err != nil {
		return 0, errors.Wrap(err, "create window")
	}
	return w, nil
}

// DestroyWindow implements Display.
func (d *XDisplay) DestroyWindow(w xproto.Window) error {
	return xproto.DestroyWindowChecked(d.conn, w).Check()
}

// Watch implements Display.
func (d *XDisplay) Watch(w xproto.Window) error {
	return xproto.ChangeWindowAttributesChecked(d.conn, w, xproto.CwEventMask,
		[]uint32{xproto.EventMaskStructureNotify}).Check()
}

// Reparent implements Display.
func (d *XDisplay) Reparent(w, parent xproto.Window) error {
	if err := xproto.ReparentWindowChecked(d.conn, w, parent, 0, 0).Check(); err != nil {
		return err
	}
	return xproto.ChangeSaveSetChecked(d.conn, xproto.SetModeInsert, w).Check()
}

// Map implements Display.
func (d *XDisplay) Map(w xproto.Window) error {
	return xproto.MapWindowChecked(d.conn, w).Check()
}

// Configure implements Display.
func (d *XDisplay) Configure(w xproto.Window, r plugmsg.Rect) error {
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY | xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	return xproto.ConfigureWindowChecked(d.conn, w, mask,
		[]uint32{uint32(r.X), uint32(r.Y), uint32(r.Width), uint32(r.Height)}).Check()
}

// SetText implements Display.
func (d *XDisplay) SetText(w xproto.Window, prop, value string) error {
	a, err := d.atom(prop)
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(d.conn, xproto.PropModeReplace, w, a, d.utf8Atom,
		8, uint32(len(value)), []byte(value)).Check()
}

// Text implements Display.
func (d *XDisplay) Text(w xproto.Window, prop string) (string, error) {
	a, err := d.atom(prop)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(d.conn, false, w, a, xproto.GetPropertyTypeAny, 0,
		plugmsg.MaxFrameSize/4).Reply()
	if err != nil {
		return "", err
	}
	return string(reply.Value), nil
}

// Send implements Display.
func (d *XDisplay) Send(w xproto.Window, data [5]uint32) error {
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: w,
		Type:   d.msgAtom,
		Data:   xproto.ClientMessageDataUnionData32New(data[:]),
	}
	return xproto.SendEventChecked(d.conn, false, w, xproto.EventMaskNoEvent, string(ev.Bytes())).Check()
}

// NextEvent implements Display.
func (d *XDisplay) NextEvent() (Event, error) {
	for {
		ev, xerr := d.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return Event{}, io.EOF
		}
		if xerr != nil {
			d.log.Debugf("X error: %s", xerr)
			continue
		}
		switch e := ev.(type) {
		case xproto.ClientMessageEvent:
			if e.Type != d.msgAtom || e.Format != 32 || len(e.Data.Data32) < 5 {
				continue
			}
			out := Event{Type: EventMessage, Window: e.Window, Child: e.Window}
			copy(out.Data[:], e.Data.Data32)
			return out, nil
		case xproto.ReparentNotifyEvent:
			return Event{Type: EventReparent, Window: e.Event, Child: e.Window, Parent: e.Parent}, nil
		case xproto.DestroyNotifyEvent:
			return Event{Type: EventDestroy, Window: e.Event, Child: e.Window}, nil
		}
	}
}

// Close implements Display.
func (d *XDisplay) Close() error {
	d.conn.Close()
	return nil
}
