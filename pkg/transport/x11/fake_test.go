package x11

import (
	"errors"
	"io"
	"sync"

	"github.com/jezek/xgb/xproto"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
)

var errBadWindow = errors.New("BadWindow")

type fakeWindow struct {
	owner    *fakeDisplay
	parent   xproto.Window
	mapped   bool
	geometry plugmsg.Rect
	props    map[string]string
	watchers map[*fakeDisplay]bool
}

// fakeServer is a minimal in-memory X server shared by fakeDisplays.
type fakeServer struct {
	mu      sync.Mutex
	next    xproto.Window
	windows map[xproto.Window]*fakeWindow
}

const fakeRoot = xproto.Window(1)

func newFakeServer() *fakeServer {
	return &fakeServer{
		next:    0x100,
		windows: map[xproto.Window]*fakeWindow{fakeRoot: {props: map[string]string{}, watchers: map[*fakeDisplay]bool{}}},
	}
}

func (s *fakeServer) connect() *fakeDisplay {
	return &fakeDisplay{s: s, events: make(chan Event, 256), closed: make(chan struct{})}
}

func (s *fakeServer) window(w xproto.Window) *fakeWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windows[w]
}

// deliver must be called with mu held. Structure events go to the owner and
// watchers of the window, substructure events to the owner of its parent.
func (s *fakeServer) deliver(about xproto.Window, parents []xproto.Window, ev Event) {
	if win, ok := s.windows[about]; ok {
		targets := map[*fakeDisplay]bool{win.owner: true}
		for d := range win.watchers {
			targets[d] = true
		}
		for d := range targets {
			if d != nil {
				e := ev
				e.Window = about
				d.push(e)
			}
		}
	}
	for _, p := range parents {
		if win, ok := s.windows[p]; ok && win.owner != nil {
			e := ev
			e.Window = p
			win.owner.push(e)
		}
	}
}

type fakeDisplay struct {
	s      *fakeServer
	events chan Event
	once   sync.Once
	closed chan struct{}
}

func (d *fakeDisplay) push(ev Event) {
	select {
	case d.events <- ev:
	case <-d.closed:
	}
}

func (d *fakeDisplay) Root() xproto.Window { return fakeRoot }

func (d *fakeDisplay) CreateWindow(parent xproto.Window) (xproto.Window, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if _, ok := d.s.windows[parent]; !ok {
		return 0, errBadWindow
	}
	d.s.next++
	w := d.s.next
	d.s.windows[w] = &fakeWindow{
		owner:    d,
		parent:   parent,
		props:    map[string]string{},
		watchers: map[*fakeDisplay]bool{},
	}
	return w, nil
}

func (d *fakeDisplay) DestroyWindow(w xproto.Window) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return errBadWindow
	}
	d.s.deliver(w, []xproto.Window{win.parent}, Event{Type: EventDestroy, Child: w})
	delete(d.s.windows, w)
	for cw, child := range d.s.windows {
		if child.parent == w {
			// children land back on the root, like a save-set
			child.parent = fakeRoot
			d.s.deliver(cw, nil, Event{Type: EventReparent, Child: cw, Parent: fakeRoot})
		}
	}
	return nil
}

func (d *fakeDisplay) Watch(w xproto.Window) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return errBadWindow
	}
	win.watchers[d] = true
	return nil
}

func (d *fakeDisplay) Reparent(w, parent xproto.Window) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return errBadWindow
	}
	if _, ok := d.s.windows[parent]; !ok {
		return errBadWindow
	}
	old := win.parent
	win.parent = parent
	d.s.deliver(w, []xproto.Window{old, parent}, Event{Type: EventReparent, Child: w, Parent: parent})
	return nil
}

func (d *fakeDisplay) Map(w xproto.Window) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return errBadWindow
	}
	win.mapped = true
	return nil
}

func (d *fakeDisplay) Configure(w xproto.Window, r plugmsg.Rect) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return errBadWindow
	}
	win.geometry = r
	return nil
}

func (d *fakeDisplay) SetText(w xproto.Window, prop, value string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return errBadWindow
	}
	win.props[prop] = value
	return nil
}

func (d *fakeDisplay) Text(w xproto.Window, prop string) (string, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return "", errBadWindow
	}
	return win.props[prop], nil
}

func (d *fakeDisplay) Send(w xproto.Window, data [5]uint32) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	win, ok := d.s.windows[w]
	if !ok {
		return errBadWindow
	}
	if win.owner != nil {
		win.owner.push(Event{Type: EventMessage, Window: w, Child: w, Data: data})
	}
	return nil
}

func (d *fakeDisplay) NextEvent() (Event, error) {
	select {
	case ev := <-d.events:
		return ev, nil
	case <-d.closed:
		return Event{}, io.EOF
	}
}

func (d *fakeDisplay) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}
