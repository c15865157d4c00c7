package wayland

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

const nameOwnerChanged = "org.freedesktop.DBus.NameOwnerChanged"

// Plug is the wrapper end of a plugin's object path.
type Plug struct {
	transport.Receiver

	bus  Bus
	id   int
	path dbus.ObjectPath
	log  *logging.Logger

	signals chan *dbus.Signal
	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

// NewPlug subscribes to the panel's signals for uniqueID.
func NewPlug(bus Bus, uniqueID int, log *logging.Logger) (*Plug, error) {
	if log == nil {
		log = logging.MustGetLogger("wayland")
	}
	p := &Plug{
		bus:     bus,
		id:      uniqueID,
		path:    Path(uniqueID),
		log:     log,
		signals: make(chan *dbus.Signal, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if err := bus.AddMatchSignal(
		dbus.WithMatchObjectPath(p.path),
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchMember(memberSet),
	); err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to panel messages")
	}
	if err := bus.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, PanelName),
	); err != nil {
		log.WithError(err).Warn("Will not notice the panel going away.")
	}
	bus.Signal(p.signals)
	go p.loop()
	return p, nil
}

func (p *Plug) loop() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		case sig, ok := <-p.signals:
			if !ok {
				p.finish()
				return
			}
			p.handle(sig)
		}
	}
}

func (p *Plug) handle(sig *dbus.Signal) {
	if sig.Name == nameOwnerChanged {
		var name, oldOwner, newOwner string
		if err := dbus.Store(sig.Body, &name, &oldOwner, &newOwner); err != nil {
			return
		}
		if name == PanelName && newOwner == "" {
			p.log.Info("Panel left the bus.")
			p.finish()
		}
		return
	}
	if sig.Path != p.path || sig.Name != Interface+"."+memberSet {
		return
	}
	var entries []SetEntry
	if err := dbus.Store(sig.Body, &entries); err != nil {
		p.log.WithError(err).Warn("Bad Set signal from panel.")
		return
	}
	for _, e := range entries {
		m, err := fromEntry(e)
		if err != nil {
			p.log.WithError(err).Warnf("Dropping panel message %s.", m.Kind)
			continue
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

func (p *Plug) finish() { p.once.Do(func() { close(p.done) }) }

// Send implements transport.Channel. Messages with no signal equivalent are
// dropped.
func (p *Plug) Send(m plugmsg.Message) error {
	select {
	case <-p.done:
		return transport.ErrClosed
	default:
	}
	member, body, ok := wrapperSignal(m)
	if !ok {
		p.log.Debugf("No signal for %s.", m.Kind)
		return nil
	}
	return p.bus.Emit(p.path, Interface+"."+member, body...)
}

// Close implements transport.Channel.
func (p *Plug) Close() error {
	p.finish()
	<-p.stopped
	p.bus.RemoveSignal(p.signals)
	return p.bus.RemoveMatchSignal(
		dbus.WithMatchObjectPath(p.path),
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchMember(memberSet),
	)
}

// Connect opens the session bus for a wrapper or panel.
func Connect() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the session bus")
	}
	return conn, nil
}
