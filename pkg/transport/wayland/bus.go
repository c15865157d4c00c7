// Package wayland implements the embedding transport used when the panel
// runs on Wayland. There is no cross-client window embedding there, so the
// wrapper surface is placed by the compositor and control messages travel as
// D-Bus signals on a per-plugin object path of the session bus.
package wayland

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/provider"
)

const (
	// Interface is the D-Bus interface both ends emit signals on.
	Interface = "org.xfce.Panel.Wrapper"

	// PanelName is the well-known bus name of the panel.
	PanelName = "org.xfce.Panel"

	pathPrefix = "/org/xfce/Panel/Wrapper/"
)

// Signal members.
const (
	memberSet               = "Set"
	memberEmbedded          = "Embedded"
	memberSetRequisition    = "SetRequisition"
	memberExpandChanged     = "ExpandChanged"
	memberProviderSignal    = "ProviderSignal"
	memberProviderDestroyed = "ProviderDestroyed"
)

// Bus is the part of a D-Bus connection the transport needs. *dbus.Conn
// implements it.
type Bus interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// Path returns the object path of the plugin with the given id.
func Path(uniqueID int) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s%d", pathPrefix, uniqueID))
}

// SetEntry is one element of a Set signal.
type SetEntry struct {
	Kind  uint32
	Value dbus.Variant
}

// Requisition is the body of a SetRequisition signal.
type Requisition struct {
	Width, Height int32
}

func toEntry(m plugmsg.Message) SetEntry {
	var v interface{}
	switch m.Kind.Payload() {
	case plugmsg.PayloadBool:
		v = m.Value != 0
	case plugmsg.PayloadString:
		v = m.Text
	case plugmsg.PayloadRect:
		v = []int32{m.Rect.X, m.Rect.Y, m.Rect.Width, m.Rect.Height}
	case plugmsg.PayloadSize:
		v = []int32{m.Rect.Width, m.Rect.Height}
	default:
		v = m.Value
	}
	return SetEntry{Kind: uint32(m.Kind), Value: dbus.MakeVariant(v)}
}

func fromEntry(e SetEntry) (plugmsg.Message, error) {
	m := plugmsg.Message{Kind: plugmsg.Kind(e.Kind)}
	if e.Kind > 0xff || !m.Kind.Known() {
		return m, plugmsg.ErrUnknownKind
	}
	switch v := e.Value.Value().(type) {
	case int32:
		m.Value = v
	case bool:
		if v {
			m.Value = 1
		}
	case string:
		m.Text = v
	case []int32:
		switch {
		case m.Kind.Payload() == plugmsg.PayloadRect && len(v) == 4:
			m.Rect = plugmsg.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
		case m.Kind.Payload() == plugmsg.PayloadSize && len(v) == 2:
			m.Rect = plugmsg.Rect{Width: v[0], Height: v[1]}
		default:
			return m, fmt.Errorf("%s: bad rectangle of %d values", m.Kind, len(v))
		}
	default:
		return m, fmt.Errorf("%s: unexpected value %s", m.Kind, e.Value.Signature())
	}
	return m, nil
}

// wrapperSignal returns the member and body a wrapper emits for m. It
// reports false for messages that have no signal.
func wrapperSignal(m plugmsg.Message) (string, []interface{}, bool) {
	switch m.Kind {
	case plugmsg.KindEmbedded:
		return memberEmbedded, nil, true
	case plugmsg.KindSetRequisition:
		return memberSetRequisition, []interface{}{Requisition{m.Rect.Width, m.Rect.Height}}, true
	case plugmsg.KindExpandChanged:
		return memberExpandChanged, []interface{}{m.Value != 0}, true
	case plugmsg.KindProviderDestroyed:
		return memberProviderDestroyed, nil, true
	}
	if sig, ok := plugmsg.ToSignal(m); ok {
		return memberProviderSignal, []interface{}{uint32(sig)}, true
	}
	return "", nil, false
}

// fromWrapperSignal is the inverse of wrapperSignal.
func fromWrapperSignal(member string, body []interface{}) (plugmsg.Message, error) {
	switch member {
	case memberEmbedded:
		return plugmsg.Trigger(plugmsg.KindEmbedded), nil
	case memberProviderDestroyed:
		return plugmsg.Trigger(plugmsg.KindProviderDestroyed), nil
	case memberSetRequisition:
		var r Requisition
		if err := dbus.Store(body, &r); err != nil {
			return plugmsg.Message{}, err
		}
		return plugmsg.Requisition(int(r.Width), int(r.Height)), nil
	case memberExpandChanged:
		var expand bool
		if err := dbus.Store(body, &expand); err != nil {
			return plugmsg.Message{}, err
		}
		return plugmsg.Bool(plugmsg.KindExpandChanged, expand), nil
	case memberProviderSignal:
		var sig uint32
		if err := dbus.Store(body, &sig); err != nil {
			return plugmsg.Message{}, err
		}
		return plugmsg.FromSignal(provider.Signal(sig)), nil
	}
	return plugmsg.Message{}, plugmsg.ErrUnknownKind
}
