package x11

import (
	"strings"

	"github.com/jezek/xgb/xproto"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
)

const textPropertyPrefix = "_XFCE_PANEL_PLUGIN_"

// TextProperty returns the window property a string message of kind k is
// stored in before its client message is sent.
func TextProperty(k plugmsg.Kind) string {
	switch k {
	case plugmsg.KindSetBackgroundColor:
		return textPropertyPrefix + "BACKGROUND_COLOR"
	case plugmsg.KindSetBackgroundImage:
		return textPropertyPrefix + "BACKGROUND_IMAGE"
	default:
		return textPropertyPrefix + strings.ToUpper(k.String())
	}
}

// encode packs m into client message data. Word 0 is the kind, the rest is
// the payload.
func encode(m plugmsg.Message) [5]uint32 {
	data := [5]uint32{uint32(m.Kind)}
	switch m.Kind.Payload() {
	case plugmsg.PayloadInt, plugmsg.PayloadBool:
		data[1] = uint32(m.Value)
	case plugmsg.PayloadRect:
		data[1] = uint32(m.Rect.X)
		data[2] = uint32(m.Rect.Y)
		data[3] = uint32(m.Rect.Width)
		data[4] = uint32(m.Rect.Height)
	case plugmsg.PayloadSize:
		data[1] = uint32(m.Rect.Width)
		data[2] = uint32(m.Rect.Height)
	case plugmsg.PayloadString:
		data[1] = uint32(len(m.Text))
	}
	return data
}

// send stores the text payload, if any, on w and then sends the message.
func send(d Display, w xproto.Window, m plugmsg.Message) error {
	if m.Kind.Payload() == plugmsg.PayloadString {
		if err := d.SetText(w, TextProperty(m.Kind), m.Text); err != nil {
			return err
		}
	}
	return d.Send(w, encode(m))
}

// receive decodes client message data sent to w.
func receive(d Display, w xproto.Window, data [5]uint32) (plugmsg.Message, error) {
	m := plugmsg.Message{Kind: plugmsg.Kind(data[0])}
	if data[0] > 0xff || !m.Kind.Known() {
		return m, plugmsg.ErrUnknownKind
	}
	switch m.Kind.Payload() {
	case plugmsg.PayloadInt, plugmsg.PayloadBool:
		m.Value = int32(data[1])
	case plugmsg.PayloadRect:
		m.Rect = plugmsg.Rect{
			X:      int32(data[1]),
			Y:      int32(data[2]),
			Width:  int32(data[3]),
			Height: int32(data[4]),
		}
	case plugmsg.PayloadSize:
		m.Rect = plugmsg.Rect{Width: int32(data[1]), Height: int32(data[2])}
	case plugmsg.PayloadString:
		text, err := d.Text(w, TextProperty(m.Kind))
		if err != nil {
			return m, err
		}
		m.Text = text
	}
	return m, nil
}
