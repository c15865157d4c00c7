// Package plugmsg is the control-message vocabulary spoken between the
// panel and its wrapper processes, independent of the channel carrying it.
package plugmsg

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when decoding a message of a kind this build
// does not know. Receivers log it and carry on.
var ErrUnknownKind = errors.New("unknown message kind")

// Kind identifies a control message.
type Kind uint8

// Panel to wrapper.
const (
	KindSetSize Kind = iota + 1
	KindSetOrientation
	KindSetScreenPosition
	KindSetSensitive
	KindSetBackgroundAlpha
	KindSetActivePanel
	KindSetBackgroundColor
	KindSetBackgroundImage
	KindUnsetBackground
	KindSetGeometry
	KindSetMonitor
	KindSave
	KindShowConfigure
	KindShowAbout
	KindRemove
	KindQuit
)

// Wrapper to panel.
const (
	KindSetPlugID Kind = iota + 32
	KindEmbedded
	KindSetRequisition
	KindExpandChanged
	KindMoveItem
	KindAddNewItems
	KindPanelPreferences
	KindProviderSignal
	KindProviderDestroyed
)

// PayloadType tells which field of a Message carries its value.
type PayloadType uint8

// Payload types.
const (
	PayloadNone PayloadType = iota
	PayloadInt
	PayloadBool
	PayloadString
	PayloadRect
	PayloadSize
)

type kindInfo struct {
	name    string
	payload PayloadType
	// state kinds restate absolute values and are coalesced.
	state bool
}

var kinds = map[Kind]kindInfo{
	KindSetSize:            {"SetSize", PayloadInt, true},
	KindSetOrientation:     {"SetOrientation", PayloadInt, true},
	KindSetScreenPosition:  {"SetScreenPosition", PayloadInt, true},
	KindSetSensitive:       {"SetSensitive", PayloadBool, true},
	KindSetBackgroundAlpha: {"SetBackgroundAlpha", PayloadInt, true},
	KindSetActivePanel:     {"SetActivePanel", PayloadBool, true},
	KindSetBackgroundColor: {"SetBackgroundColor", PayloadString, true},
	KindSetBackgroundImage: {"SetBackgroundImage", PayloadString, true},
	KindUnsetBackground:    {"UnsetBackground", PayloadNone, false},
	KindSetGeometry:        {"SetGeometry", PayloadRect, true},
	KindSetMonitor:         {"SetMonitor", PayloadInt, true},
	KindSave:               {"Save", PayloadNone, false},
	KindShowConfigure:      {"ShowConfigure", PayloadNone, false},
	KindShowAbout:          {"ShowAbout", PayloadNone, false},
	KindRemove:             {"Remove", PayloadNone, false},
	KindQuit:               {"Quit", PayloadNone, false},

	KindSetPlugID:         {"SetPlugID", PayloadInt, false},
	KindEmbedded:          {"Embedded", PayloadNone, false},
	KindSetRequisition:    {"SetRequisition", PayloadSize, true},
	KindExpandChanged:     {"ExpandChanged", PayloadBool, true},
	KindMoveItem:          {"MoveItem", PayloadNone, false},
	KindAddNewItems:       {"AddNewItems", PayloadNone, false},
	KindPanelPreferences:  {"PanelPreferences", PayloadNone, false},
	KindProviderSignal:    {"ProviderSignal", PayloadInt, false},
	KindProviderDestroyed: {"ProviderDestroyed", PayloadNone, false},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(k))
}

// Known reports whether k belongs to the vocabulary.
func (k Kind) Known() bool {
	_, ok := kinds[k]
	return ok
}

// Payload returns the payload type carried by messages of kind k.
func (k Kind) Payload() PayloadType { return kinds[k].payload }

// IsState reports whether k restates an absolute value, as opposed to a
// one-shot trigger.
func (k Kind) IsState() bool { return kinds[k].state }

// Rect is a position and size in panel coordinates.
type Rect struct {
	X, Y, Width, Height int32
}

// Message is a single control message. Which field is meaningful depends
// on Kind.Payload.
type Message struct {
	Kind  Kind
	Value int32
	Text  string
	Rect  Rect
}

// Trigger returns a payload-less message.
func Trigger(k Kind) Message { return Message{Kind: k} }

// Int returns a message carrying an integer.
func Int(k Kind, v int) Message { return Message{Kind: k, Value: int32(v)} }

// Bool returns a message carrying a boolean.
func Bool(k Kind, v bool) Message {
	m := Message{Kind: k}
	if v {
		m.Value = 1
	}
	return m
}

// String returns a message carrying a string.
func String(k Kind, s string) Message { return Message{Kind: k, Text: s} }

// Geometry returns a SetGeometry message.
func Geometry(x, y, width, height int) Message {
	return Message{Kind: KindSetGeometry, Rect: Rect{int32(x), int32(y), int32(width), int32(height)}}
}

// Requisition returns a SetRequisition message.
func Requisition(width, height int) Message {
	return Message{Kind: KindSetRequisition, Rect: Rect{Width: int32(width), Height: int32(height)}}
}

// Bool returns the boolean payload.
func (m Message) Bool() bool { return m.Value != 0 }

// Int returns the integer payload.
func (m Message) Int() int { return int(m.Value) }

// Size returns the (width, height) payload.
func (m Message) Size() (int, int) { return int(m.Rect.Width), int(m.Rect.Height) }

func (m Message) String() string {
	switch m.Kind.Payload() {
	case PayloadInt:
		return fmt.Sprintf("%s(%d)", m.Kind, m.Value)
	case PayloadBool:
		return fmt.Sprintf("%s(%t)", m.Kind, m.Bool())
	case PayloadString:
		return fmt.Sprintf("%s(%q)", m.Kind, m.Text)
	case PayloadRect:
		return fmt.Sprintf("%s(%d,%d %dx%d)", m.Kind, m.Rect.X, m.Rect.Y, m.Rect.Width, m.Rect.Height)
	case PayloadSize:
		return fmt.Sprintf("%s(%dx%d)", m.Kind, m.Rect.Width, m.Rect.Height)
	default:
		return m.Kind.String()
	}
}
