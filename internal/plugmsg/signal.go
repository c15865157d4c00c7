package plugmsg

import "github.com/skycoin/xfce4-panel/pkg/provider"

// FromSignal returns the message a wrapper sends for a provider signal.
func FromSignal(sig provider.Signal) Message {
	switch sig {
	case provider.SignalExpandPlugin:
		return Bool(KindExpandChanged, true)
	case provider.SignalCollapsePlugin:
		return Bool(KindExpandChanged, false)
	case provider.SignalMovePlugin:
		return Trigger(KindMoveItem)
	case provider.SignalAddNewItems:
		return Trigger(KindAddNewItems)
	case provider.SignalPanelPreferences:
		return Trigger(KindPanelPreferences)
	default:
		return Int(KindProviderSignal, int(sig))
	}
}

// ToSignal is the inverse of FromSignal. It reports false for messages that
// do not carry a provider signal.
func ToSignal(m Message) (provider.Signal, bool) {
	switch m.Kind {
	case KindExpandChanged:
		if m.Bool() {
			return provider.SignalExpandPlugin, true
		}
		return provider.SignalCollapsePlugin, true
	case KindMoveItem:
		return provider.SignalMovePlugin, true
	case KindAddNewItems:
		return provider.SignalAddNewItems, true
	case KindPanelPreferences:
		return provider.SignalPanelPreferences, true
	case KindProviderSignal:
		sig := provider.Signal(m.Value)
		return sig, sig.Valid()
	default:
		return 0, false
	}
}
