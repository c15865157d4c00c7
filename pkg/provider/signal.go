package provider

import "fmt"

// Signal is a request a plugin sends to the panel hosting it.
type Signal uint32

// Provider signals. The numbering is part of the wire format.
const (
	SignalMovePlugin Signal = iota
	SignalExpandPlugin
	SignalCollapsePlugin
	SignalWrapPlugin
	SignalUnwrapPlugin
	SignalLockPanel
	SignalUnlockPanel
	SignalRemovePlugin
	SignalAddNewItems
	SignalPanelPreferences
	SignalPanelQuit
	SignalPanelRestart
	SignalPanelAbout
	SignalShowConfigure
	SignalShowAbout
	SignalFocusPlugin
)

func (s Signal) String() string {
	switch s {
	case SignalMovePlugin:
		return "MovePlugin"
	case SignalExpandPlugin:
		return "ExpandPlugin"
	case SignalCollapsePlugin:
		return "CollapsePlugin"
	case SignalWrapPlugin:
		return "WrapPlugin"
	case SignalUnwrapPlugin:
		return "UnwrapPlugin"
	case SignalLockPanel:
		return "LockPanel"
	case SignalUnlockPanel:
		return "UnlockPanel"
	case SignalRemovePlugin:
		return "RemovePlugin"
	case SignalAddNewItems:
		return "AddNewItems"
	case SignalPanelPreferences:
		return "PanelPreferences"
	case SignalPanelQuit:
		return "PanelQuit"
	case SignalPanelRestart:
		return "PanelRestart"
	case SignalPanelAbout:
		return "PanelAbout"
	case SignalShowConfigure:
		return "ShowConfigure"
	case SignalShowAbout:
		return "ShowAbout"
	case SignalFocusPlugin:
		return "FocusPlugin"
	default:
		return fmt.Sprintf("Signal(%d)", uint32(s))
	}
}

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool { return s <= SignalFocusPlugin }

// ExitCode is the status a wrapper process exits with.
type ExitCode int

// Wrapper exit codes.
const (
	ExitSuccess ExitCode = iota
	ExitFailure
	ExitPreinitFailed
	ExitCheckFailed
	ExitNoProvider
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "success"
	case ExitFailure:
		return "failure"
	case ExitPreinitFailed:
		return "preinit failed"
	case ExitCheckFailed:
		return "check failed"
	case ExitNoProvider:
		return "no provider"
	default:
		return fmt.Sprintf("ExitCode(%d)", int(c))
	}
}

// Removes reports whether a wrapper exiting with c should be removed from
// the panel configuration instead of being left as an empty slot.
func (c ExitCode) Removes() bool {
	return c == ExitFailure || c == ExitPreinitFailed || c == ExitNoProvider
}
