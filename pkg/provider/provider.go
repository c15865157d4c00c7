// Package provider defines the capability set every panel plugin implements,
// whether it runs inside the panel or in a wrapper process.
package provider

import (
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"
)

// Provider is what the panel talks to for every plugin it hosts.
// Setters restate absolute state and must be idempotent.
type Provider interface {
	Name() string
	UniqueID() int

	SetSize(size int)
	SetOrientation(o Orientation)
	SetScreenPosition(p ScreenPosition)

	// Save asks the plugin to persist its configuration now.
	Save()

	CanConfigure() bool
	ShowConfigure()
	CanShowAbout() bool
	ShowAbout()

	// Remove tells the plugin it is being removed from the panel for good.
	Remove()
}

// Info is passed to a plugin constructor.
type Info struct {
	Name        string
	DisplayName string
	Comment     string
	UniqueID    int
	Args        []string
}

// Host is the panel as seen from inside a plugin.
type Host interface {
	Emit(sig Signal)
	SetExpand(expand bool)
	SetRequisition(width, height int)
	Logger() *logging.Logger
}

// Base implements the bookkeeping half of Provider. Plugins embed it and
// override what they need.
type Base struct {
	Info Info
	Host Host

	mu          sync.Mutex
	size        int
	orientation Orientation
	position    ScreenPosition
}

// NewBase returns a Base for the given plugin instance.
func NewBase(info Info, host Host) *Base {
	return &Base{Info: info, Host: host}
}

// Name implements Provider.
func (b *Base) Name() string { return b.Info.Name }

// UniqueID implements Provider.
func (b *Base) UniqueID() int { return b.Info.UniqueID }

// SetSize implements Provider.
func (b *Base) SetSize(size int) {
	b.mu.Lock()
	b.size = size
	b.mu.Unlock()
}

// SetOrientation implements Provider.
func (b *Base) SetOrientation(o Orientation) {
	b.mu.Lock()
	b.orientation = o
	b.mu.Unlock()
}

// SetScreenPosition implements Provider.
func (b *Base) SetScreenPosition(p ScreenPosition) {
	b.mu.Lock()
	b.position = p
	b.mu.Unlock()
}

// Size returns the last size set.
func (b *Base) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Orientation returns the last orientation set.
func (b *Base) Orientation() Orientation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orientation
}

// ScreenPosition returns the last screen position set.
func (b *Base) ScreenPosition() ScreenPosition {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// Save implements Provider.
func (b *Base) Save() {}

// CanConfigure implements Provider.
func (b *Base) CanConfigure() bool { return false }

// ShowConfigure implements Provider.
func (b *Base) ShowConfigure() {}

// CanShowAbout implements Provider.
func (b *Base) CanShowAbout() bool { return false }

// ShowAbout implements Provider.
func (b *Base) ShowAbout() {}

// Remove implements Provider.
func (b *Base) Remove() {}

// Appearance is implemented by plugins that follow the panel's background
// and sensitivity.
type Appearance interface {
	SetSensitive(sensitive bool)
	SetBackgroundAlpha(alpha int)
	SetBackgroundColor(color string)
	SetBackgroundImage(path string)
	UnsetBackground()
}

// Placement is implemented by plugins that want to know where they are shown.
type Placement interface {
	SetGeometry(x, y, width, height int)
	SetMonitor(monitor int)
	SetActivePanel(active bool)
}

// Destroyable is implemented by plugins that can go away on their own.
type Destroyable interface {
	// Destroyed is closed when the plugin has destroyed itself.
	Destroyed() <-chan struct{}
}
