package plugins

import (
	"github.com/skycoin/xfce4-panel/pkg/provider"
)

// SeparatorName is the module name of the separator plugin.
const SeparatorName = "separator"

// Separator draws a line between plugins, or fills the panel when expanded.
type Separator struct {
	*provider.Base
	expand bool
}

// NewSeparator is the separator's construct function. Passing "expand"
// makes it take up the free space.
func NewSeparator(info provider.Info, host provider.Host) provider.Provider {
	s := &Separator{Base: provider.NewBase(info, host)}
	for _, arg := range info.Args {
		if arg == "expand" {
			s.expand = true
		}
	}
	if host != nil && s.expand {
		host.SetExpand(true)
	}
	return s
}

// SetSize implements provider.Provider.
func (s *Separator) SetSize(size int) {
	s.Base.SetSize(size)
	if s.Host == nil {
		return
	}
	if s.Orientation() == provider.Horizontal {
		s.Host.SetRequisition(size/4, size)
	} else {
		s.Host.SetRequisition(size, size/4)
	}
}

// CanShowAbout implements provider.Provider.
func (s *Separator) CanShowAbout() bool { return true }

// ShowAbout implements provider.Provider.
func (s *Separator) ShowAbout() {
	if s.Host != nil {
		s.Host.Logger().Info("Separator, part of the panel.")
	}
}

// RegisterAll adds every built-in plugin to r.
func RegisterAll(r *provider.Registry) error {
	if err := r.Register(ClockName, provider.EntryPoint{Object: NewClock}); err != nil {
		return err
	}
	return r.Register(SeparatorName, provider.EntryPoint{Function: NewSeparator})
}
