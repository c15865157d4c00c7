// Package plugins holds the plugins built into the wrapper.
package plugins

import (
	"strings"
	"sync"
	"time"

	"github.com/skycoin/xfce4-panel/pkg/provider"
)

// ClockName is the module name of the clock plugin.
const ClockName = "clock"

// DefaultClockFormat is the layout the clock shows unless told otherwise.
const DefaultClockFormat = "15:04"

// Clock shows the current time.
type Clock struct {
	*provider.Base

	now  func() time.Time
	tick time.Duration

	mu     sync.Mutex
	format string
	text   string
	active bool

	stop chan struct{}
	once sync.Once
}

// NewClock is the clock's ObjectFactory. It accepts a --format=<layout>
// argument.
func NewClock(info provider.Info, host provider.Host) (provider.Provider, error) {
	c := newClock(info, host, time.Now, time.Second)
	go c.run()
	return c, nil
}

func newClock(info provider.Info, host provider.Host, now func() time.Time, tick time.Duration) *Clock {
	c := &Clock{
		Base:   provider.NewBase(info, host),
		now:    now,
		tick:   tick,
		format: DefaultClockFormat,
		stop:   make(chan struct{}),
	}
	for _, arg := range info.Args {
		if strings.HasPrefix(arg, "--format=") {
			c.format = strings.TrimPrefix(arg, "--format=")
		}
	}
	return c
}

func (c *Clock) run() {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	c.update()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.update()
		}
	}
}

// update refreshes the text, asking for more room when it grew.
func (c *Clock) update() {
	c.mu.Lock()
	text := c.now().Format(c.format)
	grew := len(text) != len(c.text)
	c.text = text
	c.mu.Unlock()

	if grew && c.Host != nil {
		c.Host.SetRequisition(c.width(text), c.Size())
	}
}

func (c *Clock) width(text string) int {
	size := c.Size()
	if size == 0 {
		size = 24
	}
	return len(text) * size / 2
}

// Text returns what the clock currently shows.
func (c *Clock) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// SetSize implements provider.Provider.
func (c *Clock) SetSize(size int) {
	c.Base.SetSize(size)
	if c.Host != nil {
		c.Host.SetRequisition(c.width(c.Text()), size)
	}
}

// SetActivePanel implements provider.Placement.
func (c *Clock) SetActivePanel(active bool) {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()
}

// SetGeometry implements provider.Placement.
func (c *Clock) SetGeometry(x, y, width, height int) {}

// SetMonitor implements provider.Placement.
func (c *Clock) SetMonitor(monitor int) {}

// CanConfigure implements provider.Provider.
func (c *Clock) CanConfigure() bool { return true }

// ShowConfigure switches between a 24 hour and a 12 hour clock.
func (c *Clock) ShowConfigure() {
	c.mu.Lock()
	if strings.Contains(c.format, "15") {
		c.format = strings.Replace(c.format, "15", "3", 1) + " PM"
	} else {
		c.format = DefaultClockFormat
	}
	c.mu.Unlock()
	c.update()
}

// Format returns the current time layout.
func (c *Clock) Format() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Remove implements provider.Provider.
func (c *Clock) Remove() {
	c.once.Do(func() { close(c.stop) })
}

// Destroyed implements provider.Destroyable.
func (c *Clock) Destroyed() <-chan struct{} { return c.stop }
