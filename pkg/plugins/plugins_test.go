package plugins

import (
	"sync"
	"testing"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/xfce4-panel/pkg/provider"
)

type testHost struct {
	mu     sync.Mutex
	expand bool
	reqs   [][2]int
}

func (h *testHost) Emit(provider.Signal) {}

func (h *testHost) SetExpand(expand bool) {
	h.mu.Lock()
	h.expand = expand
	h.mu.Unlock()
}

func (h *testHost) SetRequisition(w, ht int) {
	h.mu.Lock()
	h.reqs = append(h.reqs, [2]int{w, ht})
	h.mu.Unlock()
}

func (h *testHost) Logger() *logging.Logger { return logging.MustGetLogger("test") }

func (h *testHost) last() [2]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reqs) == 0 {
		return [2]int{}
	}
	return h.reqs[len(h.reqs)-1]
}

func TestRegisterAll(t *testing.T) {
	r := provider.NewRegistry()
	require.NoError(t, RegisterAll(r))
	assert.Equal(t, []string{"clock", "separator"}, r.Modules())

	clock, _ := r.Lookup(ClockName)
	assert.Equal(t, "object", clock.Kind())
	sep, _ := r.Lookup(SeparatorName)
	assert.Equal(t, "function", sep.Kind())
}

func TestClock(t *testing.T) {
	host := &testHost{}
	at := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)
	c := newClock(provider.Info{Name: ClockName, UniqueID: 1}, host, func() time.Time { return at }, time.Hour)

	c.SetSize(20)
	c.update()
	assert.Equal(t, "09:05", c.Text())
	assert.Equal(t, [2]int{50, 20}, host.last())

	require.True(t, c.CanConfigure())
	c.ShowConfigure()
	assert.Equal(t, "3:04 PM", c.Format())
	assert.Equal(t, "9:05 AM", c.Text())
	c.ShowConfigure()
	assert.Equal(t, DefaultClockFormat, c.Format())

	custom := newClock(provider.Info{Args: []string{"--format=15:04:05"}}, nil, func() time.Time { return at }, time.Hour)
	custom.update()
	assert.Equal(t, "09:05:00", custom.Text())

	c.Remove()
	c.Remove()
	select {
	case <-c.Destroyed():
	default:
		t.Fatal("clock should be destroyed after removal")
	}
}

func TestClock_Runs(t *testing.T) {
	p, err := NewClock(provider.Info{Name: ClockName}, &testHost{})
	require.NoError(t, err)
	c := p.(*Clock)
	defer c.Remove()
	assert.Eventually(t, func() bool { return c.Text() != "" }, time.Second, 5*time.Millisecond)
}

func TestSeparator(t *testing.T) {
	host := &testHost{}
	s := NewSeparator(provider.Info{Name: SeparatorName, Args: []string{"expand"}}, host).(*Separator)
	assert.True(t, host.expand)

	s.SetSize(32)
	assert.Equal(t, [2]int{8, 32}, host.last())
	s.SetOrientation(provider.Vertical)
	s.SetSize(32)
	assert.Equal(t, [2]int{32, 8}, host.last())
	assert.True(t, s.CanShowAbout())
	assert.False(t, s.CanConfigure())

	plain := &testHost{}
	NewSeparator(provider.Info{Name: SeparatorName}, plain)
	assert.False(t, plain.expand)
}
