package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

var (
	// ErrEmbedTimeout is reported when a wrapper does not embed in time.
	ErrEmbedTimeout = errors.New("plugin did not embed in time")

	// ErrExitedEarly is reported when a wrapper exits before embedding.
	ErrExitedEarly = errors.New("plugin exited before embedding")
)

// State is the lifecycle state of a wrapper process.
type State int

// Handle states.
const (
	StateSpawning State = iota
	StateRunning
	StateEmbedded
	StateUnembedded
	StateExited
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateEmbedded:
		return "embedded"
	case StateUnembedded:
		return "unembedded"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) final() bool { return s == StateExited || s == StateFailed }

// TerminateReason tells a wrapper why it is being stopped.
type TerminateReason int

// Terminate reasons.
const (
	ReasonUserRemove TerminateReason = iota
	ReasonPanelQuit
	ReasonPanelRestart
)

func (r TerminateReason) String() string {
	switch r {
	case ReasonUserRemove:
		return "user-remove"
	case ReasonPanelQuit:
		return "panel-quit"
	case ReasonPanelRestart:
		return "panel-restart"
	default:
		return fmt.Sprintf("TerminateReason(%d)", int(r))
	}
}

// ExitInfo describes how a wrapper went away.
type ExitInfo struct {
	Code  provider.ExitCode
	Err   error
	State State
}

// Handle is the panel's view of one plugin running in a wrapper process. It
// implements provider.Provider by queueing control messages for the wrapper.
type Handle struct {
	l      *Launcher
	info   provider.Info
	module string
	sock   transport.Socket
	cmd    *exec.Cmd
	logs   io.Closer
	log    *logging.Logger

	mu           sync.Mutex
	pid          int
	state        State
	queue        *plugmsg.Queue
	flushTimer   *time.Timer
	embedTimer   *time.Timer
	canConfigure bool
	canShowAbout bool
	reported     bool
	exit         ExitInfo

	sendMu sync.Mutex
	exited chan struct{}
}

// Name implements provider.Provider.
func (h *Handle) Name() string { return h.info.Name }

// UniqueID implements provider.Provider.
func (h *Handle) UniqueID() int { return h.info.UniqueID }

// Info returns what the plugin was started with.
func (h *Handle) Info() provider.Info { return h.info }

// SocketID returns the id handed to the wrapper as --socket-id.
func (h *Handle) SocketID() uint32 { return h.sock.ID() }

// PID returns the wrapper process id.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Exited is closed once the wrapper process has exited.
func (h *Handle) Exited() <-chan struct{} { return h.exited }

// ExitInfo returns how the process exited. It is only meaningful once
// Exited is closed.
func (h *Handle) ExitInfo() ExitInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}

// Pending returns the number of queued messages.
func (h *Handle) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.queue.Len()
}

// SetSize implements provider.Provider.
func (h *Handle) SetSize(size int) {
	h.queueUpdate(plugmsg.Int(plugmsg.KindSetSize, size))
}

// SetOrientation implements provider.Provider.
func (h *Handle) SetOrientation(o provider.Orientation) {
	h.queueUpdate(plugmsg.Int(plugmsg.KindSetOrientation, int(o)))
}

// SetScreenPosition implements provider.Provider.
func (h *Handle) SetScreenPosition(p provider.ScreenPosition) {
	h.queueUpdate(plugmsg.Int(plugmsg.KindSetScreenPosition, int(p)))
}

// SetSensitive makes the plugin accept or refuse input.
func (h *Handle) SetSensitive(sensitive bool) {
	h.queueUpdate(plugmsg.Bool(plugmsg.KindSetSensitive, sensitive))
}

// SetBackgroundAlpha sets the panel background alpha in percent.
func (h *Handle) SetBackgroundAlpha(alpha int) {
	h.queueUpdate(plugmsg.Int(plugmsg.KindSetBackgroundAlpha, alpha))
}

// SetActivePanel tells the plugin whether its panel has the pointer.
func (h *Handle) SetActivePanel(active bool) {
	h.queueUpdate(plugmsg.Bool(plugmsg.KindSetActivePanel, active))
}

// SetBackgroundColor sets the panel background to a CSS color.
func (h *Handle) SetBackgroundColor(color string) {
	h.queueUpdate(plugmsg.String(plugmsg.KindSetBackgroundColor, color))
}

// SetBackgroundImage sets the panel background to an image file.
func (h *Handle) SetBackgroundImage(path string) {
	h.queueUpdate(plugmsg.String(plugmsg.KindSetBackgroundImage, path))
}

// UnsetBackground returns the plugin to the theme background.
func (h *Handle) UnsetBackground() {
	h.queueUpdate(plugmsg.Trigger(plugmsg.KindUnsetBackground))
}

// SetGeometry tells the plugin where it sits on screen.
func (h *Handle) SetGeometry(x, y, width, height int) {
	h.queueUpdate(plugmsg.Geometry(x, y, width, height))
}

// SetMonitor tells the plugin which monitor its panel is on.
func (h *Handle) SetMonitor(monitor int) {
	h.queueUpdate(plugmsg.Int(plugmsg.KindSetMonitor, monitor))
}

// Save implements provider.Provider.
func (h *Handle) Save() { h.queueUpdate(plugmsg.Trigger(plugmsg.KindSave)) }

// CanConfigure implements provider.Provider.
func (h *Handle) CanConfigure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canConfigure
}

// ShowConfigure implements provider.Provider.
func (h *Handle) ShowConfigure() { h.queueUpdate(plugmsg.Trigger(plugmsg.KindShowConfigure)) }

// CanShowAbout implements provider.Provider.
func (h *Handle) CanShowAbout() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canShowAbout
}

// ShowAbout implements provider.Provider.
func (h *Handle) ShowAbout() { h.queueUpdate(plugmsg.Trigger(plugmsg.KindShowAbout)) }

// Remove implements provider.Provider. It is sent immediately.
func (h *Handle) Remove() {
	if err := h.sendNow(plugmsg.Trigger(plugmsg.KindRemove)); err != nil {
		h.log.WithError(err).Warn("Failed to send Remove.")
	}
}

// Terminate asks the wrapper to stop and waits until it has exited or ctx is
// done. The process is never killed.
func (h *Handle) Terminate(ctx context.Context, reason TerminateReason) error {
	select {
	case <-h.exited:
		return nil
	default:
	}

	m := plugmsg.Trigger(plugmsg.KindQuit)
	if reason == ReasonUserRemove {
		m = plugmsg.Trigger(plugmsg.KindRemove)
	}
	h.log.Infof("Terminating (%s).", reason)
	if err := h.sendNow(m); err != nil {
		h.log.WithError(err).Warnf("Failed to send %s.", m.Kind)
	}

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) queueUpdate(m plugmsg.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.final() {
		return
	}
	dropped := h.queue.Dropped()
	if !h.queue.Push(m) {
		h.l.metrics.Coalesced()
		return
	}
	if n := h.queue.Dropped() - dropped; n > 0 {
		h.l.metrics.Dropped(n)
		h.log.Warnf("Queue full, dropped %d message(s).", n)
	}
	if h.state == StateEmbedded {
		h.scheduleFlush()
	}
}

// scheduleFlush must be called with mu held.
func (h *Handle) scheduleFlush() {
	if h.flushTimer == nil {
		h.flushTimer = time.AfterFunc(h.l.conf.FlushDelay, h.flush)
	}
}

func (h *Handle) flush() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	h.flushTimer = nil
	if h.state != StateEmbedded {
		h.mu.Unlock()
		return
	}
	msgs := sendOrder(h.queue.Drain())
	h.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	if err := h.send(msgs); err != nil {
		h.log.WithError(err).Warnf("Failed to flush %d message(s).", len(msgs))
		return
	}
	h.l.metrics.Sent(len(msgs))
}

func (h *Handle) sendNow(m plugmsg.Message) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if err := h.sock.Send(m); err != nil {
		return err
	}
	h.l.metrics.Sent(1)
	return nil
}

func (h *Handle) send(msgs []plugmsg.Message) error {
	if b, ok := h.sock.(transport.BatchSender); ok {
		return b.SendBatch(msgs)
	}
	for _, m := range msgs {
		if err := h.sock.Send(m); err != nil {
			return err
		}
	}
	return nil
}

// sendOrder moves a pending SetMonitor ahead of a pending SetGeometry, so
// the wrapper resolves the geometry on the right monitor.
func sendOrder(msgs []plugmsg.Message) []plugmsg.Message {
	geo, mon := -1, -1
	for i, m := range msgs {
		switch m.Kind {
		case plugmsg.KindSetGeometry:
			geo = i
		case plugmsg.KindSetMonitor:
			mon = i
		}
	}
	if geo < 0 || mon < 0 || mon < geo {
		return msgs
	}
	m := msgs[mon]
	copy(msgs[geo+1:mon+1], msgs[geo:mon])
	msgs[geo] = m
	return msgs
}

func (h *Handle) handleMessage(m plugmsg.Message) {
	switch m.Kind {
	case plugmsg.KindEmbedded:
		h.embedded()
	case plugmsg.KindProviderDestroyed:
		h.mu.Lock()
		if h.state == StateEmbedded {
			h.state = StateUnembedded
		}
		h.mu.Unlock()
		h.log.Info("Plugin window went away.")
	case plugmsg.KindSetRequisition:
		if fn := h.l.conf.OnRequisition; fn != nil {
			w, ht := m.Size()
			fn(h, w, ht)
		}
	default:
		sig, ok := plugmsg.ToSignal(m)
		if !ok {
			h.log.Warnf("Ignoring unexpected message %s.", m)
			return
		}
		h.handleSignal(sig)
	}
}

func (h *Handle) handleSignal(sig provider.Signal) {
	switch sig {
	case provider.SignalShowConfigure:
		h.mu.Lock()
		h.canConfigure = true
		h.mu.Unlock()
	case provider.SignalShowAbout:
		h.mu.Lock()
		h.canShowAbout = true
		h.mu.Unlock()
	default:
		if fn := h.l.conf.OnSignal; fn != nil {
			fn(h, sig)
		}
	}
}

func (h *Handle) embedded() {
	h.mu.Lock()
	if h.state.final() {
		h.mu.Unlock()
		h.log.Warn("Embedded after failure, ignoring.")
		return
	}
	if h.state == StateUnembedded {
		// a new plug window starts from defaults
		h.queue.Forget()
	}
	h.state = StateEmbedded
	if h.embedTimer != nil {
		h.embedTimer.Stop()
		h.embedTimer = nil
	}
	h.mu.Unlock()

	h.log.Info("Plugin embedded.")
	if fn := h.l.conf.OnEmbedded; fn != nil {
		fn(h)
	}
	h.flush()
}

func (h *Handle) embedTimedOut() {
	h.mu.Lock()
	if h.state != StateSpawning && h.state != StateRunning {
		h.mu.Unlock()
		return
	}
	h.state = StateFailed
	h.embedTimer = nil
	h.reported = true
	info := ExitInfo{Code: provider.ExitFailure, Err: ErrEmbedTimeout, State: StateFailed}
	h.mu.Unlock()

	h.log.Warnf("Plugin did not embed within %s.", h.l.conf.EmbedTimeout)
	h.l.metrics.EmbedTimedOut(h.module)
	if fn := h.l.conf.OnExit; fn != nil {
		fn(h, info)
	}
}

func (h *Handle) wait() {
	code, err := h.l.conf.Executer.Wait(h.cmd)

	h.mu.Lock()
	if h.embedTimer != nil {
		h.embedTimer.Stop()
		h.embedTimer = nil
	}
	if h.flushTimer != nil {
		h.flushTimer.Stop()
		h.flushTimer = nil
	}
	switch h.state {
	case StateSpawning, StateRunning:
		h.state = StateFailed
		if err == nil {
			err = ErrExitedEarly
		}
	case StateFailed:
	default:
		h.state = StateExited
	}
	info := ExitInfo{Code: provider.ExitCode(code), Err: err, State: h.state}
	h.exit = info
	report := !h.reported
	h.reported = true
	h.mu.Unlock()

	if err := h.sock.Close(); err != nil && err != transport.ErrClosed {
		h.log.WithError(err).Debug("Failed to close socket.")
	}
	if h.logs != nil {
		h.logs.Close() // nolint: errcheck
	}
	h.l.forget(h)
	h.l.metrics.Exited(h.module, code)
	h.l.metrics.Live(-1)
	h.log.Infof("Plugin exited with %s (%s).", info.Code, info.State)
	close(h.exited)

	if report {
		if fn := h.l.conf.OnExit; fn != nil {
			fn(h, info)
		}
	}
}
