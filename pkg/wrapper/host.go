package wrapper

import (
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

// host forwards what a plugin asks of the panel to the plug. Messages sent
// before the plug exists are held.
type host struct {
	log *logging.Logger

	mu      sync.Mutex
	ch      transport.Channel
	pending []plugmsg.Message
}

func newHost(log *logging.Logger) *host {
	return &host{log: log}
}

func (h *host) Emit(sig provider.Signal) {
	h.send(plugmsg.FromSignal(sig))
}

func (h *host) SetExpand(expand bool) {
	h.send(plugmsg.Bool(plugmsg.KindExpandChanged, expand))
}

func (h *host) SetRequisition(width, height int) {
	h.send(plugmsg.Requisition(width, height))
}

func (h *host) Logger() *logging.Logger { return h.log }

func (h *host) send(m plugmsg.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ch == nil {
		h.pending = append(h.pending, m)
		return
	}
	if err := h.ch.Send(m); err != nil {
		h.log.WithError(err).Debugf("Failed to send %s.", m)
	}
}

// attach starts forwarding to ch and flushes what was held.
func (h *host) attach(ch transport.Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ch = ch
	for _, m := range h.pending {
		if err := ch.Send(m); err != nil {
			h.log.WithError(err).Debugf("Failed to send %s.", m)
		}
	}
	h.pending = nil
}
