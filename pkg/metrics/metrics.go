// Package metrics records plugin lifecycle metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records plugin lifecycle metrics.
type Recorder interface {
	Spawned(module string)
	Exited(module string, code int)
	EmbedTimedOut(module string)
	Sent(n int)
	Coalesced()
	Dropped(n int)
	Live(delta int)
}

type dummy struct{}

// NewDummy constructs a recorder that records nothing.
func NewDummy() Recorder {
	return &dummy{}
}

func (dummy) Spawned(string) {}
func (dummy) Exited(string, int) {}
func (dummy) EmbedTimedOut(string) {}
func (dummy) Sent(int) {}
func (dummy) Coalesced() {}
func (dummy) Dropped(int) {}
func (dummy) Live(int) {}

type prom struct {
	spawns       *prometheus.CounterVec
	exits        *prometheus.CounterVec
	embedTimeout *prometheus.CounterVec
	sent         prometheus.Counter
	coalesced    prometheus.Counter
	dropped      prometheus.Counter
	live         prometheus.Gauge
}

// NewPrometheus constructs a recorder registered with reg. A nil reg means
// the default registry.
func NewPrometheus(reg prometheus.Registerer, service string) Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &prom{
		spawns: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_plugin_spawns_total",
			Help: "The total number of wrapper processes started",
		}, []string{"module"}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_plugin_exits_total",
			Help: "The total number of wrapper processes that exited",
		}, []string{"module", "code"}),
		embedTimeout: f.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_plugin_embed_timeouts_total",
			Help: "The total number of wrappers that never embedded",
		}, []string{"module"}),
		sent: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_messages_sent_total",
			Help: "The total number of control messages sent to wrappers",
		}),
		coalesced: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_messages_coalesced_total",
			Help: "The total number of updates absorbed because they restated a current value",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_messages_dropped_total",
			Help: "The total number of triggers dropped from a full queue",
		}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Name: service + "_plugins_live",
			Help: "The number of wrapper processes currently running",
		}),
	}
}

func (m *prom) Spawned(module string) { m.spawns.WithLabelValues(module).Inc() }

func (m *prom) Exited(module string, code int) {
	m.exits.WithLabelValues(module, strconv.Itoa(code)).Inc()
}

func (m *prom) EmbedTimedOut(module string) { m.embedTimeout.WithLabelValues(module).Inc() }

func (m *prom) Sent(n int) { m.sent.Add(float64(n)) }

func (m *prom) Coalesced() { m.coalesced.Inc() }

func (m *prom) Dropped(n int) { m.dropped.Add(float64(n)) }

func (m *prom) Live(delta int) { m.live.Add(float64(delta)) }

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
