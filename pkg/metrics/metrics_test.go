package metrics

import (
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheus(reg, "xfce4_panel")
	m := r.(*prom)

	r.Spawned("clock")
	r.Spawned("clock")
	r.Exited("clock", 0)
	r.EmbedTimedOut("clock")
	r.Sent(3)
	r.Coalesced()
	r.Dropped(2)
	r.Live(1)
	r.Live(1)
	r.Live(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.spawns.WithLabelValues("clock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exits.WithLabelValues("clock", "0")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.live))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := ioutil.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "xfce4_panel_plugin_spawns_total"))
}

func TestDummy(t *testing.T) {
	r := NewDummy()
	r.Spawned("x")
	r.Live(-1)
}
