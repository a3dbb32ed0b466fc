package monitor_test

import (
	"strings"
	"testing"
	"time"

	"github.com/LanXuage/gzmap/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := monitor.NewPrometheusSink(reg)
	require.NoError(t, err)

	f := newFixture()
	f.it.sent = 100
	f.recv.AddSuccessUnique(60)
	f.now = t0.Add(10 * time.Second)
	f.monitor(t, monitor.Config{}, monitor.WithSink(sink)).Tick()

	expected := `
# HELP gzmap_hitrate_percent Unique successes per probe sent, in percent.
# TYPE gzmap_hitrate_percent gauge
gzmap_hitrate_percent 60
# HELP gzmap_probes_sent Probes sent so far.
# TYPE gzmap_probes_sent gauge
gzmap_probes_sent 100
# HELP gzmap_rate_per_second Per second rates over the last tick.
# TYPE gzmap_rate_per_second gauge
gzmap_rate_per_second{counter="app_success"} 0
gzmap_rate_per_second{counter="drop"} 0
gzmap_rate_per_second{counter="recv_success"} 6
gzmap_rate_per_second{counter="recv_total"} 0
gzmap_rate_per_second{counter="send"} 10
gzmap_rate_per_second{counter="send_failure"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"gzmap_hitrate_percent", "gzmap_probes_sent", "gzmap_rate_per_second"))
}

func TestPrometheusSinkRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := monitor.NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = monitor.NewPrometheusSink(reg)
	assert.Error(t, err)
}
