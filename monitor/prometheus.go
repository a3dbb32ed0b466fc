package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gzmap"

// PrometheusSink mirrors each tick into gauges on the given registerer.
type PrometheusSink struct {
	sent          prometheus.Gauge
	successUnique prometheus.Gauge
	received      prometheus.Gauge
	drops         prometheus.Gauge
	failures      prometheus.Gauge
	sendWorkers   prometheus.Gauge
	hitRate       prometheus.Gauge
	progress      prometheus.Gauge
	remaining     prometheus.Gauge
	rates         *prometheus.GaugeVec
}

func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		})
	}
	s := &PrometheusSink{
		sent:          gauge("probes_sent", "Probes sent so far."),
		successUnique: gauge("responses_success_unique", "Unique successful responses."),
		received:      gauge("responses_received", "Validated responses of any classification."),
		drops:         gauge("capture_drops", "Packets dropped by the capture layer and interface."),
		failures:      gauge("send_failures", "Probes the link layer refused."),
		sendWorkers:   gauge("send_workers", "Send workers still running."),
		hitRate:       gauge("hitrate_percent", "Unique successes per probe sent, in percent."),
		progress:      gauge("progress_percent", "Estimated scan progress, in percent."),
		remaining:     gauge("remaining_seconds", "Estimated time left."),
		rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rate_per_second",
			Help:      "Per second rates over the last tick.",
		}, []string{"counter"}),
	}
	for _, c := range s.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.sent, s.successUnique, s.received, s.drops, s.failures,
		s.sendWorkers, s.hitRate, s.progress, s.remaining, s.rates,
	}
}

func (s *PrometheusSink) Update(st *Status) error {
	s.sent.Set(float64(st.TotalSent))
	s.successUnique.Set(float64(st.RecvSuccessUnique))
	s.received.Set(float64(st.TotalRecv))
	s.drops.Set(float64(st.DropTotal))
	s.failures.Set(float64(st.FailTotal))
	s.sendWorkers.Set(float64(st.SendWorkers))
	s.hitRate.Set(st.HitRate)
	s.progress.Set(st.PercentComplete)
	s.remaining.Set(st.TimeRemaining)
	s.rates.WithLabelValues("send").Set(st.SendRate)
	s.rates.WithLabelValues("recv_success").Set(st.RecvRate)
	s.rates.WithLabelValues("recv_total").Set(st.RecvTotalRate)
	s.rates.WithLabelValues("app_success").Set(st.AppSuccessRate)
	s.rates.WithLabelValues("drop").Set(st.DropLast)
	s.rates.WithLabelValues("send_failure").Set(st.FailLast)
	return nil
}

func (s *PrometheusSink) Close() error {
	return nil
}
