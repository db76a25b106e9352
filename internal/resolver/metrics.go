package resolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总解析器的 Prometheus 指标。nil 值可安全调用，表示不采集。
type Metrics struct {
	resolves      *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	attempts      prometheus.Counter
	fetchDuration prometheus.Histogram
	inflight      prometheus.Gauge
}

// NewMetrics 创建指标并注册到 reg；reg 为 nil 时只创建不注册。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hxloris",
			Name:      "resolve_total",
			Help:      "Resolutions by outcome (hit, fetched, error).",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hxloris",
			Name:      "fetch_total",
			Help:      "Remote fetches by result kind.",
		}, []string{"result"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hxloris",
			Name:      "fetch_attempts_total",
			Help:      "Individual get-object attempts including retries.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hxloris",
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of a coordinated fetch including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hxloris",
			Name:      "inflight_fetches",
			Help:      "Identifiers currently being fetched.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.resolves, m.fetches, m.attempts, m.fetchDuration, m.inflight)
	}
	return m
}

func (m *Metrics) observeResolve(outcome string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeAttempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

func (m *Metrics) fetchStarted() func(result string) {
	if m == nil {
		return func(string) {}
	}
	started := time.Now()
	m.inflight.Inc()
	return func(result string) {
		m.inflight.Dec()
		m.fetchDuration.Observe(time.Since(started).Seconds())
		m.fetches.WithLabelValues(result).Inc()
	}
}
