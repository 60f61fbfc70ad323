package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records registry activity. A nil *Metrics records nothing.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	handles       prometheus.Gauge
}

// NewMetrics registers the registry collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "erp",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Duration of statements executed through tenant handles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tenant", "outcome"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erp",
			Subsystem: "db",
			Name:      "retries_total",
			Help:      "Statements retried after a transient failure.",
		}, []string{"tenant"}),
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erp",
			Subsystem: "db",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts for degraded handles.",
		}, []string{"tenant", "result"}),
		handles: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "erp",
			Subsystem: "db",
			Name:      "handles",
			Help:      "Open connection handles.",
		}),
	}
}

func (m *Metrics) observeQuery(tenant string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.queryDuration.WithLabelValues(tenant, outcome).Observe(d.Seconds())
}

func (m *Metrics) retried(tenant string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(tenant).Inc()
}

func (m *Metrics) reconnect(tenant string, ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.reconnects.WithLabelValues(tenant, result).Inc()
}

func (m *Metrics) setHandles(n int) {
	if m == nil {
		return
	}
	m.handles.Set(float64(n))
}
