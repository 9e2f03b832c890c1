package farm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks remote synchronisation. A nil *Metrics records nothing.
type Metrics struct {
	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	rollbacks      *prometheus.CounterVec
	skippedRows    *prometheus.CounterVec
	pending        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmledger_remote_calls_total",
			Help: "Remote store calls by table, operation and result.",
		}, []string{"table", "op", "result"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "farmledger_remote_call_duration_seconds",
			Help:    "Latency of remote store calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmledger_rollbacks_total",
			Help: "Optimistic adds undone after a failed remote insert.",
		}, []string{"entity"}),
		skippedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "farmledger_remote_rows_skipped_total",
			Help: "Fetched remote rows dropped because they could not be decoded.",
		}, []string{"table"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "farmledger_pending_mutations",
			Help: "Remote writes waiting in the pending log.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.remoteCalls, m.remoteDuration, m.rollbacks, m.skippedRows, m.pending} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observeCall(table, op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.remoteCalls.WithLabelValues(table, op, result).Inc()
	m.remoteDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) rollback(entity string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(entity).Inc()
}

func (m *Metrics) skipRows(table string, n int) {
	if m == nil {
		return
	}
	m.skippedRows.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
