package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "xfer"
	subsystem = "transfer"
)

// Metrics holds the Prometheus collectors updated by sessions and coordinators.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	transfers      *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	bytesSent      prometheus.Counter
	bytesReceived  prometheus.Counter
	attachedActive prometheus.Gauge
	rejected       *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg and panics on any
// registration error other than an identical collector already being present,
// in which case the existing one is reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "completed_total",
				Help:      "Transfers finished, by terminal status.",
			},
			[]string{"status", "scheme"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Wall time of a single Perform call.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Request body bytes handed to the engine.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Response body bytes delivered to sinks.",
		}),
		attachedActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "multi",
			Name:      "attached_sessions",
			Help:      "Sessions currently attached to a coordinator.",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "multi",
				Name:      "rejected_total",
				Help:      "Attachment operations rejected by coordinator bookkeeping.",
			},
			[]string{"op"},
		),
	}

	m.transfers = register(reg, m.transfers)
	m.duration = register(reg, m.duration)
	m.bytesSent = register(reg, m.bytesSent)
	m.bytesReceived = register(reg, m.bytesReceived)
	m.attachedActive = register(reg, m.attachedActive)
	m.rejected = register(reg, m.rejected)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveTransfer records one finished Perform.
func (m *Metrics) ObserveTransfer(status, scheme string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if scheme == "" {
		scheme = "none"
	}
	m.transfers.WithLabelValues(status, scheme).Inc()
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) AddBytesSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.Add(float64(n))
}

func (m *Metrics) AddBytesReceived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.Add(float64(n))
}

// SessionAttached and SessionDetached track coordinator membership.
func (m *Metrics) SessionAttached() {
	if m == nil {
		return
	}
	m.attachedActive.Inc()
}

func (m *Metrics) SessionDetached() {
	if m == nil {
		return
	}
	m.attachedActive.Dec()
}

// IncRejected counts an attachment operation refused by the coordinator.
func (m *Metrics) IncRejected(op string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(op).Inc()
}
