package pushqueue

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the Prometheus collector set for a Queue, grounded in the
// teacher's MemoryEventBus.Stats()/deliveredCount/droppedCount atomic
// counters (modules/eventbus/memory.go) and metrics_exporters.go, re-
// expressed as real collectors instead of a periodic log line.
//
// Metrics are registered against a caller-supplied *prometheus.Registry
// rather than prometheus.DefaultRegisterer, so more than one Queue can
// coexist in a process without collector-name collisions.
type Metrics struct {
	Delivered    prometheus.Counter
	Retried      prometheus.Counter
	DeadLettered prometheus.Counter
	Pruned       prometheus.Counter
	DlqReplayed  prometheus.Counter
	Subscribers  prometheus.Gauge
	Lag          *prometheus.GaugeVec
}

// NewMetrics creates and registers a Metrics set. If registry is nil, the
// collectors are created but never registered (useful for tests that don't
// care about exposition).
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushqueue_delivered_total",
			Help: "Total number of envelopes delivered across all subscribers (Ack, fallback Commit/RetryOnceThenCommit, or a DLQ replay that Acks); dead-lettered envelopes are not counted.",
		}),
		Retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushqueue_retried_total",
			Help: "Total number of OnMessageReceive retry attempts (Nack or error) across all subscribers.",
		}),
		DeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushqueue_dead_lettered_total",
			Help: "Total number of envelopes appended to a subscriber DLQ.",
		}),
		Pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushqueue_pruned_total",
			Help: "Total number of envelopes removed from the store head by TTL expiry.",
		}),
		DlqReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pushqueue_dlq_replayed_total",
			Help: "Total number of DLQ entries successfully replayed (Ack) and removed.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pushqueue_subscribers",
			Help: "Current number of live subscribers.",
		}),
		Lag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pushqueue_subscriber_lag",
			Help: "Number of envelopes between a subscriber's cursor and the store tail (store logical size minus cursor index).",
		}, []string{"subscriber_id"}),
	}
	if registry != nil {
		registry.MustRegister(m.Delivered, m.Retried, m.DeadLettered, m.Pruned, m.DlqReplayed, m.Subscribers, m.Lag)
	}
	return m
}

// updateLag recomputes subscriberID's lag gauge from c's current index and
// the store's current logical size. Callers must hold dataMu, since both
// values must be read consistently with each other.
func (q *Queue) updateLag(c *cursor) {
	q.metrics.Lag.WithLabelValues(c.id).Set(float64(q.store.logicalSize() - c.index))
}
