package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	EnqueueAccepted = "accepted"
	EnqueueOverflow = "overflow"
)

// IngressMetrics tracks the webhook buffer between the HTTP receiver and the
// dispatcher.
type IngressMetrics struct {
	enqueued *prometheus.CounterVec
	depth    prometheus.Gauge
	capacity prometheus.Gauge
	rejected *prometheus.CounterVec
}

// NewIngressMetrics registers the ingress metrics on the provided registerer.
func NewIngressMetrics(reg prometheus.Registerer) *IngressMetrics {
	if reg == nil {
		return &IngressMetrics{}
	}
	m := &IngressMetrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "enqueue_total",
			Help:      "Webhook enqueue attempts by outcome.",
		}, []string{"outcome"}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "queue_depth",
			Help:      "Envelopes waiting for the dispatcher.",
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "queue_capacity",
			Help:      "Configured ingress queue capacity.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "rejected_total",
			Help:      "Webhook deliveries acknowledged but not enqueued, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.enqueued, m.depth, m.capacity, m.rejected)
	return m
}

// ObserveEnqueue records an enqueue attempt and the resulting depth.
func (m *IngressMetrics) ObserveEnqueue(outcome string, depth int) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.depth.Set(float64(depth))
}

// SetDepth records the current queue depth.
func (m *IngressMetrics) SetDepth(depth int) {
	if m == nil || m.depth == nil {
		return
	}
	m.depth.Set(float64(depth))
}

// SetCapacity records the queue capacity.
func (m *IngressMetrics) SetCapacity(capacity int) {
	if m == nil || m.capacity == nil {
		return
	}
	m.capacity.Set(float64(capacity))
}

// IncRejected counts a delivery that was acknowledged but dropped.
func (m *IngressMetrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}
