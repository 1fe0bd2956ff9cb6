package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the service-level metrics for the blog graph API
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec

	// Store metrics
	EntitiesStored  *prometheus.GaugeVec
	CascadeRemovals *prometheus.CounterVec

	// Subscription metrics
	SubscriptionsActive *prometheus.GaugeVec
	EventsPublished     *prometheus.CounterVec
	EventsDropped       *prometheus.CounterVec

	// NATS mirror metrics
	NATSConnected   prometheus.Gauge
	MirrorPublished prometheus.Counter
	MirrorFailures  prometheus.Counter
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semblog",
				Subsystem: "operations",
				Name:      "total",
				Help:      "Total number of GraphQL operations by root field",
			},
			[]string{"kind", "operation", "status"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "semblog",
				Subsystem: "operations",
				Name:      "duration_seconds",
				Help:      "Operation execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind", "operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semblog",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of operation errors by class",
			},
			[]string{"operation", "class"},
		),

		EntitiesStored: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "semblog",
				Subsystem: "store",
				Name:      "entities",
				Help:      "Number of entities currently held per kind",
			},
			[]string{"kind"},
		),

		CascadeRemovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semblog",
				Subsystem: "store",
				Name:      "cascade_removed_total",
				Help:      "Entities removed as part of a cascading delete",
			},
			[]string{"kind"},
		),

		SubscriptionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "semblog",
				Subsystem: "subscriptions",
				Name:      "active",
				Help:      "Currently registered subscription listeners per topic kind",
			},
			[]string{"topic"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semblog",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Events published per topic kind",
			},
			[]string{"topic"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "semblog",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Events dropped because a listener buffer was full",
			},
			[]string{"topic"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "semblog",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		MirrorPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "semblog",
				Subsystem: "nats",
				Name:      "mirrored_total",
				Help:      "Events mirrored to NATS",
			},
		),

		MirrorFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "semblog",
				Subsystem: "nats",
				Name:      "mirror_failures_total",
				Help:      "Events that could not be mirrored to NATS",
			},
		),
	}
}

// collectors lists every metric for registration
func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.OperationsTotal,
		c.OperationDuration,
		c.ErrorsTotal,
		c.EntitiesStored,
		c.CascadeRemovals,
		c.SubscriptionsActive,
		c.EventsPublished,
		c.EventsDropped,
		c.NATSConnected,
		c.MirrorPublished,
		c.MirrorFailures,
	}
}

// RecordOperation counts a finished operation and observes its duration
func (c *Metrics) RecordOperation(kind, operation, status string, duration time.Duration) {
	c.OperationsTotal.WithLabelValues(kind, operation, status).Inc()
	c.OperationDuration.WithLabelValues(kind, operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(operation, class string) {
	c.ErrorsTotal.WithLabelValues(operation, class).Inc()
}

// RecordEntityCount sets the stored entity gauge for a kind
func (c *Metrics) RecordEntityCount(kind string, count int) {
	c.EntitiesStored.WithLabelValues(kind).Set(float64(count))
}

// RecordCascade counts entities removed by a cascading delete
func (c *Metrics) RecordCascade(kind string, count int) {
	c.CascadeRemovals.WithLabelValues(kind).Add(float64(count))
}

// RecordSubscription adjusts the active subscription gauge by delta
func (c *Metrics) RecordSubscription(topic string, delta int) {
	c.SubscriptionsActive.WithLabelValues(topic).Add(float64(delta))
}

// RecordEventPublished increments published event counter
func (c *Metrics) RecordEventPublished(topic string) {
	c.EventsPublished.WithLabelValues(topic).Inc()
}

// RecordEventDropped increments dropped event counter
func (c *Metrics) RecordEventDropped(topic string) {
	c.EventsDropped.WithLabelValues(topic).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordMirror counts a mirrored event, or a failed attempt
func (c *Metrics) RecordMirror(err error) {
	if err != nil {
		c.MirrorFailures.Inc()
		return
	}
	c.MirrorPublished.Inc()
}
