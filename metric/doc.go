// Package metric provides Prometheus-based metrics collection for semblog.
//
// A MetricsRegistry owns a private prometheus.Registry with the core service
// metrics (operations, errors by class, entity counts, subscriptions, event
// delivery, NATS mirroring) plus the Go runtime and process collectors.
// Components register extra collectors under a service name and remove them
// when they stop:
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordOperation("mutation", "createUser", "success", elapsed)
//
//	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "delivery_queue_depth"})
//	_ = registry.Register("pubsub", "delivery_queue_depth", gauge)
//	defer registry.Unregister("pubsub", "delivery_queue_depth")
//
// Registry.Handler exposes the metrics for mounting on any mux; Server runs a
// dedicated listener when metrics should not share the API port.
package metric
