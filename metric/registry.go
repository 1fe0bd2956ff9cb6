package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/semblog/errors"
)

// Registrar registers collectors owned by one component. Collectors are keyed
// by service and metric name so a component can remove what it added.
type Registrar interface {
	Register(service, name string, c prometheus.Collector) error
	Unregister(service, name string) bool
}

// MetricsRegistry owns the Prometheus registry exposed on /metrics
type MetricsRegistry struct {
	prom *prometheus.Registry
	core *Metrics

	mu    sync.Mutex
	owned map[string]prometheus.Collector
}

var _ Registrar = (*MetricsRegistry)(nil)

// NewMetricsRegistry creates a registry holding the core service metrics and
// the Go runtime and process collectors
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:  prometheus.NewRegistry(),
		core:  NewMetrics(),
		owned: make(map[string]prometheus.Collector),
	}
	r.prom.MustRegister(r.core.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the service-wide metrics recorded by resolvers and the broker
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.core
}

func ownerKey(service, name string) string {
	return service + "/" + name
}

// Register adds c under service/name. Registering the same key twice, or a
// collector whose descriptors clash with an existing one, is an invalid error.
func (r *MetricsRegistry) Register(service, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ownerKey(service, name)
	if _, taken := r.owned[key]; taken {
		return errors.WrapInvalid(fmt.Errorf("metric %s already registered by %s", name, service),
			"MetricsRegistry", "Register", "check ownership")
	}

	if err := r.prom.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", "register "+name)
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register "+name)
	}
	r.owned[key] = c
	return nil
}

// Unregister removes the collector registered under service/name and reports
// whether one was removed
func (r *MetricsRegistry) Unregister(service, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := ownerKey(service, name)
	c, ok := r.owned[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}
