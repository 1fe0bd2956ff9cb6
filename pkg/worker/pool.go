package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semblog/metric"
)

// Handler processes one job. A returned error is counted and logged; it does
// not stop the pool.
type Handler[T any] func(ctx context.Context, job T) error

type poolState int

const (
	stateIdle poolState = iota
	stateRunning
	stateStopped
)

// Pool is a bounded pool of workers processing jobs of type T
type Pool[T any] struct {
	name      string
	workers   int
	queueSize int
	handler   Handler[T]
	logger    *slog.Logger

	queue chan T
	quit  chan struct{}
	wg    sync.WaitGroup

	// mu guards state; Submit holds it shared while queueing so Stop cannot
	// close quit underneath a pending send.
	mu    sync.RWMutex
	state poolState

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	registry   metric.Registrar
	metrics    *poolMetrics
	unregister sync.Once
}

type poolMetrics struct {
	queueDepth   prometheus.Gauge
	submitted    prometheus.Counter
	processed    prometheus.Counter
	failed       prometheus.Counter
	rejected     prometheus.Counter
	handlingTime *prometheus.HistogramVec
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithName sets the pool name used in logs and metric names
func WithName[T any](name string) Option[T] {
	return func(p *Pool[T]) {
		p.name = name
	}
}

// WithLogger sets the logger used for handler failures
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(p *Pool[T]) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetricsRegistry registers pool metrics with registry. They are removed
// again when the pool stops.
func WithMetricsRegistry[T any](registry metric.Registrar) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
	}
}

// NewPool creates a pool. Non-positive sizes fall back to one worker and a
// queue of 100 jobs.
func NewPool[T any](workers, queueSize int, handler Handler[T], opts ...Option[T]) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	p := &Pool[T]{
		name:      "worker_pool",
		workers:   workers,
		queueSize: queueSize,
		handler:   handler,
		logger:    slog.Default(),
		queue:     make(chan T, queueSize),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "worker-pool", "pool", p.name)

	if p.registry != nil {
		p.metrics = p.registerMetrics()
	}
	return p, nil
}

func (p *Pool[T]) registerMetrics() *poolMetrics {
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: p.name + "_queue_depth",
			Help: "Jobs waiting in the worker pool queue",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.name + "_submitted_total",
			Help: "Jobs accepted by the worker pool",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.name + "_processed_total",
			Help: "Jobs handled by the worker pool",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.name + "_failed_total",
			Help: "Jobs whose handler returned an error",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.name + "_rejected_total",
			Help: "Jobs refused because the queue was full or the pool stopped",
		}),
		handlingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    p.name + "_handling_duration_seconds",
			Help:    "Time spent handling jobs",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"status"}),
	}

	for name, c := range m.collectors(p.name) {
		if err := p.registry.Register(poolMetricsService, name, c); err != nil {
			p.logger.Warn("Failed to register pool metric", "metric", name, "error", err)
		}
	}
	return m
}

const poolMetricsService = "worker_pool"

func (m *poolMetrics) collectors(prefix string) map[string]prometheus.Collector {
	return map[string]prometheus.Collector{
		prefix + "_queue_depth":               m.queueDepth,
		prefix + "_submitted_total":           m.submitted,
		prefix + "_processed_total":           m.processed,
		prefix + "_failed_total":              m.failed,
		prefix + "_rejected_total":            m.rejected,
		prefix + "_handling_duration_seconds": m.handlingTime,
	}
}

func (p *Pool[T]) unregisterMetrics() {
	if p.metrics == nil {
		return
	}
	p.unregister.Do(func() {
		for name := range p.metrics.collectors(p.name) {
			p.registry.Unregister(poolMetricsService, name)
		}
	})
}

// Start launches the workers. Jobs are handled with ctx; cancelling it makes
// workers exit without draining.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateRunning:
		return ErrPoolAlreadyStarted
	case stateStopped:
		return ErrPoolStopped
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.state = stateRunning
	return nil
}

// Submit queues a job, waiting for room if the queue is full
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.checkRunning(); err != nil {
		return err
	}

	select {
	case p.queue <- job:
		p.accepted()
		return nil
	case <-ctx.Done():
		p.reject()
		return ctx.Err()
	}
}

// TrySubmit queues a job without waiting; it returns ErrQueueFull when the
// queue has no room.
func (p *Pool[T]) TrySubmit(job T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.checkRunning(); err != nil {
		return err
	}

	select {
	case p.queue <- job:
		p.accepted()
		return nil
	default:
		p.reject()
		return ErrQueueFull
	}
}

func (p *Pool[T]) checkRunning() error {
	switch p.state {
	case stateIdle:
		return ErrPoolNotStarted
	case stateStopped:
		p.reject()
		return ErrPoolStopped
	}
	return nil
}

func (p *Pool[T]) accepted() {
	p.submitted.Add(1)
	if p.metrics != nil {
		p.metrics.submitted.Inc()
		p.metrics.queueDepth.Set(float64(len(p.queue)))
	}
}

func (p *Pool[T]) reject() {
	p.rejected.Add(1)
	if p.metrics != nil {
		p.metrics.rejected.Inc()
	}
}

// Stop refuses new jobs and waits up to timeout for queued jobs to finish
func (p *Pool[T]) Stop(timeout time.Duration) error {
	defer p.unregisterMetrics()

	p.mu.Lock()
	if p.state != stateRunning {
		p.state = stateStopped
		p.mu.Unlock()
		return nil
	}
	p.state = stateStopped
	close(p.quit)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns a snapshot of the pool counters
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Rejected:   p.rejected.Load(),
	}
}

// Stats represents worker pool counters
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Rejected   int64 `json:"rejected"`
}

func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.handle(ctx, job)
		case <-p.quit:
			p.drain(ctx)
			return
		}
	}
}

// drain handles whatever is still queued after Stop
func (p *Pool[T]) drain(ctx context.Context) {
	for {
		select {
		case job := <-p.queue:
			p.handle(ctx, job)
		default:
			return
		}
	}
}

func (p *Pool[T]) handle(ctx context.Context, job T) {
	start := time.Now()
	err := p.handler(ctx, job)
	elapsed := time.Since(start)

	p.processed.Add(1)
	status := "success"
	if err != nil {
		status = "error"
		p.failed.Add(1)
		p.logger.Debug("Job failed", "error", err)
	}

	if p.metrics != nil {
		p.metrics.processed.Inc()
		if err != nil {
			p.metrics.failed.Inc()
		}
		p.metrics.queueDepth.Set(float64(len(p.queue)))
		p.metrics.handlingTime.WithLabelValues(status).Observe(elapsed.Seconds())
	}
}
