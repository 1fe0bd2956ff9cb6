package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/health"
	"github.com/c360/semblog/metric"
	"github.com/c360/semblog/pkg/worker"
)

// Config holds the broker configuration
type Config struct {
	// Workers is the number of delivery workers. One worker keeps events in
	// publish order for every listener.
	Workers int `json:"workers" yaml:"workers"`
	// QueueSize bounds events waiting for delivery
	QueueSize int `json:"queue_size" yaml:"queue_size"`
	// BufferSize is the default per-subscription channel buffer
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
	// StopTimeout bounds how long Close waits for queued deliveries
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout"`
}

// DefaultConfig returns the default broker configuration
func DefaultConfig() Config {
	return Config{
		Workers:     1,
		QueueSize:   256,
		BufferSize:  16,
		StopTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration and fills zero values with defaults
func (c *Config) Validate() error {
	if c.Workers < 0 || c.QueueSize < 0 || c.BufferSize < 0 || c.StopTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "negative broker setting")
	}
	def := DefaultConfig()
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize == 0 {
		c.QueueSize = def.QueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = def.StopTimeout
	}
	return nil
}

// Mirror receives every delivered event after local fan-out
type Mirror interface {
	Mirror(ctx context.Context, ev Event) error
}

// Option configures a Broker
type Option func(*Broker)

// WithLogger sets the broker logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records broker and delivery pool metrics in registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Broker) {
		b.registry = registry
	}
}

// WithMirror forwards delivered events to m
func WithMirror(m Mirror) Option {
	return func(b *Broker) {
		b.mirror = m
	}
}

// Broker routes events from publishers to subscriptions by topic.
// Publish never blocks: it records the recipients registered at that moment
// and queues the event for a worker pool that performs the fan-out with
// non-blocking sends. A full queue or a slow listener loses events instead of
// stalling publishers. The mirror runs on its own pool so a slow mirror
// cannot delay local delivery.
type Broker struct {
	cfg      Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	mirror   Mirror
	pool     *worker.Pool[delivery]
	mirrors  *worker.Pool[Event]

	mu        sync.RWMutex
	listeners map[Topic]map[string]*Subscription
	closed    bool

	seq           uint64
	published     atomic.Uint64
	rejected      atomic.Uint64
	delivered     atomic.Uint64
	dropped       atomic.Uint64
	mirrored      atomic.Uint64
	mirrorFailed  atomic.Uint64
	mirrorDropped atomic.Uint64
}

// delivery is one queued event and the listeners it was published to
type delivery struct {
	ev   Event
	subs []*Subscription
}

// NewBroker creates a broker. Call Start before publishing.
func NewBroker(cfg Config, opts ...Option) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Broker{
		cfg:       cfg,
		logger:    slog.Default(),
		listeners: make(map[Topic]map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "pubsub")
	if b.registry != nil {
		b.metrics = b.registry.CoreMetrics()
	}

	pool, err := worker.NewPool(cfg.Workers, cfg.QueueSize, b.deliver, poolOptions[delivery](b, "semblog_delivery")...)
	if err != nil {
		return nil, errors.WrapFatal(err, "Broker", "NewBroker", "create delivery pool")
	}
	b.pool = pool

	if b.mirror != nil {
		mirrors, err := worker.NewPool(1, cfg.QueueSize, b.forward, poolOptions[Event](b, "semblog_mirror")...)
		if err != nil {
			return nil, errors.WrapFatal(err, "Broker", "NewBroker", "create mirror pool")
		}
		b.mirrors = mirrors
	}
	return b, nil
}

func poolOptions[T any](b *Broker, name string) []worker.Option[T] {
	opts := []worker.Option[T]{
		worker.WithName[T](name),
		worker.WithLogger[T](b.logger),
	}
	if b.registry != nil {
		opts = append(opts, worker.WithMetricsRegistry[T](b.registry))
	}
	return opts
}

// Start launches the delivery workers and, when a mirror is set, the mirror worker
func (b *Broker) Start(ctx context.Context) error {
	if err := b.pool.Start(ctx); err != nil {
		return errors.WrapInvalid(err, "Broker", "Start", "start delivery pool")
	}
	if b.mirrors != nil {
		if err := b.mirrors.Start(ctx); err != nil {
			return errors.WrapInvalid(err, "Broker", "Start", "start mirror pool")
		}
	}
	b.logger.Debug("Broker started", "workers", b.cfg.Workers, "queue_size", b.cfg.QueueSize,
		"mirror", b.mirror != nil)
	return nil
}

// Subscribe registers a listener on topic. The listener receives events
// published after Subscribe returns, never earlier ones. The subscription
// ends when ctx is cancelled or Close is called; afterwards no event is
// delivered to it. A non-positive buffer uses the configured default.
func (b *Broker) Subscribe(ctx context.Context, topic Topic, buffer int) (*Subscription, error) {
	if err := topic.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Broker", "Subscribe", "validate topic")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "Broker", "Subscribe", "register listener")
	}
	if buffer <= 0 {
		buffer = b.cfg.BufferSize
	}

	sub := newSubscription(b, topic, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.WrapTransient(ErrBrokerClosed, "Broker", "Subscribe", "register listener")
	}
	subs, ok := b.listeners[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		b.listeners[topic] = subs
	}
	subs[sub.id] = sub
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.RecordSubscription(string(topic.Kind), 1)
	}
	b.logger.Debug("Subscription registered", "topic", topic.String(), "subscription", sub.id)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

func (b *Broker) unregister(sub *Subscription) {
	b.mu.Lock()
	subs := b.listeners[sub.topic]
	_, found := subs[sub.id]
	if found {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.listeners, sub.topic)
		}
	}
	b.mu.Unlock()

	if found {
		if b.metrics != nil {
			b.metrics.RecordSubscription(string(sub.topic.Kind), -1)
		}
		b.logger.Debug("Subscription released", "topic", sub.topic.String(), "subscription", sub.id)
	}
}

// Publish queues ev for the listeners currently registered on topic and
// returns without waiting. Sequence numbers follow queue order. When the
// delivery queue is full the event is dropped for every recipient and a
// transient error is returned.
func (b *Broker) Publish(_ context.Context, topic Topic, ev Event) error {
	if err := topic.Validate(); err != nil {
		return errors.WrapInvalid(err, "Broker", "Publish", "validate topic")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.WrapTransient(ErrBrokerClosed, "Broker", "Publish", "queue event")
	}

	ev.Topic = topic
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	job := delivery{subs: make([]*Subscription, 0, len(b.listeners[topic]))}
	for _, sub := range b.listeners[topic] {
		job.subs = append(job.subs, sub)
	}
	ev.Sequence = b.seq + 1
	job.ev = ev

	err := b.pool.TrySubmit(job)
	if err == nil {
		b.seq++
	}
	b.mu.Unlock()

	if err != nil {
		b.rejected.Add(1)
		if b.metrics != nil {
			b.metrics.RecordEventDropped(string(topic.Kind))
		}
		b.logger.Warn("Delivery queue full, event dropped",
			"topic", topic.String(), "recipients", len(job.subs))
		return errors.WrapTransient(err, "Broker", "Publish", fmt.Sprintf("queue event for %s", topic))
	}

	b.published.Add(1)
	if b.metrics != nil {
		b.metrics.RecordEventPublished(string(topic.Kind))
	}
	b.queueMirror(ev)
	return nil
}

// queueMirror hands ev to the mirror pool; a full mirror queue skips it
func (b *Broker) queueMirror(ev Event) {
	if b.mirrors == nil {
		return
	}
	if err := b.mirrors.TrySubmit(ev); err != nil {
		b.mirrorDropped.Add(1)
		if b.metrics != nil {
			b.metrics.RecordMirror(err)
		}
		b.logger.Warn("Mirror queue full, event not mirrored",
			"topic", ev.Topic.String(), "sequence", ev.Sequence, "error", err)
	}
}

// deliver runs on the delivery pool
func (b *Broker) deliver(_ context.Context, job delivery) error {
	ev := job.ev
	for _, sub := range job.subs {
		switch sub.offer(ev) {
		case offerDelivered:
			b.delivered.Add(1)
		case offerDropped:
			b.dropped.Add(1)
			if b.metrics != nil {
				b.metrics.RecordEventDropped(string(ev.Topic.Kind))
			}
			b.logger.Warn("Listener buffer full, event dropped",
				"topic", ev.Topic.String(), "subscription", sub.id, "sequence", ev.Sequence)
		}
	}
	return nil
}

// forward runs on the mirror pool
func (b *Broker) forward(ctx context.Context, ev Event) error {
	err := b.mirror.Mirror(ctx, ev)
	if b.metrics != nil {
		b.metrics.RecordMirror(err)
	}
	if err != nil {
		b.mirrorFailed.Add(1)
		b.logger.Warn("Failed to mirror event", "topic", ev.Topic.String(), "sequence", ev.Sequence, "error", err)
		return err
	}
	b.mirrored.Add(1)
	return nil
}

// Close stops accepting events, delivers what is already queued, then ends
// every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	stopErr := b.pool.Stop(b.cfg.StopTimeout)
	if b.mirrors != nil {
		if err := b.mirrors.Stop(b.cfg.StopTimeout); err != nil && stopErr == nil {
			stopErr = err
		}
	}

	b.mu.RLock()
	var subs []*Subscription
	for _, topicSubs := range b.listeners {
		for _, sub := range topicSubs {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.Close()
	}

	if stopErr != nil {
		return errors.WrapTransient(stopErr, "Broker", "Close", "drain delivery queue")
	}
	b.logger.Debug("Broker closed", "published", b.published.Load())
	return nil
}

// SubscriberCount returns the number of live subscriptions on topic
func (b *Broker) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[topic])
}

// Stats holds broker counters
type Stats struct {
	Topics        int          `json:"topics"`
	Subscriptions int          `json:"subscriptions"`
	Published     uint64       `json:"published"`
	Rejected      uint64       `json:"rejected"`
	Delivered     uint64       `json:"delivered"`
	Dropped       uint64       `json:"dropped"`
	Mirrored      uint64       `json:"mirrored"`
	MirrorFailed  uint64       `json:"mirror_failed"`
	MirrorDropped uint64       `json:"mirror_dropped"`
	Queue         worker.Stats `json:"queue"`
	MirrorQueue   worker.Stats `json:"mirror_queue"`
}

// Stats returns a snapshot of the broker counters
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	topics := len(b.listeners)
	subs := 0
	for _, s := range b.listeners {
		subs += len(s)
	}
	b.mu.RUnlock()

	stats := Stats{
		Topics:        topics,
		Subscriptions: subs,
		Published:     b.published.Load(),
		Rejected:      b.rejected.Load(),
		Delivered:     b.delivered.Load(),
		Dropped:       b.dropped.Load(),
		Mirrored:      b.mirrored.Load(),
		MirrorFailed:  b.mirrorFailed.Load(),
		MirrorDropped: b.mirrorDropped.Load(),
		Queue:         b.pool.Stats(),
	}
	if b.mirrors != nil {
		stats.MirrorQueue = b.mirrors.Stats()
	}
	return stats
}

// Health reports the broker as unhealthy once closed
func (b *Broker) Health() health.Status {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return health.NewUnhealthy("pubsub", "Broker closed")
	}
	stats := b.Stats()
	return health.NewHealthy("pubsub", "Delivering events").
		WithDetail("subscriptions", stats.Subscriptions).
		WithDetail("queue_depth", stats.Queue.QueueDepth).
		WithDetail("dropped", stats.Dropped+stats.Rejected)
}
