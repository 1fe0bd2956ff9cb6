// Package resolver implements the blog graph operations: read queries,
// relationship projections, integrity-checked mutations and subscriptions.
//
// A Resolver owns no global state. It is built from explicit Dependencies so
// several independent instances can run side by side, for example one per
// test. Access to the shared store is serialized: mutations take an
// exclusive lock for the whole validate-then-apply step, reads and
// projections take a shared lock. ReadView holds one shared lock across all
// reads of a query so its projections agree with each other.
package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/graph"
	"github.com/c360/semblog/graph/store"
	"github.com/c360/semblog/health"
	"github.com/c360/semblog/metric"
	"github.com/c360/semblog/pubsub"
)

// Operation kinds used in logs and metrics
const (
	KindQuery        = "query"
	KindMutation     = "mutation"
	KindSubscription = "subscription"
)

// EventBus is the part of the broker the resolver needs
type EventBus interface {
	Publish(ctx context.Context, topic pubsub.Topic, ev pubsub.Event) error
	Subscribe(ctx context.Context, topic pubsub.Topic, buffer int) (*pubsub.Subscription, error)
}

// Dependencies are the collaborators of a Resolver
type Dependencies struct {
	// Store is required
	Store *store.Store
	// Events is required
	Events EventBus
	// Metrics is optional
	Metrics *metric.MetricsRegistry
	// Logger defaults to slog.Default()
	Logger *slog.Logger
	// NewID generates entity ids; defaults to random UUIDs
	NewID func() string
	// SubscriptionBuffer is the per-subscription event buffer; zero uses
	// the broker default
	SubscriptionBuffer int
}

// Resolver answers graph operations against one store
type Resolver struct {
	mu      sync.RWMutex
	store   *store.Store
	checker *store.Checker
	events  EventBus
	metrics *metric.Metrics
	logger  *slog.Logger
	newID   func() string
	buffer  int
}

// New creates a Resolver
func New(deps Dependencies) (*Resolver, error) {
	if deps.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Resolver", "New", "store dependency")
	}
	if deps.Events == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Resolver", "New", "event bus dependency")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	r := &Resolver{
		store:   deps.Store,
		checker: store.NewChecker(deps.Store),
		events:  deps.Events,
		logger:  logger.With("component", "resolver"),
		newID:   newID,
		buffer:  deps.SubscriptionBuffer,
	}
	if deps.Metrics != nil {
		r.metrics = deps.Metrics.CoreMetrics()
		r.recordCounts()
	}
	return r, nil
}

type readViewKey struct{}

// ReadView pins the store for every read made with the returned context until
// release is called: mutations wait, so a query resolving several
// relationships never observes half of a cascading delete. Mutations must not
// be called with the returned context.
func (r *Resolver) ReadView(ctx context.Context) (view context.Context, release func()) {
	if ctx.Value(readViewKey{}) == r {
		return ctx, func() {}
	}
	r.mu.RLock()
	var once sync.Once
	return context.WithValue(ctx, readViewKey{}, r), func() { once.Do(r.mu.RUnlock) }
}

// rlock takes the shared lock unless ctx already holds a ReadView
func (r *Resolver) rlock(ctx context.Context) (unlock func()) {
	if ctx.Value(readViewKey{}) == r {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

// observe records the outcome of one operation
func (r *Resolver) observe(kind, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		class := errors.Classify(err)
		r.logger.Debug("Operation failed",
			"kind", kind, "operation", operation, "class", class.String(), "error", err)
		if r.metrics != nil {
			r.metrics.RecordError(operation, class.String())
		}
	}
	if r.metrics != nil {
		r.metrics.RecordOperation(kind, operation, status, time.Since(start))
	}
}

// recordCounts refreshes the entity gauges; callers hold the lock
func (r *Resolver) recordCounts() {
	if r.metrics == nil {
		return
	}
	for kind, n := range r.store.Counts() {
		r.metrics.RecordEntityCount(kind.String(), n)
	}
}

// publish emits a CREATED event. Callers hold the write lock so sequence
// numbers follow commit order; the bus only queues, it never waits on
// listeners. Delivery is best effort: a failure is logged and counted but the
// mutation has already been applied.
func (r *Resolver) publish(ctx context.Context, operation string, topic pubsub.Topic, payload any) {
	ev := pubsub.Event{Mutation: graph.MutationCreated, Payload: payload}
	if err := r.events.Publish(ctx, topic, ev); err != nil {
		r.logger.Warn("Failed to publish event", "operation", operation, "topic", topic.String(), "error", err)
		if r.metrics != nil {
			r.metrics.RecordError(operation+".publish", errors.Classify(err).String())
		}
	}
}

// Health reports the store sizes
func (r *Resolver) Health() health.Status {
	r.mu.RLock()
	counts := r.store.Counts()
	r.mu.RUnlock()

	status := health.NewHealthy("store", "In-memory store available")
	for kind, n := range counts {
		status = status.WithDetail(kind.String()+"s", n)
	}
	return status
}
