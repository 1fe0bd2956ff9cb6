package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is one registered listener. Events arrive on Events until the
// subscription is closed, either explicitly or by cancelling the context it
// was created with.
type Subscription struct {
	id     string
	topic  Topic
	ch     chan Event
	done   chan struct{}
	broker *Broker

	mu      sync.Mutex
	closed  bool
	dropped uint64

	closeOnce sync.Once
}

func newSubscription(b *Broker, topic Topic, buffer int) *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		topic:  topic,
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
		broker: b,
	}
}

// ID returns the unique subscription id
func (s *Subscription) ID() string {
	return s.id
}

// Topic returns the subscribed topic
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Events returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Done is closed when the subscription ends
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many events were discarded because the buffer was full
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unregisters the subscription and closes its channel. Undelivered
// buffered events are discarded. Close is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.broker.unregister(s)

		s.mu.Lock()
		s.closed = true
	drain:
		for {
			select {
			case <-s.ch:
			default:
				break drain
			}
		}
		close(s.ch)
		close(s.done)
		s.mu.Unlock()
	})
}

type offerResult int

const (
	offerDelivered offerResult = iota
	offerDropped
	offerClosed
)

// offer hands ev to the listener without blocking
func (s *Subscription) offer(ev Event) offerResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return offerClosed
	}
	select {
	case s.ch <- ev:
		return offerDelivered
	default:
		s.dropped++
		return offerDropped
	}
}
