package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockPublisher is an in-memory stand-in for natsclient.Client.Publish.
// Thread-safe for concurrent use from multiple goroutines.
type MockPublisher struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	err      error
}

// NewMockPublisher creates a new mock publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		messages: make(map[string][][]byte),
	}
}

// Publish records data under subject (matches natsclient.Client signature)
func (p *MockPublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return fmt.Errorf("mock publish to %s: %w", subject, p.err)
	}
	p.messages[subject] = append(p.messages[subject], data)
	return nil
}

// FailWith makes every later Publish return err; nil restores success
func (p *MockPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Messages returns a copy of the payloads published on subject
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([][]byte, len(p.messages[subject]))
	copy(out, p.messages[subject])
	return out
}

// Count returns the number of payloads published on subject
func (p *MockPublisher) Count(subject string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages[subject])
}

// Subjects returns every subject that received at least one payload
func (p *MockPublisher) Subjects() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.messages))
	for s := range p.messages {
		out = append(out, s)
	}
	return out
}

// WaitForMessageCount waits until subject has at least count payloads
func WaitForMessageCount(t *testing.T, p *MockPublisher, subject string, count int, timeout time.Duration) {
	t.Helper()

	WaitFor(t, timeout, func() bool { return p.Count(subject) >= count },
		"timeout waiting for %d messages on subject %s", count, subject)
}
