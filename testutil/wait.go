package testutil

import (
	"testing"
	"time"
)

// DefaultTimeout bounds waits on asynchronous delivery in tests
const DefaultTimeout = 2 * time.Second

// WaitFor polls cond every 5ms until it holds, failing the test after timeout
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cond() {
			return
		}
		select {
		case <-deadline.C:
			t.Fatalf(format, args...)
			return
		case <-ticker.C:
		}
	}
}

// Receive reads one value from ch, failing the test on timeout or close
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()

	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed while waiting for value")
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timeout after %v waiting for value", timeout)
	}
	var zero T
	return zero
}

// AssertNoValue fails the test if ch yields a value within wait. A closed
// channel counts as no value.
func AssertNoValue[T any](t *testing.T, ch <-chan T, wait time.Duration) {
	t.Helper()

	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected value %+v", v)
		}
	case <-time.After(wait):
	}
}
