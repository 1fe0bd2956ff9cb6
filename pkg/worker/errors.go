package worker

import "errors"

// Errors returned by Pool. TrySubmit reports ErrQueueFull and ErrPoolStopped so
// callers can count rejected jobs instead of blocking.
var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrQueueFull          = errors.New("worker pool queue full")
	ErrNilHandler         = errors.New("worker pool handler is nil")
	ErrStopTimeout        = errors.New("worker pool did not drain before the stop timeout")
)
