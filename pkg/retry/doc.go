// Package retry runs an operation with exponential backoff.
//
// semblog uses it to bring the NATS event mirror up in the background:
// the GraphQL server starts immediately and the mirror connects whenever
// the broker becomes reachable.
//
//	policy := retry.Forever(time.Second, 30*time.Second)
//	policy.OnRetry = func(attempt int, err error, next time.Duration) {
//	    logger.Warn("connect failed", "attempt", attempt, "error", err, "retry_in", next)
//	}
//	err := retry.Do(ctx, policy, func() error {
//	    return client.Connect(ctx)
//	})
//
// Errors marked with NonRetryable or classified as invalid by the errors
// package stop the loop at once. A negative MaxAttempts retries until the
// context is cancelled.
package retry
