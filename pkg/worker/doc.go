// Package worker provides a generic, bounded job pool.
//
// A Pool[T] runs a fixed number of workers that pull jobs of type T from a
// buffered queue and hand them to a handler. Jobs are processed in submission
// order per worker, so a pool with a single worker processes jobs strictly in
// the order they were queued. The pub/sub broker relies on this to keep event
// order per topic.
//
//	pool := worker.NewPool(1, 256, func(ctx context.Context, d delivery) error {
//		return fanOut(ctx, d)
//	}, worker.WithName[delivery]("pubsub_delivery"))
//
//	if err := pool.Start(ctx); err != nil {
//		return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Submit blocks until the job is queued, the caller's context ends, or the
// pool stops. TrySubmit never blocks and returns ErrQueueFull instead. Stop
// refuses new jobs and waits for the queued ones to finish.
//
// When a MetricsRegistry is supplied the pool registers queue depth,
// submitted/processed/failed/rejected counters and a handling-time histogram
// under the pool's name.
package worker
