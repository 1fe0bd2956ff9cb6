// Package natsclient wraps a single NATS connection for publishing.
//
// The client adds a small circuit breaker on top of nats.go: consecutive
// failed Connect calls open the circuit and further attempts are refused
// until a growing backoff has elapsed. Connection state is reported through
// Status and Health so the service can degrade instead of failing when the
// broker is unreachable.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithLogger(logger),
//		natsclient.WithTimeout(2*time.Second),
//	)
//	if err := client.Connect(ctx); err != nil {
//		logger.Warn("NATS unavailable", "error", err)
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "semblog.events.posts", payload)
package natsclient
