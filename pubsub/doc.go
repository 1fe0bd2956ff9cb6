// Package pubsub is the event publisher behind GraphQL subscriptions.
//
// Topics are typed keys: CommentsTopic(postID) carries comments created on
// one post and PostsTopic carries every created post. A Broker keeps a
// registry of listeners per topic:
//
//	sub, err := broker.Subscribe(ctx, pubsub.CommentsTopic(postID), 0)
//	if err != nil {
//		return err
//	}
//	for ev := range sub.Events() {
//		comment, _ := ev.Comment()
//		...
//	}
//
// Publish records the listeners registered at that moment, stamps the event
// with a sequence number and queues it on a worker pool without waiting. A
// listener never sees events published before it subscribed. With the
// default single worker every listener sees events in publish order. When
// the queue is full the event is dropped and Publish reports it. Each
// listener has a bounded buffer; when it is full the event is dropped for
// that listener and counted.
//
// Cancelling the subscription context (or calling Close) removes the
// listener from the registry before its channel is closed, so nothing is
// delivered after cancellation.
//
// An optional Mirror, such as NATSMirror, receives every queued event on a
// separate worker, so a slow mirror never holds up local listeners. Mirror
// failures are logged and counted but never reach the publisher.
package pubsub
