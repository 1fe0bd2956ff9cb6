package resolver

import (
	"context"
	"time"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/graph"
	"github.com/c360/semblog/pubsub"
)

// SubscribeComments streams comments created on postID from now on. The post
// must exist and be published when the subscription starts. Cancelling ctx
// ends the stream.
func (r *Resolver) SubscribeComments(ctx context.Context, postID string) (sub *pubsub.Subscription, err error) {
	defer func(start time.Time) { r.observe(KindSubscription, "comment", start, err) }(time.Now())

	// Hold the read lock across registration so no comment created after the
	// check can be missed.
	defer r.rlock(ctx)()

	if !r.checker.PublishedPostExists(postID) {
		return nil, errors.WrapNotFound(graph.ErrPostNotFound, "Resolver", "SubscribeComments", "check post")
	}

	sub, err = r.events.Subscribe(ctx, pubsub.CommentsTopic(postID), r.buffer)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "SubscribeComments", "subscribe")
	}
	return sub, nil
}

// SubscribePosts streams every post created from now on
func (r *Resolver) SubscribePosts(ctx context.Context) (sub *pubsub.Subscription, err error) {
	defer func(start time.Time) { r.observe(KindSubscription, "post", start, err) }(time.Now())

	sub, err = r.events.Subscribe(ctx, pubsub.PostsTopic(), r.buffer)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "SubscribePosts", "subscribe")
	}
	return sub, nil
}
