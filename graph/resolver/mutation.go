package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/graph"
	"github.com/c360/semblog/graph/store"
	"github.com/c360/semblog/pubsub"
)

// CreateUserInput holds the createUser arguments
type CreateUserInput struct {
	Name  string
	Email string
	Age   *int
}

// CreatePostInput holds the createPost arguments
type CreatePostInput struct {
	Title     string
	Body      string
	Published bool
	Author    string
}

// CreateCommentInput holds the createComment arguments
type CreateCommentInput struct {
	Text   string
	Author string
	Post   string
}

// CreateUser registers a user. The email must not belong to another user.
func (r *Resolver) CreateUser(_ context.Context, in CreateUserInput) (user *graph.User, err error) {
	defer func(start time.Time) { r.observe(KindMutation, "createUser", start, err) }(time.Now())

	if strings.TrimSpace(in.Name) == "" {
		return nil, errors.WrapInvalid(graph.ErrEmptyName, "Resolver", "CreateUser", "validate name")
	}
	if in.Age != nil && *in.Age < 0 {
		return nil, errors.WrapInvalid(graph.ErrNegativeAge, "Resolver", "CreateUser", "validate age")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.checker.EmailAvailable(in.Email) {
		return nil, errors.WrapConflict(graph.ErrEmailTaken, "Resolver", "CreateUser", "check email")
	}

	user = &graph.User{
		ID:    r.newID(),
		Name:  in.Name,
		Email: in.Email,
	}
	if in.Age != nil {
		user.Age = graph.IntPtr(*in.Age)
	}
	r.store.Users.Insert(user)
	r.recordCounts()

	r.logger.Debug("User created", "user_id", user.ID)
	return user, nil
}

// DeleteUser removes a user together with everything hanging off it: the
// user's posts, the comments on those posts and the user's own comments on
// other posts. The removal set is computed first and applied in one batch,
// so no reader can observe a partial cascade.
func (r *Resolver) DeleteUser(_ context.Context, id string) (user *graph.User, err error) {
	defer func(start time.Time) { r.observe(KindMutation, "deleteUser", start, err) }(time.Now())

	if strings.TrimSpace(id) == "" {
		return nil, errors.WrapInvalid(graph.ErrInvalidEntityID, "Resolver", "DeleteUser", "validate id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.store.Users.Get(id)
	if !ok {
		return nil, errors.WrapNotFound(graph.ErrUserNotFound, "Resolver", "DeleteUser", "find user")
	}

	plan := r.planUserRemoval(user.ID)
	removed := r.store.RemoveBatch(plan)
	r.recordCounts()
	if r.metrics != nil {
		r.metrics.RecordCascade(graph.KindPost.String(), len(removed.Posts))
		r.metrics.RecordCascade(graph.KindComment.String(), len(removed.Comments))
	}

	r.logger.Debug("User deleted",
		"user_id", user.ID, "posts", len(removed.Posts), "comments", len(removed.Comments))
	return user, nil
}

// planUserRemoval computes the cascade for deleting userID; callers hold the lock
func (r *Resolver) planUserRemoval(userID string) store.Removal {
	plan := store.NewRemoval()
	plan.Users[userID] = struct{}{}

	for _, p := range r.store.Posts.Filter(func(p *graph.Post) bool { return p.Author == userID }) {
		plan.Posts[p.ID] = struct{}{}
	}
	for _, c := range r.store.Comments.All() {
		_, onRemovedPost := plan.Posts[c.Post]
		if onRemovedPost || c.Author == userID {
			plan.Comments[c.ID] = struct{}{}
		}
	}
	return plan
}

// CreatePost stores a post by an existing user and announces it on the
// posts topic, whether or not it is published.
func (r *Resolver) CreatePost(ctx context.Context, in CreatePostInput) (post *graph.Post, err error) {
	defer func(start time.Time) { r.observe(KindMutation, "createPost", start, err) }(time.Now())

	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.WrapInvalid(graph.ErrEmptyTitle, "Resolver", "CreatePost", "validate title")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.checker.UserExists(in.Author) {
		return nil, errors.WrapNotFound(graph.ErrUserNotFound, "Resolver", "CreatePost", "check author")
	}

	post = &graph.Post{
		ID:        r.newID(),
		Title:     in.Title,
		Body:      in.Body,
		Published: in.Published,
		Author:    in.Author,
	}
	r.store.Posts.Insert(post)
	r.recordCounts()
	r.publish(ctx, "createPost", pubsub.PostsTopic(), post)

	r.logger.Debug("Post created", "post_id", post.ID, "published", post.Published)
	return post, nil
}

// CreateComment stores a comment by an existing user on a published post and
// announces it on that post's comments topic. A missing author is reported
// before a missing or unpublished post.
func (r *Resolver) CreateComment(ctx context.Context, in CreateCommentInput) (comment *graph.Comment, err error) {
	defer func(start time.Time) { r.observe(KindMutation, "createComment", start, err) }(time.Now())

	if strings.TrimSpace(in.Text) == "" {
		return nil, errors.WrapInvalid(graph.ErrEmptyText, "Resolver", "CreateComment", "validate text")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.checker.UserExists(in.Author) {
		return nil, errors.WrapNotFound(graph.ErrUserNotFound, "Resolver", "CreateComment", "check author")
	}
	if !r.checker.PublishedPostExists(in.Post) {
		return nil, errors.WrapNotFound(graph.ErrPostNotFound, "Resolver", "CreateComment", "check post")
	}

	comment = &graph.Comment{
		ID:     r.newID(),
		Text:   in.Text,
		Author: in.Author,
		Post:   in.Post,
	}
	r.store.Comments.Insert(comment)
	r.recordCounts()
	r.publish(ctx, "createComment", pubsub.CommentsTopic(in.Post), comment)

	r.logger.Debug("Comment created", "comment_id", comment.ID, "post_id", comment.Post)
	return comment, nil
}
