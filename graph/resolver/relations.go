package resolver

import (
	"context"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/graph"
)

// Relationship projections re-filter the store on every call. Nothing is
// cached, so a projection always reflects the latest mutations, or the state
// pinned by ReadView when ctx carries one.

// UserPosts returns the posts written by user
func (r *Resolver) UserPosts(ctx context.Context, user *graph.User) []*graph.Post {
	defer r.rlock(ctx)()

	return r.store.Posts.Filter(func(p *graph.Post) bool { return p.Author == user.ID })
}

// UserComments returns the comments written by user
func (r *Resolver) UserComments(ctx context.Context, user *graph.User) []*graph.Comment {
	defer r.rlock(ctx)()

	return r.store.Comments.Filter(func(c *graph.Comment) bool { return c.Author == user.ID })
}

// PostAuthor returns the user who wrote post
func (r *Resolver) PostAuthor(ctx context.Context, post *graph.Post) (*graph.User, error) {
	defer r.rlock(ctx)()

	user, ok := r.store.Users.Get(post.Author)
	if !ok {
		return nil, errors.WrapNotFound(graph.ErrUserNotFound, "Resolver", "PostAuthor", "resolve author "+post.Author)
	}
	return user, nil
}

// PostComments returns the comments attached to post
func (r *Resolver) PostComments(ctx context.Context, post *graph.Post) []*graph.Comment {
	defer r.rlock(ctx)()

	return r.store.Comments.Filter(func(c *graph.Comment) bool { return c.Post == post.ID })
}

// CommentAuthor returns the user who wrote comment
func (r *Resolver) CommentAuthor(ctx context.Context, comment *graph.Comment) (*graph.User, error) {
	defer r.rlock(ctx)()

	user, ok := r.store.Users.Get(comment.Author)
	if !ok {
		return nil, errors.WrapNotFound(graph.ErrUserNotFound, "Resolver", "CommentAuthor",
			"resolve author "+comment.Author)
	}
	return user, nil
}

// CommentPost returns the post comment belongs to
func (r *Resolver) CommentPost(ctx context.Context, comment *graph.Comment) (*graph.Post, error) {
	defer r.rlock(ctx)()

	post, ok := r.store.Posts.Get(comment.Post)
	if !ok {
		return nil, errors.WrapNotFound(graph.ErrPostNotFound, "Resolver", "CommentPost", "resolve post "+comment.Post)
	}
	return post, nil
}
