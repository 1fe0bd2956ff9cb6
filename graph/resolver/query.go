package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/graph"
)

// Me returns the fixed viewer. There is no authentication; the viewer is a
// stub and does not come from the store.
func (r *Resolver) Me(_ context.Context) (*graph.User, error) {
	defer r.observe(KindQuery, "me", time.Now(), nil)

	return &graph.User{
		ID:    "1234",
		Name:  "Lex",
		Email: "lex@example.com",
		Age:   graph.IntPtr(42),
	}, nil
}

// Post returns the oldest post
func (r *Resolver) Post(ctx context.Context) (post *graph.Post, err error) {
	defer func(start time.Time) { r.observe(KindQuery, "post", start, err) }(time.Now())

	defer r.rlock(ctx)()

	post, ok := r.store.Posts.First()
	if !ok {
		return nil, errors.WrapNotFound(graph.ErrPostNotFound, "Resolver", "Post", "load first post")
	}
	return post, nil
}

// Users returns every user, or those whose name contains query ignoring case.
// An empty query matches everything.
func (r *Resolver) Users(ctx context.Context, query string) []*graph.User {
	defer r.observe(KindQuery, "users", time.Now(), nil)

	defer r.rlock(ctx)()

	if query == "" {
		return r.store.Users.All()
	}
	needle := strings.ToLower(query)
	return r.store.Users.Filter(func(u *graph.User) bool {
		return strings.Contains(strings.ToLower(u.Name), needle)
	})
}

// Posts returns every post, or those whose title or body contains query
// ignoring case. An empty query matches everything.
func (r *Resolver) Posts(ctx context.Context, query string) []*graph.Post {
	defer r.observe(KindQuery, "posts", time.Now(), nil)

	defer r.rlock(ctx)()

	if query == "" {
		return r.store.Posts.All()
	}
	needle := strings.ToLower(query)
	return r.store.Posts.Filter(func(p *graph.Post) bool {
		return strings.Contains(strings.ToLower(p.Title), needle) ||
			strings.Contains(strings.ToLower(p.Body), needle)
	})
}

// Comments returns every comment
func (r *Resolver) Comments(ctx context.Context) []*graph.Comment {
	defer r.observe(KindQuery, "comments", time.Now(), nil)

	defer r.rlock(ctx)()

	return r.store.Comments.All()
}
