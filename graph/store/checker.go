package store

import (
	"github.com/c360/semblog/graph"
)

// Checker evaluates referential and uniqueness constraints against a store.
// All methods are side-effect free.
type Checker struct {
	store *Store
}

// NewChecker creates a checker bound to s
func NewChecker(s *Store) *Checker {
	return &Checker{store: s}
}

// EmailAvailable reports whether no user has registered email
func (c *Checker) EmailAvailable(email string) bool {
	return !c.store.Users.Exists(func(u *graph.User) bool { return u.Email == email })
}

// UserExists reports whether a user with id exists
func (c *Checker) UserExists(id string) bool {
	_, ok := c.store.Users.Get(id)
	return ok
}

// PublishedPostExists reports whether a post with id exists and is published
func (c *Checker) PublishedPostExists(id string) bool {
	return c.store.Posts.Exists(func(p *graph.Post) bool { return p.ID == id && p.Published })
}
