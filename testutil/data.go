package testutil

import (
	"fmt"
	"sync/atomic"

	"github.com/c360/semblog/graph"
	"github.com/c360/semblog/graph/store"
)

// SequentialIDs returns an id generator producing prefix-1, prefix-2, ...
func SequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// Fixture builds a store snapshot with readable ids
type Fixture struct {
	snapshot store.Snapshot
}

// NewFixture starts an empty fixture
func NewFixture() *Fixture {
	return &Fixture{}
}

// User adds a user with an optional age (negative means absent)
func (f *Fixture) User(id, name, email string, age int) *Fixture {
	u := &graph.User{ID: id, Name: name, Email: email}
	if age >= 0 {
		u.Age = graph.IntPtr(age)
	}
	f.snapshot.Users = append(f.snapshot.Users, u)
	return f
}

// Post adds a post by author
func (f *Fixture) Post(id, title, body string, published bool, author string) *Fixture {
	f.snapshot.Posts = append(f.snapshot.Posts, &graph.Post{
		ID: id, Title: title, Body: body, Published: published, Author: author,
	})
	return f
}

// Comment adds a comment by author on post
func (f *Fixture) Comment(id, text, author, post string) *Fixture {
	f.snapshot.Comments = append(f.snapshot.Comments, &graph.Comment{
		ID: id, Text: text, Author: author, Post: post,
	})
	return f
}

// Snapshot returns the accumulated entities
func (f *Fixture) Snapshot() store.Snapshot {
	return f.snapshot
}

// Store returns a new store holding the accumulated entities
func (f *Fixture) Store() *store.Store {
	return store.FromSnapshot(f.snapshot)
}

// BlogFixture is a small consistent graph: three users, published and draft
// posts, and comments crossing authors.
//
//	u1 Alice   p1 (published) "Hello World"    c1 u2 on p1, c2 u1 on p1
//	u2 Bob     p2 (draft)     "Draft thoughts"
//	u3 Carla   p3 (published) "Go generics"    c3 u1 on p3, c4 u3 on p3
func BlogFixture() *Fixture {
	return NewFixture().
		User("u1", "Alice", "alice@example.com", 31).
		User("u2", "Bob", "bob@example.com", -1).
		User("u3", "Carla", "carla@example.com", 27).
		Post("p1", "Hello World", "First post on the blog", true, "u1").
		Post("p2", "Draft thoughts", "Not ready yet", false, "u2").
		Post("p3", "Go generics", "Type parameters in practice", true, "u3").
		Comment("c1", "Nice post", "u2", "p1").
		Comment("c2", "Thanks!", "u1", "p1").
		Comment("c3", "Great read", "u1", "p3").
		Comment("c4", "Follow-up coming", "u3", "p3")
}
