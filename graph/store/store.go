package store

import (
	"github.com/c360/semblog/graph"
)

// Store aggregates the users, posts and comments collections.
// Every component holding the same *Store observes mutations immediately.
type Store struct {
	Users    *Collection[*graph.User]
	Posts    *Collection[*graph.Post]
	Comments *Collection[*graph.Comment]
}

// Snapshot is the initial content of a store
type Snapshot struct {
	Users    []*graph.User    `json:"users"`
	Posts    []*graph.Post    `json:"posts"`
	Comments []*graph.Comment `json:"comments"`
}

// New creates an empty store
func New() *Store {
	return FromSnapshot(Snapshot{})
}

// FromSnapshot creates a store seeded with the snapshot's entities
func FromSnapshot(s Snapshot) *Store {
	return &Store{
		Users:    NewCollection(s.Users...),
		Posts:    NewCollection(s.Posts...),
		Comments: NewCollection(s.Comments...),
	}
}

// Snapshot copies the current collections
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Users:    s.Users.All(),
		Posts:    s.Posts.All(),
		Comments: s.Comments.All(),
	}
}

// Counts returns the size of each collection keyed by kind
func (s *Store) Counts() map[graph.Kind]int {
	return map[graph.Kind]int{
		graph.KindUser:    s.Users.Len(),
		graph.KindPost:    s.Posts.Len(),
		graph.KindComment: s.Comments.Len(),
	}
}

// Removal is a precomputed set of ids to delete across all kinds
type Removal struct {
	Users    map[string]struct{}
	Posts    map[string]struct{}
	Comments map[string]struct{}
}

// NewRemoval creates an empty removal set
func NewRemoval() Removal {
	return Removal{
		Users:    make(map[string]struct{}),
		Posts:    make(map[string]struct{}),
		Comments: make(map[string]struct{}),
	}
}

// Size returns the total number of ids in the set
func (r Removal) Size() int {
	return len(r.Users) + len(r.Posts) + len(r.Comments)
}

// Removed holds the entities deleted by RemoveBatch
type Removed struct {
	Users    []*graph.User
	Posts    []*graph.Post
	Comments []*graph.Comment
}

// RemoveBatch deletes every id in the removal set in one step
func (s *Store) RemoveBatch(r Removal) Removed {
	return Removed{
		Comments: s.Comments.RemoveIDs(r.Comments),
		Posts:    s.Posts.RemoveIDs(r.Posts),
		Users:    s.Users.RemoveIDs(r.Users),
	}
}
