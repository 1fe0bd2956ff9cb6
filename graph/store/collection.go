// Package store holds the three in-memory entity collections and the
// integrity predicates evaluated against them.
//
// The store is a plain data container: it performs no validation and no
// locking. A single owner (the resolver) serializes access and decides when a
// mutation is allowed.
package store

// Entity is anything stored in a Collection
type Entity interface {
	EntityID() string
}

// Collection is an insertion-ordered set of entities of one kind
type Collection[T Entity] struct {
	items []T
}

// NewCollection creates a collection holding the given entities in order
func NewCollection[T Entity](items ...T) *Collection[T] {
	c := &Collection[T]{items: make([]T, 0, len(items))}
	c.items = append(c.items, items...)
	return c
}

// Len returns the number of entities
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// All returns a copy of every entity in insertion order
func (c *Collection[T]) All() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// First returns the oldest entity
func (c *Collection[T]) First() (T, bool) {
	var zero T
	if len(c.items) == 0 {
		return zero, false
	}
	return c.items[0], true
}

// Find returns the first entity matching pred
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	for _, item := range c.items {
		if pred(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Get returns the entity with the given id
func (c *Collection[T]) Get(id string) (T, bool) {
	return c.Find(func(item T) bool { return item.EntityID() == id })
}

// Exists reports whether any entity matches pred
func (c *Collection[T]) Exists(pred func(T) bool) bool {
	_, ok := c.Find(pred)
	return ok
}

// Filter returns every entity matching pred, in insertion order
func (c *Collection[T]) Filter(pred func(T) bool) []T {
	out := make([]T, 0)
	for _, item := range c.items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Insert appends an entity
func (c *Collection[T]) Insert(item T) {
	c.items = append(c.items, item)
}

// Remove deletes every entity matching pred and returns them in insertion order
func (c *Collection[T]) Remove(pred func(T) bool) []T {
	removed := make([]T, 0)
	kept := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if pred(item) {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	return removed
}

// RemoveIDs deletes the entities whose id is in ids
func (c *Collection[T]) RemoveIDs(ids map[string]struct{}) []T {
	if len(ids) == 0 {
		return make([]T, 0)
	}
	return c.Remove(func(item T) bool {
		_, ok := ids[item.EntityID()]
		return ok
	})
}
