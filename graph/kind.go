// Package graph provides the entity types shared by the store, resolvers and gateway
package graph

// Kind identifies one of the three entity collections
type Kind int

const (
	// KindUser is the users collection
	KindUser Kind = iota
	// KindPost is the posts collection
	KindPost
	// KindComment is the comments collection
	KindComment
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindPost:
		return "post"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Mutation names the lifecycle change carried by an event
type Mutation string

const (
	// MutationCreated is emitted after an entity is inserted
	MutationCreated Mutation = "CREATED"
)
