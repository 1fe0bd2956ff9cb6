package graph

import "errors"

// Sentinel errors for graph operations.
// These are wrapped with a classification (NotFound/Conflict/Invalid)
// when returned from the resolvers.

// Entity errors
var (
	// ErrUserNotFound indicates the referenced user does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrPostNotFound indicates the referenced post does not exist or is not published
	ErrPostNotFound = errors.New("post not found")

	// ErrCommentNotFound indicates the referenced comment does not exist
	ErrCommentNotFound = errors.New("comment not found")

	// ErrEmailTaken indicates another user already registered the email
	ErrEmailTaken = errors.New("email address is taken")
)

// Argument errors
var (
	// ErrEmptyName indicates a user name was blank
	ErrEmptyName = errors.New("name must not be empty")

	// ErrNegativeAge indicates a negative user age
	ErrNegativeAge = errors.New("age must not be negative")

	// ErrEmptyTitle indicates a post title was blank
	ErrEmptyTitle = errors.New("title must not be empty")

	// ErrEmptyText indicates a comment text was blank
	ErrEmptyText = errors.New("text must not be empty")

	// ErrInvalidEntityID indicates an empty or malformed id argument
	ErrInvalidEntityID = errors.New("invalid entity ID")
)
