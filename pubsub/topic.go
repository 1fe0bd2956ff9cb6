package pubsub

import (
	"fmt"
	"strings"
)

// TopicKind names a family of topics
type TopicKind string

// Topic kinds
const (
	KindComments TopicKind = "comments"
	KindPosts    TopicKind = "posts"
)

// Topic is a typed subscription key. Comment topics are scoped to one post;
// the posts topic has no ID.
type Topic struct {
	Kind TopicKind
	ID   string
}

// CommentsTopic returns the topic carrying comments created on postID
func CommentsTopic(postID string) Topic {
	return Topic{Kind: KindComments, ID: postID}
}

// PostsTopic returns the topic carrying every created post
func PostsTopic() Topic {
	return Topic{Kind: KindPosts}
}

// String renders the topic as "comments:<postId>" or "posts"
func (t Topic) String() string {
	if t.ID == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + ":" + t.ID
}

// Subject renders the topic as a dotted NATS subject below prefix
func (t Topic) Subject(prefix string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, string(t.Kind))
	if t.ID != "" {
		parts = append(parts, t.ID)
	}
	return strings.Join(parts, ".")
}

// Validate checks the topic is well formed
func (t Topic) Validate() error {
	switch t.Kind {
	case KindComments:
		if t.ID == "" {
			return fmt.Errorf("%w: comments topic requires a post id", ErrInvalidTopic)
		}
	case KindPosts:
		if t.ID != "" {
			return fmt.Errorf("%w: posts topic takes no id", ErrInvalidTopic)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTopic, t.Kind)
	}
	return nil
}

// ParseTopic is the inverse of Topic.String
func ParseTopic(s string) (Topic, error) {
	kind, id, _ := strings.Cut(s, ":")
	t := Topic{Kind: TopicKind(kind), ID: id}
	if err := t.Validate(); err != nil {
		return Topic{}, err
	}
	return t, nil
}
