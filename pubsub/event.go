package pubsub

import (
	stderrors "errors"
	"time"

	"github.com/c360/semblog/graph"
)

// Errors returned by the broker
var (
	ErrInvalidTopic = stderrors.New("invalid topic")
	ErrBrokerClosed = stderrors.New("broker closed")
)

// Event is one change notification. Payload is the affected entity
// (*graph.Comment or *graph.Post).
type Event struct {
	Topic     Topic          `json:"-"`
	Mutation  graph.Mutation `json:"mutation"`
	Payload   any            `json:"data"`
	Sequence  uint64         `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
}

// Comment returns the payload as a comment, if it is one
func (e Event) Comment() (*graph.Comment, bool) {
	c, ok := e.Payload.(*graph.Comment)
	return c, ok
}

// Post returns the payload as a post, if it is one
func (e Event) Post() (*graph.Post, bool) {
	p, ok := e.Payload.(*graph.Post)
	return p, ok
}
