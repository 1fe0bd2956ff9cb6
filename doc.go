// Package semblog serves an in-memory blog graph of users, posts and
// comments over GraphQL.
//
// # Architecture
//
// The module is layered bottom-up:
//
//   - graph: entity types (User, Post, Comment) and domain errors
//   - graph/store: generic in-memory collections with cascading removal
//   - graph/resolver: queries, mutations and subscriptions over the store
//   - pubsub: topic broker that fans mutation events out to subscribers,
//     optionally mirrored to NATS
//   - gateway/graphql: schema, graphql-go execution, HTTP handler with a
//     rate limit and the graphql-transport-ws websocket protocol
//   - config: layered YAML/JSON configuration with environment overrides
//   - cmd/semblog: the serve, schema and version commands
//
// Supporting packages carry the ambient concerns: errors (classified
// errors), health (component status), metric (Prometheus registry),
// natsclient (NATS connection management), pkg/worker (bounded delivery
// pool) and pkg/retry (backoff for the NATS mirror).
//
// # Data Model
//
// Users own posts and comments. A post may be a draft; drafts cannot be
// commented on or watched for comments. Deleting a user removes their
// posts, the comments on those posts and their own comments in one batch.
//
// # Running
//
//	semblog serve --seed --log-format text
//	semblog schema > schema.graphql
//
// The GraphQL endpoint defaults to http://localhost:8080/graphql with a
// playground at the root path and health at /health.
package semblog
