// Package graphql serves the blog graph over HTTP and websockets.
//
// The gateway is schema-first. The SDL in schema.graphql is loaded twice:
// gqlparser validates requests against it, and graphql-go executes them
// against resolvers that wrap a BlogResolver. Queries and mutations run on
// one executable schema and subscriptions on a second, since both roots
// expose a post field.
//
// # Execution
//
// Executor.Prepare parses and validates a request, picks its operation and
// coerces its variables. Introspection fields are rejected there. Execute
// runs queries inside a single resolver ReadView so every field sees the
// same store state. Mutation fields run one after another in document
// order. Selections deeper than max_query_depth are refused.
//
// Errors carry extensions.code:
//
//	VALIDATION    malformed request or invalid arguments
//	CONFLICT      the email address is taken
//	NOT_FOUND     missing user or post, or an unpublished post
//	RATE_LIMITED  the request rate exceeded rate_limit/rate_burst
//	INTERNAL      anything else
//
// # Transport
//
// Server handles:
//
//	POST /graphql   queries and mutations (application/json)
//	GET  /graphql   queries only
//	WS   /graphql   graphql-transport-ws subscriptions
//
// HTTP requests and websocket subscribe messages share one token bucket.
// A refused HTTP request gets 429 with Retry-After; a refused subscribe
// message gets an error message and the connection stays open.
//
// Other routes:
//
//	GET  /health    aggregated component health
//	GET  /          GraphQL Playground (when enabled)
//
// Configuration example:
//
//	{
//	  "bind_address": ":8080",
//	  "path": "/graphql",
//	  "enable_playground": true,
//	  "enable_cors": true,
//	  "timeout": "30s",
//	  "max_query_depth": 10,
//	  "keep_alive": "15s"
//	}
package graphql
