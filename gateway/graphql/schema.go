package graphql

import (
	_ "embed"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/c360/semblog/errors"
)

//go:embed schema.graphql
var schemaSDL string

// graphql-go binds every root type of a schema to one resolver value, and
// Query.post and Subscription.post need different methods. Queries and
// mutations therefore run on one executable schema and subscriptions on a
// second one built from the same types.
const (
	operationRoots = `
schema {
  query: Query
  mutation: Mutation
}
`
	subscriptionRoots = `
schema {
  query: Live
  subscription: Subscription
}

"Query root of the subscription schema. Never served."
type Live {
  ready: Boolean!
}
`
)

// SchemaSDL returns the blog schema in GraphQL SDL
func SchemaSDL() string {
	return schemaSDL
}

// LoadSchema parses and validates the embedded blog schema
func LoadSchema() (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{
		Name:    "schema.graphql",
		Input:   schemaSDL,
		BuiltIn: false,
	})
	if err != nil {
		return nil, errors.WrapFatal(err, "Schema", "LoadSchema", "parse schema")
	}
	return schema, nil
}
