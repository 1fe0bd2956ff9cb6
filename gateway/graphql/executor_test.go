package graphql

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/c360/semblog/graph"
	"github.com/c360/semblog/graph/resolver"
	"github.com/c360/semblog/graph/store"
	"github.com/c360/semblog/pubsub"
	"github.com/c360/semblog/testutil"
)

type testGateway struct {
	executor *Executor
	resolver *resolver.Resolver
	broker   *pubsub.Broker
	store    *store.Store
}

func newTestGateway(t *testing.T, fixture *testutil.Fixture, maxDepth int) *testGateway {
	t.Helper()

	broker, err := pubsub.NewBroker(pubsub.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, broker.Start(context.Background()))
	t.Cleanup(func() { _ = broker.Close() })

	s := fixture.Store()
	res, err := resolver.New(resolver.Dependencies{
		Store:  s,
		Events: broker,
		NewID:  testutil.SequentialIDs("id"),
	})
	require.NoError(t, err)

	schema, err := LoadSchema()
	require.NoError(t, err)

	executor, err := NewExecutor(schema, res, maxDepth, nil)
	require.NoError(t, err)

	return &testGateway{executor: executor, resolver: res, broker: broker, store: s}
}

func (g *testGateway) do(query string, vars map[string]any) *graphql.Response {
	return g.executor.Do(context.Background(), &graphql.RawParams{Query: query, Variables: vars})
}

func errorCodes(resp *graphql.Response) []string {
	codes := make([]string, len(resp.Errors))
	for i, e := range resp.Errors {
		codes[i], _ = e.Extensions["code"].(string)
	}
	return codes
}

func TestExecute_Queries(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "fields keep selection order",
			query: `{ post { title id __typename } }`,
			want:  `{"post":{"title":"Hello World","id":"p1","__typename":"Post"}}`,
		},
		{
			name:  "text search",
			query: `{ users(query: "AL") { id name } }`,
			want:  `{"users":[{"id":"u1","name":"Alice"}]}`,
		},
		{
			name:  "empty search returns all",
			query: `{ posts(query: "") { id } }`,
			want:  `{"posts":[{"id":"p1"},{"id":"p2"},{"id":"p3"}]}`,
		},
		{
			name:  "relationships",
			query: `{ post { author { name } comments { text author { name } } } }`,
			want: `{"post":{"author":{"name":"Alice"},"comments":[` +
				`{"text":"Nice post","author":{"name":"Bob"}},` +
				`{"text":"Thanks!","author":{"name":"Alice"}}]}}`,
		},
		{
			name:  "optional age",
			query: `{ users(query: "bob") { name age } }`,
			want:  `{"users":[{"name":"Bob","age":null}]}`,
		},
		{
			name:  "fixed viewer",
			query: `{ me { ... on User { name } age posts { id } } }`,
			want:  `{"me":{"name":"Lex","age":42,"posts":[]}}`,
		},
		{
			name:  "root typename",
			query: `{ __typename }`,
			want:  `{"__typename":"Query"}`,
		},
		{
			name:  "comment back references",
			query: `{ comments { id post { id published } } }`,
			want: `{"comments":[` +
				`{"id":"c1","post":{"id":"p1","published":true}},` +
				`{"id":"c2","post":{"id":"p1","published":true}},` +
				`{"id":"c3","post":{"id":"p3","published":true}},` +
				`{"id":"c4","post":{"id":"p3","published":true}}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := g.do(tt.query, nil)
			require.Empty(t, resp.Errors)
			assert.Equal(t, tt.want, string(resp.Data))
		})
	}
}

func TestExecute_FragmentsAliasesDirectives(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	query := `
		query Pick($withEmail: Boolean!) {
			first: users(query: "bob") { ...userFields }
			second: users(query: "carla") { name @skip(if: true) id }
		}
		fragment userFields on User {
			id
			email @include(if: $withEmail)
		}`

	resp := g.do(query, map[string]any{"withEmail": false})
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"first":[{"id":"u2"}],"second":[{"id":"u3"}]}`, string(resp.Data))

	resp = g.do(query, map[string]any{"withEmail": true})
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"first":[{"id":"u2","email":"bob@example.com"}],"second":[{"id":"u3"}]}`,
		string(resp.Data))
}

func TestExecute_MergesRepeatedFields(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	resp := g.do(`{ post { author { name } author { email } } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"post":{"author":{"name":"Alice","email":"alice@example.com"}}}`, string(resp.Data))
}

func TestExecute_Mutations(t *testing.T) {
	g := newTestGateway(t, testutil.NewFixture(), 10)

	resp := g.do(`mutation($age: Int) {
		createUser(name: "Dana", email: "dana@example.com", age: $age) { id name age }
	}`, map[string]any{"age": json.Number("29")})
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"createUser":{"id":"id-1","name":"Dana","age":29}}`, string(resp.Data))

	resp = g.do(`mutation {
		createPost(title: "Live", body: "b", published: true, author: "id-1") { id author { name } }
	}`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"createPost":{"id":"id-2","author":{"name":"Dana"}}}`, string(resp.Data))

	resp = g.do(`mutation {
		createComment(text: "First!", author: "id-1", post: "id-2") { id post { title } }
	}`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"createComment":{"id":"id-3","post":{"title":"Live"}}}`, string(resp.Data))

	resp = g.do(`mutation { deleteUser(id: "id-1") { email } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"deleteUser":{"email":"dana@example.com"}}`, string(resp.Data))

	snap := g.store.Snapshot()
	assert.Empty(t, snap.Users)
	assert.Empty(t, snap.Posts)
	assert.Empty(t, snap.Comments)
}

func TestExecute_MutationErrors(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	tests := []struct {
		name    string
		query   string
		code    string
		message string
		field   string
	}{
		{
			name:    "duplicate email",
			query:   `mutation { createUser(name: "Al", email: "alice@example.com") { id } }`,
			code:    CodeConflict,
			message: "email address is taken",
			field:   "createUser",
		},
		{
			name:    "unknown author",
			query:   `mutation { createPost(title: "T", body: "", published: true, author: "ghost") { id } }`,
			code:    CodeNotFound,
			message: "user not found",
			field:   "createPost",
		},
		{
			name:    "comment on draft",
			query:   `mutation { createComment(text: "hi", author: "u1", post: "p2") { id } }`,
			code:    CodeNotFound,
			message: "post not found",
			field:   "createComment",
		},
		{
			name:    "comment by unknown user",
			query:   `mutation { createComment(text: "hi", author: "ghost", post: "p2") { id } }`,
			code:    CodeNotFound,
			message: "user not found",
			field:   "createComment",
		},
		{
			name:    "blank name",
			query:   `mutation { createUser(name: " ", email: "x@example.com") { id } }`,
			code:    CodeValidation,
			message: "name must not be empty",
			field:   "createUser",
		},
		{
			name:    "negative age",
			query:   `mutation { createUser(name: "X", email: "x@example.com", age: -1) { id } }`,
			code:    CodeValidation,
			message: "age must not be negative",
			field:   "createUser",
		},
		{
			name:    "unknown user delete",
			query:   `mutation { deleteUser(id: "ghost") { id } }`,
			code:    CodeNotFound,
			message: "user not found",
			field:   "deleteUser",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := g.store.Snapshot()

			resp := g.do(tt.query, nil)
			require.Len(t, resp.Errors, 1)
			assert.Equal(t, "null", string(resp.Data))

			e := resp.Errors[0]
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.code, e.Extensions["code"])
			assert.Equal(t, tt.field, e.Extensions["operation"])
			assert.Equal(t, ast.Path{ast.PathName(tt.field)}, e.Path)
			assert.NotEmpty(t, e.Locations)

			assert.Equal(t, before, g.store.Snapshot())
		})
	}
}

func TestExecute_MutationsRunInOrder(t *testing.T) {
	g := newTestGateway(t, testutil.NewFixture(), 10)

	resp := g.do(`mutation {
		a: createUser(name: "A", email: "same@example.com") { id }
		b: createUser(name: "B", email: "same@example.com") { id }
	}`, nil)

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, ast.Path{ast.PathName("b")}, resp.Errors[0].Path)
	assert.Equal(t, CodeConflict, resp.Errors[0].Extensions["code"])
	assert.Equal(t, "null", string(resp.Data))

	// the first mutation was applied before the second failed
	snap := g.store.Snapshot()
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "A", snap.Users[0].Name)
}

func TestExecute_MutationsAfterFailureStillRun(t *testing.T) {
	g := newTestGateway(t, testutil.NewFixture(), 10)

	resp := g.do(`mutation {
		a: createUser(name: "A", email: "same@example.com") { id }
		b: createUser(name: "B", email: "same@example.com") { id }
		c: createUser(name: "C", email: "c@example.com") { id }
	}`, nil)

	require.Len(t, resp.Errors, 1)
	assert.Equal(t, ast.Path{ast.PathName("b")}, resp.Errors[0].Path)
	assert.Equal(t, "null", string(resp.Data))

	snap := g.store.Snapshot()
	require.Len(t, snap.Users, 2)
	assert.Equal(t, "A", snap.Users[0].Name)
	assert.Equal(t, "C", snap.Users[1].Name)
}

func TestPrepare_Validation(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 2)

	tests := []struct {
		name   string
		params graphql.RawParams
	}{
		{name: "empty query", params: graphql.RawParams{Query: "  "}},
		{name: "syntax error", params: graphql.RawParams{Query: "{ users { "}},
		{name: "unknown field", params: graphql.RawParams{Query: "{ authors { id } }"}},
		{name: "missing required argument", params: graphql.RawParams{Query: `mutation { deleteUser { id } }`}},
		{name: "wrong literal type", params: graphql.RawParams{Query: `{ users(query: 5) { id } }`}},
		{
			name: "variable of wrong type",
			params: graphql.RawParams{
				Query:     `mutation($age: Int) { createUser(name: "a", email: "b", age: $age) { id } }`,
				Variables: map[string]any{"age": "abc"},
			},
		},
		{
			name: "missing required variable",
			params: graphql.RawParams{
				Query: `mutation($id: ID!) { deleteUser(id: $id) { id } }`,
			},
		},
		{name: "introspection", params: graphql.RawParams{Query: `{ __schema { queryType { name } } }`}},
		{
			name:   "ambiguous operation",
			params: graphql.RawParams{Query: `query A { me { id } } query B { post { id } }`},
		},
		{
			name:   "unknown operation name",
			params: graphql.RawParams{Query: `query A { me { id } }`, OperationName: "Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, errs := g.executor.Prepare(&tt.params)
			assert.Nil(t, req)
			require.NotEmpty(t, errs)
			for _, e := range errs {
				assert.Equal(t, CodeValidation, e.Extensions["code"], e.Message)
			}
		})
	}
}

func TestPrepare_OperationName(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	resp := g.executor.Do(context.Background(), &graphql.RawParams{
		Query:         `query A { me { id } } query B { post { id } }`,
		OperationName: "B",
	})
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"post":{"id":"p1"}}`, string(resp.Data))
}

func TestPrepare_IntrospectionRejected(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	for _, query := range []string{
		`{ __schema { queryType { name } } }`,
		`query Q { ...root } fragment root on Query { __type(name: "User") { name } }`,
	} {
		req, errs := g.executor.Prepare(&graphql.RawParams{Query: query})
		assert.Nil(t, req)
		require.Len(t, errs, 1, query)
		assert.Equal(t, "introspection is not supported", errs[0].Message)
		assert.Equal(t, CodeValidation, errs[0].Extensions["code"])
		assert.NotEmpty(t, errs[0].Locations)
	}
}

func TestExecute_DepthLimit(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 2)

	resp := g.do(`{ users { posts { title } } }`, nil)
	require.NotEmpty(t, resp.Errors)
	assert.Equal(t, []string{CodeValidation}, errorCodes(resp)[:1])
	assert.Empty(t, resp.Errors[0].Path)

	resp = g.do(`{ users { name } }`, nil)
	require.Empty(t, resp.Errors)
}

func TestExecute_QueryReadsOneState(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	view, release := g.resolver.ReadView(context.Background())
	deleted := make(chan *graphql.Response, 1)
	go func() {
		deleted <- g.do(`mutation { deleteUser(id: "u3") { id } }`, nil)
	}()

	// The delete waits for the pinned view, so a query running under it sees
	// Carla's post with its author and comments.
	resp := g.executor.Do(view, &graphql.RawParams{
		Query: `{ posts(query: "generics") { author { name } comments { author { name } } } }`,
	})
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"posts":[{"author":{"name":"Carla"},"comments":[`+
		`{"author":{"name":"Alice"}},{"author":{"name":"Carla"}}]}]}`, string(resp.Data))
	testutil.AssertNoValue[*graphql.Response](t, deleted, 20*time.Millisecond)

	release()
	require.Empty(t, testutil.Receive[*graphql.Response](t, deleted, testutil.DefaultTimeout).Errors)

	resp = g.do(`{ posts(query: "generics") { id } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, `{"posts":[]}`, string(resp.Data))
}

func TestExecute_ResolverErrorInsideList(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)
	g.store.Users.Remove(func(u *graph.User) bool { return u.ID == "u2" })

	resp := g.do(`{ comments { id author { name } } }`, nil)
	require.Len(t, resp.Errors, 1)
	e := resp.Errors[0]
	assert.Equal(t, "user not found", e.Message)
	assert.Equal(t, CodeNotFound, e.Extensions["code"])
	assert.Equal(t, "comments", e.Extensions["operation"])
	assert.Equal(t, ast.Path{ast.PathName("comments"), ast.PathIndex(0), ast.PathName("author")}, e.Path)
	assert.Equal(t, "null", string(resp.Data))
}

func TestExecute_CancelledContext(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	req, errs := g.executor.Prepare(&graphql.RawParams{Query: `{ users { id } comments { id } }`})
	require.Nil(t, errs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := g.executor.Execute(ctx, req)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "operation cancelled", resp.Errors[0].Message)
	assert.Equal(t, "null", string(resp.Data))
}

func TestExecute_RejectsSubscription(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	resp := g.do(`subscription { post { id } }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, []string{CodeValidation}, errorCodes(resp))
}

func TestSubscribe_Comments(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	req, errs := g.executor.Prepare(&graphql.RawParams{
		Query:     `subscription($id: ID!) { comment(postId: $id) { text author { name } } }`,
		Variables: map[string]any{"id": "p1"},
	})
	require.Nil(t, errs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, errs := g.executor.Subscribe(ctx, req)
	require.Nil(t, errs)

	// a comment on another post is not delivered
	resp := g.do(`mutation { createComment(text: "Elsewhere", author: "u1", post: "p3") { id } }`, nil)
	require.Empty(t, resp.Errors)
	resp = g.do(`mutation { createComment(text: "Live", author: "u3", post: "p1") { id } }`, nil)
	require.Empty(t, resp.Errors)

	ev := testutil.Receive(t, stream, testutil.DefaultTimeout)
	require.Empty(t, ev.Errors)
	assert.Equal(t, `{"comment":{"text":"Live","author":{"name":"Carla"}}}`, string(ev.Data))
	testutil.AssertNoValue(t, stream, 50*time.Millisecond)

	cancel()
	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("stream not closed after cancel")
	}
	testutil.WaitFor(t, testutil.DefaultTimeout, func() bool {
		return g.broker.SubscriberCount(pubsub.CommentsTopic("p1")) == 0
	}, "subscription not released")
}

func TestSubscribe_Posts(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	req, errs := g.executor.Prepare(&graphql.RawParams{Query: `subscription { latest: post { title published } }`})
	require.Nil(t, errs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, errs := g.executor.Subscribe(ctx, req)
	require.Nil(t, errs)

	resp := g.do(`mutation { createPost(title: "Draft", body: "", published: false, author: "u2") { id } }`, nil)
	require.Empty(t, resp.Errors)

	ev := testutil.Receive(t, stream, testutil.DefaultTimeout)
	assert.Equal(t, `{"latest":{"title":"Draft","published":false}}`, string(ev.Data))
}

func TestSubscribe_Errors(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	for _, postID := range []string{"p2", "ghost"} {
		req, errs := g.executor.Prepare(&graphql.RawParams{
			Query: `subscription { comment(postId: "` + postID + `") { id } }`,
		})
		require.Nil(t, errs)

		stream, errs := g.executor.Subscribe(context.Background(), req)
		assert.Nil(t, stream)
		require.Len(t, errs, 1)
		assert.Equal(t, "post not found", errs[0].Message)
		assert.Equal(t, CodeNotFound, errs[0].Extensions["code"])
	}

	req, errs := g.executor.Prepare(&graphql.RawParams{Query: `{ me { id } }`})
	require.Nil(t, errs)
	_, errs = g.executor.Subscribe(context.Background(), req)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeValidation, errs[0].Extensions["code"])
}
