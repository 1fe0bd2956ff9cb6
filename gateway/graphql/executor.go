package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	graphqlgo "github.com/graph-gophers/graphql-go"
	gqlgoerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/c360/semblog/errors"
)

// Request is a parsed and validated operation
type Request struct {
	query string
	op    *ast.OperationDefinition
	vars  map[string]interface{}
	roots map[string]string
}

// Operation returns query, mutation or subscription
func (r *Request) Operation() ast.Operation {
	return r.op.Operation
}

// Name returns the operation name, empty for anonymous operations
func (r *Request) Name() string {
	return r.op.Name
}

// rootName returns the schema field behind a top-level response key
func (r *Request) rootName(key string) string {
	if name, ok := r.roots[key]; ok {
		return name
	}
	return r.op.Name
}

// firstKey returns the response key of the first top-level field
func (r *Request) firstKey() string {
	for _, sel := range r.op.SelectionSet {
		if f, ok := sel.(*ast.Field); ok {
			if f.Alias != "" {
				return f.Alias
			}
			return f.Name
		}
	}
	for key := range r.roots {
		return key
	}
	return ""
}

// Executor validates requests against the blog schema and runs them with
// graphql-go
type Executor struct {
	schema *ast.Schema
	exec   *graphqlgo.Schema
	stream *graphqlgo.Schema
	res    BlogResolver
	logger *slog.Logger
}

// NewExecutor binds res to the blog schema. Selections nested deeper than
// maxDepth are rejected.
func NewExecutor(schema *ast.Schema, res BlogResolver, maxDepth int, logger *slog.Logger) (*Executor, error) {
	if schema == nil || res == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Executor", "NewExecutor",
			"schema and resolver are required")
	}
	if maxDepth <= 0 {
		maxDepth = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "graphql-executor")

	opts := []graphqlgo.SchemaOpt{
		graphqlgo.UseStringDescriptions(),
		graphqlgo.MaxDepth(maxDepth),
		graphqlgo.Logger(panicLogger{logger: logger}),
	}
	exec, err := graphqlgo.ParseSchema(schemaSDL+operationRoots, &operationRoot{res: res}, opts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "Executor", "NewExecutor", "bind query and mutation resolvers")
	}
	stream, err := graphqlgo.ParseSchema(schemaSDL+subscriptionRoots, &subscriptionRoot{res: res}, opts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "Executor", "NewExecutor", "bind subscription resolvers")
	}

	return &Executor{
		schema: schema,
		exec:   exec,
		stream: stream,
		res:    res,
		logger: logger,
	}, nil
}

// Prepare parses and validates params and checks its variables
func (e *Executor) Prepare(params *graphql.RawParams) (*Request, gqlerror.List) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, gqlerror.List{validationError(params.OperationName, "query must not be empty")}
	}

	doc, errs := gqlparser.LoadQueryWithRules(e.schema, params.Query, nil)
	if len(errs) > 0 {
		return nil, validationErrors(errs, params.OperationName)
	}

	op, gqlErr := selectOperation(doc, params.OperationName)
	if gqlErr != nil {
		return nil, gqlerror.List{gqlErr}
	}

	if _, err := validator.VariableValues(e.schema, op, params.Variables); err != nil {
		return nil, validationErrors(gqlerror.List{gqlerror.WrapIfUnwrapped(err)}, op.Name)
	}

	roots := make(map[string]string)
	if field := collectRoots(doc, op.SelectionSet, roots, map[string]bool{}); field != nil {
		gqlErr := validationError(op.Name, "%s", ErrIntrospectionDisabled)
		if field.Position != nil {
			gqlErr.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
		}
		return nil, gqlerror.List{gqlErr}
	}

	vars, _ := plainNumbers(params.Variables).(map[string]interface{})
	return &Request{query: params.Query, op: op, vars: vars, roots: roots}, nil
}

// selectOperation picks the operation to run. An empty name is allowed only
// when the document holds exactly one operation.
func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, *gqlerror.Error) {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0], nil
		}
		return nil, validationError("", "operationName is required when the document has %d operations",
			len(doc.Operations))
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, validationError(name, "unknown operation %q", name)
}

// collectRoots maps top-level response keys to field names. It returns the
// first __schema or __type selection, if any.
func collectRoots(doc *ast.QueryDocument, set ast.SelectionSet, roots map[string]string, seen map[string]bool) *ast.Field {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Name == "__schema" || s.Name == "__type" {
				return s
			}
			key := s.Alias
			if key == "" {
				key = s.Name
			}
			roots[key] = s.Name
		case *ast.InlineFragment:
			if f := collectRoots(doc, s.SelectionSet, roots, seen); f != nil {
				return f
			}
		case *ast.FragmentSpread:
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			frag := s.Definition
			if frag == nil {
				frag = doc.Fragments.ForName(s.Name)
			}
			if frag == nil {
				continue
			}
			if f := collectRoots(doc, frag.SelectionSet, roots, seen); f != nil {
				return f
			}
		}
	}
	return nil
}

// plainNumbers turns json.Number values into float64, the form graphql-go
// coerces Int and Float arguments from
func plainNumbers(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = plainNumbers(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = plainNumbers(item)
		}
		return out
	default:
		return v
	}
}

// Do prepares and executes a query or mutation
func (e *Executor) Do(ctx context.Context, params *graphql.RawParams) *graphql.Response {
	req, errs := e.Prepare(params)
	if errs != nil {
		return &graphql.Response{Errors: errs}
	}
	return e.Execute(ctx, req)
}

// Execute runs a query or mutation. Root mutation fields run one after the
// other in document order. All reads of a query see the same store state.
func (e *Executor) Execute(ctx context.Context, req *Request) *graphql.Response {
	if req.Operation() == ast.Subscription {
		return &graphql.Response{Errors: gqlerror.List{
			validationError(req.Name(), "subscriptions must be sent over a websocket connection"),
		}}
	}
	if err := ctx.Err(); err != nil {
		return &graphql.Response{
			Errors: gqlerror.List{mapError(err, nil, req.rootName(req.firstKey()))},
			Data:   json.RawMessage("null"),
		}
	}

	if req.Operation() == ast.Query {
		view, release := e.res.ReadView(ctx)
		defer release()
		ctx = view
	}

	return e.convert(e.exec.Exec(ctx, req.query, req.Name(), req.vars), req)
}

// Subscribe starts a subscription. Errors raised while starting the stream
// are returned directly; afterwards the channel yields one response per event
// and is closed when the stream ends or ctx is cancelled.
func (e *Executor) Subscribe(ctx context.Context, req *Request) (<-chan *graphql.Response, gqlerror.List) {
	if req.Operation() != ast.Subscription {
		return nil, gqlerror.List{validationError(req.Name(), "operation is not a subscription")}
	}

	started := make(chan error, 1)
	src, err := e.stream.Subscribe(context.WithValue(ctx, startKey{}, started), req.query, req.Name(), req.vars)
	if err != nil {
		return nil, gqlerror.List{mapError(
			errors.WrapFatal(err, "Executor", "Subscribe", "start stream"), nil, req.Name())}
	}

	select {
	case err := <-started:
		if err != nil {
			go drain(src)
			key := req.firstKey()
			return nil, gqlerror.List{mapError(err, ast.Path{ast.PathName(key)}, req.rootName(key))}
		}
	case first, ok := <-src:
		// Rejected by graphql-go before the stream resolver ran
		go drain(src)
		if resp, isResp := first.(*graphqlgo.Response); ok && isResp && len(resp.Errors) > 0 {
			return nil, e.convert(resp, req).Errors
		}
		return nil, gqlerror.List{mapError(
			errors.WrapFatal(fmt.Errorf("stream ended before it started"), "Executor", "Subscribe", "start stream"),
			nil, req.Name())}
	case <-ctx.Done():
		go drain(src)
		return nil, gqlerror.List{mapError(ctx.Err(), nil, req.Name())}
	}

	out := make(chan *graphql.Response)
	go func() {
		defer close(out)
		defer drain(src)
		for item := range src {
			resp, ok := item.(*graphqlgo.Response)
			if !ok {
				continue
			}
			select {
			case out <- e.convert(resp, req):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// drain consumes src until graphql-go closes it
func drain(src <-chan interface{}) {
	for range src {
	}
}

// convert maps a graphql-go response onto the gqlgen response type the
// transports encode
func (e *Executor) convert(resp *graphqlgo.Response, req *Request) *graphql.Response {
	out := &graphql.Response{Data: resp.Data}
	for _, qe := range resp.Errors {
		out.Errors = append(out.Errors, e.convertError(qe, req))
	}
	return out
}

func (e *Executor) convertError(qe *gqlgoerrors.QueryError, req *Request) *gqlerror.Error {
	gqlErr := &gqlerror.Error{
		Err:        qe.ResolverError,
		Message:    qe.Message,
		Extensions: make(map[string]interface{}, len(qe.Extensions)+2),
	}
	for k, v := range qe.Extensions {
		gqlErr.Extensions[k] = v
	}
	for _, loc := range qe.Locations {
		gqlErr.Locations = append(gqlErr.Locations, gqlerror.Location{Line: loc.Line, Column: loc.Column})
	}
	for _, elem := range qe.Path {
		switch v := elem.(type) {
		case string:
			gqlErr.Path = append(gqlErr.Path, ast.PathName(v))
		case int:
			gqlErr.Path = append(gqlErr.Path, ast.PathIndex(v))
		}
	}

	operation := req.Name()
	if len(gqlErr.Path) > 0 {
		if key, ok := gqlErr.Path[0].(ast.PathName); ok {
			operation = req.rootName(string(key))
		}
	}

	// Without a path the request itself was rejected
	if len(gqlErr.Path) == 0 && qe.ResolverError == nil {
		return withCode(gqlErr, CodeValidation, operation)
	}

	if _, coded := gqlErr.Extensions["code"]; !coded {
		// Panics and nil values for non-null fields
		gqlErr.Message = "internal server error"
	}
	withCode(gqlErr, CodeInternal, operation)
	if gqlErr.Extensions["code"] == CodeInternal {
		var cause error = qe
		var fe *fieldError
		if errors.As(qe.ResolverError, &fe) {
			cause = fe.err
		}
		e.logger.Error("Field resolution failed",
			"operation", operation, "path", gqlErr.Path.String(), "error", cause)
	}
	return gqlErr
}

// panicLogger reports resolver panics recovered by graphql-go
type panicLogger struct {
	logger *slog.Logger
}

func (l panicLogger) LogPanic(ctx context.Context, value interface{}) {
	l.logger.ErrorContext(ctx, "Resolver panicked", "panic", value, "stack", string(debug.Stack()))
}
