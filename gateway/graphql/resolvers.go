package graphql

import (
	"context"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"github.com/c360/semblog/graph"
	"github.com/c360/semblog/graph/resolver"
	"github.com/c360/semblog/pubsub"
)

// BlogResolver is the set of graph operations served by the gateway.
// *resolver.Resolver implements it.
type BlogResolver interface {
	Me(ctx context.Context) (*graph.User, error)
	Post(ctx context.Context) (*graph.Post, error)
	Users(ctx context.Context, query string) []*graph.User
	Posts(ctx context.Context, query string) []*graph.Post
	Comments(ctx context.Context) []*graph.Comment

	CreateUser(ctx context.Context, in resolver.CreateUserInput) (*graph.User, error)
	DeleteUser(ctx context.Context, id string) (*graph.User, error)
	CreatePost(ctx context.Context, in resolver.CreatePostInput) (*graph.Post, error)
	CreateComment(ctx context.Context, in resolver.CreateCommentInput) (*graph.Comment, error)

	UserPosts(ctx context.Context, user *graph.User) []*graph.Post
	UserComments(ctx context.Context, user *graph.User) []*graph.Comment
	PostAuthor(ctx context.Context, post *graph.Post) (*graph.User, error)
	PostComments(ctx context.Context, post *graph.Post) []*graph.Comment
	CommentAuthor(ctx context.Context, comment *graph.Comment) (*graph.User, error)
	CommentPost(ctx context.Context, comment *graph.Comment) (*graph.Post, error)

	SubscribeComments(ctx context.Context, postID string) (*pubsub.Subscription, error)
	SubscribePosts(ctx context.Context) (*pubsub.Subscription, error)

	// ReadView pins the store for the reads of one query
	ReadView(ctx context.Context) (context.Context, func())
}

var _ BlogResolver = (*resolver.Resolver)(nil)

// operationRoot serves the Query and Mutation fields
type operationRoot struct {
	res BlogResolver
}

func (r *operationRoot) Me(ctx context.Context) (*userResolver, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	u, err := r.res.Me(ctx)
	if err != nil {
		return nil, fail(err)
	}
	return r.user(u), nil
}

func (r *operationRoot) Post(ctx context.Context) (*postResolver, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	p, err := r.res.Post(ctx)
	if err != nil {
		return nil, fail(err)
	}
	return &postResolver{p: p, res: r.res}, nil
}

func (r *operationRoot) Users(ctx context.Context, args struct{ Query *string }) ([]*userResolver, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	return users(r.res, r.res.Users(ctx, deref(args.Query))), nil
}

func (r *operationRoot) Posts(ctx context.Context, args struct{ Query *string }) ([]*postResolver, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	return posts(r.res, r.res.Posts(ctx, deref(args.Query))), nil
}

func (r *operationRoot) Comments(ctx context.Context) ([]*commentResolver, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(err)
	}
	return comments(r.res, r.res.Comments(ctx)), nil
}

func (r *operationRoot) CreateUser(ctx context.Context, args struct {
	Name  string
	Email string
	Age   *int32
}) (*userResolver, error) {
	in := resolver.CreateUserInput{Name: args.Name, Email: args.Email}
	if args.Age != nil {
		in.Age = graph.IntPtr(int(*args.Age))
	}
	u, err := r.res.CreateUser(ctx, in)
	if err != nil {
		return nil, fail(err)
	}
	return r.user(u), nil
}

func (r *operationRoot) DeleteUser(ctx context.Context, args struct{ ID graphqlgo.ID }) (*userResolver, error) {
	u, err := r.res.DeleteUser(ctx, string(args.ID))
	if err != nil {
		return nil, fail(err)
	}
	return r.user(u), nil
}

func (r *operationRoot) CreatePost(ctx context.Context, args struct {
	Title     string
	Body      string
	Published bool
	Author    graphqlgo.ID
}) (*postResolver, error) {
	p, err := r.res.CreatePost(ctx, resolver.CreatePostInput{
		Title:     args.Title,
		Body:      args.Body,
		Published: args.Published,
		Author:    string(args.Author),
	})
	if err != nil {
		return nil, fail(err)
	}
	return &postResolver{p: p, res: r.res}, nil
}

func (r *operationRoot) CreateComment(ctx context.Context, args struct {
	Text   string
	Author graphqlgo.ID
	Post   graphqlgo.ID
}) (*commentResolver, error) {
	c, err := r.res.CreateComment(ctx, resolver.CreateCommentInput{
		Text:   args.Text,
		Author: string(args.Author),
		Post:   string(args.Post),
	})
	if err != nil {
		return nil, fail(err)
	}
	return &commentResolver{c: c, res: r.res}, nil
}

func (r *operationRoot) user(u *graph.User) *userResolver {
	return &userResolver{u: u, res: r.res}
}

// subscriptionRoot serves the Subscription fields
type subscriptionRoot struct {
	res BlogResolver
}

// Ready resolves Live.ready, the placeholder query root
func (r *subscriptionRoot) Ready() bool {
	return true
}

func (r *subscriptionRoot) Comment(ctx context.Context, args struct{ PostID graphqlgo.ID }) (<-chan *commentResolver, error) {
	sub, err := r.res.SubscribeComments(ctx, string(args.PostID))
	reportStart(ctx, err)
	if err != nil {
		return nil, fail(err)
	}
	return forward(ctx, sub, func(ev pubsub.Event) (*commentResolver, bool) {
		c, ok := ev.Comment()
		return &commentResolver{c: c, res: r.res}, ok
	}), nil
}

func (r *subscriptionRoot) Post(ctx context.Context) (<-chan *postResolver, error) {
	sub, err := r.res.SubscribePosts(ctx)
	reportStart(ctx, err)
	if err != nil {
		return nil, fail(err)
	}
	return forward(ctx, sub, func(ev pubsub.Event) (*postResolver, bool) {
		p, ok := ev.Post()
		return &postResolver{p: p, res: r.res}, ok
	}), nil
}

type startKey struct{}

// reportStart tells Executor.Subscribe whether the stream resolver accepted
// the subscription
func reportStart(ctx context.Context, err error) {
	if started, ok := ctx.Value(startKey{}).(chan error); ok {
		select {
		case started <- err:
		default:
		}
	}
}

// forward turns the events of sub into resolvers until the subscription ends
// or ctx is cancelled
func forward[T any](ctx context.Context, sub *pubsub.Subscription, extract func(pubsub.Event) (T, bool)) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				v, ok := extract(ev)
				if !ok {
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

type userResolver struct {
	u   *graph.User
	res BlogResolver
}

func (r *userResolver) ID() graphqlgo.ID { return graphqlgo.ID(r.u.ID) }
func (r *userResolver) Name() string     { return r.u.Name }
func (r *userResolver) Email() string    { return r.u.Email }

func (r *userResolver) Age() *int32 {
	if r.u.Age == nil {
		return nil
	}
	age := int32(*r.u.Age)
	return &age
}

func (r *userResolver) Posts(ctx context.Context) []*postResolver {
	return posts(r.res, r.res.UserPosts(ctx, r.u))
}

func (r *userResolver) Comments(ctx context.Context) []*commentResolver {
	return comments(r.res, r.res.UserComments(ctx, r.u))
}

type postResolver struct {
	p   *graph.Post
	res BlogResolver
}

func (r *postResolver) ID() graphqlgo.ID { return graphqlgo.ID(r.p.ID) }
func (r *postResolver) Title() string    { return r.p.Title }
func (r *postResolver) Body() string     { return r.p.Body }
func (r *postResolver) Published() bool  { return r.p.Published }

func (r *postResolver) Author(ctx context.Context) (*userResolver, error) {
	u, err := r.res.PostAuthor(ctx, r.p)
	if err != nil {
		return nil, fail(err)
	}
	return &userResolver{u: u, res: r.res}, nil
}

func (r *postResolver) Comments(ctx context.Context) []*commentResolver {
	return comments(r.res, r.res.PostComments(ctx, r.p))
}

type commentResolver struct {
	c   *graph.Comment
	res BlogResolver
}

func (r *commentResolver) ID() graphqlgo.ID { return graphqlgo.ID(r.c.ID) }
func (r *commentResolver) Text() string     { return r.c.Text }

func (r *commentResolver) Author(ctx context.Context) (*userResolver, error) {
	u, err := r.res.CommentAuthor(ctx, r.c)
	if err != nil {
		return nil, fail(err)
	}
	return &userResolver{u: u, res: r.res}, nil
}

func (r *commentResolver) Post(ctx context.Context) (*postResolver, error) {
	p, err := r.res.CommentPost(ctx, r.c)
	if err != nil {
		return nil, fail(err)
	}
	return &postResolver{p: p, res: r.res}, nil
}

func users(res BlogResolver, in []*graph.User) []*userResolver {
	out := make([]*userResolver, len(in))
	for i, u := range in {
		out[i] = &userResolver{u: u, res: res}
	}
	return out
}

func posts(res BlogResolver, in []*graph.Post) []*postResolver {
	out := make([]*postResolver, len(in))
	for i, p := range in {
		out[i] = &postResolver{p: p, res: res}
	}
	return out
}

func comments(res BlogResolver, in []*graph.Comment) []*commentResolver {
	out := make([]*commentResolver, len(in))
	for i, c := range in {
		out[i] = &commentResolver{c: c, res: res}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
