// Package seed generates a deterministic sample graph for development
// servers. The same Config always yields the same entities, apart from ids
// when the default random id generator is used.
package seed

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/graph"
	"github.com/c360/semblog/graph/store"
)

// Age bounds for generated users, inclusive
const (
	MinAge = 20
	MaxAge = 50
)

var (
	firstNames = []string{
		"Ada", "Grace", "Linus", "Margaret", "Ken", "Barbara", "Dennis", "Frances",
		"Rob", "Radia", "Edsger", "Hedy", "Alan", "Katherine", "Donald", "Shafi",
	}
	topics = []string{
		"concurrency", "graphs", "compilers", "caching", "schemas", "testing",
		"observability", "latency", "indexes", "subscriptions",
	}
	titleTemplates = []string{
		"Notes on %s", "Why %s matter", "A short guide to %s", "Rethinking %s", "%s in practice",
	}
	remarks = []string{
		"Great write-up!", "I learned something new.", "Could you expand on this?",
		"This matches my experience.", "Bookmarked.", "Interesting take.",
	}
)

// Config controls seed generation
type Config struct {
	// Users is the number of users to create
	Users int `json:"users" yaml:"users"`
	// RandomSeed drives every random choice
	RandomSeed uint64 `json:"random_seed" yaml:"random_seed"`
	// NewID generates entity ids; defaults to random UUIDs
	NewID func() string `json:"-" yaml:"-"`
}

// DefaultConfig returns the default seed configuration
func DefaultConfig() Config {
	return Config{Users: 5, RandomSeed: 1}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Users < 0 {
		return errors.WrapInvalid(fmt.Errorf("users must be non-negative, got %d", c.Users),
			"Config", "Validate", "check user count")
	}
	return nil
}

// Generate builds a snapshot with one post per user (randomly published) and
// one comment per user on a random published post. Comments are skipped
// when no post ended up published.
func Generate(cfg Config) (store.Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return store.Snapshot{}, err
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	rng := rand.New(rand.NewPCG(cfg.RandomSeed, cfg.RandomSeed^0x5eed))

	snap := store.Snapshot{
		Users:    make([]*graph.User, 0, cfg.Users),
		Posts:    make([]*graph.Post, 0, cfg.Users),
		Comments: make([]*graph.Comment, 0, cfg.Users),
	}

	for i := 0; i < cfg.Users; i++ {
		name := firstNames[rng.IntN(len(firstNames))]
		snap.Users = append(snap.Users, &graph.User{
			ID:    newID(),
			Name:  name,
			Email: fmt.Sprintf("%s.%d@example.com", strings.ToLower(name), i+1),
			Age:   graph.IntPtr(MinAge + rng.IntN(MaxAge-MinAge+1)),
		})
	}

	var published []*graph.Post
	for _, u := range snap.Users {
		topic := topics[rng.IntN(len(topics))]
		post := &graph.Post{
			ID:        newID(),
			Title:     fmt.Sprintf(titleTemplates[rng.IntN(len(titleTemplates))], topic),
			Body:      fmt.Sprintf("%s shares a few thoughts about %s.", u.Name, topic),
			Published: rng.IntN(2) == 1,
			Author:    u.ID,
		}
		snap.Posts = append(snap.Posts, post)
		if post.Published {
			published = append(published, post)
		}
	}

	if len(published) == 0 {
		return snap, nil
	}
	for _, u := range snap.Users {
		snap.Comments = append(snap.Comments, &graph.Comment{
			ID:     newID(),
			Text:   remarks[rng.IntN(len(remarks))],
			Author: u.ID,
			Post:   published[rng.IntN(len(published))].ID,
		})
	}
	return snap, nil
}
