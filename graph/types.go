package graph

// User is a blog author. Posts and comments point back to it through their
// Author field; the user itself stores no links.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   *int   `json:"age,omitempty"`
}

// Post is an article written by a User
type Post struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
	Author    string `json:"author"`
}

// Comment is a remark by a User on a published Post
type Comment struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Author string `json:"author"`
	Post   string `json:"post"`
}

// EntityID returns the user id
func (u *User) EntityID() string { return u.ID }

// EntityID returns the post id
func (p *Post) EntityID() string { return p.ID }

// EntityID returns the comment id
func (c *Comment) EntityID() string { return c.ID }

// IntPtr returns a pointer to v, for optional fields such as User.Age
func IntPtr(v int) *int {
	return &v
}
