package domain

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Post is a blog post: a title plus its ordered block list.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Blocks    []Block   `json:"blocks"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostSummary is the listing view of a post.
type PostSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	BlockCount int       `json:"blockCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// PostStore persists posts. Blocks are stored as an opaque, order-significant
// list; implementations must not reorder them or drop fields.
type PostStore interface {
	SavePost(ctx context.Context, p *Post) error
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context) ([]PostSummary, error)
	DeletePost(ctx context.Context, id string) error
}

// Slugify turns a title into a URL path segment: lowercase ASCII letters and
// digits separated by single dashes.
func Slugify(title string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
			dash = false
		case sb.Len() > 0 && !dash:
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
