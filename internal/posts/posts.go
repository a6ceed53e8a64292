// Package posts is the content resource guarded by the permission matrix.
package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("posts: not found")
	ErrInvalidInput = errors.New("posts: invalid input")
	ErrForbidden    = errors.New("posts: access denied")
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ParseStatus accepts one of the known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusPublished, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

// Post is a piece of content owned by its author.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	Status    Status    `json:"status"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Author is filled in on reads when the service has an AuthorDirectory.
	Author *Author `json:"author,omitempty"`
}

// Author is the public summary of a post's author.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Filter narrows a listing. An empty AuthorID or Status matches everything.
type Filter struct {
	AuthorID string
	Status   Status
	Offset   int
	Limit    int
}

// Update carries the fields to change; nil fields are left as they are.
type Update struct {
	Title   *string
	Content *string
	Status  *Status
	Tags    *[]string
}

// Store persists posts. ListPosts applies the filter before paging and
// returns the filtered total alongside the page, newest first.
type Store interface {
	CreatePost(ctx context.Context, p Post) (Post, error)
	PostByID(ctx context.Context, id string) (Post, error)
	ListPosts(ctx context.Context, f Filter) ([]Post, int, error)
	UpdatePost(ctx context.Context, id string, upd Update, now time.Time) (Post, error)
	DeletePost(ctx context.Context, id string) error
}
