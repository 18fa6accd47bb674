package posts

import (
	"context"
	"time"
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Post is the resource guarded by the permission matrix.
type Post struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Status         Status     `json:"status"`
	AuthorID       string     `json:"authorId"`
	LastModifiedBy string     `json:"lastModifiedBy,omitempty"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	AuthorID string
	Status   Status
}

// Store persists posts.
type Store interface {
	Create(ctx context.Context, p *Post) error
	Get(ctx context.Context, id string) (*Post, error)
	Update(ctx context.Context, p *Post) error
	Delete(ctx context.Context, id string) error
	// List returns matching posts, most recently updated first.
	List(ctx context.Context, f Filter) ([]*Post, error)
}

// Input is the client-supplied body for create and update.
type Input struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Status   Status `json:"status,omitempty"`
	AuthorID string `json:"authorId,omitempty"`
}
