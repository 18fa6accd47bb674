package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"inkpost.org/internal/audit"
	"inkpost.org/internal/auth"
	"inkpost.org/internal/ids"
)

const targetType = "Post"

// Auditor receives a record of every successful mutation.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

// Service applies the permission matrix and ownership rules to post operations.
type Service struct {
	store Store
	authz *auth.Authorizer
	audit Auditor
	now   func() time.Time
}

// NewService wires a Service. A nil auditor disables audit records.
func NewService(store Store, authz *auth.Authorizer, auditor Auditor) (*Service, error) {
	if store == nil {
		return nil, errors.New("posts: store is required")
	}
	if authz == nil {
		return nil, errors.New("posts: authorizer is required")
	}
	return &Service{store: store, authz: authz, audit: auditor, now: time.Now}, nil
}

// List returns the posts visible to p: everything for any-scope editors of
// posts, the caller's own posts for own-scope editors, published posts otherwise.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]*Post, error) {
	if _, err := s.authz.Authorize(ctx, p, auth.ActionPostsRead); err != nil {
		return nil, err
	}
	var f Filter
	switch d := s.authz.Evaluate(p.Role, auth.ActionPostsUpdate); {
	case d.Allowed && d.Scope == auth.ScopeAny:
	case d.Allowed && d.Scope == auth.ScopeOwn:
		f.AuthorID = p.Subject
	default:
		f.Status = StatusPublished
	}
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("posts: list: %w", err)
	}
	return list, nil
}

// Get returns one post. Drafts are hidden from roles that cannot edit posts.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Post, error) {
	if _, err := s.authz.Authorize(ctx, p, auth.ActionPostsRead); err != nil {
		return nil, err
	}
	post, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status != StatusPublished && !s.authz.Evaluate(p.Role, auth.ActionPostsUpdate).Allowed {
		return nil, auth.Denied(auth.ActionPostsRead)
	}
	return post, nil
}

// Create stores a new post. Own-scope callers always author their posts and
// may not name another author; any-scope callers may.
func (s *Service) Create(ctx context.Context, p auth.Principal, in Input) (*Post, error) {
	d, err := s.authz.Authorize(ctx, p, auth.ActionPostsCreate)
	if err != nil {
		return nil, err
	}
	if err := validate(&in, true); err != nil {
		return nil, err
	}
	author := strings.TrimSpace(in.AuthorID)
	if author == "" {
		author = p.Subject
	}
	if !d.Permits(author, p.Subject) {
		return nil, auth.Denied(auth.ActionPostsCreate)
	}

	now := s.now().UTC()
	post := &Post{
		ID:             ids.New(),
		Title:          in.Title,
		Content:        in.Content,
		Status:         in.Status,
		AuthorID:       author,
		LastModifiedBy: p.Subject,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if post.Status == StatusPublished {
		post.PublishedAt = &now
	}
	if err := s.store.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("posts: create: %w", err)
	}
	s.record(ctx, string(auth.ActionPostsCreate), post.ID, map[string]any{
		"title":    post.Title,
		"status":   post.Status,
		"authorId": post.AuthorID,
	})
	return post, nil
}

// Update replaces title and content and optionally the status. The author never changes.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, in Input) (*Post, error) {
	d, err := s.authz.Authorize(ctx, p, auth.ActionPostsUpdate)
	if err != nil {
		return nil, err
	}
	if err := validate(&in, false); err != nil {
		return nil, err
	}
	post, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Permits(post.AuthorID, p.Subject) {
		return nil, auth.Denied(auth.ActionPostsUpdate)
	}

	now := s.now().UTC()
	previous := post.Status
	post.Title = in.Title
	post.Content = in.Content
	if in.Status != "" {
		post.Status = in.Status
	}
	post.LastModifiedBy = p.Subject
	post.UpdatedAt = now
	if previous != StatusPublished && post.Status == StatusPublished {
		post.PublishedAt = &now
	}
	if err := s.store.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("posts: update: %w", err)
	}
	snap := map[string]any{"title": post.Title, "status": post.Status}
	if previous != post.Status {
		snap["previousStatus"] = previous
	}
	s.record(ctx, string(auth.ActionPostsUpdate), post.ID, snap)
	return post, nil
}

// Delete removes a post the caller is entitled to remove.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	d, err := s.authz.Authorize(ctx, p, auth.ActionPostsDelete)
	if err != nil {
		return err
	}
	post, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !d.Permits(post.AuthorID, p.Subject) {
		return auth.Denied(auth.ActionPostsDelete)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return err
		}
		return fmt.Errorf("posts: delete: %w", err)
	}
	s.record(ctx, string(auth.ActionPostsDelete), post.ID, map[string]any{"title": post.Title})
	return nil
}

func (s *Service) record(ctx context.Context, action, id string, snap map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, audit.Event{Action: action, TargetType: targetType, TargetID: id, Snapshot: snap})
}

func validate(in *Input, creating bool) error {
	in.Title = strings.TrimSpace(in.Title)
	if n := utf8.RuneCountInString(in.Title); n < 3 || n > 180 {
		return fmt.Errorf("%w: title must be 3-180 characters", auth.ErrValidation)
	}
	if utf8.RuneCountInString(in.Content) < 10 {
		return fmt.Errorf("%w: content must be at least 10 characters", auth.ErrValidation)
	}
	switch in.Status {
	case StatusDraft, StatusPublished:
	case "":
		if creating {
			in.Status = StatusDraft
		}
	default:
		return fmt.Errorf("%w: status must be draft or published", auth.ErrValidation)
	}
	return nil
}
