// Package seed loads the demo accounts and posts into an empty deployment.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inkpost.org/internal/auth"
	"inkpost.org/internal/ids"
	"inkpost.org/internal/obs"
	"inkpost.org/internal/posts"
)

// Users are the demo accounts, one per role.
var Users = []auth.NewUser{
	{Name: "Alice Admin", Email: "admin@example.com", Password: "AdminPass123!", Role: auth.RoleAdmin},
	{Name: "Eddie Editor", Email: "editor@example.com", Password: "EditorPass123!", Role: auth.RoleEditor},
	{Name: "Violet Viewer", Email: "viewer@example.com", Password: "ViewerPass123!", Role: auth.RoleViewer},
}

type seedPost struct {
	title   string
	content string
	status  posts.Status
	author  auth.Role
}

var demoPosts = []seedPost{
	{"Admin Handbook", "Administrative overview of the RBAC system.", posts.StatusPublished, auth.RoleAdmin},
	{"Editor Guide", "Editors can manage their own posts in this system.", posts.StatusDraft, auth.RoleEditor},
	{"Viewer Welcome", "Viewers have read-only access to published content.", posts.StatusPublished, auth.RoleAdmin},
}

// Result reports what a run changed.
type Result struct {
	UsersCreated int
	PostsCreated int
}

// Run creates missing demo users and, when the post store is empty, the demo
// posts. Running it again changes nothing.
func Run(ctx context.Context, svc *auth.Service, users auth.UserStore, store posts.Store) (Result, error) {
	var res Result
	log := obs.LoggerFrom(ctx)

	byRole := make(map[auth.Role]*auth.User, len(Users))
	for _, nu := range Users {
		u, err := svc.CreateUser(ctx, nu)
		switch {
		case err == nil:
			res.UsersCreated++
			log.Info("seed_user_created", "email", u.Email, "role", string(u.Role))
		case errors.Is(err, auth.ErrConflict):
			u, err = users.FindUserByEmail(ctx, nu.Email)
			if err != nil {
				return res, fmt.Errorf("seed: load %s: %w", nu.Email, err)
			}
			log.Info("seed_user_exists", "email", u.Email)
		default:
			return res, fmt.Errorf("seed: create %s: %w", nu.Email, err)
		}
		byRole[nu.Role] = u
	}

	existing, err := store.List(ctx, posts.Filter{})
	if err != nil {
		return res, fmt.Errorf("seed: list posts: %w", err)
	}
	if len(existing) > 0 {
		log.Info("seed_posts_present", "count", len(existing))
		return res, nil
	}

	now := time.Now().UTC()
	for _, sp := range demoPosts {
		author := byRole[sp.author]
		p := &posts.Post{
			ID:             ids.New(),
			Title:          sp.title,
			Content:        sp.content,
			Status:         sp.status,
			AuthorID:       author.ID,
			LastModifiedBy: author.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if p.Status == posts.StatusPublished {
			published := now
			p.PublishedAt = &published
		}
		if err := store.Create(ctx, p); err != nil {
			return res, fmt.Errorf("seed: create post %q: %w", sp.title, err)
		}
		res.PostsCreated++
	}
	log.Info("seed_posts_created", "count", res.PostsCreated)
	return res, nil
}
