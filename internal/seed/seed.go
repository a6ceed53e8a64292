// Package seed loads demo accounts and posts. Running it twice is safe:
// accounts whose email already exists are kept, and their posts are not
// duplicated.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/ids"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/rbac"
)

// Target is the storage the seeder writes through.
type Target interface {
	CreateUser(ctx context.Context, u auth.User) (auth.User, error)
	UserByEmail(ctx context.Context, email string) (auth.User, error)
	CreatePost(ctx context.Context, p posts.Post) (posts.Post, error)
}

// Account is a demo login.
type Account struct {
	Email    string
	Password string
	Name     string
	Role     rbac.Role
}

type demoPost struct {
	author  string
	title   string
	content string
}

// Accounts are the demo logins created by Run.
var Accounts = []Account{
	{Email: "admin@example.com", Password: "admin123", Name: "Admin User", Role: rbac.RoleAdmin},
	{Email: "editor1@example.com", Password: "editor123", Name: "Editor One", Role: rbac.RoleEditor},
	{Email: "editor2@example.com", Password: "editor123", Name: "Editor Two", Role: rbac.RoleEditor},
	{Email: "viewer@example.com", Password: "viewer123", Name: "Viewer User", Role: rbac.RoleViewer},
}

var demoPosts = []demoPost{
	{"admin@example.com", "Welcome to the content service", "This instance runs with demo data. Sign in with one of the seeded accounts to explore what each role can do."},
	{"editor1@example.com", "Writing drafts as an editor", "Editors create posts and may change or delete only the posts they wrote. Everyone signed in can read published posts."},
	{"editor1@example.com", "How ownership checks work", "Update and delete requests resolve the post author first, then compare it with the caller unless the role reaches every post."},
	{"editor2@example.com", "Audit trail basics", "Every successful change is recorded with the actor, the action, the resource and the correlation id of the request."},
	{"admin@example.com", "Managing roles", "Only administrators can change roles, and nobody can demote, deactivate or delete their own account."},
}

// Result reports what Run created.
type Result struct {
	Users []auth.User
	Posts []posts.Post
}

// Run creates the demo accounts and, for accounts it created, their posts.
func Run(ctx context.Context, target Target, hasher auth.PasswordHasher) (Result, error) {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}
	var (
		res     Result
		created = make(map[string]auth.User, len(Accounts))
		base    = time.Now().UTC()
	)
	for _, acc := range Accounts {
		if _, err := target.UserByEmail(ctx, acc.Email); err == nil {
			obs.Ctx(ctx).Info().Str("email", acc.Email).Msg("seed account exists, skipping")
			continue
		} else if !errors.Is(err, auth.ErrNotFound) {
			return res, fmt.Errorf("lookup %s: %w", acc.Email, err)
		}
		hash, err := hasher.Hash(acc.Password)
		if err != nil {
			return res, err
		}
		u, err := target.CreateUser(ctx, auth.User{
			ID:           ids.New(),
			Email:        acc.Email,
			Name:         acc.Name,
			PasswordHash: hash,
			Role:         acc.Role,
			Active:       true,
			CreatedAt:    base,
			UpdatedAt:    base,
		})
		if err != nil {
			return res, fmt.Errorf("create %s: %w", acc.Email, err)
		}
		created[acc.Email] = u
		res.Users = append(res.Users, u)
	}

	for i, dp := range demoPosts {
		author, ok := created[dp.author]
		if !ok {
			continue
		}
		at := base.Add(time.Duration(i) * time.Second)
		p, err := target.CreatePost(ctx, posts.Post{
			ID:        ids.New(),
			Title:     dp.title,
			Content:   dp.content,
			AuthorID:  author.ID,
			Status:    posts.StatusPublished,
			Tags:      []string{},
			CreatedAt: at,
			UpdatedAt: at,
		})
		if err != nil {
			return res, fmt.Errorf("create post %q: %w", dp.title, err)
		}
		res.Posts = append(res.Posts, p)
	}

	obs.Ctx(ctx).Info().Int("users", len(res.Users)).Int("posts", len(res.Posts)).Msg("seed complete")
	return res, nil
}
