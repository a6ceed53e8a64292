// Package memory is an in-process store used for development and tests. All
// state sits behind one mutex.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/users"
)

var (
	_ auth.UserStore = (*Store)(nil)
	_ users.Store    = (*Store)(nil)
	_ posts.Store    = (*Store)(nil)
	_ audit.Store    = (*Store)(nil)
)

type Store struct {
	mu    sync.Mutex
	users map[string]auth.User
	posts map[string]posts.Post
	audit []audit.Entry
}

func New() *Store {
	return &Store{
		users: make(map[string]auth.User),
		posts: make(map[string]posts.Post),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.User{}, auth.ErrEmailTaken
		}
	}
	u.RefreshTokens = cloneTokens(u.RefreshTokens)
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *Store) UserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) AppendRefreshToken(_ context.Context, userID string, tok auth.RefreshToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	kept := make([]auth.RefreshToken, 0, len(u.RefreshTokens)+1)
	for _, rt := range u.RefreshTokens {
		if now.Before(rt.ExpiresAt) {
			kept = append(kept, rt)
		}
	}
	u.RefreshTokens = append(kept, tok)
	s.users[userID] = u
	return nil
}

func (s *Store) RemoveRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	kept := u.RefreshTokens[:0:0]
	for _, rt := range u.RefreshTokens {
		if rt.Token != token {
			kept = append(kept, rt)
		}
	}
	u.RefreshTokens = kept
	s.users[userID] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context, f users.Filter) ([]auth.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []auth.User
	for _, u := range s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Active != nil && u.Active != *f.Active {
			continue
		}
		matched = append(matched, cloneUser(u))
	}
	sort.Slice(matched, func(i, j int) bool {
		return newer(matched[i].CreatedAt, matched[i].ID, matched[j].CreatedAt, matched[j].ID)
	})
	return page(matched, f.Offset, f.Limit), len(matched), nil
}

// UpdateUser leaves the refresh-token list alone.
func (s *Store) UpdateUser(_ context.Context, id string, upd users.Update, now time.Time) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if upd.Email != nil {
		for otherID, other := range s.users {
			if otherID != id && strings.EqualFold(other.Email, *upd.Email) {
				return auth.User{}, auth.ErrEmailTaken
			}
		}
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	u.UpdatedAt = now
	s.users[id] = u
	return cloneUser(u), nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) CreatePost(_ context.Context, p posts.Post) (posts.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Tags = append([]string{}, p.Tags...)
	s.posts[p.ID] = p
	return clonePost(p), nil
}

func (s *Store) PostByID(_ context.Context, id string) (posts.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return posts.Post{}, posts.ErrNotFound
	}
	return clonePost(p), nil
}

func (s *Store) ListPosts(_ context.Context, f posts.Filter) ([]posts.Post, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []posts.Post
	for _, p := range s.posts {
		if f.AuthorID != "" && p.AuthorID != f.AuthorID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		matched = append(matched, clonePost(p))
	}
	sort.Slice(matched, func(i, j int) bool {
		return newer(matched[i].CreatedAt, matched[i].ID, matched[j].CreatedAt, matched[j].ID)
	})
	return page(matched, f.Offset, f.Limit), len(matched), nil
}

func (s *Store) UpdatePost(_ context.Context, id string, upd posts.Update, now time.Time) (posts.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return posts.Post{}, posts.ErrNotFound
	}
	if upd.Title != nil {
		p.Title = *upd.Title
	}
	if upd.Content != nil {
		p.Content = *upd.Content
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.Tags != nil {
		p.Tags = append([]string{}, (*upd.Tags)...)
	}
	p.UpdatedAt = now
	s.posts[id] = p
	return clonePost(p), nil
}

func (s *Store) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return posts.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) ListAudit(_ context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []audit.Entry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		if f.ResourceKind != "" && e.ResourceKind != f.ResourceKind {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	return page(matched, f.Offset, f.Limit), len(matched), nil
}

func newer(at time.Time, id string, bt time.Time, bid string) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return id > bid
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneUser(u auth.User) auth.User {
	u.RefreshTokens = cloneTokens(u.RefreshTokens)
	return u
}

func cloneTokens(in []auth.RefreshToken) []auth.RefreshToken {
	if in == nil {
		return nil
	}
	return append([]auth.RefreshToken(nil), in...)
}

func clonePost(p posts.Post) posts.Post {
	p.Tags = append([]string{}, p.Tags...)
	return p
}
