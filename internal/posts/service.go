package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/ids"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/rbac"
)

const (
	minTitleLength   = 3
	maxTitleLength   = 200
	minContentLength = 10

	defaultLimit = 10
	maxLimit     = 100
)

// AuthorDirectory resolves author ids to accounts.
type AuthorDirectory interface {
	UserByID(ctx context.Context, id string) (auth.User, error)
}

// Service implements post operations with read scoping.
type Service struct {
	store   Store
	engine  *rbac.Engine
	authors AuthorDirectory
	now     func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithAuthors attaches an author summary to every post the service returns.
func WithAuthors(dir AuthorDirectory) Option {
	return func(s *Service) { s.authors = dir }
}

func NewService(store Store, engine *rbac.Engine, opts ...Option) *Service {
	if engine == nil {
		engine = rbac.NewEngine(nil)
	}
	s := &Service{store: store, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the posts who may read. A subject whose read reach is limited
// to its own posts only ever sees those, in the page and in the total.
func (s *Service) List(ctx context.Context, who auth.Identity, f Filter) ([]Post, int, error) {
	switch s.engine.ReadReach(who.Role, rbac.ResourcePosts) {
	case rbac.ScopeAll:
	case rbac.ScopeOwn:
		f.AuthorID = who.SubjectID
	default:
		return nil, 0, ErrForbidden
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, total, err := s.store.ListPosts(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if err := s.attachAuthors(ctx, list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Get returns one post if who may read it.
func (s *Service) Get(ctx context.Context, who auth.Identity, id string) (Post, error) {
	p, err := s.store.PostByID(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if !s.engine.CheckOwned(who.Role, rbac.ResourcePosts, rbac.Read, who.SubjectID, p.AuthorID) {
		obs.Ctx(ctx).Warn().
			Str("user_id", who.SubjectID).
			Str("role", who.Role.String()).
			Str("post_id", id).
			Msg("post read denied")
		return Post{}, ErrForbidden
	}
	return s.withAuthor(ctx, p)
}

// CreateInput carries a new post.
type CreateInput struct {
	Title   string
	Content string
	Status  string
	Tags    []string
}

// Create stores a post authored by who.
func (s *Service) Create(ctx context.Context, who auth.Identity, in CreateInput) (Post, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if err := validateTitle(title); err != nil {
		return Post{}, err
	}
	if err := validateContent(content); err != nil {
		return Post{}, err
	}
	status := StatusDraft
	if in.Status != "" {
		st, err := ParseStatus(in.Status)
		if err != nil {
			return Post{}, err
		}
		status = st
	}
	now := s.now().UTC()
	p, err := s.store.CreatePost(ctx, Post{
		ID:        ids.New(),
		Title:     title,
		Content:   content,
		AuthorID:  who.SubjectID,
		Status:    status,
		Tags:      cleanTags(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Post{}, err
	}
	obs.Ctx(ctx).Info().Str("user_id", who.SubjectID).Str("post_id", p.ID).Msg("post created")
	return s.withAuthor(ctx, p)
}

// UpdateInput carries a partial update; empty pointers are ignored.
type UpdateInput struct {
	Title   *string
	Content *string
	Status  *string
	Tags    []string
}

// Update applies in to the post. Ownership is settled by the caller's guard.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Post, error) {
	var upd Update
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return Post{}, err
		}
		upd.Title = &title
	}
	if in.Content != nil {
		content := strings.TrimSpace(*in.Content)
		if err := validateContent(content); err != nil {
			return Post{}, err
		}
		upd.Content = &content
	}
	if in.Status != nil {
		st, err := ParseStatus(*in.Status)
		if err != nil {
			return Post{}, err
		}
		upd.Status = &st
	}
	if in.Tags != nil {
		tags := cleanTags(in.Tags)
		upd.Tags = &tags
	}
	p, err := s.store.UpdatePost(ctx, id, upd, s.now().UTC())
	if err != nil {
		return Post{}, err
	}
	return s.withAuthor(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeletePost(ctx, id)
}

// Owner returns the author of post id; it backs the ownership guard.
func (s *Service) Owner(ctx context.Context, id string) (string, error) {
	p, err := s.store.PostByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.AuthorID, nil
}

func (s *Service) withAuthor(ctx context.Context, p Post) (Post, error) {
	list := []Post{p}
	if err := s.attachAuthors(ctx, list); err != nil {
		return Post{}, err
	}
	return list[0], nil
}

// attachAuthors looks each distinct author up once. A post whose author no
// longer exists keeps a nil Author.
func (s *Service) attachAuthors(ctx context.Context, list []Post) error {
	if s.authors == nil {
		return nil
	}
	seen := make(map[string]*Author, len(list))
	for i := range list {
		id := list[i].AuthorID
		a, ok := seen[id]
		if !ok {
			u, err := s.authors.UserByID(ctx, id)
			switch {
			case err == nil:
				a = &Author{ID: u.ID, Name: u.Name, Email: u.Email}
			case errors.Is(err, auth.ErrNotFound):
			default:
				return fmt.Errorf("resolve author %s: %w", id, err)
			}
			seen[id] = a
		}
		list[i].Author = a
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n < minTitleLength || n > maxTitleLength {
		return fmt.Errorf("%w: title must be between %d and %d characters", ErrInvalidInput, minTitleLength, maxTitleLength)
	}
	return nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) < minContentLength {
		return fmt.Errorf("%w: content must be at least %d characters", ErrInvalidInput, minContentLength)
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
