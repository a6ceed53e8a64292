package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/rbac"
)

func TestUserEmailsAreUnique(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreateUser(ctx, auth.User{ID: "a", Email: "a@example.com", Role: rbac.RoleViewer})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, auth.User{ID: "b", Email: "A@example.com", Role: rbac.RoleViewer})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestRefreshTokenListChanges(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.CreateUser(ctx, auth.User{ID: "a", Email: "a@example.com"})
	require.NoError(t, err)

	require.NoError(t, s.AppendRefreshToken(ctx, "a", auth.RefreshToken{Token: "t1", ExpiresAt: now.Add(time.Hour)}, now))
	require.NoError(t, s.AppendRefreshToken(ctx, "a", auth.RefreshToken{Token: "t2", ExpiresAt: now.Add(3 * time.Hour)}, now))
	require.NoError(t, s.AppendRefreshToken(ctx, "a", auth.RefreshToken{Token: "t3", ExpiresAt: now.Add(3 * time.Hour)}, now.Add(2*time.Hour)))

	u, err := s.UserByID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, u.RefreshTokens, 2, "t1 pruned")

	require.NoError(t, s.RemoveRefreshToken(ctx, "a", "t2"))
	u, err = s.UserByID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, u.RefreshTokens, 1)
	assert.Equal(t, "t3", u.RefreshTokens[0].Token)

	assert.ErrorIs(t, s.AppendRefreshToken(ctx, "zz", auth.RefreshToken{}, now), auth.ErrNotFound)
	assert.ErrorIs(t, s.RemoveRefreshToken(ctx, "zz", "t"), auth.ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	p, err := s.CreatePost(ctx, posts.Post{ID: "p1", Tags: []string{"a"}})
	require.NoError(t, err)
	p.Tags[0] = "mutated"

	got, err := s.PostByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.Tags)
}

func TestAuditListNewestFirstWithFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, e := range []audit.Entry{
		{ID: "1", ActorID: "u1", Action: "create", ResourceKind: "posts"},
		{ID: "2", ActorID: "u2", Action: "delete", ResourceKind: "posts"},
		{ID: "3", ActorID: "u1", Action: "update", ResourceKind: "users"},
	} {
		e.OccurredAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	all, total, err := s.ListAudit(ctx, audit.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"3", "2", "1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	byActor, total, err := s.ListAudit(ctx, audit.Filter{ActorID: "u1", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, byActor, 1)
	assert.Equal(t, "3", byActor[0].ID)

	_, total, err = s.ListAudit(ctx, audit.Filter{ResourceKind: "posts", Action: "delete"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, s.AppendAudit(canceled, audit.Entry{ID: "4"}))
}
