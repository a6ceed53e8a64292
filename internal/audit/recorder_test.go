package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse.dev/internal/obs"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	block   chan struct{}
	ctxErr  error
	filter  Filter
}

func (s *fakeStore) AppendAudit(ctx context.Context, e Entry) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) ListAudit(_ context.Context, f Filter) ([]Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
	return s.entries, len(s.entries), nil
}

func (s *fakeStore) snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func TestRecordFillsDefaultsAndRedacts(t *testing.T) {
	store := &fakeStore{}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewRecorder(store, WithClock(func() time.Time { return now }))

	ctx := obs.WithCorrelationID(context.Background(), "corr-1")
	details := map[string]any{
		"method": "POST",
		"body": map[string]any{
			"email":        "a@example.com",
			"password":     "hunter22",
			"RefreshToken": "rt",
			"nested":       []any{map[string]any{"token": "t"}},
		},
	}
	rec.Record(ctx, Entry{ActorID: "u1", Action: "create", ResourceKind: "posts", ResourceID: "p1", Details: details})
	require.NoError(t, rec.Wait(context.Background()))

	got := store.snapshot()
	require.Len(t, got, 1)
	e := got[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, now, e.OccurredAt)
	assert.Equal(t, "corr-1", e.CorrelationID)

	body := e.Details["body"].(map[string]any)
	assert.Equal(t, redacted, body["password"])
	assert.Equal(t, redacted, body["RefreshToken"])
	assert.Equal(t, "a@example.com", body["email"])
	assert.Equal(t, redacted, body["nested"].([]any)[0].(map[string]any)["token"])

	// The caller's map is untouched.
	assert.Equal(t, "hunter22", details["body"].(map[string]any)["password"])
}

func TestRecordSurvivesCanceledRequest(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	rec := NewRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	rec.Record(ctx, Entry{ActorID: "u1", Action: "delete", ResourceKind: "posts"})
	cancel()
	close(store.block)

	require.NoError(t, rec.Wait(context.Background()))
	assert.Len(t, store.snapshot(), 1)
	assert.NoError(t, store.ctxErr)
}

func TestRecordFailureIsSwallowed(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	rec := NewRecorder(store)

	rec.Record(context.Background(), Entry{ActorID: "u1", Action: "update", ResourceKind: "users"})
	require.NoError(t, rec.Wait(context.Background()))
	assert.Empty(t, store.snapshot())
}

func TestWaitHonorsContext(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	rec := NewRecorder(store)
	rec.Record(context.Background(), Entry{Action: "create", ResourceKind: "posts"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := rec.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.block)
	require.NoError(t, rec.Wait(context.Background()))
}

func TestListClampsLimit(t *testing.T) {
	store := &fakeStore{}
	rec := NewRecorder(store)

	_, _, err := rec.List(context.Background(), Filter{Limit: 1000, Offset: -5})
	require.NoError(t, err)
	assert.Equal(t, maxListLimit, store.filter.Limit)
	assert.Equal(t, 0, store.filter.Offset)

	_, _, err = rec.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, store.filter.Limit)
}

func TestRedactNil(t *testing.T) {
	assert.Nil(t, Redact(nil))
}
