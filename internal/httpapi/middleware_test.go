package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/rbac"
)

type captureStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *captureStore) AppendAudit(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *captureStore) ListAudit(context.Context, audit.Filter) ([]audit.Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Entry(nil), s.entries...), len(s.entries), nil
}

func TestRateLimitExceeded(t *testing.T) {
	handler := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(context.Background()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(context.Background()))
	assert.Equal(t, http.StatusTooManyRequests, rr2.Code)

	other := req.Clone(context.Background())
	other.RemoteAddr = "10.0.0.2:1234"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	assert.Equal(t, http.StatusOK, rr3.Code)
}

func TestCorrelationIDEchoedAndGenerated(t *testing.T) {
	var seen string
	handler := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = obs.CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(correlationHeader, "abc-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rr.Header().Get(correlationHeader))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc-123", seen)
	assert.Equal(t, seen, rr.Header().Get(correlationHeader))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "tok", bearerToken("Bearer tok"))
	assert.Equal(t, "tok", bearerToken("bearer   tok "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken(""))
	assert.Empty(t, bearerToken("Bearer"))
}

func auditedRouter(store audit.Store, status int) (http.Handler, *audit.Recorder) {
	rec := audit.NewRecorder(store)
	a := &API{engine: rbac.NewEngine(nil), audit: rec}
	r := chi.NewRouter()
	r.Use(CorrelationID)
	r.With(a.Audited("update", "post")).Put("/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	r.With(a.Audited("create", "post")).Post("/posts", func(w http.ResponseWriter, r *http.Request) {
		SetAuditResourceID(r.Context(), "new-id")
		w.WriteHeader(status)
	})
	return r, rec
}

func withIdentity(req *http.Request, id string) *http.Request {
	return req.WithContext(auth.ContextWithIdentity(req.Context(), auth.Identity{SubjectID: id, Role: rbac.RoleAdmin}))
}

func drain(t *testing.T, rec *audit.Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rec.Wait(ctx))
}

func TestAuditedRecordsOnceOnSuccess(t *testing.T) {
	store := &captureStore{}
	h, rec := auditedRouter(store, http.StatusOK)

	req := httptest.NewRequest(http.MethodPut, "/posts/p9?dry=1", strings.NewReader(`{"title":"x","token":"secret"}`))
	req.Header.Set(correlationHeader, "corr-1")
	req.Header.Set("User-Agent", "tests")
	h.ServeHTTP(httptest.NewRecorder(), withIdentity(req, "u1"))
	drain(t, rec)

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.Equal(t, "u1", e.ActorID)
	assert.Equal(t, "update", e.Action)
	assert.Equal(t, "post", e.ResourceKind)
	assert.Equal(t, "p9", e.ResourceID)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.Equal(t, "tests", e.UserAgent)
	assert.Equal(t, "/posts/p9", e.Details["path"])
	body := e.Details["body"].(map[string]any)
	assert.Equal(t, "x", body["title"])
	assert.Equal(t, "[REDACTED]", body["token"])
	assert.Contains(t, e.Details, "query")
}

func TestAuditedSkipsNon2xx(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		store := &captureStore{}
		h, rec := auditedRouter(store, code)
		req := httptest.NewRequest(http.MethodPut, "/posts/p1", strings.NewReader(`{}`))
		h.ServeHTTP(httptest.NewRecorder(), withIdentity(req, "u1"))
		drain(t, rec)
		assert.Empty(t, store.entries, "status %d", code)
	}
}

func TestAuditedUsesHandlerResourceID(t *testing.T) {
	store := &captureStore{}
	h, rec := auditedRouter(store, http.StatusCreated)

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title":"x"}`))
	h.ServeHTTP(httptest.NewRecorder(), withIdentity(req, "u1"))
	drain(t, rec)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "new-id", store.entries[0].ResourceID)
}
