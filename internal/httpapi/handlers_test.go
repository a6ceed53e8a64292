package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/rbac"
	"gatehouse.dev/internal/seed"
	"gatehouse.dev/internal/store/memory"
	"gatehouse.dev/internal/users"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type apiClient struct {
	baseURL  string
	client   *http.Client
	t        *testing.T
	store    *memory.Store
	recorder *audit.Recorder
	clock    *testClock
	seeded   seed.Result
}

func newTestAPI(t *testing.T, mutate ...func(*Options)) *apiClient {
	t.Helper()

	clock := &testClock{now: time.Now().UTC()}
	store := memory.New()
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	seeded, err := seed.Run(context.Background(), store, hasher)
	require.NoError(t, err)

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	}, auth.WithClock(clock.Now))
	require.NoError(t, err)
	authSvc, err := auth.NewService(store, tokens, auth.WithHasher(hasher), auth.WithNow(clock.Now))
	require.NoError(t, err)

	engine := rbac.NewEngine(nil)
	recorder := audit.NewRecorder(store)
	opts := Options{Version: "test", RateBurst: 1000, RatePerSecond: 1000}
	for _, fn := range mutate {
		fn(&opts)
	}
	api := New(Services{
		Auth:   authSvc,
		Engine: engine,
		Posts:  posts.NewService(store, engine, posts.WithAuthors(store)),
		Users:  users.NewService(store, engine),
		Audit:  recorder,
		Ready:  store,
	}, opts)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:  srv.URL,
		client:   srv.Client(),
		t:        t,
		store:    store,
		recorder: recorder,
		clock:    clock,
		seeded:   seeded,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil, headers)
}

type loginResult struct {
	User         auth.User `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
}

func (c *apiClient) login(email, password string) loginResult {
	c.t.Helper()
	resp := c.post("/api/auth/login", map[string]string{"email": email, "password": password}, nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.t.Fatalf("login %s: unexpected status %d", email, resp.StatusCode)
	}
	return decode[loginResult](c.t, resp)
}

func (c *apiClient) userID(email string) string {
	c.t.Helper()
	u, err := c.store.UserByEmail(context.Background(), email)
	require.NoError(c.t, err)
	return u.ID
}

func (c *apiClient) postsBy(email string) []posts.Post {
	c.t.Helper()
	list, _, err := c.store.ListPosts(context.Background(), posts.Filter{AuthorID: c.userID(email), Limit: 100})
	require.NoError(c.t, err)
	require.NotEmpty(c.t, list)
	return list
}

// auditEntries drains pending writes and returns everything recorded.
func (c *apiClient) auditEntries() []audit.Entry {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(c.t, c.recorder.Wait(ctx))
	list, _, err := c.store.ListAudit(context.Background(), audit.Filter{Limit: 100})
	require.NoError(c.t, err)
	return list
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
