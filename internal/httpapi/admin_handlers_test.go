package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/rbac"
	"gatehouse.dev/internal/users"
)

func TestAuditListIsAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@example.com", "admin123")
	editor := api.login("editor1@example.com", "editor123")

	resp := api.get("/api/audit", bearerHeader(editor.AccessToken))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "You don't have permission to view:logs admin", decode[map[string]string](t, resp)["message"])

	created := api.post("/api/posts", map[string]any{
		"title":   "Audited post",
		"content": "Content that lands in the trail.",
	}, bearerHeader(editor.AccessToken))
	created.Body.Close()
	require.Equal(t, http.StatusCreated, created.StatusCode)
	api.auditEntries()

	resp = api.get("/api/audit?resource=post&userId="+editor.User.ID, bearerHeader(admin.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Logs []struct {
			Action   string `json:"action"`
			UserID   string `json:"userId"`
			Resource string `json:"resource"`
		} `json:"logs"`
		Total       int `json:"total"`
		CurrentPage int `json:"currentPage"`
	}](t, resp)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, 1, body.CurrentPage)
	assert.Equal(t, "create", body.Logs[0].Action)
	assert.Equal(t, editor.User.ID, body.Logs[0].UserID)
}

func TestAdminOverview(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin@example.com", "admin123")
	viewer := api.login("viewer@example.com", "viewer123")

	resp := api.get("/api/admin/overview", bearerHeader(viewer.AccessToken))
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.get("/api/admin/overview", bearerHeader(admin.AccessToken))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Counts      map[string]int      `json:"counts"`
		Role        string              `json:"role"`
		Permissions map[string][]string `json:"permissions"`
	}](t, resp)
	assert.Equal(t, 4, body.Counts["users"])
	assert.Equal(t, len(api.seeded.Posts), body.Counts["posts"])
	assert.Equal(t, "Admin", body.Role)
	assert.Contains(t, body.Permissions["users"], "manage:roles")
}

func TestAdminOverviewReportsEnginePermissions(t *testing.T) {
	api := newTestAPI(t)
	engine := rbac.NewEngine(rbac.Matrix{
		rbac.RoleAdmin: {
			rbac.ResourcePosts: {rbac.Read: {}},
			rbac.ResourceAdmin: {rbac.AccessPanel: {}},
		},
	})
	a := New(Services{
		Engine: engine,
		Posts:  posts.NewService(api.store, engine),
		Users:  users.NewService(api.store, engine),
		Audit:  api.recorder,
		Ready:  api.store,
	}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	req = req.WithContext(auth.ContextWithIdentity(req.Context(), auth.Identity{
		SubjectID: api.userID("admin@example.com"),
		Role:      rbac.RoleAdmin,
	}))
	rr := httptest.NewRecorder()
	a.handleAdminOverview(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Permissions map[string][]string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{"read"}, body.Permissions["posts"])
	assert.Empty(t, body.Permissions["users"])
	assert.Equal(t, []string{"access:panel"}, body.Permissions["admin"])
}

func TestHealthAndReadiness(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]any](t, resp)["status"])

	resp = api.get("/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", decode[map[string]any](t, resp)["status"])

	resp = api.get("/api/nowhere", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
