package httpapi

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/posts"
	"gatehouse.dev/internal/rbac"
	"gatehouse.dev/internal/users"
)

func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, 20, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	logs, total, err := a.audit.List(r.Context(), audit.Filter{
		ActorID:      q.Get("userId"),
		ResourceKind: q.Get("resource"),
		Action:       q.Get("action"),
		Offset:       page.offset(),
		Limit:        page.Limit,
	})
	if err != nil {
		internalError(w, r, err, "list audit failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":        logs,
		"totalPages":  totalPages(total, page.Limit),
		"currentPage": page.Page,
		"total":       total,
	})
}

// handleAdminOverview reports collection sizes and the caller's permissions.
func (a *API) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	who := mustIdentity(r)
	var userCount, postCount, auditCount int

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		_, userCount, err = a.users.List(ctx, users.Filter{Limit: 1})
		return err
	})
	g.Go(func() (err error) {
		_, postCount, err = a.posts.List(ctx, who, posts.Filter{Limit: 1})
		return err
	})
	g.Go(func() (err error) {
		_, auditCount, err = a.audit.List(ctx, audit.Filter{Limit: 1})
		return err
	})
	if err := g.Wait(); err != nil {
		internalError(w, r, err, "admin overview failed")
		return
	}

	permissions := make(map[string][]string, 3)
	for _, res := range []rbac.Resource{rbac.ResourcePosts, rbac.ResourceUsers, rbac.ResourceAdmin} {
		permissions[string(res)] = a.engine.Actions(who.Role, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts": map[string]int{
			"users": userCount,
			"posts": postCount,
			"audit": auditCount,
		},
		"role":        who.Role,
		"permissions": permissions,
	})
}
