package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"gatehouse.dev/internal/audit"
	"gatehouse.dev/internal/auth"
)

type auditTargetKey struct{}

type auditTarget struct {
	resourceID string
	actorID    string
}

// SetAuditResourceID names the resource an audited handler created. It is a
// no-op outside Audited.
func SetAuditResourceID(ctx context.Context, id string) {
	if t, ok := ctx.Value(auditTargetKey{}).(*auditTarget); ok {
		t.resourceID = id
	}
}

// SetAuditActorID names the actor when the request carries no identity, as
// on registration.
func SetAuditActorID(ctx context.Context, id string) {
	if t, ok := ctx.Value(auditTargetKey{}).(*auditTarget); ok {
		t.actorID = id
	}
}

// Audited records one audit entry after next returns with a 2xx status. The
// resource id comes from the {id} route parameter unless the handler set one.
func (a *API) Audited(action, kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := captureBody(r)
			target := &auditTarget{resourceID: chi.URLParam(r, "id")}
			ctx := context.WithValue(r.Context(), auditTargetKey{}, target)
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r.WithContext(ctx))

			if sw.code < 200 || sw.code > 299 {
				return
			}
			actor := target.actorID
			if who, ok := auth.IdentityFromContext(ctx); ok {
				actor = who.SubjectID
			}
			details := map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			}
			if body != nil {
				details["body"] = body
			}
			if q := r.URL.Query(); len(q) > 0 {
				query := make(map[string]any, len(q))
				for k, v := range q {
					query[k] = v
				}
				details["query"] = query
			}
			a.audit.Record(ctx, audit.Entry{
				ActorID:      actor,
				Action:       action,
				ResourceKind: kind,
				ResourceID:   target.resourceID,
				Details:      details,
				IPAddress:    clientIP(r),
				UserAgent:    r.UserAgent(),
			})
		})
	}
}

// captureBody decodes the JSON body for the audit record and puts the bytes
// back for the handler.
func captureBody(r *http.Request) any {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 || len(raw) > maxBodyBytes {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
