package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/rbac"
)

const ownershipDenied = "You can only access your own resources"

// OwnerResolver returns the owner of the resource addressed by r.
type OwnerResolver func(ctx context.Context, r *http.Request) (string, error)

// OwnerFromParam resolves the owner by passing the {id} route parameter to
// lookup.
func OwnerFromParam(lookup func(ctx context.Context, id string) (string, error)) OwnerResolver {
	return func(ctx context.Context, r *http.Request) (string, error) {
		return lookup(ctx, chi.URLParam(r, "id"))
	}
}

// SelfOwned treats the {id} route parameter as its own owner, for resources
// that are the subject itself.
func SelfOwned(_ context.Context, r *http.Request) (string, error) {
	return chi.URLParam(r, "id"), nil
}

// Require admits the request only when the caller's role holds action on
// resource.
func (a *API) Require(resource rbac.Resource, action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !a.engine.Check(who.Role, resource, action) {
				a.deny(w, r, who, resource, action,
					fmt.Sprintf("You don't have permission to %s %s", action, resource))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwnership admits the request when the caller holds verb:all, or
// verb:own and owns the addressed resource. A failing resolver or an empty
// owner is a denial.
func (a *API) RequireOwnership(resource rbac.Resource, verb rbac.Action, resolve OwnerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if a.engine.HasGlobalReach(who.Role, resource, verb) {
				obs.AuthzDecisions.WithLabelValues(string(resource), verb.Bare().All().String(), "allow").Inc()
				next.ServeHTTP(w, r)
				return
			}
			owner, err := resolve(r.Context(), r)
			if err != nil {
				obs.Ctx(r.Context()).Warn().Err(err).
					Str("user_id", who.SubjectID).
					Str("resource", string(resource)).
					Str("path", r.URL.Path).
					Msg("owner lookup failed")
				owner = ""
			}
			if !a.engine.CheckOwned(who.Role, resource, verb, who.SubjectID, owner) {
				a.deny(w, r, who, resource, verb, ownershipDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) deny(w http.ResponseWriter, r *http.Request, who auth.Identity, resource rbac.Resource, action rbac.Action, msg string) {
	obs.Ctx(r.Context()).Warn().
		Str("user_id", who.SubjectID).
		Str("role", who.Role.String()).
		Str("resource", string(resource)).
		Str("action", action.String()).
		Str("path", r.URL.Path).
		Msg("authorization denied")
	forbidden(w, msg)
}

func forbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, map[string]string{
		"error":   "Forbidden",
		"message": msg,
	})
}
