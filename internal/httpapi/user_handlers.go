package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/rbac"
	"gatehouse.dev/internal/users"
)

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty"`
	IsActive *bool   `json:"isActive"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, 10, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := users.Filter{Offset: page.offset(), Limit: page.Limit}
	q := r.URL.Query()
	if raw := q.Get("role"); raw != "" {
		role, err := rbac.ParseRole(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Role = role
	}
	if raw := q.Get("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "isActive must be true or false")
			return
		}
		f.Active = &active
	}
	list, total, err := a.users.List(r.Context(), f)
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":       list,
		"totalPages":  totalPages(total, page.Limit),
		"currentPage": page.Page,
		"total":       total,
	})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	user, err := a.users.Update(r.Context(), mustIdentity(r), chi.URLParam(r, "id"), users.UpdateInput{
		Name:   req.Name,
		Email:  req.Email,
		Role:   req.Role,
		Active: req.IsActive,
	})
	if err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User updated successfully",
		"user":    user,
	})
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.users.Delete(r.Context(), mustIdentity(r), chi.URLParam(r, "id")); err != nil {
		handleUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully"})
}

func handleUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, users.ErrSelfModification):
		msg := "Cannot modify your own account this way"
		if r.Method == http.MethodDelete {
			msg = "Cannot delete your own account"
		}
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, users.ErrForbidden):
		forbidden(w, "You don't have permission to manage:roles users")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email already in use")
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, rbac.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		internalError(w, r, err, "user request failed")
	}
}
