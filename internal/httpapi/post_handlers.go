package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gatehouse.dev/internal/posts"
)

type createPostRequest struct {
	Title   string   `json:"title" validate:"required,min=3,max=200"`
	Content string   `json:"content" validate:"required,min=10"`
	Status  string   `json:"status" validate:"omitempty,oneof=draft published archived"`
	Tags    []string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

type updatePostRequest struct {
	Title   *string  `json:"title" validate:"omitempty,min=3,max=200"`
	Content *string  `json:"content" validate:"omitempty,min=10"`
	Status  *string  `json:"status" validate:"omitempty,oneof=draft published archived"`
	Tags    []string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

func (a *API) handleListPosts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, 10, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f := posts.Filter{Offset: page.offset(), Limit: page.Limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := posts.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	list, total, err := a.posts.List(r.Context(), mustIdentity(r), f)
	if err != nil {
		handlePostError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":       list,
		"totalPages":  totalPages(total, page.Limit),
		"currentPage": page.Page,
		"total":       total,
	})
}

func (a *API) handleGetPost(w http.ResponseWriter, r *http.Request) {
	p, err := a.posts.Get(r.Context(), mustIdentity(r), chi.URLParam(r, "id"))
	if err != nil {
		handlePostError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": p})
}

func (a *API) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	p, err := a.posts.Create(r.Context(), mustIdentity(r), posts.CreateInput{
		Title:   req.Title,
		Content: req.Content,
		Status:  req.Status,
		Tags:    req.Tags,
	})
	if err != nil {
		handlePostError(w, r, err)
		return
	}
	SetAuditResourceID(r.Context(), p.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Post created successfully",
		"post":    p,
	})
}

func (a *API) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var req updatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	p, err := a.posts.Update(r.Context(), chi.URLParam(r, "id"), posts.UpdateInput{
		Title:   req.Title,
		Content: req.Content,
		Status:  req.Status,
		Tags:    req.Tags,
	})
	if err != nil {
		handlePostError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Post updated successfully",
		"post":    p,
	})
}

func (a *API) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := a.posts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handlePostError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Post deleted successfully"})
}

func handlePostError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, posts.ErrNotFound):
		writeError(w, http.StatusNotFound, "Post not found")
	case errors.Is(err, posts.ErrForbidden):
		forbidden(w, "Access denied")
	case errors.Is(err, posts.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		internalError(w, r, err, "post request failed")
	}
}
