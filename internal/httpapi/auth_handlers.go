package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/config"
	"gatehouse.dev/internal/rbac"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,min=2"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	user, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	SetAuditActorID(r.Context(), user.ID)
	SetAuditResourceID(r.Context(), user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    user,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err)
		return
	}
	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.setTokenCookie(w, accessTokenCookie, session.AccessToken, session.AccessExpiresAt)
	a.setTokenCookie(w, refreshTokenCookie, session.RefreshToken, session.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Login successful",
		"user":         session.User,
		"accessToken":  session.AccessToken,
		"refreshToken": session.RefreshToken,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFrom(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Refresh token required")
		return
	}
	access, expiresAt, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrRefreshRevoked) {
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		handleAuthError(w, r, err)
		return
	}
	a.setTokenCookie(w, accessTokenCookie, access, expiresAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Token refreshed",
		"accessToken": access,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	who := mustIdentity(r)
	if err := a.auth.Logout(r.Context(), who.SubjectID, refreshTokenFrom(r)); err != nil {
		internalError(w, r, err, "logout failed")
		return
	}
	a.clearTokenCookie(w, accessTokenCookie)
	a.clearTokenCookie(w, refreshTokenCookie)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logout successful"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.Me(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// refreshTokenFrom prefers the cookie and falls back to a refreshToken body
// field. A malformed or absent body yields "".
func refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(refreshTokenCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var req refreshRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (a *API) setTokenCookie(w http.ResponseWriter, name, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   a.opts.Environment == config.EnvProduction,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *API) clearTokenCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.Environment == config.EnvProduction,
		SameSite: http.SameSiteStrictMode,
	})
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrRefreshRevoked):
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, rbac.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		internalError(w, r, err, "auth request failed")
	}
}
