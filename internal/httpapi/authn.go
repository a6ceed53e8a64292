package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
)

const (
	authHeader         = "Authorization"
	bearer             = "Bearer "
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// authenticate resolves the caller's identity from the accessToken cookie,
// falling back to a bearer token, and stores it in the request context.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractAccessToken(r)
		if token == "" {
			obs.AuthFailures.WithLabelValues("missing_token").Inc()
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		identity, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			obs.Ctx(r.Context()).Error().Err(err).Msg("authentication error")
			writeError(w, http.StatusInternalServerError, "Authentication error")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

func extractAccessToken(r *http.Request) string {
	if c, err := r.Cookie(accessTokenCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	return bearerToken(r.Header.Get(authHeader))
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

func mustIdentity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}
