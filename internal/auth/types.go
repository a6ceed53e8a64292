package auth

import (
	"time"

	"gatehouse.dev/internal/rbac"
)

// User is a registered account. The password hash and refresh tokens never
// leave the server.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	PasswordHash  string         `json:"-"`
	Role          rbac.Role      `json:"role"`
	Active        bool           `json:"isActive"`
	RefreshTokens []RefreshToken `json:"-"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// RefreshToken is one outstanding refresh token held by a user.
type RefreshToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HasRefreshToken reports whether token is among the user's unexpired
// refresh tokens.
func (u User) HasRefreshToken(token string, now time.Time) bool {
	for _, rt := range u.RefreshTokens {
		if rt.Token == token && now.Before(rt.ExpiresAt) {
			return true
		}
	}
	return false
}

// Identity is the authenticated subject of a single request.
type Identity struct {
	SubjectID string    `json:"id"`
	Role      rbac.Role `json:"role"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
}

func (u User) Identity() Identity {
	return Identity{SubjectID: u.ID, Role: u.Role, Email: u.Email, Name: u.Name}
}

// Session is the result of a successful login.
type Session struct {
	User             User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
