package auth

import (
	"context"
	"time"
)

// UserStore is the persistence the auth service needs. Refresh-token
// changes are single atomic updates of the user's token list; implementations
// never rewrite the whole record to add or remove one.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	// AppendRefreshToken adds tok and drops entries expired at now.
	AppendRefreshToken(ctx context.Context, userID string, tok RefreshToken, now time.Time) error
	RemoveRefreshToken(ctx context.Context, userID, token string) error
}
