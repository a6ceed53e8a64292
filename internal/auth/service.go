package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"gatehouse.dev/internal/ids"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/rbac"
)

const (
	minPasswordLength = 6
	minNameLength     = 2
)

var emailRule = validator.New()

// Service authenticates subjects and manages their sessions.
type Service struct {
	users  UserStore
	tokens *TokenManager
	hasher PasswordHasher
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithNow overrides the time source used for refresh-token bookkeeping.
func WithNow(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over users and tokens.
func NewService(users UserStore, tokens *TokenManager, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token manager is required")
	}
	svc := &Service{
		users:  users,
		tokens: tokens,
		hasher: BcryptHasher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Tokens exposes the manager so the HTTP layer can size cookies.
func (s *Service) Tokens() *TokenManager { return s.tokens }

// RegisterInput carries a self-registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail applies the same address rule as request validation.
func ValidEmail(email string) bool {
	return emailRule.Var(email, "required,email") == nil
}

// Register creates an active Viewer account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	if !ValidEmail(email) {
		return User{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len([]rune(name)) < minNameLength {
		return User{}, fmt.Errorf("%w: name must be at least %d characters", ErrInvalidInput, minNameLength)
	}

	if _, err := s.users.UserByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user, err := s.users.CreateUser(ctx, User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         rbac.RoleViewer,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return User{}, err
	}
	obs.Ctx(ctx).Info().Str("user_id", user.ID).Str("email", user.Email).Msg("user registered")
	return user, nil
}

// Login verifies credentials and opens a session. Unknown emails, inactive
// accounts and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.UserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		s.fail(ctx, "unknown_email")
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		s.fail(ctx, "inactive")
		return Session{}, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.fail(ctx, "bad_password")
		return Session{}, ErrInvalidCredentials
	}

	access, accessExp, err := s.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return Session{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.users.AppendRefreshToken(ctx, user.ID, RefreshToken{Token: refresh, ExpiresAt: refreshExp}, s.now().UTC()); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}

	obs.Ctx(ctx).Info().Str("user_id", user.ID).Str("email", user.Email).Msg("user logged in")
	return Session{
		User:             user,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges a held refresh token for a new access token. The refresh
// token itself is left in place.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.fail(ctx, "invalid_refresh")
		return "", time.Time{}, err
	}
	user, err := s.users.UserByID(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		s.fail(ctx, "unknown_subject")
		return "", time.Time{}, ErrInvalidToken
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		s.fail(ctx, "inactive")
		return "", time.Time{}, ErrInvalidToken
	}
	if !user.HasRefreshToken(refreshToken, s.now()) {
		s.fail(ctx, "revoked_refresh")
		return "", time.Time{}, ErrRefreshRevoked
	}
	return s.tokens.IssueAccessToken(user.ID, user.Role)
}

// Logout revokes exactly the presented refresh token. An empty token or an
// already-deleted user is not an error.
func (s *Service) Logout(ctx context.Context, subjectID, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" || strings.TrimSpace(subjectID) == "" {
		return nil
	}
	err := s.users.RemoveRefreshToken(ctx, subjectID, refreshToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	obs.Ctx(ctx).Info().Str("user_id", subjectID).Msg("user logged out")
	return nil
}

// Authenticate resolves an access token to the current identity of its
// subject. Missing and inactive subjects fail the same way as a bad token.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokens.VerifyAccessToken(token)
	if err != nil {
		s.fail(ctx, "invalid_token")
		return Identity{}, ErrInvalidToken
	}
	user, err := s.users.UserByID(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		s.fail(ctx, "unknown_subject")
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		s.fail(ctx, "inactive")
		return Identity{}, ErrInvalidToken
	}
	return user.Identity(), nil
}

// Me returns the full record of the authenticated subject.
func (s *Service) Me(ctx context.Context) (User, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return User{}, ErrInvalidToken
	}
	return s.users.UserByID(ctx, id.SubjectID)
}

func (s *Service) fail(ctx context.Context, reason string) {
	obs.AuthFailures.WithLabelValues(reason).Inc()
	obs.Ctx(ctx).Warn().Str("reason", reason).Msg("authentication failed")
}
