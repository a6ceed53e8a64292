package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatehouse.dev/internal/rbac"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	defaultIssuer     = "gatehouse"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig holds the signing material and lifetimes. Access and refresh
// tokens are signed with different secrets.
type TokenConfig struct {
	Issuer        string
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// AccessClaims are the verified claims of an access token.
type AccessClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshClaims are the verified claims of a refresh token.
type RefreshClaims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(m *TokenManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// TokenManager issues and verifies HS256 access and refresh tokens.
type TokenManager struct {
	cfg    TokenConfig
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenManager validates cfg and returns a manager. The config is copied
// and never changes afterwards.
func NewTokenManager(cfg TokenConfig, opts ...TokenOption) (*TokenManager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = defaultIssuer
	}
	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)

	m := &TokenManager{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	return m, nil
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.cfg.AccessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// IssueAccessToken signs a short-lived token carrying the subject and role.
func (m *TokenManager) IssueAccessToken(subjectID string, role rbac.Role) (string, time.Time, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: %q", rbac.ErrUnknownRole, role)
	}
	now := m.now().UTC()
	exp := now.Add(m.cfg.AccessTTL)
	claims := AccessClaims{
		Role:             string(role),
		TokenType:        TokenTypeAccess,
		RegisteredClaims: m.registered(subjectID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a long-lived token for subjectID. Every token gets
// a random id, so two issued in the same second still differ.
func (m *TokenManager) IssueRefreshToken(subjectID string) (string, time.Time, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	now := m.now().UTC()
	exp := now.Add(m.cfg.RefreshTTL)
	claims := RefreshClaims{
		TokenType:        TokenTypeRefresh,
		RegisteredClaims: m.registered(subjectID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

func (m *TokenManager) registered(subjectID string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    m.cfg.Issuer,
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

// VerifyAccessToken checks signature, algorithm, issuer, expiry and token
// type. Any failure is ErrInvalidToken.
func (m *TokenManager) VerifyAccessToken(token string) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	var claims AccessClaims
	parsed, err := m.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.cfg.AccessSecret, nil
	})
	if err != nil || !parsed.Valid {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess || strings.TrimSpace(claims.Subject) == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	role, err := rbac.ParseRole(claims.Role)
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	claims.Role = string(role)
	return claims, nil
}

// VerifyRefreshToken is the stateless half of refresh validation; whether the
// token is still held by the user is checked by Service.Refresh.
func (m *TokenManager) VerifyRefreshToken(token string) (RefreshClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	var claims RefreshClaims
	parsed, err := m.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.cfg.RefreshSecret, nil
	})
	if err != nil || !parsed.Valid {
		return RefreshClaims{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh || strings.TrimSpace(claims.Subject) == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	return claims, nil
}
