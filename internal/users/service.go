// Package users administers accounts: listing, role changes, deactivation
// and removal.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/rbac"
)

var (
	// ErrSelfModification guards against an administrator locking themselves out.
	ErrSelfModification = errors.New("users: cannot delete, deactivate or demote your own account")
	ErrForbidden        = errors.New("users: role changes require manage:roles")
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Filter narrows a listing. Nil Active matches both states.
type Filter struct {
	Role   rbac.Role
	Active *bool
	Offset int
	Limit  int
}

// Update carries the fields to change; nil fields are left as they are.
type Update struct {
	Name   *string
	Email  *string
	Role   *rbac.Role
	Active *bool
}

// Store persists accounts. Not-found is reported as auth.ErrNotFound and a
// duplicate email as auth.ErrEmailTaken.
type Store interface {
	UserByID(ctx context.Context, id string) (auth.User, error)
	ListUsers(ctx context.Context, f Filter) ([]auth.User, int, error)
	UpdateUser(ctx context.Context, id string, upd Update, now time.Time) (auth.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type Service struct {
	store  Store
	engine *rbac.Engine
	now    func() time.Time
}

func NewService(store Store, engine *rbac.Engine) *Service {
	if engine == nil {
		engine = rbac.NewEngine(nil)
	}
	return &Service{store: store, engine: engine, now: time.Now}
}

func (s *Service) List(ctx context.Context, f Filter) ([]auth.User, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListUsers(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (auth.User, error) {
	return s.store.UserByID(ctx, id)
}

// UpdateInput is a partial account change requested by who.
type UpdateInput struct {
	Name   *string
	Email  *string
	Role   *string
	Active *bool
}

// Update changes an account. Changing a role needs manage:roles on users; no
// one may deactivate or demote their own account.
func (s *Service) Update(ctx context.Context, who auth.Identity, id string, in UpdateInput) (auth.User, error) {
	current, err := s.store.UserByID(ctx, id)
	if err != nil {
		return auth.User{}, err
	}

	var upd Update
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if utf8.RuneCountInString(name) < 2 {
			return auth.User{}, fmt.Errorf("%w: name must be at least 2 characters", auth.ErrInvalidInput)
		}
		upd.Name = &name
	}
	if in.Email != nil {
		email := auth.NormalizeEmail(*in.Email)
		if !auth.ValidEmail(email) {
			return auth.User{}, fmt.Errorf("%w: email is invalid", auth.ErrInvalidInput)
		}
		upd.Email = &email
	}
	if in.Role != nil {
		role, err := rbac.ParseRole(*in.Role)
		if err != nil {
			return auth.User{}, err
		}
		if role != current.Role {
			if !s.engine.Check(who.Role, rbac.ResourceUsers, rbac.ManageRoles) {
				return auth.User{}, ErrForbidden
			}
			if id == who.SubjectID {
				return auth.User{}, ErrSelfModification
			}
		}
		upd.Role = &role
	}
	if in.Active != nil {
		if !*in.Active && id == who.SubjectID {
			return auth.User{}, ErrSelfModification
		}
		active := *in.Active
		upd.Active = &active
	}

	user, err := s.store.UpdateUser(ctx, id, upd, s.now().UTC())
	if err != nil {
		return auth.User{}, err
	}
	obs.Ctx(ctx).Info().
		Str("admin_id", who.SubjectID).
		Str("target_user_id", id).
		Msg("user updated")
	return user, nil
}

// Delete removes an account other than the caller's own.
func (s *Service) Delete(ctx context.Context, who auth.Identity, id string) error {
	if id == who.SubjectID {
		return ErrSelfModification
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	obs.Ctx(ctx).Info().Str("admin_id", who.SubjectID).Str("deleted_user_id", id).Msg("user deleted")
	return nil
}
