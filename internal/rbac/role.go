// Package rbac holds the static permission matrix and the decision engine
// that evaluates (role, resource, action) tuples against it, including the
// ownership-scoped :own/:all actions.
package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a value does not name one of the defined roles.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Role is the coarse-grained classification of a subject.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleEditor Role = "Editor"
	RoleViewer Role = "Viewer"
)

// Roles lists every defined role.
var Roles = []Role{RoleAdmin, RoleEditor, RoleViewer}

// ParseRole matches s against the defined roles ignoring case and
// surrounding whitespace and returns the canonical value.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, r := range Roles {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string { return string(r) }

// Resource names a category of protected entity.
type Resource string

const (
	ResourcePosts Resource = "posts"
	ResourceUsers Resource = "users"
	ResourceAdmin Resource = "admin"
)
