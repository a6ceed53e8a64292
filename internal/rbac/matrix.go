package rbac

import "sort"

// Matrix maps role → resource → allowed actions. Anything absent is denied.
type Matrix map[Role]map[Resource]map[Action]struct{}

// DefaultMatrix is the permission table of the content application.
var DefaultMatrix = Matrix{
	RoleAdmin: {
		ResourcePosts: actions(Create, Read, Update, Delete, Read.All(), Update.All(), Delete.All()),
		ResourceUsers: actions(Create, Read, Update, Delete, ManageRoles),
		ResourceAdmin: actions(AccessPanel, ViewLogs, ManageSystem),
	},
	RoleEditor: {
		ResourcePosts: actions(Create, Read, Read.All(), Update.Own(), Delete.Own()),
		ResourceUsers: actions(Read.Own()),
	},
	RoleViewer: {
		ResourcePosts: actions(Read, Read.All()),
		ResourceUsers: actions(Read.Own()),
	},
}

func actions(list ...Action) map[Action]struct{} {
	set := make(map[Action]struct{}, len(list))
	for _, a := range list {
		set[a] = struct{}{}
	}
	return set
}

// Allows reports whether role may perform action on resource.
func (m Matrix) Allows(role Role, resource Resource, action Action) bool {
	_, ok := m[role][resource][action]
	return ok
}

// Actions returns the wire form of every action role holds on resource,
// sorted.
func (m Matrix) Actions(role Role, resource Resource) []string {
	set := m[role][resource]
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return out
}

// Allows is the string boundary over DefaultMatrix: role casing is
// tolerated, unknown roles, resources or actions are denied.
func Allows(role, resource, action string) bool {
	r, err := ParseRole(role)
	if err != nil {
		return false
	}
	return DefaultMatrix.Allows(r, Resource(resource), ParseAction(action))
}
