package rbac

import "strings"

// Scope is the ownership reach attached to an action.
type Scope string

const (
	ScopeNone Scope = ""
	ScopeOwn  Scope = "own"
	ScopeAll  Scope = "all"
)

// Action is a verb with an optional ownership scope. Its wire form is
// "verb" or "verb:own" / "verb:all".
type Action struct {
	Verb  string
	Scope Scope
}

var (
	Create = Action{Verb: "create"}
	Read   = Action{Verb: "read"}
	Update = Action{Verb: "update"}
	Delete = Action{Verb: "delete"}

	ManageRoles  = Action{Verb: "manage:roles"}
	AccessPanel  = Action{Verb: "access:panel"}
	ViewLogs     = Action{Verb: "view:logs"}
	ManageSystem = Action{Verb: "manage:system"}
)

// Own returns the action restricted to the subject's own resources.
func (a Action) Own() Action { return Action{Verb: a.Verb, Scope: ScopeOwn} }

// All returns the action extended to every resource of its kind.
func (a Action) All() Action { return Action{Verb: a.Verb, Scope: ScopeAll} }

// Bare drops the scope.
func (a Action) Bare() Action { return Action{Verb: a.Verb} }

func (a Action) String() string {
	if a.Scope == ScopeNone {
		return a.Verb
	}
	return a.Verb + ":" + string(a.Scope)
}

// ParseAction reads the wire form. Only a trailing "own" or "all" segment
// is a scope; "manage:roles" stays a plain verb.
func ParseAction(s string) Action {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, ':'); i > 0 {
		switch Scope(s[i+1:]) {
		case ScopeOwn:
			return Action{Verb: s[:i], Scope: ScopeOwn}
		case ScopeAll:
			return Action{Verb: s[:i], Scope: ScopeAll}
		}
	}
	return Action{Verb: s}
}
