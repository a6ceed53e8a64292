package rbac

import (
	"gatehouse.dev/internal/obs"
)

// Engine evaluates authorization decisions against a Matrix.
type Engine struct {
	matrix Matrix
}

// NewEngine returns an engine over m, or DefaultMatrix when m is nil.
func NewEngine(m Matrix) *Engine {
	if m == nil {
		m = DefaultMatrix
	}
	return &Engine{matrix: m}
}

// Check is a direct matrix lookup.
func (e *Engine) Check(role Role, resource Resource, action Action) bool {
	ok := e.matrix.Allows(role, resource, action)
	observe(resource, action, ok)
	return ok
}

// CheckOwned decides an action on a specific resource instance owned by
// ownerID. Global reach (verb:all) is checked first, then verb:own with a
// matching owner. A bare read additionally accepts the unsuffixed read
// permission as unrestricted.
func (e *Engine) CheckOwned(role Role, resource Resource, verb Action, subjectID, ownerID string) bool {
	verb = verb.Bare()
	ok := e.checkOwned(role, resource, verb, subjectID, ownerID)
	observe(resource, verb, ok)
	return ok
}

func (e *Engine) checkOwned(role Role, resource Resource, verb Action, subjectID, ownerID string) bool {
	if e.matrix.Allows(role, resource, verb.All()) {
		return true
	}
	if e.matrix.Allows(role, resource, verb.Own()) && ownerID != "" && subjectID == ownerID {
		return true
	}
	if verb == Read && e.matrix.Allows(role, resource, Read) {
		return true
	}
	return false
}

// HasGlobalReach reports whether role holds verb:all on resource, in which
// case no owner lookup is needed.
func (e *Engine) HasGlobalReach(role Role, resource Resource, verb Action) bool {
	return e.matrix.Allows(role, resource, verb.Bare().All())
}

// Actions lists what role may do on resource under this engine's matrix.
func (e *Engine) Actions(role Role, resource Resource) []string {
	return e.matrix.Actions(role, resource)
}

// ReadReach returns how far role can read a resource collection: ScopeAll
// for read:all or bare read, ScopeOwn for read:own only, ScopeNone otherwise.
// List queries narrow to the subject's records when the reach is ScopeOwn.
func (e *Engine) ReadReach(role Role, resource Resource) Scope {
	switch {
	case e.matrix.Allows(role, resource, Read.All()), e.matrix.Allows(role, resource, Read):
		return ScopeAll
	case e.matrix.Allows(role, resource, Read.Own()):
		return ScopeOwn
	default:
		return ScopeNone
	}
}

func observe(resource Resource, action Action, ok bool) {
	outcome := "deny"
	if ok {
		outcome = "allow"
	}
	obs.AuthzDecisions.WithLabelValues(string(resource), action.String(), outcome).Inc()
}
