package core

// Action is an operation an actor may request on a document.
type Action string

const (
	ActionCreate    Action = "create"
	ActionView      Action = "view"
	ActionEdit      Action = "edit"
	ActionDelete    Action = "delete"
	ActionSubmit    Action = "submit"
	ActionApprove   Action = "approve"
	ActionReject    Action = "reject"
	ActionReimburse Action = "reimburse"
	ActionConfirm   Action = "confirm"
	ActionPost      Action = "post"
	ActionPay       Action = "pay"
	ActionGenerate  Action = "generate" // spawn a bill/invoice from a confirmed order
)

// DocumentScope carries the two relations the policy can test: who created
// the document, and who manages the project it belongs to.
type DocumentScope struct {
	SubmittedBy      int
	ProjectManagerID int
}

// policyRule is one row of the declarative policy table. An action is
// allowed when the actor's role appears in anyRole, or when a relation
// matches: asOwner roles require ownership, asManager roles require the
// management relation.
type policyRule struct {
	anyRole   []Role
	asOwner   []Role
	asManager []Role
}

// policyTable consolidates the per-type permission checks into a single
// declarative table shared by every document service. Admin is a superset
// and is short-circuited in Allowed.
var policyTable = map[Action]policyRule{
	ActionCreate: {anyRole: []Role{RoleTeamMember, RoleProjectManager, RoleFinanceManager}},
	ActionView: {
		anyRole:   []Role{RoleFinanceManager},
		asOwner:   []Role{RoleTeamMember, RoleProjectManager},
		asManager: []Role{RoleProjectManager},
	},
	ActionEdit: {
		asOwner:   []Role{RoleTeamMember, RoleProjectManager, RoleFinanceManager},
		asManager: []Role{RoleProjectManager},
	},
	ActionSubmit: {
		asOwner: []Role{RoleTeamMember, RoleProjectManager, RoleFinanceManager},
	},
	ActionApprove: {
		anyRole:   []Role{RoleFinanceManager},
		asManager: []Role{RoleProjectManager},
	},
	ActionReject: {
		anyRole:   []Role{RoleFinanceManager},
		asManager: []Role{RoleProjectManager},
	},
	ActionReimburse: {anyRole: []Role{RoleFinanceManager}},
	ActionConfirm: {
		asOwner:   []Role{RoleTeamMember, RoleProjectManager, RoleFinanceManager},
		asManager: []Role{RoleProjectManager},
	},
	ActionPost: {
		anyRole:   []Role{RoleFinanceManager},
		asOwner:   []Role{RoleTeamMember, RoleProjectManager},
		asManager: []Role{RoleProjectManager},
	},
	ActionPay: {anyRole: []Role{RoleFinanceManager}},
	ActionGenerate: {
		anyRole:   []Role{RoleFinanceManager},
		asManager: []Role{RoleProjectManager},
	},
	ActionDelete: {}, // admin only
}

// Allowed is the pure access-control predicate. scope may be nil for
// actions that do not target an existing document (creation).
func Allowed(actor Actor, action Action, scope *DocumentScope) bool {
	if actor.Role == RoleAdmin {
		return true
	}

	rule, ok := policyTable[action]
	if !ok {
		return false
	}
	if roleIn(actor.Role, rule.anyRole) {
		return true
	}
	if scope == nil {
		return false
	}
	if scope.SubmittedBy == actor.ID && roleIn(actor.Role, rule.asOwner) {
		return true
	}
	if scope.ProjectManagerID == actor.ID && roleIn(actor.Role, rule.asManager) {
		return true
	}
	return false
}

func roleIn(r Role, roles []Role) bool {
	for _, v := range roles {
		if v == r {
			return true
		}
	}
	return false
}
