package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the authorization level of an actor.
type Role string

const (
	RoleTeamMember     Role = "team_member"
	RoleProjectManager Role = "project_manager"
	RoleFinanceManager Role = "finance_manager"
	RoleAdmin          Role = "admin"
)

// ValidRole reports whether r is one of the defined roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleTeamMember, RoleProjectManager, RoleFinanceManager, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated principal requesting an operation.
type Actor struct {
	ID   int
	Role Role
}

// Project owns documents and accumulates their ledger effects.
// Cost and Revenue are mutated only by document transitions; Profit is
// derived on read and never stored.
type Project struct {
	ID        int
	Code      string
	Name      string
	ManagerID int
	Cost      decimal.Decimal
	Revenue   decimal.Decimal
	CreatedAt time.Time
}

// Profit is the project margin derived from the stored aggregates.
func (p *Project) Profit() decimal.Decimal {
	return p.Revenue.Sub(p.Cost)
}

// Task is a unit of work within a project. Document lines may reference it.
type Task struct {
	ID         int
	ProjectID  int
	Name       string
	AssigneeID *int
	CreatedAt  time.Time
}

// User represents a system user. The transport layer resolves users into
// Actors; core services only ever see the Actor.
type User struct {
	ID        int
	Username  string
	Email     string
	Role      Role
	IsActive  bool
	CreatedAt time.Time
}

// Actor converts a user row into the principal passed to core operations.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
