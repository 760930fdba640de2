package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"projectbooks/internal/core"
)

func TestAllowed(t *testing.T) {
	owner := core.Actor{ID: 10, Role: core.RoleTeamMember}
	manager := core.Actor{ID: 20, Role: core.RoleProjectManager}
	otherManager := core.Actor{ID: 21, Role: core.RoleProjectManager}
	finance := core.Actor{ID: 30, Role: core.RoleFinanceManager}
	admin := core.Actor{ID: 40, Role: core.RoleAdmin}
	stranger := core.Actor{ID: 11, Role: core.RoleTeamMember}

	scope := &core.DocumentScope{SubmittedBy: owner.ID, ProjectManagerID: manager.ID}

	tests := []struct {
		name   string
		actor  core.Actor
		action core.Action
		scope  *core.DocumentScope
		want   bool
	}{
		{"team member creates", owner, core.ActionCreate, nil, true},
		{"owner views own document", owner, core.ActionView, scope, true},
		{"stranger cannot view", stranger, core.ActionView, scope, false},
		{"managing PM views", manager, core.ActionView, scope, true},
		{"unrelated PM cannot view", otherManager, core.ActionView, scope, false},
		{"finance views anything", finance, core.ActionView, scope, true},

		{"owner edits own draft", owner, core.ActionEdit, scope, true},
		{"stranger cannot edit", stranger, core.ActionEdit, scope, false},
		{"managing PM edits", manager, core.ActionEdit, scope, true},

		{"owner submits", owner, core.ActionSubmit, scope, true},
		{"managing PM cannot submit for owner", manager, core.ActionSubmit, scope, false},

		{"owner cannot approve own", owner, core.ActionApprove, scope, false},
		{"managing PM approves", manager, core.ActionApprove, scope, true},
		{"unrelated PM cannot approve", otherManager, core.ActionApprove, scope, false},
		{"finance approves", finance, core.ActionApprove, scope, true},
		{"managing PM rejects", manager, core.ActionReject, scope, true},

		{"finance reimburses", finance, core.ActionReimburse, scope, true},
		{"managing PM cannot reimburse", manager, core.ActionReimburse, scope, false},

		{"owner confirms own order", owner, core.ActionConfirm, scope, true},
		{"managing PM confirms", manager, core.ActionConfirm, scope, true},
		{"stranger cannot confirm", stranger, core.ActionConfirm, scope, false},

		{"owner posts own document", owner, core.ActionPost, scope, true},
		{"finance posts", finance, core.ActionPost, scope, true},
		{"finance pays", finance, core.ActionPay, scope, true},
		{"owner cannot pay", owner, core.ActionPay, scope, false},
		{"managing PM cannot pay", manager, core.ActionPay, scope, false},

		{"finance generates from order", finance, core.ActionGenerate, scope, true},
		{"managing PM generates from order", manager, core.ActionGenerate, scope, true},
		{"owner cannot generate", owner, core.ActionGenerate, scope, false},

		{"nobody but admin deletes", finance, core.ActionDelete, scope, false},
		{"owner cannot delete", owner, core.ActionDelete, scope, false},

		{"admin does everything", admin, core.ActionDelete, nil, true},
		{"admin pays", admin, core.ActionPay, scope, true},

		{"nil scope blocks relation rules", owner, core.ActionEdit, nil, false},
		{"unknown action denied", owner, core.Action("explode"), scope, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := core.Allowed(tt.actor, tt.action, tt.scope)
			assert.Equal(t, tt.want, got)
		})
	}
}
