// Package team resolves a team role plus the team settings overlay into the
// effective action set available to a member.
package team

import (
	"labguard/internal/model"
)

// EffectiveActions maps a team role to its permitted action set. The table
// is closed and monotone: owner ⊇ admin ⊇ editor ⊇ member ⊇ guest. The
// settings overlay can add invite to editor/member without promoting the
// role. Unknown roles resolve to no actions.
func EffectiveActions(role model.TeamRole, settings model.TeamSettings) map[model.TeamAction]bool {
	actions := make(map[model.TeamAction]bool)

	switch role {
	case model.TeamRoleOwner:
		add(actions,
			model.TeamActionView,
			model.TeamActionEdit,
			model.TeamActionDelete,
			model.TeamActionInvite,
			model.TeamActionRemoveMember,
			model.TeamActionChangeRole,
			model.TeamActionEditSettings,
			model.TeamActionCreateResource,
			model.TeamActionEditResource,
			model.TeamActionDeleteResource,
		)
	case model.TeamRoleAdmin:
		// Owner minus the two destructive actions.
		add(actions,
			model.TeamActionView,
			model.TeamActionEdit,
			model.TeamActionInvite,
			model.TeamActionRemoveMember,
			model.TeamActionChangeRole,
			model.TeamActionEditSettings,
			model.TeamActionCreateResource,
			model.TeamActionEditResource,
		)
	case model.TeamRoleEditor:
		add(actions,
			model.TeamActionView,
			model.TeamActionCreateResource,
			model.TeamActionEditResource,
		)
		if settings.AllowMemberInvite {
			add(actions, model.TeamActionInvite)
		}
	case model.TeamRoleMember:
		add(actions,
			model.TeamActionView,
			model.TeamActionCreateResource,
		)
		if settings.AllowMemberInvite {
			add(actions, model.TeamActionInvite)
		}
	case model.TeamRoleGuest:
		add(actions, model.TeamActionView)
	}

	return actions
}

// Can reports whether the role may perform the action under the given
// settings.
func Can(role model.TeamRole, settings model.TeamSettings, action model.TeamAction) bool {
	return EffectiveActions(role, settings)[action]
}

// ActionList returns the effective actions as a stable, ordered slice for
// API responses.
func ActionList(role model.TeamRole, settings model.TeamSettings) []model.TeamAction {
	effective := EffectiveActions(role, settings)
	ordered := []model.TeamAction{
		model.TeamActionView,
		model.TeamActionEdit,
		model.TeamActionDelete,
		model.TeamActionInvite,
		model.TeamActionRemoveMember,
		model.TeamActionChangeRole,
		model.TeamActionEditSettings,
		model.TeamActionCreateResource,
		model.TeamActionEditResource,
		model.TeamActionDeleteResource,
	}
	out := make([]model.TeamAction, 0, len(effective))
	for _, a := range ordered {
		if effective[a] {
			out = append(out, a)
		}
	}
	return out
}

func add(set map[model.TeamAction]bool, actions ...model.TeamAction) {
	for _, a := range actions {
		set[a] = true
	}
}
