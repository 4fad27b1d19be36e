package model

// TeamRole is the strict role hierarchy within a team. Each level's action
// set is a superset of the one below.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleAdmin  TeamRole = "admin"
	TeamRoleEditor TeamRole = "editor"
	TeamRoleMember TeamRole = "member"
	TeamRoleGuest  TeamRole = "guest"
)

// TeamAction is an operation available inside a team, resolved from the
// member's role and the team settings overlay.
type TeamAction string

const (
	TeamActionView           TeamAction = "view"
	TeamActionEdit           TeamAction = "edit"
	TeamActionDelete         TeamAction = "delete"
	TeamActionInvite         TeamAction = "invite"
	TeamActionRemoveMember   TeamAction = "remove_member"
	TeamActionChangeRole     TeamAction = "change_role"
	TeamActionEditSettings   TeamAction = "edit_settings"
	TeamActionCreateResource TeamAction = "create_resource"
	TeamActionEditResource   TeamAction = "edit_resource"
	TeamActionDeleteResource TeamAction = "delete_resource"
)

// TeamSettings can grant an extra capability to an otherwise-lower role
// without promoting it.
type TeamSettings struct {
	AllowMemberInvite bool `json:"allowMemberInvite"`
}

// TeamMembership ties a user to a team with a role.
type TeamMembership struct {
	TeamID string   `json:"teamId"`
	UserID string   `json:"userId"`
	Role   TeamRole `json:"role"`
}
