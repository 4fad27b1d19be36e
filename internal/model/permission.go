package model

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType is the closed set of resource kinds the engine resolves.
type ResourceType string

const (
	ResourceTypeExperiment   ResourceType = "experiment"
	ResourceTypeTemplate     ResourceType = "template"
	ResourceTypeDevice       ResourceType = "device"
	ResourceTypeResource     ResourceType = "resource"
	ResourceTypeTeam         ResourceType = "team"
	ResourceTypeReport       ResourceType = "report"
	ResourceTypeSetting      ResourceType = "setting"
	ResourceTypeUser         ResourceType = "user"
	ResourceTypeOrganization ResourceType = "organization"
)

// Action is the closed set of operations a grant can confer.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
	ActionShare   Action = "share"
	ActionApprove Action = "approve"
	ActionAssign  Action = "assign"
	ActionManage  Action = "manage"
)

// AllActions returns every action in the closed set.
func AllActions() []Action {
	return []Action{
		ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute,
		ActionShare, ActionApprove, ActionAssign, ActionManage,
	}
}

// ValidResourceType reports whether rt belongs to the closed resource set.
func ValidResourceType(rt ResourceType) bool {
	switch rt {
	case ResourceTypeExperiment, ResourceTypeTemplate, ResourceTypeDevice,
		ResourceTypeResource, ResourceTypeTeam, ResourceTypeReport,
		ResourceTypeSetting, ResourceTypeUser, ResourceTypeOrganization:
		return true
	}
	return false
}

// ValidAction reports whether a belongs to the closed action set.
func ValidAction(a Action) bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute,
		ActionShare, ActionApprove, ActionAssign, ActionManage:
		return true
	}
	return false
}

// TargetType identifies who receives a grant.
type TargetType string

const (
	TargetTypeUser         TargetType = "user"
	TargetTypeRole         TargetType = "role"
	TargetTypeTeam         TargetType = "team"
	TargetTypeOrganization TargetType = "organization"
	TargetTypePublic       TargetType = "public"
)

// Permission is a single grant: it confers an action on a resource type (or
// a specific resource instance) to a target. An empty ResourceID means the
// grant applies to every resource of its type.
type Permission struct {
	ID           uuid.UUID    `json:"id"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId,omitempty"`
	Action       Action       `json:"action"`
	TargetType   TargetType   `json:"targetType"`
	TargetID     string       `json:"targetId,omitempty"`
	Conditions   []Condition  `json:"conditions,omitempty"`
	CreatedBy    string       `json:"createdBy"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
	IsActive     bool         `json:"isActive"`
}

// ValidAt reports whether the grant is active and unexpired at the given
// instant. Expiry is lazy: there is no background sweep, so every consumer
// re-checks time at evaluation.
func (p Permission) ValidAt(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Matches reports whether the grant covers the requested resource type,
// action and resource instance. An unset resource ID on either side matches
// any instance of the type.
func (p Permission) Matches(rt ResourceType, action Action, resourceID string) bool {
	if p.ResourceType != rt || p.Action != action {
		return false
	}
	return resourceID == "" || p.ResourceID == "" || p.ResourceID == resourceID
}

// MatchesExact is like Matches but requires the grant to name the resource
// instance itself; type-wide grants do not satisfy it.
func (p Permission) MatchesExact(rt ResourceType, action Action, resourceID string) bool {
	return p.ResourceType == rt && p.Action == action && p.ResourceID == resourceID
}
