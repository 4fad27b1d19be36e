package model

import (
	"time"

	"github.com/google/uuid"
)

// RuleGrant is one grant template inside a rule. TargetType/TargetID are
// supplied when the rule is applied, ResourceID comes from the resource it is
// applied to, so a template only fixes the type, action, conditions and
// optional lifetime.
type RuleGrant struct {
	ResourceType ResourceType   `json:"resourceType"`
	Action       Action         `json:"action"`
	Conditions   []Condition    `json:"conditions,omitempty"`
	ExpiresAfter *time.Duration `json:"expiresAfter,omitempty"`
}

// PermissionRule is a named, reusable bundle of grant templates. Built-in
// rules ship with the system and cannot be deleted.
type PermissionRule struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Grants      []RuleGrant `json:"grants"`
	IsBuiltIn   bool        `json:"isBuiltIn"`
	CreatedBy   string      `json:"createdBy"`
	CreatedAt   time.Time   `json:"createdAt"`
}
