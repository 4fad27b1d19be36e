// Package service holds the authoritative decision procedure and the
// mutation paths around it: grants, resource sharing and permission rules.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"labguard/internal/audit"
	"labguard/internal/database"
	"labguard/internal/model"
)

const (
	grantsVersionKey = "permissions:grants:ver"
	grantsCacheTTL   = 5 * time.Minute
)

// Store is the persistence surface the services need. *database.Database
// satisfies it.
type Store interface {
	ListGrantsForPrincipal(ctx context.Context, targets database.TargetSet) ([]model.Permission, error)
	ListMatchingGrants(ctx context.Context, targets database.TargetSet, rt model.ResourceType, action model.Action, resourceID string) ([]model.Permission, error)
	CreatePermission(ctx context.Context, params database.CreatePermissionParams) (model.Permission, error)
	GetPermissionByID(ctx context.Context, id uuid.UUID) (model.Permission, error)
	DeactivatePermission(ctx context.Context, id uuid.UUID) error
	ReplaceResourceGrants(ctx context.Context, rt model.ResourceType, resourceID string, grants []database.CreatePermissionParams) error
	GetResourceConfig(ctx context.Context, rt model.ResourceType, resourceID string) (model.ResourcePermissionConfig, error)
	SaveResourceConfig(ctx context.Context, cfg model.ResourcePermissionConfig) error
	GetTeamMembership(ctx context.Context, teamID, userID string) (model.TeamMembership, error)
	GetTeamSettings(ctx context.Context, teamID string) (model.TeamSettings, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	TeamExists(ctx context.Context, teamID string) (bool, error)
	OrganizationExists(ctx context.Context, orgID string) (bool, error)
	CreateRule(ctx context.Context, params database.CreateRuleParams) (model.PermissionRule, error)
	ListRules(ctx context.Context) ([]model.PermissionRule, error)
	GetRuleByID(ctx context.Context, id uuid.UUID) (model.PermissionRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// MembershipResolver expands a principal into the teams and organizations it
// belongs to. relations.Client satisfies it.
type MembershipResolver interface {
	TeamIDs(ctx context.Context, userID string) ([]string, error)
	OrganizationIDs(ctx context.Context, userID string) ([]string, error)
}

// AuditLogger records security-relevant events. audit.Auditor satisfies it.
type AuditLogger interface {
	LogEvent(ctx context.Context, params audit.LogEventParam) error
}

// Requirement describes a grant that would have satisfied a denied check.
type Requirement struct {
	ResourceType model.ResourceType `json:"resourceType"`
	Action       model.Action       `json:"action"`
	ResourceID   string             `json:"resourceId,omitempty"`
}

// CheckResult is the decision for one check. Reason is set only on denial.
type CheckResult struct {
	HasPermission bool          `json:"hasPermission"`
	Reason        string        `json:"reason,omitempty"`
	Required      []Requirement `json:"required,omitempty"`
}

func allowed() CheckResult {
	return CheckResult{HasPermission: true}
}

func denied(reason string, required ...Requirement) CheckResult {
	return CheckResult{HasPermission: false, Reason: reason, Required: required}
}

// PermissionService is the authoritative decision procedure plus the grant
// lifecycle. All reads are union-over-grants; there is no deny override.
type PermissionService struct {
	logger      *slog.Logger
	store       Store
	memberships MembershipResolver
	redis       redis.UniversalClient
	auditor     AuditLogger
	limiter     *rateLimiter
	now         func() time.Time
}

func NewPermissionService(logger *slog.Logger, store Store, memberships MembershipResolver, rdb redis.UniversalClient, auditor AuditLogger) *PermissionService {
	return &PermissionService{
		logger:      logger.With("component", "permission_service"),
		store:       store,
		memberships: memberships,
		redis:       rdb,
		auditor:     auditor,
		limiter:     &rateLimiter{logger: logger.With("component", "rate_limiter"), redis: rdb},
		now:         time.Now,
	}
}

func (s *PermissionService) targetSet(ctx context.Context, p model.Principal) (database.TargetSet, error) {
	teamIDs, err := s.memberships.TeamIDs(ctx, p.ID)
	if err != nil {
		return database.TargetSet{}, fmt.Errorf("failed to resolve teams: %w", err)
	}
	orgIDs, err := s.memberships.OrganizationIDs(ctx, p.ID)
	if err != nil {
		return database.TargetSet{}, fmt.Errorf("failed to resolve organizations: %w", err)
	}
	return database.TargetSet{
		UserID:          p.ID,
		Role:            p.Role,
		TeamIDs:         teamIDs,
		OrganizationIDs: orgIDs,
	}, nil
}

// Check decides whether the principal may perform the action. Admins bypass
// everything; otherwise the decision is the OR over all valid grants reaching
// the principal, plus the owner's implicit access and the public-read rule.
// Any resolution failure denies and returns the error.
func (s *PermissionService) Check(ctx context.Context, p model.Principal, rt model.ResourceType, action model.Action, resourceID string, evalCtx model.EvalContext) (CheckResult, error) {
	if !model.ValidResourceType(rt) || !model.ValidAction(action) {
		return denied("unknown resource type or action"), nil
	}
	if p.IsAdmin() {
		return allowed(), nil
	}
	if !p.IsAuthenticated {
		return denied("authentication required"), nil
	}

	if evalCtx.Now.IsZero() {
		evalCtx.Now = s.now()
	}

	targets, err := s.targetSet(ctx, p)
	if err != nil {
		return denied("permission resolution failed"), err
	}

	grants, err := s.store.ListMatchingGrants(ctx, targets, rt, action, resourceID)
	if err != nil {
		return denied("permission resolution failed"), err
	}
	for _, g := range grants {
		if g.ValidAt(evalCtx.Now) && g.ConditionsSatisfied(evalCtx) {
			return allowed(), nil
		}
	}

	if resourceID != "" {
		cfg, err := s.store.GetResourceConfig(ctx, rt, resourceID)
		switch {
		case err == nil:
			if cfg.OwnerID == p.ID {
				return allowed(), nil
			}
			if cfg.IsPublic && action == model.ActionRead {
				return allowed(), nil
			}
		case !errors.Is(err, database.ErrNotFound):
			return denied("permission resolution failed"), err
		}
	}

	result := denied("no grant covers this action",
		Requirement{ResourceType: rt, Action: action, ResourceID: resourceID})
	s.auditDenied(ctx, p, rt, action, resourceID)
	return result, nil
}

func (s *PermissionService) auditDenied(ctx context.Context, p model.Principal, rt model.ResourceType, action model.Action, resourceID string) {
	err := s.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorID: p.ID,
		Type:    audit.AuditLogEventTypePermissionCheckDenied,
		Data: map[string]any{
			"resourceType": rt,
			"action":       action,
			"resourceId":   resourceID,
		},
	})
	if err != nil {
		s.logger.Warn("failed to audit denied check", "error", err)
	}
}

// UserGrants returns every active grant reaching the principal, for the
// consumer-side cache to snapshot. Results are cached in redis under a
// versioned key; any grant mutation bumps the version.
func (s *PermissionService) UserGrants(ctx context.Context, p model.Principal) ([]model.Permission, error) {
	if !p.IsAuthenticated {
		return nil, ErrUnauthenticated
	}

	key := s.grantsKey(ctx, p.ID)
	if cached, err := s.redis.Get(ctx, key).Result(); err == nil {
		var grants []model.Permission
		if err := json.Unmarshal([]byte(cached), &grants); err == nil {
			return grants, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("grant cache read failed", "error", err)
	}

	targets, err := s.targetSet(ctx, p)
	if err != nil {
		return nil, err
	}
	grants, err := s.store.ListGrantsForPrincipal(ctx, targets)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(grants); err == nil {
		if err := s.redis.Set(ctx, key, encoded, grantsCacheTTL).Err(); err != nil {
			s.logger.Warn("grant cache write failed", "error", err)
		}
	}
	return grants, nil
}

func (s *PermissionService) grantsKey(ctx context.Context, userID string) string {
	ver, err := s.redis.Get(ctx, grantsVersionKey).Result()
	if err != nil {
		ver = "0"
	}
	return fmt.Sprintf("permissions:grants:%s:%s", ver, userID)
}

// invalidateGrantCaches bumps the version so every cached aggregation goes
// stale at once. Grants on team or organization targets can affect users we
// cannot enumerate cheaply, so invalidation is global.
func (s *PermissionService) invalidateGrantCaches(ctx context.Context) {
	if err := s.redis.Incr(ctx, grantsVersionKey).Err(); err != nil {
		s.logger.Warn("failed to invalidate grant caches", "error", err)
	}
}

type GrantParams struct {
	ResourceType model.ResourceType
	ResourceID   string
	Action       model.Action
	TargetType   model.TargetType
	TargetID     string
	Conditions   []model.Condition
	ExpiresAt    *time.Time
}

func (p GrantParams) validate() error {
	if !model.ValidResourceType(p.ResourceType) {
		return &ConfigValidationError{Field: "resourceType", Detail: string(p.ResourceType)}
	}
	if !model.ValidAction(p.Action) {
		return &ConfigValidationError{Field: "action", Detail: string(p.Action)}
	}
	switch p.TargetType {
	case model.TargetTypeUser, model.TargetTypeTeam, model.TargetTypeOrganization:
		if p.TargetID == "" {
			return &ConfigValidationError{Field: "targetId", Detail: "required for target type " + string(p.TargetType)}
		}
	case model.TargetTypeRole:
		if p.TargetID != string(model.RoleAdmin) && p.TargetID != string(model.RoleUser) {
			return &ConfigValidationError{Field: "targetId", Detail: "unknown role " + p.TargetID}
		}
	case model.TargetTypePublic:
		if p.TargetID != "" {
			return &ConfigValidationError{Field: "targetId", Detail: "must be empty for public grants"}
		}
	default:
		return &ConfigValidationError{Field: "targetType", Detail: string(p.TargetType)}
	}
	return nil
}

// Grant creates a new grant. The caller must be an admin or hold manage on
// the targeted resource. Targets must exist; grants to missing users, teams
// or organizations are rejected rather than silently dangling.
func (s *PermissionService) Grant(ctx context.Context, p model.Principal, params GrantParams) (model.Permission, error) {
	if !p.IsAuthenticated {
		return model.Permission{}, ErrUnauthenticated
	}
	if err := s.limiter.allow(ctx, p.ID); err != nil {
		return model.Permission{}, err
	}
	if err := params.validate(); err != nil {
		return model.Permission{}, err
	}
	if err := s.requireManage(ctx, p, params.ResourceType, params.ResourceID); err != nil {
		return model.Permission{}, err
	}
	if err := s.validateTarget(ctx, params.TargetType, params.TargetID); err != nil {
		return model.Permission{}, err
	}

	grant, err := s.store.CreatePermission(ctx, database.CreatePermissionParams{
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
		Action:       params.Action,
		TargetType:   params.TargetType,
		TargetID:     params.TargetID,
		Conditions:   params.Conditions,
		CreatedBy:    p.ID,
		ExpiresAt:    params.ExpiresAt,
	})
	if err != nil {
		return model.Permission{}, err
	}

	s.invalidateGrantCaches(ctx)
	s.logEvent(ctx, p.ID, audit.AuditLogEventTypePermissionGrant, map[string]any{
		"permissionId": grant.ID,
		"resourceType": grant.ResourceType,
		"resourceId":   grant.ResourceID,
		"action":       grant.Action,
		"targetType":   grant.TargetType,
		"targetId":     grant.TargetID,
	})
	return grant, nil
}

// Revoke deactivates a grant. Allowed for admins, holders of manage on the
// grant's resource, and the grant's creator. The row is kept for audit.
func (s *PermissionService) Revoke(ctx context.Context, p model.Principal, id uuid.UUID) error {
	if !p.IsAuthenticated {
		return ErrUnauthenticated
	}
	if err := s.limiter.allow(ctx, p.ID); err != nil {
		return err
	}

	grant, err := s.store.GetPermissionByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if grant.CreatedBy != p.ID {
		if err := s.requireManage(ctx, p, grant.ResourceType, grant.ResourceID); err != nil {
			return err
		}
	}

	if err := s.store.DeactivatePermission(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.invalidateGrantCaches(ctx)
	s.logEvent(ctx, p.ID, audit.AuditLogEventTypePermissionRevoke, map[string]any{
		"permissionId": grant.ID,
		"resourceType": grant.ResourceType,
		"resourceId":   grant.ResourceID,
		"action":       grant.Action,
	})
	return nil
}

func (s *PermissionService) requireManage(ctx context.Context, p model.Principal, rt model.ResourceType, resourceID string) error {
	if p.IsAdmin() {
		return nil
	}
	result, err := s.Check(ctx, p, rt, model.ActionManage, resourceID, model.EvalContext{Now: s.now()})
	if err != nil {
		return err
	}
	if !result.HasPermission {
		return ErrForbidden
	}
	return nil
}

func (s *PermissionService) validateTarget(ctx context.Context, tt model.TargetType, targetID string) error {
	var (
		found bool
		err   error
	)
	switch tt {
	case model.TargetTypeUser:
		found, err = s.store.UserExists(ctx, targetID)
	case model.TargetTypeTeam:
		found, err = s.store.TeamExists(ctx, targetID)
	case model.TargetTypeOrganization:
		found, err = s.store.OrganizationExists(ctx, targetID)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if !found {
		return &ConfigValidationError{Field: "targetId", Detail: "unknown target " + targetID}
	}
	return nil
}

func (s *PermissionService) logEvent(ctx context.Context, actorID string, eventType audit.AuditLogEventType, data map[string]any) {
	if err := s.auditor.LogEvent(ctx, audit.LogEventParam{
		ActorID: actorID,
		Type:    eventType,
		Data:    data,
	}); err != nil {
		s.logger.Warn("failed to write audit event", "event_type", eventType, "error", err)
	}
}
