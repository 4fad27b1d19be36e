package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"labguard/internal/audit"
	"labguard/internal/database"
	"labguard/internal/model"
)

// RuleService manages named bundles of grant templates. Rules are global
// objects, so mutations are admin-only; applying a rule stamps its templates
// onto one resource for one target.
type RuleService struct {
	logger *slog.Logger
	store  Store
	perms  *PermissionService
}

func NewRuleService(logger *slog.Logger, store Store, perms *PermissionService) *RuleService {
	return &RuleService{
		logger: logger.With("component", "rule_service"),
		store:  store,
		perms:  perms,
	}
}

type CreateRuleParams struct {
	Name        string
	Description string
	Grants      []model.RuleGrant
}

func (s *RuleService) Create(ctx context.Context, p model.Principal, params CreateRuleParams) (model.PermissionRule, error) {
	if !p.IsAuthenticated {
		return model.PermissionRule{}, ErrUnauthenticated
	}
	if !p.IsAdmin() {
		return model.PermissionRule{}, ErrForbidden
	}
	if params.Name == "" {
		return model.PermissionRule{}, &ConfigValidationError{Field: "name", Detail: "required"}
	}
	if len(params.Grants) == 0 {
		return model.PermissionRule{}, &ConfigValidationError{Field: "grants", Detail: "at least one grant template required"}
	}
	for _, g := range params.Grants {
		if !model.ValidResourceType(g.ResourceType) {
			return model.PermissionRule{}, &ConfigValidationError{Field: "grants", Detail: "unknown resource type " + string(g.ResourceType)}
		}
		if !model.ValidAction(g.Action) {
			return model.PermissionRule{}, &ConfigValidationError{Field: "grants", Detail: "unknown action " + string(g.Action)}
		}
	}

	rule, err := s.store.CreateRule(ctx, database.CreateRuleParams{
		Name:        params.Name,
		Description: params.Description,
		Grants:      params.Grants,
		CreatedBy:   p.ID,
	})
	if err != nil {
		return model.PermissionRule{}, err
	}

	s.perms.logEvent(ctx, p.ID, audit.AuditLogEventTypePermissionRuleCreate, map[string]any{
		"ruleId": rule.ID,
		"name":   rule.Name,
	})
	return rule, nil
}

func (s *RuleService) List(ctx context.Context, p model.Principal) ([]model.PermissionRule, error) {
	if !p.IsAuthenticated {
		return nil, ErrUnauthenticated
	}
	return s.store.ListRules(ctx)
}

func (s *RuleService) Get(ctx context.Context, p model.Principal, id uuid.UUID) (model.PermissionRule, error) {
	if !p.IsAuthenticated {
		return model.PermissionRule{}, ErrUnauthenticated
	}
	rule, err := s.store.GetRuleByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.PermissionRule{}, ErrNotFound
		}
		return model.PermissionRule{}, err
	}
	return rule, nil
}

// Delete removes a user-defined rule. Built-in rules are protected.
func (s *RuleService) Delete(ctx context.Context, p model.Principal, id uuid.UUID) error {
	if !p.IsAuthenticated {
		return ErrUnauthenticated
	}
	if !p.IsAdmin() {
		return ErrForbidden
	}

	rule, err := s.store.GetRuleByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if rule.IsBuiltIn {
		return ErrRuleBuiltIn
	}

	if err := s.store.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.perms.logEvent(ctx, p.ID, audit.AuditLogEventTypePermissionRuleDelete, map[string]any{
		"ruleId": rule.ID,
		"name":   rule.Name,
	})
	return nil
}

type ApplyRuleParams struct {
	ResourceID string
	TargetType model.TargetType
	TargetID   string
}

// Apply stamps every template of the rule onto one resource for one target,
// going through the normal grant path so gating, validation, auditing and
// cache invalidation all apply.
func (s *RuleService) Apply(ctx context.Context, p model.Principal, ruleID uuid.UUID, params ApplyRuleParams) ([]model.Permission, error) {
	if !p.IsAuthenticated {
		return nil, ErrUnauthenticated
	}

	rule, err := s.store.GetRuleByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	created := make([]model.Permission, 0, len(rule.Grants))
	for _, tpl := range rule.Grants {
		var expiresAt *time.Time
		if tpl.ExpiresAfter != nil {
			t := s.perms.now().Add(*tpl.ExpiresAfter)
			expiresAt = &t
		}
		grant, err := s.perms.Grant(ctx, p, GrantParams{
			ResourceType: tpl.ResourceType,
			ResourceID:   params.ResourceID,
			Action:       tpl.Action,
			TargetType:   params.TargetType,
			TargetID:     params.TargetID,
			Conditions:   tpl.Conditions,
			ExpiresAt:    expiresAt,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, grant)
	}

	s.perms.logEvent(ctx, p.ID, audit.AuditLogEventTypePermissionRuleApply, map[string]any{
		"ruleId":     rule.ID,
		"name":       rule.Name,
		"resourceId": params.ResourceID,
		"targetType": params.TargetType,
		"targetId":   params.TargetID,
		"grants":     len(created),
	})
	return created, nil
}
