package service

import (
	"context"
	"errors"
	"log/slog"

	"labguard/internal/audit"
	"labguard/internal/database"
	"labguard/internal/model"
)

// ShareService manages the per-resource sharing policy. A config is created
// lazily on first share; updates are category-scoped replacements and are
// validated as a whole before anything is applied.
type ShareService struct {
	logger *slog.Logger
	store  Store
	perms  *PermissionService
}

func NewShareService(logger *slog.Logger, store Store, perms *PermissionService) *ShareService {
	return &ShareService{
		logger: logger.With("component", "share_service"),
		store:  store,
		perms:  perms,
	}
}

// Load returns the sharing policy of a resource. A resource that was never
// shared yields an empty, private config without persisting anything.
func (s *ShareService) Load(ctx context.Context, p model.Principal, rt model.ResourceType, resourceID string) (model.ResourcePermissionConfig, error) {
	cfg, err := s.store.GetResourceConfig(ctx, rt, resourceID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return model.ResourcePermissionConfig{}, err
		}
		cfg = emptyConfig(rt, resourceID)
	}

	if err := s.requireConfigure(ctx, p, cfg); err != nil {
		return model.ResourcePermissionConfig{}, err
	}
	return cfg, nil
}

type UpdateShareParams struct {
	ResourceName string
	Patch        model.SharePatch
}

// Update applies a category-scoped patch: a present category replaces that
// list wholesale, an absent one is untouched. The whole patch is validated
// first; on any invalid entry nothing is applied. The stored grants for the
// resource are re-materialized from the resulting config in one transaction.
func (s *ShareService) Update(ctx context.Context, p model.Principal, rt model.ResourceType, resourceID string, params UpdateShareParams) (model.ResourcePermissionConfig, error) {
	if !model.ValidResourceType(rt) {
		return model.ResourcePermissionConfig{}, &ConfigValidationError{Field: "resourceType", Detail: string(rt)}
	}

	cfg, err := s.store.GetResourceConfig(ctx, rt, resourceID)
	created := false
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return model.ResourcePermissionConfig{}, err
		}
		// First share: the sharer becomes the owner.
		cfg = emptyConfig(rt, resourceID)
		cfg.OwnerID = p.ID
		created = true
	}

	if err := s.requireConfigure(ctx, p, cfg); err != nil {
		return model.ResourcePermissionConfig{}, err
	}
	if err := s.validatePatch(ctx, params.Patch); err != nil {
		return model.ResourcePermissionConfig{}, err
	}

	if params.ResourceName != "" {
		cfg.ResourceName = params.ResourceName
	}
	visibilityChanged := false
	if params.Patch.IsPublic != nil && *params.Patch.IsPublic != cfg.IsPublic {
		cfg.IsPublic = *params.Patch.IsPublic
		visibilityChanged = true
	}
	if params.Patch.Users != nil {
		cfg.SharedWith.Users = model.DedupeEntries(params.Patch.Users)
	}
	if params.Patch.Teams != nil {
		cfg.SharedWith.Teams = model.DedupeEntries(params.Patch.Teams)
	}
	if params.Patch.Organizations != nil {
		cfg.SharedWith.Organizations = model.DedupeEntries(params.Patch.Organizations)
	}

	if err := s.store.SaveResourceConfig(ctx, cfg); err != nil {
		return model.ResourcePermissionConfig{}, err
	}
	if err := s.store.ReplaceResourceGrants(ctx, rt, resourceID, s.materialize(cfg)); err != nil {
		return model.ResourcePermissionConfig{}, err
	}

	s.perms.invalidateGrantCaches(ctx)
	s.perms.logEvent(ctx, p.ID, audit.AuditLogEventTypeResourceShareUpdate, map[string]any{
		"resourceType": rt,
		"resourceId":   resourceID,
		"created":      created,
	})
	if visibilityChanged {
		s.perms.logEvent(ctx, p.ID, audit.AuditLogEventTypeResourceVisibility, map[string]any{
			"resourceType": rt,
			"resourceId":   resourceID,
			"isPublic":     cfg.IsPublic,
		})
	}
	return cfg, nil
}

// requireConfigure gates share reads and writes: the owner, an admin, or a
// principal holding share on the resource.
func (s *ShareService) requireConfigure(ctx context.Context, p model.Principal, cfg model.ResourcePermissionConfig) error {
	if !p.IsAuthenticated {
		return ErrUnauthenticated
	}
	if p.IsAdmin() || cfg.OwnerID == p.ID {
		return nil
	}
	result, err := s.perms.Check(ctx, p, cfg.ResourceType, model.ActionShare, cfg.ResourceID, model.EvalContext{})
	if err != nil {
		return err
	}
	if !result.HasPermission {
		return ErrForbidden
	}
	return nil
}

func (s *ShareService) validatePatch(ctx context.Context, patch model.SharePatch) error {
	categories := []struct {
		field   string
		entries []model.ShareEntry
		exists  func(context.Context, string) (bool, error)
	}{
		{"users", patch.Users, s.store.UserExists},
		{"teams", patch.Teams, s.store.TeamExists},
		{"organizations", patch.Organizations, s.store.OrganizationExists},
	}

	for _, cat := range categories {
		for _, e := range cat.entries {
			if e.TargetID == "" {
				return &ConfigValidationError{Field: cat.field, Detail: "entry missing targetId"}
			}
			if len(e.Actions) == 0 {
				return &ConfigValidationError{Field: cat.field, Detail: "entry for " + e.TargetID + " has no actions"}
			}
			for _, a := range e.Actions {
				if !model.ValidAction(a) {
					return &ConfigValidationError{Field: cat.field, Detail: "unknown action " + string(a)}
				}
			}
			found, err := cat.exists(ctx, e.TargetID)
			if err != nil {
				return err
			}
			if !found {
				return &ConfigValidationError{Field: cat.field, Detail: "unknown target " + e.TargetID}
			}
		}
	}
	return nil
}

// materialize turns a config into the concrete grant rows backing it. The
// owner needs no row; IsPublic is evaluated from the config, not a grant.
func (s *ShareService) materialize(cfg model.ResourcePermissionConfig) []database.CreatePermissionParams {
	var out []database.CreatePermissionParams
	add := func(tt model.TargetType, entries []model.ShareEntry) {
		for _, e := range entries {
			for _, a := range e.Actions {
				out = append(out, database.CreatePermissionParams{
					ResourceType: cfg.ResourceType,
					ResourceID:   cfg.ResourceID,
					Action:       a,
					TargetType:   tt,
					TargetID:     e.TargetID,
					CreatedBy:    cfg.OwnerID,
				})
			}
		}
	}
	add(model.TargetTypeUser, cfg.SharedWith.Users)
	add(model.TargetTypeTeam, cfg.SharedWith.Teams)
	add(model.TargetTypeOrganization, cfg.SharedWith.Organizations)
	return out
}

func emptyConfig(rt model.ResourceType, resourceID string) model.ResourcePermissionConfig {
	return model.ResourcePermissionConfig{
		ResourceType: rt,
		ResourceID:   resourceID,
		SharedWith: model.SharedWith{
			Users:         []model.ShareEntry{},
			Teams:         []model.ShareEntry{},
			Organizations: []model.ShareEntry{},
		},
	}
}
