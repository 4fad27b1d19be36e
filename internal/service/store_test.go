package service_test

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"labguard/internal/audit"
	"labguard/internal/database"
	"labguard/internal/model"
	"labguard/internal/service"
)

// fakeStore is an in-memory Store mirroring the query semantics of the
// relational layer.
type fakeStore struct {
	grants      []model.Permission
	configs     map[string]model.ResourcePermissionConfig
	memberships map[string]model.TeamMembership
	settings    map[string]model.TeamSettings
	users       map[string]bool
	teams       map[string]bool
	orgs        map[string]bool
	rules       map[uuid.UUID]model.PermissionRule

	replacedWith []database.CreatePermissionParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		configs:     map[string]model.ResourcePermissionConfig{},
		memberships: map[string]model.TeamMembership{},
		settings:    map[string]model.TeamSettings{},
		users:       map[string]bool{},
		teams:       map[string]bool{},
		orgs:        map[string]bool{},
		rules:       map[uuid.UUID]model.PermissionRule{},
	}
}

func configKey(rt model.ResourceType, id string) string { return string(rt) + "/" + id }

func (s *fakeStore) addGrant(p model.Permission) model.Permission {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.grants = append(s.grants, p)
	return p
}

func matchesTargets(p model.Permission, targets database.TargetSet) bool {
	switch p.TargetType {
	case model.TargetTypeUser:
		return p.TargetID == targets.UserID
	case model.TargetTypeRole:
		return p.TargetID == string(targets.Role)
	case model.TargetTypeTeam:
		for _, id := range targets.TeamIDs {
			if id == p.TargetID {
				return true
			}
		}
	case model.TargetTypeOrganization:
		for _, id := range targets.OrganizationIDs {
			if id == p.TargetID {
				return true
			}
		}
	case model.TargetTypePublic:
		return true
	}
	return false
}

func (s *fakeStore) ListGrantsForPrincipal(_ context.Context, targets database.TargetSet) ([]model.Permission, error) {
	out := []model.Permission{}
	for _, g := range s.grants {
		if g.IsActive && matchesTargets(g, targets) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeStore) ListMatchingGrants(_ context.Context, targets database.TargetSet, rt model.ResourceType, action model.Action, resourceID string) ([]model.Permission, error) {
	out := []model.Permission{}
	for _, g := range s.grants {
		if !g.IsActive || g.ResourceType != rt || g.Action != action {
			continue
		}
		if resourceID != "" && g.ResourceID != "" && g.ResourceID != resourceID {
			continue
		}
		if matchesTargets(g, targets) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *fakeStore) CreatePermission(_ context.Context, params database.CreatePermissionParams) (model.Permission, error) {
	now := time.Now()
	return s.addGrant(model.Permission{
		ID:           uuid.New(),
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
		Action:       params.Action,
		TargetType:   params.TargetType,
		TargetID:     params.TargetID,
		Conditions:   params.Conditions,
		CreatedBy:    params.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    params.ExpiresAt,
		IsActive:     true,
	}), nil
}

func (s *fakeStore) GetPermissionByID(_ context.Context, id uuid.UUID) (model.Permission, error) {
	for _, g := range s.grants {
		if g.ID == id {
			return g, nil
		}
	}
	return model.Permission{}, database.ErrNotFound
}

func (s *fakeStore) DeactivatePermission(_ context.Context, id uuid.UUID) error {
	for i := range s.grants {
		if s.grants[i].ID == id && s.grants[i].IsActive {
			s.grants[i].IsActive = false
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *fakeStore) ReplaceResourceGrants(_ context.Context, rt model.ResourceType, resourceID string, grants []database.CreatePermissionParams) error {
	for i := range s.grants {
		if s.grants[i].ResourceType == rt && s.grants[i].ResourceID == resourceID {
			s.grants[i].IsActive = false
		}
	}
	for _, params := range grants {
		s.addGrant(model.Permission{
			ResourceType: params.ResourceType,
			ResourceID:   params.ResourceID,
			Action:       params.Action,
			TargetType:   params.TargetType,
			TargetID:     params.TargetID,
			CreatedBy:    params.CreatedBy,
			IsActive:     true,
		})
	}
	s.replacedWith = grants
	return nil
}

func (s *fakeStore) GetResourceConfig(_ context.Context, rt model.ResourceType, resourceID string) (model.ResourcePermissionConfig, error) {
	cfg, ok := s.configs[configKey(rt, resourceID)]
	if !ok {
		return model.ResourcePermissionConfig{}, database.ErrNotFound
	}
	return cfg, nil
}

func (s *fakeStore) SaveResourceConfig(_ context.Context, cfg model.ResourcePermissionConfig) error {
	s.configs[configKey(cfg.ResourceType, cfg.ResourceID)] = cfg
	return nil
}

func (s *fakeStore) GetTeamMembership(_ context.Context, teamID, userID string) (model.TeamMembership, error) {
	m, ok := s.memberships[teamID+"/"+userID]
	if !ok {
		return model.TeamMembership{}, database.ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) GetTeamSettings(_ context.Context, teamID string) (model.TeamSettings, error) {
	settings, ok := s.settings[teamID]
	if !ok {
		return model.TeamSettings{}, database.ErrNotFound
	}
	return settings, nil
}

func (s *fakeStore) UserExists(_ context.Context, userID string) (bool, error) {
	return s.users[userID], nil
}

func (s *fakeStore) TeamExists(_ context.Context, teamID string) (bool, error) {
	return s.teams[teamID], nil
}

func (s *fakeStore) OrganizationExists(_ context.Context, orgID string) (bool, error) {
	return s.orgs[orgID], nil
}

func (s *fakeStore) CreateRule(_ context.Context, params database.CreateRuleParams) (model.PermissionRule, error) {
	rule := model.PermissionRule{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Grants:      params.Grants,
		IsBuiltIn:   params.IsBuiltIn,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   time.Now(),
	}
	s.rules[rule.ID] = rule
	return rule, nil
}

func (s *fakeStore) ListRules(_ context.Context) ([]model.PermissionRule, error) {
	out := []model.PermissionRule{}
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) GetRuleByID(_ context.Context, id uuid.UUID) (model.PermissionRule, error) {
	rule, ok := s.rules[id]
	if !ok {
		return model.PermissionRule{}, database.ErrNotFound
	}
	return rule, nil
}

func (s *fakeStore) DeleteRule(_ context.Context, id uuid.UUID) error {
	rule, ok := s.rules[id]
	if !ok || rule.IsBuiltIn {
		return database.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// fakeResolver serves static membership lists.
type fakeResolver struct {
	teams map[string][]string
	orgs  map[string][]string
}

func (r *fakeResolver) TeamIDs(_ context.Context, userID string) ([]string, error) {
	return r.teams[userID], nil
}

func (r *fakeResolver) OrganizationIDs(_ context.Context, userID string) ([]string, error) {
	return r.orgs[userID], nil
}

// fakeAuditor records events in order.
type fakeAuditor struct {
	events []audit.LogEventParam
}

func (a *fakeAuditor) LogEvent(_ context.Context, params audit.LogEventParam) error {
	a.events = append(a.events, params)
	return nil
}

func (a *fakeAuditor) eventTypes() []audit.AuditLogEventType {
	out := make([]audit.AuditLogEventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store    *fakeStore
	resolver *fakeResolver
	auditor  *fakeAuditor
	perms    *service.PermissionService
	shares   *service.ShareService
	rules    *service.RuleService
	teams    *service.TeamService
}

// testRedis points at a closed port with tight timeouts: every cache
// operation fails fast and the services fall through to the store.
func testRedis() redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func newFixture() *fixture {
	logger := slog.New(slog.DiscardHandler)
	store := newFakeStore()
	resolver := &fakeResolver{teams: map[string][]string{}, orgs: map[string][]string{}}
	auditor := &fakeAuditor{}

	perms := service.NewPermissionService(logger, store, resolver, testRedis(), auditor)
	return &fixture{
		store:    store,
		resolver: resolver,
		auditor:  auditor,
		perms:    perms,
		shares:   service.NewShareService(logger, store, perms),
		rules:    service.NewRuleService(logger, store, perms),
		teams:    service.NewTeamService(logger, store),
	}
}

var (
	alice = model.Principal{ID: "alice", Role: model.RoleUser, IsAuthenticated: true}
	bob   = model.Principal{ID: "bob", Role: model.RoleUser, IsAuthenticated: true}
	root  = model.Principal{ID: "root", Role: model.RoleAdmin, IsAuthenticated: true}
)
