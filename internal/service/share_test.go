package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labguard/internal/audit"
	"labguard/internal/model"
	"labguard/internal/service"
)

func boolPtr(b bool) *bool { return &b }

func seedConfig(f *fixture, cfg model.ResourcePermissionConfig) {
	f.store.configs[configKey(cfg.ResourceType, cfg.ResourceID)] = cfg
}

func TestLoadUnsharedResource(t *testing.T) {
	f := newFixture()

	cfg, err := f.shares.Load(context.Background(), root, model.ResourceTypeExperiment, "exp-1")

	require.NoError(t, err)
	assert.Empty(t, cfg.OwnerID)
	assert.False(t, cfg.IsPublic)
	assert.Empty(t, cfg.SharedWith.Users)

	// Loading never persists anything.
	assert.Empty(t, f.store.configs)
}

func TestLoadRequiresConfigureAccess(t *testing.T) {
	f := newFixture()
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		OwnerID:      "bob",
	})

	_, err := f.shares.Load(context.Background(), alice, model.ResourceTypeExperiment, "exp-1")
	assert.ErrorIs(t, err, service.ErrForbidden)

	cfg, err := f.shares.Load(context.Background(), bob, model.ResourceTypeExperiment, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.OwnerID)

	// Holding share on the resource is enough.
	f.store.addGrant(model.Permission{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		Action:       model.ActionShare,
		TargetType:   model.TargetTypeUser,
		TargetID:     "alice",
		IsActive:     true,
	})
	_, err = f.shares.Load(context.Background(), alice, model.ResourceTypeExperiment, "exp-1")
	assert.NoError(t, err)
}

func TestUpdateFirstShareMakesSharerOwner(t *testing.T) {
	f := newFixture()
	f.store.users["bob"] = true

	cfg, err := f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{
			ResourceName: "PCR run 42",
			Patch: model.SharePatch{
				Users: []model.ShareEntry{{TargetID: "bob", Actions: []model.Action{model.ActionRead}}},
			},
		})

	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.OwnerID)
	assert.Equal(t, "PCR run 42", cfg.ResourceName)

	saved := f.store.configs[configKey(model.ResourceTypeExperiment, "exp-1")]
	assert.Equal(t, "alice", saved.OwnerID)

	// The config was materialized into one grant row for bob.
	require.Len(t, f.store.replacedWith, 1)
	assert.Equal(t, "bob", f.store.replacedWith[0].TargetID)
	assert.Equal(t, model.ActionRead, f.store.replacedWith[0].Action)
	assert.Equal(t, "alice", f.store.replacedWith[0].CreatedBy)

	assert.Contains(t, f.auditor.eventTypes(), audit.AuditLogEventTypeResourceShareUpdate)
}

func TestUpdateReplacesCategoryWholesale(t *testing.T) {
	f := newFixture()
	f.store.users["carol"] = true
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		OwnerID:      "alice",
		SharedWith: model.SharedWith{
			Users: []model.ShareEntry{{TargetID: "bob", Actions: []model.Action{model.ActionRead, model.ActionUpdate}}},
			Teams: []model.ShareEntry{{TargetID: "team-1", Actions: []model.Action{model.ActionRead}}},
		},
	})

	cfg, err := f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{
			Patch: model.SharePatch{
				Users: []model.ShareEntry{{TargetID: "carol", Actions: []model.Action{model.ActionRead}}},
			},
		})

	require.NoError(t, err)

	// The users list is replaced, not appended to; bob is gone.
	require.Len(t, cfg.SharedWith.Users, 1)
	assert.Equal(t, "carol", cfg.SharedWith.Users[0].TargetID)

	// The untouched category survives.
	require.Len(t, cfg.SharedWith.Teams, 1)
	assert.Equal(t, "team-1", cfg.SharedWith.Teams[0].TargetID)
}

func TestUpdateDedupesLastWins(t *testing.T) {
	f := newFixture()
	f.store.users["bob"] = true
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		OwnerID:      "alice",
	})

	cfg, err := f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{
			Patch: model.SharePatch{
				Users: []model.ShareEntry{
					{TargetID: "bob", Actions: []model.Action{model.ActionRead}},
					{TargetID: "bob", Actions: []model.Action{model.ActionRead, model.ActionUpdate}},
				},
			},
		})

	require.NoError(t, err)
	require.Len(t, cfg.SharedWith.Users, 1)
	assert.Equal(t, []model.Action{model.ActionRead, model.ActionUpdate}, cfg.SharedWith.Users[0].Actions)
}

func TestUpdateRejectsInvalidPatchWholesale(t *testing.T) {
	f := newFixture()
	f.store.users["bob"] = true
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		OwnerID:      "alice",
	})

	var cfgErr *service.ConfigValidationError

	// One bad entry rejects the whole patch, including the valid one.
	_, err := f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{
			Patch: model.SharePatch{
				Users: []model.ShareEntry{
					{TargetID: "bob", Actions: []model.Action{model.ActionRead}},
					{TargetID: "ghost", Actions: []model.Action{model.ActionRead}},
				},
			},
		})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "users", cfgErr.Field)

	// Empty action list is invalid too.
	_, err = f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{
			Patch: model.SharePatch{
				Users: []model.ShareEntry{{TargetID: "bob"}},
			},
		})
	require.ErrorAs(t, err, &cfgErr)

	// Nothing was applied.
	saved := f.store.configs[configKey(model.ResourceTypeExperiment, "exp-1")]
	assert.Empty(t, saved.SharedWith.Users)
	assert.Empty(t, f.store.replacedWith)
}

func TestUpdateVisibilityChangeIsAudited(t *testing.T) {
	f := newFixture()
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeReport,
		ResourceID:   "rep-1",
		OwnerID:      "alice",
	})

	cfg, err := f.shares.Update(context.Background(), alice, model.ResourceTypeReport, "rep-1",
		service.UpdateShareParams{Patch: model.SharePatch{IsPublic: boolPtr(true)}})

	require.NoError(t, err)
	assert.True(t, cfg.IsPublic)
	assert.Contains(t, f.auditor.eventTypes(), audit.AuditLogEventTypeResourceVisibility)

	// Writing the same value again is not a visibility change.
	f.auditor.events = nil
	_, err = f.shares.Update(context.Background(), alice, model.ResourceTypeReport, "rep-1",
		service.UpdateShareParams{Patch: model.SharePatch{IsPublic: boolPtr(true)}})
	require.NoError(t, err)
	assert.NotContains(t, f.auditor.eventTypes(), audit.AuditLogEventTypeResourceVisibility)
}

func TestUpdateForbiddenForStranger(t *testing.T) {
	f := newFixture()
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		OwnerID:      "bob",
	})

	_, err := f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{Patch: model.SharePatch{IsPublic: boolPtr(true)}})

	assert.ErrorIs(t, err, service.ErrForbidden)
}

func TestUpdateMaterializesGrantsPerAction(t *testing.T) {
	f := newFixture()
	f.store.users["bob"] = true
	f.store.teams["team-1"] = true
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		OwnerID:      "alice",
	})

	_, err := f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{
			Patch: model.SharePatch{
				Users: []model.ShareEntry{{TargetID: "bob", Actions: []model.Action{model.ActionRead, model.ActionUpdate}}},
				Teams: []model.ShareEntry{{TargetID: "team-1", Actions: []model.Action{model.ActionRead}}},
			},
		})

	require.NoError(t, err)

	// One row per target/action pair, no row for the owner.
	require.Len(t, f.store.replacedWith, 3)
	for _, g := range f.store.replacedWith {
		assert.NotEqual(t, "alice", g.TargetID)
		assert.Equal(t, "exp-1", g.ResourceID)
	}

	// The materialized grants now decide checks for the shared users.
	result, err := f.perms.Check(context.Background(), bob,
		model.ResourceTypeExperiment, model.ActionUpdate, "exp-1", model.EvalContext{})
	require.NoError(t, err)
	assert.True(t, result.HasPermission)

	result, err = f.perms.Check(context.Background(), bob,
		model.ResourceTypeExperiment, model.ActionDelete, "exp-1", model.EvalContext{})
	require.NoError(t, err)
	assert.False(t, result.HasPermission)
}

func TestUpdateUnsharingRevokesAccess(t *testing.T) {
	f := newFixture()
	f.store.users["bob"] = true
	seedConfig(f, model.ResourcePermissionConfig{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		OwnerID:      "alice",
		SharedWith: model.SharedWith{
			Users: []model.ShareEntry{{TargetID: "bob", Actions: []model.Action{model.ActionRead}}},
		},
	})
	f.store.addGrant(model.Permission{
		ResourceType: model.ResourceTypeExperiment,
		ResourceID:   "exp-1",
		Action:       model.ActionRead,
		TargetType:   model.TargetTypeUser,
		TargetID:     "bob",
		IsActive:     true,
	})

	_, err := f.shares.Update(context.Background(), alice, model.ResourceTypeExperiment, "exp-1",
		service.UpdateShareParams{Patch: model.SharePatch{Users: []model.ShareEntry{}}})
	require.NoError(t, err)

	result, err := f.perms.Check(context.Background(), bob,
		model.ResourceTypeExperiment, model.ActionRead, "exp-1", model.EvalContext{})
	require.NoError(t, err)
	assert.False(t, result.HasPermission)
}
