package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labguard/internal/access"
	"labguard/internal/model"
)

func loadedEvaluator(t *testing.T, grants []model.Permission) *access.Evaluator {
	t.Helper()
	cache := access.NewCache(discardLogger(), func(ctx context.Context) ([]model.Permission, error) {
		return grants, nil
	})
	require.NoError(t, cache.Refresh(context.Background()))
	return access.NewEvaluator(cache)
}

var (
	alice = model.Principal{ID: "alice", Role: model.RoleUser, IsAuthenticated: true}
	root  = model.Principal{ID: "root", Role: model.RoleAdmin, IsAuthenticated: true}
)

func TestAdminBypass(t *testing.T) {
	e := loadedEvaluator(t, nil)

	assert.True(t, e.CanAccess(root, model.ResourceTypeExperiment, model.ActionDelete, ""))
	assert.True(t, e.HasResourcePermission(root, "exp-1", model.ResourceTypeExperiment, model.ActionDelete))
}

func TestFailClosedDefaults(t *testing.T) {
	grants := []model.Permission{
		{ResourceType: model.ResourceTypeExperiment, Action: model.ActionRead, IsActive: true},
	}

	t.Run("unauthenticated principal", func(t *testing.T) {
		e := loadedEvaluator(t, grants)
		assert.False(t, e.CanAccess(model.Anonymous(), model.ResourceTypeExperiment, model.ActionRead, ""))
	})

	t.Run("unloaded cache", func(t *testing.T) {
		cache := access.NewCache(discardLogger(), func(ctx context.Context) ([]model.Permission, error) {
			return nil, nil
		})
		e := access.NewEvaluator(cache)
		assert.False(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionRead, ""))
	})
}

func TestCanAccess(t *testing.T) {
	expired := time.Now().Add(-time.Minute)
	grants := []model.Permission{
		{ResourceType: model.ResourceTypeExperiment, Action: model.ActionRead, IsActive: true},
		{ResourceType: model.ResourceTypeExperiment, Action: model.ActionUpdate, IsActive: true, ExpiresAt: &expired},
		{ResourceType: model.ResourceTypeDevice, Action: model.ActionExecute, IsActive: false},
	}
	e := loadedEvaluator(t, grants)

	assert.True(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionRead, ""))
	assert.True(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionRead, "exp-7"))

	// Expired and inactive grants never contribute.
	assert.False(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionUpdate, ""))
	assert.False(t, e.CanAccess(alice, model.ResourceTypeDevice, model.ActionExecute, ""))

	assert.False(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionDelete, ""))
}

func TestHasResourcePermissionSpecificityAndFallback(t *testing.T) {
	grants := []model.Permission{
		{ResourceType: model.ResourceTypeExperiment, ResourceID: "exp-1", Action: model.ActionUpdate, IsActive: true},
		{ResourceType: model.ResourceTypeReport, Action: model.ActionRead, IsActive: true},
	}
	e := loadedEvaluator(t, grants)

	// Grant naming the resource.
	assert.True(t, e.HasResourcePermission(alice, "exp-1", model.ResourceTypeExperiment, model.ActionUpdate))
	assert.False(t, e.HasResourcePermission(alice, "exp-2", model.ResourceTypeExperiment, model.ActionUpdate))

	// No specific grant, but the type-wide grant still applies.
	assert.True(t, e.HasResourcePermission(alice, "rep-9", model.ResourceTypeReport, model.ActionRead))
}

func TestUnionIsMonotone(t *testing.T) {
	base := []model.Permission{
		{ResourceType: model.ResourceTypeExperiment, ResourceID: "exp-1", Action: model.ActionRead, IsActive: true},
	}
	e := loadedEvaluator(t, base)
	assert.False(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionUpdate, "exp-1"))

	// Adding a grant can only widen access, never narrow it.
	widened := append(base, model.Permission{
		ResourceType: model.ResourceTypeExperiment, Action: model.ActionUpdate, IsActive: true,
	})
	e = loadedEvaluator(t, widened)
	assert.True(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionRead, "exp-1"))
	assert.True(t, e.CanAccess(alice, model.ResourceTypeExperiment, model.ActionUpdate, "exp-1"))
}

func TestConditionedGrantsFailClosedLocally(t *testing.T) {
	grants := []model.Permission{
		{
			ResourceType: model.ResourceTypeDevice,
			Action:       model.ActionExecute,
			IsActive:     true,
			Conditions:   []model.Condition{{Type: model.ConditionTypeIPList, IPList: []string{"10.0.0.1"}}},
		},
		{
			ResourceType: model.ResourceTypeDevice,
			Action:       model.ActionRead,
			IsActive:     true,
			Conditions: []model.Condition{{
				Type:      model.ConditionTypeTimeRange,
				TimeRange: &model.TimeRange{End: time.Now().Add(time.Hour)},
			}},
		},
	}
	e := loadedEvaluator(t, grants)

	// The evaluator cannot judge the client IP, so the grant never allows
	// here; only the backend can.
	assert.False(t, e.CanAccess(alice, model.ResourceTypeDevice, model.ActionExecute, ""))

	// Time-range conditions are decidable locally.
	assert.True(t, e.CanAccess(alice, model.ResourceTypeDevice, model.ActionRead, ""))
}
