package oracle_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labguard/internal/model"
	"labguard/internal/oracle"
)

func newClient(t *testing.T, handler http.Handler) (*oracle.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.DiscardHandler)
	return oracle.NewClient(logger, server.URL, "test-token"), server
}

func TestCheckPermissionAllowed(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/permissions/check", r.URL.Path)
		assert.Equal(t, "experiment", r.URL.Query().Get("resourceType"))
		assert.Equal(t, "read", r.URL.Query().Get("action"))
		assert.Equal(t, "exp-1", r.URL.Query().Get("resourceId"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"hasPermission":true}}`))
	}))

	result, err := client.CheckPermission(context.Background(),
		model.ResourceTypeExperiment, model.ActionRead, "exp-1")

	require.NoError(t, err)
	assert.True(t, result.HasPermission)
	assert.Empty(t, result.Reason)
}

func TestCheckPermissionDeniedWithDiagnostics(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{
			"hasPermission":false,
			"reason":"no grant covers this action",
			"required":[{"resourceType":"experiment","action":"delete","resourceId":"exp-1"}]
		}}`))
	}))

	result, err := client.CheckPermission(context.Background(),
		model.ResourceTypeExperiment, model.ActionDelete, "exp-1")

	require.NoError(t, err)
	assert.False(t, result.HasPermission)
	assert.Equal(t, "no grant covers this action", result.Reason)
	require.Len(t, result.Required, 1)
	assert.Equal(t, model.ActionDelete, result.Required[0].Action)
}

func TestCheckPermissionFailsClosedOnServerError(t *testing.T) {
	var requests atomic.Int64
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	result, err := client.CheckPermission(context.Background(),
		model.ResourceTypeExperiment, model.ActionRead, "")

	require.ErrorIs(t, err, oracle.ErrUnavailable)
	assert.False(t, result.HasPermission)
	assert.Equal(t, "permission service unavailable", result.Reason)

	// Initial attempt plus the bounded retries, then give up.
	assert.Equal(t, int64(3), requests.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var requests atomic.Int64
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.CheckPermission(context.Background(),
		model.ResourceTypeExperiment, model.ActionRead, "")

	require.ErrorIs(t, err, oracle.ErrUnavailable)
	assert.Equal(t, int64(1), requests.Load())
}

func TestUserPermissions(t *testing.T) {
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/permissions/user", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":[
			{"resourceType":"experiment","action":"read","targetType":"user","targetId":"alice","isActive":true},
			{"resourceType":"device","action":"execute","targetType":"team","targetId":"team-1","isActive":true}
		]}`))
	}))

	grants, err := client.UserPermissions(context.Background())

	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, model.ResourceTypeExperiment, grants[0].ResourceType)
	assert.Equal(t, model.TargetTypeTeam, grants[1].TargetType)
	assert.True(t, grants[0].IsActive)
}

func TestBackendRefusalIsNotRetried(t *testing.T) {
	var requests atomic.Int64
	client, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"message":"store offline"}`))
	}))

	_, err := client.UserPermissions(context.Background())

	require.Error(t, err)
	assert.Equal(t, int64(1), requests.Load())
}
