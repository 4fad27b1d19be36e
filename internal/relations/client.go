// Package relations answers membership questions (user in team, user in
// organization). When OpenFGA is enabled the relationship graph is the
// source of truth; otherwise membership falls back to the relational store.
package relations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"

	"labguard/internal/config"
	"labguard/internal/database"
	"labguard/internal/model"
)

// MembershipStore is the relational fallback used when OpenFGA is disabled.
type MembershipStore interface {
	GetTeamMembership(ctx context.Context, teamID, userID string) (model.TeamMembership, error)
	ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error)
	ListOrganizationIDsByUser(ctx context.Context, userID string) ([]string, error)
}

type Client struct {
	logger *slog.Logger
	fga    *client.OpenFgaClient
	store  MembershipStore
	config config.OpenFGAConfig
}

func NewClient(logger *slog.Logger, cfg config.OpenFGAConfig, store MembershipStore) (*Client, error) {
	c := &Client{
		logger: logger.With("component", "relations"),
		store:  store,
		config: cfg,
	}

	if !cfg.Enabled {
		c.logger.Info("openfga disabled, membership served from relational store")
		return c, nil
	}

	fgaClient, err := client.NewSdkClient(&client.ClientConfiguration{
		ApiUrl:               cfg.APIURL,
		StoreId:              cfg.StoreID,
		AuthorizationModelId: cfg.ModelID,
		Credentials: &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{
				ApiToken: cfg.APIToken,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}
	c.fga = fgaClient

	if err := c.verifyConnection(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to verify OpenFGA connection: %w", err)
	}

	c.logger.Info("openfga client initialized", "store_id", cfg.StoreID, "model_id", cfg.ModelID)
	return c, nil
}

func (c *Client) verifyConnection(ctx context.Context) error {
	response, err := c.fga.GetStore(ctx).Execute()
	if err != nil {
		return fmt.Errorf("failed to get store: %w", err)
	}
	if response.Id != c.config.StoreID {
		return fmt.Errorf("store ID mismatch: expected %s, got %s", c.config.StoreID, response.Id)
	}
	return nil
}

func (c *Client) Enabled() bool {
	return c.config.Enabled && c.fga != nil
}

// IsTeamMember reports whether the user belongs to the team.
func (c *Client) IsTeamMember(ctx context.Context, userID, teamID string) (bool, error) {
	if !c.Enabled() {
		_, err := c.store.GetTeamMembership(ctx, teamID, userID)
		if err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	return c.check(ctx, userID, "member", "team", teamID)
}

// IsOrganizationMember reports whether the user belongs to the organization.
func (c *Client) IsOrganizationMember(ctx context.Context, userID, orgID string) (bool, error) {
	if !c.Enabled() {
		ids, err := c.store.ListOrganizationIDsByUser(ctx, userID)
		if err != nil {
			return false, err
		}
		for _, id := range ids {
			if id == orgID {
				return true, nil
			}
		}
		return false, nil
	}
	return c.check(ctx, userID, "member", "organization", orgID)
}

// TeamIDs lists the teams the user is a member of.
func (c *Client) TeamIDs(ctx context.Context, userID string) ([]string, error) {
	if !c.Enabled() {
		return c.store.ListTeamIDsByUser(ctx, userID)
	}
	return c.listObjects(ctx, userID, "member", "team")
}

// OrganizationIDs lists the organizations the user is a member of.
func (c *Client) OrganizationIDs(ctx context.Context, userID string) ([]string, error) {
	if !c.Enabled() {
		return c.store.ListOrganizationIDsByUser(ctx, userID)
	}
	return c.listObjects(ctx, userID, "member", "organization")
}

func (c *Client) check(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	body := client.ClientCheckRequest{
		User:     fmt.Sprintf("user:%s", userID),
		Relation: relation,
		Object:   fmt.Sprintf("%s:%s", objectType, objectID),
	}
	data, err := c.fga.Check(ctx).Body(body).Execute()
	if err != nil {
		c.logger.Error("openfga check failed",
			"user", userID, "relation", relation,
			"object", fmt.Sprintf("%s:%s", objectType, objectID), "error", err)
		return false, fmt.Errorf("failed to check relation: %w", err)
	}
	return data.GetAllowed(), nil
}

func (c *Client) listObjects(ctx context.Context, userID, relation, objectType string) ([]string, error) {
	body := client.ClientListObjectsRequest{
		User:     fmt.Sprintf("user:%s", userID),
		Relation: relation,
		Type:     objectType,
	}
	data, err := c.fga.ListObjects(ctx).Body(body).Execute()
	if err != nil {
		c.logger.Error("openfga list objects failed",
			"user", userID, "relation", relation, "type", objectType, "error", err)
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	prefix := objectType + ":"
	ids := make([]string, 0, len(data.GetObjects()))
	for _, obj := range data.GetObjects() {
		ids = append(ids, strings.TrimPrefix(obj, prefix))
	}
	return ids, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
