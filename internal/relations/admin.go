package relations

import (
	"context"
	"fmt"
	"log/slog"

	openfga "github.com/openfga/go-sdk"
	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"

	"labguard/internal/config"
)

// Admin manages OpenFGA stores and authorization models. Unlike Client it
// does not require a configured store, so it can bootstrap one.
type Admin struct {
	logger *slog.Logger
	fga    *client.OpenFgaClient
}

func NewAdmin(logger *slog.Logger, cfg config.OpenFGAConfig) (*Admin, error) {
	fgaClient, err := client.NewSdkClient(&client.ClientConfiguration{
		ApiUrl:  cfg.APIURL,
		StoreId: cfg.StoreID,
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
	return &Admin{
		logger: logger.With("component", "relations_admin"),
		fga:    fgaClient,
	}, nil
}

func (a *Admin) ListStores(ctx context.Context) ([]openfga.Store, error) {
	response, err := a.fga.ListStores(ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	return response.GetStores(), nil
}

func (a *Admin) CreateStore(ctx context.Context, name string) (string, error) {
	response, err := a.fga.CreateStore(ctx).Body(client.ClientCreateStoreRequest{Name: name}).Execute()
	if err != nil {
		return "", fmt.Errorf("failed to create store: %w", err)
	}
	return response.GetId(), nil
}

func (a *Admin) DeleteStore(ctx context.Context) error {
	if _, err := a.fga.DeleteStore(ctx).Execute(); err != nil {
		return fmt.Errorf("failed to delete store: %w", err)
	}
	return nil
}

// WriteModel writes the membership authorization model: users can be members
// of teams and organizations. Returns the new model ID.
func (a *Admin) WriteModel(ctx context.Context) (string, error) {
	response, err := a.fga.WriteAuthorizationModel(ctx).Body(membershipModel()).Execute()
	if err != nil {
		return "", fmt.Errorf("failed to write authorization model: %w", err)
	}
	return response.GetAuthorizationModelId(), nil
}

func (a *Admin) ReadModel(ctx context.Context, modelID string) (openfga.AuthorizationModel, error) {
	response, err := a.fga.ReadAuthorizationModel(ctx).
		Options(client.ClientReadAuthorizationModelOptions{AuthorizationModelId: &modelID}).
		Execute()
	if err != nil {
		return openfga.AuthorizationModel{}, fmt.Errorf("failed to read authorization model: %w", err)
	}
	return response.GetAuthorizationModel(), nil
}

func membershipModel() client.ClientWriteAuthorizationModelRequest {
	directUser := []openfga.RelationReference{{Type: "user"}}
	memberUserset := map[string]openfga.Userset{
		"member": {This: &map[string]interface{}{}},
	}
	memberMetadata := &openfga.Metadata{
		Relations: &map[string]openfga.RelationMetadata{
			"member": {DirectlyRelatedUserTypes: &directUser},
		},
	}

	return client.ClientWriteAuthorizationModelRequest{
		SchemaVersion: "1.1",
		TypeDefinitions: []openfga.TypeDefinition{
			{Type: "user"},
			{Type: "team", Relations: &memberUserset, Metadata: memberMetadata},
			{Type: "organization", Relations: &memberUserset, Metadata: memberMetadata},
		},
	}
}
