package relations

import (
	"context"
	"fmt"

	"github.com/openfga/go-sdk/client"
)

// WriteMembership records a membership tuple in the relationship graph. A
// no-op when OpenFGA is disabled; the relational store is authoritative then.
func (c *Client) WriteMembership(ctx context.Context, userID, objectType, objectID string) error {
	if !c.Enabled() {
		return nil
	}

	body := client.ClientWriteRequest{
		Writes: []client.ClientTupleKey{
			{
				User:     fmt.Sprintf("user:%s", userID),
				Relation: "member",
				Object:   fmt.Sprintf("%s:%s", objectType, objectID),
			},
		},
	}
	if _, err := c.fga.Write(ctx).Body(body).Execute(); err != nil {
		c.logger.Error("openfga write failed",
			"user", userID, "object", fmt.Sprintf("%s:%s", objectType, objectID), "error", err)
		return fmt.Errorf("failed to write membership tuple: %w", err)
	}
	return nil
}

// DeleteMembership removes a membership tuple from the relationship graph.
func (c *Client) DeleteMembership(ctx context.Context, userID, objectType, objectID string) error {
	if !c.Enabled() {
		return nil
	}

	body := client.ClientWriteRequest{
		Deletes: []client.ClientTupleKeyWithoutCondition{
			{
				User:     fmt.Sprintf("user:%s", userID),
				Relation: "member",
				Object:   fmt.Sprintf("%s:%s", objectType, objectID),
			},
		},
	}
	if _, err := c.fga.Write(ctx).Body(body).Execute(); err != nil {
		c.logger.Error("openfga delete failed",
			"user", userID, "object", fmt.Sprintf("%s:%s", objectType, objectID), "error", err)
		return fmt.Errorf("failed to delete membership tuple: %w", err)
	}
	return nil
}
