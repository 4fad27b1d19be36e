package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type CreateAuditLogEventParams struct {
	ActorID   string
	EventType string
	EventData []byte
}

func (db *Database) CreateAuditLogEvent(ctx context.Context, params CreateAuditLogEventParams) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO audit_log_events (id, actor_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), params.ActorID, params.EventType, params.EventData)
	if err != nil {
		return fmt.Errorf("failed to create audit log event: %w", err)
	}
	return nil
}
