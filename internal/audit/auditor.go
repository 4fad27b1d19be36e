package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"labguard/internal/database"
)

type AuditLogEventType string

const (
	AuditLogEventTypePermissionGrant       AuditLogEventType = "permission.grant"
	AuditLogEventTypePermissionRevoke      AuditLogEventType = "permission.revoke"
	AuditLogEventTypeResourceShareUpdate   AuditLogEventType = "resource.share_update"
	AuditLogEventTypeResourceVisibility    AuditLogEventType = "resource.visibility_change"
	AuditLogEventTypePermissionRuleCreate  AuditLogEventType = "permission_rule.create"
	AuditLogEventTypePermissionRuleDelete  AuditLogEventType = "permission_rule.delete"
	AuditLogEventTypePermissionRuleApply   AuditLogEventType = "permission_rule.apply"
	AuditLogEventTypePermissionCheckDenied AuditLogEventType = "permission.check_denied"
)

type Auditor struct {
	logger *slog.Logger
	db     *database.Database
}

func NewAuditor(logger *slog.Logger, db *database.Database) Auditor {
	return Auditor{logger: logger, db: db}
}

type LogEventParam struct {
	ActorID string
	Type    AuditLogEventType
	Data    map[string]any
}

func (a *Auditor) LogEvent(ctx context.Context, params LogEventParam) error {
	data, err := json.Marshal(params.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log event data: %w", err)
	}

	if err = a.db.CreateAuditLogEvent(ctx, database.CreateAuditLogEventParams{
		ActorID:   params.ActorID,
		EventType: string(params.Type),
		EventData: data,
	}); err != nil {
		return fmt.Errorf("failed to create audit log event: %w", err)
	}
	return nil
}
