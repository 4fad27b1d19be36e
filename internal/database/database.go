package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"labguard/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Database struct {
	Pool *pgxpool.Pool
}

func NewDatabase() Database {
	return Database{Pool: nil}
}

func (db *Database) Connect(ctx context.Context, connString string) error {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return fmt.Errorf("unable to parse database configuration: %w", err)
	}

	db.Pool, err = pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("unable to create database pool: %w", err)
	}

	return nil
}

func (db *Database) Close() {
	db.Pool.Close()
}

func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// TargetSet is the full set of identities a principal can receive grants
// through: their user ID, their platform role, their teams and their
// organizations. Public grants apply on top regardless.
type TargetSet struct {
	UserID          string
	Role            model.Role
	TeamIDs         []string
	OrganizationIDs []string
}

const grantColumns = `id, resource_type, resource_id, action, target_type, target_id,
	conditions, created_by, created_at, updated_at, expires_at, is_active`

func scanGrant(row pgx.Row) (model.Permission, error) {
	var (
		p          model.Permission
		resourceID *string
		targetID   *string
		expiresAt  *time.Time
	)
	err := row.Scan(&p.ID, &p.ResourceType, &resourceID, &p.Action, &p.TargetType,
		&targetID, &p.Conditions, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
		&expiresAt, &p.IsActive)
	if err != nil {
		return model.Permission{}, err
	}
	if resourceID != nil {
		p.ResourceID = *resourceID
	}
	if targetID != nil {
		p.TargetID = *targetID
	}
	p.ExpiresAt = expiresAt
	return p, nil
}

func collectGrants(rows pgx.Rows) ([]model.Permission, error) {
	defer rows.Close()
	grants := []model.Permission{}
	for rows.Next() {
		p, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, p)
	}
	return grants, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListGrantsForPrincipal returns every active grant reaching the principal
// through any target in the set, plus public grants. Expiry is not filtered
// here: validity is judged lazily at evaluation time.
func (db *Database) ListGrantsForPrincipal(ctx context.Context, targets TargetSet) ([]model.Permission, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM permissions
		WHERE is_active = TRUE AND (
			(target_type = 'user' AND target_id = $1)
			OR (target_type = 'role' AND target_id = $2)
			OR (target_type = 'team' AND target_id = ANY($3))
			OR (target_type = 'organization' AND target_id = ANY($4))
			OR target_type = 'public'
		)
		ORDER BY created_at`, grantColumns)

	rows, err := db.Pool.Query(ctx, query,
		targets.UserID, string(targets.Role), targets.TeamIDs, targets.OrganizationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants for principal: %w", err)
	}
	return collectGrants(rows)
}

// ListMatchingGrants narrows ListGrantsForPrincipal to one resource type and
// action, covering both type-wide grants and grants naming the resource.
// Resource-specific grants sort first.
func (db *Database) ListMatchingGrants(ctx context.Context, targets TargetSet, rt model.ResourceType, action model.Action, resourceID string) ([]model.Permission, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM permissions
		WHERE is_active = TRUE
			AND resource_type = $1
			AND action = $2
			AND (resource_id IS NULL OR $3::TEXT IS NULL OR resource_id = $3)
			AND (
				(target_type = 'user' AND target_id = $4)
				OR (target_type = 'role' AND target_id = $5)
				OR (target_type = 'team' AND target_id = ANY($6))
				OR (target_type = 'organization' AND target_id = ANY($7))
				OR target_type = 'public'
			)
		ORDER BY resource_id NULLS LAST`, grantColumns)

	rows, err := db.Pool.Query(ctx, query,
		string(rt), string(action), nullable(resourceID),
		targets.UserID, string(targets.Role), targets.TeamIDs, targets.OrganizationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list matching grants: %w", err)
	}
	return collectGrants(rows)
}

type CreatePermissionParams struct {
	ResourceType model.ResourceType
	ResourceID   string
	Action       model.Action
	TargetType   model.TargetType
	TargetID     string
	Conditions   []model.Condition
	CreatedBy    string
	ExpiresAt    *time.Time
}

func (db *Database) CreatePermission(ctx context.Context, params CreatePermissionParams) (model.Permission, error) {
	query := fmt.Sprintf(`
		INSERT INTO permissions (id, resource_type, resource_id, action, target_type,
			target_id, conditions, created_by, created_at, updated_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), $9, TRUE)
		RETURNING %s`, grantColumns)

	row := db.Pool.QueryRow(ctx, query,
		uuid.New(), string(params.ResourceType), nullable(params.ResourceID),
		string(params.Action), string(params.TargetType), nullable(params.TargetID),
		params.Conditions, params.CreatedBy, params.ExpiresAt)

	grant, err := scanGrant(row)
	if err != nil {
		return model.Permission{}, fmt.Errorf("failed to create permission: %w", err)
	}
	return grant, nil
}

func (db *Database) GetPermissionByID(ctx context.Context, id uuid.UUID) (model.Permission, error) {
	query := fmt.Sprintf(`SELECT %s FROM permissions WHERE id = $1`, grantColumns)
	grant, err := scanGrant(db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Permission{}, ErrNotFound
		}
		return model.Permission{}, fmt.Errorf("failed to get permission: %w", err)
	}
	return grant, nil
}

// DeactivatePermission revokes a grant by flipping is_active; the row stays
// for audit history.
func (db *Database) DeactivatePermission(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE permissions SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND is_active = TRUE`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceResourceGrants atomically deactivates every active grant on one
// resource and inserts the replacement set. Either all of it lands or none.
func (db *Database) ReplaceResourceGrants(ctx context.Context, rt model.ResourceType, resourceID string, grants []CreatePermissionParams) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE permissions SET is_active = FALSE, updated_at = NOW()
		WHERE resource_type = $1 AND resource_id = $2 AND is_active = TRUE`,
		string(rt), resourceID)
	if err != nil {
		return fmt.Errorf("failed to deactivate resource grants: %w", err)
	}

	for _, params := range grants {
		_, err = tx.Exec(ctx, `
			INSERT INTO permissions (id, resource_type, resource_id, action, target_type,
				target_id, conditions, created_by, created_at, updated_at, expires_at, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), $9, TRUE)`,
			uuid.New(), string(params.ResourceType), nullable(params.ResourceID),
			string(params.Action), string(params.TargetType), nullable(params.TargetID),
			params.Conditions, params.CreatedBy, params.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert resource grant: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (db *Database) GetResourceConfig(ctx context.Context, rt model.ResourceType, resourceID string) (model.ResourcePermissionConfig, error) {
	var cfg model.ResourcePermissionConfig
	err := db.Pool.QueryRow(ctx, `
		SELECT resource_type, resource_id, resource_name, owner_id, is_public, shared_with
		FROM resource_permission_configs
		WHERE resource_type = $1 AND resource_id = $2`,
		string(rt), resourceID).
		Scan(&cfg.ResourceType, &cfg.ResourceID, &cfg.ResourceName, &cfg.OwnerID,
			&cfg.IsPublic, &cfg.SharedWith)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ResourcePermissionConfig{}, ErrNotFound
		}
		return model.ResourcePermissionConfig{}, fmt.Errorf("failed to get resource config: %w", err)
	}
	return cfg, nil
}

func (db *Database) SaveResourceConfig(ctx context.Context, cfg model.ResourcePermissionConfig) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO resource_permission_configs
			(resource_type, resource_id, resource_name, owner_id, is_public, shared_with, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (resource_type, resource_id) DO UPDATE SET
			resource_name = EXCLUDED.resource_name,
			is_public = EXCLUDED.is_public,
			shared_with = EXCLUDED.shared_with,
			updated_at = NOW()`,
		string(cfg.ResourceType), cfg.ResourceID, cfg.ResourceName, cfg.OwnerID,
		cfg.IsPublic, cfg.SharedWith)
	if err != nil {
		return fmt.Errorf("failed to save resource config: %w", err)
	}
	return nil
}

func (db *Database) ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT m.team_id FROM team_memberships m
		JOIN teams t ON t.id = m.team_id
		WHERE m.user_id = $1 AND t.is_archived = FALSE`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team memberships: %w", err)
	}
	return collectStrings(rows)
}

func (db *Database) ListOrganizationIDsByUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT organization_id FROM organization_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization memberships: %w", err)
	}
	return collectStrings(rows)
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *Database) GetTeamMembership(ctx context.Context, teamID, userID string) (model.TeamMembership, error) {
	var m model.TeamMembership
	err := db.Pool.QueryRow(ctx, `
		SELECT team_id, user_id, role FROM team_memberships
		WHERE team_id = $1 AND user_id = $2`, teamID, userID).
		Scan(&m.TeamID, &m.UserID, &m.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TeamMembership{}, ErrNotFound
		}
		return model.TeamMembership{}, fmt.Errorf("failed to get team membership: %w", err)
	}
	return m, nil
}

func (db *Database) GetTeamSettings(ctx context.Context, teamID string) (model.TeamSettings, error) {
	var settings model.TeamSettings
	err := db.Pool.QueryRow(ctx,
		`SELECT settings FROM teams WHERE id = $1`, teamID).Scan(&settings)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TeamSettings{}, ErrNotFound
		}
		return model.TeamSettings{}, fmt.Errorf("failed to get team settings: %w", err)
	}
	return settings, nil
}

func (db *Database) UserExists(ctx context.Context, userID string) (bool, error) {
	return db.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID)
}

func (db *Database) TeamExists(ctx context.Context, teamID string) (bool, error) {
	return db.exists(ctx, `SELECT EXISTS(SELECT 1 FROM teams WHERE id = $1 AND is_archived = FALSE)`, teamID)
}

func (db *Database) OrganizationExists(ctx context.Context, orgID string) (bool, error) {
	return db.exists(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)`, orgID)
}

func (db *Database) exists(ctx context.Context, query string, arg any) (bool, error) {
	var found bool
	if err := db.Pool.QueryRow(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return found, nil
}
