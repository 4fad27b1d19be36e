package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"labguard/internal/model"
)

type CreateRuleParams struct {
	Name        string
	Description string
	Grants      []model.RuleGrant
	IsBuiltIn   bool
	CreatedBy   string
}

func (db *Database) CreateRule(ctx context.Context, params CreateRuleParams) (model.PermissionRule, error) {
	rule := model.PermissionRule{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Grants:      params.Grants,
		IsBuiltIn:   params.IsBuiltIn,
		CreatedBy:   params.CreatedBy,
	}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO permission_rules (id, name, description, grants, is_built_in, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at`,
		rule.ID, rule.Name, rule.Description, rule.Grants, rule.IsBuiltIn, rule.CreatedBy).
		Scan(&rule.CreatedAt)
	if err != nil {
		return model.PermissionRule{}, fmt.Errorf("failed to create rule: %w", err)
	}
	return rule, nil
}

func (db *Database) ListRules(ctx context.Context) ([]model.PermissionRule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, description, grants, is_built_in, created_by, created_at
		FROM permission_rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []model.PermissionRule{}
	for rows.Next() {
		var r model.PermissionRule
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Grants,
			&r.IsBuiltIn, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (db *Database) GetRuleByID(ctx context.Context, id uuid.UUID) (model.PermissionRule, error) {
	var r model.PermissionRule
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, description, grants, is_built_in, created_by, created_at
		FROM permission_rules WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.Description, &r.Grants, &r.IsBuiltIn, &r.CreatedBy, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PermissionRule{}, ErrNotFound
		}
		return model.PermissionRule{}, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

// DeleteRule removes a user-defined rule. Built-in rows are protected at the
// service layer and additionally excluded here.
func (db *Database) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM permission_rules WHERE id = $1 AND is_built_in = FALSE`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
