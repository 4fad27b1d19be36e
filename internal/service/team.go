package service

import (
	"context"
	"errors"
	"log/slog"

	"labguard/internal/database"
	"labguard/internal/model"
	"labguard/internal/team"
)

// TeamService resolves what a principal may do inside a team from their role
// and the team's settings overlay.
type TeamService struct {
	logger *slog.Logger
	store  Store
}

func NewTeamService(logger *slog.Logger, store Store) *TeamService {
	return &TeamService{
		logger: logger.With("component", "team_service"),
		store:  store,
	}
}

// Actions returns the effective action list for the principal in the team.
// Admins get the full owner set; non-members get an empty list rather than
// an error, so callers can render a read-only view uniformly.
func (s *TeamService) Actions(ctx context.Context, p model.Principal, teamID string) ([]model.TeamAction, error) {
	if !p.IsAuthenticated {
		return nil, ErrUnauthenticated
	}

	settings, err := s.store.GetTeamSettings(ctx, teamID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if p.IsAdmin() {
		return team.ActionList(model.TeamRoleOwner, settings), nil
	}

	membership, err := s.store.GetTeamMembership(ctx, teamID, p.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return []model.TeamAction{}, nil
		}
		return nil, err
	}

	return team.ActionList(membership.Role, settings), nil
}
