package service

import (
	"context"
	"fmt"

	"github.com/aegismod/aegis/internal/database/models"
	"github.com/aegismod/aegis/internal/database/types"
	"go.uber.org/zap"
)

// ShieldStats summarizes an organization's moderation activity.
type ShieldStats struct {
	TrackedUsers  int                   `json:"trackedUsers"`
	MutedUsers    int                   `json:"mutedUsers"`
	TopOffenders  []*types.UserBehavior `json:"topOffenders"`
	RecentActions []*types.ShieldAction `json:"recentActions"`
}

// StatsService handles statistics-related business logic.
type StatsService struct {
	behavior *models.BehaviorModel
	action   *models.ActionModel
	logger   *zap.Logger
}

// NewStats creates a new stats service.
func NewStats(behavior *models.BehaviorModel, action *models.ActionModel, logger *zap.Logger) *StatsService {
	return &StatsService{
		behavior: behavior,
		action:   action,
		logger:   logger.Named("stats_service"),
	}
}

// GetShieldStats collects the current enforcement statistics for an organization.
func (s *StatsService) GetShieldStats(ctx context.Context, orgID string, topCount int) (*ShieldStats, error) {
	tracked, err := s.behavior.CountTracked(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked user count: %w", err)
	}

	muted, err := s.behavior.CountMuted(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get muted user count: %w", err)
	}

	offenders, err := s.behavior.GetTopOffenders(ctx, orgID, topCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get top offenders: %w", err)
	}

	recent, err := s.action.GetRecent(ctx, orgID, topCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent actions: %w", err)
	}

	return &ShieldStats{
		TrackedUsers:  tracked,
		MutedUsers:    muted,
		TopOffenders:  offenders,
		RecentActions: recent,
	}, nil
}
