package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aegismod/aegis/internal/database/dbretry"
	"github.com/aegismod/aegis/internal/database/types"
	"github.com/aegismod/aegis/internal/database/types/enum"
	"go.uber.org/zap"

	"github.com/uptrace/bun"
)

// BehaviorModel handles database operations for per-user behavior records.
type BehaviorModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewBehavior creates a new BehaviorModel instance.
func NewBehavior(db *bun.DB, logger *zap.Logger) *BehaviorModel {
	return &BehaviorModel{
		db:     db,
		logger: logger.Named("db_behavior"),
	}
}

// GetByKey retrieves the behavior record for one user on one platform.
// Returns types.ErrBehaviorNotFound when no record exists.
func (m *BehaviorModel) GetByKey(
	ctx context.Context, orgID, platform, userID string,
) (*types.UserBehavior, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserBehavior, error) {
		var behavior types.UserBehavior

		err := m.db.NewSelect().
			Model(&behavior).
			Where("organization_id = ?", orgID).
			Where("platform = ?", platform).
			Where("platform_user_id = ?", userID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, types.ErrBehaviorNotFound
			}

			return nil, fmt.Errorf("failed to get behavior record: %w", err)
		}

		behavior.Normalize()

		return &behavior, nil
	})
}

// AtomicUpdate records one violation as a single conditional upsert so that
// concurrent evaluations for the same user never lose increments. All
// counter arithmetic happens inside the statement; the application never
// reads the row first.
func (m *BehaviorModel) AtomicUpdate(
	ctx context.Context, orgID, platform, userID, username string, data *types.ViolationData,
) (*types.UserBehavior, error) {
	now := data.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	entry := types.TakenAction{
		Action:    data.Action,
		Timestamp: now,
		Severity:  data.Severity,
		CommentID: data.CommentID,
	}

	record := &types.UserBehavior{
		OrganizationID:      orgID,
		Platform:            platform,
		PlatformUserID:      userID,
		PlatformUsername:    username,
		TotalViolations:     1,
		SeverityCounts:      map[enum.Severity]int{data.Severity: 1},
		ActionsTaken:        []types.TakenAction{entry},
		IsMuted:             data.Muted,
		MuteExpiresAt:       data.MuteExpiresAt,
		CrossPlatformCounts: map[string]int{platform: 1},
		FirstSeenAt:         now,
		LastSeenAt:          now,
	}

	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserBehavior, error) {
		_, err := m.buildAtomicUpdate(record, data.Severity.String(), platform).Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to atomically update behavior: %w", err)
		}

		record.Normalize()

		return record, nil
	})
}

// buildAtomicUpdate assembles the conditional upsert. A muted record without
// an expiry is a permanent mute and must write NULL through, so the expiry
// update cannot be a plain COALESCE.
func (m *BehaviorModel) buildAtomicUpdate(
	record *types.UserBehavior, sevKey, platform string,
) *bun.InsertQuery {
	return m.db.NewInsert().
		Model(record).
		On("CONFLICT (organization_id, platform, platform_user_id) DO UPDATE").
		Set("total_violations = user_behavior.total_violations + 1").
		Set(`severity_counts = user_behavior.severity_counts || `+
			`jsonb_build_object(?::text, COALESCE((user_behavior.severity_counts->>?)::int, 0) + 1)`,
			sevKey, sevKey).
		Set("actions_taken = user_behavior.actions_taken || EXCLUDED.actions_taken").
		Set(`cross_platform_violations = user_behavior.cross_platform_violations || `+
			`jsonb_build_object(?::text, COALESCE((user_behavior.cross_platform_violations->>?)::int, 0) + 1)`,
			platform, platform).
		Set("is_muted = user_behavior.is_muted OR EXCLUDED.is_muted").
		Set(`mute_expires_at = CASE `+
			`WHEN EXCLUDED.is_muted AND EXCLUDED.mute_expires_at IS NULL THEN NULL `+
			`ELSE COALESCE(EXCLUDED.mute_expires_at, user_behavior.mute_expires_at) END`).
		Set("platform_username = EXCLUDED.platform_username").
		Set("last_seen_at = EXCLUDED.last_seen_at").
		Returning("*")
}

// AddStrike increments one of the strike counters and returns the new value.
// This is a read-then-write sequence, which is why callers must serialize
// strike mutations within an evaluation.
func (m *BehaviorModel) AddStrike(
	ctx context.Context, orgID, platform, userID string, level int,
) (int, error) {
	if level != 1 && level != 2 {
		return 0, fmt.Errorf("invalid strike level %d", level)
	}

	column := fmt.Sprintf("strikes_level_%d", level)

	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		var current int

		err := m.db.NewSelect().
			Model((*types.UserBehavior)(nil)).
			Column(column).
			Where("organization_id = ?", orgID).
			Where("platform = ?", platform).
			Where("platform_user_id = ?", userID).
			Scan(ctx, &current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("failed to read strike count: %w", err)
		}

		next := current + 1

		record := types.NewUserBehavior(orgID, platform, userID)
		switch level {
		case 1:
			record.StrikesLevel1 = next
		case 2:
			record.StrikesLevel2 = next
		}

		_, err = m.db.NewInsert().
			Model(record).
			On("CONFLICT (organization_id, platform, platform_user_id) DO UPDATE").
			Set(fmt.Sprintf("%s = ?", column), next).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to write strike count: %w", err)
		}

		return next, nil
	})
}

// SetMute updates the mute flags for a user without touching violation counters.
func (m *BehaviorModel) SetMute(
	ctx context.Context, orgID, platform, userID string, muted bool, expiresAt *time.Time,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model((*types.UserBehavior)(nil)).
			Set("is_muted = ?", muted).
			Set("mute_expires_at = ?", expiresAt).
			Where("organization_id = ?", orgID).
			Where("platform = ?", platform).
			Where("platform_user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to set mute: %w", err)
		}

		return nil
	})
}

// GetTopOffenders returns the users with the most violations in an organization.
func (m *BehaviorModel) GetTopOffenders(
	ctx context.Context, orgID string, limit int,
) ([]*types.UserBehavior, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.UserBehavior, error) {
		var behaviors []*types.UserBehavior

		err := m.db.NewSelect().
			Model(&behaviors).
			Where("organization_id = ?", orgID).
			Order("total_violations DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get top offenders: %w", err)
		}

		return behaviors, nil
	})
}

// CountTracked returns how many users have behavior records in an organization.
func (m *BehaviorModel) CountTracked(ctx context.Context, orgID string) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.UserBehavior)(nil)).
			Where("organization_id = ?", orgID).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count tracked users: %w", err)
		}

		return count, nil
	})
}

// CountMuted returns how many users are currently flagged as muted.
func (m *BehaviorModel) CountMuted(ctx context.Context, orgID string) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.UserBehavior)(nil)).
			Where("organization_id = ?", orgID).
			Where("is_muted = true").
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count muted users: %w", err)
		}

		return count, nil
	})
}
