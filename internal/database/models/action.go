package models

import (
	"context"
	"fmt"

	"github.com/aegismod/aegis/internal/database/dbretry"
	"github.com/aegismod/aegis/internal/database/types"
	"go.uber.org/zap"

	"github.com/uptrace/bun"
)

// ActionModel handles database operations for the shield action audit trail.
type ActionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAction creates a new ActionModel instance.
func NewAction(db *bun.DB, logger *zap.Logger) *ActionModel {
	return &ActionModel{
		db:     db,
		logger: logger.Named("db_action"),
	}
}

// BatchInsert persists one audit row per action tag in a single statement.
// Callers treat failures as best-effort; the rows are a trace, not the
// primary contract.
func (m *ActionModel) BatchInsert(ctx context.Context, records []*types.ShieldAction) error {
	if len(records) == 0 {
		return nil
	}

	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(&records).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to batch insert shield actions: %w", err)
		}

		return nil
	})
}

// GetRecent returns the newest audit rows for an organization.
func (m *ActionModel) GetRecent(
	ctx context.Context, orgID string, limit int,
) ([]*types.ShieldAction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ShieldAction, error) {
		var actions []*types.ShieldAction

		err := m.db.NewSelect().
			Model(&actions).
			Where("organization_id = ?", orgID).
			Order("created_at DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent shield actions: %w", err)
		}

		return actions, nil
	})
}

// GetByComment returns the audit rows recorded for a single comment.
func (m *ActionModel) GetByComment(
	ctx context.Context, orgID, commentID string,
) ([]*types.ShieldAction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ShieldAction, error) {
		var actions []*types.ShieldAction

		err := m.db.NewSelect().
			Model(&actions).
			Where("organization_id = ?", orgID).
			Where("comment_id = ?", commentID).
			Order("created_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get shield actions for comment: %w", err)
		}

		return actions, nil
	})
}
