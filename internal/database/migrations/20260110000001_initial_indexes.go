package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			-- Audit trail lookup paths
			CREATE INDEX IF NOT EXISTS idx_shield_actions_org_time
			ON shield_actions (organization_id, created_at DESC);

			CREATE INDEX IF NOT EXISTS idx_shield_actions_user_time
			ON shield_actions (organization_id, platform, platform_user_id, created_at DESC);

			CREATE INDEX IF NOT EXISTS idx_shield_actions_comment
			ON shield_actions (organization_id, comment_id);

			-- Top offender and mute queries
			CREATE INDEX IF NOT EXISTS idx_user_behaviors_org_violations
			ON user_behaviors (organization_id, total_violations DESC);

			CREATE INDEX IF NOT EXISTS idx_user_behaviors_org_muted
			ON user_behaviors (organization_id)
			WHERE is_muted = true;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`
			DROP INDEX IF EXISTS idx_shield_actions_org_time;
			DROP INDEX IF EXISTS idx_shield_actions_user_time;
			DROP INDEX IF EXISTS idx_shield_actions_comment;
			DROP INDEX IF EXISTS idx_user_behaviors_org_violations;
			DROP INDEX IF EXISTS idx_user_behaviors_org_muted;
		`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}

		return nil
	})
}
