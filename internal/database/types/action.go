package types

import (
	"time"

	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/uptrace/bun"
)

// ShieldAction is one append-only audit row recording the outcome of a
// single dispatched action tag. Rows are never mutated after insert.
type ShieldAction struct {
	bun.BaseModel `bun:"table:shield_actions,alias:shield_action"`

	ID             int64             `bun:",pk,autoincrement" json:"id"`
	OrganizationID string            `bun:",notnull"          json:"organizationId"`
	CommentID      string            `bun:",notnull"          json:"commentId"`
	Platform       string            `bun:",notnull"          json:"platform"`
	PlatformUserID string            `bun:",notnull"          json:"platformUserId"`
	ActionTag      string            `bun:",notnull"          json:"actionTag"`
	Status         enum.ActionStatus `bun:",notnull"          json:"status"`
	Reason         string            `bun:",nullzero"         json:"reason,omitempty"`
	Result         map[string]any    `bun:"type:jsonb"        json:"result,omitempty"`
	Metadata       map[string]any    `bun:"type:jsonb"        json:"metadata,omitempty"`
	CreatedAt      time.Time         `bun:",notnull"          json:"createdAt"`
}
