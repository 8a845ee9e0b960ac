package types

import (
	"errors"
	"time"

	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/uptrace/bun"
)

var ErrBehaviorNotFound = errors.New("behavior record not found")

// TakenAction is one append-only entry in a user's enforcement history.
type TakenAction struct {
	Action    string        `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Severity  enum.Severity `json:"severity"`
	CommentID string        `json:"commentId"`
}

// UserBehavior tracks the violation history for one user on one platform
// within an organization. The violation counters are only ever written
// through the atomic upsert in the behavior model.
type UserBehavior struct {
	bun.BaseModel `bun:"table:user_behaviors,alias:user_behavior"`

	OrganizationID   string    `bun:",pk"      json:"organizationId"`
	Platform         string    `bun:",pk"      json:"platform"`
	PlatformUserID   string    `bun:",pk"      json:"platformUserId"`
	PlatformUsername string    `bun:",notnull" json:"platformUsername"`

	TotalViolations int                    `bun:",notnull,default:0"       json:"totalViolations"`
	SeverityCounts  map[enum.Severity]int  `bun:"type:jsonb,notnull"       json:"severityCounts"`
	ActionsTaken    []TakenAction          `bun:"type:jsonb,notnull"       json:"actionsTaken"`
	StrikesLevel1   int                    `bun:"strikes_level_1,notnull,default:0" json:"strikesLevel1"`
	StrikesLevel2   int                    `bun:"strikes_level_2,notnull,default:0" json:"strikesLevel2"`

	IsMuted       bool       `bun:",notnull,default:false" json:"isMuted"`
	MuteExpiresAt *time.Time `bun:",nullzero"              json:"muteExpiresAt,omitempty"`

	UserType               enum.UserType      `bun:",notnull,default:0" json:"userType"`
	CrossPlatformCounts    map[string]int     `bun:"cross_platform_violations,type:jsonb,notnull" json:"crossPlatformViolations"`
	EscalationPolicy       enum.OffensePolicy `bun:",notnull,default:0" json:"escalationPolicy"`

	FirstSeenAt time.Time `bun:",notnull" json:"firstSeenAt"`
	LastSeenAt  time.Time `bun:",notnull" json:"lastSeenAt"`
}

// NewUserBehavior synthesizes an in-memory first-offense record for a user
// with no stored history. It is never written to the store directly.
func NewUserBehavior(orgID, platform, userID string) *UserBehavior {
	now := time.Now()

	return &UserBehavior{
		OrganizationID:      orgID,
		Platform:            platform,
		PlatformUserID:      userID,
		SeverityCounts:      make(map[enum.Severity]int),
		ActionsTaken:        []TakenAction{},
		CrossPlatformCounts: make(map[string]int),
		FirstSeenAt:         now,
		LastSeenAt:          now,
	}
}

// Normalize repairs corrupted fields in place so downstream decision logic
// can treat the record as trustworthy. Negative counters become zero and
// nil maps become empty, degrading unknown history toward a first offense.
func (b *UserBehavior) Normalize() {
	if b.TotalViolations < 0 {
		b.TotalViolations = 0
	}

	if b.StrikesLevel1 < 0 {
		b.StrikesLevel1 = 0
	}

	if b.StrikesLevel2 < 0 {
		b.StrikesLevel2 = 0
	}

	if b.SeverityCounts == nil {
		b.SeverityCounts = make(map[enum.Severity]int)
	}

	if b.CrossPlatformCounts == nil {
		b.CrossPlatformCounts = make(map[string]int)
	}

	if b.ActionsTaken == nil {
		b.ActionsTaken = []TakenAction{}
	}
}

// MergedViolationCount sums violations across all platforms for the same
// logical user. Falls back to the per-platform total when no cross-platform
// breakdown exists.
func (b *UserBehavior) MergedViolationCount() int {
	if len(b.CrossPlatformCounts) == 0 {
		return b.TotalViolations
	}

	var total int

	for _, count := range b.CrossPlatformCounts {
		if count > 0 {
			total += count
		}
	}

	return total
}

// LastAction returns the most recent history entry with a usable timestamp,
// or nil when the history is empty or every timestamp is invalid.
func (b *UserBehavior) LastAction() *TakenAction {
	var latest *TakenAction

	for i := range b.ActionsTaken {
		entry := &b.ActionsTaken[i]
		if entry.Timestamp.IsZero() {
			continue
		}

		if latest == nil || entry.Timestamp.After(latest.Timestamp) {
			latest = entry
		}
	}

	return latest
}

// MutedAt reports whether the user is under an active mute at the given time.
func (b *UserBehavior) MutedAt(now time.Time) bool {
	if !b.IsMuted {
		return false
	}

	// A missing expiry means the mute is permanent.
	if b.MuteExpiresAt == nil {
		return true
	}

	return b.MuteExpiresAt.After(now)
}

// ViolationData carries one evaluation's worth of updates into the atomic
// behavior upsert.
type ViolationData struct {
	Action        string
	ActionTags    []string
	Severity      enum.Severity
	CommentID     string
	Muted         bool
	MuteExpiresAt *time.Time
	Timestamp     time.Time
}
