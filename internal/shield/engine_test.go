package shield_test

import (
	"testing"
	"time"

	"github.com/aegismod/aegis/internal/database/types"
	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/aegismod/aegis/internal/setup/config"
	"github.com/aegismod/aegis/internal/shield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, cfg *config.Shield) *shield.Engine {
	t.Helper()

	if cfg == nil {
		cfg = &config.Shield{
			Enabled:     true,
			AutoActions: true,
		}
	}

	return shield.NewEngine(cfg, zap.NewNop())
}

func testComment() *shield.Comment {
	return &shield.Comment{
		ID:               "comment-1",
		Platform:         "discord",
		PlatformUserID:   "user-1",
		PlatformUsername: "offender",
		Content:          "some content",
	}
}

func behaviorWithViolations(count int, lastActionAgo time.Duration) *types.UserBehavior {
	behavior := types.NewUserBehavior("org-1", "discord", "user-1")
	behavior.TotalViolations = count

	if lastActionAgo > 0 {
		behavior.ActionsTaken = []types.TakenAction{{
			Action:    enum.ActionWarn.String(),
			Timestamp: time.Now().Add(-lastActionAgo),
			Severity:  enum.SeverityLow,
			CommentID: "prev-comment",
		}}
	}

	return behavior
}

func TestDecideFirstOffenseLowSeverity(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, nil, testComment())

	assert.Equal(t, enum.ActionWarn, decision.Primary)
	assert.Equal(t, enum.OffenseFirst, decision.OffenseLevel)
	assert.Equal(t, 0, decision.ViolationCount)
	assert.True(t, decision.AutoExecute)
	assert.False(t, decision.Escalate)
}

func TestDecideCriticalFirstOffense(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.92,
		Severity:      enum.SeverityCritical,
	}, nil, testComment())

	assert.Equal(t, enum.ActionBlock, decision.Primary)
	assert.True(t, decision.AutoExecute, "critical always auto-executes")
	assert.False(t, decision.Escalate, "first offense never escalates")
}

func TestDecideMediumPersistent(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(4, 48*time.Hour)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.65,
		Severity:      enum.SeverityMedium,
	}, behavior, testComment())

	assert.Equal(t, enum.OffensePersistent, decision.OffenseLevel)
	assert.Equal(t, enum.ActionBlock, decision.Primary)
	assert.False(t, decision.AutoExecute, "block needs auto_severe_actions")
}

func TestDecideCriticalPersistentEscalates(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(6, 10*24*time.Hour)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.97,
		Severity:      enum.SeverityCritical,
	}, behavior, testComment())

	// Ten clean days decay dangerous one step back to persistent.
	assert.Equal(t, enum.OffensePersistent, decision.OffenseLevel)
	assert.Equal(t, enum.ActionEscalate, decision.Primary)
	assert.True(t, decision.Escalate)
	assert.True(t, decision.AutoExecute)
}

func TestDecideDangerousOffender(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(8, 12*time.Hour)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.85,
		Severity:      enum.SeverityCritical,
	}, behavior, testComment())

	assert.Equal(t, enum.OffenseDangerous, decision.OffenseLevel)
	// Dangerous folds into the persistent matrix column.
	assert.Equal(t, enum.ActionEscalate, decision.Primary)
	assert.True(t, decision.Escalate)
}

func TestDecideAggressiveWindowForcesPersistent(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 30*time.Minute)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.5,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	assert.Equal(t, enum.OffensePersistent, decision.OffenseLevel)
	assert.Equal(t, enum.ActionMutePermanent, decision.Primary)
}

func TestDecideAggressiveWindowIgnoredForCleanUser(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(0, 30*time.Minute)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.5,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	assert.Equal(t, enum.OffenseFirst, decision.OffenseLevel)
}

func TestDecideCoolingOffMuteViolation(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 9*24*time.Hour)
	behavior.IsMuted = true
	expires := time.Now().Add(2 * time.Hour)
	behavior.MuteExpiresAt = &expires

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	// Posting through an active mute overrides the long clean streak, even
	// though the streak alone would have decayed repeat back to first.
	assert.Equal(t, enum.OffensePersistent, decision.OffenseLevel)
	assert.Equal(t, enum.ActionMutePermanent, decision.Primary)
}

func TestDecideCoolingOffSkipsCleanUser(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(0, 0)
	behavior.IsMuted = true

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	assert.Equal(t, enum.OffenseFirst, decision.OffenseLevel)
}

func TestDecideExpiredMuteDoesNotEscalate(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 12*time.Hour)
	behavior.IsMuted = true
	expired := time.Now().Add(-time.Hour)
	behavior.MuteExpiresAt = &expired

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	assert.Equal(t, enum.OffenseRepeat, decision.OffenseLevel)
}

func TestDecideAggressivePolicyLadder(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 12*time.Hour)
	behavior.EscalationPolicy = enum.PolicyAggressive

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	// Repeat+low is mute_temp, nudged one rung up.
	assert.Equal(t, enum.ActionMutePermanent, decision.Primary)
}

func TestDecideLenientPolicyLadder(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 12*time.Hour)
	behavior.EscalationPolicy = enum.PolicyLenient

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	assert.Equal(t, enum.ActionWarn, decision.Primary)
}

func TestDecideLenientNeverSoftensCritical(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 12*time.Hour)
	behavior.EscalationPolicy = enum.PolicyLenient

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.95,
		Severity:      enum.SeverityCritical,
	}, behavior, testComment())

	assert.Equal(t, enum.ActionReport, decision.Primary)
}

func TestDecidePolicyLadderSkipsFirstOffense(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(0, 0)
	behavior.EscalationPolicy = enum.PolicyAggressive

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	assert.Equal(t, enum.ActionWarn, decision.Primary)
}

func TestDecideSeverityOverride(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore:    0.5,
		Severity:         enum.SeverityMedium,
		SeverityOverride: "CRITICAL",
	}, nil, testComment())

	assert.Equal(t, enum.SeverityCritical, decision.Severity)
	assert.Equal(t, enum.ActionBlock, decision.Primary, "override applies before the matrix lookup")
}

func TestDecideInvalidSeverityOverrideIgnored(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore:    0.5,
		Severity:         enum.SeverityMedium,
		SeverityOverride: "catastrophic",
	}, nil, testComment())

	assert.Equal(t, enum.SeverityMedium, decision.Severity)
	assert.Equal(t, enum.ActionMuteTemp, decision.Primary)
}

func TestDecideSpecialUserLeniency(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 12*time.Hour)
	behavior.UserType = enum.UserTypeVerifiedCreator

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.7,
		Severity:      enum.SeverityHigh,
	}, behavior, testComment())

	// High+repeat is block, softened to mute_permanent for creators.
	assert.Equal(t, enum.ActionMutePermanent, decision.Primary)
	assert.True(t, decision.ManualReviewRequired)
}

func TestDecideSpecialUserCriticalNotSoftened(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 12*time.Hour)
	behavior.UserType = enum.UserTypePartner

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.95,
		Severity:      enum.SeverityCritical,
	}, behavior, testComment())

	assert.Equal(t, enum.ActionReport, decision.Primary)
	assert.True(t, decision.ManualReviewRequired)
}

func TestDecideEmergencyOverride(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore:     0.99,
		Severity:          enum.SeverityCritical,
		ImmediateThreat:   true,
		EmergencyKeywords: []string{"school", "tomorrow"},
	}, nil, testComment())

	assert.Equal(t, enum.ActionReport, decision.Primary)
	assert.True(t, decision.Emergency)
	assert.True(t, decision.Escalate)
	assert.True(t, decision.NotifyAuthorities)
	assert.True(t, decision.AutoExecute)
}

func TestDecideEmergencyBypassesLeniency(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(0, 0)
	behavior.UserType = enum.UserTypePartner

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore:   0.99,
		Severity:        enum.SeverityCritical,
		ImmediateThreat: true,
	}, behavior, testComment())

	assert.Equal(t, enum.ActionReport, decision.Primary)
	assert.False(t, decision.ManualReviewRequired)
}

func TestDecideLegalComplianceOverride(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore:          0.8,
		Severity:               enum.SeverityHigh,
		LegalComplianceTrigger: true,
		Jurisdiction:           "DE",
	}, nil, testComment())

	assert.Equal(t, enum.ActionReport, decision.Primary)
	assert.True(t, decision.LegalCompliance)
	assert.Equal(t, "DE", decision.Jurisdiction)
	assert.True(t, decision.AutoExecute)
	assert.False(t, decision.Emergency)
	assert.False(t, decision.NotifyAuthorities)
}

func TestDecideCorruptedHistoryNormalized(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	behavior := &types.UserBehavior{
		OrganizationID:  "org-1",
		Platform:        "discord",
		PlatformUserID:  "user-1",
		TotalViolations: -3,
		StrikesLevel1:   -1,
	}

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	require.NotNil(t, decision)
	assert.Equal(t, 0, decision.ViolationCount)
	assert.Equal(t, enum.OffenseFirst, decision.OffenseLevel)
	assert.Equal(t, enum.ActionWarn, decision.Primary)
}

func TestDecideCrossPlatformMerge(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	behavior := behaviorWithViolations(1, 12*time.Hour)
	behavior.CrossPlatformCounts = map[string]int{
		"discord": 2,
		"twitch":  2,
	}

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, behavior, testComment())

	assert.Equal(t, 4, decision.ViolationCount)
	assert.Equal(t, enum.OffensePersistent, decision.OffenseLevel)
}

func TestDecideAutoSevereActionsEnabled(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, &config.Shield{
		Enabled:           true,
		AutoActions:       true,
		AutoSevereActions: true,
	})
	behavior := behaviorWithViolations(1, 12*time.Hour)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.7,
		Severity:      enum.SeverityHigh,
	}, behavior, testComment())

	assert.Equal(t, enum.ActionBlock, decision.Primary)
	assert.True(t, decision.AutoExecute)
}

func TestDecideMonotonicWithViolationCount(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	ladder := map[enum.Action]int{
		enum.ActionWarn:          0,
		enum.ActionMuteTemp:      1,
		enum.ActionMutePermanent: 2,
		enum.ActionBlock:         3,
		enum.ActionReport:        4,
		enum.ActionEscalate:      5,
	}

	for _, severity := range []enum.Severity{
		enum.SeverityLow, enum.SeverityMedium, enum.SeverityHigh, enum.SeverityCritical,
	} {
		prev := -1

		for count := range 8 {
			decision := engine.Decide(&shield.AnalysisResult{
				ToxicityScore: 0.5,
				Severity:      severity,
			}, behaviorWithViolations(count, 12*time.Hour), testComment())

			rank := ladder[decision.Primary]
			assert.GreaterOrEqual(t, rank, prev,
				"severity %s count %d", severity, count)
			prev = rank
		}
	}
}

func TestDecidePlatformActionsAttached(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	decision := engine.Decide(&shield.AnalysisResult{
		ToxicityScore: 0.45,
		Severity:      enum.SeverityLow,
	}, nil, testComment())

	require.NotEmpty(t, decision.PlatformActions)

	for _, platform := range []string{"twitter", "discord", "twitch", "youtube"} {
		assert.Contains(t, decision.PlatformActions, platform)
	}
}
