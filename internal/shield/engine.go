package shield

import (
	"time"

	"github.com/aegismod/aegis/internal/database/types"
	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/aegismod/aegis/internal/setup/config"
	"go.uber.org/zap"
)

// actionMatrix maps (severity, offense level) to the base enforcement
// action. Dangerous offenders share the persistent column.
var actionMatrix = map[enum.Severity]map[enum.OffenseLevel]enum.Action{
	enum.SeverityLow: {
		enum.OffenseFirst:      enum.ActionWarn,
		enum.OffenseRepeat:     enum.ActionMuteTemp,
		enum.OffensePersistent: enum.ActionMutePermanent,
	},
	enum.SeverityMedium: {
		enum.OffenseFirst:      enum.ActionMuteTemp,
		enum.OffenseRepeat:     enum.ActionMutePermanent,
		enum.OffensePersistent: enum.ActionBlock,
	},
	enum.SeverityHigh: {
		enum.OffenseFirst:      enum.ActionMutePermanent,
		enum.OffenseRepeat:     enum.ActionBlock,
		enum.OffensePersistent: enum.ActionReport,
	},
	enum.SeverityCritical: {
		enum.OffenseFirst:      enum.ActionBlock,
		enum.OffenseRepeat:     enum.ActionReport,
		enum.OffensePersistent: enum.ActionEscalate,
	},
}

// policyLadder orders actions for the platform escalation policy nudges.
var policyLadder = []enum.Action{
	enum.ActionWarn,
	enum.ActionMuteTemp,
	enum.ActionMutePermanent,
	enum.ActionBlock,
	enum.ActionReport,
}

// leniencyDowngrades soften actions for verified creators and partners.
var leniencyDowngrades = map[enum.Action]enum.Action{
	enum.ActionMutePermanent: enum.ActionMuteTemp,
	enum.ActionBlock:         enum.ActionMutePermanent,
	enum.ActionReport:        enum.ActionBlock,
}

// Engine turns a toxicity analysis and a user's behavioral history into a
// structured enforcement decision. Pure with respect to its inputs except
// for wall-clock reads in the time-window computations.
type Engine struct {
	cfg    *config.Shield
	logger *zap.Logger
}

// NewEngine creates a decision engine with the given tenant configuration.
func NewEngine(cfg *config.Shield, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.Named("engine"),
	}
}

// Decide evaluates one comment. A nil behavior record is treated as a brand
// new user; corrupted history fields degrade toward a first offense rather
// than erroring.
func (e *Engine) Decide(analysis *AnalysisResult, behavior *types.UserBehavior, comment *Comment) *Decision {
	now := time.Now()

	if behavior == nil {
		behavior = types.NewUserBehavior("", comment.Platform, comment.PlatformUserID)
	}

	behavior.Normalize()

	count := behavior.MergedViolationCount()
	severity := e.effectiveSeverity(analysis)
	offense := e.offenseLevel(count, behavior, now)

	decision := &Decision{
		Severity:       severity,
		OffenseLevel:   offense,
		ViolationCount: count,
	}

	// Emergency and legal overrides bypass the matrix, policy ladder, and
	// leniency steps entirely. Both may fire on the same evaluation.
	emergency := analysis.HasEmergencySignal()
	legal := analysis.LegalComplianceTrigger

	if emergency || legal {
		decision.Primary = enum.ActionReport
		decision.AutoExecute = true

		if emergency {
			decision.Emergency = true
			decision.Escalate = true
			decision.NotifyAuthorities = true
		}

		if legal {
			decision.LegalCompliance = true
			decision.Jurisdiction = analysis.Jurisdiction
		}

		decision.PlatformActions = PlatformActionsFor(decision.Primary, e.cfg)

		return decision
	}

	action := baseAction(severity, offense)
	action = e.applyPolicyLadder(action, severity, count, behavior.EscalationPolicy)

	if behavior.UserType.IsSpecial() {
		decision.ManualReviewRequired = true

		if severity != enum.SeverityCritical {
			if downgraded, ok := leniencyDowngrades[action]; ok {
				action = downgraded
			}
		}
	}

	decision.Primary = action
	decision.AutoExecute = e.autoExecute(action, severity)
	decision.Escalate = severity == enum.SeverityCritical &&
		(offense == enum.OffensePersistent || offense == enum.OffenseDangerous)
	decision.PlatformActions = PlatformActionsFor(action, e.cfg)

	return decision
}

// effectiveSeverity applies a valid severity override, silently keeping the
// analysis severity for absent or invalid values.
func (e *Engine) effectiveSeverity(analysis *AnalysisResult) enum.Severity {
	if analysis.SeverityOverride == "" {
		return analysis.Severity
	}

	override, err := enum.ParseSeverity(analysis.SeverityOverride)
	if err != nil {
		e.logger.Debug("Ignoring invalid severity override",
			zap.String("override", analysis.SeverityOverride))

		return analysis.Severity
	}

	return override
}

// offenseLevel derives the escalation stage from the violation count, then
// adjusts it for recency and active punishments.
func (e *Engine) offenseLevel(count int, behavior *types.UserBehavior, now time.Time) enum.OffenseLevel {
	reincidence := e.cfg.EffectiveReincidenceThreshold()
	dangerous := e.cfg.EffectiveDangerousThreshold()

	var level enum.OffenseLevel

	switch {
	case count >= dangerous:
		level = enum.OffenseDangerous
	case count >= reincidence:
		level = enum.OffensePersistent
	case count >= 1:
		level = enum.OffenseRepeat
	default:
		level = enum.OffenseFirst
	}

	switch timeWindow(behavior.LastAction(), now) {
	case enum.WindowAggressive:
		// Reoffending within the hour is maximal recidivism.
		if count > 0 {
			level = enum.OffensePersistent
		}
	case enum.WindowMinimal:
		// A long clean streak decays the level one step.
		if level > enum.OffenseFirst {
			level--
		}
	case enum.WindowStandard, enum.WindowReduced:
	}

	// Violating an active mute overrides recency entirely for anyone with
	// prior violations, even after the clean-streak decay.
	if count > 0 && behavior.MutedAt(now) {
		level = enum.OffensePersistent
	}

	return level
}

// timeWindow buckets the elapsed time since the user's last enforcement
// action. Missing or invalid history defaults to the standard window.
func timeWindow(last *types.TakenAction, now time.Time) enum.TimeWindow {
	if last == nil {
		return enum.WindowStandard
	}

	elapsed := now.Sub(last.Timestamp)

	switch {
	case elapsed < time.Hour:
		return enum.WindowAggressive
	case elapsed < 24*time.Hour:
		return enum.WindowStandard
	case elapsed < 7*24*time.Hour:
		return enum.WindowReduced
	default:
		return enum.WindowMinimal
	}
}

// baseAction looks up the matrix entry, folding dangerous into the
// persistent column and defaulting to a warning.
func baseAction(severity enum.Severity, offense enum.OffenseLevel) enum.Action {
	if offense == enum.OffenseDangerous {
		offense = enum.OffensePersistent
	}

	row, ok := actionMatrix[severity]
	if !ok {
		return enum.ActionWarn
	}

	action, ok := row[offense]
	if !ok {
		return enum.ActionWarn
	}

	return action
}

// applyPolicyLadder nudges the action one rung up or down for repeat
// offenders depending on the platform's escalation policy. Lenient never
// softens critical severity.
func (e *Engine) applyPolicyLadder(
	action enum.Action, severity enum.Severity, count int, policy enum.OffensePolicy,
) enum.Action {
	if count == 0 {
		return action
	}

	idx := -1

	for i, rung := range policyLadder {
		if rung == action {
			idx = i
			break
		}
	}

	if idx < 0 {
		return action
	}

	switch policy {
	case enum.PolicyAggressive:
		if idx < len(policyLadder)-1 {
			return policyLadder[idx+1]
		}
	case enum.PolicyLenient:
		if severity != enum.SeverityCritical && idx > 0 {
			return policyLadder[idx-1]
		}
	case enum.PolicyStandard:
	}

	return action
}

// autoExecute decides whether a chosen action runs without a human in the
// loop. Block and report need explicit enablement outside critical severity.
func (e *Engine) autoExecute(action enum.Action, severity enum.Severity) bool {
	if severity == enum.SeverityCritical {
		return true
	}

	switch action {
	case enum.ActionWarn, enum.ActionMuteTemp, enum.ActionMutePermanent:
		return true
	case enum.ActionBlock, enum.ActionReport:
		return e.cfg.AutoSevereActions
	case enum.ActionEscalate:
		return false
	}

	return false
}
