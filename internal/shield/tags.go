package shield

import (
	"slices"

	"github.com/aegismod/aegis/internal/database/types/enum"
)

// Action tags dispatched by the executor. Each tag maps to exactly one
// registered handler.
const (
	TagHideComment           = "hide_comment"
	TagBlockUser             = "block_user"
	TagReportToPlatform      = "report_to_platform"
	TagMuteTemp              = "mute_temp"
	TagMutePermanent         = "mute_permanent"
	TagCheckReincidence      = "check_reincidence"
	TagAddStrike1            = "add_strike_1"
	TagAddStrike2            = "add_strike_2"
	TagRequireManualReview   = "require_manual_review"
	TagGatekeeperUnavailable = "gatekeeper_unavailable"
)

// mutatingTags read-then-write per-user counters and must run sequentially.
var mutatingTags = map[string]struct{}{
	TagAddStrike1:       {},
	TagAddStrike2:       {},
	TagCheckReincidence: {},
}

// tagsByAction translates a primary action into its discrete enforcement steps.
var tagsByAction = map[enum.Action][]string{
	enum.ActionWarn:          {TagAddStrike1, TagCheckReincidence},
	enum.ActionMuteTemp:      {TagMuteTemp, TagAddStrike1},
	enum.ActionMutePermanent: {TagMutePermanent, TagAddStrike2},
	enum.ActionBlock:         {TagHideComment, TagBlockUser, TagCheckReincidence},
	enum.ActionReport:        {TagHideComment, TagBlockUser, TagReportToPlatform},
	enum.ActionEscalate:      {TagHideComment, TagReportToPlatform, TagRequireManualReview},
}

// TagsFor expands a decision into the ordered action-tag list handed to the
// executor.
func TagsFor(decision *Decision, analysis *AnalysisResult) []string {
	tags := slices.Clone(tagsByAction[decision.Primary])

	if decision.ManualReviewRequired && !slices.Contains(tags, TagRequireManualReview) {
		tags = append(tags, TagRequireManualReview)
	}

	if analysis != nil && analysis.GatekeeperUnavailable {
		tags = append(tags, TagGatekeeperUnavailable)
	}

	return tags
}

// PriorityFor maps an analysis onto the 1..5 job priority scale, 1 being
// the most urgent.
func PriorityFor(decision *Decision, analysis *AnalysisResult) int {
	if decision.Severity == enum.SeverityCritical || analysis.ToxicityScore >= 0.95 {
		return 1
	}

	if decision.Severity == enum.SeverityHigh || hasThreatCategory(analysis.Categories) {
		return 2
	}

	if decision.Severity == enum.SeverityMedium || analysis.ToxicityScore >= 0.6 {
		return 3
	}

	return 5
}

func hasThreatCategory(categories []string) bool {
	for _, category := range categories {
		switch category {
		case "threat", "hate", "harassment":
			return true
		}
	}

	return false
}
