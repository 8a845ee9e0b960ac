package shield

import (
	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/bytedance/sonic"
)

// Comment identifies one piece of user-generated content under evaluation.
type Comment struct {
	ID               string `json:"id"`
	Platform         string `json:"platform"`
	PlatformUserID   string `json:"platform_user_id"`
	PlatformUsername string `json:"platform_username"`
	Content          string `json:"content"`
}

// PlatformViolations carries the platform's own verdict about a comment,
// used to gate reporting back to the platform.
type PlatformViolations struct {
	Reportable    bool   `json:"reportable"`
	ViolationType string `json:"violation_type"`
}

// AnalysisResult is the toxicity analysis handed to the decision engine.
type AnalysisResult struct {
	ToxicityScore          float64             `json:"toxicity_score"`
	Severity               enum.Severity       `json:"severity"`
	Categories             []string            `json:"categories"`
	SeverityOverride       string              `json:"severity_override,omitempty"`
	ImmediateThreat        bool                `json:"immediate_threat"`
	EmergencyKeywords      []string            `json:"emergency_keywords,omitempty"`
	LegalComplianceTrigger bool                `json:"legal_compliance_trigger"`
	Jurisdiction           string              `json:"jurisdiction,omitempty"`
	GatekeeperUnavailable  bool                `json:"gatekeeper_unavailable"`
	PlatformViolations     *PlatformViolations `json:"platform_violations,omitempty"`
}

// UnmarshalJSON accepts override_severity as an alias for severity_override,
// preferring the canonical field when both are present.
func (a *AnalysisResult) UnmarshalJSON(data []byte) error {
	type plain AnalysisResult

	aux := struct {
		*plain

		OverrideSeverity string `json:"override_severity"`
	}{plain: (*plain)(a)}

	if err := sonic.Unmarshal(data, &aux); err != nil {
		return err
	}

	if a.SeverityOverride == "" {
		a.SeverityOverride = aux.OverrideSeverity
	}

	return nil
}

// HasEmergencySignal reports whether the analysis carries an immediate
// threat or any emergency keyword.
func (a *AnalysisResult) HasEmergencySignal() bool {
	return a.ImmediateThreat || len(a.EmergencyKeywords) > 0
}

// PlatformAction describes how one platform realizes a primary action.
type PlatformAction struct {
	Action    string `json:"action"`
	Available bool   `json:"available"`
	Duration  string `json:"duration,omitempty"`
}

// Decision is the structured outcome of one evaluation. It is transient and
// only persisted indirectly through the audit trail.
type Decision struct {
	Primary              enum.Action               `json:"primary"`
	Severity             enum.Severity             `json:"severity"`
	OffenseLevel         enum.OffenseLevel         `json:"offenseLevel"`
	ViolationCount       int                       `json:"violationCount"`
	AutoExecute          bool                      `json:"autoExecute"`
	Escalate             bool                      `json:"escalate"`
	Emergency            bool                      `json:"emergency"`
	LegalCompliance      bool                      `json:"legalCompliance"`
	Jurisdiction         string                    `json:"jurisdiction,omitempty"`
	NotifyAuthorities    bool                      `json:"notifyAuthorities"`
	ManualReviewRequired bool                      `json:"manualReviewRequired"`
	PlatformActions      map[string]PlatformAction `json:"platformActions"`
}
