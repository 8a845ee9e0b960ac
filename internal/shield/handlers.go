package shield

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegismod/aegis/internal/database/types"
	"github.com/aegismod/aegis/internal/queue"
)

// submitPlatformJob enqueues one platform enforcement step with the batch
// priority. The executor never waits on job completion.
func (e *Executor) submitPlatformJob(
	ctx context.Context, inv *invocation, action string, extra map[string]any,
) (map[string]any, error) {
	payload := map[string]any{
		"action":           action,
		"comment_id":       inv.comment.ID,
		"platform":         inv.comment.Platform,
		"platform_user_id": inv.comment.PlatformUserID,
	}

	for key, value := range extra {
		payload[key] = value
	}

	priority := inv.meta.Priority
	if priority == 0 {
		priority = 3
	}

	jobID, err := e.jobs.Enqueue(ctx, &queue.Job{
		JobType:        queue.JobTypeShieldAction,
		OrganizationID: inv.orgID,
		Payload:        payload,
		Priority:       priority,
		MaxAttempts:    3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", action, err)
	}

	return map[string]any{"job_id": jobID, "action": action}, nil
}

func (e *Executor) handleHideComment(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	result, err := e.submitPlatformJob(ctx, inv, TagHideComment, nil)
	return result, "", err
}

func (e *Executor) handleBlockUser(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	result, err := e.submitPlatformJob(ctx, inv, TagBlockUser, nil)
	return result, "", err
}

// handleReportToPlatform is safety-gated: without a reportable platform
// violation it must never enqueue a job.
func (e *Executor) handleReportToPlatform(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	violations := inv.meta.PlatformViolations
	if violations == nil || !violations.Reportable {
		return nil, "not_reportable", nil
	}

	result, err := e.submitPlatformJob(ctx, inv, TagReportToPlatform, map[string]any{
		"violation_type": violations.ViolationType,
	})

	return result, "", err
}

func (e *Executor) handleMuteTemp(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	result, err := e.submitPlatformJob(ctx, inv, TagMuteTemp, map[string]any{
		"duration": e.muteDuration().String(),
	})

	return result, "", err
}

func (e *Executor) handleMutePermanent(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	result, err := e.submitPlatformJob(ctx, inv, TagMutePermanent, nil)
	return result, "", err
}

func (e *Executor) handleRequireManualReview(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	result, err := e.submitPlatformJob(ctx, inv, TagRequireManualReview, nil)
	return result, "", err
}

// handleGatekeeperUnavailable schedules a bounded re-analysis for comments
// the primary analyzer could not score.
func (e *Executor) handleGatekeeperUnavailable(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	jobID, err := e.jobs.Enqueue(ctx, &queue.Job{
		JobType:        queue.JobTypeAnalyzeToxicity,
		OrganizationID: inv.orgID,
		Payload: map[string]any{
			"comment_id":       inv.comment.ID,
			"platform":         inv.comment.Platform,
			"platform_user_id": inv.comment.PlatformUserID,
			"reason":           TagGatekeeperUnavailable,
		},
		Priority:    2,
		MaxAttempts: 2,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to enqueue re-analysis job: %w", err)
	}

	return map[string]any{"job_id": jobID, "action": "reanalyze"}, "", nil
}

func (e *Executor) handleCheckReincidence(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	behavior, err := e.behaviors.GetByKey(ctx, inv.orgID, inv.comment.Platform, inv.comment.PlatformUserID)
	if err != nil {
		if errors.Is(err, types.ErrBehaviorNotFound) {
			return map[string]any{"violation_count": 0, "reincident": false}, "", nil
		}

		return nil, "", fmt.Errorf("failed to check reincidence: %w", err)
	}

	count := behavior.MergedViolationCount()

	return map[string]any{
		"violation_count": count,
		"reincident":      count >= e.cfg.EffectiveReincidenceThreshold(),
	}, "", nil
}

func (e *Executor) addStrike(ctx context.Context, inv *invocation, level int) (map[string]any, string, error) {
	strikes, err := e.behaviors.AddStrike(ctx, inv.orgID, inv.comment.Platform, inv.comment.PlatformUserID, level)
	if err != nil {
		return nil, "", fmt.Errorf("failed to add level %d strike: %w", level, err)
	}

	return map[string]any{"level": level, "strikes": strikes}, "", nil
}

func (e *Executor) handleAddStrike1(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	return e.addStrike(ctx, inv, 1)
}

func (e *Executor) handleAddStrike2(ctx context.Context, inv *invocation) (map[string]any, string, error) {
	return e.addStrike(ctx, inv, 2)
}
