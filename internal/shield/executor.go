package shield

import (
	"context"
	"fmt"
	"time"

	"github.com/aegismod/aegis/internal/database/types"
	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/aegismod/aegis/internal/queue"
	"github.com/aegismod/aegis/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// BehaviorStore is the per-user history store consumed by the executor and
// the evaluation service.
type BehaviorStore interface {
	GetByKey(ctx context.Context, orgID, platform, userID string) (*types.UserBehavior, error)
	AtomicUpdate(
		ctx context.Context, orgID, platform, userID, username string, data *types.ViolationData,
	) (*types.UserBehavior, error)
	AddStrike(ctx context.Context, orgID, platform, userID string, level int) (int, error)
}

// AuditSink persists action outcomes, best-effort.
type AuditSink interface {
	BatchInsert(ctx context.Context, records []*types.ShieldAction) error
}

// JobSubmitter hands platform work to the external queue subsystem.
type JobSubmitter interface {
	Enqueue(ctx context.Context, job *queue.Job) (string, error)
}

// Metadata carries evaluation context shared by every tag in one batch.
type Metadata struct {
	ToxicityScore      float64
	Priority           int
	Decision           *Decision
	PlatformViolations *PlatformViolations
}

// TagResult is the outcome of dispatching one action tag.
type TagResult struct {
	Tag    string         `json:"tag"`
	Status enum.ActionStatus `json:"status"`
	Reason string         `json:"reason,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ExecutionResult is the structured outcome of one executor batch. Success
// means no tag failed; skipped tags are not failures.
type ExecutionResult struct {
	Success bool         `json:"success"`
	Skipped bool         `json:"skipped,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Actions []*TagResult `json:"actionsExecuted"`
	Failed  []*TagResult `json:"failedActions"`
}

// Executor dispatches decided action tags to their handlers, splitting them
// into a strictly sequential counter-mutating partition and a concurrent
// side-effect partition, then records the batch outcome exactly once.
type Executor struct {
	behaviors BehaviorStore
	audit     AuditSink
	jobs      JobSubmitter
	cfg       *config.Shield
	logger    *zap.Logger
}

// NewExecutor creates an action tag executor.
func NewExecutor(
	behaviors BehaviorStore, audit AuditSink, jobs JobSubmitter,
	cfg *config.Shield, logger *zap.Logger,
) *Executor {
	return &Executor{
		behaviors: behaviors,
		audit:     audit,
		jobs:      jobs,
		cfg:       cfg,
		logger:    logger.Named("executor"),
	}
}

type invocation struct {
	orgID   string
	comment *Comment
	meta    *Metadata
}

// Execute runs one batch of action tags. Validation failures return a
// structured result without side effects; handler failures are isolated
// per tag and never abort the rest of the batch.
func (e *Executor) Execute(
	ctx context.Context, orgID string, comment *Comment, tags []string, meta *Metadata,
) *ExecutionResult {
	if reason := validateExecution(orgID, comment, tags); reason != "" {
		return &ExecutionResult{
			Success: false,
			Actions: []*TagResult{},
			Failed: []*TagResult{{
				Tag:    "validation",
				Status: enum.StatusFailed,
				Error:  reason,
			}},
		}
	}

	// Safety valve, distinct from a validation failure.
	if !e.cfg.AutoActions {
		return &ExecutionResult{
			Success: true,
			Skipped: true,
			Reason:  "autoActions_disabled",
			Actions: []*TagResult{},
			Failed:  []*TagResult{},
		}
	}

	if meta == nil {
		meta = &Metadata{}
	}

	inv := &invocation{orgID: orgID, comment: comment, meta: meta}
	results := make([]*TagResult, len(tags))

	var sequential, concurrent []int

	for i, tag := range tags {
		if _, ok := mutatingTags[tag]; ok {
			sequential = append(sequential, i)
		} else {
			concurrent = append(concurrent, i)
		}
	}

	// Counter-mutating tags read-then-write shared per-user state and must
	// not race, even within one evaluation.
	for _, i := range sequential {
		results[i] = e.runTag(ctx, tags[i], inv)
	}

	p := pool.New().WithMaxGoroutines(8)

	for _, i := range concurrent {
		p.Go(func() {
			results[i] = e.runTag(ctx, tags[i], inv)
		})
	}

	p.Wait()

	outcome := &ExecutionResult{
		Actions: make([]*TagResult, 0, len(results)),
		Failed:  []*TagResult{},
	}

	for _, result := range results {
		if result.Status == enum.StatusFailed {
			outcome.Failed = append(outcome.Failed, result)
		} else {
			outcome.Actions = append(outcome.Actions, result)
		}
	}

	outcome.Success = len(outcome.Failed) == 0

	e.recordBatch(ctx, inv, results)

	if len(tags) > 0 {
		e.updateBehavior(ctx, inv, tags)
	}

	return outcome
}

func validateExecution(orgID string, comment *Comment, tags []string) string {
	switch {
	case orgID == "":
		return "missing organization_id"
	case comment == nil:
		return "missing comment"
	case tags == nil:
		return "action_tags must be a list"
	case comment.ID == "":
		return "comment missing id"
	case comment.Platform == "":
		return "comment missing platform"
	case comment.PlatformUserID == "":
		return "comment missing platform_user_id"
	default:
		return ""
	}
}

// runTag dispatches one tag to its handler, converting panics and errors
// into failed results so one tag can never abort the batch.
func (e *Executor) runTag(ctx context.Context, tag string, inv *invocation) (result *TagResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Handler panicked",
				zap.String("tag", tag),
				zap.Any("panic", r))

			result = &TagResult{
				Tag:    tag,
				Status: enum.StatusFailed,
				Error:  fmt.Sprintf("handler panic: %v", r),
			}
		}
	}()

	handler, ok := e.handlerFor(tag)
	if !ok {
		return &TagResult{Tag: tag, Status: enum.StatusSkipped, Reason: "unknown_tag"}
	}

	payload, skipReason, err := handler(ctx, inv)
	if err != nil {
		e.logger.Warn("Action tag failed",
			zap.String("tag", tag),
			zap.Error(err))

		return &TagResult{Tag: tag, Status: enum.StatusFailed, Error: err.Error()}
	}

	if skipReason != "" {
		return &TagResult{Tag: tag, Status: enum.StatusSkipped, Reason: skipReason}
	}

	return &TagResult{Tag: tag, Status: enum.StatusExecuted, Result: payload}
}

type handlerFunc func(ctx context.Context, inv *invocation) (map[string]any, string, error)

func (e *Executor) handlerFor(tag string) (handlerFunc, bool) {
	switch tag {
	case TagHideComment:
		return e.handleHideComment, true
	case TagBlockUser:
		return e.handleBlockUser, true
	case TagReportToPlatform:
		return e.handleReportToPlatform, true
	case TagMuteTemp:
		return e.handleMuteTemp, true
	case TagMutePermanent:
		return e.handleMutePermanent, true
	case TagCheckReincidence:
		return e.handleCheckReincidence, true
	case TagAddStrike1:
		return e.handleAddStrike1, true
	case TagAddStrike2:
		return e.handleAddStrike2, true
	case TagRequireManualReview:
		return e.handleRequireManualReview, true
	case TagGatekeeperUnavailable:
		return e.handleGatekeeperUnavailable, true
	default:
		return nil, false
	}
}

// recordBatch persists one audit row per tag in a single insert. Failures
// are logged and swallowed; the trace must never undo executed actions.
func (e *Executor) recordBatch(ctx context.Context, inv *invocation, results []*TagResult) {
	if len(results) == 0 {
		return
	}

	now := time.Now()
	records := make([]*types.ShieldAction, 0, len(results))

	for _, result := range results {
		record := &types.ShieldAction{
			OrganizationID: inv.orgID,
			CommentID:      inv.comment.ID,
			Platform:       inv.comment.Platform,
			PlatformUserID: inv.comment.PlatformUserID,
			ActionTag:      result.Tag,
			Status:         result.Status,
			Reason:         result.Reason,
			Result:         result.Result,
			CreatedAt:      now,
		}

		if result.Error != "" {
			record.Metadata = map[string]any{"error": result.Error}
		}

		records = append(records, record)
	}

	if err := e.audit.BatchInsert(ctx, records); err != nil {
		e.logger.Error("Failed to record action batch",
			zap.String("commentId", inv.comment.ID),
			zap.Error(err))
	}
}

// updateBehavior applies the single atomic violation update for the batch.
// Failures are logged and swallowed.
func (e *Executor) updateBehavior(ctx context.Context, inv *invocation, tags []string) {
	data := &types.ViolationData{
		ActionTags: tags,
		Severity:   enum.SeverityForScore(inv.meta.ToxicityScore),
		CommentID:  inv.comment.ID,
		Timestamp:  time.Now(),
	}

	if inv.meta.Decision != nil {
		data.Action = inv.meta.Decision.Primary.String()
	} else {
		data.Action = tags[0]
	}

	for _, tag := range tags {
		switch tag {
		case TagMuteTemp:
			expiry := time.Now().Add(e.muteDuration())
			data.Muted = true
			data.MuteExpiresAt = &expiry
		case TagMutePermanent:
			data.Muted = true
			data.MuteExpiresAt = nil
		}
	}

	_, err := e.behaviors.AtomicUpdate(
		ctx, inv.orgID, inv.comment.Platform,
		inv.comment.PlatformUserID, inv.comment.PlatformUsername, data,
	)
	if err != nil {
		e.logger.Error("Failed to update behavior record",
			zap.String("platformUserId", inv.comment.PlatformUserID),
			zap.Error(err))
	}
}

func (e *Executor) muteDuration() time.Duration {
	hours := e.cfg.MuteDurationHours
	if hours <= 0 {
		hours = 24
	}

	return time.Duration(hours) * time.Hour
}
