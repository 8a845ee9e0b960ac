package shield

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegismod/aegis/internal/database/types"
	"github.com/aegismod/aegis/internal/queue"
	"github.com/aegismod/aegis/internal/setup/config"
	"go.uber.org/zap"
)

var (
	ErrMissingOrganization = errors.New("missing organization id")
	ErrMissingComment      = errors.New("missing comment")
	ErrMissingAnalysis     = errors.New("missing analysis result")
)

// Evaluation is the structured result handed back to the caller of the
// evaluation entrypoint. ShouldGenerateResponse is always false while
// Shield is active: moderation and reply generation are mutually exclusive
// for the same comment.
type Evaluation struct {
	ShieldActive           bool                `json:"shieldActive"`
	Priority               int                 `json:"priority,omitempty"`
	Decision               *Decision           `json:"decision,omitempty"`
	UserBehavior           *types.UserBehavior `json:"userBehavior,omitempty"`
	AutoExecuted           bool                `json:"autoExecuted"`
	Execution              *ExecutionResult    `json:"execution,omitempty"`
	ShouldGenerateResponse bool                `json:"shouldGenerateResponse"`
}

// Service wires the decision engine and the action tag executor into the
// single evaluation entrypoint used by workers and tools.
type Service struct {
	engine    *Engine
	executor  *Executor
	behaviors BehaviorStore
	jobs      JobSubmitter
	cfg       *config.Shield
	logger    *zap.Logger
}

// NewService creates the shield evaluation service.
func NewService(
	behaviors BehaviorStore, audit AuditSink, jobs JobSubmitter,
	cfg *config.Shield, logger *zap.Logger,
) *Service {
	return &Service{
		engine:    NewEngine(cfg, logger),
		executor:  NewExecutor(behaviors, audit, jobs, cfg, logger),
		behaviors: behaviors,
		jobs:      jobs,
		cfg:       cfg,
		logger:    logger.Named("shield"),
	}
}

// DecideAndExecute evaluates one analyzed comment: it consults the user's
// history, produces a decision, queues a re-analysis for urgent cases, and
// executes the decided action tags when automation allows.
func (s *Service) DecideAndExecute(
	ctx context.Context, orgID string, comment *Comment, analysis *AnalysisResult,
) (*Evaluation, error) {
	switch {
	case orgID == "":
		return nil, ErrMissingOrganization
	case comment == nil:
		return nil, ErrMissingComment
	case analysis == nil:
		return nil, ErrMissingAnalysis
	}

	if !s.cfg.Enabled {
		return &Evaluation{
			ShieldActive:           false,
			ShouldGenerateResponse: true,
		}, nil
	}

	behavior := s.loadBehavior(ctx, orgID, comment)
	decision := s.engine.Decide(analysis, behavior, comment)
	priority := PriorityFor(decision, analysis)

	// Urgent cases get a deeper analysis pass queued before enforcement.
	if priority <= 2 {
		_, err := s.jobs.Enqueue(ctx, &queue.Job{
			JobType:        queue.JobTypeAnalyzeToxicity,
			OrganizationID: orgID,
			Payload: map[string]any{
				"comment_id":       comment.ID,
				"platform":         comment.Platform,
				"platform_user_id": comment.PlatformUserID,
				"toxicity_score":   analysis.ToxicityScore,
			},
			Priority:    priority,
			MaxAttempts: 2,
		})
		if err != nil {
			s.logger.Warn("Failed to queue high-priority analysis",
				zap.String("commentId", comment.ID),
				zap.Error(err))
		}
	}

	evaluation := &Evaluation{
		ShieldActive:           true,
		Priority:               priority,
		Decision:               decision,
		UserBehavior:           behavior,
		ShouldGenerateResponse: false,
	}

	if !decision.AutoExecute || !s.cfg.AutoActions {
		return evaluation, nil
	}

	tags := TagsFor(decision, analysis)

	result := s.executor.Execute(ctx, orgID, comment, tags, &Metadata{
		ToxicityScore:      analysis.ToxicityScore,
		Priority:           priority,
		Decision:           decision,
		PlatformViolations: analysis.PlatformViolations,
	})

	evaluation.Execution = result
	evaluation.AutoExecuted = result.Success && !result.Skipped

	return evaluation, nil
}

// Stats proxies behavior lookups for tooling that only has the service.
func (s *Service) UserBehavior(
	ctx context.Context, orgID string, comment *Comment,
) (*types.UserBehavior, error) {
	if comment == nil {
		return nil, ErrMissingComment
	}

	behavior, err := s.behaviors.GetByKey(ctx, orgID, comment.Platform, comment.PlatformUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load behavior: %w", err)
	}

	return behavior, nil
}

// loadBehavior fetches the user's history, synthesizing a first-offense
// record when the store has no row or is unavailable. Store failures must
// not block moderation; they degrade to conservative defaults.
func (s *Service) loadBehavior(ctx context.Context, orgID string, comment *Comment) *types.UserBehavior {
	behavior, err := s.behaviors.GetByKey(ctx, orgID, comment.Platform, comment.PlatformUserID)
	if err != nil {
		if !errors.Is(err, types.ErrBehaviorNotFound) {
			s.logger.Error("Failed to load behavior record, treating as first offense",
				zap.String("platformUserId", comment.PlatformUserID),
				zap.Error(err))
		}

		fresh := types.NewUserBehavior(orgID, comment.Platform, comment.PlatformUserID)
		fresh.PlatformUsername = comment.PlatformUsername

		return fresh
	}

	return behavior
}
