package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aegismod/aegis/internal/queue"
	"github.com/aegismod/aegis/internal/setup"
	"github.com/aegismod/aegis/internal/shield"
	"github.com/aegismod/aegis/internal/worker/core"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// ErrIncompletePayload indicates an evaluation job without the inputs the
// shield service needs.
var ErrIncompletePayload = errors.New("payload missing comment or analysis")

// evaluationPayload is the decoded body of an evaluate_comment job.
type evaluationPayload struct {
	Comment  *shield.Comment        `json:"comment"`
	Analysis *shield.AnalysisResult `json:"analysis"`
}

// Worker drains evaluate_comment jobs from the priority queue and runs each
// one through the shield evaluation service.
type Worker struct {
	service      *shield.Service
	queue        *queue.Manager
	reporter     *core.StatusReporter
	logger       *zap.Logger
	pollInterval time.Duration
	batchSize    int
}

// New creates a new evaluation worker.
func New(app *setup.App, logger *zap.Logger) *Worker {
	service := shield.NewService(
		app.DB.Model().Behavior(),
		app.DB.Model().Action(),
		app.Queue,
		&app.Config.Common.Shield,
		logger,
	)

	pollInterval := time.Duration(app.Config.Worker.PollInterval) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	batchSize := app.Config.Worker.BatchSizes.Evaluations
	if batchSize <= 0 {
		batchSize = 50
	}

	return &Worker{
		service:      service,
		queue:        app.Queue,
		reporter:     core.NewStatusReporter(app.StatusClient, "evaluation", logger),
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Start begins the evaluation worker's main loop:
// 1. Dequeues evaluation jobs in priority order
// 2. Evaluates each comment and executes decided actions
// 3. Requeues jobs that fail with attempts remaining
// 4. Repeats until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Evaluation worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Evaluation worker stopped")
			return
		default:
		}

		w.reporter.SetHealthy(true)

		processed := w.processBatch(ctx)
		if processed == 0 {
			w.reporter.UpdateStatus("Waiting for jobs", 0)

			select {
			case <-ctx.Done():
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// processBatch drains up to one batch of jobs, returning how many were
// dequeued.
func (w *Worker) processBatch(ctx context.Context) int {
	var processed int

	for processed < w.batchSize {
		job, err := w.queue.Dequeue(ctx, queue.JobTypeEvaluateComment)
		if err != nil {
			w.logger.Error("Failed to dequeue evaluation job", zap.Error(err))
			w.reporter.SetHealthy(false)

			return processed
		}

		if job == nil {
			return processed
		}

		processed++

		w.reporter.UpdateStatus(
			fmt.Sprintf("Evaluating comment (job %s)", job.ID),
			processed*100/w.batchSize,
		)

		if err := w.handleJob(ctx, job); err != nil {
			w.logger.Warn("Evaluation job failed",
				zap.String("jobId", job.ID),
				zap.Int("attempts", job.Attempts),
				zap.Error(err))

			requeued, requeueErr := w.queue.Requeue(ctx, job)
			if requeueErr != nil {
				w.logger.Error("Failed to requeue evaluation job",
					zap.String("jobId", job.ID),
					zap.Error(requeueErr))
			} else if !requeued {
				w.logger.Error("Dropping evaluation job after max attempts",
					zap.String("jobId", job.ID))
			}
		}
	}

	return processed
}

// handleJob decodes one job payload and runs the evaluation.
func (w *Worker) handleJob(ctx context.Context, job *queue.Job) error {
	payload, err := decodePayload(job.Payload)
	if err != nil {
		// A payload that cannot decode will never succeed, so do not requeue.
		w.logger.Error("Discarding undecodable evaluation job",
			zap.String("jobId", job.ID),
			zap.Error(err))

		return nil
	}

	evaluation, err := w.service.DecideAndExecute(ctx, job.OrganizationID, payload.Comment, payload.Analysis)
	if err != nil {
		return fmt.Errorf("failed to evaluate comment: %w", err)
	}

	if evaluation.ShieldActive && evaluation.Decision != nil {
		w.logger.Debug("Evaluated comment",
			zap.String("commentId", payload.Comment.ID),
			zap.String("action", evaluation.Decision.Primary.String()),
			zap.Int("priority", evaluation.Priority),
			zap.Bool("autoExecuted", evaluation.AutoExecuted))
	}

	return nil
}

// decodePayload converts the generic job payload into typed evaluation
// inputs.
func decodePayload(raw map[string]any) (*evaluationPayload, error) {
	data, err := sonic.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var payload evaluationPayload
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.Comment == nil || payload.Analysis == nil {
		return nil, ErrIncompletePayload
	}

	return &payload, nil
}
