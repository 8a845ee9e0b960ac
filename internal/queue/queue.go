package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// JobTypeShieldAction carries one platform enforcement step for the
	// downstream platform workers.
	JobTypeShieldAction = "shield_action"
	// JobTypeAnalyzeToxicity requests a deeper re-analysis of a comment.
	JobTypeAnalyzeToxicity = "analyze_toxicity"
	// JobTypeEvaluateComment carries an inbound comment plus its analysis
	// into the evaluation workers.
	JobTypeEvaluateComment = "evaluate_comment"

	// PriorityHighest is the most urgent job tier.
	PriorityHighest = 1
	// PriorityLowest is the least urgent job tier.
	PriorityLowest = 5
)

// Job encapsulates one unit of asynchronous work. Priority 1 is processed
// first, priority 5 last.
type Job struct {
	ID             string         `json:"id"`
	JobType        string         `json:"jobType"`
	OrganizationID string         `json:"organizationId"`
	Payload        map[string]any `json:"payload"`
	Priority       int            `json:"priority"`
	MaxAttempts    int            `json:"maxAttempts"`
	Attempts       int            `json:"attempts"`
	EnqueuedAt     time.Time      `json:"enqueuedAt"`
}

// Manager orchestrates priority queues backed by Redis sorted sets, one set
// per (job type, priority) pair. Scores are enqueue timestamps so items of
// equal priority dequeue in FIFO order.
type Manager struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewManager initializes a queue manager with its required dependencies.
func NewManager(client rueidis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		client: client,
		logger: logger.Named("queue"),
	}
}

// Enqueue adds a job to its priority queue and returns the assigned job ID.
// Out-of-range priorities are clamped rather than rejected.
func (m *Manager) Enqueue(ctx context.Context, job *Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	if job.Priority < PriorityHighest {
		job.Priority = PriorityHighest
	} else if job.Priority > PriorityLowest {
		job.Priority = PriorityLowest
	}

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	jobJSON, err := sonic.Marshal(job)
	if err != nil {
		m.logger.Error("Failed to marshal job", zap.Error(err))
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	key := queueKey(job.JobType, job.Priority)

	err = m.client.Do(ctx,
		m.client.B().Zadd().Key(key).ScoreMember().
			ScoreMember(float64(job.EnqueuedAt.UnixNano()), string(jobJSON)).Build(),
	).Error()
	if err != nil {
		m.logger.Error("Failed to enqueue job",
			zap.String("jobType", job.JobType),
			zap.Int("priority", job.Priority),
			zap.Error(err))

		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Debug("Enqueued job",
		zap.String("jobId", job.ID),
		zap.String("jobType", job.JobType),
		zap.Int("priority", job.Priority))

	return job.ID, nil
}

// Dequeue pops the oldest job from the highest non-empty priority tier.
// Returns nil without error when every tier is empty.
func (m *Manager) Dequeue(ctx context.Context, jobType string) (*Job, error) {
	for priority := PriorityHighest; priority <= PriorityLowest; priority++ {
		key := queueKey(jobType, priority)

		entries, err := m.client.Do(ctx,
			m.client.B().Zpopmin().Key(key).Build(),
		).AsZScores()
		if err != nil {
			return nil, fmt.Errorf("failed to pop from queue %s: %w", key, err)
		}

		if len(entries) == 0 {
			continue
		}

		var job Job
		if err := sonic.Unmarshal([]byte(entries[0].Member), &job); err != nil {
			m.logger.Error("Discarding undecodable job",
				zap.String("key", key),
				zap.Error(err))

			continue
		}

		job.Attempts++

		return &job, nil
	}

	return nil, nil //nolint:nilnil // empty queue is not an error
}

// Requeue puts a failed job back on its queue unless its attempts are
// exhausted. Reports whether the job was requeued.
func (m *Manager) Requeue(ctx context.Context, job *Job) (bool, error) {
	if job.MaxAttempts > 0 && job.Attempts >= job.MaxAttempts {
		m.logger.Warn("Dropping job after max attempts",
			zap.String("jobId", job.ID),
			zap.String("jobType", job.JobType),
			zap.Int("attempts", job.Attempts))

		return false, nil
	}

	jobJSON, err := sonic.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}

	key := queueKey(job.JobType, job.Priority)

	err = m.client.Do(ctx,
		m.client.B().Zadd().Key(key).ScoreMember().
			ScoreMember(float64(time.Now().UnixNano()), string(jobJSON)).Build(),
	).Error()
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}

	return true, nil
}

// Length returns the total number of queued jobs for a job type across all
// priority tiers.
func (m *Manager) Length(ctx context.Context, jobType string) int {
	var total int

	for priority := PriorityHighest; priority <= PriorityLowest; priority++ {
		count, err := m.client.Do(ctx,
			m.client.B().Zcard().Key(queueKey(jobType, priority)).Build(),
		).ToInt64()
		if err != nil {
			m.logger.Error("Failed to get queue length", zap.Error(err))
			continue
		}

		total += int(count)
	}

	return total
}

func queueKey(jobType string, priority int) string {
	return fmt.Sprintf("queue:%s:p%d", jobType, priority)
}
