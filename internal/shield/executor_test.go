package shield_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aegismod/aegis/internal/database/types"
	"github.com/aegismod/aegis/internal/database/types/enum"
	"github.com/aegismod/aegis/internal/queue"
	"github.com/aegismod/aegis/internal/setup/config"
	"github.com/aegismod/aegis/internal/shield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBehaviorStore struct {
	mu        sync.Mutex
	behaviors map[string]*types.UserBehavior
	updates   []*types.ViolationData
	strikes   []int
	getErr    error
	updateErr error
}

func newFakeBehaviorStore() *fakeBehaviorStore {
	return &fakeBehaviorStore{behaviors: make(map[string]*types.UserBehavior)}
}

func behaviorKey(orgID, platform, userID string) string {
	return fmt.Sprintf("%s/%s/%s", orgID, platform, userID)
}

func (f *fakeBehaviorStore) GetByKey(
	_ context.Context, orgID, platform, userID string,
) (*types.UserBehavior, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	behavior, ok := f.behaviors[behaviorKey(orgID, platform, userID)]
	if !ok {
		return nil, types.ErrBehaviorNotFound
	}

	return behavior, nil
}

func (f *fakeBehaviorStore) AtomicUpdate(
	_ context.Context, orgID, platform, userID, _ string, data *types.ViolationData,
) (*types.UserBehavior, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return nil, f.updateErr
	}

	f.updates = append(f.updates, data)

	behavior, ok := f.behaviors[behaviorKey(orgID, platform, userID)]
	if !ok {
		behavior = types.NewUserBehavior(orgID, platform, userID)
		f.behaviors[behaviorKey(orgID, platform, userID)] = behavior
	}

	behavior.TotalViolations++

	return behavior, nil
}

func (f *fakeBehaviorStore) AddStrike(
	_ context.Context, _, _, _ string, level int,
) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.strikes = append(f.strikes, level)

	return len(f.strikes), nil
}

type fakeAuditSink struct {
	mu      sync.Mutex
	batches [][]*types.ShieldAction
	err     error
}

func (f *fakeAuditSink) BatchInsert(_ context.Context, records []*types.ShieldAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.batches = append(f.batches, records)

	return nil
}

type fakeJobSubmitter struct {
	mu       sync.Mutex
	jobs     []*queue.Job
	errFor   map[string]error
	panicFor map[string]bool
}

func newFakeJobSubmitter() *fakeJobSubmitter {
	return &fakeJobSubmitter{
		errFor:   make(map[string]error),
		panicFor: make(map[string]bool),
	}
}

func (f *fakeJobSubmitter) Enqueue(_ context.Context, job *queue.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	action, _ := job.Payload["action"].(string)
	if f.panicFor[action] {
		panic("queue backend unavailable")
	}

	if err := f.errFor[action]; err != nil {
		return "", err
	}

	f.jobs = append(f.jobs, job)

	return fmt.Sprintf("job-%d", len(f.jobs)), nil
}

func (f *fakeJobSubmitter) jobActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	actions := make([]string, 0, len(f.jobs))
	for _, job := range f.jobs {
		action, _ := job.Payload["action"].(string)
		actions = append(actions, action)
	}

	return actions
}

type executorFixture struct {
	executor  *shield.Executor
	behaviors *fakeBehaviorStore
	audit     *fakeAuditSink
	jobs      *fakeJobSubmitter
}

func setupExecutor(t *testing.T, cfg *config.Shield) *executorFixture {
	t.Helper()

	if cfg == nil {
		cfg = &config.Shield{
			Enabled:     true,
			AutoActions: true,
		}
	}

	behaviors := newFakeBehaviorStore()
	audit := &fakeAuditSink{}
	jobs := newFakeJobSubmitter()

	return &executorFixture{
		executor:  shield.NewExecutor(behaviors, audit, jobs, cfg, zap.NewNop()),
		behaviors: behaviors,
		audit:     audit,
		jobs:      jobs,
	}
}

func resultFor(t *testing.T, results []*shield.TagResult, tag string) *shield.TagResult {
	t.Helper()

	for _, result := range results {
		if result.Tag == tag {
			return result
		}
	}

	t.Fatalf("no result for tag %s", tag)

	return nil
}

func TestExecuteValidationFailures(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)
	ctx := t.Context()

	tests := []struct {
		name    string
		orgID   string
		comment *shield.Comment
		tags    []string
		reason  string
	}{
		{
			name:    "missing organization",
			comment: testComment(),
			tags:    []string{shield.TagHideComment},
			reason:  "missing organization_id",
		},
		{
			name:   "missing comment",
			orgID:  "org-1",
			tags:   []string{shield.TagHideComment},
			reason: "missing comment",
		},
		{
			name:    "nil tags",
			orgID:   "org-1",
			comment: testComment(),
			reason:  "action_tags must be a list",
		},
		{
			name:    "comment missing platform",
			orgID:   "org-1",
			comment: &shield.Comment{ID: "c1", PlatformUserID: "u1"},
			tags:    []string{shield.TagHideComment},
			reason:  "comment missing platform",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fx.executor.Execute(ctx, tt.orgID, tt.comment, tt.tags, nil)

			assert.False(t, result.Success)
			require.Len(t, result.Failed, 1)
			assert.Equal(t, "validation", result.Failed[0].Tag)
			assert.Equal(t, tt.reason, result.Failed[0].Error)
		})
	}

	assert.Empty(t, fx.audit.batches, "validation failures produce no side effects")
	assert.Empty(t, fx.behaviors.updates)
}

func TestExecuteAutoActionsDisabled(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, &config.Shield{Enabled: true, AutoActions: false})

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(), []string{shield.TagHideComment}, nil)

	assert.True(t, result.Success)
	assert.True(t, result.Skipped)
	assert.Equal(t, "autoActions_disabled", result.Reason)
	assert.Empty(t, fx.jobs.jobs)
	assert.Empty(t, fx.audit.batches)
	assert.Empty(t, fx.behaviors.updates)
}

func TestExecuteFullBatch(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)
	tags := []string{shield.TagHideComment, shield.TagBlockUser, shield.TagAddStrike1}

	result := fx.executor.Execute(t.Context(), "org-1", testComment(), tags, &shield.Metadata{
		ToxicityScore: 0.85,
	})

	assert.True(t, result.Success)
	assert.Len(t, result.Actions, 3)
	assert.Empty(t, result.Failed)

	assert.ElementsMatch(t, []string{"hide_comment", "block_user"}, fx.jobs.jobActions())
	assert.Equal(t, []int{1}, fx.behaviors.strikes)

	// One audit insert with one row per tag, one behavior update per batch.
	require.Len(t, fx.audit.batches, 1)
	assert.Len(t, fx.audit.batches[0], 3)
	require.Len(t, fx.behaviors.updates, 1)
	assert.Equal(t, enum.SeverityCritical, fx.behaviors.updates[0].Severity)
	assert.Equal(t, tags, fx.behaviors.updates[0].ActionTags)
}

func TestExecuteUnknownTagSkipped(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(),
		[]string{shield.TagHideComment, "self_destruct"}, nil)

	assert.True(t, result.Success, "skips are not failures")
	assert.Len(t, result.Actions, 2)

	skipped := resultFor(t, result.Actions, "self_destruct")
	assert.Equal(t, enum.StatusSkipped, skipped.Status)
	assert.Equal(t, "unknown_tag", skipped.Reason)

	// The skip still lands in the audit trail.
	require.Len(t, fx.audit.batches, 1)
	assert.Len(t, fx.audit.batches[0], 2)
}

func TestExecuteReportNotReportable(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(),
		[]string{shield.TagReportToPlatform}, &shield.Metadata{
			PlatformViolations: &shield.PlatformViolations{Reportable: false},
		})

	assert.True(t, result.Success)

	skipped := resultFor(t, result.Actions, shield.TagReportToPlatform)
	assert.Equal(t, enum.StatusSkipped, skipped.Status)
	assert.Equal(t, "not_reportable", skipped.Reason)
	assert.Empty(t, fx.jobs.jobs, "no report job for unreportable content")
}

func TestExecuteReportReportable(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(),
		[]string{shield.TagReportToPlatform}, &shield.Metadata{
			PlatformViolations: &shield.PlatformViolations{
				Reportable:    true,
				ViolationType: "hate_speech",
			},
		})

	assert.True(t, result.Success)
	require.Len(t, fx.jobs.jobs, 1)
	assert.Equal(t, queue.JobTypeShieldAction, fx.jobs.jobs[0].JobType)
	assert.Equal(t, "hate_speech", fx.jobs.jobs[0].Payload["violation_type"])
}

func TestExecuteFailureIsolation(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)
	fx.jobs.errFor["block_user"] = errors.New("queue write refused")

	tags := []string{shield.TagHideComment, shield.TagBlockUser, shield.TagRequireManualReview}
	result := fx.executor.Execute(t.Context(), "org-1", testComment(), tags, nil)

	assert.False(t, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, shield.TagBlockUser, result.Failed[0].Tag)
	assert.Contains(t, result.Failed[0].Error, "queue write refused")
	assert.Len(t, result.Actions, 2, "other tags still run")

	// The failed tag is in the same audit batch as the successes.
	require.Len(t, fx.audit.batches, 1)
	assert.Len(t, fx.audit.batches[0], 3)
	assert.Len(t, fx.behaviors.updates, 1)
}

func TestExecutePanicIsolation(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)
	fx.jobs.panicFor["hide_comment"] = true

	tags := []string{shield.TagHideComment, shield.TagBlockUser}
	result := fx.executor.Execute(t.Context(), "org-1", testComment(), tags, nil)

	assert.False(t, result.Success)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, shield.TagHideComment, result.Failed[0].Tag)
	assert.Contains(t, result.Failed[0].Error, "handler panic")

	executed := resultFor(t, result.Actions, shield.TagBlockUser)
	assert.Equal(t, enum.StatusExecuted, executed.Status)
}

func TestExecuteMuteTempSetsExpiry(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, &config.Shield{
		Enabled:           true,
		AutoActions:       true,
		MuteDurationHours: 6,
	})

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(),
		[]string{shield.TagMuteTemp, shield.TagAddStrike1}, &shield.Metadata{ToxicityScore: 0.5})

	assert.True(t, result.Success)
	require.Len(t, fx.behaviors.updates, 1)

	update := fx.behaviors.updates[0]
	assert.True(t, update.Muted)
	require.NotNil(t, update.MuteExpiresAt)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), *update.MuteExpiresAt, time.Minute)
	assert.Equal(t, enum.SeverityMedium, update.Severity)
}

func TestExecuteMutePermanentNoExpiry(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(),
		[]string{shield.TagMutePermanent, shield.TagAddStrike2}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, []int{2}, fx.behaviors.strikes)
	require.Len(t, fx.behaviors.updates, 1)
	assert.True(t, fx.behaviors.updates[0].Muted)
	assert.Nil(t, fx.behaviors.updates[0].MuteExpiresAt)
}

func TestExecuteCheckReincidence(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, &config.Shield{
		Enabled:              true,
		AutoActions:          true,
		ReincidenceThreshold: 3,
	})

	behavior := types.NewUserBehavior("org-1", "discord", "user-1")
	behavior.TotalViolations = 4
	fx.behaviors.behaviors[behaviorKey("org-1", "discord", "user-1")] = behavior

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(), []string{shield.TagCheckReincidence}, nil)

	assert.True(t, result.Success)

	check := resultFor(t, result.Actions, shield.TagCheckReincidence)
	assert.Equal(t, enum.StatusExecuted, check.Status)
	assert.Equal(t, true, check.Result["reincident"])
}

func TestExecuteCheckReincidenceUnknownUser(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(), []string{shield.TagCheckReincidence}, nil)

	assert.True(t, result.Success)

	check := resultFor(t, result.Actions, shield.TagCheckReincidence)
	assert.Equal(t, enum.StatusExecuted, check.Status)
	assert.Equal(t, false, check.Result["reincident"])
}

func TestExecuteGatekeeperUnavailable(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(),
		[]string{shield.TagGatekeeperUnavailable}, nil)

	assert.True(t, result.Success)
	require.Len(t, fx.jobs.jobs, 1)
	assert.Equal(t, queue.JobTypeAnalyzeToxicity, fx.jobs.jobs[0].JobType)
	assert.Equal(t, 2, fx.jobs.jobs[0].Priority)
}

func TestExecuteEmptyBatch(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	result := fx.executor.Execute(t.Context(), "org-1", testComment(), []string{}, nil)

	assert.True(t, result.Success)
	assert.Empty(t, result.Actions)
	assert.Empty(t, fx.audit.batches)
	assert.Empty(t, fx.behaviors.updates, "no behavior update without tags")
}

func TestExecuteAuditFailureSwallowed(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)
	fx.audit.err = errors.New("insert timeout")

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(), []string{shield.TagHideComment}, nil)

	assert.True(t, result.Success, "audit trail is best-effort")
	assert.Len(t, fx.jobs.jobs, 1)
}

func TestExecuteBehaviorUpdateFailureSwallowed(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)
	fx.behaviors.updateErr = errors.New("deadlock detected")

	result := fx.executor.Execute(
		t.Context(), "org-1", testComment(), []string{shield.TagHideComment}, nil)

	assert.True(t, result.Success)
	require.Len(t, fx.audit.batches, 1)
}

func TestExecuteActionFromDecision(t *testing.T) {
	t.Parallel()

	fx := setupExecutor(t, nil)

	fx.executor.Execute(
		t.Context(), "org-1", testComment(),
		[]string{shield.TagHideComment, shield.TagBlockUser}, &shield.Metadata{
			ToxicityScore: 0.7,
			Decision:      &shield.Decision{Primary: enum.ActionBlock},
		})

	require.Len(t, fx.behaviors.updates, 1)
	assert.Equal(t, "block", fx.behaviors.updates[0].Action)
	assert.Equal(t, enum.SeverityHigh, fx.behaviors.updates[0].Severity)
}
