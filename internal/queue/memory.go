package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

// MemoryQueue keeps tasks in process memory with the same claim/complete
// semantics as the Postgres queue. It backs deployments without a database
// and the unit tests.
type MemoryQueue struct {
	mu     sync.Mutex
	tasks  map[int64]*domain.PendingTask
	nextID int64
	cfg    Config
	now    func() time.Time
}

func NewMemoryQueue(cfg Config) *MemoryQueue {
	return &MemoryQueue{
		tasks: make(map[int64]*domain.PendingTask),
		cfg:   cfg.withDefaults(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, taskType domain.TaskType, payload json.RawMessage, scheduledFor time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	q.nextID++
	task := &domain.PendingTask{
		ID:           q.nextID,
		TaskType:     taskType,
		Payload:      append(json.RawMessage(nil), payload...),
		Status:       domain.TaskStatusPending,
		CreatedAt:    now,
		ScheduledFor: scheduledFor,
	}
	q.tasks[task.ID] = task
	return task.ID, nil
}

func (q *MemoryQueue) ClaimNext(_ context.Context) (*domain.PendingTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var best *domain.PendingTask
	for _, task := range q.tasks {
		if task.Status != domain.TaskStatusPending || task.ScheduledFor.After(now) {
			continue
		}
		if best == nil || claimsBefore(task, best) {
			best = task
		}
	}
	if best == nil {
		return nil, nil
	}

	best.Status = domain.TaskStatusProcessing
	best.Attempts++
	started := now
	best.StartedAt = &started
	return cloneTask(best), nil
}

func (q *MemoryQueue) Complete(_ context.Context, task *domain.PendingTask, taskErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}

	now := q.now()
	outcome := resolveCompletion(q.cfg, stored, taskErr, now)
	stored.Status = outcome.status
	switch outcome.status {
	case domain.TaskStatusSuccess:
		processed := now
		stored.ProcessedAt = &processed
	case domain.TaskStatusFailed:
		stored.LastError = outcome.lastError
	default:
		stored.LastError = outcome.lastError
		stored.ScheduledFor = outcome.scheduledFor
		stored.StartedAt = nil
	}

	task.Status = stored.Status
	task.LastError = stored.LastError
	task.ScheduledFor = stored.ScheduledFor
	task.ProcessedAt = stored.ProcessedAt
	return nil
}

func (q *MemoryQueue) ReapStale(_ context.Context, olderThan time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-olderThan)
	var reaped int64
	for _, task := range q.tasks {
		if task.Status != domain.TaskStatusProcessing || task.StartedAt == nil || !task.StartedAt.Before(cutoff) {
			continue
		}
		if task.Attempts >= q.cfg.MaxAttempts {
			task.Status = domain.TaskStatusFailed
			task.LastError = "processing claim expired with attempts exhausted"
		} else {
			task.Status = domain.TaskStatusPending
		}
		task.StartedAt = nil
		reaped++
	}
	return reaped, nil
}

func (q *MemoryQueue) GetTask(_ context.Context, id int64) (*domain.PendingTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(task), nil
}

func (q *MemoryQueue) CountActive(_ context.Context, taskType domain.TaskType) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, task := range q.tasks {
		if task.TaskType != taskType {
			continue
		}
		if task.Status == domain.TaskStatusPending || task.Status == domain.TaskStatusProcessing {
			count++
		}
	}
	return count, nil
}

func (q *MemoryQueue) Retry(_ context.Context, id int64) (*domain.PendingTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if task.Status != domain.TaskStatusFailed {
		return nil, ErrNotRetryable
	}

	task.Status = domain.TaskStatusPending
	task.Attempts = 0
	task.ScheduledFor = q.now()
	task.StartedAt = nil
	task.ProcessedAt = nil
	return cloneTask(task), nil
}

// claimsBefore orders eligible tasks by scheduled_for then id, the same order
// the SQL claim uses.
func claimsBefore(a, b *domain.PendingTask) bool {
	if a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ID < b.ID
	}
	return a.ScheduledFor.Before(b.ScheduledFor)
}

func cloneTask(task *domain.PendingTask) *domain.PendingTask {
	clone := *task
	clone.Payload = append(json.RawMessage(nil), task.Payload...)
	if task.StartedAt != nil {
		started := *task.StartedAt
		clone.StartedAt = &started
	}
	if task.ProcessedAt != nil {
		processed := *task.ProcessedAt
		clone.ProcessedAt = &processed
	}
	return &clone
}

