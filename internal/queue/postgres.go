package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

const taskColumns = "id, task_type, payload, status, attempts, last_error, created_at, scheduled_for, started_at, processed_at"

// PostgresQueue stores tasks in a pending_tasks table. The claim is a single
// UPDATE over a FOR UPDATE SKIP LOCKED subselect, so concurrent workers can
// never take the same row.
type PostgresQueue struct {
	pool *pgxpool.Pool
	cfg  Config
	now  func() time.Time
}

func NewPostgresQueue(pool *pgxpool.Pool, cfg Config) *PostgresQueue {
	return &PostgresQueue{
		pool: pool,
		cfg:  cfg.withDefaults(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the queue table and its claim index.
func (q *PostgresQueue) EnsureSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pending_tasks (
			id BIGSERIAL PRIMARY KEY,
			task_type TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'::jsonb,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			scheduled_for TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_pending_tasks_claim
			ON pending_tasks (status, scheduled_for, id);
		CREATE INDEX IF NOT EXISTS idx_pending_tasks_type
			ON pending_tasks (task_type, status);
	`)
	if err != nil {
		return fmt.Errorf("ensure pending_tasks schema: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, taskType domain.TaskType, payload json.RawMessage, scheduledFor time.Time) (int64, error) {
	now := q.now()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	var id int64
	err := q.pool.QueryRow(ctx, `
		INSERT INTO pending_tasks (task_type, payload, status, attempts, created_at, scheduled_for)
		VALUES ($1, $2, 'pending', 0, $3, $4)
		RETURNING id
	`, string(taskType), payload, now, scheduledFor).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

func (q *PostgresQueue) ClaimNext(ctx context.Context) (*domain.PendingTask, error) {
	now := q.now()
	row := q.pool.QueryRow(ctx, `
		UPDATE pending_tasks
		SET status = 'processing', attempts = attempts + 1, started_at = $1
		WHERE id = (
			SELECT id
			FROM pending_tasks
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns+`
	`, now)

	task, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, task *domain.PendingTask, taskErr error) error {
	now := q.now()
	outcome := resolveCompletion(q.cfg, task, taskErr, now)

	var err error
	switch outcome.status {
	case domain.TaskStatusSuccess:
		_, err = q.pool.Exec(ctx, `
			UPDATE pending_tasks
			SET status = 'success', processed_at = $2
			WHERE id = $1
		`, task.ID, now)
	case domain.TaskStatusFailed:
		_, err = q.pool.Exec(ctx, `
			UPDATE pending_tasks
			SET status = 'failed', last_error = $2
			WHERE id = $1
		`, task.ID, outcome.lastError)
	default:
		_, err = q.pool.Exec(ctx, `
			UPDATE pending_tasks
			SET status = 'pending', last_error = $2, scheduled_for = $3, started_at = NULL
			WHERE id = $1
		`, task.ID, outcome.lastError, outcome.scheduledFor)
	}
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	task.Status = outcome.status
	task.LastError = outcome.lastError
	if outcome.processed {
		task.ProcessedAt = &now
	} else if outcome.status == domain.TaskStatusPending {
		task.ScheduledFor = outcome.scheduledFor
		task.StartedAt = nil
	}
	return nil
}

func (q *PostgresQueue) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().Add(-olderThan)
	command, err := q.pool.Exec(ctx, `
		UPDATE pending_tasks
		SET status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
			last_error = CASE WHEN attempts >= $2 THEN $3 ELSE last_error END,
			started_at = NULL
		WHERE status = 'processing' AND started_at IS NOT NULL AND started_at < $1
	`, cutoff, q.cfg.MaxAttempts, "processing claim expired with attempts exhausted")
	if err != nil {
		return 0, fmt.Errorf("reap stale tasks: %w", err)
	}
	return command.RowsAffected(), nil
}

func (q *PostgresQueue) GetTask(ctx context.Context, id int64) (*domain.PendingTask, error) {
	row := q.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM pending_tasks
		WHERE id = $1
	`, id)

	task, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

func (q *PostgresQueue) CountActive(ctx context.Context, taskType domain.TaskType) (int, error) {
	var count int
	err := q.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pending_tasks
		WHERE task_type = $1 AND status IN ('pending', 'processing')
	`, string(taskType)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active tasks: %w", err)
	}
	return count, nil
}

func (q *PostgresQueue) Retry(ctx context.Context, id int64) (*domain.PendingTask, error) {
	now := q.now()
	row := q.pool.QueryRow(ctx, `
		UPDATE pending_tasks
		SET status = 'pending', attempts = 0, scheduled_for = $2, started_at = NULL, processed_at = NULL
		WHERE id = $1 AND status = 'failed'
		RETURNING `+taskColumns+`
	`, id, now)

	task, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			if _, getErr := q.GetTask(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrNotRetryable
		}
		return nil, fmt.Errorf("retry task: %w", err)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*domain.PendingTask, error) {
	var (
		task        domain.PendingTask
		taskType    string
		payload     []byte
		status      string
		startedAt   *time.Time
		processedAt *time.Time
	)
	err := row.Scan(
		&task.ID,
		&taskType,
		&payload,
		&status,
		&task.Attempts,
		&task.LastError,
		&task.CreatedAt,
		&task.ScheduledFor,
		&startedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}
	task.TaskType = domain.TaskType(taskType)
	task.Payload = json.RawMessage(payload)
	task.Status = domain.TaskStatus(status)
	task.StartedAt = startedAt
	task.ProcessedAt = processedAt
	return &task, nil
}
