package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

var (
	// ErrNotFound is returned when a task id does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrNotRetryable is returned when Retry is called on a task that is
	// not in a failed state.
	ErrNotRetryable = errors.New("task is not in a failed state")
)

const maxLastErrorLen = 2000

// Queue is the durable task queue: rows are enqueued, claimed by exactly one
// worker at a time, and completed with retry/backoff bookkeeping. Completed
// rows are kept for audit.
type Queue interface {
	// Enqueue inserts a pending task. A zero scheduledFor means eligible
	// immediately.
	Enqueue(ctx context.Context, taskType domain.TaskType, payload json.RawMessage, scheduledFor time.Time) (int64, error)
	// ClaimNext atomically takes ownership of the oldest eligible pending
	// task, marking it processing and counting the attempt. It returns
	// (nil, nil) when nothing is eligible — the idle signal, not an error.
	ClaimNext(ctx context.Context) (*domain.PendingTask, error)
	// Complete finishes a claimed task. A nil taskErr marks it success.
	// Otherwise the task is either rescheduled with backoff or, when the
	// error is terminal or attempts are exhausted, marked failed.
	Complete(ctx context.Context, task *domain.PendingTask, taskErr error) error
	// ReapStale resets processing rows whose claim is older than the given
	// age back to pending, so work lost to a crashed worker is retried.
	// Rows that already consumed their attempts are failed instead.
	ReapStale(ctx context.Context, olderThan time.Duration) (int64, error)
	GetTask(ctx context.Context, id int64) (*domain.PendingTask, error)
	// CountActive counts pending plus processing tasks of one type.
	CountActive(ctx context.Context, taskType domain.TaskType) (int, error)
	// Retry reopens a failed task with a fresh attempt budget.
	Retry(ctx context.Context, id int64) (*domain.PendingTask, error)
}

type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Minute
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = time.Hour
	}
	return c
}

// RetryDelay returns base·2^(attempts-1) capped, where attempts counts the
// claim that just failed.
func (c Config) RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := c.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= c.BackoffCap {
			return c.BackoffCap
		}
	}
	if delay > c.BackoffCap {
		return c.BackoffCap
	}
	return delay
}

type terminalError struct {
	cause error
}

func (e *terminalError) Error() string { return e.cause.Error() }
func (e *terminalError) Unwrap() error { return e.cause }

// Terminal marks a handler error as not worth retrying: malformed payloads
// and other poison pills fail immediately instead of burning the attempt
// budget on a task that can never succeed.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{cause: err}
}

// IsTerminal reports whether err (or anything it wraps) was marked Terminal.
func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// completion is the resolved state transition for a finished claim, shared by
// the storage implementations so their semantics cannot drift.
type completion struct {
	status       domain.TaskStatus
	lastError    string
	scheduledFor time.Time
	processed    bool
}

func resolveCompletion(cfg Config, task *domain.PendingTask, taskErr error, now time.Time) completion {
	if taskErr == nil {
		return completion{status: domain.TaskStatusSuccess, processed: true}
	}
	message := truncateTaskError(taskErr.Error())
	if IsTerminal(taskErr) || task.Attempts >= cfg.MaxAttempts {
		return completion{status: domain.TaskStatusFailed, lastError: message}
	}
	return completion{
		status:       domain.TaskStatusPending,
		lastError:    message,
		scheduledFor: now.Add(cfg.RetryDelay(task.Attempts)),
	}
}

func truncateTaskError(message string) string {
	if len(message) > maxLastErrorLen {
		return message[:maxLastErrorLen]
	}
	return message
}
