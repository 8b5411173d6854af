package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

func newTestQueue(t *testing.T) (*MemoryQueue, *time.Time) {
	t.Helper()
	q := NewMemoryQueue(Config{MaxAttempts: 3, BackoffBase: time.Minute, BackoffCap: time.Hour})
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return current }
	return q, &current
}

func TestClaimNextDeliversEachTaskExactlyOnce(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	const total = 50
	for i := 0; i < total; i++ {
		if _, err := q.Enqueue(ctx, domain.TaskTypeProcessEmail, []byte(`{}`), time.Time{}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.ClaimNext(ctx)
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("expected %d distinct tasks claimed, got %d", total, len(claimed))
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("task %d claimed %d times", id, count)
		}
	}
}

func TestClaimNextOrdersByScheduleThenID(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	later := now.Add(2 * time.Second)
	earlier := now.Add(1 * time.Second)
	firstID, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, later)
	secondID, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, earlier)
	thirdID, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, earlier)

	*now = now.Add(5 * time.Second)

	order := make([]int64, 0, 3)
	for i := 0; i < 3; i++ {
		task, err := q.ClaimNext(ctx)
		if err != nil || task == nil {
			t.Fatalf("claim %d failed: task=%v err=%v", i, task, err)
		}
		order = append(order, task.ID)
	}

	want := []int64{secondID, thirdID, firstID}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected claim order %v, got %v", want, order)
		}
	}
}

func TestClaimNextHonorsScheduledFor(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, domain.TaskTypePollEmails, nil, now.Add(time.Minute)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	task, err := q.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if task != nil {
		t.Fatalf("expected idle signal for future task, got %+v", task)
	}

	*now = now.Add(2 * time.Minute)
	task, err = q.ClaimNext(ctx)
	if err != nil || task == nil {
		t.Fatalf("expected task after schedule passed, got task=%v err=%v", task, err)
	}
	if task.Attempts != 1 {
		t.Fatalf("expected first attempt, got %d", task.Attempts)
	}
}

func TestCompleteRetriesWithBackoffThenFails(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, time.Time{})
	transient := errors.New("provider unavailable")

	wantDelays := []time.Duration{time.Minute, 2 * time.Minute}
	for attempt := 1; attempt <= 2; attempt++ {
		task, err := q.ClaimNext(ctx)
		if err != nil || task == nil {
			t.Fatalf("claim attempt %d failed: task=%v err=%v", attempt, task, err)
		}
		if err := q.Complete(ctx, task, transient); err != nil {
			t.Fatalf("complete failed: %v", err)
		}

		stored, err := q.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("get task failed: %v", err)
		}
		if stored.Status != domain.TaskStatusPending {
			t.Fatalf("expected pending after attempt %d, got %s", attempt, stored.Status)
		}
		wantSchedule := now.Add(wantDelays[attempt-1])
		if !stored.ScheduledFor.Equal(wantSchedule) {
			t.Fatalf("attempt %d: expected schedule %v, got %v", attempt, wantSchedule, stored.ScheduledFor)
		}
		if stored.LastError != "provider unavailable" {
			t.Fatalf("expected last_error recorded, got %q", stored.LastError)
		}

		*now = stored.ScheduledFor.Add(time.Second)
	}

	task, err := q.ClaimNext(ctx)
	if err != nil || task == nil {
		t.Fatalf("final claim failed: task=%v err=%v", task, err)
	}
	if task.Attempts != 3 {
		t.Fatalf("expected third attempt, got %d", task.Attempts)
	}
	if err := q.Complete(ctx, task, transient); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	stored, _ := q.GetTask(ctx, id)
	if stored.Status != domain.TaskStatusFailed {
		t.Fatalf("expected failed after max attempts, got %s", stored.Status)
	}

	*now = now.Add(24 * time.Hour)
	if again, _ := q.ClaimNext(ctx); again != nil {
		t.Fatalf("failed task must never be reclaimed, got %+v", again)
	}
}

func TestCompleteTerminalErrorFailsImmediately(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.TaskTypeProcessWhatsApp, []byte(`not json`), time.Time{})
	task, _ := q.ClaimNext(ctx)
	if task == nil {
		t.Fatalf("expected a claim")
	}

	if err := q.Complete(ctx, task, Terminal(errors.New("malformed payload"))); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	stored, _ := q.GetTask(ctx, id)
	if stored.Status != domain.TaskStatusFailed {
		t.Fatalf("expected terminal error to fail on first attempt, got %s", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", stored.Attempts)
	}
	if stored.LastError != "malformed payload" {
		t.Fatalf("expected last_error recorded, got %q", stored.LastError)
	}
}

func TestCompleteSuccessRecordsProcessedAt(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, time.Time{})
	task, _ := q.ClaimNext(ctx)
	if err := q.Complete(ctx, task, nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	stored, _ := q.GetTask(ctx, id)
	if stored.Status != domain.TaskStatusSuccess {
		t.Fatalf("expected success, got %s", stored.Status)
	}
	if stored.ProcessedAt == nil || !stored.ProcessedAt.Equal(*now) {
		t.Fatalf("expected processed_at %v, got %v", now, stored.ProcessedAt)
	}
}

func TestReapStaleRequeuesLostClaims(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, time.Time{})
	if task, _ := q.ClaimNext(ctx); task == nil {
		t.Fatalf("expected a claim")
	}

	// Not stale yet.
	reaped, err := q.ReapStale(ctx, 10*time.Minute)
	if err != nil || reaped != 0 {
		t.Fatalf("expected nothing reaped, got %d err=%v", reaped, err)
	}

	*now = now.Add(11 * time.Minute)
	reaped, err = q.ReapStale(ctx, 10*time.Minute)
	if err != nil || reaped != 1 {
		t.Fatalf("expected one task reaped, got %d err=%v", reaped, err)
	}

	stored, _ := q.GetTask(ctx, id)
	if stored.Status != domain.TaskStatusPending {
		t.Fatalf("expected reaped task pending, got %s", stored.Status)
	}
	if stored.StartedAt != nil {
		t.Fatalf("expected started_at cleared")
	}

	task, _ := q.ClaimNext(ctx)
	if task == nil || task.ID != id {
		t.Fatalf("expected reaped task claimable again, got %+v", task)
	}
	if task.Attempts != 2 {
		t.Fatalf("expected attempts to keep counting across reaps, got %d", task.Attempts)
	}
}

func TestReapStaleFailsExhaustedTasks(t *testing.T) {
	q, now := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, time.Time{})
	transient := errors.New("flaky")
	for i := 0; i < 2; i++ {
		task, _ := q.ClaimNext(ctx)
		if err := q.Complete(ctx, task, transient); err != nil {
			t.Fatalf("complete failed: %v", err)
		}
		stored, _ := q.GetTask(ctx, id)
		*now = stored.ScheduledFor.Add(time.Second)
	}

	// Third claim crashes: the worker never completes it.
	if task, _ := q.ClaimNext(ctx); task == nil || task.Attempts != 3 {
		t.Fatalf("expected third claim")
	}

	*now = now.Add(time.Hour)
	if _, err := q.ReapStale(ctx, 10*time.Minute); err != nil {
		t.Fatalf("reap failed: %v", err)
	}

	stored, _ := q.GetTask(ctx, id)
	if stored.Status != domain.TaskStatusFailed {
		t.Fatalf("expected exhausted stale task failed, got %s", stored.Status)
	}
}

func TestRetryReopensFailedTask(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, time.Time{})
	task, _ := q.ClaimNext(ctx)
	if err := q.Complete(ctx, task, Terminal(errors.New("bad payload"))); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	reopened, err := q.Retry(ctx, id)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if reopened.Status != domain.TaskStatusPending || reopened.Attempts != 0 {
		t.Fatalf("expected fresh pending task, got status=%s attempts=%d", reopened.Status, reopened.Attempts)
	}

	if _, err := q.Retry(ctx, id); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable for pending task, got %v", err)
	}
	if _, err := q.Retry(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountActive(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	q.Enqueue(ctx, domain.TaskTypePollEmails, nil, time.Time{})
	q.Enqueue(ctx, domain.TaskTypeProcessEmail, nil, time.Time{})

	count, err := q.CountActive(ctx, domain.TaskTypePollEmails)
	if err != nil || count != 1 {
		t.Fatalf("expected one active poll task, got %d err=%v", count, err)
	}

	task, _ := q.ClaimNext(ctx)
	if task == nil {
		t.Fatalf("expected a claim")
	}
	count, _ = q.CountActive(ctx, domain.TaskTypePollEmails)
	if count != 1 {
		t.Fatalf("expected processing task still counted, got %d", count)
	}

	if err := q.Complete(ctx, task, nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	count, _ = q.CountActive(ctx, domain.TaskTypePollEmails)
	if count != 0 {
		t.Fatalf("expected no active poll tasks after success, got %d", count)
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	cfg := Config{BackoffBase: time.Minute, BackoffCap: time.Hour}.withDefaults()

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{7, time.Hour},
		{30, time.Hour},
	}
	for _, tc := range cases {
		if got := cfg.RetryDelay(tc.attempts); got != tc.want {
			t.Fatalf("attempts=%d: expected %v, got %v", tc.attempts, tc.want, got)
		}
	}
}
