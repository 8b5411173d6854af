package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/queue"
)

func TestTickEnqueuesPollTask(t *testing.T) {
	q := queue.NewMemoryQueue(queue.Config{})
	s := New(q, nil, Config{Channel: domain.ChannelEmail})
	ctx := context.Background()

	s.tick(ctx)

	active, err := q.CountActive(ctx, domain.TaskTypePollEmails)
	if err != nil || active != 1 {
		t.Fatalf("expected one poll task, got %d err=%v", active, err)
	}

	task, err := q.ClaimNext(ctx)
	if err != nil || task == nil {
		t.Fatalf("claim failed: task=%v err=%v", task, err)
	}
	var payload domain.PollTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Channel != domain.ChannelEmail {
		t.Fatalf("expected email channel, got %q", payload.Channel)
	}
}

func TestTickSkipsWhilePollActive(t *testing.T) {
	q := queue.NewMemoryQueue(queue.Config{})
	s := New(q, nil, Config{})
	ctx := context.Background()

	s.tick(ctx)
	s.tick(ctx)

	active, _ := q.CountActive(ctx, domain.TaskTypePollEmails)
	if active != 1 {
		t.Fatalf("expected overlapping ticks collapsed to one task, got %d", active)
	}

	// A claimed-but-unfinished poll still counts as active.
	task, _ := q.ClaimNext(ctx)
	if task == nil {
		t.Fatalf("expected a claim")
	}
	s.tick(ctx)
	active, _ = q.CountActive(ctx, domain.TaskTypePollEmails)
	if active != 1 {
		t.Fatalf("expected no new task while poll is processing, got %d", active)
	}

	// Once the poll completes, the next tick schedules again.
	if err := q.Complete(ctx, task, nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	s.tick(ctx)
	active, _ = q.CountActive(ctx, domain.TaskTypePollEmails)
	if active != 1 {
		t.Fatalf("expected fresh poll task after completion, got %d", active)
	}
}

func TestRunFirstTickIsImmediate(t *testing.T) {
	q := queue.NewMemoryQueue(queue.Config{})
	s := New(q, nil, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		active, _ := q.CountActive(context.Background(), domain.TaskTypePollEmails)
		if active == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first tick did not fire immediately")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
