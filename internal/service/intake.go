package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/observability"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
	"github.com/tripshield/inquiry-desk/internal/whatsapp"
)

// IntakeService is the webhook-side fast path: it only enqueues the
// processing task so the channel provider gets its acknowledgement
// quickly. Storage, extraction, and merging all happen in the worker.
type IntakeService struct {
	queue     queue.Queue
	inquiries repository.InquiriesRepository
	logger    *log.Logger
}

func NewIntakeService(q queue.Queue, inquiries repository.InquiriesRepository, logger *log.Logger) *IntakeService {
	return &IntakeService{queue: q, inquiries: inquiries, logger: logger}
}

// EnqueueWhatsAppEvent schedules processing for one webhook event. The
// duplicate flag is set for messages already stored by an earlier
// delivery; the worker dedupes again for deliveries racing each other.
func (s *IntakeService) EnqueueWhatsAppEvent(ctx context.Context, event *whatsapp.Event) (int64, bool, error) {
	seen, err := s.inquiries.WhatsAppSeen(ctx, event.MessageID)
	if err != nil {
		return 0, false, fmt.Errorf("check whatsapp message: %w", err)
	}
	if seen {
		s.logf("duplicate whatsapp delivery ignored message=%s chat=%s", event.MessageID, event.ChatID)
		return 0, true, nil
	}

	payload, err := json.Marshal(event.TaskPayload())
	if err != nil {
		return 0, false, fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	taskID, err := s.queue.Enqueue(ctx, domain.TaskTypeProcessWhatsApp, payload, time.Now().UTC())
	if err != nil {
		return 0, false, fmt.Errorf("enqueue whatsapp task: %w", err)
	}
	observability.TasksEnqueued.WithLabelValues(string(domain.TaskTypeProcessWhatsApp)).Inc()

	s.logf("enqueued whatsapp task id=%d message=%s chat=%s type=%s",
		taskID, event.MessageID, event.ChatID, event.MessageType)
	return taskID, false, nil
}

func (s *IntakeService) GetTask(ctx context.Context, taskID int64) (*domain.PendingTask, error) {
	return s.queue.GetTask(ctx, taskID)
}

// RetryTask reopens a failed task with a fresh attempt budget. Tasks in
// any other state return queue.ErrNotRetryable.
func (s *IntakeService) RetryTask(ctx context.Context, taskID int64) (*domain.PendingTask, error) {
	task, err := s.queue.Retry(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.logf("task reopened for retry id=%d type=%s", task.ID, task.TaskType)
	return task, nil
}

func (s *IntakeService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
