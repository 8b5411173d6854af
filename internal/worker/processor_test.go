package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/extraction"
	"github.com/tripshield/inquiry-desk/internal/mailbox"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
)

type scriptedModel struct {
	mu      sync.Mutex
	calls   int
	respond func(request extraction.ChatRequest) (extraction.ChatResult, error)
}

func (s *scriptedModel) Complete(_ context.Context, request extraction.ChatRequest) (extraction.ChatResult, error) {
	s.mu.Lock()
	s.calls++
	fn := s.respond
	s.mu.Unlock()
	if fn == nil {
		return extraction.ChatResult{Text: "{}"}, nil
	}
	return fn(request)
}

func (s *scriptedModel) Available() bool { return true }

func (s *scriptedModel) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// isIntentRequest tells the classifier call apart from the extraction call.
func isIntentRequest(request extraction.ChatRequest) bool {
	return strings.Contains(request.Instructions, "Classify")
}

type fakeMailbox struct {
	mu       sync.Mutex
	details  map[string]*mailbox.MessageDetail
	list     []mailbox.MessageSummary
	getCalls int
}

func (f *fakeMailbox) ListMessagesSince(_ context.Context, since time.Time) ([]mailbox.MessageSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]mailbox.MessageSummary, 0, len(f.list))
	for _, summary := range f.list {
		if summary.ReceivedAt.After(since) {
			result = append(result, summary)
		}
	}
	return result, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*mailbox.MessageDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	detail, ok := f.details[id]
	if !ok {
		return nil, fmt.Errorf("message %s not in mailbox", id)
	}
	clone := *detail
	return &clone, nil
}

func (f *fakeMailbox) Available() bool { return true }

func (f *fakeMailbox) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

type workerHarness struct {
	queue     *queue.MemoryQueue
	inquiries *repository.MemoryInquiriesRepository
	cursors   *repository.MemoryCursorsRepository
	mailbox   *fakeMailbox
	model     *scriptedModel
	processor *Processor
}

func newWorkerHarness(t *testing.T, model *scriptedModel) *workerHarness {
	t.Helper()
	// Millisecond backoff keeps retry tests from sleeping for real.
	q := queue.NewMemoryQueue(queue.Config{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffCap: 10 * time.Millisecond})
	inquiries := repository.NewMemoryInquiriesRepository()
	cursors := repository.NewMemoryCursorsRepository()
	box := &fakeMailbox{details: make(map[string]*mailbox.MessageDetail)}
	extractor := extraction.NewExtractor(extraction.ExtractorDependencies{Client: model})

	processor := NewProcessor(Dependencies{
		Queue:     q,
		Inquiries: inquiries,
		Cursors:   cursors,
		Mailbox:   box,
		Extractor: extractor,
	}, Config{MaxAttempts: 3})

	return &workerHarness{
		queue:     q,
		inquiries: inquiries,
		cursors:   cursors,
		mailbox:   box,
		model:     model,
		processor: processor,
	}
}

// processOne claims and finishes exactly one task, waiting for retry
// schedules to come due.
func (h *workerHarness) processOne(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		claimed, err := h.processor.ProcessNext(context.Background())
		if err != nil {
			t.Fatalf("process next: %v", err)
		}
		if claimed {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no task became eligible")
}

func (h *workerHarness) enqueue(t *testing.T, taskType domain.TaskType, payload any) int64 {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	id, err := h.queue.Enqueue(context.Background(), taskType, encoded, time.Time{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

func (h *workerHarness) taskStatus(t *testing.T, id int64) *domain.PendingTask {
	t.Helper()
	task, err := h.queue.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("get task %d: %v", id, err)
	}
	return task
}

func TestEmailTaskCreatesInquiryAndExtracts(t *testing.T) {
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		return extraction.ChatResult{Text: `{
			"first_name": "Ana",
			"last_name": "Silva",
			"travel_start_date": "2026-06-01",
			"travel_end_date": "2026-06-15",
			"trip_destination": "Paris"
		}`}, nil
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	h.mailbox.details["msg-1"] = &mailbox.MessageDetail{
		ID:         "msg-1",
		Sender:     "Ana.Silva@Example.com",
		Subject:    "Trip to Paris",
		Body:       "<html><body><p>Hi, I am Ana Silva.</p><p>We travel June 1 to June 15 to Paris.</p></body></html>",
		ReceivedAt: time.Now().UTC(),
	}

	id := h.enqueue(t, domain.TaskTypeProcessEmail, domain.EmailTaskPayload{MessageID: "msg-1", Sender: "Ana.Silva@Example.com", Intent: "inquiry"})
	h.processOne(t)

	if task := h.taskStatus(t, id); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("expected task success, got %s (last_error=%q)", task.Status, task.LastError)
	}

	inquiry, err := h.inquiries.GetInquiryByContact(ctx, "ana.silva@example.com")
	if err != nil {
		t.Fatalf("inquiry not created for normalized contact: %v", err)
	}
	if inquiry.Status != domain.StatusComplete {
		t.Fatalf("expected Complete with all required fields, got %s", inquiry.Status)
	}

	record, err := h.inquiries.GetExtractedData(ctx, inquiry.ID)
	if err != nil {
		t.Fatalf("extracted data missing: %v", err)
	}
	if record.Fields.FirstName != "Ana" || record.Fields.TripDestination != "Paris" {
		t.Fatalf("unexpected fields: %+v", record.Fields)
	}

	emails, err := h.inquiries.EmailsForInquiry(ctx, inquiry.ID)
	if err != nil || len(emails) != 1 {
		t.Fatalf("expected one stored email, got %d err=%v", len(emails), err)
	}
	if !emails[0].Processed {
		t.Fatalf("expected email marked processed")
	}
	if strings.Contains(emails[0].Body, "<") {
		t.Fatalf("expected HTML stripped from stored body, got %q", emails[0].Body)
	}
}

func TestEmailTaskNoDataLeavesInquiryIncomplete(t *testing.T) {
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		return extraction.ChatResult{Text: `{}`}, nil
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	h.mailbox.details["msg-2"] = &mailbox.MessageDetail{
		ID:         "msg-2",
		Sender:     "curious@example.com",
		Subject:    "Question",
		Body:       "Do you sell travel insurance?",
		ReceivedAt: time.Now().UTC(),
	}

	id := h.enqueue(t, domain.TaskTypeProcessEmail, domain.EmailTaskPayload{MessageID: "msg-2"})
	h.processOne(t)

	if task := h.taskStatus(t, id); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("no extracted data must not fail the task, got %s", task.Status)
	}

	inquiry, err := h.inquiries.GetInquiryByContact(ctx, "curious@example.com")
	if err != nil {
		t.Fatalf("inquiry not created: %v", err)
	}
	if inquiry.Status != domain.StatusIncomplete {
		t.Fatalf("expected Incomplete, not an error status, got %s", inquiry.Status)
	}
}

func TestEmailTaskRetriesThenFlagsPermanentFailure(t *testing.T) {
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		return extraction.ChatResult{}, errors.New("provider down")
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	h.mailbox.details["msg-3"] = &mailbox.MessageDetail{
		ID:         "msg-3",
		Sender:     "kai@example.com",
		Subject:    "Trip",
		Body:       "Trip details inside.",
		ReceivedAt: time.Now().UTC(),
	}

	id := h.enqueue(t, domain.TaskTypeProcessEmail, domain.EmailTaskPayload{MessageID: "msg-3"})

	h.processOne(t)
	if task := h.taskStatus(t, id); task.Status != domain.TaskStatusPending || task.Attempts != 1 {
		t.Fatalf("expected first failure rescheduled, got status=%s attempts=%d", task.Status, task.Attempts)
	}
	inquiry, err := h.inquiries.GetInquiryByContact(ctx, "kai@example.com")
	if err != nil {
		t.Fatalf("inquiry not created: %v", err)
	}
	if inquiry.Status != domain.StatusProcessingFailed {
		t.Fatalf("expected Processing Failed after transient error, got %s", inquiry.Status)
	}
	emails, _ := h.inquiries.EmailsForInquiry(ctx, inquiry.ID)
	if len(emails) != 1 || emails[0].Processed || emails[0].ProcessingError == "" {
		t.Fatalf("expected stored unprocessed email with error, got %+v", emails)
	}

	h.processOne(t)
	h.processOne(t)

	task := h.taskStatus(t, id)
	if task.Status != domain.TaskStatusFailed || task.Attempts != 3 {
		t.Fatalf("expected failure after three attempts, got status=%s attempts=%d", task.Status, task.Attempts)
	}
	inquiry, _ = h.inquiries.GetInquiryByContact(ctx, "kai@example.com")
	if inquiry.Status != domain.StatusPermanentlyFailed {
		t.Fatalf("expected permanently_failed after exhaustion, got %s", inquiry.Status)
	}
	if got := h.mailbox.fetchCount(); got != 1 {
		t.Fatalf("retries must resume from the stored email, got %d mailbox fetches", got)
	}

	// A staff retry with a healthy provider heals the inquiry.
	model.mu.Lock()
	model.respond = func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		return extraction.ChatResult{Text: `{"first_name": "Kai"}`}, nil
	}
	model.mu.Unlock()

	if _, err := h.queue.Retry(ctx, id); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	h.processOne(t)

	if task := h.taskStatus(t, id); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("expected retried task to succeed, got %s (last_error=%q)", task.Status, task.LastError)
	}
	inquiry, _ = h.inquiries.GetInquiryByContact(ctx, "kai@example.com")
	if inquiry.Status != domain.StatusIncomplete {
		t.Fatalf("expected Incomplete after healed retry, got %s", inquiry.Status)
	}
	emails, _ = h.inquiries.EmailsForInquiry(ctx, inquiry.ID)
	if len(emails) != 1 || !emails[0].Processed || emails[0].ProcessingError != "" {
		t.Fatalf("expected email marked processed after retry, got %+v", emails)
	}
}

func TestEmailTaskMalformedPayloadFailsImmediately(t *testing.T) {
	h := newWorkerHarness(t, &scriptedModel{})
	ctx := context.Background()

	id, err := h.queue.Enqueue(ctx, domain.TaskTypeProcessEmail, json.RawMessage(`{"message_id": 42}`), time.Time{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	h.processOne(t)

	task := h.taskStatus(t, id)
	if task.Status != domain.TaskStatusFailed || task.Attempts != 1 {
		t.Fatalf("expected poison payload to fail on first attempt, got status=%s attempts=%d", task.Status, task.Attempts)
	}
	if !strings.Contains(task.LastError, "decode email payload") {
		t.Fatalf("expected decode error surfaced, got %q", task.LastError)
	}
}

func TestEmailTaskDuplicateDeliverySkipsReprocessing(t *testing.T) {
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		return extraction.ChatResult{Text: `{"first_name": "Lena"}`}, nil
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	h.mailbox.details["msg-4"] = &mailbox.MessageDetail{
		ID:         "msg-4",
		Sender:     "lena@example.com",
		Subject:    "Hello",
		Body:       "Trip inquiry",
		ReceivedAt: time.Now().UTC(),
	}

	payload := domain.EmailTaskPayload{MessageID: "msg-4"}
	h.enqueue(t, domain.TaskTypeProcessEmail, payload)
	h.processOne(t)
	callsAfterFirst := model.callCount()

	dupID := h.enqueue(t, domain.TaskTypeProcessEmail, payload)
	h.processOne(t)

	if task := h.taskStatus(t, dupID); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("duplicate delivery must succeed quietly, got %s", task.Status)
	}
	if got := model.callCount(); got != callsAfterFirst {
		t.Fatalf("duplicate delivery must not call the model again, got %d extra calls", got-callsAfterFirst)
	}
	if got := h.mailbox.fetchCount(); got != 1 {
		t.Fatalf("duplicate delivery must not refetch, got %d fetches", got)
	}

	inquiry, _ := h.inquiries.GetInquiryByContact(ctx, "lena@example.com")
	emails, _ := h.inquiries.EmailsForInquiry(ctx, inquiry.ID)
	if len(emails) != 1 {
		t.Fatalf("expected single stored email, got %d", len(emails))
	}
}

func TestEmailTaskPreservesManualCorrection(t *testing.T) {
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		return extraction.ChatResult{Text: `{"first_name": "Wrong", "trip_destination": "Nowhere"}`}, nil
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	inquiry, _, err := h.inquiries.ResolveInquiry(ctx, "maria@example.com", domain.StatusNew)
	if err != nil {
		t.Fatalf("resolve inquiry: %v", err)
	}
	if _, err := h.inquiries.ApplyManualEdit(ctx, inquiry.ID, map[string]string{"first_name": "Maria"}, "agent"); err != nil {
		t.Fatalf("manual edit: %v", err)
	}

	h.mailbox.details["msg-5"] = &mailbox.MessageDetail{
		ID:         "msg-5",
		Sender:     "maria@example.com",
		Subject:    "One more thing",
		Body:       "Forgot to mention the dates.",
		ReceivedAt: time.Now().UTC(),
	}
	id := h.enqueue(t, domain.TaskTypeProcessEmail, domain.EmailTaskPayload{MessageID: "msg-5"})
	h.processOne(t)

	if task := h.taskStatus(t, id); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("expected success, got %s", task.Status)
	}
	if got := model.callCount(); got != 0 {
		t.Fatalf("manually corrected inquiry must skip extraction, model called %d times", got)
	}

	record, _ := h.inquiries.GetExtractedData(ctx, inquiry.ID)
	if record.Fields.FirstName != "Maria" {
		t.Fatalf("manual correction overwritten: %+v", record.Fields)
	}
	updated, _ := h.inquiries.GetInquiry(ctx, inquiry.ID)
	if updated.Status != domain.StatusManuallyCorrected {
		t.Fatalf("expected sticky Manually Corrected status, got %s", updated.Status)
	}

	emails, _ := h.inquiries.EmailsForInquiry(ctx, inquiry.ID)
	if len(emails) != 1 || !emails[0].Processed {
		t.Fatalf("email must still be stored for the timeline, got %+v", emails)
	}
}

func TestWhatsAppTaskExtractsFromText(t *testing.T) {
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		return extraction.ChatResult{Text: `{"first_name": "Bruno", "trip_destination": "Lisbon"}`}, nil
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	id := h.enqueue(t, domain.TaskTypeProcessWhatsApp, domain.WhatsAppTaskPayload{
		MessageID:   "wa-1",
		ChatID:      "5511999990000@c.us",
		SenderName:  "Bruno",
		MessageType: "textMessage",
		Body:        "Hi, I am Bruno, quoting a trip to Lisbon",
		SentAt:      time.Now().UTC(),
	})
	h.processOne(t)

	if task := h.taskStatus(t, id); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("expected success, got %s (last_error=%q)", task.Status, task.LastError)
	}

	inquiry, err := h.inquiries.GetInquiryByContact(ctx, "whatsapp:5511999990000@c.us")
	if err != nil {
		t.Fatalf("inquiry not created for chat contact: %v", err)
	}
	if inquiry.Status != domain.StatusIncomplete {
		t.Fatalf("expected Incomplete with partial fields, got %s", inquiry.Status)
	}
	record, _ := h.inquiries.GetExtractedData(ctx, inquiry.ID)
	if record.Fields.FirstName != "Bruno" || record.Fields.TripDestination != "Lisbon" {
		t.Fatalf("unexpected fields: %+v", record.Fields)
	}
}

func TestWhatsAppTaskMediaWithoutCaptionStoredOnly(t *testing.T) {
	model := &scriptedModel{}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	id := h.enqueue(t, domain.TaskTypeProcessWhatsApp, domain.WhatsAppTaskPayload{
		MessageID:   "wa-2",
		ChatID:      "5511999990000@c.us",
		MessageType: "imageMessage",
		MediaURL:    "https://media.example.com/wa-2.jpg",
		MediaMime:   "image/jpeg",
		SentAt:      time.Now().UTC(),
	})
	h.processOne(t)

	if task := h.taskStatus(t, id); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("expected success, got %s", task.Status)
	}
	if got := model.callCount(); got != 0 {
		t.Fatalf("captionless media must not reach the model, got %d calls", got)
	}

	inquiry, err := h.inquiries.GetInquiryByContact(ctx, "whatsapp:5511999990000@c.us")
	if err != nil {
		t.Fatalf("inquiry not created: %v", err)
	}
	if inquiry.Status != domain.StatusNewWhatsApp {
		t.Fatalf("expected inquiry left new_whatsapp, got %s", inquiry.Status)
	}
	messages, _ := h.inquiries.WhatsAppForInquiry(ctx, inquiry.ID)
	if len(messages) != 1 || messages[0].MediaURL == "" {
		t.Fatalf("expected stored media message, got %+v", messages)
	}
}

func TestWhatsAppMessagesConsolidateIntoOneInquiry(t *testing.T) {
	responses := map[string]string{
		"first":  `{"first_name": "Paula", "last_name": "Reis"}`,
		"second": `{"travel_start_date": "2026-07-01", "travel_end_date": "2026-07-10", "trip_destination": "Rome"}`,
	}
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		for marker, response := range responses {
			if strings.Contains(request.Input, marker) {
				return extraction.ChatResult{Text: response}, nil
			}
		}
		return extraction.ChatResult{Text: `{}`}, nil
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	h.enqueue(t, domain.TaskTypeProcessWhatsApp, domain.WhatsAppTaskPayload{
		MessageID: "wa-3", ChatID: "5511888880000@c.us", MessageType: "textMessage",
		Body: "first message: I am Paula Reis", SentAt: time.Now().UTC(),
	})
	h.processOne(t)
	h.enqueue(t, domain.TaskTypeProcessWhatsApp, domain.WhatsAppTaskPayload{
		MessageID: "wa-4", ChatID: "5511888880000@c.us", MessageType: "textMessage",
		Body: "second message: Rome July 1 to 10", SentAt: time.Now().UTC(),
	})
	h.processOne(t)

	inquiry, err := h.inquiries.GetInquiryByContact(ctx, "whatsapp:5511888880000@c.us")
	if err != nil {
		t.Fatalf("inquiry missing: %v", err)
	}
	if inquiry.Status != domain.StatusComplete {
		t.Fatalf("expected Complete after both messages, got %s", inquiry.Status)
	}
	record, _ := h.inquiries.GetExtractedData(ctx, inquiry.ID)
	if record.Fields.FirstName != "Paula" || record.Fields.TripDestination != "Rome" {
		t.Fatalf("fields not consolidated: %+v", record.Fields)
	}
	messages, _ := h.inquiries.WhatsAppForInquiry(ctx, inquiry.ID)
	if len(messages) != 2 {
		t.Fatalf("expected both raw messages kept, got %d", len(messages))
	}
}

func TestPollTaskFiltersAndEnqueues(t *testing.T) {
	model := &scriptedModel{respond: func(request extraction.ChatRequest) (extraction.ChatResult, error) {
		if isIntentRequest(request) {
			if strings.Contains(request.Input, "webinar invite") {
				return extraction.ChatResult{Text: "solicitation"}, nil
			}
			return extraction.ChatResult{Text: "inquiry"}, nil
		}
		return extraction.ChatResult{Text: `{"first_name": "Noor"}`}, nil
	}}
	h := newWorkerHarness(t, model)
	ctx := context.Background()

	base := time.Now().UTC().Add(-10 * time.Minute)
	h.mailbox.list = []mailbox.MessageSummary{
		{ID: "keep-1", Sender: "noor@example.com", Subject: "Trip quote", Preview: "Planning a trip", ReceivedAt: base},
		{ID: "drop-noreply", Sender: "no-reply@shop.example.com", Subject: "Your receipt", ReceivedAt: base.Add(time.Minute)},
		{ID: "drop-ooo", Sender: "colleague@example.com", Subject: "Automatic reply: away", ReceivedAt: base.Add(2 * time.Minute)},
		{ID: "drop-intent", Sender: "sales@vendor.example.com", Subject: "Join us", Preview: "webinar invite", ReceivedAt: base.Add(3 * time.Minute)},
	}
	h.mailbox.details["keep-1"] = &mailbox.MessageDetail{
		ID: "keep-1", Sender: "noor@example.com", Subject: "Trip quote",
		Body: "Planning a trip", ReceivedAt: base,
	}

	pollID := h.enqueue(t, domain.TaskTypePollEmails, domain.PollTaskPayload{Channel: domain.ChannelEmail})
	h.processOne(t)

	if task := h.taskStatus(t, pollID); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("poll failed: %s (last_error=%q)", task.Status, task.LastError)
	}
	active, _ := h.queue.CountActive(ctx, domain.TaskTypeProcessEmail)
	if active != 1 {
		t.Fatalf("expected exactly one processing task enqueued, got %d", active)
	}

	cursor, _ := h.cursors.GetCursor(ctx, domain.ChannelEmail)
	if !cursor.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("cursor must advance past everything listed, got %v", cursor)
	}

	// The enqueued task processes normally.
	h.processOne(t)
	if _, err := h.inquiries.GetInquiryByContact(ctx, "noor@example.com"); err != nil {
		t.Fatalf("kept message not processed: %v", err)
	}

	// Nothing new: the next poll is a no-op.
	secondPoll := h.enqueue(t, domain.TaskTypePollEmails, domain.PollTaskPayload{Channel: domain.ChannelEmail})
	h.processOne(t)
	if task := h.taskStatus(t, secondPoll); task.Status != domain.TaskStatusSuccess {
		t.Fatalf("second poll failed: %s", task.Status)
	}
	active, _ = h.queue.CountActive(ctx, domain.TaskTypeProcessEmail)
	if active != 0 {
		t.Fatalf("expected no new tasks from an empty poll, got %d", active)
	}
}

func TestUnknownTaskTypeFailsTerminally(t *testing.T) {
	h := newWorkerHarness(t, &scriptedModel{})
	ctx := context.Background()

	id, err := h.queue.Enqueue(ctx, domain.TaskType("bogus"), nil, time.Time{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	h.processOne(t)

	task := h.taskStatus(t, id)
	if task.Status != domain.TaskStatusFailed || task.Attempts != 1 {
		t.Fatalf("expected unknown type failed terminally, got status=%s attempts=%d", task.Status, task.Attempts)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	h := newWorkerHarness(t, &scriptedModel{})
	h.processor.cfg.IdleSleep = time.Millisecond
	h.processor.cfg.ReapInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.processor.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Start did not return after cancel")
	}
}
