package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/extraction"
	"github.com/tripshield/inquiry-desk/internal/mailbox"
	"github.com/tripshield/inquiry-desk/internal/observability"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
)

// processEmailTask fetches one inbox message, stores it, and folds the
// extracted fields into the sender's inquiry.
func (p *Processor) processEmailTask(ctx context.Context, task *domain.PendingTask) error {
	var payload domain.EmailTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return queue.Terminal(fmt.Errorf("decode email payload: %w", err))
	}
	if strings.TrimSpace(payload.MessageID) == "" {
		p.flagMalformed(ctx, domain.EmailContactKey(payload.Sender))
		return queue.Terminal(errors.New("email payload has no message id"))
	}

	stored, err := p.inquiries.GetEmailByProviderID(ctx, payload.MessageID)
	switch {
	case err == nil && stored.Processed:
		p.logf("email already processed message_id=%s inquiry_id=%s", payload.MessageID, stored.InquiryID)
		return nil
	case err == nil:
		// A previous attempt stored the message but failed before
		// finishing. Resume from the stored copy instead of refetching.
		p.logf("resuming stored email message_id=%s inquiry_id=%s", payload.MessageID, stored.InquiryID)
		return p.extractEmail(ctx, task, stored.InquiryID, stored.ProviderID, stored.Subject, stored.Body)
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("look up email %s: %w", payload.MessageID, err)
	}

	detail, err := p.mailbox.GetMessage(ctx, payload.MessageID)
	if err != nil {
		return fmt.Errorf("fetch email %s: %w", payload.MessageID, err)
	}

	contactKey := domain.EmailContactKey(detail.Sender)
	if contactKey == "" {
		return queue.Terminal(fmt.Errorf("email %s has no sender", payload.MessageID))
	}

	inquiry, created, err := p.inquiries.ResolveInquiry(ctx, contactKey, domain.StatusNew)
	if err != nil {
		return fmt.Errorf("resolve inquiry for %s: %w", contactKey, err)
	}
	if created {
		observability.InquiriesCreated.WithLabelValues(domain.ChannelEmail).Inc()
		p.logf("inquiry created channel=email inquiry_id=%s contact=%s", inquiry.ID, contactKey)
	}

	body := extraction.EmailBodyText(detail.Body)
	email := &domain.EmailMessage{
		InquiryID:   inquiry.ID,
		ProviderID:  detail.ID,
		Sender:      contactKey,
		Subject:     detail.Subject,
		Body:        body,
		ReceivedAt:  detail.ReceivedAt,
		Intent:      payload.Intent,
		Attachments: detail.Attachments,
	}
	if err := p.inquiries.InsertEmail(ctx, email); err != nil {
		return fmt.Errorf("store email %s: %w", detail.ID, err)
	}

	return p.extractEmail(ctx, task, inquiry.ID, detail.ID, detail.Subject, body)
}

// extractEmail is the second half of email processing, shared with the
// resume path. The raw message is already stored at this point, so failures
// leave it behind for manual review.
func (p *Processor) extractEmail(ctx context.Context, task *domain.PendingTask, inquiryID, providerID, subject, body string) error {
	record, err := p.inquiries.GetExtractedData(ctx, inquiryID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load extracted data for %s: %w", inquiryID, err)
	}
	if err == nil && record.ValidationStatus == domain.ValidationManuallyCorrected {
		if markErr := p.inquiries.MarkEmailProcessed(ctx, providerID, ""); markErr != nil {
			return fmt.Errorf("mark email %s processed: %w", providerID, markErr)
		}
		p.logf("inquiry manually corrected, extraction skipped inquiry_id=%s", inquiryID)
		return nil
	}

	if err := p.inquiries.UpdateInquiryStatus(ctx, inquiryID, domain.StatusProcessing); err != nil {
		p.logf("set inquiry processing inquiry_id=%s: %v", inquiryID, err)
	}

	input := strings.TrimSpace(subject + "\n\n" + body)
	status, err := p.extractAndMerge(ctx, task, inquiryID, input)
	if err != nil {
		if markErr := p.inquiries.MarkEmailProcessed(ctx, providerID, err.Error()); markErr != nil {
			p.logf("record email failure message_id=%s: %v", providerID, markErr)
		}
		return err
	}

	if err := p.inquiries.MarkEmailProcessed(ctx, providerID, ""); err != nil {
		return fmt.Errorf("mark email %s processed: %w", providerID, err)
	}
	p.logf("email processed message_id=%s inquiry_id=%s status=%s", providerID, inquiryID, status)
	return nil
}

// processWhatsAppTask stores one webhook message and, when it carries text,
// folds the extracted fields into the chat's inquiry. Media without a
// caption and our own outgoing messages are stored for the timeline only.
func (p *Processor) processWhatsAppTask(ctx context.Context, task *domain.PendingTask) error {
	var payload domain.WhatsAppTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return queue.Terminal(fmt.Errorf("decode whatsapp payload: %w", err))
	}
	if strings.TrimSpace(payload.MessageID) == "" || strings.TrimSpace(payload.ChatID) == "" {
		return queue.Terminal(errors.New("whatsapp payload missing message or chat id"))
	}

	stored, err := p.inquiries.GetWhatsAppByProviderID(ctx, payload.MessageID)
	switch {
	case err == nil:
		// Stored by a failed earlier attempt or a duplicate webhook
		// delivery. The merge is idempotent, so rerunning extraction for
		// text messages is safe either way.
		if stored.FromMe || strings.TrimSpace(stored.Body) == "" {
			p.logf("whatsapp message already stored message_id=%s", payload.MessageID)
			return nil
		}
		status, mergeErr := p.extractAndMerge(ctx, task, stored.InquiryID, stored.Body)
		if mergeErr != nil {
			return mergeErr
		}
		p.logf("whatsapp message reprocessed message_id=%s inquiry_id=%s status=%s", payload.MessageID, stored.InquiryID, status)
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("look up whatsapp message %s: %w", payload.MessageID, err)
	}

	contactKey := domain.WhatsAppContactKey(payload.ChatID)
	inquiry, created, err := p.inquiries.ResolveInquiry(ctx, contactKey, domain.StatusNewWhatsApp)
	if err != nil {
		return fmt.Errorf("resolve inquiry for %s: %w", contactKey, err)
	}
	if created {
		observability.InquiriesCreated.WithLabelValues(domain.ChannelWhatsApp).Inc()
		p.logf("inquiry created channel=whatsapp inquiry_id=%s contact=%s", inquiry.ID, contactKey)
	}

	message := &domain.WhatsAppMessage{
		InquiryID:   inquiry.ID,
		ProviderID:  payload.MessageID,
		ChatID:      payload.ChatID,
		SenderName:  payload.SenderName,
		MessageType: payload.MessageType,
		Body:        payload.Body,
		MediaURL:    payload.MediaURL,
		MediaMime:   payload.MediaMime,
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		SentAt:      payload.SentAt,
		FromMe:      payload.FromMe,
	}
	if err := p.inquiries.InsertWhatsAppMessage(ctx, message); err != nil {
		return fmt.Errorf("store whatsapp message %s: %w", payload.MessageID, err)
	}

	if payload.FromMe || strings.TrimSpace(payload.Body) == "" {
		p.logf("whatsapp message stored without extraction message_id=%s type=%s", payload.MessageID, payload.MessageType)
		return nil
	}

	status, err := p.extractAndMerge(ctx, task, inquiry.ID, payload.Body)
	if err != nil {
		return err
	}
	p.logf("whatsapp message processed message_id=%s inquiry_id=%s status=%s", payload.MessageID, inquiry.ID, status)
	return nil
}

// pollEmailsTask lists inbox messages newer than the stored cursor and
// enqueues a processing task for each one that survives the filters. The
// cursor only advances once enqueueing succeeded, so a partial poll is
// resumed rather than lost.
func (p *Processor) pollEmailsTask(ctx context.Context, task *domain.PendingTask) error {
	var payload domain.PollTaskPayload
	if len(task.Payload) > 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return queue.Terminal(fmt.Errorf("decode poll payload: %w", err))
		}
	}
	channel := payload.Channel
	if channel == "" {
		channel = domain.ChannelEmail
	}

	if p.mailbox == nil || !p.mailbox.Available() {
		p.logf("mailbox not configured, poll skipped")
		return nil
	}

	cursor, err := p.cursors.GetCursor(ctx, channel)
	if err != nil {
		return fmt.Errorf("load poll cursor: %w", err)
	}
	if cursor.IsZero() {
		cursor = time.Now().UTC().Add(-p.cfg.PollLookback)
	}

	summaries, err := p.mailbox.ListMessagesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("list messages since %s: %w", cursor.Format(time.RFC3339), err)
	}

	var (
		newest   time.Time
		enqueued int
		skipped  int
	)
	for _, summary := range summaries {
		if summary.ReceivedAt.After(newest) {
			newest = summary.ReceivedAt
		}

		seen, err := p.inquiries.EmailSeen(ctx, summary.ID)
		if err != nil {
			return fmt.Errorf("check email %s: %w", summary.ID, err)
		}
		if seen {
			skipped++
			continue
		}

		if reason := mailbox.SkipReason(summary.Sender, summary.Subject); reason != "" {
			skipped++
			p.logf("email filtered message_id=%s reason=%s", summary.ID, reason)
			continue
		}

		intent, err := p.extractor.ClassifyIntent(ctx, summary.Subject, summary.Preview)
		if err != nil {
			// Classification is advisory: a real inquiry must never be
			// dropped because the classifier was down.
			observability.ExtractionRequests.WithLabelValues("intent", "error").Inc()
			p.logf("intent classification failed message_id=%s: %v", summary.ID, err)
			intent = domain.IntentInquiry
		} else {
			observability.ExtractionRequests.WithLabelValues("intent", "ok").Inc()
		}
		if !intent.Processable() {
			skipped++
			p.logf("email skipped by intent message_id=%s intent=%s", summary.ID, intent)
			continue
		}

		encoded, err := json.Marshal(domain.EmailTaskPayload{
			MessageID:  summary.ID,
			Sender:     summary.Sender,
			Subject:    summary.Subject,
			ReceivedAt: summary.ReceivedAt,
			Intent:     string(intent),
		})
		if err != nil {
			return queue.Terminal(fmt.Errorf("encode email payload: %w", err))
		}
		if _, err := p.queue.Enqueue(ctx, domain.TaskTypeProcessEmail, encoded, time.Time{}); err != nil {
			return fmt.Errorf("enqueue email %s: %w", summary.ID, err)
		}
		observability.TasksEnqueued.WithLabelValues(string(domain.TaskTypeProcessEmail)).Inc()
		enqueued++
	}

	if !newest.IsZero() {
		if err := p.cursors.AdvanceCursor(ctx, channel, newest); err != nil {
			return fmt.Errorf("advance poll cursor: %w", err)
		}
	}

	p.logf("mailbox poll done listed=%d enqueued=%d skipped=%d", len(summaries), enqueued, skipped)
	return nil
}

// extractAndMerge runs extraction over message text and folds the result
// into the inquiry. Extraction finding nothing is not an error: the merge
// still runs and the inquiry comes out Incomplete.
func (p *Processor) extractAndMerge(ctx context.Context, task *domain.PendingTask, inquiryID, text string) (domain.InquiryStatus, error) {
	fields, source, err := p.extractor.ExtractTravelData(ctx, text)
	if err != nil {
		observability.ExtractionRequests.WithLabelValues("extract", "error").Inc()
		status := domain.StatusProcessingFailed
		if task.Attempts >= p.cfg.MaxAttempts {
			status = domain.StatusPermanentlyFailed
		}
		if statusErr := p.inquiries.UpdateInquiryStatus(ctx, inquiryID, status); statusErr != nil {
			p.logf("flag inquiry after extraction failure inquiry_id=%s: %v", inquiryID, statusErr)
		}
		return "", fmt.Errorf("extract travel data: %w", err)
	}
	observability.ExtractionRequests.WithLabelValues("extract", "ok").Inc()

	_, status, err := p.inquiries.MergeExtraction(ctx, inquiryID, fields, source, p.cfg.RequiredFields)
	if err != nil {
		return "", fmt.Errorf("merge extraction into %s: %w", inquiryID, err)
	}
	return status, nil
}

// flagMalformed marks the contact's inquiry Error when one exists. Poison
// payloads with no usable contact just fail their task.
func (p *Processor) flagMalformed(ctx context.Context, contactKey string) {
	if contactKey == "" {
		return
	}
	inquiry, err := p.inquiries.GetInquiryByContact(ctx, contactKey)
	if err != nil {
		return
	}
	if err := p.inquiries.UpdateInquiryStatus(ctx, inquiry.ID, domain.StatusError); err != nil {
		p.logf("flag malformed payload inquiry_id=%s: %v", inquiry.ID, err)
	}
}
