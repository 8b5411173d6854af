package domain

import (
	"encoding/json"
	"time"
)

type TaskType string

const (
	TaskTypeProcessEmail    TaskType = "process_single_email"
	TaskTypeProcessWhatsApp TaskType = "process_whatsapp_message"
	TaskTypePollEmails      TaskType = "poll_all_new_emails"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
)

// PendingTask is one durable unit of background work. Rows are claimed by a
// single worker at a time and are kept after completion for audit.
type PendingTask struct {
	ID           int64
	TaskType     TaskType
	Payload      json.RawMessage
	Status       TaskStatus
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	ScheduledFor time.Time
	StartedAt    *time.Time
	ProcessedAt  *time.Time
}

// EmailTaskPayload is the payload carried by process_single_email tasks.
type EmailTaskPayload struct {
	MessageID  string    `json:"message_id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	Intent     string    `json:"intent,omitempty"`
}

// WhatsAppTaskPayload is the payload carried by process_whatsapp_message
// tasks. It mirrors the inbound webhook event, not the stored record.
type WhatsAppTaskPayload struct {
	MessageID   string    `json:"message_id"`
	ChatID      string    `json:"chat_id"`
	SenderName  string    `json:"sender_name"`
	MessageType string    `json:"message_type"`
	Body        string    `json:"body"`
	MediaURL    string    `json:"media_url,omitempty"`
	MediaMime   string    `json:"media_mime,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	SentAt      time.Time `json:"sent_at"`
	FromMe      bool      `json:"from_me,omitempty"`
}

// PollTaskPayload is the payload carried by poll_all_new_emails tasks.
type PollTaskPayload struct {
	Channel string `json:"channel"`
}
