package domain

import "time"

// Intent labels a poll-time classifier assigns to inbound emails. Only
// inquiry and personal messages are dispatched for extraction.
type Intent string

const (
	IntentInquiry       Intent = "inquiry"
	IntentSpam          Intent = "spam"
	IntentSolicitation  Intent = "solicitation"
	IntentOutOfOffice   Intent = "out_of_office"
	IntentUndeliverable Intent = "undeliverable"
	IntentConfirmation  Intent = "confirmation"
	IntentPersonal      Intent = "personal"
	IntentOther         Intent = "other"
)

// KnownIntents lists every label the classifier may return.
func KnownIntents() []Intent {
	return []Intent{
		IntentInquiry,
		IntentSpam,
		IntentSolicitation,
		IntentOutOfOffice,
		IntentUndeliverable,
		IntentConfirmation,
		IntentPersonal,
		IntentOther,
	}
}

// Processable reports whether a message with this label should be
// dispatched for extraction.
func (i Intent) Processable() bool {
	return i == IntentInquiry || i == IntentPersonal
}

// EmailMessage is the append-only record of one inbound email, linked to the
// inquiry that owns it. ProviderID deduplicates re-polled messages.
type EmailMessage struct {
	ID              string
	InquiryID       string
	ProviderID      string
	Sender          string
	Subject         string
	Body            string
	ReceivedAt      time.Time
	Intent          string
	Attachments     []EmailAttachment
	Processed       bool
	ProcessingError string
	CreatedAt       time.Time
}

// EmailAttachment keeps attachment metadata only; content stays with the
// provider.
type EmailAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// WhatsAppMessage is the append-only record of one inbound WhatsApp event.
type WhatsAppMessage struct {
	ID          string
	InquiryID   string
	ProviderID  string
	ChatID      string
	SenderName  string
	MessageType string
	Body        string
	MediaURL    string
	MediaMime   string
	Latitude    *float64
	Longitude   *float64
	SentAt      time.Time
	FromMe      bool
	CreatedAt   time.Time
}
