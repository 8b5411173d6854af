package domain

import (
	"strings"
	"time"
)

type InquiryStatus string

// Status values are rendered verbatim on the dashboard, which is why the
// casing is uneven: the older email flow introduced the capitalized values
// and saved rows still carry them.
const (
	StatusNew               InquiryStatus = "new"
	StatusNewWhatsApp       InquiryStatus = "new_whatsapp"
	StatusProcessing        InquiryStatus = "Processing"
	StatusIncomplete        InquiryStatus = "Incomplete"
	StatusComplete          InquiryStatus = "Complete"
	StatusManuallyCorrected InquiryStatus = "Manually Corrected"
	StatusError             InquiryStatus = "Error"
	StatusProcessingFailed  InquiryStatus = "Processing Failed"
	StatusPermanentlyFailed InquiryStatus = "permanently_failed"
)

// IsFailure reports whether the status is one of the dashboard's red badges.
func (s InquiryStatus) IsFailure() bool {
	switch s {
	case StatusError, StatusProcessingFailed, StatusPermanentlyFailed:
		return true
	default:
		return false
	}
}

type ValidationStatus string

const (
	ValidationAIExtracted       ValidationStatus = "AI Extracted"
	ValidationManuallyCorrected ValidationStatus = "Manually Corrected"
)

// Inquiry is the consolidated record of one customer's interaction across
// possibly many messages. Exactly one exists per normalized contact key.
type Inquiry struct {
	ID             string
	PrimaryContact string
	Status         InquiryStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExtractedData is the single structured-field record owned by an Inquiry.
// It is merged into, never replaced, except through the manual-edit path.
type ExtractedData struct {
	ID               string
	InquiryID        string
	Fields           ExtractedFields
	ValidationStatus ValidationStatus
	ExtractionSource string
	ExtractedAt      time.Time
	UpdatedAt        time.Time
	UpdatedBy        string
}

// EmailContactKey normalizes an email address into the contact identity
// inquiries are keyed by. Matching is exact on the normalized form.
func EmailContactKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Channel labels inquiries and metrics use to tell intake paths apart.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

const whatsAppContactPrefix = "whatsapp:"

// WhatsAppContactKey derives the contact identity for a WhatsApp sender from
// its chat id.
func WhatsAppContactKey(chatID string) string {
	return whatsAppContactPrefix + strings.TrimSpace(chatID)
}

// IsWhatsAppContact reports whether a contact key came from WhatsApp.
func IsWhatsAppContact(contactKey string) bool {
	return strings.HasPrefix(contactKey, whatsAppContactPrefix)
}

type InquiryListFilter struct {
	Page      int
	PageSize  int
	Search    string
	Status    InquiryStatus
	SortBy    string
	SortOrder string
}

// InquiryListItem is one flattened row of the dashboard table.
type InquiryListItem struct {
	ID              string
	PrimaryContact  string
	DateReceived    time.Time
	FirstName       string
	LastName        string
	Email           string
	PhoneNumber     string
	TravelStartDate string
	TravelEndDate   string
	TripCost        string
	Status          InquiryStatus
}

// InquiryWithData pairs an inquiry with its extracted record (nil when no
// extraction has happened yet). Used by the export path.
type InquiryWithData struct {
	Inquiry Inquiry
	Data    *ExtractedData
}

type StatusCount struct {
	Status InquiryStatus
	Count  int
}
