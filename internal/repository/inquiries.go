package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrUnknownField  = errors.New("unknown extraction field")
)

// InquiriesRepository owns the consolidated inquiry state: the inquiry rows,
// their single extracted-data record, and the raw message records. All
// mutation of extracted data goes through MergeExtraction or ApplyManualEdit,
// each a single transaction in the Postgres implementation.
type InquiriesRepository interface {
	// ResolveInquiry finds the inquiry for a normalized contact key, creating
	// it with the given initial status when absent. The bool reports whether
	// a new inquiry was created.
	ResolveInquiry(ctx context.Context, contactKey string, initialStatus domain.InquiryStatus) (*domain.Inquiry, bool, error)
	GetInquiry(ctx context.Context, id string) (*domain.Inquiry, error)
	// GetInquiryByContact looks up without creating; ErrNotFound when the
	// contact has no inquiry yet.
	GetInquiryByContact(ctx context.Context, contactKey string) (*domain.Inquiry, error)
	UpdateInquiryStatus(ctx context.Context, id string, status domain.InquiryStatus) error

	GetExtractedData(ctx context.Context, inquiryID string) (*domain.ExtractedData, error)
	// MergeExtraction folds newly extracted fields into the inquiry's record
	// first-known-value-wins and recomputes the inquiry status against the
	// required set. Manually corrected records are left untouched.
	MergeExtraction(ctx context.Context, inquiryID string, fields domain.ExtractedFields, source string, required []string) (*domain.ExtractedData, domain.InquiryStatus, error)
	// ApplyManualEdit overwrites the given schema fields, marks the record
	// manually corrected, and pins the inquiry status accordingly. This is
	// the dashboard's write path and bypasses merge semantics entirely.
	ApplyManualEdit(ctx context.Context, inquiryID string, set map[string]string, editor string) (*domain.ExtractedData, error)

	ListInquiries(ctx context.Context, filter domain.InquiryListFilter) ([]domain.InquiryListItem, int, error)
	StatusCounts(ctx context.Context) ([]domain.StatusCount, error)
	AllWithData(ctx context.Context) ([]domain.InquiryWithData, error)

	InsertEmail(ctx context.Context, email *domain.EmailMessage) error
	EmailSeen(ctx context.Context, providerID string) (bool, error)
	// GetEmailByProviderID returns the stored email for a provider message
	// id; ErrNotFound when the message was never stored. The worker uses it
	// to tell a processed email apart from one stored by a failed attempt.
	GetEmailByProviderID(ctx context.Context, providerID string) (*domain.EmailMessage, error)
	MarkEmailProcessed(ctx context.Context, providerID string, processingError string) error
	InsertWhatsAppMessage(ctx context.Context, message *domain.WhatsAppMessage) error
	WhatsAppSeen(ctx context.Context, providerID string) (bool, error)
	GetWhatsAppByProviderID(ctx context.Context, providerID string) (*domain.WhatsAppMessage, error)
	EmailsForInquiry(ctx context.Context, inquiryID string) ([]domain.EmailMessage, error)
	WhatsAppForInquiry(ctx context.Context, inquiryID string) ([]domain.WhatsAppMessage, error)
}

// MemoryInquiriesRepository is the in-memory store used when no database is
// configured, and by unit tests.
type MemoryInquiriesRepository struct {
	mu        sync.RWMutex
	inquiries map[string]*domain.Inquiry
	byContact map[string]string
	data      map[string]*domain.ExtractedData
	emails    map[string]*domain.EmailMessage
	whatsapp  map[string]*domain.WhatsAppMessage
}

func NewMemoryInquiriesRepository() *MemoryInquiriesRepository {
	return &MemoryInquiriesRepository{
		inquiries: make(map[string]*domain.Inquiry),
		byContact: make(map[string]string),
		data:      make(map[string]*domain.ExtractedData),
		emails:    make(map[string]*domain.EmailMessage),
		whatsapp:  make(map[string]*domain.WhatsAppMessage),
	}
}

func (r *MemoryInquiriesRepository) ResolveInquiry(_ context.Context, contactKey string, initialStatus domain.InquiryStatus) (*domain.Inquiry, bool, error) {
	if strings.TrimSpace(contactKey) == "" {
		return nil, false, errors.New("contact key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byContact[contactKey]; ok {
		return cloneInquiry(r.inquiries[id]), false, nil
	}

	now := time.Now().UTC()
	inquiry := &domain.Inquiry{
		ID:             uuid.NewString(),
		PrimaryContact: contactKey,
		Status:         initialStatus,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.inquiries[inquiry.ID] = inquiry
	r.byContact[contactKey] = inquiry.ID
	return cloneInquiry(inquiry), true, nil
}

func (r *MemoryInquiriesRepository) GetInquiry(_ context.Context, id string) (*domain.Inquiry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inquiry, ok := r.inquiries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInquiry(inquiry), nil
}

func (r *MemoryInquiriesRepository) GetInquiryByContact(_ context.Context, contactKey string) (*domain.Inquiry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byContact[contactKey]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneInquiry(r.inquiries[id]), nil
}

func (r *MemoryInquiriesRepository) UpdateInquiryStatus(_ context.Context, id string, status domain.InquiryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inquiry, ok := r.inquiries[id]
	if !ok {
		return ErrNotFound
	}
	inquiry.Status = status
	inquiry.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryInquiriesRepository) GetExtractedData(_ context.Context, inquiryID string) (*domain.ExtractedData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, ok := r.data[inquiryID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExtractedData(data), nil
}

func (r *MemoryInquiriesRepository) MergeExtraction(_ context.Context, inquiryID string, fields domain.ExtractedFields, source string, required []string) (*domain.ExtractedData, domain.InquiryStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inquiry, ok := r.inquiries[inquiryID]
	if !ok {
		return nil, "", ErrNotFound
	}

	now := time.Now().UTC()
	record, ok := r.data[inquiryID]
	if !ok {
		record = &domain.ExtractedData{
			ID:               uuid.NewString(),
			InquiryID:        inquiryID,
			ValidationStatus: domain.ValidationAIExtracted,
			ExtractedAt:      now,
		}
		r.data[inquiryID] = record
	}

	if record.ValidationStatus == domain.ValidationManuallyCorrected {
		return cloneExtractedData(record), inquiry.Status, nil
	}

	domain.MergeFields(&record.Fields, fields)
	record.ExtractionSource = source
	record.UpdatedAt = now

	status := domain.StatusIncomplete
	if record.Fields.IsComplete(required) {
		status = domain.StatusComplete
	}
	inquiry.Status = status
	inquiry.UpdatedAt = now

	return cloneExtractedData(record), status, nil
}

func (r *MemoryInquiriesRepository) ApplyManualEdit(_ context.Context, inquiryID string, set map[string]string, editor string) (*domain.ExtractedData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inquiry, ok := r.inquiries[inquiryID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	record, ok := r.data[inquiryID]
	if !ok {
		record = &domain.ExtractedData{
			ID:          uuid.NewString(),
			InquiryID:   inquiryID,
			ExtractedAt: now,
		}
		r.data[inquiryID] = record
	}

	for name, value := range set {
		if !record.Fields.Set(name, value) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}
	record.ValidationStatus = domain.ValidationManuallyCorrected
	record.UpdatedBy = editor
	record.UpdatedAt = now

	inquiry.Status = domain.StatusManuallyCorrected
	inquiry.UpdatedAt = now

	return cloneExtractedData(record), nil
}

func (r *MemoryInquiriesRepository) ListInquiries(_ context.Context, filter domain.InquiryListFilter) ([]domain.InquiryListItem, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.InquiryListItem, 0, len(r.inquiries))
	for _, inquiry := range r.inquiries {
		item := r.listItem(inquiry)
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if !matchesSearch(item, filter.Search) {
			continue
		}
		items = append(items, item)
	}

	sortListItems(items, filter.SortBy, filter.SortOrder)

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.InquiryListItem{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

func (r *MemoryInquiriesRepository) listItem(inquiry *domain.Inquiry) domain.InquiryListItem {
	item := domain.InquiryListItem{
		ID:             inquiry.ID,
		PrimaryContact: inquiry.PrimaryContact,
		DateReceived:   inquiry.CreatedAt,
		Status:         inquiry.Status,
	}
	if record, ok := r.data[inquiry.ID]; ok {
		item.FirstName = record.Fields.FirstName
		item.LastName = record.Fields.LastName
		item.Email = record.Fields.Email
		item.PhoneNumber = record.Fields.PhoneNumber
		item.TravelStartDate = record.Fields.TravelStartDate
		item.TravelEndDate = record.Fields.TravelEndDate
		item.TripCost = record.Fields.TripCost
	}
	return item
}

func (r *MemoryInquiriesRepository) StatusCounts(_ context.Context) ([]domain.StatusCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.InquiryStatus]int)
	for _, inquiry := range r.inquiries {
		counts[inquiry.Status]++
	}

	result := make([]domain.StatusCount, 0, len(counts))
	for status, count := range counts {
		result = append(result, domain.StatusCount{Status: status, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count == result[j].Count {
			return result[i].Status < result[j].Status
		}
		return result[i].Count > result[j].Count
	})
	return result, nil
}

func (r *MemoryInquiriesRepository) AllWithData(_ context.Context) ([]domain.InquiryWithData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InquiryWithData, 0, len(r.inquiries))
	for _, inquiry := range r.inquiries {
		entry := domain.InquiryWithData{Inquiry: *cloneInquiry(inquiry)}
		if record, ok := r.data[inquiry.ID]; ok {
			entry.Data = cloneExtractedData(record)
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Inquiry.CreatedAt.After(result[j].Inquiry.CreatedAt)
	})
	return result, nil
}

func (r *MemoryInquiriesRepository) InsertEmail(_ context.Context, email *domain.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}
	for _, existing := range r.emails {
		if existing.ProviderID == email.ProviderID {
			return fmt.Errorf("email %s already stored", email.ProviderID)
		}
	}
	clone := *email
	clone.Attachments = append([]domain.EmailAttachment(nil), email.Attachments...)
	r.emails[email.ID] = &clone
	return nil
}

func (r *MemoryInquiriesRepository) EmailSeen(_ context.Context, providerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, email := range r.emails {
		if email.ProviderID == providerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryInquiriesRepository) GetEmailByProviderID(_ context.Context, providerID string) (*domain.EmailMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, email := range r.emails {
		if email.ProviderID == providerID {
			clone := *email
			clone.Attachments = append([]domain.EmailAttachment(nil), email.Attachments...)
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryInquiriesRepository) MarkEmailProcessed(_ context.Context, providerID string, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, email := range r.emails {
		if email.ProviderID == providerID {
			email.Processed = processingError == ""
			email.ProcessingError = processingError
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryInquiriesRepository) InsertWhatsAppMessage(_ context.Context, message *domain.WhatsAppMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	for _, existing := range r.whatsapp {
		if existing.ProviderID == message.ProviderID {
			return fmt.Errorf("whatsapp message %s already stored", message.ProviderID)
		}
	}
	clone := *message
	r.whatsapp[message.ID] = &clone
	return nil
}

func (r *MemoryInquiriesRepository) WhatsAppSeen(_ context.Context, providerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, message := range r.whatsapp {
		if message.ProviderID == providerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryInquiriesRepository) GetWhatsAppByProviderID(_ context.Context, providerID string) (*domain.WhatsAppMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, message := range r.whatsapp {
		if message.ProviderID == providerID {
			clone := *message
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryInquiriesRepository) EmailsForInquiry(_ context.Context, inquiryID string) ([]domain.EmailMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.EmailMessage, 0)
	for _, email := range r.emails {
		if email.InquiryID == inquiryID {
			clone := *email
			clone.Attachments = append([]domain.EmailAttachment(nil), email.Attachments...)
			result = append(result, clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result, nil
}

func (r *MemoryInquiriesRepository) WhatsAppForInquiry(_ context.Context, inquiryID string) ([]domain.WhatsAppMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.WhatsAppMessage, 0)
	for _, message := range r.whatsapp {
		if message.InquiryID == inquiryID {
			result = append(result, *message)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SentAt.Before(result[j].SentAt)
	})
	return result, nil
}

func matchesSearch(item domain.InquiryListItem, search string) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return true
	}
	haystacks := []string{
		item.PrimaryContact,
		item.FirstName,
		item.LastName,
		item.Email,
		item.PhoneNumber,
	}
	for _, hay := range haystacks {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

func sortListItems(items []domain.InquiryListItem, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, "desc") || sortOrder == ""
	less := func(i, j int) bool {
		var cmp int
		switch sortBy {
		case "first_name":
			cmp = strings.Compare(strings.ToLower(items[i].FirstName), strings.ToLower(items[j].FirstName))
		case "last_name":
			cmp = strings.Compare(strings.ToLower(items[i].LastName), strings.ToLower(items[j].LastName))
		case "status":
			cmp = strings.Compare(string(items[i].Status), string(items[j].Status))
		default:
			switch {
			case items[i].DateReceived.Before(items[j].DateReceived):
				cmp = -1
			case items[i].DateReceived.After(items[j].DateReceived):
				cmp = 1
			}
		}
		if cmp == 0 {
			cmp = strings.Compare(items[i].ID, items[j].ID)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	}
	sort.Slice(items, less)
}

func cloneInquiry(inquiry *domain.Inquiry) *domain.Inquiry {
	clone := *inquiry
	return &clone
}

func cloneExtractedData(data *domain.ExtractedData) *domain.ExtractedData {
	clone := *data
	clone.Fields = data.Fields.Clone()
	return &clone
}
