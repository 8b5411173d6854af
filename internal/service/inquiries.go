package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/repository"
)

var ErrNoFields = errors.New("no fields provided")

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// InquiryService is the dashboard's read/write surface over consolidated
// inquiries. Background processing writes through the repository
// directly; everything user-facing goes through here.
type InquiryService struct {
	repo           repository.InquiriesRepository
	requiredFields []string
}

func NewInquiryService(repo repository.InquiriesRepository, requiredFields []string) *InquiryService {
	if len(requiredFields) == 0 {
		requiredFields = domain.DefaultRequiredFields()
	}
	return &InquiryService{repo: repo, requiredFields: requiredFields}
}

func (s *InquiryService) RequiredFields() []string {
	return append([]string(nil), s.requiredFields...)
}

type InquiryPage struct {
	Items      []domain.InquiryListItem
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

func (s *InquiryService) List(ctx context.Context, filter domain.InquiryListFilter) (InquiryPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	items, total, err := s.repo.ListInquiries(ctx, filter)
	if err != nil {
		return InquiryPage{}, fmt.Errorf("list inquiries: %w", err)
	}

	totalPages := (total + filter.PageSize - 1) / filter.PageSize
	if totalPages < 1 {
		totalPages = 1
	}
	return InquiryPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

// InquiryDetail is the full dashboard view of one inquiry: the record,
// its extracted fields with derived values, and the message history from
// both channels.
type InquiryDetail struct {
	Inquiry         domain.Inquiry
	Data            *domain.ExtractedData
	MissingFields   []string
	CostPerTraveler *float64
	Emails          []domain.EmailMessage
	WhatsApp        []domain.WhatsAppMessage
}

func (s *InquiryService) Detail(ctx context.Context, inquiryID string) (*InquiryDetail, error) {
	inquiry, err := s.repo.GetInquiry(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	detail := &InquiryDetail{Inquiry: *inquiry}

	data, err := s.repo.GetExtractedData(ctx, inquiryID)
	switch {
	case err == nil:
		detail.Data = data
		detail.MissingFields = data.Fields.MissingFields(s.requiredFields)
		if cost, ok := data.Fields.CostPerTraveler(); ok {
			detail.CostPerTraveler = &cost
		}
	case errors.Is(err, repository.ErrNotFound):
		detail.MissingFields = s.RequiredFields()
	default:
		return nil, fmt.Errorf("load extracted data: %w", err)
	}

	if detail.Emails, err = s.repo.EmailsForInquiry(ctx, inquiryID); err != nil {
		return nil, fmt.Errorf("load emails: %w", err)
	}
	if detail.WhatsApp, err = s.repo.WhatsAppForInquiry(ctx, inquiryID); err != nil {
		return nil, fmt.Errorf("load whatsapp messages: %w", err)
	}
	return detail, nil
}

// UpdateFields applies a manual correction from the dashboard and returns
// the refreshed detail view. The record is pinned Manually Corrected
// afterwards, so later automatic merges leave it alone.
func (s *InquiryService) UpdateFields(
	ctx context.Context,
	inquiryID string,
	set map[string]string,
	editor string,
) (*InquiryDetail, error) {
	if len(set) == 0 {
		return nil, ErrNoFields
	}
	if _, err := s.repo.ApplyManualEdit(ctx, inquiryID, set, editor); err != nil {
		return nil, err
	}
	return s.Detail(ctx, inquiryID)
}

func (s *InquiryService) StatusCounts(ctx context.Context) ([]domain.StatusCount, int, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("status counts: %w", err)
	}
	total := 0
	for _, count := range counts {
		total += count.Count
	}
	return counts, total, nil
}

var exportHeader = []string{
	"ID", "Date Received", "First Name", "Last Name", "Address",
	"Date of Birth", "Travel Start Date", "Travel End Date", "Trip Cost",
	"Email Address", "Phone Number", "Status",
}

// ExportCSV streams every inquiry as a flat CSV, newest first. The column
// order matches the spreadsheet the agency worked from before this
// system existed, so downstream imports keep working.
func (s *InquiryService) ExportCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.repo.AllWithData(ctx)
	if err != nil {
		return fmt.Errorf("load inquiries for export: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	for _, row := range rows {
		var fields domain.ExtractedFields
		if row.Data != nil {
			fields = row.Data.Fields
		}

		email := fields.Email
		if domain.IsBlankField(email) && !domain.IsWhatsAppContact(row.Inquiry.PrimaryContact) {
			email = row.Inquiry.PrimaryContact
		}

		record := []string{
			row.Inquiry.ID,
			row.Inquiry.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			fields.FirstName,
			fields.LastName,
			fields.HomeAddress,
			fields.DateOfBirth,
			fields.TravelStartDate,
			fields.TravelEndDate,
			fields.TripCost,
			email,
			fields.PhoneNumber,
			string(row.Inquiry.Status),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
