package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/repository"
)

func seedInquiry(
	t *testing.T,
	repo *repository.MemoryInquiriesRepository,
	contact string,
	fields domain.ExtractedFields,
) *domain.Inquiry {
	t.Helper()
	ctx := context.Background()

	status := domain.StatusNew
	if domain.IsWhatsAppContact(contact) {
		status = domain.StatusNewWhatsApp
	}
	inquiry, _, err := repo.ResolveInquiry(ctx, contact, status)
	if err != nil {
		t.Fatalf("resolve inquiry: %v", err)
	}
	if !fields.IsEmpty() {
		if _, _, err := repo.MergeExtraction(ctx, inquiry.ID, fields, "openai", domain.DefaultRequiredFields()); err != nil {
			t.Fatalf("merge extraction: %v", err)
		}
	}
	return inquiry
}

func TestDetailReportsMissingFieldsAndCost(t *testing.T) {
	repo := repository.NewMemoryInquiriesRepository()
	svc := NewInquiryService(repo, nil)
	ctx := context.Background()

	inquiry := seedInquiry(t, repo, "ana@example.com", domain.ExtractedFields{
		FirstName:       "Ana",
		LastName:        "Silva",
		TripDestination: "Paris",
		TripCost:        "$3,000",
		Travelers: []domain.Traveler{
			{FirstName: "Ana"}, {FirstName: "Bruno"}, {FirstName: "Clara"},
		},
	})

	detail, err := svc.Detail(ctx, inquiry.ID)
	if err != nil {
		t.Fatalf("detail failed: %v", err)
	}
	if detail.Data == nil {
		t.Fatalf("expected extracted data in detail")
	}

	wantMissing := []string{domain.FieldTravelStartDate, domain.FieldTravelEndDate}
	if len(detail.MissingFields) != len(wantMissing) {
		t.Fatalf("expected missing %v, got %v", wantMissing, detail.MissingFields)
	}
	for i, name := range wantMissing {
		if detail.MissingFields[i] != name {
			t.Fatalf("expected missing %v, got %v", wantMissing, detail.MissingFields)
		}
	}

	if detail.CostPerTraveler == nil || *detail.CostPerTraveler != 1000 {
		t.Fatalf("expected cost per traveler 1000, got %v", detail.CostPerTraveler)
	}
}

func TestDetailWithoutExtractionListsAllRequired(t *testing.T) {
	repo := repository.NewMemoryInquiriesRepository()
	svc := NewInquiryService(repo, nil)
	ctx := context.Background()

	inquiry := seedInquiry(t, repo, "empty@example.com", domain.ExtractedFields{})

	detail, err := svc.Detail(ctx, inquiry.ID)
	if err != nil {
		t.Fatalf("detail failed: %v", err)
	}
	if detail.Data != nil {
		t.Fatalf("expected no extracted data, got %+v", detail.Data)
	}
	if len(detail.MissingFields) != len(domain.DefaultRequiredFields()) {
		t.Fatalf("expected every required field missing, got %v", detail.MissingFields)
	}
	if detail.CostPerTraveler != nil {
		t.Fatalf("expected no cost per traveler, got %v", *detail.CostPerTraveler)
	}
}

func TestDetailUnknownInquiry(t *testing.T) {
	svc := NewInquiryService(repository.NewMemoryInquiriesRepository(), nil)

	_, err := svc.Detail(context.Background(), "11111111-2222-3333-4444-555555555555")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateFieldsRequiresAtLeastOne(t *testing.T) {
	repo := repository.NewMemoryInquiriesRepository()
	svc := NewInquiryService(repo, nil)
	inquiry := seedInquiry(t, repo, "bob@example.com", domain.ExtractedFields{FirstName: "Bob"})

	_, err := svc.UpdateFields(context.Background(), inquiry.ID, nil, "agent")
	if !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}
}

func TestUpdateFieldsReturnsRefreshedDetail(t *testing.T) {
	repo := repository.NewMemoryInquiriesRepository()
	svc := NewInquiryService(repo, nil)
	ctx := context.Background()
	inquiry := seedInquiry(t, repo, "carla@example.com", domain.ExtractedFields{FirstName: "Carla"})

	detail, err := svc.UpdateFields(ctx, inquiry.ID, map[string]string{
		domain.FieldLastName:        "Mendes",
		domain.FieldTripDestination: "Lisbon",
	}, "agent.rui")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if detail.Inquiry.Status != domain.StatusManuallyCorrected {
		t.Fatalf("expected pinned status, got %s", detail.Inquiry.Status)
	}
	if detail.Data.UpdatedBy != "agent.rui" {
		t.Fatalf("expected editor recorded, got %q", detail.Data.UpdatedBy)
	}
	if detail.Data.Fields.LastName != "Mendes" || detail.Data.Fields.FirstName != "Carla" {
		t.Fatalf("expected edit merged over existing fields, got %+v", detail.Data.Fields)
	}

	_, err = svc.UpdateFields(ctx, inquiry.ID, map[string]string{"shoe_size": "42"}, "agent.rui")
	if !errors.Is(err, repository.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestListClampsPagination(t *testing.T) {
	repo := repository.NewMemoryInquiriesRepository()
	svc := NewInquiryService(repo, nil)
	ctx := context.Background()

	for _, contact := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		seedInquiry(t, repo, contact, domain.ExtractedFields{FirstName: "User"})
	}

	page, err := svc.List(ctx, domain.InquiryListFilter{Page: 0, PageSize: -5})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Page != 1 || page.PageSize != 25 {
		t.Fatalf("expected clamped defaults, got page=%d size=%d", page.Page, page.PageSize)
	}
	if page.Total != 3 || page.TotalPages != 1 {
		t.Fatalf("expected 3 rows on one page, got %+v", page)
	}

	page, err = svc.List(ctx, domain.InquiryListFilter{Page: 1, PageSize: 1000})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.PageSize != 100 {
		t.Fatalf("expected page size capped at 100, got %d", page.PageSize)
	}

	page, err = svc.List(ctx, domain.InquiryListFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Items) != 1 || page.TotalPages != 2 {
		t.Fatalf("expected final page of 1, got %+v", page)
	}
}

func TestStatusCountsTotals(t *testing.T) {
	repo := repository.NewMemoryInquiriesRepository()
	svc := NewInquiryService(repo, nil)
	ctx := context.Background()

	seedInquiry(t, repo, "a@x.com", domain.ExtractedFields{FirstName: "A"})
	seedInquiry(t, repo, "b@x.com", domain.ExtractedFields{})
	seedInquiry(t, repo, "whatsapp:111@c.us", domain.ExtractedFields{})

	counts, total, err := svc.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("status counts failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	byStatus := make(map[domain.InquiryStatus]int, len(counts))
	for _, count := range counts {
		byStatus[count.Status] = count.Count
	}
	if byStatus[domain.StatusIncomplete] != 1 || byStatus[domain.StatusNew] != 1 || byStatus[domain.StatusNewWhatsApp] != 1 {
		t.Fatalf("unexpected status distribution: %v", byStatus)
	}
}

func TestExportCSVShape(t *testing.T) {
	repo := repository.NewMemoryInquiriesRepository()
	svc := NewInquiryService(repo, nil)
	ctx := context.Background()

	seedInquiry(t, repo, "dora@example.com", domain.ExtractedFields{
		FirstName:       "Dora",
		LastName:        "Reis",
		TripDestination: "Tokyo",
		TripCost:        "5000",
	})
	seedInquiry(t, repo, "whatsapp:5511999990000@c.us", domain.ExtractedFields{
		FirstName: "Beto",
	})

	var buffer bytes.Buffer
	if err := svc.ExportCSV(ctx, &buffer); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buffer.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus two rows, got %d lines: %s", len(lines), buffer.String())
	}
	header := lines[0]
	if !strings.HasPrefix(header, "ID,Date Received,First Name") || !strings.HasSuffix(header, "Status") {
		t.Fatalf("unexpected header: %s", header)
	}

	body := lines[1] + "\n" + lines[2]
	// The email column falls back to the contact for email inquiries but
	// never leaks a whatsapp contact key.
	if !strings.Contains(body, "dora@example.com") {
		t.Fatalf("expected contact fallback in email column: %s", body)
	}
	if strings.Contains(body, "whatsapp:5511999990000@c.us") {
		t.Fatalf("expected whatsapp contact kept out of the email column: %s", body)
	}
	if !strings.Contains(body, "Dora") || !strings.Contains(body, "Beto") {
		t.Fatalf("expected both inquiries exported: %s", body)
	}
}
