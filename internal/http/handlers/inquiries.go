package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/http/middleware"
	"github.com/tripshield/inquiry-desk/internal/repository"
	"github.com/tripshield/inquiry-desk/internal/service"
)

func (a *API) ListInquiries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	filter := domain.InquiryListFilter{
		Page:      page,
		PageSize:  pageSize,
		Search:    strings.TrimSpace(query.Get("search")),
		Status:    domain.InquiryStatus(strings.TrimSpace(query.Get("status"))),
		SortBy:    strings.TrimSpace(query.Get("sort")),
		SortOrder: strings.TrimSpace(query.Get("order")),
	}

	result, err := a.inquiries.List(r.Context(), filter)
	if err != nil {
		a.logf("list inquiries failed error=%v", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list inquiries")
		return
	}

	items := make([]map[string]any, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, map[string]any{
			"id":                item.ID,
			"primary_contact":   item.PrimaryContact,
			"date_received":     item.DateReceived.UTC().Format(time.RFC3339),
			"first_name":        item.FirstName,
			"last_name":         item.LastName,
			"email":             item.Email,
			"phone_number":      item.PhoneNumber,
			"travel_start_date": item.TravelStartDate,
			"travel_end_date":   item.TravelEndDate,
			"trip_cost":         item.TripCost,
			"status":            item.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"total":       result.Total,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_pages": result.TotalPages,
	})
}

func (a *API) InquiryStats(w http.ResponseWriter, r *http.Request) {
	counts, total, err := a.inquiries.StatusCounts(r.Context())
	if err != nil {
		a.logf("status counts failed error=%v", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load stats")
		return
	}

	failures := 0
	byStatus := make([]map[string]any, 0, len(counts))
	for _, count := range counts {
		if count.Status.IsFailure() {
			failures += count.Count
		}
		byStatus = append(byStatus, map[string]any{
			"status": count.Status,
			"count":  count.Count,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"failures":  failures,
		"by_status": byStatus,
	})
}

func (a *API) InquiryDetail(w http.ResponseWriter, r *http.Request) {
	inquiryID := chi.URLParam(r, "id")
	if inquiryID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "inquiry id is required")
		return
	}

	detail, err := a.inquiries.Detail(r.Context(), inquiryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "inquiry not found")
			return
		}
		a.logf("inquiry detail failed id=%s error=%v", inquiryID, err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load inquiry")
		return
	}

	writeJSON(w, http.StatusOK, detailPayload(detail))
}

type updateInquiryRequest struct {
	Fields map[string]string `json:"fields"`
}

func (a *API) UpdateInquiry(w http.ResponseWriter, r *http.Request) {
	inquiryID := chi.URLParam(r, "id")
	if inquiryID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "inquiry id is required")
		return
	}

	var req updateInquiryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid update payload")
		return
	}

	editor := middleware.GetSessionUser(r.Context())
	detail, err := a.inquiries.UpdateFields(r.Context(), inquiryID, req.Fields, editor)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoFields):
			writeError(w, r, http.StatusBadRequest, "invalid_payload", "at least one field is required")
		case errors.Is(err, repository.ErrUnknownField):
			writeError(w, r, http.StatusBadRequest, "invalid_payload", err.Error())
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "inquiry not found")
		default:
			a.logf("manual edit failed id=%s editor=%s error=%v", inquiryID, editor, err)
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to update inquiry")
		}
		return
	}

	a.logf("manual edit applied id=%s editor=%s fields=%d", inquiryID, editor, len(req.Fields))
	writeJSON(w, http.StatusOK, detailPayload(detail))
}

func (a *API) ExportInquiries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="inquiries.csv"`)
	if err := a.inquiries.ExportCSV(r.Context(), w); err != nil {
		// Headers are committed: log and cut the stream short.
		a.logf("csv export failed error=%v", err)
	}
}

func detailPayload(detail *service.InquiryDetail) map[string]any {
	payload := map[string]any{
		"id":              detail.Inquiry.ID,
		"primary_contact": detail.Inquiry.PrimaryContact,
		"status":          detail.Inquiry.Status,
		"created_at":      detail.Inquiry.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":      detail.Inquiry.UpdatedAt.UTC().Format(time.RFC3339),
		"missing_fields":  detail.MissingFields,
		"emails":          emailPayloads(detail.Emails),
		"whatsapp":        whatsAppPayloads(detail.WhatsApp),
	}
	if detail.Data != nil {
		payload["extracted_data"] = map[string]any{
			"fields":            detail.Data.Fields,
			"validation_status": detail.Data.ValidationStatus,
			"extraction_source": detail.Data.ExtractionSource,
			"extracted_at":      detail.Data.ExtractedAt.UTC().Format(time.RFC3339),
			"updated_at":        detail.Data.UpdatedAt.UTC().Format(time.RFC3339),
			"updated_by":        detail.Data.UpdatedBy,
		}
	}
	if detail.CostPerTraveler != nil {
		payload["cost_per_traveler"] = *detail.CostPerTraveler
	}
	return payload
}

func emailPayloads(emails []domain.EmailMessage) []map[string]any {
	payloads := make([]map[string]any, 0, len(emails))
	for _, email := range emails {
		payload := map[string]any{
			"id":          email.ID,
			"sender":      email.Sender,
			"subject":     email.Subject,
			"body":        email.Body,
			"received_at": email.ReceivedAt.UTC().Format(time.RFC3339),
			"intent":      email.Intent,
			"processed":   email.Processed,
		}
		if len(email.Attachments) > 0 {
			payload["attachments"] = email.Attachments
		}
		if email.ProcessingError != "" {
			payload["processing_error"] = email.ProcessingError
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func whatsAppPayloads(messages []domain.WhatsAppMessage) []map[string]any {
	payloads := make([]map[string]any, 0, len(messages))
	for _, message := range messages {
		payload := map[string]any{
			"id":           message.ID,
			"chat_id":      message.ChatID,
			"sender_name":  message.SenderName,
			"message_type": message.MessageType,
			"body":         message.Body,
			"sent_at":      message.SentAt.UTC().Format(time.RFC3339),
			"from_me":      message.FromMe,
		}
		if message.MediaURL != "" {
			payload["media_url"] = message.MediaURL
			payload["media_mime"] = message.MediaMime
		}
		if message.Latitude != nil && message.Longitude != nil {
			payload["latitude"] = *message.Latitude
			payload["longitude"] = *message.Longitude
		}
		payloads = append(payloads, payload)
	}
	return payloads
}
