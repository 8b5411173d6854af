package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

const uniqueViolationCode = "23505"

type PostgresInquiriesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresInquiriesRepository(pool *pgxpool.Pool) *PostgresInquiriesRepository {
	return &PostgresInquiriesRepository{pool: pool}
}

func (r *PostgresInquiriesRepository) ResolveInquiry(ctx context.Context, contactKey string, initialStatus domain.InquiryStatus) (*domain.Inquiry, bool, error) {
	if strings.TrimSpace(contactKey) == "" {
		return nil, false, errors.New("contact key is required")
	}

	inquiry, err := r.getByContact(ctx, contactKey)
	if err == nil {
		return inquiry, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	created := &domain.Inquiry{
		ID:             uuid.NewString(),
		PrimaryContact: contactKey,
		Status:         initialStatus,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO inquiries (id, primary_contact, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, created.ID, created.PrimaryContact, string(created.Status), created.CreatedAt, created.UpdatedAt)
	if err != nil {
		// A concurrent worker can win the insert race for the same contact;
		// the unique constraint turns that into a lookup.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			existing, getErr := r.getByContact(ctx, contactKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("insert inquiry: %w", err)
	}
	return created, true, nil
}

func (r *PostgresInquiriesRepository) getByContact(ctx context.Context, contactKey string) (*domain.Inquiry, error) {
	return r.scanInquiry(r.pool.QueryRow(ctx, `
		SELECT id, primary_contact, status, created_at, updated_at
		FROM inquiries
		WHERE primary_contact = $1
	`, contactKey))
}

func (r *PostgresInquiriesRepository) GetInquiry(ctx context.Context, id string) (*domain.Inquiry, error) {
	return r.scanInquiry(r.pool.QueryRow(ctx, `
		SELECT id, primary_contact, status, created_at, updated_at
		FROM inquiries
		WHERE id = $1
	`, id))
}

func (r *PostgresInquiriesRepository) GetInquiryByContact(ctx context.Context, contactKey string) (*domain.Inquiry, error) {
	return r.getByContact(ctx, contactKey)
}

func (r *PostgresInquiriesRepository) scanInquiry(row pgx.Row) (*domain.Inquiry, error) {
	var (
		inquiry domain.Inquiry
		status  string
	)
	err := row.Scan(&inquiry.ID, &inquiry.PrimaryContact, &status, &inquiry.CreatedAt, &inquiry.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query inquiry: %w", err)
	}
	inquiry.Status = domain.InquiryStatus(status)
	return &inquiry, nil
}

func (r *PostgresInquiriesRepository) UpdateInquiryStatus(ctx context.Context, id string, status domain.InquiryStatus) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE inquiries
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update inquiry status: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresInquiriesRepository) GetExtractedData(ctx context.Context, inquiryID string) (*domain.ExtractedData, error) {
	record, err := scanExtractedData(r.pool.QueryRow(ctx, `
		SELECT id, inquiry_id, data, validation_status, extraction_source, extracted_at, updated_at, updated_by
		FROM extracted_data
		WHERE inquiry_id = $1
	`, inquiryID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query extracted data: %w", err)
	}
	return record, nil
}

func (r *PostgresInquiriesRepository) MergeExtraction(ctx context.Context, inquiryID string, fields domain.ExtractedFields, source string, required []string) (*domain.ExtractedData, domain.InquiryStatus, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStatus string
	err = tx.QueryRow(ctx, `
		SELECT status FROM inquiries WHERE id = $1 FOR UPDATE
	`, inquiryID).Scan(&currentStatus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("lock inquiry: %w", err)
	}

	now := time.Now().UTC()
	record, err := scanExtractedData(tx.QueryRow(ctx, `
		SELECT id, inquiry_id, data, validation_status, extraction_source, extracted_at, updated_at, updated_by
		FROM extracted_data
		WHERE inquiry_id = $1
		FOR UPDATE
	`, inquiryID))
	creating := false
	if err != nil {
		if err != pgx.ErrNoRows {
			return nil, "", fmt.Errorf("lock extracted data: %w", err)
		}
		creating = true
		record = &domain.ExtractedData{
			ID:               uuid.NewString(),
			InquiryID:        inquiryID,
			ValidationStatus: domain.ValidationAIExtracted,
			ExtractedAt:      now,
		}
	}

	if record.ValidationStatus == domain.ValidationManuallyCorrected {
		return record, domain.InquiryStatus(currentStatus), nil
	}

	domain.MergeFields(&record.Fields, fields)
	record.ExtractionSource = source
	record.UpdatedAt = now

	encoded, err := json.Marshal(record.Fields)
	if err != nil {
		return nil, "", fmt.Errorf("marshal extracted fields: %w", err)
	}

	if creating {
		_, err = tx.Exec(ctx, `
			INSERT INTO extracted_data (id, inquiry_id, data, validation_status, extraction_source, extracted_at, updated_at, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, record.ID, record.InquiryID, encoded, string(record.ValidationStatus), record.ExtractionSource, record.ExtractedAt, record.UpdatedAt, record.UpdatedBy)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE extracted_data
			SET data = $2, extraction_source = $3, updated_at = $4
			WHERE inquiry_id = $1
		`, inquiryID, encoded, record.ExtractionSource, record.UpdatedAt)
	}
	if err != nil {
		return nil, "", fmt.Errorf("write extracted data: %w", err)
	}

	status := domain.StatusIncomplete
	if record.Fields.IsComplete(required) {
		status = domain.StatusComplete
	}
	_, err = tx.Exec(ctx, `
		UPDATE inquiries SET status = $2, updated_at = $3 WHERE id = $1
	`, inquiryID, string(status), now)
	if err != nil {
		return nil, "", fmt.Errorf("update inquiry status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit merge: %w", err)
	}
	return record, status, nil
}

func (r *PostgresInquiriesRepository) ApplyManualEdit(ctx context.Context, inquiryID string, set map[string]string, editor string) (*domain.ExtractedData, error) {
	// Validate field names before touching the row.
	probe := domain.ExtractedFields{}
	for name := range set {
		if !probe.Set(name, "") {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin manual edit: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStatus string
	err = tx.QueryRow(ctx, `
		SELECT status FROM inquiries WHERE id = $1 FOR UPDATE
	`, inquiryID).Scan(&currentStatus)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock inquiry: %w", err)
	}

	now := time.Now().UTC()
	record, err := scanExtractedData(tx.QueryRow(ctx, `
		SELECT id, inquiry_id, data, validation_status, extraction_source, extracted_at, updated_at, updated_by
		FROM extracted_data
		WHERE inquiry_id = $1
		FOR UPDATE
	`, inquiryID))
	creating := false
	if err != nil {
		if err != pgx.ErrNoRows {
			return nil, fmt.Errorf("lock extracted data: %w", err)
		}
		creating = true
		record = &domain.ExtractedData{
			ID:          uuid.NewString(),
			InquiryID:   inquiryID,
			ExtractedAt: now,
		}
	}

	for name, value := range set {
		record.Fields.Set(name, value)
	}
	record.ValidationStatus = domain.ValidationManuallyCorrected
	record.UpdatedBy = editor
	record.UpdatedAt = now

	encoded, err := json.Marshal(record.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal extracted fields: %w", err)
	}

	if creating {
		_, err = tx.Exec(ctx, `
			INSERT INTO extracted_data (id, inquiry_id, data, validation_status, extraction_source, extracted_at, updated_at, updated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, record.ID, record.InquiryID, encoded, string(record.ValidationStatus), record.ExtractionSource, record.ExtractedAt, record.UpdatedAt, record.UpdatedBy)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE extracted_data
			SET data = $2, validation_status = $3, updated_by = $4, updated_at = $5
			WHERE inquiry_id = $1
		`, inquiryID, encoded, string(record.ValidationStatus), record.UpdatedBy, record.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("write extracted data: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE inquiries SET status = $2, updated_at = $3 WHERE id = $1
	`, inquiryID, string(domain.StatusManuallyCorrected), now)
	if err != nil {
		return nil, fmt.Errorf("update inquiry status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit manual edit: %w", err)
	}
	return record, nil
}

var inquirySortColumns = map[string]string{
	"date_received": "i.created_at",
	"first_name":    "d.data->>'first_name'",
	"last_name":     "d.data->>'last_name'",
	"status":        "i.status",
}

func (r *PostgresInquiriesRepository) ListInquiries(ctx context.Context, filter domain.InquiryListFilter) ([]domain.InquiryListItem, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	baseQuery, args := buildInquiryFilters(filter)

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count inquiries: %w", err)
	}

	orderColumn, ok := inquirySortColumns[filter.SortBy]
	if !ok {
		orderColumn = "i.created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = "ASC"
	}

	listQuery := fmt.Sprintf(
		`SELECT i.id, i.primary_contact, i.created_at, i.status,
			COALESCE(d.data->>'first_name', ''),
			COALESCE(d.data->>'last_name', ''),
			COALESCE(d.data->>'email', ''),
			COALESCE(d.data->>'phone_number', ''),
			COALESCE(d.data->>'travel_start_date', ''),
			COALESCE(d.data->>'travel_end_date', ''),
			COALESCE(d.data->>'trip_cost', '')
		%s
		ORDER BY %s %s, i.id ASC
		LIMIT $%d OFFSET $%d`,
		baseQuery,
		orderColumn,
		direction,
		len(args)+1,
		len(args)+2,
	)
	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list inquiries: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InquiryListItem, 0)
	for rows.Next() {
		var (
			item   domain.InquiryListItem
			status string
		)
		err := rows.Scan(
			&item.ID,
			&item.PrimaryContact,
			&item.DateReceived,
			&status,
			&item.FirstName,
			&item.LastName,
			&item.Email,
			&item.PhoneNumber,
			&item.TravelStartDate,
			&item.TravelEndDate,
			&item.TripCost,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan inquiry item: %w", err)
		}
		item.Status = domain.InquiryStatus(status)
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate inquiry items: %w", rows.Err())
	}
	return items, total, nil
}

func buildInquiryFilters(filter domain.InquiryListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM inquiries i LEFT JOIN extracted_data d ON d.inquiry_id = i.id WHERE 1=1")

	args := make([]any, 0, 2)
	argIndex := 1

	if filter.Status != "" {
		query.WriteString(fmt.Sprintf(" AND i.status = $%d", argIndex))
		args = append(args, string(filter.Status))
		argIndex++
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		query.WriteString(fmt.Sprintf(
			" AND (i.primary_contact ILIKE '%%' || $%d || '%%'"+
				" OR d.data->>'first_name' ILIKE '%%' || $%d || '%%'"+
				" OR d.data->>'last_name' ILIKE '%%' || $%d || '%%'"+
				" OR d.data->>'email' ILIKE '%%' || $%d || '%%'"+
				" OR d.data->>'phone_number' ILIKE '%%' || $%d || '%%')",
			argIndex, argIndex, argIndex, argIndex, argIndex,
		))
		args = append(args, search)
		argIndex++
	}

	return query.String(), args
}

func (r *PostgresInquiriesRepository) StatusCounts(ctx context.Context) ([]domain.StatusCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM inquiries
		GROUP BY status
		ORDER BY COUNT(*) DESC, status ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count statuses: %w", err)
	}
	defer rows.Close()

	result := make([]domain.StatusCount, 0)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		result = append(result, domain.StatusCount{Status: domain.InquiryStatus(status), Count: count})
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate status counts: %w", rows.Err())
	}
	return result, nil
}

func (r *PostgresInquiriesRepository) AllWithData(ctx context.Context) ([]domain.InquiryWithData, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.primary_contact, i.status, i.created_at, i.updated_at,
			d.id, d.data, d.validation_status, d.extraction_source, d.extracted_at, d.updated_at, d.updated_by
		FROM inquiries i
		LEFT JOIN extracted_data d ON d.inquiry_id = i.id
		ORDER BY i.created_at DESC, i.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query inquiries for export: %w", err)
	}
	defer rows.Close()

	result := make([]domain.InquiryWithData, 0)
	for rows.Next() {
		var (
			entry            domain.InquiryWithData
			status           string
			dataID           *string
			raw              []byte
			validationStatus *string
			source           *string
			extractedAt      *time.Time
			updatedAt        *time.Time
			updatedBy        *string
		)
		err := rows.Scan(
			&entry.Inquiry.ID,
			&entry.Inquiry.PrimaryContact,
			&status,
			&entry.Inquiry.CreatedAt,
			&entry.Inquiry.UpdatedAt,
			&dataID,
			&raw,
			&validationStatus,
			&source,
			&extractedAt,
			&updatedAt,
			&updatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		entry.Inquiry.Status = domain.InquiryStatus(status)
		if dataID != nil {
			record := &domain.ExtractedData{
				ID:        *dataID,
				InquiryID: entry.Inquiry.ID,
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &record.Fields); err != nil {
					return nil, fmt.Errorf("decode extracted fields: %w", err)
				}
			}
			if validationStatus != nil {
				record.ValidationStatus = domain.ValidationStatus(*validationStatus)
			}
			if source != nil {
				record.ExtractionSource = *source
			}
			if extractedAt != nil {
				record.ExtractedAt = *extractedAt
			}
			if updatedAt != nil {
				record.UpdatedAt = *updatedAt
			}
			if updatedBy != nil {
				record.UpdatedBy = *updatedBy
			}
			entry.Data = record
		}
		result = append(result, entry)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate export rows: %w", rows.Err())
	}
	return result, nil
}

func (r *PostgresInquiriesRepository) InsertEmail(ctx context.Context, email *domain.EmailMessage) error {
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}
	attachments, err := json.Marshal(email.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO email_messages (id, inquiry_id, provider_id, sender, subject, body, received_at, intent, attachments, processed, processing_error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		email.ID,
		email.InquiryID,
		email.ProviderID,
		email.Sender,
		email.Subject,
		email.Body,
		email.ReceivedAt,
		email.Intent,
		attachments,
		email.Processed,
		email.ProcessingError,
		email.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}
	return nil
}

func (r *PostgresInquiriesRepository) EmailSeen(ctx context.Context, providerID string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM email_messages WHERE provider_id = $1)
	`, providerID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check email seen: %w", err)
	}
	return seen, nil
}

func (r *PostgresInquiriesRepository) GetEmailByProviderID(ctx context.Context, providerID string) (*domain.EmailMessage, error) {
	var (
		email       domain.EmailMessage
		attachments []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, inquiry_id, provider_id, sender, subject, body, received_at, intent, attachments, processed, processing_error, created_at
		FROM email_messages
		WHERE provider_id = $1
	`, providerID).Scan(
		&email.ID,
		&email.InquiryID,
		&email.ProviderID,
		&email.Sender,
		&email.Subject,
		&email.Body,
		&email.ReceivedAt,
		&email.Intent,
		&attachments,
		&email.Processed,
		&email.ProcessingError,
		&email.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query email by provider id: %w", err)
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &email.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return &email, nil
}

func (r *PostgresInquiriesRepository) MarkEmailProcessed(ctx context.Context, providerID string, processingError string) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE email_messages
		SET processed = $2, processing_error = $3
		WHERE provider_id = $1
	`, providerID, processingError == "", processingError)
	if err != nil {
		return fmt.Errorf("mark email processed: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresInquiriesRepository) InsertWhatsAppMessage(ctx context.Context, message *domain.WhatsAppMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO whatsapp_messages (id, inquiry_id, provider_id, chat_id, sender_name, message_type, body, media_url, media_mime, latitude, longitude, sent_at, from_me, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		message.ID,
		message.InquiryID,
		message.ProviderID,
		message.ChatID,
		message.SenderName,
		message.MessageType,
		message.Body,
		message.MediaURL,
		message.MediaMime,
		message.Latitude,
		message.Longitude,
		message.SentAt,
		message.FromMe,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert whatsapp message: %w", err)
	}
	return nil
}

func (r *PostgresInquiriesRepository) WhatsAppSeen(ctx context.Context, providerID string) (bool, error) {
	var seen bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM whatsapp_messages WHERE provider_id = $1)
	`, providerID).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check whatsapp seen: %w", err)
	}
	return seen, nil
}

func (r *PostgresInquiriesRepository) GetWhatsAppByProviderID(ctx context.Context, providerID string) (*domain.WhatsAppMessage, error) {
	var message domain.WhatsAppMessage
	err := r.pool.QueryRow(ctx, `
		SELECT id, inquiry_id, provider_id, chat_id, sender_name, message_type, body, media_url, media_mime, latitude, longitude, sent_at, from_me, created_at
		FROM whatsapp_messages
		WHERE provider_id = $1
	`, providerID).Scan(
		&message.ID,
		&message.InquiryID,
		&message.ProviderID,
		&message.ChatID,
		&message.SenderName,
		&message.MessageType,
		&message.Body,
		&message.MediaURL,
		&message.MediaMime,
		&message.Latitude,
		&message.Longitude,
		&message.SentAt,
		&message.FromMe,
		&message.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query whatsapp by provider id: %w", err)
	}
	return &message, nil
}

func (r *PostgresInquiriesRepository) EmailsForInquiry(ctx context.Context, inquiryID string) ([]domain.EmailMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, inquiry_id, provider_id, sender, subject, body, received_at, intent, attachments, processed, processing_error, created_at
		FROM email_messages
		WHERE inquiry_id = $1
		ORDER BY received_at ASC
	`, inquiryID)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	result := make([]domain.EmailMessage, 0)
	for rows.Next() {
		var (
			email       domain.EmailMessage
			attachments []byte
		)
		err := rows.Scan(
			&email.ID,
			&email.InquiryID,
			&email.ProviderID,
			&email.Sender,
			&email.Subject,
			&email.Body,
			&email.ReceivedAt,
			&email.Intent,
			&attachments,
			&email.Processed,
			&email.ProcessingError,
			&email.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &email.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments: %w", err)
			}
		}
		result = append(result, email)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate emails: %w", rows.Err())
	}
	return result, nil
}

func (r *PostgresInquiriesRepository) WhatsAppForInquiry(ctx context.Context, inquiryID string) ([]domain.WhatsAppMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, inquiry_id, provider_id, chat_id, sender_name, message_type, body, media_url, media_mime, latitude, longitude, sent_at, from_me, created_at
		FROM whatsapp_messages
		WHERE inquiry_id = $1
		ORDER BY sent_at ASC
	`, inquiryID)
	if err != nil {
		return nil, fmt.Errorf("list whatsapp messages: %w", err)
	}
	defer rows.Close()

	result := make([]domain.WhatsAppMessage, 0)
	for rows.Next() {
		var message domain.WhatsAppMessage
		err := rows.Scan(
			&message.ID,
			&message.InquiryID,
			&message.ProviderID,
			&message.ChatID,
			&message.SenderName,
			&message.MessageType,
			&message.Body,
			&message.MediaURL,
			&message.MediaMime,
			&message.Latitude,
			&message.Longitude,
			&message.SentAt,
			&message.FromMe,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan whatsapp message: %w", err)
		}
		result = append(result, message)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate whatsapp messages: %w", rows.Err())
	}
	return result, nil
}

func scanExtractedData(row pgx.Row) (*domain.ExtractedData, error) {
	var (
		record           domain.ExtractedData
		raw              []byte
		validationStatus string
	)
	err := row.Scan(
		&record.ID,
		&record.InquiryID,
		&raw,
		&validationStatus,
		&record.ExtractionSource,
		&record.ExtractedAt,
		&record.UpdatedAt,
		&record.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	record.ValidationStatus = domain.ValidationStatus(validationStatus)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &record.Fields); err != nil {
			return nil, fmt.Errorf("decode extracted fields: %w", err)
		}
	}
	return &record, nil
}
