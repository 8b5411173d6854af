package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool builds the shared connection pool used by every Postgres-backed
// store in the process.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return pool, nil
}

// Migrate applies the inquiry-side schema. The task queue owns its own table
// (queue.PostgresQueue.EnsureSchema).
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS inquiries (
			id UUID PRIMARY KEY,
			primary_contact TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'new',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS extracted_data (
			id UUID PRIMARY KEY,
			inquiry_id UUID NOT NULL UNIQUE REFERENCES inquiries(id) ON DELETE CASCADE,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			validation_status TEXT NOT NULL DEFAULT 'AI Extracted',
			extraction_source TEXT NOT NULL DEFAULT '',
			extracted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_by TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS email_messages (
			id UUID PRIMARY KEY,
			inquiry_id UUID NOT NULL REFERENCES inquiries(id) ON DELETE CASCADE,
			provider_id TEXT NOT NULL UNIQUE,
			sender TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			attachments JSONB NOT NULL DEFAULT '[]'::jsonb,
			processed BOOLEAN NOT NULL DEFAULT false,
			processing_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS whatsapp_messages (
			id UUID PRIMARY KEY,
			inquiry_id UUID NOT NULL REFERENCES inquiries(id) ON DELETE CASCADE,
			provider_id TEXT NOT NULL UNIQUE,
			chat_id TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL DEFAULT 'textMessage',
			body TEXT NOT NULL DEFAULT '',
			media_url TEXT NOT NULL DEFAULT '',
			media_mime TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			sent_at TIMESTAMPTZ NOT NULL,
			from_me BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS poll_cursors (
			channel TEXT PRIMARY KEY,
			cursor_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_inquiries_status ON inquiries (status);
		CREATE INDEX IF NOT EXISTS idx_email_messages_inquiry ON email_messages (inquiry_id);
		CREATE INDEX IF NOT EXISTS idx_whatsapp_messages_inquiry ON whatsapp_messages (inquiry_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
