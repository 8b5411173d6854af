package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresCursorsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCursorsRepository(pool *pgxpool.Pool) *PostgresCursorsRepository {
	return &PostgresCursorsRepository{pool: pool}
}

func (r *PostgresCursorsRepository) GetCursor(ctx context.Context, channel string) (time.Time, error) {
	var cursor time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT cursor_at FROM poll_cursors WHERE channel = $1
	`, channel).Scan(&cursor)
	if err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("query poll cursor: %w", err)
	}
	return cursor, nil
}

func (r *PostgresCursorsRepository) AdvanceCursor(ctx context.Context, channel string, to time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO poll_cursors (channel, cursor_at, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel) DO UPDATE
		SET cursor_at = GREATEST(poll_cursors.cursor_at, EXCLUDED.cursor_at),
			updated_at = EXCLUDED.updated_at
	`, channel, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("advance poll cursor: %w", err)
	}
	return nil
}
