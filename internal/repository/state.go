package repository

import (
	"context"
	"sync"
	"time"
)

// CursorsRepository persists per-channel poll cursors so a restarted
// scheduler resumes where the last poll left off instead of relying on
// process state.
type CursorsRepository interface {
	// GetCursor returns the stored cursor for a channel, or the zero time
	// when the channel has never been polled.
	GetCursor(ctx context.Context, channel string) (time.Time, error)
	// AdvanceCursor moves the cursor forward. Older values are ignored, so
	// overlapping polls can never rewind it.
	AdvanceCursor(ctx context.Context, channel string, to time.Time) error
}

type MemoryCursorsRepository struct {
	mu      sync.RWMutex
	cursors map[string]time.Time
}

func NewMemoryCursorsRepository() *MemoryCursorsRepository {
	return &MemoryCursorsRepository{cursors: make(map[string]time.Time)}
}

func (r *MemoryCursorsRepository) GetCursor(_ context.Context, channel string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursors[channel], nil
}

func (r *MemoryCursorsRepository) AdvanceCursor(_ context.Context, channel string, to time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.cursors[channel]; ok && current.After(to) {
		return nil
	}
	r.cursors[channel] = to
	return nil
}
