package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/observability"
	"github.com/tripshield/inquiry-desk/internal/queue"
)

type Config struct {
	// Interval between mailbox polls.
	Interval time.Duration
	Channel  string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.Channel == "" {
		c.Channel = domain.ChannelEmail
	}
	return c
}

// Scheduler periodically enqueues the mailbox poll task. It is push-only:
// the worker does the actual mailbox I/O, so a slow poll never blocks the
// ticker, and the idle guard keeps polls from stacking behind it.
type Scheduler struct {
	queue  queue.Queue
	logger *log.Logger
	cfg    Config
}

func New(q queue.Queue, logger *log.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		queue:  q,
		logger: logger,
		cfg:    cfg.withDefaults(),
	}
}

// Run ticks until the context is canceled. The first poll fires immediately
// so a fresh deployment does not wait a full interval for mail.
func (s *Scheduler) Run(ctx context.Context) {
	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick enqueues one poll task unless a previous one is still active.
func (s *Scheduler) tick(ctx context.Context) {
	active, err := s.queue.CountActive(ctx, domain.TaskTypePollEmails)
	if err != nil {
		s.logf("count active poll tasks: %v", err)
		return
	}
	if active > 0 {
		s.logf("poll task still active, tick skipped")
		return
	}

	payload, err := json.Marshal(domain.PollTaskPayload{Channel: s.cfg.Channel})
	if err != nil {
		s.logf("encode poll payload: %v", err)
		return
	}
	id, err := s.queue.Enqueue(ctx, domain.TaskTypePollEmails, payload, time.Time{})
	if err != nil {
		s.logf("enqueue poll task: %v", err)
		return
	}
	observability.TasksEnqueued.WithLabelValues(string(domain.TaskTypePollEmails)).Inc()
	s.logf("poll task enqueued id=%d channel=%s", id, s.cfg.Channel)
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
