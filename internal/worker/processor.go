package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/extraction"
	"github.com/tripshield/inquiry-desk/internal/mailbox"
	"github.com/tripshield/inquiry-desk/internal/observability"
	"github.com/tripshield/inquiry-desk/internal/queue"
	"github.com/tripshield/inquiry-desk/internal/repository"
)

type Dependencies struct {
	Queue     queue.Queue
	Inquiries repository.InquiriesRepository
	Cursors   repository.CursorsRepository
	Mailbox   mailbox.Client
	Extractor *extraction.Extractor
	Logger    *log.Logger
}

type Config struct {
	// IdleSleep is how long the loop waits after finding no eligible task.
	IdleSleep time.Duration
	// ReapInterval is how often stale processing claims are checked.
	ReapInterval time.Duration
	// StaleTimeout is the claim age past which a processing task counts as
	// abandoned by a dead worker.
	StaleTimeout time.Duration
	// PollLookback bounds the first mailbox poll when no cursor exists yet.
	PollLookback time.Duration
	// MaxAttempts must match the queue's attempt ceiling; the worker uses it
	// to flag inquiries whose extraction has run out of retries.
	MaxAttempts int

	RequiredFields []string
}

func (c Config) withDefaults() Config {
	if c.IdleSleep <= 0 {
		c.IdleSleep = 5 * time.Second
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = 10 * time.Minute
	}
	if c.PollLookback <= 0 {
		c.PollLookback = 30 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if len(c.RequiredFields) == 0 {
		c.RequiredFields = domain.DefaultRequiredFields()
	}
	return c
}

// Processor claims queued tasks and runs the intake pipeline: fetching and
// storing raw messages, extraction, and the inquiry merge. Task errors are
// converted into retry or failure state on the task row; they never stop the
// loop.
type Processor struct {
	queue     queue.Queue
	inquiries repository.InquiriesRepository
	cursors   repository.CursorsRepository
	mailbox   mailbox.Client
	extractor *extraction.Extractor
	logger    *log.Logger
	cfg       Config
}

func NewProcessor(deps Dependencies, cfg Config) *Processor {
	return &Processor{
		queue:     deps.Queue,
		inquiries: deps.Inquiries,
		cursors:   deps.Cursors,
		mailbox:   deps.Mailbox,
		extractor: deps.Extractor,
		logger:    deps.Logger,
		cfg:       cfg.withDefaults(),
	}
}

// Start runs the claim loop until the context is canceled. A reaper ticker
// runs alongside it so claims lost to a crashed worker return to pending.
func (p *Processor) Start(ctx context.Context) {
	go p.reapLoop(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := p.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logf("worker loop error: %v", err)
			p.sleep(ctx, p.cfg.IdleSleep)
			continue
		}
		if !claimed {
			p.sleep(ctx, p.cfg.IdleSleep)
		}
	}
}

// ProcessNext claims and completes at most one task. It reports whether a
// task was claimed; an error means the claim or completion itself failed,
// not the task handler.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	task, err := p.queue.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	started := time.Now()
	taskErr := p.dispatch(ctx, task)
	observability.TaskDuration.WithLabelValues(string(task.TaskType)).Observe(time.Since(started).Seconds())

	if err := p.queue.Complete(ctx, task, taskErr); err != nil {
		// Leave the claim as-is: the reaper will hand the task back out.
		return true, fmt.Errorf("complete task %d: %w", task.ID, err)
	}

	switch {
	case taskErr == nil:
		observability.TasksProcessed.WithLabelValues(string(task.TaskType), "success").Inc()
		p.logf("task done id=%d type=%s attempts=%d", task.ID, task.TaskType, task.Attempts)
	case queue.IsTerminal(taskErr) || task.Attempts >= p.cfg.MaxAttempts:
		observability.TasksProcessed.WithLabelValues(string(task.TaskType), "failed").Inc()
		p.logf("task failed id=%d type=%s attempts=%d error=%v", task.ID, task.TaskType, task.Attempts, taskErr)
	default:
		observability.TasksProcessed.WithLabelValues(string(task.TaskType), "retry").Inc()
		p.logf("task retry scheduled id=%d type=%s attempts=%d error=%v", task.ID, task.TaskType, task.Attempts, taskErr)
	}
	return true, nil
}

func (p *Processor) dispatch(ctx context.Context, task *domain.PendingTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()

	switch task.TaskType {
	case domain.TaskTypeProcessEmail:
		return p.processEmailTask(ctx, task)
	case domain.TaskTypeProcessWhatsApp:
		return p.processWhatsAppTask(ctx, task)
	case domain.TaskTypePollEmails:
		return p.pollEmailsTask(ctx, task)
	default:
		return queue.Terminal(fmt.Errorf("unknown task type %q", task.TaskType))
	}
}

func (p *Processor) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reaped, err := p.queue.ReapStale(ctx, p.cfg.StaleTimeout)
			if err != nil {
				if ctx.Err() == nil {
					p.logf("reap stale tasks: %v", err)
				}
				continue
			}
			if reaped > 0 {
				observability.StaleTasksReaped.Add(float64(reaped))
				p.logf("reaped stale tasks count=%d", reaped)
			}
		}
	}
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (p *Processor) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
