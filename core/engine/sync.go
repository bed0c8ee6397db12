package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/menubot/core/logger"
)

// SyncMenus is the cache-sync poll body: check for tickets this platform
// has not acknowledged, and if any exist, recompile the whole graph,
// reseed the registry, then acknowledge exactly those tickets. The other
// platform's column is never touched, so no cross-process lock exists.
func (e *Engine) SyncMenus(ctx context.Context) error {
	ids, err := e.store.PendingTickets(ctx, e.platform)
	if err != nil {
		return fmt.Errorf("load tickets: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	start := time.Now()
	if err := e.Reload(ctx); err != nil {
		return fmt.Errorf("reload after tickets: %w", err)
	}
	if err := e.store.AcknowledgeTickets(ctx, e.platform, ids, time.Now().UTC()); err != nil {
		return fmt.Errorf("acknowledge tickets: %w", err)
	}

	preview, _ := logger.SummarizeIDs(ids, 6)
	e.log.Info("menu cache synced",
		slog.String("event", "sync"),
		slog.Int("tickets", len(ids)),
		slog.String("payload", preview),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// Job is one periodic task of the cooperative loop.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error

	next time.Time
}

// Scheduler runs periodic jobs either cooperatively between transport
// events (RunDue) or on a ticker goroutine (Loop). Jobs never overlap:
// both entry points run jobs one after another on the calling goroutine.
type Scheduler struct {
	jobs []*Job
	log  *slog.Logger
}

// NewScheduler builds a scheduler over the given jobs. The first run of
// every job happens after its full interval.
func NewScheduler(log *slog.Logger, jobs ...*Job) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	now := time.Now()
	for _, j := range jobs {
		j.next = now.Add(j.Every)
	}
	return &Scheduler{jobs: jobs, log: log}
}

// RunDue executes every job whose interval has elapsed. Called between
// event deliveries by the cooperative loop.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) {
	for _, j := range s.jobs {
		if now.Before(j.next) {
			continue
		}
		j.next = now.Add(j.Every)
		start := time.Now()
		if err := j.Run(ctx); err != nil {
			s.log.Error("periodic job failed",
				slog.String("event", "job"),
				slog.String("handler", j.Name),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
				slog.String("err", err.Error()),
			)
			continue
		}
		s.log.Debug("periodic job finished",
			slog.String("event", "job"),
			slog.String("handler", j.Name),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	}
}

// Loop drives RunDue on a ticker until the context is cancelled. Used by
// the Telegram process, where the transport owns its own update loop.
func (s *Scheduler) Loop(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.RunDue(ctx, now)
		}
	}
}
