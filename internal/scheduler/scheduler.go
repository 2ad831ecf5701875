// Package scheduler drives serve-mode monitoring: check-in points at their
// configured wall-clock times, the quick pass on an interval, and the daily
// summary. Each job run is independent; overlapping runs coordinate only
// through the timestamp-guarded escalation rows.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"etlwatch/internal/config"
	"etlwatch/internal/monitor"
	"etlwatch/internal/summary"
)

// jobTimeout bounds a single scheduled run so a stuck check cannot hold its
// slot indefinitely.
const jobTimeout = 4 * time.Minute

// pruneSpec runs the retention prune nightly, off the busy morning hours.
const pruneSpec = "15 3 * * *"

// Pruner removes status records older than the retention window.
type Pruner interface {
	PruneRecords(ctx context.Context, keep time.Duration) (int64, error)
}

// TextSender posts a plain text message to the chat space, used for
// scheduler failure notices.
type TextSender interface {
	SendText(ctx context.Context, message string) error
}

// Scheduler owns the cron entries for all scheduled monitoring work.
type Scheduler struct {
	cfg      *config.Config
	runner   *monitor.Runner
	reporter *summary.Reporter
	pruner   Pruner
	chat     TextSender
	cron     *cron.Cron
	logger   *slog.Logger
}

// New creates a Scheduler. reporter may be nil when no summary time is
// configured; pruner and chat may be nil. Pass nil logger to use the
// default logger.
func New(cfg *config.Config, runner *monitor.Runner, reporter *summary.Reporter, pruner Pruner, chat TextSender, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		reporter: reporter,
		pruner:   pruner,
		chat:     chat,
		cron:     cron.New(),
		logger:   logger,
	}
}

// Start registers all entries and starts the cron loop. It is non-blocking;
// cancellation of ctx stops the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	for name, ci := range s.cfg.Checkins {
		name := name
		spec := cronSpec(ci.Time)
		if _, err := s.cron.AddFunc(spec, func() { s.runCheckin(name) }); err != nil {
			return fmt.Errorf("scheduling checkin %q: %w", name, err)
		}
		s.logger.Info("check-in scheduled", "checkin", name, "at", ci.Time.String())
	}

	quickSpec := fmt.Sprintf("@every %s", s.cfg.QuickInterval.Duration)
	if _, err := s.cron.AddFunc(quickSpec, s.runQuick); err != nil {
		return fmt.Errorf("scheduling quick check: %w", err)
	}

	if s.reporter != nil && !s.cfg.SummaryTime.IsZero() {
		if _, err := s.cron.AddFunc(cronSpec(s.cfg.SummaryTime), s.runSummary); err != nil {
			return fmt.Errorf("scheduling daily summary: %w", err)
		}
		s.logger.Info("daily summary scheduled", "at", s.cfg.SummaryTime.String())
	}

	if s.pruner != nil {
		if _, err := s.cron.AddFunc(pruneSpec, s.runPrune); err != nil {
			return fmt.Errorf("scheduling record prune: %w", err)
		}
		s.logger.Info("record prune scheduled", "retention", s.cfg.Storage.Retention.Duration)
	}

	s.cron.Start()

	go func() {
		<-ctx.Done()
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}()
	return nil
}

// TriggerQuick runs a quick pass outside the schedule, e.g. when a watched
// file arrives.
func (s *Scheduler) TriggerQuick() {
	go s.runQuick()
}

func (s *Scheduler) runCheckin(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.runner.RunCheckin(ctx, name); err != nil {
		s.logger.Error("check-in run failed", "checkin", name, "error", err)
		s.notifyFailure(ctx, fmt.Sprintf("check-in %q failed: %v", name, err))
	}
}

func (s *Scheduler) runQuick() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.runner.RunQuick(ctx); err != nil {
		s.logger.Error("quick check failed", "error", err)
		s.notifyFailure(ctx, fmt.Sprintf("quick check failed: %v", err))
	}
}

func (s *Scheduler) runSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.reporter.Run(ctx); err != nil {
		s.logger.Error("daily summary failed", "error", err)
		s.notifyFailure(ctx, fmt.Sprintf("daily summary failed: %v", err))
	}
}

func (s *Scheduler) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := s.pruner.PruneRecords(ctx, s.cfg.Storage.Retention.Duration)
	if err != nil {
		s.logger.Error("record prune failed", "error", err)
		return
	}
	s.logger.Info("old records pruned", "removed", n)
}

// notifyFailure tells the chat space that a scheduled run itself broke, as
// opposed to a pipeline going critical.
func (s *Scheduler) notifyFailure(ctx context.Context, msg string) {
	if s.chat == nil {
		return
	}
	if err := s.chat.SendText(ctx, "⚠️ etlwatch: "+msg); err != nil {
		s.logger.Error("failure notice not delivered", "error", err)
	}
}

// cronSpec renders a daily wall-clock entry for a time of day.
func cronSpec(t config.ClockTime) string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}
