// Package monitor orchestrates a check cycle: probe, evaluate, persist,
// track, notify. Each pipeline is evaluated independently so one failing
// data source never aborts its siblings.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"etlwatch/internal/config"
	"etlwatch/internal/escalate"
	"etlwatch/internal/probe"
	"etlwatch/internal/status"
)

// Store is the record persistence the runner needs.
type Store interface {
	InsertRecord(ctx context.Context, r status.Record) error
}

// ChatSender sends a chat card for a batch of records.
type ChatSender interface {
	SendBatch(ctx context.Context, title string, records []status.Record, escalation bool) error
}

// EmailSender sends an email for a batch of records.
type EmailSender interface {
	SendBatch(ctx context.Context, subject string, records []status.Record) error
}

// Runner executes check cycles. chat and email may be nil when the channel
// is disabled.
type Runner struct {
	cfg     *config.Config
	wh      probe.Warehouse
	store   Store
	tracker *escalate.Tracker
	chat    ChatSender
	email   EmailSender
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Runner. Pass nil logger to use the default logger.
func New(cfg *config.Config, wh probe.Warehouse, store Store, tracker *escalate.Tracker, chat ChatSender, email EmailSender, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		wh:      wh,
		store:   store,
		tracker: tracker,
		chat:    chat,
		email:   email,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the runner's clock (for tests).
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// EvaluateAll runs a fresh evaluation pass over every configured pipeline
// without persisting records, advancing escalation state, or notifying.
// The dashboard uses this: it renders the latest statuses directly,
// bypassing the tracker.
func (r *Runner) EvaluateAll(ctx context.Context) []status.Record {
	return r.evaluate(ctx, r.cfg.Pipelines)
}

// RunQuick runs the continuous monitoring pass over every pipeline,
// persists the records, and notifies according to the escalation plan.
func (r *Runner) RunQuick(ctx context.Context) ([]status.Record, error) {
	records := r.evaluate(ctx, r.cfg.Pipelines)
	batch := r.track(ctx, records)

	if batch.sendChat && r.chat != nil {
		if err := r.chat.SendBatch(ctx, "Pipeline Health Check", records, batch.escalation); err != nil {
			r.logger.Error("chat notification failed", "error", err)
		}
	}
	if batch.sendEmail && r.email != nil {
		if err := r.email.SendBatch(ctx, r.subject(records), records); err != nil {
			r.logger.Error("email notification failed", "error", err)
		}
	}
	return records, nil
}

// RunCheckin evaluates one named check-in point. Check-ins are scheduled
// reports, so the chat card is always sent; email still follows the
// escalation plan.
func (r *Runner) RunCheckin(ctx context.Context, point string) ([]status.Record, error) {
	ci, ok := r.cfg.Checkins[point]
	if !ok {
		return nil, fmt.Errorf("unknown check-in point %q", point)
	}

	checks := make([]config.Check, 0, len(ci.Pipelines))
	for _, name := range ci.Pipelines {
		check, ok := r.cfg.Pipeline(name)
		if !ok {
			// Validated at load time; guard anyway.
			r.logger.Warn("check-in references unknown pipeline", "checkin", point, "pipeline", name)
			continue
		}
		checks = append(checks, check)
	}

	records := r.evaluate(ctx, checks)
	batch := r.track(ctx, records)

	title := ci.Title
	if title == "" {
		title = fmt.Sprintf("Check-in: %s", point)
	}
	if r.chat != nil {
		if err := r.chat.SendBatch(ctx, title, records, batch.escalation); err != nil {
			r.logger.Error("chat notification failed", "checkin", point, "error", err)
		}
	}
	if batch.sendEmail && r.email != nil {
		if err := r.email.SendBatch(ctx, r.subject(records), records); err != nil {
			r.logger.Error("email notification failed", "checkin", point, "error", err)
		}
	}
	return records, nil
}

// evaluate probes and evaluates each check at the runner's current time.
func (r *Runner) evaluate(ctx context.Context, checks []config.Check) []status.Record {
	now := r.now()
	records := make([]status.Record, 0, len(checks))
	for _, check := range checks {
		p, err := probe.New(check, r.wh)
		if err != nil {
			records = append(records, status.Record{
				Pipeline:    check.Name,
				Status:      status.Critical,
				Detail:      "probe failure: " + err.Error(),
				EvaluatedAt: now,
			})
			continue
		}

		res := p.Measure(ctx)
		rec := status.Evaluate(check, res, now)

		r.logger.Info("pipeline evaluated",
			"pipeline", rec.Pipeline,
			"status", rec.Status.String(),
			"detail", rec.Detail,
		)
		records = append(records, rec)
	}
	return records
}

type batchPlan struct {
	sendChat   bool
	sendEmail  bool
	escalation bool
}

// track persists each record and folds the per-pipeline plans into one
// batch decision. Store and tracker errors are logged, not fatal: the
// remaining pipelines still advance.
func (r *Runner) track(ctx context.Context, records []status.Record) batchPlan {
	var batch batchPlan
	for _, rec := range records {
		if err := r.store.InsertRecord(ctx, rec); err != nil {
			r.logger.Error("storing record", "pipeline", rec.Pipeline, "error", err)
		}

		plan, err := r.tracker.OnResult(ctx, rec)
		if err != nil {
			r.logger.Error("advancing escalation state", "pipeline", rec.Pipeline, "error", err)
			continue
		}
		batch.sendChat = batch.sendChat || plan.SendChat
		batch.sendEmail = batch.sendEmail || plan.SendEmail
		batch.escalation = batch.escalation || plan.Escalation
	}
	return batch
}

func (r *Runner) subject(records []status.Record) string {
	_, warning, critical := notifyCounts(records)
	return fmt.Sprintf("[etlwatch] Pipeline alert: %d critical, %d warning", critical, warning)
}

func notifyCounts(records []status.Record) (ok, warning, critical int) {
	for _, rec := range records {
		switch rec.Status {
		case status.OK:
			ok++
		case status.Warning:
			warning++
		case status.Critical:
			critical++
		}
	}
	return ok, warning, critical
}
