// Package summary produces the end-of-day pipeline report: per-pipeline
// freshness and volume with a day-over-day trend, plus headline warehouse
// statistics.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"etlwatch/internal/config"
	"etlwatch/internal/probe"
	"etlwatch/internal/status"
)

// CardSender posts a report card to the chat space.
type CardSender interface {
	SendReport(ctx context.Context, title, subtitle, text string) error
}

// Reporter builds and sends the daily summary.
type Reporter struct {
	cfg    *config.Config
	wh     probe.Warehouse
	chat   CardSender
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Reporter. Pass nil logger to use the default logger.
func New(cfg *config.Config, wh probe.Warehouse, chat CardSender, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{cfg: cfg, wh: wh, chat: chat, logger: logger, now: time.Now}
}

// SetClock overrides the reporter's clock (for tests).
func (r *Reporter) SetClock(now func() time.Time) {
	r.now = now
}

// Run gathers stats for every pipeline and sends the summary card.
func (r *Reporter) Run(ctx context.Context) error {
	now := r.now()

	var (
		lines       []string
		worst       = status.Pending
		callsToday  int64
		operators   int64
		gotOperator bool
	)

	for _, check := range r.cfg.Pipelines {
		p, err := probe.New(check, r.wh)
		if err != nil {
			continue
		}
		res := p.Measure(ctx)
		rec := status.Evaluate(check, res, now)
		if rec.Status > worst {
			worst = rec.Status
		}

		switch check.Kind {
		case config.KindFreshness:
			callsToday += res.Count
			lines = append(lines, fmt.Sprintf("%s <b>%s</b> (%s)<br>   Last update: %dh ago | Today: %d %s",
				statusEmoji(rec.Status),
				check.Name,
				orDefault(check.Description, "no description"),
				int(res.Age.Hours()),
				res.Count,
				trend(res.Count, res.Yesterday),
			))
		case config.KindCount:
			if check.Distinct != "" && res.Err == "" {
				operators = res.Count
				gotOperator = true
			}
			lines = append(lines, fmt.Sprintf("%s <b>%s</b>: %s",
				statusEmoji(rec.Status), check.Name, rec.Detail))
		case config.KindFile:
			lines = append(lines, fmt.Sprintf("%s <b>%s</b>: %s",
				statusEmoji(rec.Status), check.Name, rec.Detail))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Report Time:</b> %s<br><br>", now.Format("15:04"))
	b.WriteString("<b>Pipeline Status:</b><br>")
	b.WriteString(strings.Join(lines, "<br>"))
	b.WriteString("<br><br><b>Daily Statistics:</b><br>")
	fmt.Fprintf(&b, "📞 Records processed today: %d<br>", callsToday)
	if gotOperator {
		if r.cfg.ExpectedOperators > 0 {
			fmt.Fprintf(&b, "👥 Active operators: %d/%d<br>", operators, r.cfg.ExpectedOperators)
		} else {
			fmt.Fprintf(&b, "👥 Active operators: %d<br>", operators)
		}
	}

	subtitle := fmt.Sprintf("%s | %s", now.Format("Monday, January 2, 2006"), overallLabel(worst))

	if err := r.chat.SendReport(ctx, "📊 Daily Pipeline Summary", subtitle, b.String()); err != nil {
		return fmt.Errorf("sending daily summary: %w", err)
	}
	r.logger.Info("daily summary sent", "overall", worst.String())
	return nil
}

func overallLabel(worst status.Status) string {
	switch worst {
	case status.Critical:
		return "🔴 ISSUES DETECTED"
	case status.Warning:
		return "🟡 WARNINGS"
	default:
		return "🟢 ALL SYSTEMS HEALTHY"
	}
}

func statusEmoji(s status.Status) string {
	switch s {
	case status.OK:
		return "✅"
	case status.Warning:
		return "⚠️"
	case status.Critical:
		return "❌"
	default:
		return "⏳"
	}
}

func trend(today, yesterday int64) string {
	switch {
	case yesterday == 0:
		return "➖"
	case today > yesterday:
		return "📈"
	case today < yesterday:
		return "📉"
	default:
		return "➖"
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
