package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"etlwatch/internal/config"
	"etlwatch/internal/status"
)

// Email sends HTML alert summaries over SMTP.
type Email struct {
	cfg    config.EmailConfig
	logger *slog.Logger
}

// NewEmail creates an Email notifier. Pass nil logger to use the default
// logger.
func NewEmail(cfg config.EmailConfig, logger *slog.Logger) *Email {
	if logger == nil {
		logger = slog.Default()
	}
	return &Email{cfg: cfg, logger: logger}
}

// SendBatch sends one HTML email summarizing the batch to all recipients.
func (e *Email) SendBatch(ctx context.Context, subject string, records []status.Record) error {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return fmt.Errorf("setting email sender: %w", err)
	}
	if err := msg.To(e.cfg.Recipients...); err != nil {
		return fmt.Errorf("setting email recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, renderBody(records))

	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(15 * time.Second),
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}

	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		e.logger.Error("sending alert email", "host", e.cfg.Host, "error", err)
		return fmt.Errorf("sending alert email: %w", err)
	}
	return nil
}

func renderBody(records []status.Record) string {
	ok, warning, critical := countByStatus(records)

	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<h2>Pipeline Status Alert</h2>")
	fmt.Fprintf(&b, "<p><b>%d OK | %d Warning | %d Critical</b></p>", ok, warning, critical)
	b.WriteString("<table border=\"1\" cellpadding=\"6\" cellspacing=\"0\">")
	b.WriteString("<tr><th>Pipeline</th><th>Status</th><th>Detail</th><th>Evaluated</th></tr>")
	for _, r := range records {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s %s</td><td>%s</td><td>%s</td></tr>",
			html.EscapeString(r.Pipeline),
			emoji(r.Status),
			r.Status,
			html.EscapeString(r.Detail),
			r.EvaluatedAt.Format("2006-01-02 15:04"),
		)
	}
	b.WriteString("</table></body></html>")
	return b.String()
}
