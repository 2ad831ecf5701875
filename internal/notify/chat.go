package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"etlwatch/internal/status"
)

// Header images per overall status, served by Google's static hosts.
const (
	imageOK       = "https://www.gstatic.com/images/icons/material/system/2x/check_circle_green_48dp.png"
	imageWarning  = "https://www.gstatic.com/images/icons/material/system/2x/warning_amber_48dp.png"
	imageCritical = "https://www.gstatic.com/images/icons/material/system/2x/error_red_48dp.png"
)

// Chat sends formatted cards to a Google Chat space via webhook.
type Chat struct {
	webhookURL   string
	dashboardURL string
	client       *http.Client
	logger       *slog.Logger
}

// NewChat creates a Chat notifier. Pass nil logger to use the default logger.
func NewChat(webhookURL, dashboardURL string, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{
		webhookURL:   webhookURL,
		dashboardURL: dashboardURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// Card payload types for the Google Chat webhook message format.
type card struct {
	Cards []cardEntry `json:"cards"`
}

type cardEntry struct {
	Header   cardHeader    `json:"header"`
	Sections []cardSection `json:"sections"`
}

type cardHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type cardSection struct {
	Header  string   `json:"header,omitempty"`
	Widgets []widget `json:"widgets"`
}

type widget struct {
	TextParagraph *textParagraph `json:"textParagraph,omitempty"`
	KeyValue      *keyValue      `json:"keyValue,omitempty"`
	Buttons       []button       `json:"buttons,omitempty"`
}

type textParagraph struct {
	Text string `json:"text"`
}

type keyValue struct {
	TopLabel    string `json:"topLabel"`
	Content     string `json:"content"`
	BottomLabel string `json:"bottomLabel,omitempty"`
}

type button struct {
	TextButton textButton `json:"textButton"`
}

type textButton struct {
	Text    string  `json:"text"`
	OnClick onClick `json:"onClick"`
}

type onClick struct {
	OpenLink openLink `json:"openLink"`
}

type openLink struct {
	URL string `json:"url"`
}

func headerFor(worst status.Status, escalation bool) (subtitle, image string) {
	switch worst {
	case status.Critical:
		subtitle = "🔴 CRITICAL ISSUES DETECTED"
		if escalation {
			subtitle = "🔴 STILL CRITICAL — ESCALATION"
		}
		image = imageCritical
	case status.Warning:
		subtitle = "🟡 WARNINGS PRESENT"
		image = imageWarning
	case status.OK:
		subtitle = "🟢 ALL SYSTEMS OPERATIONAL"
		image = imageOK
	default:
		subtitle = "⏳ AWAITING SCHEDULED EVENTS"
	}
	return subtitle, image
}

// SendBatch posts a check-in card summarizing the batch. The header color
// follows the worst status present; escalation adds a follow-up note.
func (c *Chat) SendBatch(ctx context.Context, title string, records []status.Record, escalation bool) error {
	worst := status.Worst(records)
	subtitle, image := headerFor(worst, escalation)

	checkTime := time.Now()
	if len(records) > 0 {
		checkTime = records[0].EvaluatedAt
	}

	ok, warning, critical := countByStatus(records)

	widgets := make([]widget, 0, len(records))
	for _, r := range records {
		widgets = append(widgets, widget{
			KeyValue: &keyValue{
				TopLabel:    r.Pipeline,
				Content:     fmt.Sprintf("%s %s", emoji(r.Status), r.Status),
				BottomLabel: r.Detail,
			},
		})
	}

	sections := []cardSection{
		{
			Header: "Summary",
			Widgets: []widget{
				{KeyValue: &keyValue{TopLabel: "Check Time", Content: checkTime.Format("2006-01-02 15:04")}},
				{TextParagraph: &textParagraph{
					Text: fmt.Sprintf("<b>%d OK | %d Warning | %d Critical</b>", ok, warning, critical),
				}},
			},
		},
		{
			Header:  "Pipeline Details",
			Widgets: widgets,
		},
	}

	if c.dashboardURL != "" {
		sections = append(sections, cardSection{
			Widgets: []widget{
				{Buttons: []button{{
					TextButton: textButton{
						Text:    "VIEW DASHBOARD",
						OnClick: onClick{OpenLink: openLink{URL: c.dashboardURL}},
					},
				}}},
			},
		})
	}

	payload := card{Cards: []cardEntry{{
		Header:   cardHeader{Title: title, Subtitle: subtitle, ImageURL: image},
		Sections: sections,
	}}}

	return c.post(ctx, payload)
}

// SendReport posts a single-section card with a free-form HTML paragraph,
// used for the daily summary.
func (c *Chat) SendReport(ctx context.Context, title, subtitle, text string) error {
	payload := card{Cards: []cardEntry{{
		Header: cardHeader{Title: title, Subtitle: subtitle},
		Sections: []cardSection{{
			Widgets: []widget{{TextParagraph: &textParagraph{Text: text}}},
		}},
	}}}
	return c.post(ctx, payload)
}

// SendText posts a simple text message.
func (c *Chat) SendText(ctx context.Context, message string) error {
	return c.post(ctx, map[string]string{"text": message})
}

func (c *Chat) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("sending chat webhook", "error", err)
		return fmt.Errorf("sending chat webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn("chat webhook returned non-2xx status", "status", resp.StatusCode)
		return fmt.Errorf("chat webhook returned status %d", resp.StatusCode)
	}
	return nil
}
