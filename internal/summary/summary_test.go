package summary_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"etlwatch/internal/config"
	"etlwatch/internal/summary"
	"etlwatch/internal/warehouse"
)

type fakeWarehouse struct {
	freshness map[string]warehouse.FreshnessRow
	counts    map[string]int64
	distinct  map[string]int64
}

func (f *fakeWarehouse) Freshness(_ context.Context, table, _, _ string) (warehouse.FreshnessRow, error) {
	return f.freshness[table], nil
}

func (f *fakeWarehouse) CountToday(_ context.Context, table, _, _ string) (int64, error) {
	return f.counts[table], nil
}

func (f *fakeWarehouse) DistinctCount(_ context.Context, table, _, _ string) (int64, error) {
	return f.distinct[table], nil
}

type fakeCard struct {
	title    string
	subtitle string
	text     string
	err      error
}

func (f *fakeCard) SendReport(_ context.Context, title, subtitle, text string) error {
	f.title, f.subtitle, f.text = title, subtitle, text
	return f.err
}

func summaryConfig() *config.Config {
	return &config.Config{
		ExpectedOperators: 237,
		Pipelines: []config.Check{
			{
				Name: "FactCalls", Kind: config.KindFreshness, Description: "call records",
				Table: "fact_calls", DateColumn: "calldate",
				WarnAfter: config.Duration{Duration: 12 * time.Hour},
				CritAfter: config.Duration{Duration: 24 * time.Hour},
			},
			{
				Name: "Operators", Kind: config.KindCount,
				Table: "dim_operators", Distinct: "operator_id", MinCount: 200,
			},
		},
	}
}

func TestRun_SendsSummaryCard(t *testing.T) {
	now := time.Date(2025, 10, 7, 17, 0, 0, 0, time.Local)
	wh := &fakeWarehouse{
		freshness: map[string]warehouse.FreshnessRow{
			"fact_calls": {
				LastRecord: now.Add(-2 * time.Hour),
				Today:      1500,
				Yesterday:  1200,
				Last7Days:  9800,
			},
		},
		distinct: map[string]int64{"dim_operators": 231},
	}
	card := &fakeCard{}
	rep := summary.New(summaryConfig(), wh, card, nil)
	rep.SetClock(func() time.Time { return now })

	if err := rep.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if card.title != "📊 Daily Pipeline Summary" {
		t.Errorf("title = %q", card.title)
	}
	if !strings.Contains(card.subtitle, "ALL SYSTEMS HEALTHY") {
		t.Errorf("subtitle = %q", card.subtitle)
	}
	if !strings.Contains(card.subtitle, "Tuesday, October 7, 2025") {
		t.Errorf("subtitle missing the date: %q", card.subtitle)
	}

	for _, want := range []string{
		"FactCalls",
		"call records",
		"Today: 1500",
		"📈", // more volume than yesterday
		"Records processed today: 1500",
		"Active operators: 231/237",
	} {
		if !strings.Contains(card.text, want) {
			t.Errorf("summary text missing %q:\n%s", want, card.text)
		}
	}
}

func TestRun_WorstStatusInSubtitle(t *testing.T) {
	now := time.Date(2025, 10, 7, 17, 0, 0, 0, time.Local)
	wh := &fakeWarehouse{
		freshness: map[string]warehouse.FreshnessRow{
			// Stale for 30h: critical.
			"fact_calls": {LastRecord: now.Add(-30 * time.Hour), Today: 0, Yesterday: 900},
		},
		distinct: map[string]int64{"dim_operators": 231},
	}
	card := &fakeCard{}
	rep := summary.New(summaryConfig(), wh, card, nil)
	rep.SetClock(func() time.Time { return now })

	if err := rep.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(card.subtitle, "ISSUES DETECTED") {
		t.Errorf("subtitle = %q, want critical label", card.subtitle)
	}
	if !strings.Contains(card.text, "❌") {
		t.Errorf("summary text missing critical marker:\n%s", card.text)
	}
}

func TestRun_SendErrorPropagates(t *testing.T) {
	wh := &fakeWarehouse{distinct: map[string]int64{"dim_operators": 231}}
	card := &fakeCard{err: errors.New("webhook down")}
	rep := summary.New(summaryConfig(), wh, card, nil)

	err := rep.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "webhook down") {
		t.Errorf("expected send error, got %v", err)
	}
}
