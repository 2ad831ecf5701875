package probe

import (
	"context"
	"time"

	"etlwatch/internal/config"
)

type freshnessProbe struct {
	check config.Check
	wh    Warehouse
}

func (p *freshnessProbe) Measure(ctx context.Context) Result {
	now := time.Now()
	result := Result{
		Pipeline:   p.check.Name,
		Kind:       p.check.Kind,
		MeasuredAt: now,
	}

	row, err := p.wh.Freshness(ctx, p.check.Table, p.check.DateColumn, p.check.ExtraWhere)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	result.Count = row.Today
	result.Yesterday = row.Yesterday
	result.Last7Days = row.Last7Days
	result.LastRecord = row.LastRecord
	if !row.LastRecord.IsZero() {
		result.Age = now.Sub(row.LastRecord)
	}
	return result
}
