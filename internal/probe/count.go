package probe

import (
	"context"
	"time"

	"etlwatch/internal/config"
)

type countProbe struct {
	check config.Check
	wh    Warehouse
}

func (p *countProbe) Measure(ctx context.Context) Result {
	result := Result{
		Pipeline:   p.check.Name,
		Kind:       p.check.Kind,
		MeasuredAt: time.Now(),
	}

	var (
		n   int64
		err error
	)
	if p.check.Distinct != "" {
		n, err = p.wh.DistinctCount(ctx, p.check.Table, p.check.Distinct, p.check.ExtraWhere)
	} else {
		n, err = p.wh.CountToday(ctx, p.check.Table, p.check.DateColumn, p.check.ExtraWhere)
	}
	if err != nil {
		result.Err = err.Error()
		return result
	}

	result.Count = n
	return result
}
