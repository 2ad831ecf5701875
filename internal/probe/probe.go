// Package probe measures one factual property of a data source or file per
// pipeline. A probe never returns a Go error from Measure: a failure to
// obtain a value is carried in Result.Err so one broken data source cannot
// abort the rest of a check cycle.
package probe

import (
	"context"
	"fmt"

	"etlwatch/internal/config"
	"etlwatch/internal/warehouse"
)

// Warehouse is the subset of warehouse queries probes need. Satisfied by
// *warehouse.Pool; faked in tests.
type Warehouse interface {
	Freshness(ctx context.Context, table, dateColumn, extraWhere string) (warehouse.FreshnessRow, error)
	CountToday(ctx context.Context, table, dateColumn, extraWhere string) (int64, error)
	DistinctCount(ctx context.Context, table, column, extraWhere string) (int64, error)
}

// Probe answers one factual question about a pipeline.
type Probe interface {
	Measure(ctx context.Context) Result
}

// New returns the appropriate Probe for the given check. wh may be nil for
// file checks.
func New(check config.Check, wh Warehouse) (Probe, error) {
	switch check.Kind {
	case config.KindFreshness:
		return &freshnessProbe{check: check, wh: wh}, nil
	case config.KindCount:
		return &countProbe{check: check, wh: wh}, nil
	case config.KindFile:
		return &fileProbe{check: check}, nil
	default:
		return nil, fmt.Errorf("unknown check kind %q", check.Kind)
	}
}
