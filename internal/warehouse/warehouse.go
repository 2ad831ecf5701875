// Package warehouse provides read-only access to the analytics warehouse.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FreshnessRow is the raw measurement for a freshness check: the newest
// record within the 7-day window plus daily row counts around it.
type FreshnessRow struct {
	LastRecord time.Time
	Today      int64
	Yesterday  int64
	Last7Days  int64
}

// Pool wraps a pgx connection pool with a per-query timeout so a stuck
// warehouse cannot block a cron slot indefinitely.
type Pool struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// Connect opens a pool against dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string, queryTimeout time.Duration) (*Pool, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(pingCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging warehouse: %w", err)
	}
	return &Pool{pool: pool, timeout: queryTimeout}, nil
}

func (p *Pool) Close() {
	p.pool.Close()
}

// Freshness measures the age and recent volume of table. extraWhere, when
// set, is appended verbatim and must begin with "AND".
func (p *Pool) Freshness(ctx context.Context, table, dateColumn, extraWhere string) (FreshnessRow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT
			MAX(%[1]s),
			COUNT(*) FILTER (WHERE %[1]s::date = CURRENT_DATE),
			COUNT(*) FILTER (WHERE %[1]s::date = CURRENT_DATE - 1),
			COUNT(*)
		FROM %[2]s
		WHERE %[1]s >= CURRENT_DATE - INTERVAL '7 days' %[3]s`,
		dateColumn, table, extraWhere)

	var row FreshnessRow
	var last *time.Time
	err := p.pool.QueryRow(ctx, query).Scan(&last, &row.Today, &row.Yesterday, &row.Last7Days)
	if err != nil {
		return FreshnessRow{}, fmt.Errorf("querying freshness of %s: %w", table, err)
	}
	if last != nil {
		row.LastRecord = *last
	}
	return row, nil
}

// CountToday returns the number of rows in table dated today.
func (p *Pool) CountToday(ctx context.Context, table, dateColumn, extraWhere string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s::date = CURRENT_DATE %s`,
		table, dateColumn, extraWhere)

	var n int64
	if err := p.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting today's rows in %s: %w", table, err)
	}
	return n, nil
}

// DistinctCount returns the number of distinct values of column in table.
func (p *Pool) DistinctCount(ctx context.Context, table, column, extraWhere string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT COUNT(DISTINCT %s) FROM %s WHERE TRUE %s`,
		column, table, extraWhere)

	var n int64
	if err := p.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting distinct %s in %s: %w", column, table, err)
	}
	return n, nil
}
