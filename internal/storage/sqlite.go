// Package storage persists evaluated status records and per-pipeline
// escalation state in a local SQLite database. Escalation state must
// survive across process invocations because each scheduled check runs as
// its own short-lived process.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"etlwatch/internal/escalate"
	"etlwatch/internal/status"
)

const schema = `
CREATE TABLE IF NOT EXISTS status_records (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    pipeline     TEXT NOT NULL,
    status       TEXT NOT NULL CHECK(status IN ('OK', 'WARNING', 'CRITICAL', 'PENDING')),
    detail       TEXT NOT NULL DEFAULT '',
    evaluated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_pipeline ON status_records(pipeline);
CREATE INDEX IF NOT EXISTS idx_records_pipeline_at ON status_records(pipeline, evaluated_at DESC);

CREATE TABLE IF NOT EXISTS escalation_state (
    pipeline       TEXT PRIMARY KEY,
    last_status    TEXT NOT NULL,
    changed_at     TEXT NOT NULL,
    follow_up_sent INTEGER NOT NULL DEFAULT 0,
    updated_at     TEXT NOT NULL
);
`

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertRecord persists an evaluated status record.
func (d *DB) InsertRecord(ctx context.Context, r status.Record) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO status_records (pipeline, status, detail, evaluated_at) VALUES (?, ?, ?, ?)`,
		r.Pipeline,
		r.Status.String(),
		r.Detail,
		r.EvaluatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting record for %q: %w", r.Pipeline, err)
	}
	return nil
}

// LatestRecords returns the most recent record for each pipeline.
func (d *DB) LatestRecords(ctx context.Context) ([]status.Record, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT pipeline, status, detail, evaluated_at
		FROM status_records
		WHERE id IN (
			SELECT MAX(id) FROM status_records GROUP BY pipeline
		)
		ORDER BY pipeline
	`)
	if err != nil {
		return nil, fmt.Errorf("querying latest records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// History returns paginated records for a pipeline, newest first, plus the
// total count.
func (d *DB) History(ctx context.Context, pipeline string, limit, offset int) ([]status.Record, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM status_records WHERE pipeline = ?`, pipeline,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting records for %q: %w", pipeline, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT pipeline, status, detail, evaluated_at FROM status_records
		 WHERE pipeline = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		pipeline, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", pipeline, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// PruneRecords deletes records older than keep and returns the number removed.
func (d *DB) PruneRecords(ctx context.Context, keep time.Duration) (int64, error) {
	cutoff := time.Now().Add(-keep).UTC().Format(time.RFC3339Nano)
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM status_records WHERE evaluated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// EscalationState returns the stored state for a pipeline, or nil if none.
func (d *DB) EscalationState(ctx context.Context, pipeline string) (*escalate.State, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT pipeline, last_status, changed_at, follow_up_sent, updated_at
		 FROM escalation_state WHERE pipeline = ?`, pipeline)

	var (
		s                    escalate.State
		statusStr            string
		changedAt, updatedAt string
		followUp             int
	)
	err := row.Scan(&s.Pipeline, &statusStr, &changedAt, &followUp, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying escalation state for %q: %w", pipeline, err)
	}

	if s.LastStatus, err = status.Parse(statusStr); err != nil {
		return nil, fmt.Errorf("escalation state for %q: %w", pipeline, err)
	}
	if s.ChangedAt, err = parseTime(changedAt); err != nil {
		return nil, fmt.Errorf("escalation state for %q: %w", pipeline, err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("escalation state for %q: %w", pipeline, err)
	}
	s.FollowUpSent = followUp != 0
	return &s, nil
}

// SaveEscalationState upserts the state for a pipeline. The update is
// timestamp-guarded: a stale writer (an overlapping run that evaluated
// earlier) never clobbers a newer row, giving last-writer-wins semantics
// without a lock protocol.
func (d *DB) SaveEscalationState(ctx context.Context, s escalate.State) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO escalation_state (pipeline, last_status, changed_at, follow_up_sent, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pipeline) DO UPDATE SET
			last_status    = excluded.last_status,
			changed_at     = excluded.changed_at,
			follow_up_sent = excluded.follow_up_sent,
			updated_at     = excluded.updated_at
		WHERE excluded.updated_at >= escalation_state.updated_at
	`,
		s.Pipeline,
		s.LastStatus.String(),
		s.ChangedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(s.FollowUpSent),
		s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving escalation state for %q: %w", s.Pipeline, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fallback without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
		}
	}
	return t, nil
}

func scanRecords(rows *sql.Rows) ([]status.Record, error) {
	var records []status.Record
	for rows.Next() {
		var (
			r           status.Record
			statusStr   string
			evaluatedAt string
		)
		if err := rows.Scan(&r.Pipeline, &statusStr, &r.Detail, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		st, err := status.Parse(statusStr)
		if err != nil {
			return nil, err
		}
		r.Status = st
		if r.EvaluatedAt, err = parseTime(evaluatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record rows: %w", err)
	}
	return records, nil
}
