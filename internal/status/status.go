// Package status computes pipeline health statuses. Evaluation is a pure
// function of a probe measurement and the pipeline's threshold rule; it
// never performs I/O and never fails.
package status

import (
	"encoding/json"
	"fmt"
	"time"

	"etlwatch/internal/config"
	"etlwatch/internal/probe"
)

// Status is a pipeline health state. The values form a total order used to
// pick the worst status of a batch; Pending ranks lowest because it means
// the expected event has not happened yet, not that anything is wrong.
type Status int

const (
	Pending Status = iota
	OK
	Warning
	Critical
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Parse converts a stored status string back to a Status.
func Parse(s string) (Status, error) {
	switch s {
	case "PENDING":
		return Pending, nil
	case "OK":
		return OK, nil
	case "WARNING":
		return Warning, nil
	case "CRITICAL":
		return Critical, nil
	default:
		return Pending, fmt.Errorf("unknown status %q", s)
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Record is the evaluated status of one pipeline at one point in time.
type Record struct {
	Pipeline    string    `json:"pipeline"`
	Status      Status    `json:"status"`
	Detail      string    `json:"detail"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Worst returns the highest-ranked status in the batch. An empty or
// all-Pending batch is Pending.
func Worst(records []Record) Status {
	worst := Pending
	for _, r := range records {
		if r.Status > worst {
			worst = r.Status
		}
	}
	return worst
}

// Evaluate applies the pipeline's threshold rule to a probe measurement.
// Rules are tried in priority order; the first match wins:
//
//  1. The expected event time has not yet occurred today → PENDING.
//  2. The probe failed to obtain a value → CRITICAL.
//  3. Freshness: age > critical → CRITICAL; age > warning → WARNING; else OK.
//  4. Count: count < minimum → CRITICAL; else OK (no warning tier).
//  5. File: present → OK; missing before deadline → PENDING; after → CRITICAL.
func Evaluate(check config.Check, res probe.Result, now time.Time) Record {
	rec := Record{
		Pipeline:    check.Name,
		EvaluatedAt: now,
	}

	if !check.NotBefore.IsZero() && now.Before(check.NotBefore.On(now)) {
		rec.Status = Pending
		rec.Detail = fmt.Sprintf("not due until %s", check.NotBefore)
		return rec
	}

	if res.Err != "" {
		rec.Status = Critical
		rec.Detail = "probe failure: " + res.Err
		return rec
	}

	switch check.Kind {
	case config.KindFreshness:
		if res.LastRecord.IsZero() {
			rec.Status = Critical
			rec.Detail = "no data in the last 7 days"
			return rec
		}
		hours := int(res.Age.Hours())
		rec.Detail = fmt.Sprintf("%dh since last record, %d records today", hours, res.Count)
		switch {
		case res.Age > check.CritAfter.Duration:
			rec.Status = Critical
		case res.Age > check.WarnAfter.Duration:
			rec.Status = Warning
		default:
			rec.Status = OK
		}

	case config.KindCount:
		if res.Count < check.MinCount {
			rec.Status = Critical
			rec.Detail = fmt.Sprintf("%d records (minimum %d)", res.Count, check.MinCount)
		} else {
			rec.Status = OK
			rec.Detail = fmt.Sprintf("%d records", res.Count)
		}

	case config.KindFile:
		switch {
		case res.Exists:
			rec.Status = OK
			rec.Detail = "file present"
		case now.Before(check.Deadline.On(now)):
			rec.Status = Pending
			rec.Detail = fmt.Sprintf("file not yet due, deadline %s", check.Deadline)
		default:
			rec.Status = Critical
			rec.Detail = fmt.Sprintf("file missing after %s deadline", check.Deadline)
		}

	default:
		// Unreachable for validated configs.
		rec.Status = Critical
		rec.Detail = fmt.Sprintf("unknown check kind %q", check.Kind)
	}

	return rec
}
