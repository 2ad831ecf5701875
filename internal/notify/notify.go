// Package notify delivers batches of status records to the configured
// alert channels. Delivery failures are logged and surfaced as errors, but
// are never retried in a tight loop: the next scheduled evaluation is the
// retry.
package notify

import "etlwatch/internal/status"

// emoji returns the marker used in chat and email bodies for a status.
func emoji(s status.Status) string {
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

// countByStatus tallies a batch for summary lines.
func countByStatus(records []status.Record) (ok, warning, critical int) {
	for _, r := range records {
		switch r.Status {
		case status.OK:
			ok++
		case status.Warning:
			warning++
		case status.Critical:
			critical++
		}
	}
	return ok, warning, critical
}
