// Package escalate decides which notifications a status record warrants.
// The tracker remembers the previous status of each pipeline across process
// invocations so it can detect transitions and sustained-critical episodes.
// Its state never affects a computed status, only the decision to notify.
package escalate

import (
	"context"
	"log/slog"
	"time"

	"etlwatch/internal/status"
)

// DefaultFollowUpAfter is how long a pipeline must remain critical before a
// single follow-up escalation is sent.
const DefaultFollowUpAfter = time.Hour

// State is the per-pipeline escalation memory. ChangedAt marks the start of
// the current episode; FollowUpSent gates the one escalation per episode.
type State struct {
	Pipeline     string
	LastStatus   status.Status
	ChangedAt    time.Time
	FollowUpSent bool
	UpdatedAt    time.Time
}

// Store persists escalation state between invocations.
type Store interface {
	EscalationState(ctx context.Context, pipeline string) (*State, error)
	SaveEscalationState(ctx context.Context, s State) error
}

// Plan says which notifiers should fire for one record.
type Plan struct {
	SendChat   bool
	SendEmail  bool
	Escalation bool
	Reason     string
}

// Tracker applies the escalation transition table.
type Tracker struct {
	store         Store
	followUpAfter time.Duration
	logger        *slog.Logger
}

// New creates a Tracker. followUpAfter <= 0 uses DefaultFollowUpAfter; a nil
// logger uses the default logger.
func New(store Store, followUpAfter time.Duration, logger *slog.Logger) *Tracker {
	if followUpAfter <= 0 {
		followUpAfter = DefaultFollowUpAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, followUpAfter: followUpAfter, logger: logger}
}

// OnResult advances the pipeline's state and returns the notification plan.
// State is persisted before any notifier runs, so a later delivery failure
// never replays an alert; the next scheduled evaluation retries naturally.
func (t *Tracker) OnResult(ctx context.Context, rec status.Record) (Plan, error) {
	prev, err := t.store.EscalationState(ctx, rec.Pipeline)
	if err != nil {
		return Plan{}, err
	}

	now := rec.EvaluatedAt
	next := State{
		Pipeline:   rec.Pipeline,
		LastStatus: rec.Status,
		ChangedAt:  now,
		UpdatedAt:  now,
	}

	var plan Plan
	switch {
	case prev == nil:
		// First time this pipeline is seen.
		plan = planForNew(rec.Status)

	case rec.Status == prev.LastStatus:
		next.ChangedAt = prev.ChangedAt
		next.FollowUpSent = prev.FollowUpSent
		if rec.Status == status.Critical &&
			!prev.FollowUpSent &&
			now.Sub(prev.ChangedAt) >= t.followUpAfter {
			plan = Plan{SendChat: true, Escalation: true, Reason: "still critical"}
			next.FollowUpSent = true
		}

	case rec.Status == status.Critical:
		// New critical episode, whatever came before.
		plan = Plan{SendChat: true, SendEmail: true, Reason: "went critical"}

	case prev.LastStatus == status.Critical:
		// Episode over. A PENDING morning reset is silent; an observed
		// recovery is announced.
		if rec.Status == status.OK || rec.Status == status.Warning {
			plan = Plan{SendChat: true, Reason: "recovered"}
		}

	case rec.Status == status.Warning:
		plan = Plan{SendChat: true, Reason: "entered warning"}
	}

	if err := t.store.SaveEscalationState(ctx, next); err != nil {
		return Plan{}, err
	}

	if plan.SendChat || plan.SendEmail {
		t.logger.Info("notification planned",
			"pipeline", rec.Pipeline,
			"status", rec.Status.String(),
			"reason", plan.Reason,
			"escalation", plan.Escalation,
		)
	}
	return plan, nil
}

func planForNew(s status.Status) Plan {
	switch s {
	case status.Critical:
		return Plan{SendChat: true, SendEmail: true, Reason: "went critical"}
	case status.Warning:
		return Plan{SendChat: true, Reason: "entered warning"}
	default:
		return Plan{}
	}
}
