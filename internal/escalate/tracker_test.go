package escalate_test

import (
	"context"
	"testing"
	"time"

	"etlwatch/internal/escalate"
	"etlwatch/internal/status"
)

// memStore is an in-memory escalate.Store.
type memStore struct {
	states map[string]escalate.State
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]escalate.State)}
}

func (m *memStore) EscalationState(_ context.Context, pipeline string) (*escalate.State, error) {
	s, ok := m.states[pipeline]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (m *memStore) SaveEscalationState(_ context.Context, s escalate.State) error {
	m.states[s.Pipeline] = s
	return nil
}

var base = time.Date(2025, 10, 7, 9, 0, 0, 0, time.UTC)

func record(name string, s status.Status, at time.Time) status.Record {
	return status.Record{Pipeline: name, Status: s, Detail: "test", EvaluatedAt: at}
}

func onResult(t *testing.T, tr *escalate.Tracker, rec status.Record) escalate.Plan {
	t.Helper()
	plan, err := tr.OnResult(context.Background(), rec)
	if err != nil {
		t.Fatalf("OnResult: %v", err)
	}
	return plan
}

func TestTracker_OKToOK_NoNotification(t *testing.T) {
	tr := escalate.New(newMemStore(), time.Hour, nil)

	for i := 0; i < 5; i++ {
		plan := onResult(t, tr, record("etl", status.OK, base.Add(time.Duration(i)*time.Minute)))
		if plan.SendChat || plan.SendEmail {
			t.Fatalf("cycle %d: expected no notification for repeated OK, got %+v", i, plan)
		}
	}
}

func TestTracker_FirstCritical_ChatAndEmail(t *testing.T) {
	tr := escalate.New(newMemStore(), time.Hour, nil)

	plan := onResult(t, tr, record("etl", status.Critical, base))
	if !plan.SendChat || !plan.SendEmail {
		t.Errorf("expected chat and email for a new critical episode, got %+v", plan)
	}
	if plan.Escalation {
		t.Error("first critical alert should not be marked as an escalation")
	}
}

func TestTracker_FollowUpTiming(t *testing.T) {
	tr := escalate.New(newMemStore(), time.Hour, nil)

	onResult(t, tr, record("etl", status.Critical, base))

	// 59 minutes in: no follow-up yet.
	plan := onResult(t, tr, record("etl", status.Critical, base.Add(59*time.Minute)))
	if plan.SendChat || plan.SendEmail {
		t.Errorf("expected no follow-up at 59 minutes, got %+v", plan)
	}

	// 61 minutes in: exactly one follow-up.
	plan = onResult(t, tr, record("etl", status.Critical, base.Add(61*time.Minute)))
	if !plan.SendChat || !plan.Escalation {
		t.Errorf("expected escalation chat at 61 minutes, got %+v", plan)
	}
	if plan.SendEmail {
		t.Error("follow-up should not resend email")
	}

	// 90 minutes in: no second follow-up.
	plan = onResult(t, tr, record("etl", status.Critical, base.Add(90*time.Minute)))
	if plan.SendChat || plan.SendEmail {
		t.Errorf("expected no additional follow-up at 90 minutes, got %+v", plan)
	}
}

func TestTracker_RecoveryNotifiesAndResets(t *testing.T) {
	tr := escalate.New(newMemStore(), time.Hour, nil)

	onResult(t, tr, record("etl", status.Critical, base))
	plan := onResult(t, tr, record("etl", status.OK, base.Add(10*time.Minute)))
	if !plan.SendChat {
		t.Errorf("expected recovery chat, got %+v", plan)
	}
	if plan.SendEmail {
		t.Error("recovery should not email")
	}
}

func TestTracker_NewEpisodeAfterRecovery(t *testing.T) {
	tr := escalate.New(newMemStore(), time.Hour, nil)

	// First episode runs 50 minutes, then recovers.
	onResult(t, tr, record("etl", status.Critical, base))
	onResult(t, tr, record("etl", status.OK, base.Add(50*time.Minute)))

	// New episode: the follow-up timer starts fresh, not at 50 minutes.
	plan := onResult(t, tr, record("etl", status.Critical, base.Add(55*time.Minute)))
	if !plan.SendChat || !plan.SendEmail {
		t.Fatalf("expected full alert for new episode, got %+v", plan)
	}

	// 30 minutes into the new episode (85 total): no follow-up.
	plan = onResult(t, tr, record("etl", status.Critical, base.Add(85*time.Minute)))
	if plan.SendChat {
		t.Errorf("expected no follow-up 30 minutes into the new episode, got %+v", plan)
	}

	// 65 minutes into the new episode: follow-up fires.
	plan = onResult(t, tr, record("etl", status.Critical, base.Add(120*time.Minute)))
	if !plan.SendChat || !plan.Escalation {
		t.Errorf("expected follow-up 65 minutes into the new episode, got %+v", plan)
	}
}

func TestTracker_CriticalToWarning_IsRecovery(t *testing.T) {
	tr := escalate.New(newMemStore(), time.Hour, nil)

	onResult(t, tr, record("etl", status.Critical, base))
	plan := onResult(t, tr, record("etl", status.Warning, base.Add(5*time.Minute)))
	if !plan.SendChat {
		t.Errorf("expected chat for critical→warning, got %+v", plan)
	}
}

func TestTracker_FirstWarning_ChatOnly(t *testing.T) {
	tr := escalate.New(newMemStore(), time.Hour, nil)

	plan := onResult(t, tr, record("etl", status.Warning, base))
	if !plan.SendChat || plan.SendEmail {
		t.Errorf("expected chat only for first warning, got %+v", plan)
	}

	// Repeat warnings stay silent.
	plan = onResult(t, tr, record("etl", status.Warning, base.Add(5*time.Minute)))
	if plan.SendChat {
		t.Errorf("expected no notification for warning→warning, got %+v", plan)
	}
}

func TestTracker_PendingAfterCritical_SilentReset(t *testing.T) {
	store := newMemStore()
	tr := escalate.New(store, time.Hour, nil)

	onResult(t, tr, record("etl", status.Critical, base))
	plan := onResult(t, tr, record("etl", status.Pending, base.Add(12*time.Hour)))
	if plan.SendChat || plan.SendEmail {
		t.Errorf("expected silent reset for critical→pending, got %+v", plan)
	}

	// The episode is gone: the next critical is a fresh one.
	plan = onResult(t, tr, record("etl", status.Critical, base.Add(13*time.Hour)))
	if !plan.SendChat || !plan.SendEmail {
		t.Errorf("expected fresh episode after pending reset, got %+v", plan)
	}
}

func TestTracker_StateAdvancesPerPipeline(t *testing.T) {
	store := newMemStore()
	tr := escalate.New(store, time.Hour, nil)

	onResult(t, tr, record("a", status.Critical, base))
	plan := onResult(t, tr, record("b", status.Critical, base))
	if !plan.SendChat || !plan.SendEmail {
		t.Errorf("pipeline b should alert independently of a, got %+v", plan)
	}

	if len(store.states) != 2 {
		t.Errorf("expected state per pipeline, got %d entries", len(store.states))
	}
}
