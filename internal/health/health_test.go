package health

import (
	"testing"
	"time"

	"github.com/keelhq/nurture/internal/notify"
	"github.com/keelhq/nurture/internal/store"
)

func snapshotFor(t *testing.T, m *Monitor, name string) WorkerState {
	t.Helper()
	for _, w := range m.Snapshot() {
		if w.Name == name {
			return w
		}
	}
	t.Fatalf("worker %q not found in snapshot", name)
	return WorkerState{}
}

func TestRegisterAndRecordSuccess(t *testing.T) {
	m := NewMonitor(nil)
	m.RegisterWorker("followup")

	w := snapshotFor(t, m, "followup")
	if w.Status != StatusHealthy {
		t.Errorf("expected healthy after register, got %s", w.Status)
	}
	if w.RunCount != 0 || w.ErrorCount != 0 {
		t.Errorf("expected zeroed counters, got runs=%d errors=%d", w.RunCount, w.ErrorCount)
	}

	m.RecordError("followup", "boom")
	m.RecordSuccess("followup")

	w = snapshotFor(t, m, "followup")
	if w.Status != StatusHealthy {
		t.Errorf("expected success to restore healthy, got %s", w.Status)
	}
	if w.RunCount != 1 {
		t.Errorf("expected runCount 1, got %d", w.RunCount)
	}
	if w.LastError != "" {
		t.Errorf("expected lastError cleared, got %q", w.LastError)
	}
}

func TestErrorEscalation(t *testing.T) {
	st := store.NewInMemoryStore()
	st.SetAdminUsers("admin-1", "admin-2")
	m := NewMonitor(notify.NewNotifier(st))
	m.RegisterWorker("followup")

	for i := 0; i < 3; i++ {
		m.RecordError("followup", "transient")
	}
	w := snapshotFor(t, m, "followup")
	if w.Status != StatusDegraded {
		t.Errorf("expected degraded at 3 errors, got %s", w.Status)
	}
	if got := len(st.Notifications()); got != 0 {
		t.Errorf("expected no alerts while degraded, got %d", got)
	}

	m.RecordError("followup", "still broken")
	w = snapshotFor(t, m, "followup")
	if w.Status != StatusFailed {
		t.Errorf("expected failed at 4 errors, got %s", w.Status)
	}
	if got := len(st.Notifications()); got != 2 {
		t.Errorf("expected one alert per admin, got %d notifications", got)
	}

	// Staying failed must not re-alert.
	m.RecordError("followup", "still broken")
	if got := len(st.Notifications()); got != 2 {
		t.Errorf("expected no duplicate alerts, got %d notifications", got)
	}
}

func TestRecordErrorUnknownWorkerRegisters(t *testing.T) {
	m := NewMonitor(nil)
	m.RecordError("ad-hoc", "oops")
	w := snapshotFor(t, m, "ad-hoc")
	if w.ErrorCount != 1 || w.Status != StatusDegraded {
		t.Errorf("expected implicit registration with one error, got %+v", w)
	}
}

func TestSelfCheckDemotesStaleWorkers(t *testing.T) {
	m := NewMonitor(nil)
	current := time.Now()
	m.now = func() time.Time { return current }

	m.RegisterWorker("followup")
	m.RegisterWorker("comment-reply")
	m.RecordSuccess("comment-reply")

	// Advance 31 minutes for followup only; comment-reply runs again.
	current = current.Add(31 * time.Minute)
	m.RecordSuccess("comment-reply")
	m.selfCheck()

	if w := snapshotFor(t, m, "followup"); w.Status != StatusDegraded {
		t.Errorf("expected stale worker demoted to degraded, got %s", w.Status)
	}
	if w := snapshotFor(t, m, "comment-reply"); w.Status != StatusHealthy {
		t.Errorf("expected active worker to stay healthy, got %s", w.Status)
	}
}

func TestSelfCheckLeavesDegradedAlone(t *testing.T) {
	m := NewMonitor(nil)
	current := time.Now()
	m.now = func() time.Time { return current }

	m.RegisterWorker("followup")
	m.RecordError("followup", "boom")
	current = current.Add(time.Hour)
	m.selfCheck()

	// Staleness only demotes healthy workers; degraded stays degraded.
	if w := snapshotFor(t, m, "followup"); w.Status != StatusDegraded {
		t.Errorf("expected degraded unchanged, got %s", w.Status)
	}
}
