package notify

import (
	"testing"

	"github.com/keelhq/nurture/internal/store"
)

func TestNotifyCreatesNotification(t *testing.T) {
	st := store.NewInMemoryStore()
	n := NewNotifier(st)

	n.Notify("user-1", "followup_failed", "Follow-up failed", "could not reach lead", nil)

	notifs := st.Notifications()
	if len(notifs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifs))
	}
	got := notifs[0]
	if got.UserID != "user-1" {
		t.Errorf("expected userID user-1, got %s", got.UserID)
	}
	if got.Type != "followup_failed" {
		t.Errorf("expected type followup_failed, got %s", got.Type)
	}
	if got.ID == "" {
		t.Error("expected notification ID to be generated")
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestAlertAdminsNotifiesEveryAdmin(t *testing.T) {
	st := store.NewInMemoryStore()
	st.SetAdminUsers("admin-1", "admin-2")
	n := NewNotifier(st)

	n.AlertAdmins("worker_alert", "Worker failed", "follow-up worker crossed error threshold", nil)

	notifs := st.Notifications()
	if len(notifs) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifs))
	}
	seen := make(map[string]bool)
	for _, notif := range notifs {
		seen[notif.UserID] = true
		if notif.Type != "worker_alert" {
			t.Errorf("expected type worker_alert, got %s", notif.Type)
		}
	}
	if !seen["admin-1"] || !seen["admin-2"] {
		t.Errorf("expected alerts for both admins, got %v", seen)
	}
}

func TestAlertAdminsNoAdminsIsNoOp(t *testing.T) {
	st := store.NewInMemoryStore()
	n := NewNotifier(st)

	n.AlertAdmins("worker_alert", "Worker failed", "no admins to tell", nil)

	if got := len(st.Notifications()); got != 0 {
		t.Errorf("expected no notifications, got %d", got)
	}
}
