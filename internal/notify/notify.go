// Package notify records in-app notifications for users and escalates
// operational alerts to admins. Delivery is fire-and-forget: failures are
// logged but never propagated, so a broken notification path cannot stall
// message processing.
package notify

import (
	"log/slog"
	"time"

	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/store"
	"github.com/keelhq/nurture/internal/util"
)

// Notifier creates user notifications and admin alerts.
type Notifier struct {
	store store.NotificationStore
}

// NewNotifier creates a Notifier backed by the given store.
func NewNotifier(st store.NotificationStore) *Notifier {
	return &Notifier{store: st}
}

// Notify records a notification for one user. Errors are logged and
// swallowed.
func (n *Notifier) Notify(userID, notifType, title, message string, meta models.Metadata) {
	notif := &models.Notification{
		ID:        util.GenerateRandomID("notif_", 16),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notifType,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}
	if err := n.store.CreateNotification(notif); err != nil {
		slog.Error("Notifier.Notify: failed to create notification", "userID", userID, "type", notifType, "error", err)
		return
	}
	slog.Debug("Notifier.Notify: notification created", "userID", userID, "type", notifType)
}

// AlertAdmins records the same notification for every admin user. Used for
// worker-health escalation.
func (n *Notifier) AlertAdmins(notifType, title, message string, meta models.Metadata) {
	admins, err := n.store.ListAdminUserIDs()
	if err != nil {
		slog.Error("Notifier.AlertAdmins: failed to list admins", "error", err)
		return
	}
	if len(admins) == 0 {
		slog.Warn("Notifier.AlertAdmins: no admin users configured", "type", notifType)
		return
	}
	for _, userID := range admins {
		n.Notify(userID, notifType, title, message, meta)
	}
}
