// Package store provides storage backends for the nurture scheduling engine.
//
// It defines the persistence interface consumed by the follow-up worker and
// ships three implementations: SQLite, PostgreSQL, and an in-memory store
// used by tests.
package store

import (
	"strings"
	"time"

	"github.com/keelhq/nurture/internal/models"
)

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Connection URLs
// and key=value forms are Postgres; anything else is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string (file path for SQLite,
// connection URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// LeadStore provides lead CRUD operations. Leads are soft-lifecycle only and
// never hard-deleted.
type LeadStore interface {
	CreateLead(l *models.Lead) error
	GetLead(id string) (*models.Lead, error)
	ListLeadsByUser(userID string) ([]models.Lead, error)

	// UpdateLeadStatus sets the lifecycle status. Callers are responsible for
	// the terminal-state monotonicity policy (conversation.ShouldCommit).
	UpdateLeadStatus(id string, status models.LeadStatus) error

	// RecordLeadSend increments the lead's follow-up counter and stamps the
	// last-message time after a confirmed outbound send.
	RecordLeadSend(id string, at time.Time) error

	// SetLeadAIPaused toggles automated messaging for the lead.
	SetLeadAIPaused(id string, paused bool) error
}

// MessageStore persists conversation turns. Messages are immutable once created.
type MessageStore interface {
	CreateMessage(m *models.Message) error

	// GetMessagesByLead returns up to limit most recent messages for the lead,
	// ordered ascending by CreatedAt. limit <= 0 returns the full history.
	GetMessagesByLead(leadID string, limit int) ([]models.Message, error)
}

// FollowUpQueue is the durable follow-up job queue.
type FollowUpQueue interface {
	// EnqueueFollowUp inserts a new pending job. If a pending or processing
	// job already exists for the same lead, the existing job's ID is returned
	// and no duplicate is inserted.
	EnqueueFollowUp(job *models.FollowUpJob) (string, error)

	// ClaimDueFollowUps marks up to limit pending jobs whose scheduled_at <=
	// now as processing, ordered by scheduled_at ascending, and returns them.
	// The processing status is the sole concurrency guard against overlapping
	// worker ticks.
	ClaimDueFollowUps(now time.Time, limit int) ([]models.FollowUpJob, error)

	// CompleteFollowUp marks a job as completed.
	CompleteFollowUp(id string) error

	// FailFollowUp records a delivery failure. The job returns to pending
	// with scheduled_at = retryAt until the retry cap is reached, at which
	// point it is marked failed permanently. Returns whether the failure was
	// permanent.
	FailFollowUp(id string, errMsg string, retryAt time.Time) (permanent bool, err error)

	// CancelFollowUp marks a job as canceled (e.g. lead paused or removed).
	CancelFollowUp(id string) error

	// RequeueStaleProcessing resets jobs stuck in processing since before
	// staleBefore back to pending (crash recovery at startup).
	RequeueStaleProcessing(staleBefore time.Time) (int, error)

	// CountFailedFollowUpsSince counts jobs that failed permanently at or
	// after the given time. Used by the daily failure digest.
	CountFailedFollowUpsSince(since time.Time) (int, error)

	GetFollowUp(id string) (*models.FollowUpJob, error)
}

// CommentReplyQueue holds due comment-reply automation actions, drained ahead
// of the generic follow-up queue on each worker tick.
type CommentReplyQueue interface {
	EnqueueCommentReply(job *models.CommentReplyJob) (string, error)
	ClaimDueCommentReplies(now time.Time, limit int) ([]models.CommentReplyJob, error)
	CompleteCommentReply(id string) error
	FailCommentReply(id string, errMsg string) error
}

// NotificationStore surfaces events to users.
type NotificationStore interface {
	CreateNotification(n *models.Notification) error

	// ListAdminUserIDs returns the user IDs with the admin role, used for
	// worker-health alert escalation.
	ListAdminUserIDs() ([]string, error)
}

// BrandStore supplies brand/voice context for prompt assembly.
type BrandStore interface {
	// GetBrandProfile returns the profile for the user, or nil if none exists.
	GetBrandProfile(userID string) (*models.BrandProfile, error)
}

// Store is the full persistence surface consumed by the worker and its
// collaborators.
type Store interface {
	LeadStore
	MessageStore
	FollowUpQueue
	CommentReplyQueue
	NotificationStore
	BrandStore

	Close() error
}
