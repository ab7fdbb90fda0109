// Package models defines the core data structures for the nurture scheduling engine.
//
// It includes leads, conversation messages, follow-up jobs, and notifications,
// which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Channel identifies a delivery platform for outbound messages.
type Channel string

const (
	ChannelInstagram Channel = "instagram"
	ChannelEmail     Channel = "email"
	ChannelWhatsApp  Channel = "whatsapp"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelInstagram, ChannelEmail, ChannelWhatsApp:
		return true
	default:
		return false
	}
}

// LeadStatus represents the lifecycle state of a lead.
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "new"
	LeadStatusOpen          LeadStatus = "open"
	LeadStatusReplied       LeadStatus = "replied"
	LeadStatusConverted     LeadStatus = "converted"
	LeadStatusNotInterested LeadStatus = "not_interested"
	LeadStatusCold          LeadStatus = "cold"
)

// IsTerminal reports whether the status is terminal. Terminal statuses must not
// be silently regressed by automated classification.
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusConverted || s == LeadStatusNotInterested
}

// Direction indicates whether a message was received from or sent to a lead.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// JobStatus represents the lifecycle state of a follow-up job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// MaxFollowUpAttempts is the delivery retry cap before a job is marked failed permanently.
const MaxFollowUpAttempts = 3

// MaxFollowUpsPerLead caps how many automated follow-ups a lead may receive.
const MaxFollowUpsPerLead = 5

// Validation errors shared across modules.
var (
	ErrEmptyLeadID      = errors.New("lead ID cannot be empty")
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrInvalidChannel   = errors.New("invalid channel")
	ErrEmptyBody        = errors.New("message body cannot be empty")
	ErrInvalidDirection = errors.New("invalid message direction")
)

// Lead identifies a prospective contact owned by a user.
//
// Status transitions are monotonic with respect to terminal states: once
// converted or not_interested, automated classification must not regress the
// status without explicit human override. Leads are never hard-deleted.
type Lead struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	Channel       Channel    `json:"channel"`
	ExternalID    string     `json:"external_id"` // platform-specific handle (IG user ID)
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Status        LeadStatus `json:"status"`
	FollowUpCount int        `json:"follow_up_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	AIPaused      bool       `json:"ai_paused"`
	Metadata      Metadata   `json:"metadata,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ContactHandle returns the handle to use when sending to the lead on the
// given channel, or empty if the lead has no usable contact info there.
func (l *Lead) ContactHandle(c Channel) string {
	switch c {
	case ChannelInstagram:
		return l.ExternalID
	case ChannelEmail:
		return l.Email
	case ChannelWhatsApp:
		return l.Phone
	default:
		return ""
	}
}

// Message is one turn in a conversation with a lead. Messages are immutable
// once created and ordered by CreatedAt within a lead.
type Message struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	UserID    string    `json:"user_id"`
	Channel   Channel   `json:"channel"`
	Direction Direction `json:"direction"`
	Body      string    `json:"body"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks required message fields before persistence.
func (m *Message) Validate() error {
	if m.LeadID == "" {
		return ErrEmptyLeadID
	}
	if m.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidChannel(m.Channel) {
		return ErrInvalidChannel
	}
	if m.Direction != DirectionInbound && m.Direction != DirectionOutbound {
		return ErrInvalidDirection
	}
	if m.Body == "" {
		return ErrEmptyBody
	}
	return nil
}

// FollowUpJob is a scheduled unit of outbound work for a lead.
//
// At most one pending or processing job per lead is actionable at a time; the
// processing status is the mutual-exclusion primitive that prevents two
// overlapping worker ticks from double-sending.
type FollowUpJob struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	LeadID       string     `json:"lead_id"`
	Channel      Channel    `json:"channel"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	Status       JobStatus  `json:"status"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Context      Metadata   `json:"context,omitempty"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Ordinal returns the follow-up ordinal recorded in the job context, or 0.
func (j *FollowUpJob) Ordinal() int {
	if j.Context == nil {
		return 0
	}
	return j.Context.Int("followup_number")
}

// CommentReplyJob is a due comment-reply automation action. These live in a
// separate due-queue that the worker drains before the generic follow-up queue.
type CommentReplyJob struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CommentID   string    `json:"comment_id"`
	RecipientID string    `json:"recipient_id"` // IG user to DM in response to their comment
	ReplyText   string    `json:"reply_text"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification surfaces a scheduling or failure event to the owning user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"` // e.g. "followup_failed", "worker_alert"
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BrandProfile holds the tone/voice context injected into reply prompts.
type BrandProfile struct {
	UserID        string   `json:"user_id"`
	BusinessName  string   `json:"business_name"`
	VoiceRules    string   `json:"voice_rules"`
	BrandSnippets []string `json:"brand_snippets,omitempty"`
}
