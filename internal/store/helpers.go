package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keelhq/nurture/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows so scan helpers work with both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalMetadata serializes a metadata map to JSON for storage. Empty maps
// are stored as NULL.
func marshalMetadata(m models.Metadata) interface{} {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		slog.Error("store.marshalMetadata failed", "error", err)
		return nil
	}
	return string(b)
}

// unmarshalMetadata deserializes a metadata JSON column. Invalid JSON yields
// an empty map rather than an error; metadata is advisory.
func unmarshalMetadata(raw sql.NullString) models.Metadata {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	m := make(models.Metadata)
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		slog.Warn("store.unmarshalMetadata: invalid metadata JSON, dropping", "error", err)
		return nil
	}
	return m
}

// marshalSnippets serializes brand snippets for storage as a newline-joined string.
func marshalSnippets(snippets []string) interface{} {
	if len(snippets) == 0 {
		return nil
	}
	return strings.Join(snippets, "\n")
}

func unmarshalSnippets(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return strings.Split(raw.String, "\n")
}

func scanLead(s rowScanner) (models.Lead, error) {
	var l models.Lead
	var externalID, email, phone sql.NullString
	var lastMessageAt sql.NullTime
	var metadata sql.NullString
	err := s.Scan(
		&l.ID, &l.UserID, &l.Name, &l.Channel, &externalID, &email, &phone,
		&l.Status, &l.FollowUpCount, &lastMessageAt, &l.AIPaused, &metadata,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return l, err
	}
	l.ExternalID = externalID.String
	l.Email = email.String
	l.Phone = phone.String
	if lastMessageAt.Valid {
		l.LastMessageAt = &lastMessageAt.Time
	}
	l.Metadata = unmarshalMetadata(metadata)
	return l, nil
}

func scanMessage(s rowScanner) (models.Message, error) {
	var m models.Message
	var audioURL, metadata sql.NullString
	err := s.Scan(
		&m.ID, &m.LeadID, &m.UserID, &m.Channel, &m.Direction, &m.Body,
		&audioURL, &metadata, &m.CreatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	m.AudioURL = audioURL.String
	m.Metadata = unmarshalMetadata(metadata)
	return m, nil
}

func scanFollowUpJob(s rowScanner) (models.FollowUpJob, error) {
	var j models.FollowUpJob
	var errorMessage, context sql.NullString
	var lockedAt sql.NullTime
	err := s.Scan(
		&j.ID, &j.UserID, &j.LeadID, &j.Channel, &j.ScheduledAt, &j.Status,
		&j.RetryCount, &errorMessage, &context, &lockedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.ErrorMessage = errorMessage.String
	j.Context = unmarshalMetadata(context)
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

func scanCommentReplyJob(s rowScanner) (models.CommentReplyJob, error) {
	var j models.CommentReplyJob
	err := s.Scan(
		&j.ID, &j.UserID, &j.CommentID, &j.RecipientID, &j.ReplyText,
		&j.ScheduledAt, &j.Status, &j.CreatedAt,
	)
	if err != nil {
		return j, fmt.Errorf("scan comment-reply job failed: %w", err)
	}
	return j, nil
}
