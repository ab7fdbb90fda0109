package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/util"
)

const followUpColumns = `id, user_id, lead_id, channel, scheduled_at, status, retry_count, error_message, context, locked_at, created_at, updated_at`

func (s *SQLiteStore) EnqueueFollowUp(job *models.FollowUpJob) (string, error) {
	// At most one actionable job per lead: reuse any pending/processing job.
	var existingID string
	err := s.db.QueryRow(
		`SELECT id FROM follow_up_jobs WHERE lead_id = ? AND status IN ('pending', 'processing')`,
		job.LeadID,
	).Scan(&existingID)
	if err == nil {
		slog.Debug("SQLiteStore.EnqueueFollowUp: actionable job exists", "leadID", job.LeadID, "existingID", existingID)
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("follow-up dedupe check failed: %w", err)
	}

	if job.ID == "" {
		job.ID = util.GenerateJobID()
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO follow_up_jobs (id, user_id, lead_id, channel, scheduled_at, status, retry_count, context, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, ?, ?)`,
		job.ID, job.UserID, job.LeadID, job.Channel, job.ScheduledAt, marshalMetadata(job.Context), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue follow-up failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueFollowUp", "id", job.ID, "leadID", job.LeadID, "scheduledAt", job.ScheduledAt)
	return job.ID, nil
}

func (s *SQLiteStore) ClaimDueFollowUps(now time.Time, limit int) ([]models.FollowUpJob, error) {
	rows, err := s.db.Query(
		`SELECT `+followUpColumns+` FROM follow_up_jobs
		 WHERE status = 'pending' AND scheduled_at <= ? ORDER BY scheduled_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due follow-ups query failed: %w", err)
	}
	defer rows.Close()

	var jobs []models.FollowUpJob
	for rows.Next() {
		j, err := scanFollowUpJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan follow-up job failed: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due follow-ups iteration failed: %w", err)
	}

	// Mark claimed jobs as processing. The status gate prevents an overlapping
	// tick from re-claiming the same job.
	claimed := jobs[:0]
	for i := range jobs {
		res, err := s.db.Exec(
			`UPDATE follow_up_jobs SET status = 'processing', locked_at = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
			now, now, jobs[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark follow-up processing failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // lost the race to another tick
		}
		jobs[i].Status = models.JobStatusProcessing
		lockedAt := now
		jobs[i].LockedAt = &lockedAt
		claimed = append(claimed, jobs[i])
	}

	return claimed, nil
}

func (s *SQLiteStore) CompleteFollowUp(id string) error {
	_, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'completed', locked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("complete follow-up failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailFollowUp(id string, errMsg string, retryAt time.Time) (bool, error) {
	now := time.Now()

	var retryCount int
	if err := s.db.QueryRow(`SELECT retry_count FROM follow_up_jobs WHERE id = ?`, id).Scan(&retryCount); err != nil {
		return false, fmt.Errorf("fail follow-up lookup failed: %w", err)
	}

	retryCount++
	if retryCount >= models.MaxFollowUpAttempts {
		_, err := s.db.Exec(
			`UPDATE follow_up_jobs SET status = 'failed', retry_count = ?, error_message = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
			retryCount, errMsg, now, id,
		)
		if err != nil {
			return false, fmt.Errorf("fail follow-up update failed: %w", err)
		}
		slog.Info("SQLiteStore.FailFollowUp: job failed permanently", "id", id, "retryCount", retryCount)
		return true, nil
	}

	_, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'pending', retry_count = ?, error_message = ?, scheduled_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		retryCount, errMsg, retryAt, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("fail follow-up update failed: %w", err)
	}
	return false, nil
}

func (s *SQLiteStore) CancelFollowUp(id string) error {
	_, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'canceled', locked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("cancel follow-up failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleProcessing(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'pending', locked_at = NULL, updated_at = ? WHERE status = 'processing' AND locked_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale follow-ups failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleProcessing", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) CountFailedFollowUpsSince(since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM follow_up_jobs WHERE status = 'failed' AND updated_at >= ?`,
		since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed follow-ups failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetFollowUp(id string) (*models.FollowUpJob, error) {
	row := s.db.QueryRow(`SELECT `+followUpColumns+` FROM follow_up_jobs WHERE id = ?`, id)
	j, err := scanFollowUpJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get follow-up failed: %w", err)
	}
	return &j, nil
}

func (s *SQLiteStore) EnqueueCommentReply(job *models.CommentReplyJob) (string, error) {
	if job.ID == "" {
		job.ID = util.GenerateRandomID("crj_", 32)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO comment_reply_jobs (id, user_id, comment_id, recipient_id, reply_text, scheduled_at, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)`,
		job.ID, job.UserID, job.CommentID, job.RecipientID, job.ReplyText, job.ScheduledAt, job.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue comment reply failed: %w", err)
	}
	return job.ID, nil
}

func (s *SQLiteStore) ClaimDueCommentReplies(now time.Time, limit int) ([]models.CommentReplyJob, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, comment_id, recipient_id, reply_text, scheduled_at, status, created_at
		 FROM comment_reply_jobs WHERE status = 'pending' AND scheduled_at <= ? ORDER BY scheduled_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due comment replies query failed: %w", err)
	}
	defer rows.Close()

	var jobs []models.CommentReplyJob
	for rows.Next() {
		j, err := scanCommentReplyJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due comment replies iteration failed: %w", err)
	}

	claimed := jobs[:0]
	for i := range jobs {
		res, err := s.db.Exec(
			`UPDATE comment_reply_jobs SET status = 'processing' WHERE id = ? AND status = 'pending'`,
			jobs[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark comment reply processing failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		jobs[i].Status = models.JobStatusProcessing
		claimed = append(claimed, jobs[i])
	}
	return claimed, nil
}

func (s *SQLiteStore) CompleteCommentReply(id string) error {
	_, err := s.db.Exec(`UPDATE comment_reply_jobs SET status = 'completed' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("complete comment reply failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailCommentReply(id string, errMsg string) error {
	_, err := s.db.Exec(`UPDATE comment_reply_jobs SET status = 'failed' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("fail comment reply failed: %w", err)
	}
	slog.Warn("SQLiteStore.FailCommentReply", "id", id, "error", errMsg)
	return nil
}
