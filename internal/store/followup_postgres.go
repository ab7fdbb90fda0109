package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/util"
)

func (s *PostgresStore) EnqueueFollowUp(job *models.FollowUpJob) (string, error) {
	var existingID string
	err := s.db.QueryRow(
		`SELECT id FROM follow_up_jobs WHERE lead_id = $1 AND status IN ('pending', 'processing')`,
		job.LeadID,
	).Scan(&existingID)
	if err == nil {
		slog.Debug("PostgresStore.EnqueueFollowUp: actionable job exists", "leadID", job.LeadID, "existingID", existingID)
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
		 VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $7, $8)`,
		job.ID, job.UserID, job.LeadID, job.Channel, job.ScheduledAt, marshalMetadata(job.Context), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue follow-up failed: %w", err)
	}
	return job.ID, nil
}

func (s *PostgresStore) ClaimDueFollowUps(now time.Time, limit int) ([]models.FollowUpJob, error) {
	// Claim atomically with SKIP LOCKED so concurrent claimers never see the
	// same rows.
	rows, err := s.db.Query(
		`UPDATE follow_up_jobs SET status = 'processing', locked_at = $1, updated_at = $1
		 WHERE id IN (
			SELECT id FROM follow_up_jobs
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY scheduled_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+followUpColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due follow-ups failed: %w", err)
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
	return jobs, nil
}

func (s *PostgresStore) CompleteFollowUp(id string) error {
	_, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'completed', locked_at = NULL, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("complete follow-up failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailFollowUp(id string, errMsg string, retryAt time.Time) (bool, error) {
	now := time.Now()

	var retryCount int
	if err := s.db.QueryRow(`SELECT retry_count FROM follow_up_jobs WHERE id = $1`, id).Scan(&retryCount); err != nil {
		return false, fmt.Errorf("fail follow-up lookup failed: %w", err)
	}

	retryCount++
	if retryCount >= models.MaxFollowUpAttempts {
		_, err := s.db.Exec(
			`UPDATE follow_up_jobs SET status = 'failed', retry_count = $1, error_message = $2, locked_at = NULL, updated_at = $3 WHERE id = $4`,
			retryCount, errMsg, now, id,
		)
		if err != nil {
			return false, fmt.Errorf("fail follow-up update failed: %w", err)
		}
		slog.Info("PostgresStore.FailFollowUp: job failed permanently", "id", id, "retryCount", retryCount)
		return true, nil
	}

	_, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'pending', retry_count = $1, error_message = $2, scheduled_at = $3, locked_at = NULL, updated_at = $4 WHERE id = $5`,
		retryCount, errMsg, retryAt, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("fail follow-up update failed: %w", err)
	}
	return false, nil
}

func (s *PostgresStore) CancelFollowUp(id string) error {
	_, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'canceled', locked_at = NULL, updated_at = $1 WHERE id = $2`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("cancel follow-up failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleProcessing(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE follow_up_jobs SET status = 'pending', locked_at = NULL, updated_at = $1 WHERE status = 'processing' AND locked_at < $2`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale follow-ups failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleProcessing", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) CountFailedFollowUpsSince(since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM follow_up_jobs WHERE status = 'failed' AND updated_at >= $1`,
		since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed follow-ups failed: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetFollowUp(id string) (*models.FollowUpJob, error) {
	row := s.db.QueryRow(`SELECT `+followUpColumns+` FROM follow_up_jobs WHERE id = $1`, id)
	j, err := scanFollowUpJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get follow-up failed: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) EnqueueCommentReply(job *models.CommentReplyJob) (string, error) {
	if job.ID == "" {
		job.ID = util.GenerateRandomID("crj_", 32)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO comment_reply_jobs (id, user_id, comment_id, recipient_id, reply_text, scheduled_at, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)`,
		job.ID, job.UserID, job.CommentID, job.RecipientID, job.ReplyText, job.ScheduledAt, job.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue comment reply failed: %w", err)
	}
	return job.ID, nil
}

func (s *PostgresStore) ClaimDueCommentReplies(now time.Time, limit int) ([]models.CommentReplyJob, error) {
	rows, err := s.db.Query(
		`UPDATE comment_reply_jobs SET status = 'processing'
		 WHERE id IN (
			SELECT id FROM comment_reply_jobs
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY scheduled_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, user_id, comment_id, recipient_id, reply_text, scheduled_at, status, created_at`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due comment replies failed: %w", err)
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
	return jobs, nil
}

func (s *PostgresStore) CompleteCommentReply(id string) error {
	_, err := s.db.Exec(`UPDATE comment_reply_jobs SET status = 'completed' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("complete comment reply failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailCommentReply(id string, errMsg string) error {
	_, err := s.db.Exec(`UPDATE comment_reply_jobs SET status = 'failed' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("fail comment reply failed: %w", err)
	}
	slog.Warn("PostgresStore.FailCommentReply", "id", id, "error", errMsg)
	return nil
}
