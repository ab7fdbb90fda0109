package store

import (
	"testing"
	"time"

	"github.com/keelhq/nurture/internal/models"
)

func newTestLead(t *testing.T, s *InMemoryStore) *models.Lead {
	t.Helper()
	lead := &models.Lead{
		UserID:     "user1",
		Name:       "Jamie",
		Channel:    models.ChannelInstagram,
		ExternalID: "ig-123",
		Status:     models.LeadStatusOpen,
	}
	if err := s.CreateLead(lead); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	return lead
}

func enqueue(t *testing.T, s *InMemoryStore, leadID string, at time.Time) string {
	t.Helper()
	id, err := s.EnqueueFollowUp(&models.FollowUpJob{
		UserID:      "user1",
		LeadID:      leadID,
		Channel:     models.ChannelInstagram,
		ScheduledAt: at,
	})
	if err != nil {
		t.Fatalf("EnqueueFollowUp failed: %v", err)
	}
	return id
}

func TestEnqueueFollowUpDedupesPerLead(t *testing.T) {
	s := NewInMemoryStore()
	lead := newTestLead(t, s)
	now := time.Now()

	first := enqueue(t, s, lead.ID, now)
	second := enqueue(t, s, lead.ID, now.Add(time.Hour))
	if first != second {
		t.Errorf("expected dedupe to return existing job ID %q, got %q", first, second)
	}

	// A job for a different lead is not deduped.
	other := enqueue(t, s, "other-lead", now)
	if other == first {
		t.Error("jobs for different leads must not dedupe")
	}
}

func TestClaimDueFollowUpsOrdersByScheduledAt(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()

	late := enqueue(t, s, "lead-late", now.Add(-time.Minute))
	early := enqueue(t, s, "lead-early", now.Add(-time.Hour))
	enqueue(t, s, "lead-future", now.Add(time.Hour))

	claimed, err := s.ClaimDueFollowUps(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueFollowUps failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(claimed))
	}
	if claimed[0].ID != early || claimed[1].ID != late {
		t.Errorf("expected claim order [%s %s], got [%s %s]", early, late, claimed[0].ID, claimed[1].ID)
	}
	for _, j := range claimed {
		if j.Status != models.JobStatusProcessing {
			t.Errorf("claimed job %s not marked processing: %s", j.ID, j.Status)
		}
	}
}

func TestClaimDueFollowUpsDoesNotReclaim(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	enqueue(t, s, "lead1", now.Add(-time.Minute))

	first, err := s.ClaimDueFollowUps(now, 10)
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	second, err := s.ClaimDueFollowUps(now, 10)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if len(first) != 1 || len(second) != 0 {
		t.Errorf("expected 1 then 0 claimed jobs, got %d then %d", len(first), len(second))
	}
}

func TestFailFollowUpRetriesThenFailsPermanently(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	id := enqueue(t, s, "lead1", now.Add(-time.Minute))

	for attempt := 1; attempt < models.MaxFollowUpAttempts; attempt++ {
		if _, err := s.ClaimDueFollowUps(now, 10); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		permanent, err := s.FailFollowUp(id, "send failed", now.Add(-time.Second))
		if err != nil {
			t.Fatalf("FailFollowUp failed: %v", err)
		}
		if permanent {
			t.Fatalf("attempt %d should not be permanent", attempt)
		}
		job, _ := s.GetFollowUp(id)
		if job.Status != models.JobStatusPending {
			t.Fatalf("attempt %d: expected pending, got %s", attempt, job.Status)
		}
		if job.RetryCount != attempt {
			t.Fatalf("attempt %d: expected retry count %d, got %d", attempt, attempt, job.RetryCount)
		}
	}

	if _, err := s.ClaimDueFollowUps(now, 10); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	permanent, err := s.FailFollowUp(id, "send failed", now)
	if err != nil {
		t.Fatalf("final FailFollowUp failed: %v", err)
	}
	if !permanent {
		t.Fatal("third failure should be permanent")
	}

	job, _ := s.GetFollowUp(id)
	if job.Status != models.JobStatusFailed {
		t.Errorf("expected failed status, got %s", job.Status)
	}

	// A permanently failed job is never claimed again.
	claimed, _ := s.ClaimDueFollowUps(now.Add(time.Hour), 10)
	if len(claimed) != 0 {
		t.Errorf("failed job was reclaimed: %+v", claimed)
	}
}

func TestRequeueStaleProcessing(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()
	id := enqueue(t, s, "lead1", now.Add(-time.Hour))

	if _, err := s.ClaimDueFollowUps(now.Add(-30*time.Minute), 10); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	n, err := s.RequeueStaleProcessing(now.Add(-10 * time.Minute))
	if err != nil {
		t.Fatalf("RequeueStaleProcessing failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 requeued job, got %d", n)
	}
	job, _ := s.GetFollowUp(id)
	if job.Status != models.JobStatusPending {
		t.Errorf("expected pending after requeue, got %s", job.Status)
	}
}

func TestRecordLeadSend(t *testing.T) {
	s := NewInMemoryStore()
	lead := newTestLead(t, s)
	at := time.Now()

	if err := s.RecordLeadSend(lead.ID, at); err != nil {
		t.Fatalf("RecordLeadSend failed: %v", err)
	}
	got, _ := s.GetLead(lead.ID)
	if got.FollowUpCount != 1 {
		t.Errorf("expected follow-up count 1, got %d", got.FollowUpCount)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(at) {
		t.Errorf("expected last message at %v, got %v", at, got.LastMessageAt)
	}
}

func TestGetMessagesByLeadLimit(t *testing.T) {
	s := NewInMemoryStore()
	lead := newTestLead(t, s)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 8; i++ {
		err := s.CreateMessage(&models.Message{
			LeadID:    lead.ID,
			UserID:    lead.UserID,
			Channel:   models.ChannelInstagram,
			Direction: models.DirectionInbound,
			Body:      "hello",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	msgs, err := s.GetMessagesByLead(lead.ID, 5)
	if err != nil {
		t.Fatalf("GetMessagesByLead failed: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Error("messages not in ascending CreatedAt order")
		}
	}
}

func TestClaimDueCommentReplies(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Now()

	id, err := s.EnqueueCommentReply(&models.CommentReplyJob{
		UserID:      "user1",
		CommentID:   "c1",
		RecipientID: "ig-9",
		ReplyText:   "thanks for commenting!",
		ScheduledAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("EnqueueCommentReply failed: %v", err)
	}
	if _, err := s.EnqueueCommentReply(&models.CommentReplyJob{
		UserID:      "user1",
		CommentID:   "c2",
		RecipientID: "ig-10",
		ReplyText:   "appreciate it!",
		ScheduledAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("EnqueueCommentReply failed: %v", err)
	}

	claimed, err := s.ClaimDueCommentReplies(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueCommentReplies failed: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != id {
		t.Fatalf("expected only the due job claimed, got %+v", claimed)
	}

	// Already-claimed jobs are not returned again.
	again, _ := s.ClaimDueCommentReplies(now, 10)
	if len(again) != 0 {
		t.Errorf("claimed comment reply returned twice")
	}
}
