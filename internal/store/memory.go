package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/util"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore is a mutex-guarded in-memory Store used by tests and local
// development. State is lost on process exit.
type InMemoryStore struct {
	mu            sync.Mutex
	leads         map[string]*models.Lead
	messages      map[string][]models.Message // leadID -> ascending by CreatedAt
	jobs          map[string]*models.FollowUpJob
	commentJobs   map[string]*models.CommentReplyJob
	notifications []models.Notification
	brands        map[string]*models.BrandProfile
	adminUserIDs  []string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leads:       make(map[string]*models.Lead),
		messages:    make(map[string][]models.Message),
		jobs:        make(map[string]*models.FollowUpJob),
		commentJobs: make(map[string]*models.CommentReplyJob),
		brands:      make(map[string]*models.BrandProfile),
	}
}

// SetAdminUsers configures the admin user IDs returned by ListAdminUserIDs.
func (s *InMemoryStore) SetAdminUsers(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminUserIDs = append([]string(nil), ids...)
}

// SetBrandProfile stores a brand profile for a user.
func (s *InMemoryStore) SetBrandProfile(p *models.BrandProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.brands[p.UserID] = &cp
}

// FollowUpJobs returns a copy of every follow-up job, sorted by CreatedAt.
func (s *InMemoryStore) FollowUpJobs() []models.FollowUpJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FollowUpJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Notifications returns a copy of all notifications created so far.
func (s *InMemoryStore) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notifications...)
}

func (s *InMemoryStore) CreateLead(l *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = util.GenerateLeadID()
	}
	if l.Status == "" {
		l.Status = models.LeadStatusNew
	}
	now := time.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	cp := *l
	s.leads[l.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetLead(id string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *InMemoryStore) ListLeadsByUser(userID string) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, l := range s.leads {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) UpdateLeadStatus(id string, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead not found: %s", id)
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) RecordLeadSend(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead not found: %s", id)
	}
	l.FollowUpCount++
	l.LastMessageAt = &at
	l.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) SetLeadAIPaused(id string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("lead not found: %s", id)
	}
	l.AIPaused = paused
	l.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) CreateMessage(m *models.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.messages[m.LeadID] = append(s.messages[m.LeadID], *m)
	return nil
}

func (s *InMemoryStore) GetMessagesByLead(leadID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[leadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...), nil
}

func (s *InMemoryStore) EnqueueFollowUp(job *models.FollowUpJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.LeadID == job.LeadID && (j.Status == models.JobStatusPending || j.Status == models.JobStatusProcessing) {
			return j.ID, nil
		}
	}
	if job.ID == "" {
		job.ID = util.GenerateJobID()
	}
	job.Status = models.JobStatusPending
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	cp := *job
	s.jobs[job.ID] = &cp
	return job.ID, nil
}

func (s *InMemoryStore) ClaimDueFollowUps(now time.Time, limit int) ([]models.FollowUpJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.FollowUpJob
	for _, j := range s.jobs {
		if j.Status == models.JobStatusPending && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]models.FollowUpJob, 0, len(due))
	for _, j := range due {
		j.Status = models.JobStatusProcessing
		lockedAt := now
		j.LockedAt = &lockedAt
		j.UpdatedAt = now
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (s *InMemoryStore) CompleteFollowUp(id string) error {
	return s.setJobStatus(id, models.JobStatusCompleted)
}

func (s *InMemoryStore) FailFollowUp(id string, errMsg string, retryAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, fmt.Errorf("follow-up job not found: %s", id)
	}
	j.RetryCount++
	j.ErrorMessage = errMsg
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	if j.RetryCount >= models.MaxFollowUpAttempts {
		j.Status = models.JobStatusFailed
		return true, nil
	}
	j.Status = models.JobStatusPending
	j.ScheduledAt = retryAt
	return false, nil
}

func (s *InMemoryStore) CancelFollowUp(id string) error {
	return s.setJobStatus(id, models.JobStatusCanceled)
}

func (s *InMemoryStore) RequeueStaleProcessing(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == models.JobStatusProcessing && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = models.JobStatusPending
			j.LockedAt = nil
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CountFailedFollowUpsSince(since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == models.JobStatusFailed && !j.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetFollowUp(id string) (*models.FollowUpJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *InMemoryStore) setJobStatus(id string, status models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("follow-up job not found: %s", id)
	}
	j.Status = status
	j.LockedAt = nil
	j.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) EnqueueCommentReply(job *models.CommentReplyJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == "" {
		job.ID = util.GenerateRandomID("crj_", 32)
	}
	job.Status = models.JobStatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	cp := *job
	s.commentJobs[job.ID] = &cp
	return job.ID, nil
}

func (s *InMemoryStore) ClaimDueCommentReplies(now time.Time, limit int) ([]models.CommentReplyJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.CommentReplyJob
	for _, j := range s.commentJobs {
		if j.Status == models.JobStatusPending && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]models.CommentReplyJob, 0, len(due))
	for _, j := range due {
		j.Status = models.JobStatusProcessing
		claimed = append(claimed, *j)
	}
	return claimed, nil
}

func (s *InMemoryStore) CompleteCommentReply(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.commentJobs[id]
	if !ok {
		return fmt.Errorf("comment-reply job not found: %s", id)
	}
	j.Status = models.JobStatusCompleted
	return nil
}

func (s *InMemoryStore) FailCommentReply(id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.commentJobs[id]
	if !ok {
		return fmt.Errorf("comment-reply job not found: %s", id)
	}
	j.Status = models.JobStatusFailed
	return nil
}

func (s *InMemoryStore) CreateNotification(n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *InMemoryStore) ListAdminUserIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.adminUserIDs...), nil
}

func (s *InMemoryStore) GetBrandProfile(userID string) (*models.BrandProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.brands[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) Close() error { return nil }
