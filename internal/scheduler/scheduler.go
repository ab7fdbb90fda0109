// Package scheduler provides cron-based scheduling for periodic maintenance
// jobs: the hourly stale-job sweep and the daily delivery-failure digest.
package scheduler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/notify"
	"github.com/keelhq/nurture/internal/store"
	"github.com/robfig/cron/v3"
)

// Cron expressions for the built-in maintenance jobs (5-field syntax).
const (
	staleSweepSpec = "0 * * * *" // hourly
	failDigestSpec = "0 9 * * *" // daily at 09:00
	staleJobMaxAge = 10 * time.Minute
	digestLookback = 24 * time.Hour
)

// Scheduler runs periodic maintenance tasks on cron schedules.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler. Panics inside jobs are
// recovered and logged rather than crashing the process.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// RegisterMaintenance installs the standard maintenance jobs: an hourly
// sweep that requeues follow-up jobs stuck in processing, and a daily
// digest that alerts admins when deliveries failed permanently in the
// last day.
func (s *Scheduler) RegisterMaintenance(st store.Store, notifier *notify.Notifier) error {
	if err := s.AddJob(staleSweepSpec, func() {
		n, err := st.RequeueStaleProcessing(time.Now().Add(-staleJobMaxAge))
		if err != nil {
			slog.Error("Scheduler: stale sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Warn("Scheduler: requeued stale processing jobs", "count", n)
		}
	}); err != nil {
		return err
	}

	return s.AddJob(failDigestSpec, func() {
		n, err := st.CountFailedFollowUpsSince(time.Now().Add(-digestLookback))
		if err != nil {
			slog.Error("Scheduler: failure digest query failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
		slog.Warn("Scheduler: permanent delivery failures in the last day", "count", n)
		if notifier != nil {
			notifier.AlertAdmins("delivery_digest", "Follow-up delivery failures",
				"Some follow-ups failed permanently in the last 24 hours. Check the queue for details.",
				models.Metadata{"failed_count": strconv.Itoa(n)})
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
