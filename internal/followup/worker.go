// Package followup implements the durable follow-up queue worker: it claims
// due jobs on a fixed tick, drafts replies with the AI generator, delivers
// them through channel senders with fallback, and schedules the next
// follow-up in the ladder.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/keelhq/nurture/internal/brand"
	"github.com/keelhq/nurture/internal/channel"
	"github.com/keelhq/nurture/internal/conversation"
	"github.com/keelhq/nurture/internal/genai"
	"github.com/keelhq/nurture/internal/health"
	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/notify"
	"github.com/keelhq/nurture/internal/store"
	"github.com/keelhq/nurture/internal/util"
)

const (
	// DefaultTickInterval is how often the worker polls for due jobs.
	DefaultTickInterval = 30 * time.Second

	// DefaultClaimLimit caps how many due jobs one tick claims.
	DefaultClaimLimit = 10

	// retryBackoff is the delay before a failed delivery is retried.
	retryBackoff = 5 * time.Minute

	// staleProcessingAge is how long a job may sit in processing before
	// startup recovery assumes the previous process died mid-job.
	staleProcessingAge = 10 * time.Minute

	// historyLimit is how many recent messages are loaded for prompt
	// assembly and status classification.
	historyLimit = 20

	workerName = "followup"
)

// Opts holds configuration options for the worker.
type Opts struct {
	TickInterval time.Duration
	ClaimLimit   int
	RNG          *rand.Rand
}

// Option defines a configuration option for the worker.
type Option func(*Opts)

// WithTickInterval overrides the polling interval.
func WithTickInterval(d time.Duration) Option {
	return func(o *Opts) { o.TickInterval = d }
}

// WithClaimLimit overrides the per-tick claim cap.
func WithClaimLimit(n int) Option {
	return func(o *Opts) { o.ClaimLimit = n }
}

// WithRNG injects a seeded random source for deterministic delay tests.
func WithRNG(rng *rand.Rand) Option {
	return func(o *Opts) { o.RNG = rng }
}

// Worker polls the follow-up queue and processes due jobs.
type Worker struct {
	store     store.Store
	senders   *channel.Registry
	generator genai.Generator
	brands    brand.ContextProvider
	notifier  *notify.Notifier
	monitor   *health.Monitor

	tickInterval time.Duration
	claimLimit   int
	rng          *rand.Rand
	now          func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker wires a follow-up worker. monitor may be nil to disable health
// tracking.
func NewWorker(st store.Store, senders *channel.Registry, gen genai.Generator, brands brand.ContextProvider, notifier *notify.Notifier, monitor *health.Monitor, opts ...Option) *Worker {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = DefaultClaimLimit
	}
	return &Worker{
		store:        st,
		senders:      senders,
		generator:    gen,
		brands:       brands,
		notifier:     notifier,
		monitor:      monitor,
		tickInterval: cfg.TickInterval,
		claimLimit:   cfg.ClaimLimit,
		rng:          cfg.RNG,
		now:          time.Now,
	}
}

// Start launches the polling loop. The first tick runs immediately. Jobs
// stuck in processing from a previous crash are requeued before polling
// begins.
func (w *Worker) Start(ctx context.Context) {
	if w.monitor != nil {
		w.monitor.RegisterWorker(workerName)
	}
	if n, err := w.store.RequeueStaleProcessing(w.now().Add(-staleProcessingAge)); err != nil {
		slog.Error("Worker.Start: stale job recovery failed", "error", err)
	} else if n > 0 {
		slog.Info("Worker.Start: requeued stale processing jobs", "count", n)
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.tickInterval)
		defer ticker.Stop()
		w.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.Tick(ctx)
			}
		}
	}()
	slog.Info("Worker.Start: follow-up worker started", "tickInterval", w.tickInterval, "claimLimit", w.claimLimit)
}

// Stop halts the polling loop and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	if w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.wg.Wait()
	slog.Info("Worker.Stop: follow-up worker stopped")
}

// Tick runs one polling cycle: due comment replies first, then the generic
// follow-up queue. Claimed jobs are processed in parallel with errors
// isolated per job.
func (w *Worker) Tick(ctx context.Context) {
	now := w.now()
	w.drainCommentReplies(ctx, now)

	jobs, err := w.store.ClaimDueFollowUps(now, w.claimLimit)
	if err != nil {
		slog.Error("Worker.Tick: failed to claim due jobs", "error", err)
		if w.monitor != nil {
			w.monitor.RecordError(workerName, err.Error())
		}
		return
	}
	for i := range jobs {
		job := jobs[i]
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Worker.Tick: panic while processing job", "jobID", job.ID, "panic", r)
					if _, err := w.store.FailFollowUp(job.ID, fmt.Sprintf("panic: %v", r), w.now().Add(retryBackoff)); err != nil {
						slog.Error("Worker.Tick: failed to record panic failure", "jobID", job.ID, "error", err)
					}
				}
			}()
			w.processJob(ctx, &job)
		}()
	}
	if w.monitor != nil {
		w.monitor.RecordSuccess(workerName)
	}
}

// processJob handles one claimed follow-up job end to end.
func (w *Worker) processJob(ctx context.Context, job *models.FollowUpJob) {
	lead, err := w.store.GetLead(job.LeadID)
	if err != nil {
		slog.Error("Worker.processJob: failed to load lead", "jobID", job.ID, "leadID", job.LeadID, "error", err)
		if _, err := w.store.FailFollowUp(job.ID, err.Error(), w.now().Add(retryBackoff)); err != nil {
			slog.Error("Worker.processJob: failed to record failure", "jobID", job.ID, "error", err)
		}
		return
	}
	// A missing or paused lead cancels the job with no side effects and no
	// reschedule.
	if lead == nil || lead.AIPaused {
		if err := w.store.CancelFollowUp(job.ID); err != nil {
			slog.Error("Worker.processJob: failed to cancel job", "jobID", job.ID, "error", err)
		}
		slog.Info("Worker.processJob: job canceled", "jobID", job.ID, "leadID", job.LeadID, "reason", cancelReason(lead))
		return
	}

	msgs, err := w.store.GetMessagesByLead(lead.ID, historyLimit)
	if err != nil {
		slog.Error("Worker.processJob: failed to load messages", "jobID", job.ID, "leadID", lead.ID, "error", err)
		w.failJob(job, lead, err)
		return
	}

	body := w.draftReply(ctx, lead, msgs, job.Ordinal())

	sentCh, sendErr := w.deliver(ctx, lead, job.Channel, body)
	if sendErr != nil {
		slog.Warn("Worker.processJob: delivery failed on all channels", "jobID", job.ID, "leadID", lead.ID, "error", sendErr)
		w.failJob(job, lead, sendErr)
		return
	}

	w.recordSuccess(job, lead, sentCh, body, msgs)
}

// draftReply assembles the prompts and generates the follow-up text. The
// generator is wrapped so a provider failure degrades to a fallback string
// rather than failing the job.
func (w *Worker) draftReply(ctx context.Context, lead *models.Lead, msgs []models.Message, ordinal int) string {
	bc, err := w.brands.GetBrandContext(ctx, lead.UserID)
	if err != nil {
		slog.Warn("Worker.draftReply: brand context unavailable, using defaults", "leadID", lead.ID, "error", err)
		bc = brand.Context{}
	}

	safe := &genai.SafeGenerator{Inner: w.generator}
	reply, _ := safe.Generate(ctx, bc.SystemPrompt(), buildUserPrompt(lead, msgs, ordinal), genai.GenerateOpts{
		Temperature: 0.7,
		MaxTokens:   200,
	})
	return reply.Text
}

// deliver attempts the preferred channel first, then falls back through
// every channel the lead has contact info for. Returns the channel that
// succeeded.
func (w *Worker) deliver(ctx context.Context, lead *models.Lead, preferred models.Channel, body string) (models.Channel, error) {
	var lastErr error
	for _, ch := range channel.FallbackOrder(lead, preferred) {
		handle := lead.ContactHandle(ch)
		if handle == "" {
			lastErr = fmt.Errorf("no contact handle for channel %s", ch)
			continue
		}
		sender, ok := w.senders.Get(ch)
		if !ok {
			lastErr = fmt.Errorf("%w: %s", channel.ErrNoSender, ch)
			continue
		}
		if err := sender.Send(ctx, handle, body); err != nil {
			slog.Warn("Worker.deliver: channel send failed, trying fallback", "leadID", lead.ID, "channel", ch, "error", err)
			lastErr = err
			continue
		}
		return ch, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no deliverable channel for lead %s", lead.ID)
	}
	return "", lastErr
}

// recordSuccess persists the outbound message, completes the job, refreshes
// the lead's classification, and schedules the next follow-up in the ladder.
func (w *Worker) recordSuccess(job *models.FollowUpJob, lead *models.Lead, sentCh models.Channel, body string, history []models.Message) {
	now := w.now()
	outbound := &models.Message{
		ID:        util.GenerateRandomID("msg_", 32),
		LeadID:    lead.ID,
		UserID:    lead.UserID,
		Channel:   sentCh,
		Direction: models.DirectionOutbound,
		Body:      body,
		Metadata:  models.Metadata{"source": "followup", "job_id": job.ID},
		CreatedAt: now,
	}
	if err := w.store.CreateMessage(outbound); err != nil {
		slog.Error("Worker.recordSuccess: failed to persist outbound message", "jobID", job.ID, "error", err)
	}
	if err := w.store.RecordLeadSend(lead.ID, now); err != nil {
		slog.Error("Worker.recordSuccess: failed to update lead counters", "jobID", job.ID, "error", err)
	}
	if err := w.store.CompleteFollowUp(job.ID); err != nil {
		slog.Error("Worker.recordSuccess: failed to complete job", "jobID", job.ID, "error", err)
	}
	slog.Info("Worker.recordSuccess: follow-up delivered", "jobID", job.ID, "leadID", lead.ID, "channel", sentCh, "ordinal", job.Ordinal())

	status, detection := w.reclassify(lead, append(history, *outbound), now)
	w.scheduleNext(job, lead, status, detection, now)
}

// reclassify re-runs status detection over the conversation and commits the
// result when confident. Returns the lead's effective status afterwards along
// with the raw detection.
func (w *Worker) reclassify(lead *models.Lead, msgs []models.Message, now time.Time) (models.LeadStatus, conversation.Detection) {
	detection := conversation.DetectStatus(msgs, now)
	if !conversation.ShouldCommit(lead.Status, detection) {
		return lead.Status, detection
	}
	if err := w.store.UpdateLeadStatus(lead.ID, detection.Status); err != nil {
		slog.Error("Worker.reclassify: failed to update lead status", "leadID", lead.ID, "error", err)
		return lead.Status, detection
	}
	slog.Info("Worker.reclassify: lead status updated", "leadID", lead.ID, "from", lead.Status, "to", detection.Status, "confidence", detection.Confidence)
	return detection.Status, detection
}

// scheduleNext enqueues the next follow-up in the ladder unless the lead has
// hit the per-lead cap or reached a terminal status.
func (w *Worker) scheduleNext(job *models.FollowUpJob, lead *models.Lead, status models.LeadStatus, detection conversation.Detection, now time.Time) {
	sentCount := lead.FollowUpCount + 1
	if sentCount >= models.MaxFollowUpsPerLead {
		slog.Info("Worker.scheduleNext: follow-up cap reached", "leadID", lead.ID, "count", sentCount)
		return
	}
	if status.IsTerminal() {
		slog.Info("Worker.scheduleNext: lead in terminal status, not rescheduling", "leadID", lead.ID, "status", status)
		return
	}

	nextOrdinal := job.Ordinal() + 1
	delay := conversation.NextFollowUpDelay(nextOrdinal, w.rng)
	jobCtx := models.Metadata{}
	jobCtx.SetInt("followup_number", nextOrdinal)
	if detection.ShouldUseVoice {
		jobCtx["use_voice"] = "true"
	}
	next := &models.FollowUpJob{
		ID:          util.GenerateJobID(),
		UserID:      job.UserID,
		LeadID:      lead.ID,
		Channel:     job.Channel,
		ScheduledAt: now.Add(delay),
		Status:      models.JobStatusPending,
		Context:     jobCtx,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := w.store.EnqueueFollowUp(next)
	if err != nil {
		slog.Error("Worker.scheduleNext: failed to enqueue next follow-up", "leadID", lead.ID, "error", err)
		return
	}
	slog.Info("Worker.scheduleNext: next follow-up scheduled", "leadID", lead.ID, "jobID", id, "ordinal", nextOrdinal, "delay", delay)
}

// failJob records a delivery failure. A permanent failure (retry cap hit)
// notifies the owning user.
func (w *Worker) failJob(job *models.FollowUpJob, lead *models.Lead, cause error) {
	permanent, err := w.store.FailFollowUp(job.ID, cause.Error(), w.now().Add(retryBackoff))
	if err != nil {
		slog.Error("Worker.failJob: failed to record failure", "jobID", job.ID, "error", err)
		return
	}
	if !permanent {
		return
	}
	slog.Warn("Worker.failJob: job failed permanently", "jobID", job.ID, "leadID", lead.ID, "error", cause)
	if w.notifier != nil {
		w.notifier.Notify(lead.UserID, "followup_failed", "Follow-up could not be delivered",
			fmt.Sprintf("We could not reach %s after %d attempts.", leadDisplayName(lead), models.MaxFollowUpAttempts),
			models.Metadata{"lead_id": lead.ID, "job_id": job.ID})
	}
}

// drainCommentReplies processes the comment-reply due-queue ahead of the
// generic follow-up queue. Replies go out as Instagram DMs.
func (w *Worker) drainCommentReplies(ctx context.Context, now time.Time) {
	jobs, err := w.store.ClaimDueCommentReplies(now, w.claimLimit)
	if err != nil {
		slog.Error("Worker.drainCommentReplies: failed to claim jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}
	sender, ok := w.senders.Get(models.ChannelInstagram)
	if !ok {
		for _, job := range jobs {
			if err := w.store.FailCommentReply(job.ID, channel.ErrNoSender.Error()); err != nil {
				slog.Error("Worker.drainCommentReplies: failed to record failure", "jobID", job.ID, "error", err)
			}
		}
		return
	}
	for _, job := range jobs {
		if err := sender.Send(ctx, job.RecipientID, job.ReplyText); err != nil {
			slog.Warn("Worker.drainCommentReplies: send failed", "jobID", job.ID, "error", err)
			if err := w.store.FailCommentReply(job.ID, err.Error()); err != nil {
				slog.Error("Worker.drainCommentReplies: failed to record failure", "jobID", job.ID, "error", err)
			}
			continue
		}
		if err := w.store.CompleteCommentReply(job.ID); err != nil {
			slog.Error("Worker.drainCommentReplies: failed to complete job", "jobID", job.ID, "error", err)
		}
	}
}

// buildUserPrompt renders the conversation history and follow-up position
// into the user prompt for generation.
func buildUserPrompt(lead *models.Lead, msgs []models.Message, ordinal int) string {
	prompt := fmt.Sprintf("Lead: %s (status: %s). This is automated follow-up #%d.\n", leadDisplayName(lead), lead.Status, ordinal+1)
	if len(msgs) == 0 {
		return prompt + "No prior conversation. Write a friendly opener that invites a reply."
	}
	prompt += "Conversation so far (oldest first):\n"
	for _, m := range msgs {
		who := "Them"
		if m.Direction == models.DirectionOutbound {
			who = "You"
		}
		prompt += fmt.Sprintf("%s: %s\n", who, m.Body)
	}
	prompt += "Write the next follow-up message. Do not repeat earlier messages."
	return prompt
}

func leadDisplayName(lead *models.Lead) string {
	if lead.Name != "" {
		return lead.Name
	}
	return lead.ID
}

func cancelReason(lead *models.Lead) string {
	if lead == nil {
		return "lead missing"
	}
	return "ai paused"
}
