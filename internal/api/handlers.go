package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/keelhq/nurture/internal/conversation"
	"github.com/keelhq/nurture/internal/health"
	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/util"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeJSONResponse(w, http.StatusOK, ok([]health.WorkerState{}))
		return
	}
	writeJSONResponse(w, http.StatusOK, ok(s.monitor.Snapshot()))
}

func (s *Server) listLeadsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("user_id query parameter is required"))
		return
	}
	leads, err := s.store.ListLeadsByUser(userID)
	if err != nil {
		slog.Error("Server.listLeadsHandler: failed to list leads", "userID", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to list leads"))
		return
	}
	writeJSONResponse(w, http.StatusOK, ok(leads))
}

func (s *Server) createLeadHandler(w http.ResponseWriter, r *http.Request) {
	var lead models.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid JSON body"))
		return
	}
	if lead.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("user_id is required"))
		return
	}
	if !models.IsValidChannel(lead.Channel) {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid channel"))
		return
	}
	if err := s.store.CreateLead(&lead); err != nil {
		slog.Error("Server.createLeadHandler: failed to create lead", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to create lead"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, ok(lead))
}

func (s *Server) pauseLeadHandler(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	var body struct {
		Paused bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid JSON body"))
		return
	}
	lead, err := s.store.GetLead(leadID)
	if err != nil {
		slog.Error("Server.pauseLeadHandler: failed to load lead", "leadID", leadID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to load lead"))
		return
	}
	if lead == nil {
		writeJSONResponse(w, http.StatusNotFound, errorResponse("lead not found"))
		return
	}
	if err := s.store.SetLeadAIPaused(leadID, body.Paused); err != nil {
		slog.Error("Server.pauseLeadHandler: failed to update lead", "leadID", leadID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to update lead"))
		return
	}
	writeJSONResponse(w, http.StatusOK, ok(map[string]bool{"ai_paused": body.Paused}))
}

// scheduleFollowUpHandler enqueues a follow-up for a lead. The delay follows
// the first rung of the follow-up ladder unless the request overrides it.
func (s *Server) scheduleFollowUpHandler(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")
	var body struct {
		Channel      models.Channel `json:"channel,omitempty"`
		DelaySeconds *int           `json:"delay_seconds,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid JSON body"))
			return
		}
	}

	lead, err := s.store.GetLead(leadID)
	if err != nil {
		slog.Error("Server.scheduleFollowUpHandler: failed to load lead", "leadID", leadID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to load lead"))
		return
	}
	if lead == nil {
		writeJSONResponse(w, http.StatusNotFound, errorResponse("lead not found"))
		return
	}
	if lead.AIPaused {
		writeJSONResponse(w, http.StatusConflict, errorResponse("automated messaging is paused for this lead"))
		return
	}
	if lead.Status.IsTerminal() {
		writeJSONResponse(w, http.StatusConflict, errorResponse("lead is in a terminal status"))
		return
	}
	if lead.FollowUpCount >= models.MaxFollowUpsPerLead {
		writeJSONResponse(w, http.StatusConflict, errorResponse("lead reached the follow-up cap"))
		return
	}

	ch := body.Channel
	if ch == "" {
		ch = lead.Channel
	}
	if !models.IsValidChannel(ch) {
		writeJSONResponse(w, http.StatusBadRequest, errorResponse("invalid channel"))
		return
	}

	var delay time.Duration
	if body.DelaySeconds != nil {
		delay = time.Duration(*body.DelaySeconds) * time.Second
	} else {
		delay = conversation.NextFollowUpDelay(lead.FollowUpCount, nil)
	}

	now := time.Now()
	jobCtx := models.Metadata{}
	jobCtx.SetInt("followup_number", lead.FollowUpCount)
	job := &models.FollowUpJob{
		ID:          util.GenerateJobID(),
		UserID:      lead.UserID,
		LeadID:      lead.ID,
		Channel:     ch,
		ScheduledAt: now.Add(delay),
		Status:      models.JobStatusPending,
		Context:     jobCtx,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.store.EnqueueFollowUp(job)
	if err != nil {
		slog.Error("Server.scheduleFollowUpHandler: failed to enqueue", "leadID", leadID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to enqueue follow-up"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, ok(map[string]string{
		"job_id":       id,
		"scheduled_at": job.ScheduledAt.Format(time.RFC3339),
	}))
}

func (s *Server) getFollowUpHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, err := s.store.GetFollowUp(jobID)
	if err != nil {
		slog.Error("Server.getFollowUpHandler: failed to load job", "jobID", jobID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, errorResponse("failed to load follow-up"))
		return
	}
	if job == nil {
		writeJSONResponse(w, http.StatusNotFound, errorResponse("follow-up not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, ok(job))
}
