package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/testutil"
)

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testutil.NewTestServer()

	req := testutil.CreateHTTPRequest(t, "GET", "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health endpoint")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestListLeadsRequiresUserID(t *testing.T) {
	srv, _ := testutil.NewTestServer()

	req := testutil.CreateHTTPRequest(t, "GET", "/leads", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing user_id")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestListLeadsByUser(t *testing.T) {
	srv, st := testutil.NewTestServer()
	testutil.SeedLead(t, st, &models.Lead{UserID: "user-1", Name: "Ana", Channel: models.ChannelInstagram, ExternalID: "ig-1"})
	testutil.SeedLead(t, st, &models.Lead{UserID: "user-1", Name: "Ben", Channel: models.ChannelEmail, Email: "ben@example.com"})
	testutil.SeedLead(t, st, &models.Lead{UserID: "user-2", Name: "Caro", Channel: models.ChannelWhatsApp, Phone: "+15550001111"})

	req := testutil.CreateHTTPRequest(t, "GET", "/leads?user_id=user-1", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list leads")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	data, ok := response["data"].([]interface{})
	if !ok {
		t.Fatalf("expected data array, got %T", response["data"])
	}
	if len(data) != 2 {
		t.Errorf("expected 2 leads for user-1, got %d", len(data))
	}
}

func TestCreateLead(t *testing.T) {
	srv, st := testutil.NewTestServer()

	body := map[string]interface{}{
		"user_id":     "user-1",
		"name":        "Dana",
		"channel":     "instagram",
		"external_id": "ig-dana",
	}
	req := testutil.CreateHTTPRequest(t, "POST", "/leads", body)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create lead")
	testutil.AssertJSONResponse(t, rr, "ok")
	testutil.AssertLeadCount(t, st, "user-1", 1, "after create")
}

func TestCreateLeadRejectsInvalidChannel(t *testing.T) {
	srv, st := testutil.NewTestServer()

	body := map[string]interface{}{
		"user_id": "user-1",
		"channel": "carrier_pigeon",
	}
	req := testutil.CreateHTTPRequest(t, "POST", "/leads", body)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid channel")
	testutil.AssertJSONResponse(t, rr, "error")
	testutil.AssertLeadCount(t, st, "user-1", 0, "after rejected create")
}

func TestPauseLead(t *testing.T) {
	srv, st := testutil.NewTestServer()
	lead := testutil.SeedLead(t, st, &models.Lead{UserID: "user-1", Channel: models.ChannelInstagram, ExternalID: "ig-1"})

	req := testutil.CreateHTTPRequest(t, "POST", "/leads/"+lead.ID+"/pause", map[string]bool{"paused": true})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "pause lead")
	testutil.AssertJSONResponse(t, rr, "ok")

	got, err := st.GetLead(lead.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if !got.AIPaused {
		t.Error("expected lead to be paused")
	}
}

func TestPauseUnknownLead(t *testing.T) {
	srv, _ := testutil.NewTestServer()

	req := testutil.CreateHTTPRequest(t, "POST", "/leads/nope/pause", map[string]bool{"paused": true})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown lead")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestScheduleFollowUp(t *testing.T) {
	srv, st := testutil.NewTestServer()
	lead := testutil.SeedLead(t, st, &models.Lead{UserID: "user-1", Channel: models.ChannelInstagram, ExternalID: "ig-1"})

	delaySeconds := 60
	req := testutil.CreateHTTPRequest(t, "POST", "/leads/"+lead.ID+"/followups", map[string]interface{}{
		"delay_seconds": delaySeconds,
	})
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "schedule follow-up")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	data, ok := response["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %T", response["data"])
	}
	jobID, _ := data["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job_id in the response")
	}

	job, err := st.GetFollowUp(jobID)
	if err != nil {
		t.Fatalf("GetFollowUp failed: %v", err)
	}
	if job == nil {
		t.Fatal("expected job to be persisted")
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("expected pending job, got %s", job.Status)
	}
	if job.Channel != models.ChannelInstagram {
		t.Errorf("expected channel to default to the lead's, got %s", job.Channel)
	}
	wantDue := time.Now().Add(time.Duration(delaySeconds) * time.Second)
	if diff := job.ScheduledAt.Sub(wantDue); diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("expected due around %v, got %v", wantDue, job.ScheduledAt)
	}
}

func TestScheduleFollowUpRejectsPausedLead(t *testing.T) {
	srv, st := testutil.NewTestServer()
	lead := testutil.SeedLead(t, st, &models.Lead{UserID: "user-1", Channel: models.ChannelInstagram, ExternalID: "ig-1", AIPaused: true})

	req := testutil.CreateHTTPRequest(t, "POST", "/leads/"+lead.ID+"/followups", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "paused lead")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestScheduleFollowUpRejectsTerminalLead(t *testing.T) {
	srv, st := testutil.NewTestServer()
	lead := testutil.SeedLead(t, st, &models.Lead{UserID: "user-1", Channel: models.ChannelEmail, Email: "x@example.com", Status: models.LeadStatusConverted})

	req := testutil.CreateHTTPRequest(t, "POST", "/leads/"+lead.ID+"/followups", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "terminal lead")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestGetFollowUp(t *testing.T) {
	srv, st := testutil.NewTestServer()
	lead := testutil.SeedLead(t, st, &models.Lead{UserID: "user-1", Channel: models.ChannelInstagram, ExternalID: "ig-1"})

	req := testutil.CreateHTTPRequest(t, "POST", "/leads/"+lead.ID+"/followups", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "schedule follow-up")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	jobID := response["data"].(map[string]interface{})["job_id"].(string)

	req = testutil.CreateHTTPRequest(t, "GET", "/followups/"+jobID, nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get follow-up")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestGetUnknownFollowUp(t *testing.T) {
	srv, _ := testutil.NewTestServer()

	req := testutil.CreateHTTPRequest(t, "GET", "/followups/job_missing", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown follow-up")
	testutil.AssertJSONResponse(t, rr, "error")
}
