// Package testutil provides common test utilities and helpers for nurture tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keelhq/nurture/internal/api"
	"github.com/keelhq/nurture/internal/health"
	"github.com/keelhq/nurture/internal/models"
	"github.com/keelhq/nurture/internal/notify"
	"github.com/keelhq/nurture/internal/store"
)

// NewTestServer creates a test API server backed by an in-memory store and a
// fresh health monitor. The store is returned so tests can seed and inspect it.
func NewTestServer() (*api.Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	monitor := health.NewMonitor(notify.NewNotifier(st))
	return api.NewServer(st, monitor), st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response envelope and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// SeedLead adds a lead to the store and fails the test on error.
func SeedLead(t *testing.T, st store.Store, lead *models.Lead) *models.Lead {
	t.Helper()
	if err := st.CreateLead(lead); err != nil {
		t.Fatalf("failed to seed lead: %v", err)
	}
	return lead
}

// AssertLeadCount validates the number of leads stored for a user.
func AssertLeadCount(t *testing.T, st store.Store, userID string, expected int, context string) {
	t.Helper()
	leads, err := st.ListLeadsByUser(userID)
	if err != nil {
		t.Fatalf("%s: failed to list leads: %v", context, err)
	}
	if len(leads) != expected {
		t.Errorf("%s: expected %d leads, got %d", context, expected, len(leads))
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
