// Package api provides the HTTP admin surface: lead management, manual
// follow-up scheduling, and worker health inspection.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Response is the JSON envelope for every endpoint.
type Response struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func ok(data interface{}) Response {
	return Response{Status: "ok", Data: data}
}

func errorResponse(msg string) Response {
	return Response{Status: "error", Error: msg}
}

// Pre-marshaled fallback so a marshal failure can still produce a valid body.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(errorResponse("internal server error"))
	if err != nil {
		panic(fmt.Sprintf("failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response Response) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}
