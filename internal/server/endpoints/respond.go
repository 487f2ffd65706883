package endpoints

import (
	"encoding/json"
	"net/http"
	"time"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	// Kind names the extraction failure class when there is one.
	Kind      string    `json:"kind,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Timestamp: time.Now().UTC()})
}

// writeErrorDetail writes a JSON error response with a failure kind and detail.
func writeErrorDetail(w http.ResponseWriter, status int, msg, kind, detail string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: kind, Detail: detail, Timestamp: time.Now().UTC()})
}
