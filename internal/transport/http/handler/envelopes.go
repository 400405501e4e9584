package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-otp-link/internal/domain"
)

// ResultEnvelope is the response wrapper for the form submission endpoints.
// The result string is the wire contract; clients switch on it.
type ResultEnvelope struct {
	Result domain.FlowResult `json:"result"`
}

// MessageEnvelope is the generic response wrapper for auxiliary endpoints.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// writeResult maps a flow result to its JSON envelope. An undetermined
// outcome is the only server fault the submission endpoints report.
func writeResult(w http.ResponseWriter, result domain.FlowResult) {
	status := http.StatusOK
	if result == domain.ResultUndefined {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ResultEnvelope{Result: result})
}
