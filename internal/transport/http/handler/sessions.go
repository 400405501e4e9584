package handler

import (
	"net/http"

	"github.com/go-otp-link/internal/transport/http/middleware"
)

// SessionHandler exposes the current session to authenticated clients.
type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// GetCurrent reports the session behind the request's cookie. The auth
// middleware guarantees the claims are present.
func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
	})
}
