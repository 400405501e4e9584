package session

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-otp-link/internal/application/otpauth"
	"github.com/go-otp-link/internal/config"
	"github.com/go-otp-link/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookie  = "otp_session"
	redirectCookie = "otp_redirect"
)

// Claims holds the session JWT payload fields.
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Manager issues stateless HS256 session cookies and keeps the pending
// post-login redirect target in a companion cookie.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		secret: []byte(cfg.SessionSecret),
		ttl:    cfg.SessionTTL,
		secure: cfg.AppEnv != "development",
		now:    time.Now,
	}
}

// Establish signs a session token for the user and sets it as an HTTP-only
// cookie on the response.
func (m *Manager) Establish(ctx context.Context, tx *sql.Tx, userRef string, w http.ResponseWriter, r *http.Request) (otpauth.Session, error) {
	sessionID := id.New()
	claims := Claims{
		UserID:    userRef,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(m.now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return otpauth.Session{}, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return otpauth.Session{ID: sessionID}, nil
}

// Verify parses and validates a session token string.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Current returns the claims of the request's session cookie, or nil when the
// request carries no valid session.
func (m *Manager) Current(r *http.Request) *Claims {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	claims, err := m.Verify(cookie.Value)
	if err != nil {
		return nil
	}
	return claims
}

// StoreRedirectURL remembers where to send the user after a successful
// authentication. Only relative paths are accepted so the cookie cannot be
// abused as an open redirect.
func (m *Manager) StoreRedirectURL(w http.ResponseWriter, target string) {
	if target == "" || target[0] != '/' {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     redirectCookie,
		Value:    target,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RetrieveRedirectURL returns the pending redirect target, clearing the
// cookie when remove is true.
func (m *Manager) RetrieveRedirectURL(w http.ResponseWriter, r *http.Request, remove bool) string {
	cookie, err := r.Cookie(redirectCookie)
	if err != nil {
		return ""
	}
	target := cookie.Value
	if target == "" || target[0] != '/' {
		target = ""
	}
	if remove {
		http.SetCookie(w, &http.Cookie{
			Name:     redirectCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return target
}
