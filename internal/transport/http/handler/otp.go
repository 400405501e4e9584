package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-otp-link/internal/application/otpauth"
	"github.com/go-otp-link/internal/domain"
)

// FlowService is the slice of the application service the handlers require.
type FlowService interface {
	NewFormToken() string
	Register(ctx context.Context, req otpauth.CredentialsRequest, loc otpauth.Locales) domain.FlowResult
	Login(ctx context.Context, req otpauth.CredentialsRequest, loc otpauth.Locales) domain.FlowResult
	Authenticate(ctx context.Context, tokenValue string, w http.ResponseWriter, r *http.Request) otpauth.CallbackOutcome
	Verify(ctx context.Context, tokenValue string, w http.ResponseWriter, r *http.Request) otpauth.CallbackOutcome
}

// RedirectStore remembers the post-login redirect target requested via the
// form pages.
type RedirectStore interface {
	StoreRedirectURL(w http.ResponseWriter, target string)
}

// LocaleSource extracts locale preferences from a request.
type LocaleSource interface {
	Locales(r *http.Request) otpauth.Locales
}

// OTPHandler serves the registration and login forms, their submissions and
// the emailed link callbacks.
type OTPHandler struct {
	svc       FlowService
	renderer  otpauth.Renderer
	locales   LocaleSource
	redirects RedirectStore
}

func NewOTPHandler(svc FlowService, renderer otpauth.Renderer, locales LocaleSource, redirects RedirectStore) *OTPHandler {
	return &OTPHandler{svc: svc, renderer: renderer, locales: locales, redirects: redirects}
}

// ShowRegisterForm renders the registration page with a fresh form token.
func (h *OTPHandler) ShowRegisterForm(w http.ResponseWriter, r *http.Request) {
	h.showForm(w, r, "web/register.html")
}

// ShowLoginForm renders the login page with a fresh form token. A relative
// ?redirect= target is remembered for after the user follows the emailed link.
func (h *OTPHandler) ShowLoginForm(w http.ResponseWriter, r *http.Request) {
	h.showForm(w, r, "web/login.html")
}

func (h *OTPHandler) showForm(w http.ResponseWriter, r *http.Request, page string) {
	if target := r.URL.Query().Get("redirect"); target != "" {
		h.redirects.StoreRedirectURL(w, target)
	}
	view := map[string]any{"xsrfToken": h.svc.NewFormToken()}
	body, err := h.renderer.Render(page, h.locales.Locales(r), view, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "page rendering failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// Register processes a registration submission.
func (h *OTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	writeResult(w, h.svc.Register(r.Context(), req, h.locales.Locales(r)))
}

// Login processes a login submission.
func (h *OTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	writeResult(w, h.svc.Login(r.Context(), req, h.locales.Locales(r)))
}

// Authenticate consumes an emailed sign-in link.
func (h *OTPHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	outcome := h.svc.Authenticate(r.Context(), r.URL.Query().Get("token"), w, r)
	h.finishCallback(w, r, outcome, "web/authenticate.html")
}

// Verify consumes an emailed verification link.
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	outcome := h.svc.Verify(r.Context(), r.URL.Query().Get("token"), w, r)
	h.finishCallback(w, r, outcome, "web/verify.html")
}

// finishCallback either redirects to the outcome's target or renders the
// status page for the result.
func (h *OTPHandler) finishCallback(w http.ResponseWriter, r *http.Request, outcome otpauth.CallbackOutcome, page string) {
	if outcome.Redirect != "" {
		http.Redirect(w, r, outcome.Redirect, http.StatusSeeOther)
		return
	}
	view := map[string]any{
		"isSuccess":      outcome.Result == domain.ResultSuccess,
		"isWrongOtp":     outcome.Result == domain.ResultWrongOtp,
		"isErr403":       outcome.Result == domain.ResultErr403,
		"isUnknownError": outcome.Result == domain.ResultUnknownError,
	}
	body, err := h.renderer.Render(page, h.locales.Locales(r), view, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "page rendering failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(callbackStatus(outcome.Result))
	_, _ = w.Write([]byte(body))
}

func callbackStatus(result domain.FlowResult) int {
	switch result {
	case domain.ResultSuccess, domain.ResultWrongOtp:
		return http.StatusOK
	case domain.ResultErr401:
		return http.StatusUnauthorized
	case domain.ResultErr403:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// decodeCredentials reads the submission as JSON or an URL-encoded form,
// negotiated by Content-Type.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (otpauth.CredentialsRequest, bool) {
	var req otpauth.CredentialsRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return req, false
		}
		return req, true
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return req, false
	}
	req.Email = r.PostFormValue("email")
	req.XsrfToken = r.PostFormValue("xsrfToken")
	return req, true
}
