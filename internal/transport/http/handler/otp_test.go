package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-otp-link/internal/application/otpauth"
	"github.com/go-otp-link/internal/domain"
	"github.com/go-otp-link/internal/infrastructure/tmpl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFlow struct {
	formToken string
	register  func(req otpauth.CredentialsRequest) domain.FlowResult
	login     func(req otpauth.CredentialsRequest) domain.FlowResult
	outcome   otpauth.CallbackOutcome
	gotToken  string
}

func (s *stubFlow) NewFormToken() string { return s.formToken }

func (s *stubFlow) Register(_ context.Context, req otpauth.CredentialsRequest, _ otpauth.Locales) domain.FlowResult {
	return s.register(req)
}

func (s *stubFlow) Login(_ context.Context, req otpauth.CredentialsRequest, _ otpauth.Locales) domain.FlowResult {
	return s.login(req)
}

func (s *stubFlow) Authenticate(_ context.Context, tokenValue string, _ http.ResponseWriter, _ *http.Request) otpauth.CallbackOutcome {
	s.gotToken = tokenValue
	return s.outcome
}

func (s *stubFlow) Verify(_ context.Context, tokenValue string, _ http.ResponseWriter, _ *http.Request) otpauth.CallbackOutcome {
	s.gotToken = tokenValue
	return s.outcome
}

type stubLocales struct{}

func (stubLocales) Locales(*http.Request) otpauth.Locales { return otpauth.Locales{App: "en"} }

type stubRedirects struct{ stored string }

func (s *stubRedirects) StoreRedirectURL(_ http.ResponseWriter, target string) { s.stored = target }

func newHandler(flow *stubFlow) (*OTPHandler, *stubRedirects) {
	redirects := &stubRedirects{}
	return NewOTPHandler(flow, tmpl.NewRenderer(), stubLocales{}, redirects), redirects
}

func TestShowLoginFormEmbedsFormToken(t *testing.T) {
	flow := &stubFlow{formToken: "form-token-1"}
	h, redirects := newHandler(flow)

	w := httptest.NewRecorder()
	h.ShowLoginForm(w, httptest.NewRequest(http.MethodGet, "/login?redirect=/account", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "form-token-1")
	assert.Equal(t, "/account", redirects.stored)
}

func TestRegisterAcceptsJSON(t *testing.T) {
	var got otpauth.CredentialsRequest
	flow := &stubFlow{register: func(req otpauth.CredentialsRequest) domain.FlowResult {
		got = req
		return domain.ResultSuccess
	}}
	h, _ := newHandler(flow)

	body := `{"email":"user@example.com","xsrfToken":"tok"}`
	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Register(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"SUCCESS"}`, w.Body.String())
	assert.Equal(t, "user@example.com", got.Email)
	assert.Equal(t, "tok", got.XsrfToken)
}

func TestLoginAcceptsURLEncodedForm(t *testing.T) {
	var got otpauth.CredentialsRequest
	flow := &stubFlow{login: func(req otpauth.CredentialsRequest) domain.FlowResult {
		got = req
		return domain.ResultWrongXsrf
	}}
	h, _ := newHandler(flow)

	r := httptest.NewRequest(http.MethodPost, "/login",
		strings.NewReader("email=user%40example.com&xsrfToken=tok"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.Login(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"result":"WRONG_XSRF"}`, w.Body.String())
	assert.Equal(t, "user@example.com", got.Email)
}

func TestRegisterUndefinedIsServerError(t *testing.T) {
	flow := &stubFlow{register: func(otpauth.CredentialsRequest) domain.FlowResult {
		return domain.ResultUndefined
	}}
	h, _ := newHandler(flow)

	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"email":"a@b.c","xsrfToken":"t"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Register(w, r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"result":"UNDEFINED"}`, w.Body.String())
}

func TestRegisterRejectsMalformedJSON(t *testing.T) {
	h, _ := newHandler(&stubFlow{})
	r := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{not json"))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Register(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthenticateRedirectsToPendingTarget(t *testing.T) {
	flow := &stubFlow{outcome: otpauth.CallbackOutcome{
		Result:   domain.ResultSuccess,
		Redirect: "/dashboard",
	}}
	h, _ := newHandler(flow)

	w := httptest.NewRecorder()
	h.Authenticate(w, httptest.NewRequest(http.MethodGet, "/auth?token=abc", nil))

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.Equal(t, "abc", flow.gotToken)
}

func TestAuthenticateRendersRejectionPage(t *testing.T) {
	flow := &stubFlow{outcome: otpauth.CallbackOutcome{Result: domain.ResultWrongOtp}}
	h, _ := newHandler(flow)

	w := httptest.NewRecorder()
	h.Authenticate(w, httptest.NewRequest(http.MethodGet, "/auth?token=stale", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Link is not valid")
}

func TestAuthenticateStepUpWithoutRedirectIsForbidden(t *testing.T) {
	flow := &stubFlow{outcome: otpauth.CallbackOutcome{Result: domain.ResultErr403}}
	h, _ := newHandler(flow)

	w := httptest.NewRecorder()
	h.Authenticate(w, httptest.NewRequest(http.MethodGet, "/auth?token=abc", nil))

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Additional verification required")
}

func TestVerifyRendersSuccessPage(t *testing.T) {
	flow := &stubFlow{outcome: otpauth.CallbackOutcome{Result: domain.ResultSuccess}}
	h, _ := newHandler(flow)

	w := httptest.NewRecorder()
	h.Verify(w, httptest.NewRequest(http.MethodGet, "/verify?token=abc", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Email verified")
}

func TestVerifyUnknownErrorRendersErrorPage(t *testing.T) {
	flow := &stubFlow{outcome: otpauth.CallbackOutcome{Result: domain.ResultUnknownError}}
	h, _ := newHandler(flow)

	w := httptest.NewRecorder()
	h.Verify(w, httptest.NewRequest(http.MethodGet, "/verify?token=abc", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Something went wrong")
}
