package otpauth

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-otp-link/internal/domain"
	"github.com/go-otp-link/internal/infrastructure/memory"
	"github.com/go-otp-link/internal/pkg/validate"
)

// CredentialsRequest is the POST body of the registration and login forms.
// Accepted as JSON or URL-encoded form, negotiated by Content-Type.
type CredentialsRequest struct {
	Email     string `json:"email" validate:"required"`
	XsrfToken string `json:"xsrfToken" validate:"required"`
}

// CallbackOutcome is the result of one of the link callbacks. A non-empty
// Redirect means the client should be sent there with a 303 instead of a
// rendered status page.
type CallbackOutcome struct {
	Result   domain.FlowResult
	Redirect string
}

// Service orchestrates the four request flows: register, login, authenticate
// and verify. Each flow runs its state transition in a single transaction;
// follow-up confirmation emails go out in a second, independent transaction
// after the first one commits, and their failure never reaches the client.
type Service struct {
	tx         Transactor
	identities IdentityRepo
	tokens     TokenIssuer
	sessions   SessionManager
	xsrf       *memory.XsrfCache
	host       Host
	email      *Dispatcher

	// spawn runs the fire-and-forget secondary dispatch; replaced in tests
	// with a synchronous runner.
	spawn func(fn func())
	now   func() time.Time
}

func NewService(tx Transactor, identities IdentityRepo, tokens TokenIssuer, sessions SessionManager, xsrf *memory.XsrfCache, host Host, email *Dispatcher) *Service {
	return &Service{
		tx:         tx,
		identities: identities,
		tokens:     tokens,
		sessions:   sessions,
		xsrf:       xsrf,
		host:       host,
		email:      email,
		spawn:      func(fn func()) { go fn() },
		now:        time.Now,
	}
}

// NewFormToken caches a fresh XSRF token for a form render.
func (s *Service) NewFormToken() string {
	return s.xsrf.Create()
}

// Register processes a registration submission.
func (s *Service) Register(ctx context.Context, req CredentialsRequest, loc Locales) domain.FlowResult {
	if err := validate.Struct(req); err != nil {
		slog.Error("registration request failed validation", "err", err)
		return domain.ResultUndefined
	}
	if !s.xsrf.Has(req.XsrfToken) {
		slog.Error("XSRF token not found in the memory storage", "token", req.XsrfToken)
		return domain.ResultWrongXsrf
	}
	email := normalizeEmail(req.Email)

	result := domain.ResultUndefined
	err := s.tx.Execute(ctx, nil, func(tx *sql.Tx) error {
		_, err := s.identities.FindByEmail(ctx, tx, email)
		if err == nil {
			slog.Error("email is already registered", "email", email)
			result = domain.ResultEmailExists
			return nil
		}
		if !domain.IsNotFound(err) {
			return err
		}

		allowed, err := s.host.CanRegisterEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if !allowed {
			slog.Error("email is restricted by the application", "email", email)
			result = domain.ResultEmailNotAllowed
			return nil
		}

		userRef, err := s.host.CreateUser(ctx, tx, email)
		if err != nil {
			return err
		}
		if err := s.identities.Create(ctx, tx, &domain.EmailIdentity{
			Email:   email,
			UserRef: userRef,
			Status:  domain.StatusUnverified,
		}); err != nil {
			return err
		}

		dispatched, err := s.email.Perform(ctx, tx, EmailSignupVerify, userRef, loc)
		if err != nil {
			return err
		}
		if dispatched == domain.DispatchSuccess {
			result = domain.ResultSuccess
		}
		return nil
	})
	if err != nil {
		slog.Error("registration transaction failed", "email", email, "err", err)
		return domain.ResultUndefined
	}
	if result == domain.ResultSuccess {
		s.xsrf.Delete(req.XsrfToken)
	}
	return result
}

// Login processes a login submission. Missing identities and inactive ones
// yield the same result so account existence cannot be probed.
func (s *Service) Login(ctx context.Context, req CredentialsRequest, loc Locales) domain.FlowResult {
	if err := validate.Struct(req); err != nil {
		slog.Error("login request failed validation", "err", err)
		return domain.ResultUndefined
	}
	if !s.xsrf.Has(req.XsrfToken) {
		slog.Error("XSRF token not found in the memory storage", "token", req.XsrfToken)
		return domain.ResultWrongXsrf
	}
	email := normalizeEmail(req.Email)

	result := domain.ResultUndefined
	err := s.tx.Execute(ctx, nil, func(tx *sql.Tx) error {
		identity, err := s.identities.FindByEmail(ctx, tx, email)
		if err != nil && !domain.IsNotFound(err) {
			return err
		}
		if identity == nil || !identity.Active() {
			slog.Error("email is not allowed to log in", "email", email)
			result = domain.ResultEmailNotAllowed
			return nil
		}

		dispatched, err := s.email.Perform(ctx, tx, EmailLoginLink, identity.UserRef, loc)
		if err != nil {
			return err
		}
		if dispatched == domain.DispatchSuccess {
			result = domain.ResultSuccess
		}
		return nil
	})
	if err != nil {
		slog.Error("login transaction failed", "email", email, "err", err)
		return domain.ResultUndefined
	}
	if result == domain.ResultSuccess {
		s.xsrf.Delete(req.XsrfToken)
	}
	return result
}

// Authenticate consumes the one-time token from an authentication link and
// establishes a session. The token row is deleted between validation and
// session establishment, which makes the delete the linearization point for
// single-use enforcement.
func (s *Service) Authenticate(ctx context.Context, tokenValue string, w http.ResponseWriter, r *http.Request) CallbackOutcome {
	if tokenValue == "" {
		return CallbackOutcome{Result: domain.ResultWrongOtp}
	}

	result := domain.ResultUnknownError
	var userRef, redirectOn403 string
	err := s.tx.Execute(ctx, nil, func(tx *sql.Tx) error {
		token, err := s.tokens.Read(ctx, tx, tokenValue)
		if err != nil {
			if domain.IsNotFound(err) {
				result = domain.ResultWrongOtp
				return nil
			}
			return err
		}
		if token.Type != domain.TokenAuthentication {
			result = domain.ResultWrongOtp
			return nil
		}

		userRef = token.UserRef
		if err := s.tokens.Delete(ctx, tx, token.ID); err != nil {
			return err
		}

		session, err := s.sessions.Establish(ctx, tx, userRef, w, r)
		if err != nil {
			return err
		}
		switch {
		case session.ID != "":
			result = domain.ResultSuccess
		case session.RedirectURL != "":
			result = domain.ResultErr403
			redirectOn403 = session.RedirectURL
		default:
			result = domain.ResultErr401
		}
		return nil
	})
	if err != nil {
		slog.Error("authentication transaction failed", "err", err)
		return CallbackOutcome{Result: domain.ResultUnknownError}
	}

	outcome := CallbackOutcome{Result: result}
	switch result {
	case domain.ResultSuccess:
		s.dispatchAfterCommit(ctx, EmailSigninConfirm, userRef, s.host.Locales(r))
		outcome.Redirect = s.sessions.RetrieveRedirectURL(w, r, true)
		slog.Info("user authenticated via one-time link", "user_id", userRef)
	case domain.ResultErr403:
		outcome.Redirect = redirectOn403
	}
	return outcome
}

// Verify consumes the one-time token from a verification link, marks the
// identity as verified and establishes a session. An already-verified or
// missing identity is reported the same way as a bad token.
//
// The session cookie is written while the transaction is still open; if the
// token delete or the commit fails afterwards, the response carries the
// cookie next to an error page. The token row is untouched in that case, so
// the client can follow the link again.
func (s *Service) Verify(ctx context.Context, tokenValue string, w http.ResponseWriter, r *http.Request) CallbackOutcome {
	if tokenValue == "" {
		return CallbackOutcome{Result: domain.ResultWrongOtp}
	}

	result := domain.ResultUnknownError
	var userRef string
	err := s.tx.Execute(ctx, nil, func(tx *sql.Tx) error {
		token, err := s.tokens.Read(ctx, tx, tokenValue)
		if err != nil {
			if domain.IsNotFound(err) {
				result = domain.ResultWrongOtp
				return nil
			}
			return err
		}
		if token.Type != domain.TokenEmailVerification {
			result = domain.ResultWrongOtp
			return nil
		}

		identity, err := s.identities.FindByUser(ctx, tx, token.UserRef)
		if err != nil {
			if domain.IsNotFound(err) {
				result = domain.ResultWrongOtp
				return nil
			}
			return err
		}
		if identity.Status != domain.StatusUnverified {
			result = domain.ResultWrongOtp
			return nil
		}

		now := s.now()
		identity.Status = domain.StatusVerified
		identity.DateVerified = &now
		if err := s.identities.Update(ctx, tx, identity); err != nil {
			return err
		}
		slog.Info("email verified by user", "email", identity.Email)

		if _, err := s.sessions.Establish(ctx, tx, token.UserRef, w, r); err != nil {
			return err
		}
		if err := s.tokens.Delete(ctx, tx, token.ID); err != nil {
			return err
		}
		userRef = token.UserRef
		result = domain.ResultSuccess
		return nil
	})
	if err != nil {
		slog.Error("verification transaction failed", "err", err)
		return CallbackOutcome{Result: domain.ResultUnknownError}
	}

	if result == domain.ResultSuccess {
		s.dispatchAfterCommit(ctx, EmailSignupConfirm, userRef, s.host.Locales(r))
	}
	return CallbackOutcome{Result: result}
}

// dispatchAfterCommit fires the confirmation email in its own transaction,
// detached from the request context so response completion cannot cancel it.
// Failures are logged and swallowed.
func (s *Service) dispatchAfterCommit(ctx context.Context, kind EmailKind, userRef string, loc Locales) {
	detached := context.WithoutCancel(ctx)
	s.spawn(func() {
		if _, err := s.email.Perform(detached, nil, kind, userRef, loc); err != nil {
			slog.Error("confirmation email dispatch failed", "kind", kind, "user_id", userRef, "err", err)
		}
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
