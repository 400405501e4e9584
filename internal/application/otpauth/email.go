package otpauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-otp-link/internal/domain"
)

// EmailKind selects one of the transactional emails this package sends.
type EmailKind string

const (
	// EmailSignupVerify carries the email-verification link after registration.
	EmailSignupVerify EmailKind = "signup-verify"
	// EmailLoginLink carries the one-time authentication link for a login request.
	EmailLoginLink EmailKind = "login-link"
	// EmailSignupConfirm is the follow-up sent after a successful verification.
	EmailSignupConfirm EmailKind = "signup-confirm"
	// EmailSigninConfirm is the follow-up sent after a successful authentication.
	EmailSigninConfirm EmailKind = "signin-confirm"
)

const (
	verifyTokenLifetime = 24 * time.Hour
	authTokenLifetime   = time.Hour
)

// LinkConfig holds the values the verification/authentication URLs are built
// from. The URLs are computed once at dispatcher construction.
type LinkConfig struct {
	PublicURL string // e.g. "https://example.com"
	BasePath  string // mount point of the auth routes, e.g. "/auth-otp"
}

// Dispatcher implements the email dispatch workflow: look up the recipient
// identity, mint a link token when the kind calls for one, render subject and
// bodies with locale fallback, and attempt delivery. Everything up to the
// delivery attempt runs inside one transaction; a minted token outlives a
// failed delivery on purpose, since the token only ever travels by email.
type Dispatcher struct {
	tx         Transactor
	identities IdentityRepo
	tokens     TokenIssuer
	renderer   Renderer
	mailer     Mailer
	host       Host

	verifyURL string // verification link base, token value appended
	authURL   string // authentication link base, token value appended
}

// NewDispatcher builds a dispatcher. Link bases are derived from cfg here,
// not lazily on first use.
func NewDispatcher(tx Transactor, identities IdentityRepo, tokens TokenIssuer, renderer Renderer, mailer Mailer, host Host, cfg LinkConfig) *Dispatcher {
	base := cfg.PublicURL + cfg.BasePath
	return &Dispatcher{
		tx:         tx,
		identities: identities,
		tokens:     tokens,
		renderer:   renderer,
		mailer:     mailer,
		host:       host,
		verifyURL:  base + "/verify?token=",
		authURL:    base + "/auth?token=",
	}
}

// Perform runs one dispatch. A non-nil outer transaction is joined, so the
// caller's rollback also discards any token minted here. The returned error
// is non-nil only for infrastructure failures that aborted the transaction;
// delivery failure and a missing recipient are ordinary results.
func (d *Dispatcher) Perform(ctx context.Context, outer *sql.Tx, kind EmailKind, userRef string, loc Locales) (domain.DispatchResult, error) {
	result := domain.DispatchUnknownError
	err := d.tx.Execute(ctx, outer, func(tx *sql.Tx) error {
		identity, err := d.identities.FindByUser(ctx, tx, userRef)
		if err != nil {
			if domain.IsNotFound(err) {
				slog.Info("email dispatch skipped, user has no identity", "user_id", userRef, "kind", kind)
				result = domain.DispatchUserNotFound
				return nil
			}
			return err
		}

		html, text, subject, err := d.prepareContent(ctx, tx, kind, identity, loc)
		if err != nil {
			return err
		}

		if err := d.mailer.Send(ctx, identity.Email, subject, text, html); err != nil {
			slog.Error("email delivery failed", "to", identity.Email, "kind", kind, "err", err)
			result = domain.DispatchEmailSendFailed
			return nil
		}
		slog.Info("email sent", "to", identity.Email, "kind", kind)
		result = domain.DispatchSuccess
		return nil
	})
	if err != nil {
		return domain.DispatchUnknownError, err
	}
	return result, nil
}

// prepareContent renders the three template documents of a kind (HTML body,
// text body and the metadata document carrying the subject), minting the link
// token first when the kind embeds one.
func (d *Dispatcher) prepareContent(ctx context.Context, tx *sql.Tx, kind EmailKind, identity *domain.EmailIdentity, loc Locales) (html, text, subject string, err error) {
	view := map[string]any{}
	switch kind {
	case EmailSignupVerify:
		value, err := d.tokens.Create(ctx, tx, identity.UserRef, domain.TokenEmailVerification, verifyTokenLifetime)
		if err != nil {
			return "", "", "", fmt.Errorf("mint verification token: %w", err)
		}
		view["verifyLink"] = d.verifyURL + url.QueryEscape(value)
	case EmailLoginLink:
		value, err := d.tokens.Create(ctx, tx, identity.UserRef, domain.TokenAuthentication, authTokenLifetime)
		if err != nil {
			return "", "", "", fmt.Errorf("mint authentication token: %w", err)
		}
		view["authLink"] = d.authURL + url.QueryEscape(value)
	}

	vars, partials, err := d.host.TemplateData(ctx, tx, identity.UserRef, kind)
	if err != nil {
		return "", "", "", fmt.Errorf("host template data: %w", err)
	}
	for k, v := range vars {
		view[k] = v
	}

	name := "email/" + string(kind)
	if html, err = d.renderer.Render(name+"/body.html", loc, view, partials); err != nil {
		return "", "", "", fmt.Errorf("render %s/body.html: %w", name, err)
	}
	if text, err = d.renderer.Render(name+"/body.txt", loc, view, partials); err != nil {
		return "", "", "", fmt.Errorf("render %s/body.txt: %w", name, err)
	}
	meta, err := d.renderer.Render(name+"/meta.json", loc, view, partials)
	if err != nil {
		return "", "", "", fmt.Errorf("render %s/meta.json: %w", name, err)
	}

	var parsed struct {
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal([]byte(meta), &parsed); err != nil {
		return "", "", "", fmt.Errorf("parse %s/meta.json: %w", name, err)
	}
	return html, text, parsed.Subject, nil
}
