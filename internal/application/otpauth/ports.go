package otpauth

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-otp-link/internal/domain"
)

// Transactor executes a unit of work atomically. When outer is non-nil the
// work joins the enclosing transaction and the owner commits; otherwise a new
// transaction is opened, committed on success and rolled back on error.
type Transactor interface {
	Execute(ctx context.Context, outer *sql.Tx, fn func(tx *sql.Tx) error) error
}

// IdentityRepo persists email identities. Lookups return domain.ErrNotFound
// when no row matches.
type IdentityRepo interface {
	FindByEmail(ctx context.Context, tx *sql.Tx, email string) (*domain.EmailIdentity, error)
	FindByUser(ctx context.Context, tx *sql.Tx, userRef string) (*domain.EmailIdentity, error)
	Create(ctx context.Context, tx *sql.Tx, identity *domain.EmailIdentity) error
	Update(ctx context.Context, tx *sql.Tx, identity *domain.EmailIdentity) error
}

// TokenIssuer manages one-time tokens. Read must report a missing, expired or
// otherwise unusable token uniformly as domain.ErrNotFound so that callers
// cannot distinguish the cases.
type TokenIssuer interface {
	Create(ctx context.Context, tx *sql.Tx, userRef string, typ domain.TokenType, lifetime time.Duration) (string, error)
	Read(ctx context.Context, tx *sql.Tx, value string) (*domain.OneTimeToken, error)
	Delete(ctx context.Context, tx *sql.Tx, id string) error
}

// Session is the outcome of a session establishment attempt. Exactly one of
// ID and RedirectURL is set on success; both empty means the attempt was
// rejected outright.
type Session struct {
	ID          string
	RedirectURL string // alternate target, e.g. an external step-up page
}

// SessionManager establishes sessions and tracks the pending post-login
// redirect target set before the user was sent to the login page.
type SessionManager interface {
	Establish(ctx context.Context, tx *sql.Tx, userRef string, w http.ResponseWriter, r *http.Request) (Session, error)
	RetrieveRedirectURL(w http.ResponseWriter, r *http.Request, remove bool) string
}

// Locales carries the locale preference chain for template rendering.
type Locales struct {
	User string // explicit user preference, may be empty
	App  string // application default, may be empty
}

// Renderer renders a named template with the given view model, choosing the
// first available locale from user, app and the package default.
type Renderer interface {
	Render(name string, loc Locales, view map[string]any, partials map[string]string) (string, error)
}

// Mailer attempts delivery of a transactional email. Implementations should
// bound the attempt with a timeout; a timeout is an ordinary delivery failure.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Host is the policy hook surface the embedding application implements.
type Host interface {
	// CanRegisterEmail decides whether a (normalized) email may register.
	CanRegisterEmail(ctx context.Context, tx *sql.Tx, email string) (bool, error)
	// CreateUser creates the user account for a new registration and returns
	// its identifier.
	CreateUser(ctx context.Context, tx *sql.Tx, email string) (string, error)
	// Locales extracts the locale preferences for a request.
	Locales(r *http.Request) Locales
	// TemplateData supplies extra view variables and partials for the email
	// templates of the given kind.
	TemplateData(ctx context.Context, tx *sql.Tx, userRef string, kind EmailKind) (vars map[string]any, partials map[string]string, err error)
}
