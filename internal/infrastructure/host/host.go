package host

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/go-otp-link/internal/application/otpauth"
	"github.com/go-otp-link/internal/infrastructure/postgres"
	"github.com/go-otp-link/internal/pkg/validate"
)

// Default is the stock policy adapter used when the embedding application
// supplies no hooks of its own: any syntactically valid address may register,
// users live in the bundled app_user table, locales come from the
// Accept-Language header and email templates get no extra data.
type Default struct {
	users     *postgres.UserRepo
	appLocale string
}

func NewDefault(users *postgres.UserRepo, appLocale string) *Default {
	return &Default{users: users, appLocale: appLocale}
}

func (h *Default) CanRegisterEmail(ctx context.Context, tx *sql.Tx, email string) (bool, error) {
	return validate.Var(email, "required,email") == nil, nil
}

func (h *Default) CreateUser(ctx context.Context, tx *sql.Tx, email string) (string, error) {
	return h.users.Create(ctx, tx, email)
}

// Locales takes the primary Accept-Language tag as the user preference,
// reduced to its base language ("en-GB" becomes "en").
func (h *Default) Locales(r *http.Request) otpauth.Locales {
	return otpauth.Locales{
		User: primaryLanguage(r.Header.Get("Accept-Language")),
		App:  h.appLocale,
	}
}

func (h *Default) TemplateData(ctx context.Context, tx *sql.Tx, userRef string, kind otpauth.EmailKind) (map[string]any, map[string]string, error) {
	return nil, nil, nil
}

func primaryLanguage(header string) string {
	if header == "" || header == "*" {
		return ""
	}
	first := header
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	if i := strings.IndexByte(first, ';'); i >= 0 {
		first = first[:i]
	}
	if i := strings.IndexByte(first, '-'); i >= 0 {
		first = first[:i]
	}
	first = strings.TrimSpace(strings.ToLower(first))
	if first == "*" {
		return ""
	}
	return first
}
