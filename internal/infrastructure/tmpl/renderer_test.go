package tmpl

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-otp-link/internal/application/otpauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmailBodyEmbedsLink(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("email/login-link/body.html", otpauth.Locales{}, map[string]any{
		"authLink": "https://app.test/auth-otp/auth?token=abc",
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, `href="https://app.test/auth-otp/auth?token=abc"`)
}

func TestRenderHTMLEscapesView(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("web/login.html", otpauth.Locales{}, map[string]any{
		"xsrfToken": `"><script>alert(1)</script>`,
	}, nil)
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>alert(1)</script>")
}

func TestRenderMetaIsValidJSON(t *testing.T) {
	r := NewRenderer()
	for _, kind := range []string{"signup-verify", "login-link", "signup-confirm", "signin-confirm"} {
		out, err := r.Render("email/"+kind+"/meta.json", otpauth.Locales{}, nil, nil)
		require.NoError(t, err, kind)
		var meta struct {
			Subject string `json:"subject"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &meta), kind)
		assert.NotEmpty(t, meta.Subject, kind)
	}
}

func TestRenderLocaleFallbackPerFile(t *testing.T) {
	r := NewRenderer()
	loc := otpauth.Locales{User: "es", App: "en"}

	// the Spanish variant exists for the metadata document
	meta, err := r.Render("email/login-link/meta.json", loc, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, meta, "Tu enlace de acceso")

	// the HTML body has no Spanish variant and falls back to English
	body, err := r.Render("email/login-link/body.html", loc, map[string]any{"authLink": "x"}, nil)
	require.NoError(t, err)
	assert.Contains(t, body, "Sign me in")
}

func TestRenderUnknownLocaleFallsBackToDefault(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("web/register.html", otpauth.Locales{User: "fr", App: "de"}, map[string]any{
		"xsrfToken": "tok",
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Create your account")
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render("email/password-reset/body.html", otpauth.Locales{}, nil, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no variant found"))
}

func TestRenderWithPartials(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("email/signup-confirm/body.txt", otpauth.Locales{}, nil, map[string]string{
		"footer": "-- The {{.appName}} team",
	})
	require.NoError(t, err)
	// the partial is available but the stock template does not reference it
	assert.Contains(t, out, "confirmed")

	out, err = r.Render("web/authenticate.html", otpauth.Locales{}, map[string]any{"isSuccess": true}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "You are signed in")
}
