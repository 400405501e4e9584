package tmpl

import (
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	texttemplate "text/template"

	"github.com/go-otp-link/internal/application/otpauth"
)

//go:embed all:templates
var templateFS embed.FS

const defaultLocale = "en"

// Renderer renders embedded templates with per-file locale fallback: the
// user's locale is tried first, then the application locale, then "en".
// HTML documents go through html/template for contextual escaping; text and
// JSON documents go through text/template.
type Renderer struct {
	fsys fs.FS
}

func NewRenderer() *Renderer {
	return &Renderer{fsys: templateFS}
}

// Render renders the named document, e.g. "email/login-link/body.html" or
// "web/login.html". Partials are extra named templates made available to the
// document via {{template "name" .}}.
func (r *Renderer) Render(name string, loc otpauth.Locales, view map[string]any, partials map[string]string) (string, error) {
	source, err := r.resolve(name, loc)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(name, ".html") {
		return renderHTML(name, source, view, partials)
	}
	return renderText(name, source, view, partials)
}

// resolve returns the first existing localized variant of the document.
func (r *Renderer) resolve(name string, loc otpauth.Locales) (string, error) {
	tried := make([]string, 0, 3)
	for _, locale := range []string{loc.User, loc.App, defaultLocale} {
		if locale == "" {
			continue
		}
		candidate := path.Join("templates", locale, name)
		data, err := fs.ReadFile(r.fsys, candidate)
		if err == nil {
			return string(data), nil
		}
		tried = append(tried, candidate)
	}
	return "", fmt.Errorf("template %s: no variant found (tried %s)", name, strings.Join(tried, ", "))
}

func renderHTML(name, source string, view map[string]any, partials map[string]string) (string, error) {
	t, err := htmltemplate.New(name).Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	for pname, psource := range partials {
		if _, err := t.New(pname).Parse(psource); err != nil {
			return "", fmt.Errorf("parse partial %s: %w", pname, err)
		}
	}
	var b strings.Builder
	if err := t.ExecuteTemplate(&b, name, view); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return b.String(), nil
}

func renderText(name, source string, view map[string]any, partials map[string]string) (string, error) {
	t, err := texttemplate.New(name).Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	for pname, psource := range partials {
		if _, err := t.New(pname).Parse(psource); err != nil {
			return "", fmt.Errorf("parse partial %s: %w", pname, err)
		}
	}
	var b strings.Builder
	if err := t.ExecuteTemplate(&b, name, view); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return b.String(), nil
}
