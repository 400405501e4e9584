package http

import (
	"github.com/go-otp-link/internal/application/otpauth"
	"github.com/go-otp-link/internal/infrastructure/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds the wired dependencies the router needs.
type Deps struct {
	Service  *otpauth.Service
	Renderer otpauth.Renderer
	Host     otpauth.Host
	Sessions *session.Manager

	// Registry receives the HTTP metrics and backs the /metrics endpoint.
	// A nil registry disables metrics.
	Registry *prometheus.Registry
}
