package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-otp-link/internal/application/otpauth"
	"github.com/go-otp-link/internal/config"
	hostinfra "github.com/go-otp-link/internal/infrastructure/host"
	"github.com/go-otp-link/internal/infrastructure/memory"
	"github.com/go-otp-link/internal/infrastructure/postgres"
	"github.com/go-otp-link/internal/infrastructure/session"
	"github.com/go-otp-link/internal/infrastructure/smtp"
	"github.com/go-otp-link/internal/infrastructure/tmpl"
	transporthttp "github.com/go-otp-link/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	db, err := postgres.Open(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()
	if err := postgres.Bootstrap(context.Background(), db); err != nil {
		log.Fatalf("postgres bootstrap: %v", err)
	}

	// XSRF token cache with its background cleanup.
	xsrf := memory.NewXsrfCache()
	xsrf.SetDefaultLifetime(cfg.XsrfLifetime)
	xsrf.SetMaxSize(cfg.XsrfMaxSize)
	sweeper := memory.NewSweeper(xsrf, cfg.XsrfSweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	// Expired link tokens are invisible to reads; this loop reclaims the rows.
	tokenGC := make(chan struct{})
	defer close(tokenGC)

	txRunner := postgres.NewTxRunner(db)
	identities := postgres.NewIdentityRepo(db)
	tokens := postgres.NewTokenRepo(db)
	users := postgres.NewUserRepo(db)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := tokens.DeleteExpired(context.Background(), nil); err != nil {
					log.Printf("token cleanup: %v", err)
				} else if n > 0 {
					log.Printf("token cleanup: removed %d expired rows", n)
				}
			case <-tokenGC:
				return
			}
		}
	}()

	sessions := session.NewManager(cfg)
	renderer := tmpl.NewRenderer()
	mailer := smtp.NewMailer(cfg)
	appHost := hostinfra.NewDefault(users, "en")

	dispatcher := otpauth.NewDispatcher(txRunner, identities, tokens, renderer, mailer, appHost, otpauth.LinkConfig{
		PublicURL: cfg.PublicURL,
		BasePath:  cfg.BasePath,
	})
	svc := otpauth.NewService(txRunner, identities, tokens, sessions, xsrf, appHost, dispatcher)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := &transporthttp.Deps{
		Service:  svc,
		Renderer: renderer,
		Host:     appHost,
		Sessions: sessions,
		Registry: registry,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
