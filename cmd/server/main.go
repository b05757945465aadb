package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dom/slash-backend/internal/api"
	"github.com/dom/slash-backend/internal/config"
	"github.com/dom/slash-backend/internal/identity"
	"github.com/dom/slash-backend/internal/metrics"
	"github.com/dom/slash-backend/internal/repository/postgres"
	"github.com/dom/slash-backend/internal/service"
	"github.com/dom/slash-backend/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	appName             = "slash"
	refreshPurgePeriod  = time.Hour
	identityHTTPTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogging(cfg)
	if cfg.IsDevelopment() {
		displayAppname(appName)
	}

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get database handle")
	}

	// Initialize repositories
	repos := postgres.NewRepositories(db)

	// Identity verifier: provider discovery happens once, here. The key set
	// keeps using this context, so it must not be cancelled.
	oidcCtx := oidc.ClientContext(context.Background(), &http.Client{Timeout: identityHTTPTimeout})
	verifier, err := identity.NewOIDCVerifier(oidcCtx, cfg.IdentityIssuer, cfg.IdentityProjectID)
	if err != nil {
		log.Fatal().Err(err).Str("issuer", cfg.IdentityIssuer).Msg("failed to initialize identity verifier")
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize services
	services := service.NewServices(repos, cfg, verifier, hub)

	metrics.Register(prometheus.DefaultRegisterer)

	// Initialize router
	router := api.NewRouter(services, hub, cfg, sqlDB)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go services.Refresh.RunPurger(bgCtx, refreshPurgePeriod)

	// Create server
	srv := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	stopBackground()
	hub.Stop()
	services.Close()
	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}

	log.Info().Msg("server stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
