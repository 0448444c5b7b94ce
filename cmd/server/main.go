package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/officeflow/be-oa-approvals/internal/client"
	"github.com/officeflow/be-oa-approvals/internal/config"
	"github.com/officeflow/be-oa-approvals/internal/database"
	"github.com/officeflow/be-oa-approvals/internal/handler"
	"github.com/officeflow/be-oa-approvals/internal/notify"
	"github.com/officeflow/be-oa-approvals/internal/repository"
	"github.com/officeflow/be-oa-approvals/internal/scheduler"
	"github.com/officeflow/be-oa-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting OA Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize repositories
	appRepo := repository.NewApplicationRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	reminderRepo := repository.NewReminderLogRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// NATS is best-effort: realtime notifications degrade to email-only when
	// the broker is unreachable.
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Service.Name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable, realtime notifications disabled")
		} else {
			defer nc.Close()
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}

	gateway := notify.NewGateway(nc, outboxRepo, log.With().Str("component", "notify").Logger())

	mailer, err := notify.NewMailer(cfg.SMTP)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create SMTP client")
	}
	relay := notify.NewRelay(outboxRepo, mailer, cfg.Outbox, log.With().Str("component", "outbox").Logger())

	// Directory service client
	directory := client.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	log.Info().Str("directory_url", cfg.Directory.BaseURL).Msg("Directory client initialized")

	// Initialize services
	settingsService := service.NewSettingsService(settingsRepo, log.With().Str("component", "settings").Logger())
	approvalService := service.NewApprovalService(
		appRepo, approvalRepo, reminderRepo, directory, gateway, settingsService,
		cfg.Service.BaseURL,
		log.With().Str("component", "approvals").Logger(),
	)

	reminderScheduler := scheduler.New(
		appRepo, approvalRepo, reminderRepo, settingsService,
		directory, gateway, db,
		cfg.Service.BaseURL, cfg.Scheduler,
		log.With().Str("component", "scheduler").Logger(),
	)

	// Background workers
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Outbox relay stopped")
		}
	}()
	go reminderScheduler.Run(ctx)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, settingsService, reminderRepo, reminderScheduler, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = handler.RequestID(h)
	h = handler.AccessLog(log)(h)
	h = handler.Recovery(log)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stdout
	logger := zerolog.New(out)
	if cfg.Service.Environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Logger()
}
