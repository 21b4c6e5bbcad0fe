package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xavierca1/leadflow/internal/config"
	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/database"
	"github.com/xavierca1/leadflow/internal/infra/http/handlers"
	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
	"github.com/xavierca1/leadflow/internal/infra/mail"
	"github.com/xavierca1/leadflow/internal/infra/queue"
	"github.com/xavierca1/leadflow/internal/infra/worker"
	"github.com/xavierca1/leadflow/internal/logging"
	"github.com/xavierca1/leadflow/internal/usecase"
)

const (
	version      = "1.0.0"
	maxBodyBytes = 64 << 10
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	db, err := database.NewDBConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	sender, err := mail.NewSender(cfg, logger)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()

	// 1. Repositories
	intakeRepo := database.NewIntakeRepository(db)
	leadRepo := database.NewLeadRepository(db)
	emailRepo := database.NewEmailQueueRepository(db)
	auditRepo := database.NewAuditLogRepository(db)
	followUpRepo := database.NewFollowUpRepository(db)
	analyticsRepo := database.NewAnalyticsRepository(db)

	// 2. Use cases
	enqueueUC := usecase.NewEnqueueEmailUseCase(emailRepo, leadRepo, auditRepo, clock, logger)
	followUpUC := usecase.NewFollowUpUseCase(leadRepo, followUpRepo, enqueueUC, auditRepo, clock, logger)
	assignUC := usecase.NewAssignLeadUseCase(leadRepo, followUpUC, auditRepo, cfg.FollowUpDelay, clock, logger)
	queriesUC := usecase.NewLeadQueryUseCase(leadRepo)
	reportingUC := usecase.NewReportingUseCase(auditRepo, analyticsRepo, emailRepo, clock)
	processUC := usecase.NewProcessEmailQueueUseCase(
		emailRepo, sender, auditRepo, cfg.EmailFrom,
		cfg.EmailMaxAttempts, cfg.EmailRetryBackoff, cfg.EmailClaimTimeout,
		clock, logger,
	)

	// 3. Optional broker: lead.created events feed the welcome email
	var (
		events usecase.LeadEventPublisher
		broker handlers.BrokerConn
	)
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitMQ(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer rabbit.Close()

		consumeCh, err := rabbit.Conn.Channel()
		if err != nil {
			return fmt.Errorf("open consumer channel: %w", err)
		}
		defer consumeCh.Close()

		events = queue.NewProducer(rabbit.Ch)
		broker = rabbit.Conn

		leadWorker := queue.NewLeadEventWorker(consumeCh, enqueueUC, logger)
		go func() {
			if err := leadWorker.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("lead event worker exited")
			}
		}()
	} else {
		logger.Info().Msg("AMQP_URL not set, lead events disabled")
	}

	policy := entity.SubmissionPolicy{Threshold: cfg.RateLimitThreshold, Window: cfg.RateLimitWindow}
	submitUC := usecase.NewSubmitLeadUseCase(intakeRepo, auditRepo, events, policy, clock, logger)

	if cfg.EmailWorkerEvery > 0 {
		w := worker.NewEmailQueueWorker(processUC, cfg.EmailBatchSize, cfg.EmailWorkerEvery, clock, logger)
		go w.Start(ctx)
	}

	// 4. Handlers
	admin := &handlers.AdminHandler{
		Leads:     queriesUC,
		Assigner:  assignUC,
		FollowUps: followUpUC,
		Emails:    enqueueUC,
		Reports:   reportingUC,
	}
	r := newRouter(cfg, logger, routeHandlers{
		leads:  handlers.NewLeadHandler(submitUC, cfg.TrustedProxies),
		queue:  handlers.NewEmailQueueHandler(processUC),
		admin:  admin,
		health: handlers.NewHealthHandler(db, broker, version),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("leadflow listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeHandlers struct {
	leads  *handlers.LeadHandler
	queue  *handlers.EmailQueueHandler
	admin  *handlers.AdminHandler
	health *handlers.HealthHandler
}

func newRouter(cfg *config.Config, logger zerolog.Logger, h routeHandlers) http.Handler {
	auth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer)

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", h.health.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/public/leads", h.leads.CaptureLead)

	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.With(middleware.RequireRoles(entity.RoleSystem, entity.RoleAdmin)).
			Post("/api/internal/email-queue/process", h.queue.Process)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRoles(entity.RoleAdmin, entity.RoleManager))

			r.Get("/api/leads", h.admin.ListLeads)
			r.Get("/api/leads/{id}", h.admin.GetLead)
			r.Post("/api/leads/{id}/followups", h.admin.ScheduleFollowUp)
			r.Get("/api/followups", h.admin.ListFollowUps)
			r.Patch("/api/followups/{id}", h.admin.UpdateFollowUp)
			r.Get("/api/analytics/summary", h.admin.Summary)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRoles(entity.RoleAdmin))

			r.Put("/api/leads/{id}/assignee", h.admin.AssignLead)
			r.Post("/api/leads/{id}/confirmation", h.admin.SendConfirmation)
			r.Post("/api/emails", h.admin.EnqueueEmail)
			r.Get("/api/audit-logs", h.admin.ListAuditLogs)
		})
	})

	return r
}
