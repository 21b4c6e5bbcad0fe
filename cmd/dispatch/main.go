// Command dispatch runs a single email queue batch and exits. It is meant
// for cron style triggers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xavierca1/leadflow/internal/config"
	"github.com/xavierca1/leadflow/internal/infra/database"
	"github.com/xavierca1/leadflow/internal/infra/mail"
	"github.com/xavierca1/leadflow/internal/logging"
	"github.com/xavierca1/leadflow/internal/usecase"
)

func main() {
	batch := flag.Int("batch", 0, "rows to claim (defaults to EMAIL_BATCH_SIZE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, *batch, logger); err != nil {
		logger.Error().Err(err).Msg("email dispatch failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, batch int, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDBConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer db.Close()

	sender, err := mail.NewSender(cfg, logger)
	if err != nil {
		return fmt.Errorf("email provider unavailable: %w", err)
	}

	uc := usecase.NewProcessEmailQueueUseCase(
		database.NewEmailQueueRepository(db), sender, database.NewAuditLogRepository(db), cfg.EmailFrom,
		cfg.EmailMaxAttempts, cfg.EmailRetryBackoff, cfg.EmailClaimTimeout,
		clockwork.NewRealClock(), logger,
	)

	if batch <= 0 {
		batch = cfg.EmailBatchSize
	}

	res, err := uc.Execute(ctx, batch)
	if err != nil {
		return err
	}

	logger.Info().
		Int("processed", res.Processed).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Strs("errors", res.Errors).
		Msg("email batch processed")
	return nil
}
