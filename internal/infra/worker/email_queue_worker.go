package worker

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/usecase"
)

// BatchProcessor runs one dispatcher batch.
type BatchProcessor interface {
	Execute(ctx context.Context, batchSize int) (*usecase.BatchResult, error)
}

// EmailQueueWorker drains the email queue on a fixed interval.
type EmailQueueWorker struct {
	processor    BatchProcessor
	batchSize    int
	tickInterval time.Duration
	clock        clockwork.Clock
	logger       zerolog.Logger
}

func NewEmailQueueWorker(processor BatchProcessor, batchSize int, every time.Duration, clock clockwork.Clock, logger zerolog.Logger) *EmailQueueWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if every <= 0 {
		every = time.Minute
	}
	return &EmailQueueWorker{
		processor:    processor,
		batchSize:    batchSize,
		tickInterval: every,
		clock:        clock,
		logger:       logger.With().Str("component", "email_queue_worker").Logger(),
	}
}

// Start runs a batch right away and then once per tick until ctx is done.
func (w *EmailQueueWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.tickInterval).Int("batch_size", w.batchSize).Msg("email queue worker started")

	ticker := w.clock.NewTicker(w.tickInterval)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("email queue worker stopped")
			return
		case <-ticker.Chan():
			w.runOnce(ctx)
		}
	}
}

func (w *EmailQueueWorker) runOnce(ctx context.Context) {
	res, err := w.processor.Execute(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("email batch failed")
		}
		return
	}
	if res.Processed == 0 {
		return
	}

	ev := w.logger.Info()
	if res.Failed > 0 {
		ev = w.logger.Warn().Strs("errors", res.Errors)
	}
	ev.Int("processed", res.Processed).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Msg("email batch processed")
}
