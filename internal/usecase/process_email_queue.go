package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/mail"
	"github.com/xavierca1/leadflow/internal/infra/metrics"
)

const (
	DefaultBatchSize    = 10
	MaxBatchSize        = 100
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Minute
	DefaultClaimTimeout = 15 * time.Minute

	maxErrorMessageLength = 1000
	backoffJitter         = 0.2
)

type ProcessEmailQueueUseCase struct {
	Repo         entity.EmailQueueRepositoryInterface
	Sender       EmailSender
	Audit        AuditWriter
	From         string
	MaxAttempts  int
	RetryBackoff time.Duration
	ClaimTimeout time.Duration
	Clock        clockwork.Clock
	Logger       zerolog.Logger

	// jitter returns a value in [-1, 1].
	jitter func() float64
}

func NewProcessEmailQueueUseCase(
	repo entity.EmailQueueRepositoryInterface,
	sender EmailSender,
	audit AuditWriter,
	from string,
	maxAttempts int,
	retryBackoff time.Duration,
	claimTimeout time.Duration,
	clock clockwork.Clock,
	logger zerolog.Logger,
) *ProcessEmailQueueUseCase {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryBackoff < 0 {
		retryBackoff = DefaultRetryBackoff
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ProcessEmailQueueUseCase{
		Repo:         repo,
		Sender:       sender,
		Audit:        audit,
		From:         from,
		MaxAttempts:  maxAttempts,
		RetryBackoff: retryBackoff,
		ClaimTimeout: claimTimeout,
		Clock:        clock,
		Logger:       logger.With().Str("usecase", "process_email_queue").Logger(),
		jitter:       func() float64 { return rand.Float64()*2 - 1 },
	}
}

func normalizeBatchSize(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// Execute claims up to batchSize due emails and attempts each once. A failed
// item never stops the batch.
func (uc *ProcessEmailQueueUseCase) Execute(ctx context.Context, batchSize int) (*BatchResult, error) {
	n := normalizeBatchSize(batchSize)
	start := uc.Clock.Now()
	now := start.UTC()

	if uc.ClaimTimeout > 0 {
		released, err := uc.Repo.ReleaseStale(ctx, now.Add(-uc.ClaimTimeout), uc.MaxAttempts)
		if err != nil {
			uc.Logger.Warn().Err(err).Msg("release stale claims failed")
		} else if released > 0 {
			uc.Logger.Warn().Int64("released", released).Msg("stale email claims returned to pending")
		}
	}

	items, err := uc.Repo.ClaimDue(ctx, now, n)
	if err != nil {
		return nil, &StorageError{Op: "claim emails", Err: err}
	}

	result := &BatchResult{}
	for _, item := range items {
		if ctx.Err() != nil {
			// Unvisited rows stay in processing until the claim timeout frees them.
			result.Errors = append(result.Errors, fmt.Sprintf("batch interrupted: %v", ctx.Err()))
			break
		}
		uc.dispatch(ctx, item, result)
	}

	metrics.RecordBatch(len(items), uc.Clock.Since(start))
	if len(items) > 0 {
		uc.Logger.Info().
			Int("claimed", len(items)).
			Int("successful", result.Successful).
			Int("failed", result.Failed).
			Msg("email batch processed")
	}
	return result, nil
}

func (uc *ProcessEmailQueueUseCase) dispatch(ctx context.Context, item entity.EmailQueueItem, result *BatchResult) {
	result.Processed++

	rendered, err := mail.Render(string(item.EmailType), item.RecipientName, item.Subject, item.Body)
	if err == nil {
		err = uc.Sender.Send(ctx, mail.Message{
			From:    uc.From,
			To:      item.RecipientEmail,
			Subject: rendered.Subject,
			HTML:    rendered.HTML,
		})
	}
	at := uc.Clock.Now().UTC()

	if err != nil {
		uc.fail(ctx, item, at, err, result)
		return
	}

	result.Successful++
	metrics.RecordEmailDispatch(string(item.EmailType), string(entity.EmailSent))

	if err := uc.Repo.MarkSent(ctx, item.ID, at); err != nil {
		uc.Logger.Error().Err(err).Str("email_id", item.ID).Msg("email sent but not recorded")
		result.Errors = append(result.Errors, fmt.Sprintf("email %s: record sent: %v", item.ID, err))
		return
	}

	recordAudit(ctx, uc.Audit, uc.Logger, &entity.AuditLogEntry{
		EventTime: at,
		UserID:    item.UserID,
		Role:      entity.RoleSystem,
		Action:    entity.ActionEmailSent,
		TableName: "email_queue",
		LeadID:    item.LeadID,
		Payload: entity.EmailSentPayload{
			EmailID:   item.ID,
			Recipient: item.RecipientEmail,
			EmailType: item.EmailType,
			Subject:   rendered.Subject,
		},
	})
}

func (uc *ProcessEmailQueueUseCase) fail(ctx context.Context, item entity.EmailQueueItem, at time.Time, cause error, result *BatchResult) {
	result.Failed++

	msg := truncateMessage(cause.Error(), maxErrorMessageLength)
	result.Errors = append(result.Errors, fmt.Sprintf("email %s: %s", item.ID, msg))

	attempts := item.Attempts + 1
	outcome := entity.FailureOutcome{Message: msg, NextStatus: entity.EmailFailed}
	if attempts < uc.MaxAttempts {
		outcome.NextStatus = entity.EmailPending
		outcome.NextAttempt = at.Add(uc.backoff(attempts))
	}
	metrics.RecordEmailDispatch(string(item.EmailType), string(outcome.NextStatus))

	uc.Logger.Warn().Err(cause).
		Str("email_id", item.ID).
		Int("attempts", attempts).
		Str("next_status", string(outcome.NextStatus)).
		Msg("email delivery failed")

	if err := uc.Repo.MarkFailed(ctx, item.ID, at, outcome); err != nil {
		uc.Logger.Error().Err(err).Str("email_id", item.ID).Msg("record email failure")
		result.Errors = append(result.Errors, fmt.Sprintf("email %s: record failure: %v", item.ID, err))
	}
}

// truncateMessage keeps at most max bytes of valid UTF-8. error_message is
// a TEXT column and Postgres rejects broken sequences.
func truncateMessage(s string, max int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// backoff doubles the base delay per attempt and spreads it by up to 20%.
func (uc *ProcessEmailQueueUseCase) backoff(attempt int) time.Duration {
	if uc.RetryBackoff <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	d := float64(uc.RetryBackoff) * float64(int64(1)<<shift)
	if uc.jitter != nil {
		d *= 1 + backoffJitter*uc.jitter()
	}
	return time.Duration(d)
}
