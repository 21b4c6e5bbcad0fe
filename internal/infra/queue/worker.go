package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// WelcomeEnqueuer queues the welcome email for a freshly created lead.
type WelcomeEnqueuer interface {
	EnqueueWelcome(ctx context.Context, leadID string) (string, error)
}

// Delivery is the subset of amqp.Delivery the worker acknowledges with.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type LeadEventWorker struct {
	ch       *amqp.Channel
	enqueuer WelcomeEnqueuer
	logger   zerolog.Logger
}

func NewLeadEventWorker(ch *amqp.Channel, enqueuer WelcomeEnqueuer, logger zerolog.Logger) *LeadEventWorker {
	return &LeadEventWorker{
		ch:       ch,
		enqueuer: enqueuer,
		logger:   logger.With().Str("component", "lead_event_worker").Logger(),
	}
}

// Start consumes lead.created events until ctx is done or the channel closes.
func (w *LeadEventWorker) Start(ctx context.Context) error {
	msgs, err := w.ch.ConsumeWithContext(ctx,
		QueueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	w.logger.Info().Str("queue", QueueName).Msg("lead event worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("lead event worker stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			w.Handle(ctx, d.Body, d)
		}
	}
}

// Handle processes one delivery. Malformed or unprocessable messages are
// rejected without requeue so they land in the dead letter queue.
func (w *LeadEventWorker) Handle(ctx context.Context, body []byte, d Delivery) {
	var payload LeadCreatedPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.LeadID == "" {
		w.logger.Error().Err(err).Msg("malformed lead event")
		_ = d.Nack(false, false)
		return
	}

	emailID, err := w.enqueuer.EnqueueWelcome(ctx, payload.LeadID)
	if err != nil {
		w.logger.Error().Err(err).Str("lead_id", payload.LeadID).Msg("enqueue welcome email failed")
		_ = d.Nack(false, false)
		return
	}

	w.logger.Debug().Str("lead_id", payload.LeadID).Str("email_id", emailID).Msg("welcome email queued")
	_ = d.Ack(false)
}
