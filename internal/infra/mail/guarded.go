package mail

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xavierca1/leadflow/internal/infra/metrics"
)

var ErrCircuitOpen = errors.New("email provider circuit open")

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// GuardedSender throttles outbound sends and stops calling a provider that
// keeps failing.
type GuardedSender struct {
	next    Sender
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

func NewGuardedSender(next Sender, perSecond float64, onStateChange func(name string, from, to gobreaker.State)) *GuardedSender {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	settings := gobreaker.Settings{
		Name:        "email",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: onStateChange,
	}

	return &GuardedSender{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *GuardedSender) Send(ctx context.Context, msg Message) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return &ProviderError{Provider: "email", Message: "rate limiter", Err: err}
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		return nil, g.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &ProviderError{Provider: "email", Message: "circuit open", Err: ErrCircuitOpen}
	}
	if err != nil {
		provider := "email"
		var perr *ProviderError
		if errors.As(err, &perr) && perr.Provider != "" {
			provider = perr.Provider
		}
		metrics.RecordIntegrationError(provider)
	}
	return err
}

func (g *GuardedSender) State() gobreaker.State {
	return g.cb.State()
}
