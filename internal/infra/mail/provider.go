package mail

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/xavierca1/leadflow/internal/config"
)

// NewSender builds the configured provider client behind the throttle and
// circuit breaker.
func NewSender(cfg *config.Config, logger zerolog.Logger) (*GuardedSender, error) {
	var next Sender
	switch cfg.EmailProvider {
	case config.ProviderResend:
		client, err := NewResendClient(cfg.EmailAPIKey, cfg.EmailAPIURL, nil)
		if err != nil {
			return nil, err
		}
		next = client
	case config.ProviderSMTP:
		next = NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	default:
		return nil, &config.ConfigurationError{Key: "EMAIL_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", cfg.EmailProvider)}
	}

	onStateChange := func(name string, from, to gobreaker.State) {
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("email provider circuit changed state")
	}
	return NewGuardedSender(next, cfg.EmailRatePerSecond, onStateChange), nil
}
