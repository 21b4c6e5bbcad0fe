package mail

import (
	"context"

	"gopkg.in/gomail.v2"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers mail through a plain SMTP relay.
type SMTPSender struct {
	dialer dialer
}

func NewSMTPSender(host string, port int, user, password string) *SMTPSender {
	return &SMTPSender{dialer: gomail.NewDialer(host, port, user, password)}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return &ProviderError{Provider: "smtp", Message: "canceled", Err: err}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.dialer.DialAndSend(m); err != nil {
		return &ProviderError{Provider: "smtp", Message: "send failed", Err: err}
	}
	return nil
}
