package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/hotel-site/pkg/config"
	"github.com/diagnosis/hotel-site/pkg/logger"
)

var (
	ErrDisabled    = errors.New("mailer disabled")
	ErrNoRecipient = errors.New("empty recipient email")
)

// Message is one rendered email ready for delivery.
type Message struct {
	To      string
	ToName  string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a single message and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type timeoutTransport struct {
	next    Transport
	timeout time.Duration
}

// WithTimeout bounds every Send on t. A non-positive d returns t unchanged.
func WithTimeout(t Transport, d time.Duration) Transport {
	if d <= 0 {
		return t
	}
	return &timeoutTransport{next: t, timeout: d}
}

func (t *timeoutTransport) Send(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Send(ctx, msg)
}

// FromConfig picks the transport named by cfg. Dev mode wins over any provider.
func FromConfig(cfg config.EmailConfig) (Transport, string) {
	var (
		t    Transport
		name string
	)
	switch {
	case cfg.DevMode || cfg.Provider == "dev":
		t, name = NewDevMailer(), "dev"
		if cfg.SMTPUser != "" || cfg.MailerSendKey != "" {
			logger.Warn("Dev mail transport selected but delivery credentials are set; no email will be sent",
				"provider", cfg.Provider,
				"hint", "set EMAIL_DEV_MODE=false to deliver mail",
			)
		}
	case cfg.Provider == "mailersend":
		t, name = NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.From), "mailersend"
	default:
		t, name = NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.From, cfg.FromName, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS), "smtp"
	}
	return WithTimeout(t, cfg.SendTimeout), name
}
