package mailer

import (
	"context"

	"github.com/google/uuid"

	"github.com/diagnosis/hotel-site/pkg/logger"
)

// DevMailer writes messages to the log instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	id := "dev-" + uuid.NewString()
	logger.InfoContext(ctx, "[DEV MAIL] message not sent",
		"message_id", id,
		"to", msg.To,
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return id, nil
}
