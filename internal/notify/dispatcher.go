// Package notify sends the staff notification and the guest confirmation
// for an accepted enquiry.
package notify

import (
	"context"

	"github.com/diagnosis/hotel-site/internal/enquiry"
	"github.com/diagnosis/hotel-site/internal/platform/mailer"
	"github.com/diagnosis/hotel-site/pkg/logger"
)

// Outcome is the aggregate result of one dispatch. Sent counts the
// messages the transport accepted and is meant for server logs only.
type Outcome struct {
	Delivered   bool
	ErrorDetail string
	Sent        int
}

type Dispatcher struct {
	transport  mailer.Transport
	renderer   *Renderer
	adminEmail string
}

func NewDispatcher(transport mailer.Transport, renderer *Renderer, adminEmail string) *Dispatcher {
	return &Dispatcher{
		transport:  transport,
		renderer:   renderer,
		adminEmail: adminEmail,
	}
}

// Dispatch sends the operator notification, then the guest confirmation.
// The first failure ends the dispatch; a message already sent stays sent.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *enquiry.Record) Outcome {
	operator, err := d.renderer.Operator(rec, d.adminEmail)
	if err != nil {
		return Outcome{ErrorDetail: err.Error()}
	}
	guest, err := d.renderer.Guest(rec)
	if err != nil {
		return Outcome{ErrorDetail: err.Error()}
	}

	steps := []struct {
		kind string
		msg  mailer.Message
	}{
		{"operator", operator},
		{"guest", guest},
	}

	for i, step := range steps {
		id, err := d.transport.Send(ctx, step.msg)
		if err != nil {
			if i > 0 {
				logger.WarnContext(ctx, "Enquiry partially notified", "sent", i, "failed", step.kind)
			}
			return Outcome{ErrorDetail: err.Error(), Sent: i}
		}
		logger.InfoContext(ctx, "Enquiry notification sent", "kind", step.kind, "message_id", id)
	}

	return Outcome{Delivered: true, Sent: len(steps)}
}
