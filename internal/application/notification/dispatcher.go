package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/infrastructure/smtp"
	"github.com/drs-api/internal/infrastructure/sns"
)

// Notifier delivers a notice to its recipient.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notice) error
}

// Dispatcher renders notices and sends them by email, and by SMS for codes
// requested by phone when an SMS sender is configured.
type Dispatcher struct {
	mailer smtp.Mailer
	sms    sns.SMSSender
}

// NewDispatcher builds a Dispatcher. sms may be nil to disable SMS delivery.
func NewDispatcher(mailer smtp.Mailer, sms sns.SMSSender) *Dispatcher {
	return &Dispatcher{mailer: mailer, sms: sms}
}

func (d *Dispatcher) Notify(ctx context.Context, n domain.Notice) error {
	email, err := render(n)
	if err != nil {
		return err
	}

	var errs []error
	if email.To != "" {
		if err := d.mailer.Send(ctx, email); err != nil {
			errs = append(errs, fmt.Errorf("send %s email: %w", n.Kind(), err))
		}
	}
	if rc, ok := n.(domain.ResendCodeNotice); ok && rc.Phone != "" && d.sms != nil {
		if err := d.sms.SendSMS(ctx, e164(rc.Phone), smsText(rc)); err != nil {
			errs = append(errs, fmt.Errorf("send %s sms: %w", n.Kind(), err))
		}
	}
	return errors.Join(errs...)
}

// e164 converts a local Egyptian mobile number (01XXXXXXXXX) to +20 form.
func e164(phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return "+20" + strings.TrimPrefix(phone, "0")
}
