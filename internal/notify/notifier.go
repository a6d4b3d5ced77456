// Package notify implements the email digest: rendering listings to HTML
// fragments, the at-least-once dedup gate over a persistent notification
// log, and the SMTP transport.
package notify

import (
	"context"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/ashenomo/tomigaya/internal/config"
	"github.com/ashenomo/tomigaya/internal/logger"
)

// Notifier delivers a digest of pre-rendered HTML fragments. The gate only
// depends on the boolean outcome: a nil error commits the notification log.
type Notifier interface {
	Send(ctx context.Context, subject string, fragments []string) error
}

// SMTPNotifier sends digests through an SMTP relay.
type SMTPNotifier struct {
	cfg config.NotifyConfig
}

// NewSMTPNotifier creates a Notifier for the configured relay.
func NewSMTPNotifier(cfg config.NotifyConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

// Send joins the fragments into one HTML body and delivers it.
func (n *SMTPNotifier) Send(ctx context.Context, subject string, fragments []string) error {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return err
	}
	if err := msg.To(n.cfg.To); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, strings.Join(fragments, "<br>"))

	opts := []mail.Option{mail.WithPort(n.cfg.SMTPPort)}
	if n.cfg.SMTPUser != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.SMTPUser),
			mail.WithPassword(n.cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(n.cfg.SMTPHost, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// LogNotifier logs digests instead of sending them. Used when no SMTP host
// is configured, so development runs stay offline while still committing
// the notification log.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a Notifier that only logs.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Send logs the digest and reports success.
func (n *LogNotifier) Send(_ context.Context, subject string, fragments []string) error {
	n.log.Info("email digest (dry run)", map[string]interface{}{
		"subject":   subject,
		"fragments": len(fragments),
	})
	return nil
}
