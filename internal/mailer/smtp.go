// Package mailer sends plain-text email over SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/wneessen/go-mail"

	"github.com/graphuraprojects/agrirent/internal/config"
)

// SMTP implements queue.Sender.  With no host configured it only logs what
// it would have sent, which keeps local development free of a mail server.
type SMTP struct {
	cfg    config.MailConfig
	logger *log.Logger
	send   func(ctx context.Context, m *mail.Msg) error
}

// NewSMTP returns a sender for cfg.
func NewSMTP(cfg config.MailConfig, logger *log.Logger) *SMTP {
	s := &SMTP{cfg: cfg, logger: logger}
	s.send = s.dialAndSend
	return s
}

// Send delivers one message.
func (s *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.Host == "" {
		s.logger.Infof("mail (smtp disabled) to=%s subject=%q", to, subject)
		return nil
	}
	m, err := buildMessage(s.cfg.From, to, subject, body, time.Now())
	if err != nil {
		return fmt.Errorf("build mail to %s: %w", to, err)
	}
	if err := s.send(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTP) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return c.DialAndSendWithContext(ctx, m)
}

// header values must not smuggle extra headers in
func clean(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}

// buildMessage assembles a UTF-8 text/plain message.  Non-ASCII header
// values are written as RFC 2047 encoded words.
func buildMessage(from, to, subject, body string, now time.Time) (*mail.Msg, error) {
	m := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8))
	if err := m.From(clean(from)); err != nil {
		return nil, err
	}
	if err := m.To(clean(to)); err != nil {
		return nil, err
	}
	m.Subject(clean(subject))
	m.SetDateWithValue(now)
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}
