// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers one-time codes by mail.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"codeberg.org/oliverandrich/go-blog-auth/internal/i18n"
	"github.com/wneessen/go-mail"
)

// Service sends mail over SMTP.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	return &Service{cfg: cfg}, nil
}

// Send delivers a plain text message.
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	msg, err := s.message(to, subject, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (s *Service) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (s *Service) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(10 * time.Second),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Port 465 is implicit TLS, everything else STARTTLS.
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (l *LogSender) Send(ctx context.Context, to, subject, body string) error {
	l.logger.InfoContext(ctx, "email_logged", "to", to, "subject", subject, "body", body)
	return nil
}

// OTPMessage returns the localized subject and body for a code.
func OTPMessage(ctx context.Context, purpose, code string, ttl time.Duration) (string, string) {
	subjectID, bodyID := "otp_subject", "otp_body"
	switch purpose {
	case "register", "forgot_password":
		subjectID += "_" + purpose
		bodyID += "_" + purpose
	}
	data := map[string]any{
		"Code":    code,
		"Minutes": int(ttl.Round(time.Minute) / time.Minute),
	}
	return i18n.T(ctx, subjectID), i18n.TData(ctx, bodyID, data)
}
