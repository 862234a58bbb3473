package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"heimdall/internal/config"
	"heimdall/internal/permanent"

	"github.com/wneessen/go-mail"
)

// implicitTLSPort is the SMTPS port that expects TLS from the first byte.
const implicitTLSPort = 465

// mailer is the subset of *mail.Client used by EmailSender.
type mailer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailSender delivers rendered notifications over SMTP.
type EmailSender struct {
	cfg    config.EmailNotifier
	dial   func() (mailer, error)
	logger *slog.Logger
}

// NewEmailSender creates an SMTP sender from channel config.
// Params: email notifier config and optional logger.
// Returns: sender that opens one SMTP session per message.
func NewEmailSender(cfg config.EmailNotifier, logger *slog.Logger) *EmailSender {
	sender := &EmailSender{cfg: cfg, logger: logger}
	sender.dial = func() (mailer, error) {
		return newMailClient(cfg)
	}
	return sender
}

// newMailClient builds a go-mail client with port-dependent TLS policy.
// Params: email notifier config.
// Returns: configured client or option error.
func newMailClient(cfg config.EmailNotifier) (*mail.Client, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	options := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTimeout(timeout),
	}
	switch {
	case cfg.SMTPPort == implicitTLSPort:
		options = append(options, mail.WithSSL())
	case cfg.UseTLS:
		options = append(options, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		options = append(options, mail.WithTLSPolicy(mail.NoTLS))
	}
	if strings.TrimSpace(cfg.Username) != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.SMTPServer, options...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return client, nil
}

// Channel returns sender channel name.
func (s *EmailSender) Channel() string {
	return config.ChannelEmail
}

// Send delivers one message to every configured recipient.
// Params: context and rendered message.
// Returns: delivery metadata or SMTP error; rejected addresses are permanent.
func (s *EmailSender) Send(ctx context.Context, message Message) (SendResult, error) {
	if len(s.cfg.Recipients) == 0 {
		return SendResult{}, permanent.Errorf("email: no recipients configured")
	}
	msg, err := s.buildMessage(message)
	if err != nil {
		return SendResult{}, err
	}
	client, err := s.dial()
	if err != nil {
		return SendResult{}, permanent.Mark(err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return SendResult{}, permanent.Mark(fmt.Errorf("smtp send: %w", err))
		}
		return SendResult{}, fmt.Errorf("smtp send: %w", err)
	}
	return SendResult{Delivered: len(s.cfg.Recipients)}, nil
}

// buildMessage assembles the MIME message with optional inline logo.
// Params: rendered message.
// Returns: go-mail message or permanent address error.
func (s *EmailSender) buildMessage(message Message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.Sender); err != nil {
		return nil, permanent.Mark(fmt.Errorf("email sender %q: %w", s.cfg.Sender, err))
	}
	if err := msg.To(s.cfg.Recipients...); err != nil {
		return nil, permanent.Mark(fmt.Errorf("email recipients: %w", err))
	}
	msg.Subject(message.Subject)
	msg.SetDate()
	msg.SetMessageID()

	if message.HTML {
		msg.SetBodyString(mail.TypeTextHTML, message.Body)
		if message.Text != "" {
			msg.AddAlternativeString(mail.TypeTextPlain, message.Text)
		}
	} else {
		msg.SetBodyString(mail.TypeTextPlain, message.Body)
	}

	if logo := strings.TrimSpace(s.cfg.LogoPath); logo != "" && message.HTML {
		if _, err := os.Stat(logo); err != nil {
			if s.logger != nil {
				s.logger.Warn("email logo unavailable, sending without it", "path", logo, "error", err.Error())
			}
		} else {
			msg.EmbedFile(logo, mail.WithFileContentID("<"+LogoContentID+">"))
		}
	}
	return msg, nil
}
