package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the relay settings for the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Configured reports whether enough settings are present to send mail.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

// SMTPNotifier sends plain-text messages over an SMTP relay.
type SMTPNotifier struct {
	cfg SMTPConfig
}

// NewSMTPNotifier builds a notifier from relay settings.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if !cfg.Configured() {
		return nil, errors.New("mail: smtp host, port and from address are required")
	}
	return &SMTPNotifier{cfg: cfg}, nil
}

// Deliver renders the template into a minimal text body and sends it.
func (n *SMTPNotifier) Deliver(ctx context.Context, template, to string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := render(template, fields)
	if err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := n.cfg.Host + ":" + n.cfg.Port
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func render(template string, fields Fields) (subject, body string, err error) {
	switch template {
	case TemplateVerificationMail:
		name := fields["name"]
		if name == "" {
			name = "there"
		}
		subject = "Verify your email"
		body = fmt.Sprintf("Hi %s,\n\nYour verification code is %s. It expires in 10 minutes.\n", name, fields["otp"])
		return subject, body, nil
	default:
		return "", "", fmt.Errorf("mail: unknown template %q", template)
	}
}
