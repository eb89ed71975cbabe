package service

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"

	"celulas/membership/internal/config"
)

// MailSender delivers plain-text mail. Used to hand out invitation links.
type MailSender interface {
	Send(ctx context.Context, to string, subject string, body string) error
}

type smtpMailer struct {
	cfg  config.SMTPConfig
	from mail.Address
}

// NewSMTPMailer returns nil, nil when no SMTP host is configured.
func NewSMTPMailer(cfg config.SMTPConfig) (MailSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, nil
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port must be greater than 0")
	}
	from, err := mail.ParseAddress(cfg.FromEmail)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp from_email: %w", err)
	}
	from.Name = strings.TrimSpace(cfg.FromName)
	return &smtpMailer{cfg: cfg, from: *from}, nil
}

func (m *smtpMailer) Send(ctx context.Context, to string, subject string, body string) error {
	rcpt, err := mail.ParseAddress(strings.TrimSpace(to))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if m.cfg.UseSTARTTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server does not support STARTTLS")
		}
		if err := client.StartTLS(&tls.Config{
			ServerName:         m.cfg.Host,
			InsecureSkipVerify: m.cfg.SkipTLSVerify,
		}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if strings.TrimSpace(m.cfg.Username) != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.from.Address); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := client.Rcpt(rcpt.Address); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(buildMessage(m.from, *rcpt, subject, body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write smtp body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close smtp body: %w", err)
	}
	return client.Quit()
}

func buildMessage(from, to mail.Address, subject, body string) []byte {
	var b strings.Builder
	fromHeader := from.Address
	if from.Name != "" {
		fromHeader = from.String()
	}
	b.WriteString("From: " + fromHeader + "\r\n")
	b.WriteString("To: " + to.Address + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
