package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"
)

// ErrTransport marks a message that was not accepted for delivery.
var ErrTransport = errors.New("email transport failed")

// smtpDialTimeout caps connection setup when ctx has no earlier deadline.
const smtpDialTimeout = 30 * time.Second

// Transport delivers one message. Implementations make a single attempt
// and wrap failures with ErrTransport.
type Transport interface {
	Send(ctx context.Context, m Message) error
}

// SMTPTransport sends over a fresh SMTP connection per message.
type SMTPTransport struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPTransport creates a transport. cfg should already have defaults
// applied.
func NewSMTPTransport(cfg Config, logger *slog.Logger) *SMTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPTransport{cfg: cfg, logger: logger.With("component", "smtp"), now: time.Now}
}

// Send composes m and delivers it. A missing From defaults to the
// configured sender.
func (t *SMTPTransport) Send(ctx context.Context, m Message) error {
	if m.From == "" {
		m.From = t.cfg.Sender
	}
	raw, err := Compose(m, t.now())
	if err != nil {
		return fmt.Errorf("%w: compose: %w", ErrTransport, err)
	}
	from, err := bareAddress(m.From)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	to, err := bareAddress(m.To)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	start := time.Now()
	if err := sendMail(ctx, t.cfg, from, []string{to}, raw); err != nil {
		t.logger.Warn("send failed", "to", to, "error", err)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	t.logger.Info("message sent", "to", to, "bytes", len(raw), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// sendMail opens one connection, authenticates when credentials are
// set, and delivers msg. Port 465 uses implicit TLS; anything else
// upgrades with STARTTLS when cfg.StartTLS is set.
func sendMail(ctx context.Context, cfg Config, from string, recipients []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	var conn net.Conn
	var err error
	if !cfg.StartTLS {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create SMTP client on %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}
	if cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if cfg.Username != "" && cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}
	return client.Quit()
}

// bareAddress reduces "Name <addr>" to addr.
func bareAddress(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", s, err)
	}
	return a.Address, nil
}
