package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SMTPOptions configure the email notifier.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPNotifier sends plain-text alert emails over STARTTLS.
type SMTPNotifier struct {
	opts   SMTPOptions
	logger zerolog.Logger
}

// NewSMTPNotifier constructs the email notifier.
func NewSMTPNotifier(opts SMTPOptions, logger zerolog.Logger) *SMTPNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &SMTPNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_smtp").Logger(),
	}
}

// Notify delivers one alert email to the alarm's address.
func (n *SMTPNotifier) Notify(ctx context.Context, note Notification) error {
	if n.opts.Host == "" || n.opts.From == "" {
		return fmt.Errorf("smtp host and from address are required")
	}

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	dialer := &net.Dialer{Timeout: n.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(n.opts.Timeout))
	}

	client, err := smtp.NewClient(conn, n.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.opts.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if n.opts.Username != "" {
		auth := smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(n.opts.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(note.Alarm.Email); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(buildMessage(n.opts.From, note))); err != nil {
		writer.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("smtp quit: %w", err)
	}

	n.logger.Info().
		Int64("alarm_id", note.Alarm.ID).
		Str("symbol", note.Alarm.AssetSymbol).
		Msg("alert email delivered")
	return nil
}

func buildMessage(from string, note Notification) string {
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", note.Alarm.Email),
		fmt.Sprintf("Subject: %s", Subject(note)),
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + Body(note)
}

var _ Notifier = (*SMTPNotifier)(nil)
