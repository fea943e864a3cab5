package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender sends mail through an SMTP relay, upgrading with STARTTLS
// and authenticating with PLAIN when the server offers them.
type SMTPSender struct {
	cfg       SMTPConfig
	tlsConfig *tls.Config
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// NewSMTPSender creates a sender for cfg.
func NewSMTPSender(cfg SMTPConfig, log *slog.Logger, mc *metrics.Collector) *SMTPSender {
	if log == nil {
		log = slog.Default()
	}
	return &SMTPSender{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		logger:    log,
		metrics:   mc,
	}
}

// From returns the sender address, which is the SMTP username.
func (s *SMTPSender) From() string {
	return s.cfg.Username
}

// Send delivers msg. An empty From is filled with the SMTP username.
// Every failure wraps ErrDelivery.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	start := time.Now()
	if msg.From == "" {
		msg.From = s.cfg.Username
	}
	if err := s.send(ctx, msg); err != nil {
		s.metrics.RecordFailure(metrics.OpMailSend)
		s.logger.Warn("mail delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	s.metrics.RecordTiming(metrics.OpMailSend, time.Since(start))
	s.logger.Info("mail sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (s *SMTPSender) send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if ok, _ := c.Extension("AUTH"); ok && s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(msg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg.Bytes(time.Now())); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}
