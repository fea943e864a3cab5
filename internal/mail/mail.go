// Package mail delivers account notifications over SMTP.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"
)

// ErrDelivery indicates a notification could not be sent.
// Callers treat it as non-fatal.
var ErrDelivery = errors.New("mail delivery failed")

// Message is a plain-text e-mail.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Bytes renders msg as an RFC 5322 message with CRLF line endings.
func (m Message) Bytes(now time.Time) []byte {
	var buf bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	header("From", m.From)
	header("To", m.To)
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")

	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	for _, line := range strings.Split(body, "\n") {
		// Dot-stuffing is done by net/smtp's data writer.
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

// LogSender logs messages instead of sending them. Used when SMTP is not configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs msg at INFO.
func (s LogSender) Send(_ context.Context, msg Message) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("mail not sent, SMTP not configured", "to", msg.To, "subject", msg.Subject, "body", msg.Body)
	return nil
}
