package provider

import (
	"bytes"
	"context"
	"fmt"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPProvider sends email through a plain SMTP relay. Suitable for local
// development (MailHog) and internal relays; hosted backends should use the
// SES or Resend providers.
type SMTPProvider struct {
	host     string
	port     string
	user     string
	password string
}

// NewSMTPProvider creates an SMTP provider from SMTP_* environment
// variables.
func NewSMTPProvider() *SMTPProvider {
	return &SMTPProvider{
		host:     GetEnvOrDefault("SMTP_HOST", "localhost"),
		port:     GetEnvOrDefault("SMTP_PORT", "1025"),
		user:     GetEnvOrDefault("SMTP_USER", ""),
		password: GetEnvOrDefault("SMTP_PASSWORD", ""),
	}
}

// Name returns the backend name.
func (p *SMTPProvider) Name() string {
	return "smtp"
}

// IsConfigured reports whether an SMTP host is set.
func (p *SMTPProvider) IsConfigured() bool {
	return p.host != "" && p.port != ""
}

// defaultSMTPTimeout bounds the session when the context carries no
// deadline.
const defaultSMTPTimeout = 10 * time.Second

// Send sends the email over an SMTP session. net/smtp has no context
// support, so the context deadline is projected onto the connection: the
// dial is bounded and every subsequent read/write fails once the deadline
// passes, keeping a stalled relay from holding the send indefinitely.
func (p *SMTPProvider) Send(ctx context.Context, req *Request) error {
	addr := fmt.Sprintf("%s:%s", p.host, p.port)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSMTPTimeout)
	}
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session with %s: %w", addr, err)
	}
	defer client.Close()

	if p.user != "" && p.password != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", p.user, p.password, p.host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("SMTP auth failed: %w", err)
			}
		}
	}

	if err := client.Mail(req.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range req.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(buildMIMEMessage(req)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return client.Quit()
}

// buildMIMEMessage renders a multipart/alternative message carrying both
// the plaintext and HTML bodies.
func buildMIMEMessage(req *Request) []byte {
	const boundary = "buildwatch-alt"

	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", req.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(req.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", req.Subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
	msg.WriteString("\r\n")

	writePart := func(contentType, body string) {
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\r\n", contentType))
		msg.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
		msg.WriteString("\r\n")
		w := quotedprintable.NewWriter(&msg)
		w.Write([]byte(body))
		w.Close()
		msg.WriteString("\r\n")
	}

	writePart("text/plain", req.Text)
	if req.HTML != "" {
		writePart("text/html", req.HTML)
	}
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return msg.Bytes()
}
