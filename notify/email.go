package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Email delivers messages over SMTP. STARTTLS is used when the server
// offers it; authentication when credentials were configured.
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// EmailOption configures the Email channel.
type EmailOption func(*Email)

// WithSMTPAuth sets PLAIN auth credentials.
func WithSMTPAuth(username, password string) EmailOption {
	return func(e *Email) {
		e.username = username
		e.password = password
	}
}

// NewEmail creates an SMTP channel sending from the given address to the
// given recipients.
func NewEmail(host string, port int, from string, to []string, opts ...EmailOption) *Email {
	e := &Email{host: host, port: port, from: from, to: to}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Email) Name() string { return "email" }

// Send connects, optionally upgrades to TLS and authenticates, then submits
// the message to every recipient in a single SMTP transaction.
func (e *Email) Send(ctx context.Context, _ Event, msg Message) error {
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake with %s failed: %w", addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if e.username != "" {
		auth := smtp.PlainAuth("", e.username, e.password, e.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	for _, rcpt := range e.to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s rejected: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(buildMIME(e.from, e.to, msg)); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message submission failed: %w", err)
	}

	return client.Quit()
}

func buildMIME(from string, to []string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
