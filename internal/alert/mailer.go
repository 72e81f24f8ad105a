package alert

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// ErrorCategory classifies a delivery failure for the send log and for
// operator triage.
type ErrorCategory string

const (
	ErrConnect ErrorCategory = "connect" // dial or TLS handshake failed
	ErrAuth    ErrorCategory = "auth"    // server rejected credentials
	ErrSend    ErrorCategory = "send"    // failure after a session existed
)

// SendError wraps a delivery failure with its category.
type SendError struct {
	Category ErrorCategory
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers one message through one server. Swappable for tests.
type Sender interface {
	Send(ctx context.Context, srv Server, msg Message) error
}

// dialTimeout bounds the TCP connect so a dead SMTP host cannot stall
// alert delivery behind it.
const dialTimeout = 15 * time.Second

// SMTPSender delivers mail with net/smtp. UseSSL servers get an implicit
// TLS connection; plain servers are upgraded with STARTTLS when offered.
type SMTPSender struct{}

func (SMTPSender) Send(ctx context.Context, srv Server, msg Message) error {
	client, err := connect(ctx, srv)
	if err != nil {
		return &SendError{Category: ErrConnect, Err: err}
	}
	defer client.Close()

	if srv.Username != "" {
		auth := smtp.PlainAuth("", srv.Username, srv.Password, srv.Host)
		if err := client.Auth(auth); err != nil {
			return &SendError{Category: ErrAuth, Err: err}
		}
	}

	if err := submit(client, srv.From, msg); err != nil {
		return &SendError{Category: ErrSend, Err: err}
	}
	return client.Quit()
}

func connect(ctx context.Context, srv Server) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}

	if srv.UseSSL {
		conn, err := tls.DialWithDialer(dialer, "tcp", srv.Addr(), &tls.Config{ServerName: srv.Host})
		if err != nil {
			return nil, fmt.Errorf("tls dial %s: %w", srv.Addr(), err)
		}
		client, err := smtp.NewClient(conn, srv.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp handshake %s: %w", srv.Addr(), err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", srv.Addr())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", srv.Addr(), err)
	}
	client, err := smtp.NewClient(conn, srv.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake %s: %w", srv.Addr(), err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: srv.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("starttls %s: %w", srv.Addr(), err)
		}
	}
	return client, nil
}

func submit(client *smtp.Client, from string, msg Message) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from %s: %w", from, err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("rcpt to %s: %w", msg.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write([]byte(formatMessage(from, msg))); err != nil {
		w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return nil
}

func formatMessage(from string, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return b.String()
}
