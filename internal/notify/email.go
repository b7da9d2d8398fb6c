package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const channelEmail = "email"

// EmailConfig holds SMTP settings. Username and Password are mandatory.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From string
	// Timeout bounds the whole SMTP exchange. Zero disables the bound.
	Timeout time.Duration
}

// Configured reports whether credentials are present.
func (c EmailConfig) Configured() bool {
	return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.Password) != ""
}

// Email sends reminders through an SMTP relay. Each delivery is a single
// attempt; retrying is left to the next scan.
type Email struct {
	cfg EmailConfig

	send func(ctx context.Context, cfg EmailConfig, to string, msg []byte) error
}

// NewEmail builds an email channel.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &Email{cfg: cfg, send: sendSMTP}
}

// Deliver sends "Reminder: <title>" to the address in target.
func (e *Email) Deliver(ctx context.Context, target, title, message string) error {
	if !e.cfg.Configured() {
		return &DeliveryError{
			Channel: channelEmail,
			Message: "email credentials not configured (set EMAIL_USER and EMAIL_PASS)",
			Err:     ErrNotConfigured,
		}
	}
	to := strings.TrimSpace(target)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return &DeliveryError{Channel: channelEmail, Message: "invalid recipient address"}
	}

	msg, err := buildMessage(e.cfg.From, to, "Reminder: "+title, title, message)
	if err != nil {
		return &DeliveryError{Channel: channelEmail, Err: err}
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	if err := e.send(ctx, e.cfg, to, msg); err != nil {
		return &DeliveryError{Channel: channelEmail, Err: err, Transient: isTransientSMTP(err)}
	}
	return nil
}

// buildMessage renders a multipart/alternative message with a plain-text
// body and an HTML card.
func buildMessage(from, to, subject, heading, body string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	text, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=\"utf-8\""}})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(body)); err != nil {
		return nil, err
	}

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=\"utf-8\""}})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(renderHTML(heading, body))); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderHTML(heading, body string) string {
	return `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">` +
		`<div style="background: linear-gradient(135deg, #6366f1, #a78bfa); padding: 20px; border-radius: 8px 8px 0 0;">` +
		`<h1 style="color: white; margin: 0;">Reminder</h1></div>` +
		`<div style="background: #f8fafc; padding: 20px; border: 1px solid #e2e8f0; border-top: none; border-radius: 0 0 8px 8px;">` +
		`<h2 style="color: #1e293b; margin-top: 0;">` + html.EscapeString(heading) + `</h2>` +
		`<p style="color: #475569; line-height: 1.6; white-space: pre-wrap;">` + html.EscapeString(body) + `</p>` +
		`<hr style="border: none; border-top: 1px solid #e2e8f0; margin: 20px 0;">` +
		`<p style="color: #94a3b8; font-size: 12px; margin: 0;">Sent by TReminder</p></div></div>`
}

// sendSMTP performs one authenticated SMTP exchange. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the server offers it.
func sendSMTP(ctx context.Context, cfg EmailConfig, to string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	if cfg.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
		return err
	}
	if err := client.Mail(cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// isTransientSMTP reports whether err is a network failure or an SMTP 4xx reply.
func isTransientSMTP(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var te *textproto.Error
	if errors.As(err, &te) {
		return te.Code >= 400 && te.Code < 500
	}
	return false
}
