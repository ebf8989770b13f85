// Package email sends a message as one multipart plain-text mail over SMTP
// with implicit TLS (port 465).
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"snipcast/internal/transport"
	logx "snipcast/pkg/logx"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// dialFunc opens the connection the SMTP session runs on.
type dialFunc func(ctx context.Context, addr string) (net.Conn, error)

type Sender struct {
	cfg  Config
	dial dialFunc
	now  func() time.Time
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" || len(cfg.To) == 0 {
		return nil, errors.New("email: host and at least one recipient are required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("email: sender address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Sender{cfg: cfg, now: time.Now, log: log.With(logx.String("transport", "email"))}
	s.dial = s.dialTLS
	return s, nil
}

func (s *Sender) Name() string { return "email" }

func (s *Sender) dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.cfg.Timeout},
		Config:    &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12},
	}
	return d.DialContext(ctx, "tcp", addr)
}

// Send mails msg.Body in full; chunks are ignored.
func (s *Sender) Send(ctx context.Context, msg transport.Message) error {
	raw, err := buildMessage(s.cfg.From, s.cfg.To, msg.Subject, msg.Body, s.now())
	if err != nil {
		return fmt.Errorf("email: build: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(s.now().Add(s.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("email: handshake: %w", err)
	}
	defer c.Close()

	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("email: MAIL FROM: %w", err)
	}
	for _, rcpt := range s.cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("email: DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("email: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: DATA: %w", err)
	}
	if err := c.Quit(); err != nil {
		s.log.Debug("quit failed after delivery", logx.Err(err))
	}
	s.log.Debug("mail sent", logx.Int("recipients", len(s.cfg.To)), logx.Int("bytes", len(raw)))
	return nil
}

// buildMessage renders a multipart/mixed message with a single
// quoted-printable text/plain part.
func buildMessage(from string, to []string, subject, body string, date time.Time) ([]byte, error) {
	var part bytes.Buffer
	mw := multipart.NewWriter(&part)
	pw, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {`text/plain; charset="utf-8"`},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(pw)
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }
	header("From", from)
	header("To", strings.Join(to, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", date.Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	buf.WriteString("\r\n")
	buf.Write(part.Bytes())
	return buf.Bytes(), nil
}
